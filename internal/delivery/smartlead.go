package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/httpretry"
)

// SmartLead is the SmartLead API adapter. Auth is an api_key query param.
type SmartLead struct {
	cfg    config.ProviderConfig
	client httpretry.HTTPDoer
}

func (s *SmartLead) Name() string { return "smartlead" }

func (s *SmartLead) request(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	fullURL := s.cfg.BaseURL + path
	u, err := url.Parse(fullURL)
	if err != nil {
		return fmt.Errorf("smartlead url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", s.cfg.APIKey)
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("smartlead encode: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("smartlead request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("smartlead %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("smartlead read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("smartlead API error (status %d): %s", resp.StatusCode, string(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("smartlead decode: %w", err)
		}
	}
	return nil
}

func (s *SmartLead) EnsureCampaign(ctx context.Context, campaignKey string) (string, error) {
	var campaigns []struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	}
	if err := s.request(ctx, http.MethodGet, "/campaigns", nil, &campaigns); err != nil {
		return "", err
	}
	for _, c := range campaigns {
		if c.Name == campaignKey {
			return c.ID.String(), nil
		}
	}

	var created struct {
		ID json.Number `json:"id"`
	}
	err := s.request(ctx, http.MethodPost, "/campaigns/create",
		map[string]string{"name": campaignKey}, &created)
	if err != nil {
		return "", err
	}
	if created.ID.String() == "" {
		return "", fmt.Errorf("smartlead create campaign: no id in response")
	}

	// Attach the sender account to the new campaign.
	err = s.request(ctx, http.MethodPost, "/campaigns/"+created.ID.String()+"/settings",
		map[string]string{
			"from_email": s.cfg.SenderEmail,
			"from_name":  s.cfg.SenderName,
		}, nil)
	if err != nil {
		return "", err
	}
	return created.ID.String(), nil
}

func (s *SmartLead) PushLead(ctx context.Context, providerCampaignID string, lead *domain.Lead, sequenceID string) (string, error) {
	payload := map[string]interface{}{
		"lead_list": []map[string]interface{}{
			{
				"email": lead.ContactEmail,
				"custom_fields": map[string]string{
					"lead_id":      lead.ID,
					"sequence_id":  sequenceID,
					"company_name": lead.CompanyName,
				},
			},
		},
	}
	err := s.request(ctx, http.MethodPost, "/campaigns/"+providerCampaignID+"/leads", payload, nil)
	if err != nil {
		return "", err
	}
	return "sl-" + lead.ID, nil
}

func (s *SmartLead) StartSequence(ctx context.Context, providerCampaignID, providerLeadID string, steps []SequenceStep) error {
	for i, step := range steps {
		err := s.request(ctx, http.MethodPost, "/campaigns/"+providerCampaignID+"/sequences",
			map[string]interface{}{
				"seq_number": i + 1,
				"subject":    step.Subject,
				"email_body": step.Body,
				"seq_delay_details": map[string]int{
					"delay_in_days": step.DelayDays,
				},
			}, nil)
		if err != nil {
			return err
		}
	}
	return s.request(ctx, http.MethodPost, "/campaigns/"+providerCampaignID+"/status",
		map[string]string{"status": "START"}, nil)
}

func (s *SmartLead) SendReply(ctx context.Context, providerCampaignID, providerLeadID, subject, body string) (string, error) {
	var result struct {
		MessageID string `json:"message_id"`
	}
	err := s.request(ctx, http.MethodPost, "/campaigns/"+providerCampaignID+"/reply",
		map[string]string{
			"lead_id": providerLeadID,
			"subject": subject,
			"body":    body,
		}, &result)
	if err != nil {
		return "", err
	}
	return result.MessageID, nil
}

func (s *SmartLead) PauseSequence(ctx context.Context, providerCampaignID, providerLeadID string) error {
	return s.request(ctx, http.MethodPost, "/campaigns/"+providerCampaignID+"/leads/status",
		map[string]string{
			"lead_id": providerLeadID,
			"status":  "PAUSED",
		}, nil)
}

func (s *SmartLead) ParseWebhook(payload []byte) (Event, error) {
	var raw struct {
		EventType  string      `json:"event_type"`
		LeadEmail  string      `json:"lead_email"`
		LeadID     string      `json:"lead_id"`
		CampaignID json.Number `json:"campaign_id"`
		MessageID  string      `json:"message_id"`
		ReplyText  string      `json:"reply_text"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("smartlead webhook: %w", err)
	}

	event := Event{
		Provider:   "smartlead",
		Email:      raw.LeadEmail,
		LeadID:     raw.LeadID,
		CampaignID: raw.CampaignID.String(),
		MessageID:  raw.MessageID,
		Raw:        payload,
	}
	switch raw.EventType {
	case "EMAIL_SENT":
		event.Type = EventSent
	case "EMAIL_OPENED":
		event.Type = EventOpened
	case "EMAIL_REPLIED":
		event.Type = EventReplied
		event.ReplyText = raw.ReplyText
	case "EMAIL_BOUNCED":
		event.Type = EventBounced
	case "EMAIL_UNSUBSCRIBED":
		event.Type = EventUnsubscribed
	default:
		event.Type = EventUnknown
	}
	return event, nil
}
