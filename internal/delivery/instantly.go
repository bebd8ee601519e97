package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/httpretry"
)

// Instantly is the Instantly.ai API adapter. Auth is a bearer token.
type Instantly struct {
	cfg    config.ProviderConfig
	client httpretry.HTTPDoer
}

func (p *Instantly) Name() string { return "instantly" }

func (p *Instantly) request(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("instantly encode: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("instantly request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("instantly %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("instantly read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("instantly API error (status %d): %s", resp.StatusCode, string(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("instantly decode: %w", err)
		}
	}
	return nil
}

func (p *Instantly) EnsureCampaign(ctx context.Context, campaignKey string) (string, error) {
	var list struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := p.request(ctx, http.MethodGet, "/campaign/list", nil, &list); err != nil {
		return "", err
	}
	for _, c := range list.Data {
		if c.Name == campaignKey {
			return c.ID, nil
		}
	}

	var created struct {
		ID         string `json:"id"`
		CampaignID string `json:"campaign_id"`
	}
	err := p.request(ctx, http.MethodPost, "/campaign/create",
		map[string]string{
			"name":       campaignKey,
			"from_email": p.cfg.SenderEmail,
			"from_name":  p.cfg.SenderName,
		}, &created)
	if err != nil {
		return "", err
	}
	if created.ID != "" {
		return created.ID, nil
	}
	if created.CampaignID != "" {
		return created.CampaignID, nil
	}
	return "", fmt.Errorf("instantly create campaign: no id in response")
}

func (p *Instantly) PushLead(ctx context.Context, providerCampaignID string, lead *domain.Lead, sequenceID string) (string, error) {
	err := p.request(ctx, http.MethodPost, "/lead/add",
		map[string]interface{}{
			"campaign_id": providerCampaignID,
			"email":       lead.ContactEmail,
			"custom_variables": map[string]string{
				"lead_id":      lead.ID,
				"sequence_id":  sequenceID,
				"company_name": lead.CompanyName,
			},
		}, nil)
	if err != nil {
		return "", err
	}
	return "inst-" + lead.ID, nil
}

func (p *Instantly) StartSequence(ctx context.Context, providerCampaignID, providerLeadID string, steps []SequenceStep) error {
	for i, step := range steps {
		err := p.request(ctx, http.MethodPost, "/campaign/"+providerCampaignID+"/sequence/add",
			map[string]interface{}{
				"step":    i + 1,
				"subject": step.Subject,
				"body":    step.Body,
				"delay":   step.DelayDays,
			}, nil)
		if err != nil {
			return err
		}
	}
	return p.request(ctx, http.MethodPost, "/campaign/"+providerCampaignID+"/launch", nil, nil)
}

func (p *Instantly) SendReply(ctx context.Context, providerCampaignID, providerLeadID, subject, body string) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	err := p.request(ctx, http.MethodPost, "/unibox/reply",
		map[string]string{
			"campaign_id": providerCampaignID,
			"lead_id":     providerLeadID,
			"subject":     subject,
			"body":        body,
		}, &result)
	if err != nil {
		return "", err
	}
	return result.ID, nil
}

func (p *Instantly) PauseSequence(ctx context.Context, providerCampaignID, providerLeadID string) error {
	return p.request(ctx, http.MethodPost, "/lead/update",
		map[string]string{
			"campaign_id": providerCampaignID,
			"lead_id":     providerLeadID,
			"status":      "paused",
		}, nil)
}

func (p *Instantly) ParseWebhook(payload []byte) (Event, error) {
	var raw struct {
		Event      string `json:"event"`
		LeadEmail  string `json:"lead_email"`
		LeadID     string `json:"lead_id"`
		CampaignID string `json:"campaign_id"`
		MessageID  string `json:"message_id"`
		ReplyBody  string `json:"reply_body"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("instantly webhook: %w", err)
	}

	event := Event{
		Provider:   "instantly",
		Email:      raw.LeadEmail,
		LeadID:     raw.LeadID,
		CampaignID: raw.CampaignID,
		MessageID:  raw.MessageID,
		Raw:        payload,
	}
	switch raw.Event {
	case "email_sent":
		event.Type = EventSent
	case "email_opened":
		event.Type = EventOpened
	case "reply_received":
		event.Type = EventReplied
		event.ReplyText = raw.ReplyBody
	case "email_bounced":
		event.Type = EventBounced
	case "lead_unsubscribed":
		event.Type = EventUnsubscribed
	default:
		event.Type = EventUnknown
	}
	return event, nil
}
