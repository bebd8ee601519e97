// Package delivery integrates outbound email providers. The system never
// sends mail itself; all sending goes through SmartLead or Instantly behind
// the Provider interface, selected once at startup.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/httpretry"
)

// EventType is the normalized webhook event vocabulary. Provider-specific
// event names are mapped here and nowhere else.
type EventType string

const (
	EventSent         EventType = "sent"
	EventOpened       EventType = "opened"
	EventReplied      EventType = "replied"
	EventBounced      EventType = "bounced"
	EventUnsubscribed EventType = "unsubscribed"
	EventUnknown      EventType = "unknown"
)

// Event is a provider webhook normalized to the internal vocabulary.
type Event struct {
	Provider   string          `json:"provider"`
	Type       EventType       `json:"event"`
	Email      string          `json:"email"`
	LeadID     string          `json:"lead_id,omitempty"` // provider-side lead ID
	CampaignID string          `json:"campaign_id,omitempty"`
	MessageID  string          `json:"message_id,omitempty"`
	ReplyText  string          `json:"reply_text,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// SequenceStep is one touch pushed to the provider.
type SequenceStep struct {
	Subject   string
	Body      string
	DelayDays int
}

// Provider is the single outbound integration surface. Implementations are
// safe for concurrent use.
type Provider interface {
	Name() string

	// EnsureCampaign finds or creates the provider campaign for the given
	// key and returns its provider id.
	EnsureCampaign(ctx context.Context, campaignKey string) (string, error)

	// PushLead registers the lead with the campaign and returns the
	// provider lead id.
	PushLead(ctx context.Context, providerCampaignID string, lead *domain.Lead, sequenceID string) (string, error)

	// StartSequence uploads the touches and launches sending for the lead.
	StartSequence(ctx context.Context, providerCampaignID, providerLeadID string, steps []SequenceStep) error

	// SendReply sends a one-off response on the existing thread. Returns
	// the provider message id when the provider reports one.
	SendReply(ctx context.Context, providerCampaignID, providerLeadID, subject, body string) (string, error)

	// PauseSequence stops further touches for the lead.
	PauseSequence(ctx context.Context, providerCampaignID, providerLeadID string) error

	// ParseWebhook normalizes a raw webhook payload.
	ParseWebhook(payload []byte) (Event, error)
}

// New selects the configured provider. Unknown vendors are an error: the
// startup path must fail loudly rather than silently not send.
func New(cfg config.ProviderConfig) (Provider, error) {
	client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, 3)
	switch cfg.Vendor {
	case "smartlead", "":
		return &SmartLead{cfg: cfg, client: client}, nil
	case "instantly":
		return &Instantly{cfg: cfg, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown delivery provider %q", cfg.Vendor)
	}
}

// Steps converts rendered message jobs to provider sequence steps; delays
// are day offsets between consecutive touches.
func Steps(jobs []*domain.MessageJob) []SequenceStep {
	steps := make([]SequenceStep, 0, len(jobs))
	var prev *domain.MessageJob
	for _, job := range jobs {
		if job.Status == domain.MessageFailed {
			continue
		}
		delay := 0
		if prev != nil {
			delay = int(job.ScheduledAt.Sub(prev.ScheduledAt) / (24 * time.Hour))
		}
		steps = append(steps, SequenceStep{Subject: job.Subject, Body: job.Body, DelayDays: delay})
		prev = job
	}
	return steps
}
