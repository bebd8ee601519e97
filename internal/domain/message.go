package domain

import "time"

// MessageStatus enumerates the lifecycle of a single outbound message job.
type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageRendered  MessageStatus = "rendered"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageBounced   MessageStatus = "bounced"
	MessagePaused    MessageStatus = "paused"
	MessageFailed    MessageStatus = "failed"
)

// IsPending reports whether the message has not yet left the system and can
// still be paused.
func (s MessageStatus) IsPending() bool {
	return s == MessageQueued || s == MessageRendered
}

// MessageType distinguishes sequence touches from one-off reply responses.
type MessageType string

const (
	MessageTypeSequence MessageType = "sequence"
	MessageTypeReply    MessageType = "reply"
)

// SequenceLength is the fixed number of touches in an outbound sequence.
const SequenceLength = 5

// MessageJob is one scheduled outbound message for a lead. Jobs in a
// sequence share a SequenceID and are never reordered; each is individually
// mutable (paused, failed, sent) after batch creation.
type MessageJob struct {
	ID          string        `json:"job_id" db:"job_id"`
	LeadID      string        `json:"lead_id" db:"lead_id"`
	SequenceID  string        `json:"sequence_id" db:"sequence_id"`
	TouchNumber int           `json:"touch_number" db:"touch_number"` // 1-based; 0 for replies
	Type        MessageType   `json:"email_type" db:"email_type"`
	Subject     string        `json:"subject" db:"subject"`
	Body        string        `json:"body" db:"body"`
	Status      MessageStatus `json:"status" db:"status"`
	ScheduledAt time.Time     `json:"scheduled_at" db:"scheduled_at"`
	SentAt      *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	Error       string        `json:"error,omitempty" db:"error"`

	// Delivery provider correlation.
	Provider           string `json:"provider,omitempty" db:"provider"`
	ProviderCampaignID string `json:"provider_campaign_id,omitempty" db:"provider_campaign_id"`
	ProviderLeadID     string `json:"provider_lead_id,omitempty" db:"provider_lead_id"`
	ProviderMessageID  string `json:"provider_message_id,omitempty" db:"provider_message_id"`

	ReplyID   string    `json:"reply_id,omitempty" db:"reply_id"` // set when responding to a reply
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
