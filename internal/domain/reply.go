package domain

import "time"

// ReplyClassification enumerates normalized inbound reply outcomes.
type ReplyClassification string

const (
	ReplyInterested    ReplyClassification = "interested"
	ReplyObjection     ReplyClassification = "objection"
	ReplyNotInterested ReplyClassification = "not_interested"
	ReplyUnsubscribe   ReplyClassification = "unsubscribe"
	ReplyOutOfOffice   ReplyClassification = "out_of_office"
	ReplyUnknown       ReplyClassification = "unknown"
)

// ReplyAction enumerates the closed set of actions the pipeline may take in
// response to an inbound reply.
type ReplyAction string

const (
	ActionSendCalendar ReplyAction = "send_calendar"
	ActionSendCurated  ReplyAction = "send_curated_catalog"
	ActionSuppress     ReplyAction = "suppress"
	ActionHandoff      ReplyAction = "handoff_to_human"
)

// ApprovalState is the tri-state human-approval flag on a drafted response.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// Reply is one inbound response from a lead, optionally linked to the
// message job it answers. Created on receipt; mutated only to attach
// classification and draft/approval state.
type Reply struct {
	ID                string              `json:"reply_id" db:"reply_id"`
	LeadID            string              `json:"lead_id" db:"lead_id"`
	MessageJobID      string              `json:"email_job_id,omitempty" db:"email_job_id"`
	RawText           string              `json:"raw_text" db:"raw_text"`
	ProviderMessageID string              `json:"provider_message_id,omitempty" db:"provider_message_id"`
	Classification    ReplyClassification `json:"classification,omitempty" db:"classification"`
	ObjectionType     string              `json:"objection_type,omitempty" db:"objection_type"`
	Action            ReplyAction         `json:"action,omitempty" db:"action"`
	InterestLevel     int                 `json:"interest_level" db:"interest_level"` // 1-10
	DraftResponse     string              `json:"draft_response,omitempty" db:"draft_response"`
	Approval          ApprovalState       `json:"draft_approved,omitempty" db:"draft_approved"`
	ResponseSent      bool                `json:"response_sent" db:"response_sent"`
	CallID            string              `json:"call_id,omitempty" db:"call_id"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
}

// ObjectionTemplate is an approved response template from the objection
// knowledge base. The pipeline cannot invent rebuttals; it renders these.
type ObjectionTemplate struct {
	ObjectionType   string    `json:"objection_type" db:"objection_type"`
	PatternKeywords []string  `json:"pattern_keywords" db:"pattern_keywords"`
	Subject         string    `json:"template_subject" db:"template_subject"`
	Body            string    `json:"template_body" db:"template_body"`
	Active          bool      `json:"is_active" db:"is_active"`
	Version         string    `json:"version" db:"version"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
