package domain

import "time"

// AuditEvent is the closed vocabulary of audit trail events. New events
// require a schema review; handlers must not invent event names.
type AuditEvent string

const (
	EventLeadCreated       AuditEvent = "lead_created"
	EventLeadSuppressed    AuditEvent = "lead_suppressed"
	EventLeadClassified    AuditEvent = "lead_classified"
	EventLeadQualified     AuditEvent = "lead_qualified"
	EventLeadDisqualified  AuditEvent = "lead_disqualified"
	EventLeverageAssigned  AuditEvent = "leverage_assigned"
	EventItemMatched       AuditEvent = "item_matched"
	EventScrapeRequested   AuditEvent = "scrape_requested"
	EventScrapeCompleted   AuditEvent = "scrape_completed"
	EventScrapeFailed      AuditEvent = "scrape_failed"
	EventEmailRendered     AuditEvent = "email_rendered"
	EventEmailSent         AuditEvent = "email_sent"
	EventEmailDelivered    AuditEvent = "email_delivered"
	EventEmailBounced      AuditEvent = "email_bounced"
	EventLeadBooked        AuditEvent = "lead_booked"
	EventReplyReceived     AuditEvent = "reply_received"
	EventReplyClassified   AuditEvent = "reply_classified"
	EventReplyReviewed     AuditEvent = "reply_reviewed"
	EventReplyResponseSent AuditEvent = "reply_response_sent"
	EventSuppressionAdded  AuditEvent = "suppression_added"
	EventJobCreated        AuditEvent = "job_created"
	EventJobStarted        AuditEvent = "job_started"
	EventJobCompleted      AuditEvent = "job_completed"
	EventJobFailed         AuditEvent = "job_failed"
)

// AuditEntry is one immutable row of the append-only audit trail. Entries
// are never updated or deleted.
type AuditEntry struct {
	ID        int64          `json:"id" db:"id"`
	RequestID string         `json:"request_id" db:"request_id"`
	Event     AuditEvent     `json:"event" db:"event"`
	LeadID    string         `json:"lead_id,omitempty" db:"lead_id"`
	JobID     string         `json:"job_id,omitempty" db:"job_id"`
	Actor     string         `json:"actor" db:"actor"`
	Payload   map[string]any `json:"payload" db:"payload"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
