package domain

import (
	"strings"
	"time"
)

// SuppressionReason enumerates why an address was suppressed.
type SuppressionReason string

const (
	SuppressUnsubscribe SuppressionReason = "unsubscribe"
	SuppressBounce      SuppressionReason = "bounce"
	SuppressSpam        SuppressionReason = "spam"
	SuppressManual      SuppressionReason = "manual"
)

// Suppression is a permanent opt-out entry keyed by email and/or domain.
// Write-once per address; there is no delete path.
type Suppression struct {
	ID           string            `json:"id" db:"id"`
	Email        string            `json:"email" db:"email"`
	Domain       string            `json:"domain,omitempty" db:"domain"`
	Reason       SuppressionReason `json:"reason" db:"reason"`
	SourceLeadID string            `json:"source_lead_id,omitempty" db:"source_lead_id"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// NormalizeEmail lowercases and trims an address. Every suppression check
// and insert goes through this so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain extracts the domain part of an address, or "" when malformed.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
