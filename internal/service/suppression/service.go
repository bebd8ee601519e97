package suppression

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsSuppressed checks whether an address may be contacted. A match on the
// exact address or on a domain-wide entry both block.
func (s *Service) IsSuppressed(ctx context.Context, email string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return false, ErrEmptyEmail
	}
	return s.repo.IsSuppressed(ctx, email, domain.EmailDomain(email))
}

// Suppress adds an address to the registry. Idempotent: re-suppressing an
// address reports Added=false and changes nothing. Side effects (dead leads,
// paused jobs, the suppression_added audit entry) commit atomically with the
// insert.
func (s *Service) Suppress(ctx context.Context, email string, reason domain.SuppressionReason, sourceLeadID, requestID string, suppressDomain bool) (Result, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return Result{}, ErrEmptyEmail
	}

	emailDomain := domain.EmailDomain(email)
	entry := &domain.Suppression{
		ID:           uuid.New().String(),
		Email:        email,
		Reason:       reason,
		SourceLeadID: sourceLeadID,
	}
	if suppressDomain {
		entry.Domain = emailDomain
	}

	audit := &domain.AuditEntry{
		RequestID: requestID,
		Event:     domain.EventSuppressionAdded,
		LeadID:    sourceLeadID,
		Actor:     "system",
		Payload: map[string]any{
			"email":           email,
			"domain":          entry.Domain,
			"reason":          string(reason),
			"suppress_domain": suppressDomain,
		},
	}

	res, err := s.repo.Suppress(ctx, entry, audit)
	if err != nil {
		return Result{}, err
	}
	if res.Added {
		log.Printf("[Suppression] SUPPRESSED %s (reason: %s, leads killed: %d, jobs paused: %d)",
			email, reason, res.LeadsKilled, res.JobsPaused)
	} else {
		log.Printf("[Suppression] Already suppressed: %s", email)
	}
	return res, nil
}

// List returns registry entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, filter)
}

// Stats aggregates registry counts grouped by reason.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
}

// GetStats computes registry statistics for the dashboard. Counts come
// from a whole-registry aggregate, not a paged listing.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	byReason, err := s.repo.CountByReason(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{ByReason: byReason}
	for _, n := range byReason {
		stats.Total += n
	}
	return stats, nil
}
