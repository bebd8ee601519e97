package suppression

import (
	"context"

	"github.com/ignite/leadflow/internal/domain"
)

// Result reports what one Suppress call changed.
type Result struct {
	// Added is false when the address was already suppressed.
	Added bool
	// LeadsKilled counts leads moved to dead.
	LeadsKilled int
	// JobsPaused counts pending message jobs paused.
	JobsPaused int
}

// Repository defines the data access contract for the suppression registry.
type Repository interface {
	// IsSuppressed returns true if the email, or its whole domain, is on
	// the registry. email must already be normalized.
	IsSuppressed(ctx context.Context, email, emailDomain string) (bool, error)

	// Suppress atomically inserts the entry (no-op when the address is
	// already present), kills every lead on the address, pauses their
	// pending message jobs, and appends the audit entry. The audit row is
	// only written when the entry is new.
	Suppress(ctx context.Context, entry *domain.Suppression, audit *domain.AuditEntry) (Result, error)

	// List returns registry entries matching the filter plus the total count.
	List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error)

	// CountByReason returns entry counts per reason over the whole
	// registry, never a paged subset.
	CountByReason(ctx context.Context) (map[string]int, error)
}

// ListFilter controls pagination and filtering for registry listings.
type ListFilter struct {
	Reason string
	Search string
	Limit  int
	Offset int
}
