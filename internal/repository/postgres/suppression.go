package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
// Entries are write-once; there is no delete or deactivate path.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, email, emailDomain string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM suppressions
			WHERE email = $1 OR (domain <> '' AND domain = $2)
		)
	`, email, emailDomain).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return exists, nil
}

func (r *SuppressionRepo) Suppress(ctx context.Context, entry *domain.Suppression, audit *domain.AuditEntry) (suppression.Result, error) {
	var result suppression.Result
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO suppressions (id, email, domain, reason, source_lead_id, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (email) DO NOTHING
		`, entry.ID, entry.Email, entry.Domain, entry.Reason, nullStr(entry.SourceLeadID))
		if err != nil {
			return fmt.Errorf("insert suppression: %w", err)
		}
		n, _ := res.RowsAffected()
		result.Added = n > 0
		if !result.Added {
			// Already on the registry; the first entry stands.
			return nil
		}

		killed, err := tx.ExecContext(ctx, `
			UPDATE leads
			SET status = 'dead', updated_at = NOW()
			WHERE contact_email = $1 AND status NOT IN ('dead','booked')
		`, entry.Email)
		if err != nil {
			return fmt.Errorf("kill leads: %w", err)
		}
		kn, _ := killed.RowsAffected()
		result.LeadsKilled = int(kn)

		paused, err := tx.ExecContext(ctx, `
			UPDATE message_jobs
			SET status = 'paused'
			WHERE status IN ('queued','rendered')
			  AND lead_id IN (SELECT lead_id FROM leads WHERE contact_email = $1)
		`, entry.Email)
		if err != nil {
			return fmt.Errorf("pause message jobs: %w", err)
		}
		pn, _ := paused.RowsAffected()
		result.JobsPaused = int(pn)

		return insertAudits(ctx, tx, []*domain.AuditEntry{audit})
	})
	if err != nil {
		return suppression.Result{}, err
	}
	return result, nil
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1
	if f.Reason != "" {
		where += fmt.Sprintf(" AND reason = $%d", idx)
		args = append(args, f.Reason)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND email LIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM suppressions "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`
		SELECT id, email, COALESCE(domain,''), reason, COALESCE(source_lead_id,''), created_at
		FROM suppressions %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.ID, &s.Email, &s.Domain, &s.Reason, &s.SourceLeadID, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) CountByReason(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT reason, COUNT(*) FROM suppressions GROUP BY reason
	`)
	if err != nil {
		return nil, fmt.Errorf("count suppressions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan suppression count: %w", err)
		}
		out[reason] = n
	}
	return out, rows.Err()
}
