package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/service/suppression"
)

func TestIsSuppressedMatchesEmailOrDomain(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewSuppressionRepo(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("buyer@acme.example", "acme.example").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	suppressed, err := repo.IsSuppressed(context.Background(), "buyer@acme.example", "acme.example")
	require.NoError(t, err)
	assert.True(t, suppressed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressKillsLeadsAndPausesJobsAtomically(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewSuppressionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO suppressions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE leads").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE message_jobs").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO audit_trail").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry := &domain.Suppression{
		ID:     "sup-1",
		Email:  "buyer@acme.example",
		Reason: domain.SuppressUnsubscribe,
	}
	audit := &domain.AuditEntry{Event: domain.EventSuppressionAdded, Actor: "system"}

	result, err := repo.Suppress(context.Background(), entry, audit)
	require.NoError(t, err)
	assert.True(t, result.Added)
	assert.Equal(t, 2, result.LeadsKilled)
	assert.Equal(t, 3, result.JobsPaused)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressDuplicateSkipsSideEffects(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewSuppressionRepo(db)

	// ON CONFLICT DO NOTHING reports zero affected rows; no leads are
	// touched and no second audit row is written.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO suppressions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	entry := &domain.Suppression{ID: "sup-2", Email: "buyer@acme.example", Reason: domain.SuppressManual}
	audit := &domain.AuditEntry{Event: domain.EventSuppressionAdded, Actor: "admin"}

	result, err := repo.Suppress(context.Background(), entry, audit)
	require.NoError(t, err)
	assert.False(t, result.Added)
	assert.Zero(t, result.LeadsKilled)
	assert.Zero(t, result.JobsPaused)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionListFilters(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewSuppressionRepo(db)

	mock.ExpectQuery("SELECT COUNT(.+) FROM suppressions").
		WithArgs("unsubscribe").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM suppressions").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "domain", "reason", "source_lead_id", "created_at",
		}).AddRow("sup-1", "buyer@acme.example", "", "unsubscribe", "lead-1", time.Now()))

	out, total, err := repo.List(context.Background(), suppression.ListFilter{Reason: "unsubscribe", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, domain.SuppressUnsubscribe, out[0].Reason)
	assert.Equal(t, "lead-1", out[0].SourceLeadID)
}

func TestSuppressionCountByReasonCoversWholeRegistry(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewSuppressionRepo(db)

	// One aggregate query; no LIMIT ever applies to stats.
	mock.ExpectQuery(`SELECT reason, COUNT\(\*\) FROM suppressions GROUP BY reason`).
		WillReturnRows(sqlmock.NewRows([]string{"reason", "count"}).
			AddRow("unsubscribe", 120).
			AddRow("bounce", 31).
			AddRow("manual", 2))

	counts, err := repo.CountByReason(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"unsubscribe": 120, "bounce": 31, "manual": 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
