// Package postgres implements the persistence contracts against PostgreSQL
// using database/sql and lib/pq. Every method that writes a state change
// together with audit entries does so in a single transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/leadflow/internal/domain"
)

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// withTx runs fn in a transaction, rolling back on error.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// insertAudits appends audit rows inside the caller's transaction. The
// audit trail is append-only; there is no update or delete path anywhere in
// this package.
func insertAudits(ctx context.Context, tx *sql.Tx, audits []*domain.AuditEntry) error {
	for _, a := range audits {
		payload, err := json.Marshal(a.Payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_trail (request_id, event, lead_id, job_id, actor, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, a.RequestID, a.Event, nullStr(a.LeadID), nullStr(a.JobID), a.Actor, payload, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert audit %s: %w", a.Event, err)
		}
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// unmarshalInto decodes a JSONB column into v, treating NULL and empty as
// absent.
func unmarshalInto(data []byte, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func toChannels(raw []string) []domain.Channel {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.Channel, len(raw))
	for i, s := range raw {
		out[i] = domain.Channel(s)
	}
	return out
}
