package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/leadflow/internal/delivery"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/distlock"
)

// Dispatcher hands rendered sequences to the delivery provider. Pushing a
// sequence twice would double-send, so a distributed lock keeps one
// dispatcher active across the fleet; within the lock, the provider stamp
// on the jobs marks a sequence as handed off.
type Dispatcher struct {
	db          *sql.DB
	provider    delivery.Provider
	limiter     *DomainLimiter
	campaignKey string
	batchSize   int

	lock distlock.DistLock

	// Resolved once per process; the provider campaign never changes.
	providerCampaignID string
}

// NewDispatcher creates a dispatcher. redisClient may be nil; the lock then
// falls back to a Postgres advisory lock.
func NewDispatcher(db *sql.DB, redisClient *redis.Client, provider delivery.Provider, limiter *DomainLimiter, campaignKey string) *Dispatcher {
	return &Dispatcher{
		db:          db,
		provider:    provider,
		limiter:     limiter,
		campaignKey: campaignKey,
		batchSize:   20,
		lock:        distlock.NewLock(redisClient, db, "leadflow:dispatcher", 2*time.Minute),
	}
}

// Dispatch pushes every due, unstamped sequence to the provider. Returns
// the number of sequences handed off.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	acquired, err := d.lock.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("dispatcher lock: %w", err)
	}
	if !acquired {
		return 0, nil
	}
	defer d.lock.Release(ctx)

	due, err := d.dueSequences(ctx)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, seq := range due {
		if ctx.Err() != nil {
			break
		}
		handed, err := d.dispatchOne(ctx, seq)
		if err != nil {
			log.Printf("[Dispatcher] Sequence %s for %s failed: %v", seq.SequenceID, seq.LeadID, err)
			continue
		}
		if handed {
			dispatched++
		}
	}
	return dispatched, nil
}

type dueSequence struct {
	SequenceID string
	LeadID     string
	Email      string
}

func (d *Dispatcher) dueSequences(ctx context.Context) ([]dueSequence, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT m.sequence_id, m.lead_id, l.contact_email
		FROM message_jobs m
		JOIN leads l ON l.lead_id = m.lead_id
		WHERE m.touch_number = 1
		  AND m.status = 'rendered'
		  AND m.provider IS NULL
		  AND m.scheduled_at <= NOW()
		  AND l.status NOT IN ('dead','disqualified')
		  AND NOT EXISTS (
		      SELECT 1 FROM suppressions s
		      WHERE s.email = l.contact_email
		         OR (s.domain <> '' AND s.domain = split_part(l.contact_email, '@', 2))
		  )
		ORDER BY m.scheduled_at ASC
		LIMIT $1
	`, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("load due sequences: %w", err)
	}
	defer rows.Close()

	var out []dueSequence
	for rows.Next() {
		var s dueSequence
		if err := rows.Scan(&s.SequenceID, &s.LeadID, &s.Email); err != nil {
			return nil, fmt.Errorf("scan due sequence: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *Dispatcher) dispatchOne(ctx context.Context, seq dueSequence) (bool, error) {
	if !d.limiter.Allow(ctx, domain.EmailDomain(seq.Email)) {
		// Not an error; the sequence stays unstamped and retries next tick.
		return false, nil
	}

	campaignID, err := d.campaignID(ctx)
	if err != nil {
		return false, err
	}

	lead := &domain.Lead{ID: seq.LeadID, ContactEmail: seq.Email}
	if err := d.db.QueryRowContext(ctx,
		`SELECT company_name FROM leads WHERE lead_id = $1`, seq.LeadID,
	).Scan(&lead.CompanyName); err != nil {
		return false, fmt.Errorf("load lead: %w", err)
	}

	jobs, err := d.sequenceJobs(ctx, seq.SequenceID)
	if err != nil {
		return false, err
	}

	providerLeadID, err := d.provider.PushLead(ctx, campaignID, lead, seq.SequenceID)
	if err != nil {
		return false, fmt.Errorf("push lead: %w", err)
	}
	if err := d.provider.StartSequence(ctx, campaignID, providerLeadID, delivery.Steps(jobs)); err != nil {
		return false, fmt.Errorf("start sequence: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		UPDATE message_jobs
		SET provider = $1, provider_campaign_id = $2, provider_lead_id = $3
		WHERE sequence_id = $4
	`, d.provider.Name(), campaignID, providerLeadID, seq.SequenceID)
	if err != nil {
		return false, fmt.Errorf("stamp sequence: %w", err)
	}

	log.Printf("[Dispatcher] Handed sequence %s (%s) to %s", seq.SequenceID, seq.LeadID, d.provider.Name())
	return true, nil
}

func (d *Dispatcher) campaignID(ctx context.Context) (string, error) {
	if d.providerCampaignID != "" {
		return d.providerCampaignID, nil
	}
	id, err := d.provider.EnsureCampaign(ctx, d.campaignKey)
	if err != nil {
		return "", fmt.Errorf("ensure campaign: %w", err)
	}
	d.providerCampaignID = id
	return id, nil
}

func (d *Dispatcher) sequenceJobs(ctx context.Context, sequenceID string) ([]*domain.MessageJob, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT job_id, touch_number, subject, body, status, scheduled_at
		FROM message_jobs
		WHERE sequence_id = $1
		ORDER BY touch_number ASC
	`, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("load sequence jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.MessageJob
	for rows.Next() {
		j := &domain.MessageJob{SequenceID: sequenceID}
		if err := rows.Scan(&j.ID, &j.TouchNumber, &j.Subject, &j.Body, &j.Status, &j.ScheduledAt); err != nil {
			return nil, fmt.Errorf("scan sequence job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
