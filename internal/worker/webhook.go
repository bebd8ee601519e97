package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/delivery"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/logger"
	"github.com/ignite/leadflow/internal/service/pipeline"
)

// ReplyHandler routes an inbound reply through classification and
// response drafting. *pipeline.Service satisfies it.
type ReplyHandler interface {
	HandleReply(ctx context.Context, leadID, rawText, messageJobID, providerMessageID string) (*pipeline.ReplyResult, error)
}

// Applier folds normalized provider events back into lead and message
// state. Providers retry webhooks, so every handler here is idempotent:
// re-applying an event is a no-op once the state transition has landed.
type Applier struct {
	db       *sql.DB
	replies  ReplyHandler
	registry pipeline.Registry
}

func NewApplier(db *sql.DB, replies ReplyHandler, registry pipeline.Registry) *Applier {
	return &Applier{db: db, replies: replies, registry: registry}
}

// Apply routes one provider event. Unknown event types are logged and
// dropped; failing the webhook would only make the provider retry them.
func (a *Applier) Apply(ctx context.Context, ev delivery.Event) error {
	switch ev.Type {
	case delivery.EventSent:
		return a.applySent(ctx, ev)
	case delivery.EventOpened:
		return a.applyDelivered(ctx, ev)
	case delivery.EventBounced:
		return a.applyBounced(ctx, ev)
	case delivery.EventUnsubscribed:
		return a.applyUnsubscribed(ctx, ev)
	case delivery.EventReplied:
		return a.applyReplied(ctx, ev)
	default:
		logger.Info("[Webhook] Dropping unhandled event",
			"provider", ev.Provider, "type", string(ev.Type), "email", ev.Email)
		return nil
	}
}

// applySent stamps the earliest still-rendered touch for the provider
// lead as sent. The provider message ID arrives with this event and is
// what later delivery and bounce events correlate on.
func (a *Applier) applySent(ctx context.Context, ev delivery.Event) error {
	job, err := a.nextRenderedJob(ctx, ev)
	if err != nil || job == nil {
		return err
	}

	return a.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE message_jobs
			SET status = 'sent', sent_at = NOW(), provider_message_id = $1
			WHERE job_id = $2 AND status = 'rendered'
		`, ev.MessageID, job.ID)
		if err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil // already applied
		}
		return a.audit(ctx, tx, domain.EventEmailSent, job.LeadID, job.ID, map[string]any{
			"provider":            ev.Provider,
			"provider_message_id": ev.MessageID,
			"touch_number":        job.TouchNumber,
		})
	})
}

func (a *Applier) applyDelivered(ctx context.Context, ev delivery.Event) error {
	job, err := a.jobByProviderMessageID(ctx, ev.MessageID)
	if err != nil || job == nil {
		return err
	}

	return a.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE message_jobs SET status = 'delivered'
			WHERE job_id = $1 AND status = 'sent'
		`, job.ID)
		if err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return a.audit(ctx, tx, domain.EventEmailDelivered, job.LeadID, job.ID, map[string]any{
			"provider":            ev.Provider,
			"provider_message_id": ev.MessageID,
		})
	})
}

// applyBounced marks the message bounced and suppresses the address.
// A hard bounce means the mailbox does not exist; retrying other touches
// would only hurt sender reputation.
func (a *Applier) applyBounced(ctx context.Context, ev delivery.Event) error {
	job, err := a.jobByProviderMessageID(ctx, ev.MessageID)
	if err != nil {
		return err
	}

	leadID := ""
	if job != nil {
		leadID = job.LeadID
		err = a.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE message_jobs SET status = 'bounced'
				WHERE job_id = $1 AND status NOT IN ('bounced')
			`, job.ID)
			if err != nil {
				return fmt.Errorf("mark bounced: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return nil
			}
			return a.audit(ctx, tx, domain.EventEmailBounced, job.LeadID, job.ID, map[string]any{
				"provider": ev.Provider,
				"email":    logger.RedactEmail(ev.Email),
			})
		})
		if err != nil {
			return err
		}
	}

	if ev.Email == "" {
		return nil
	}
	_, err = a.registry.Suppress(ctx, ev.Email, domain.SuppressBounce, leadID, uuid.New().String(), false)
	return err
}

func (a *Applier) applyUnsubscribed(ctx context.Context, ev delivery.Event) error {
	if ev.Email == "" {
		return fmt.Errorf("unsubscribe event without email")
	}
	leadID, err := a.leadIDByEmail(ctx, ev.Email)
	if err != nil {
		return err
	}
	_, err = a.registry.Suppress(ctx, ev.Email, domain.SuppressUnsubscribe, leadID, uuid.New().String(), false)
	return err
}

func (a *Applier) applyReplied(ctx context.Context, ev delivery.Event) error {
	leadID, err := a.leadIDByEmail(ctx, ev.Email)
	if err != nil {
		return err
	}
	if leadID == "" {
		logger.Warn("[Webhook] Reply from unknown address",
			"provider", ev.Provider, "email", logger.RedactEmail(ev.Email))
		return nil
	}

	messageJobID := ""
	if job, err := a.jobByProviderMessageID(ctx, ev.MessageID); err != nil {
		return err
	} else if job != nil {
		messageJobID = job.ID
	}

	_, err = a.replies.HandleReply(ctx, leadID, ev.ReplyText, messageJobID, ev.MessageID)
	return err
}

type webhookJob struct {
	ID          string
	LeadID      string
	TouchNumber int
}

func (a *Applier) nextRenderedJob(ctx context.Context, ev delivery.Event) (*webhookJob, error) {
	var j webhookJob
	err := a.db.QueryRowContext(ctx, `
		SELECT job_id, lead_id, touch_number FROM message_jobs
		WHERE provider_lead_id = $1 AND status = 'rendered'
		ORDER BY touch_number ASC LIMIT 1
	`, ev.LeadID).Scan(&j.ID, &j.LeadID, &j.TouchNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find rendered job: %w", err)
	}
	return &j, nil
}

func (a *Applier) jobByProviderMessageID(ctx context.Context, messageID string) (*webhookJob, error) {
	if messageID == "" {
		return nil, nil
	}
	var j webhookJob
	err := a.db.QueryRowContext(ctx, `
		SELECT job_id, lead_id, touch_number FROM message_jobs
		WHERE provider_message_id = $1
	`, messageID).Scan(&j.ID, &j.LeadID, &j.TouchNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find job by message id: %w", err)
	}
	return &j, nil
}

func (a *Applier) leadIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := a.db.QueryRowContext(ctx,
		`SELECT lead_id FROM leads WHERE contact_email = $1 ORDER BY created_at DESC LIMIT 1`,
		domain.NormalizeEmail(email),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find lead by email: %w", err)
	}
	return id, nil
}

func (a *Applier) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (a *Applier) audit(ctx context.Context, tx *sql.Tx, event domain.AuditEvent, leadID, jobID string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_trail (request_id, event, lead_id, job_id, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New().String(), string(event), leadID, jobID, "webhook", raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}
