package api

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/httputil"
	"github.com/ignite/leadflow/internal/pkg/logger"
	"github.com/ignite/leadflow/internal/service/pipeline"
)

// SubmitReply records an inbound reply by hand, for replies that arrive
// outside the provider (forwarded emails, LinkedIn, calls).
func (h *Handlers) SubmitReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadID       string `json:"lead_id"`
		RawText      string `json:"raw_text"`
		MessageJobID string `json:"message_job_id"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.LeadID == "" || req.RawText == "" {
		httputil.BadRequest(w, "lead_id and raw_text are required")
		return
	}

	result, err := h.pipeline.HandleReply(r.Context(), req.LeadID, req.RawText, req.MessageJobID, "")
	switch {
	case errors.Is(err, pipeline.ErrLeadNotFound):
		httputil.NotFound(w, "lead not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// ApproveReply approves a drafted response and sends it on the original
// thread when a provider is configured.
func (h *Handlers) ApproveReply(w http.ResponseWriter, r *http.Request) {
	h.decideReply(w, r, true)
}

// RejectReply discards a drafted response.
func (h *Handlers) RejectReply(w http.ResponseWriter, r *http.Request) {
	h.decideReply(w, r, false)
}

func (h *Handlers) decideReply(w http.ResponseWriter, r *http.Request, approve bool) {
	reply, err := h.pipeline.ApproveReply(r.Context(), chi.URLParam(r, "id"), approve, actor(r))
	switch {
	case errors.Is(err, pipeline.ErrReplyNotFound):
		httputil.NotFound(w, "reply not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}

	sent := false
	if approve && reply.DraftResponse != "" && h.provider != nil {
		if err := h.sendApprovedResponse(r.Context(), reply); err != nil {
			logger.Error("[API] Approved response send failed",
				"reply_id", reply.ID, "lead_id", reply.LeadID, "error", err.Error())
		} else {
			sent = true
		}
	}

	httputil.OK(w, map[string]any{"reply": reply, "response_sent": sent})
}

// sendApprovedResponse sends the draft on the existing provider thread and
// marks the reply sent with its audit row in one transaction.
func (h *Handlers) sendApprovedResponse(ctx context.Context, reply *domain.Reply) error {
	var campaignID, providerLeadID, subject string
	err := h.db.QueryRowContext(ctx, `
		SELECT provider_campaign_id, provider_lead_id, COALESCE(subject, '')
		FROM message_jobs
		WHERE lead_id = $1 AND provider IS NOT NULL
		ORDER BY touch_number ASC LIMIT 1
	`, reply.LeadID).Scan(&campaignID, &providerLeadID, &subject)
	if err == sql.ErrNoRows {
		return fmt.Errorf("lead %s has no provider correlation", reply.LeadID)
	}
	if err != nil {
		return fmt.Errorf("load provider correlation: %w", err)
	}

	messageID, err := h.provider.SendReply(ctx, campaignID, providerLeadID, "Re: "+subject, reply.DraftResponse)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE replies SET response_sent = TRUE WHERE reply_id = $1`, reply.ID,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("mark response sent: %w", err)
	}
	payload, _ := json.Marshal(map[string]any{
		"reply_id":            reply.ID,
		"provider_message_id": messageID,
	})
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_trail (request_id, event, lead_id, job_id, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New().String(), string(domain.EventReplyResponseSent), reply.LeadID, "", "api", payload, time.Now().UTC()); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert audit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	reply.ResponseSent = true
	return nil
}

// ProviderWebhook receives raw provider events, verifies the shared
// secret, normalizes the payload, and applies it.
func (h *Handlers) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil || h.applier == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "no delivery provider configured")
		return
	}
	if chi.URLParam(r, "provider") != h.provider.Name() {
		httputil.NotFound(w, "unknown provider")
		return
	}
	if h.webhookSecret != "" {
		got := r.Header.Get("X-Webhook-Secret")
		if got == "" {
			got = r.URL.Query().Get("secret")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			httputil.Error(w, http.StatusUnauthorized, "invalid webhook secret")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}

	event, err := h.provider.ParseWebhook(body)
	if err != nil {
		httputil.BadRequest(w, "unparseable webhook: "+err.Error())
		return
	}

	if err := h.applier.Apply(r.Context(), event); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "ok", "event": string(event.Type)})
}
