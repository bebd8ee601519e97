package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/leadflow/internal/delivery"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/pkg/httputil"
	"github.com/ignite/leadflow/internal/service/pipeline"
	"github.com/ignite/leadflow/internal/service/suppression"
)

// PipelineService is the slice of the pipeline the API exposes.
// *pipeline.Service satisfies it.
type PipelineService interface {
	Intake(ctx context.Context, req domain.IntakeRequest, actor string) (*pipeline.IntakeResult, error)
	Lead(ctx context.Context, id string) (*domain.Lead, error)
	HandleReply(ctx context.Context, leadID, rawText, messageJobID, providerMessageID string) (*pipeline.ReplyResult, error)
	ApproveReply(ctx context.Context, replyID string, approve bool, actor string) (*domain.Reply, error)
	MarkBooked(ctx context.Context, leadID string, outcome domain.Outcome, notes, actor string) (*domain.Lead, error)
	Stats(ctx context.Context) (*domain.PipelineStats, error)
}

// SuppressionService is the registry surface the API exposes.
// *suppression.Service satisfies it.
type SuppressionService interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
	Suppress(ctx context.Context, email string, reason domain.SuppressionReason, sourceLeadID, requestID string, suppressDomain bool) (suppression.Result, error)
	List(ctx context.Context, filter suppression.ListFilter) ([]domain.Suppression, int, error)
	GetStats(ctx context.Context) (*suppression.Stats, error)
}

// EventApplier folds a parsed provider event into lead state.
// *worker.Applier satisfies it.
type EventApplier interface {
	Apply(ctx context.Context, ev delivery.Event) error
}

// Handlers holds the HTTP handlers and their dependencies. The db handle
// is used only for provider correlation lookups when sending an approved
// response; all state transitions go through the services.
type Handlers struct {
	pipeline      PipelineService
	suppressions  SuppressionService
	provider      delivery.Provider // nil when sending is not configured
	applier       EventApplier
	db            *sql.DB
	webhookSecret string
	startTime     time.Time
}

// NewHandlers creates the handler set. provider and applier may be nil
// when the API runs without an outbound sending configuration.
func NewHandlers(svc PipelineService, sup SuppressionService, provider delivery.Provider, applier EventApplier, db *sql.DB, webhookSecret string) *Handlers {
	return &Handlers{
		pipeline:      svc,
		suppressions:  sup,
		provider:      provider,
		applier:       applier,
		db:            db,
		webhookSecret: webhookSecret,
		startTime:     time.Now(),
	}
}

// HealthCheck reports process and database health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status = "degraded"
			checks["database"] = "down"
		} else {
			checks["database"] = "up"
		}
	}
	httputil.OK(w, map[string]any{
		"status": status,
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
		"checks": checks,
	})
}

// IntakeLead creates a lead and queues its research job.
func (h *Handlers) IntakeLead(w http.ResponseWriter, r *http.Request) {
	var req domain.IntakeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	result, err := h.pipeline.Intake(r.Context(), req, actor(r))
	switch {
	case errors.Is(err, pipeline.ErrInvalidIntake):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}

	if result.Suppressed {
		httputil.JSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	if result.Dedupe {
		httputil.OK(w, result)
		return
	}
	httputil.Created(w, result)
}

// GetLead returns one lead.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.pipeline.Lead(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, pipeline.ErrLeadNotFound):
		httputil.NotFound(w, "lead not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, lead)
}

// MarkBooked records a booked meeting on a lead.
func (h *Handlers) MarkBooked(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
		Notes   string `json:"notes"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}

	outcome := domain.Outcome(req.Outcome)
	switch outcome {
	case domain.OutcomeNotFit, domain.OutcomeFollowUp, domain.OutcomeDealInProgress, domain.OutcomeClosed:
	default:
		httputil.BadRequest(w, "unknown outcome: "+req.Outcome)
		return
	}

	lead, err := h.pipeline.MarkBooked(r.Context(), chi.URLParam(r, "id"), outcome, req.Notes, actor(r))
	switch {
	case errors.Is(err, pipeline.ErrLeadNotFound):
		httputil.NotFound(w, "lead not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, lead)
}

// PipelineStats returns funnel counts for the dashboard.
func (h *Handlers) PipelineStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pipeline.Stats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// ListSuppressions returns a page of registry entries.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	filter := suppression.ListFilter{
		Reason: r.URL.Query().Get("reason"),
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	entries, total, err := h.suppressions.List(r.Context(), filter)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"entries": entries, "total": total})
}

// AddSuppression manually adds an address to the registry.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string `json:"email"`
		Reason         string `json:"reason"`
		SuppressDomain bool   `json:"suppress_domain"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	reason := domain.SuppressionReason(req.Reason)
	if reason == "" {
		reason = domain.SuppressManual
	}

	result, err := h.suppressions.Suppress(r.Context(), req.Email, reason, "", pipeline.NewRequestID(), req.SuppressDomain)
	switch {
	case errors.Is(err, suppression.ErrEmptyEmail):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, result)
}

// CheckSuppression reports whether an address would be blocked.
func (h *Handlers) CheckSuppression(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	suppressed, err := h.suppressions.IsSuppressed(r.Context(), email)
	switch {
	case errors.Is(err, suppression.ErrEmptyEmail):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"email": email, "suppressed": suppressed})
}

// SuppressionStats returns registry totals by reason.
func (h *Handlers) SuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.suppressions.GetStats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
