package pipeline

import (
	"context"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/service/suppression"
)

// Store is the persistence contract for the orchestrator. Methods that take
// audit entries commit them in the same transaction as the state change;
// a state mutation without its audit row must never become visible.
//
// GetLead and GetReply return the package sentinels (ErrLeadNotFound,
// ErrReplyNotFound) when the row does not exist; FindLeadByWebsite,
// GetSignals, and GetLeverage return (nil, nil) instead, since absence is a
// normal outcome for them.
//
// Suppression and disqualification are monotone. Any method that writes
// lead status must refuse to move a dead or disqualified lead to a
// different status, returning ErrLeadTerminal and rolling back the whole
// transaction, so a kill committed by a concurrent actor always stands.
type Store interface {
	// Leads.
	GetLead(ctx context.Context, leadID string) (*domain.Lead, error)
	FindLeadByWebsite(ctx context.Context, websiteURL string) (*domain.Lead, error)
	CreateLeadAndJob(ctx context.Context, lead *domain.Lead, job *domain.Job, audits []*domain.AuditEntry) error
	UpdateLead(ctx context.Context, lead *domain.Lead, audits []*domain.AuditEntry) error

	// Research signals. SaveSignals inserts the lead's single SignalSet and
	// finalizes its scrape job; SaveClassification merges the AI fields,
	// writes the qualification verdict, and moves the lead, all in one
	// transaction.
	GetSignals(ctx context.Context, leadID string) (*domain.SignalSet, error)
	CreateScrapeJob(ctx context.Context, scrape *domain.ScrapeJob, audits []*domain.AuditEntry) error
	SaveSignals(ctx context.Context, signals *domain.SignalSet, scrape *domain.ScrapeJob, audits []*domain.AuditEntry) error
	SaveClassification(ctx context.Context, signals *domain.SignalSet, qual *domain.Qualification, lead *domain.Lead, audits []*domain.AuditEntry) error

	// Leverage rules and the item catalog.
	ActiveRules(ctx context.Context) ([]domain.Rule, error)
	ActiveItems(ctx context.Context) ([]domain.Item, error)
	ItemNames(ctx context.Context, itemIDs []string) ([]string, error)
	GetLeverage(ctx context.Context, leadID string) (*domain.LeverageAssignment, error)
	SaveLeverage(ctx context.Context, assignment *domain.LeverageAssignment, lead *domain.Lead, audits []*domain.AuditEntry) error

	// Outbound message jobs.
	CreateMessageJobs(ctx context.Context, jobs []*domain.MessageJob, lead *domain.Lead, audits []*domain.AuditEntry) error

	// Replies. FinalizeReply persists classification, draft, and lead
	// status together; when the reply carries a draft it counts drafted
	// replies inside the same transaction and sets Approval to pending
	// while the count is within approvalThreshold, approved after. When
	// pausePending is set it also pauses the lead's pending message jobs.
	CreateReply(ctx context.Context, reply *domain.Reply, audits []*domain.AuditEntry) error
	GetReply(ctx context.Context, replyID string) (*domain.Reply, error)
	FinalizeReply(ctx context.Context, reply *domain.Reply, lead *domain.Lead, pausePending bool, approvalThreshold int, audits []*domain.AuditEntry) error
	SetReplyApproval(ctx context.Context, reply *domain.Reply, audits []*domain.AuditEntry) error

	// Objection knowledge base.
	ObjectionTemplates(ctx context.Context) ([]domain.ObjectionTemplate, error)

	// Job queue. ClaimQueuedJobs atomically moves up to limit queued
	// lead_research jobs to running, stamping locked_by; concurrent workers
	// never claim the same job.
	ClaimQueuedJobs(ctx context.Context, limit int, workerID string) ([]*domain.Job, error)
	CompleteJob(ctx context.Context, job *domain.Job, audits []*domain.AuditEntry) error

	// Stats aggregates lead counts for the dashboard.
	Stats(ctx context.Context) (*domain.PipelineStats, error)
}

// Registry is the opt-out registry contract the orchestrator checks at its
// three gates. Satisfied by suppression.Service.
type Registry interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
	Suppress(ctx context.Context, email string, reason domain.SuppressionReason, sourceLeadID, requestID string, suppressDomain bool) (suppression.Result, error)
}
