package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/engine/catalog"
	"github.com/ignite/leadflow/internal/engine/leverage"
	"github.com/ignite/leadflow/internal/engine/lint"
	"github.com/ignite/leadflow/internal/engine/objection"
	"github.com/ignite/leadflow/internal/enrichment"
)

// Options carries the policy knobs the orchestrator needs at run time.
type Options struct {
	ItemCap           int
	ApprovalThreshold int
	ResearchBudgetMS  int
	ResearchMaxPages  int
	TouchDelayHours   map[int]int
	WorkerID          string
	ClaimBatchSize    int
}

// Service is the lifecycle orchestrator. One instance serves both the HTTP
// handlers and the polling worker; it is safe for concurrent use.
type Service struct {
	store           Store
	registry        Registry
	researcher      enrichment.Researcher
	leadClassifier  enrichment.LeadClassifier
	replyClassifier enrichment.ReplyClassifier
	generator       enrichment.MessageGenerator
	linter          *lint.Linter
	responder       *objection.Responder
	opts            Options
}

// NewService wires the orchestrator.
func NewService(
	store Store,
	registry Registry,
	researcher enrichment.Researcher,
	leadClassifier enrichment.LeadClassifier,
	replyClassifier enrichment.ReplyClassifier,
	generator enrichment.MessageGenerator,
	linter *lint.Linter,
	responder *objection.Responder,
	opts Options,
) *Service {
	if opts.ClaimBatchSize == 0 {
		opts.ClaimBatchSize = 10
	}
	return &Service{
		store:           store,
		registry:        registry,
		researcher:      researcher,
		leadClassifier:  leadClassifier,
		replyClassifier: replyClassifier,
		generator:       generator,
		linter:          linter,
		responder:       responder,
		opts:            opts,
	}
}

func newID(prefix string) string {
	return prefix + "-" + fmt.Sprintf("%x", [16]byte(uuid.New()))[:12]
}

// NewRequestID mints a correlation id for one logical operation. Every audit
// entry written during the operation carries it.
func NewRequestID() string {
	return newID("req")
}

// IntakeResult reports what Intake did.
type IntakeResult struct {
	Suppressed bool   `json:"suppressed"`
	Dedupe     bool   `json:"dedupe"`
	LeadID     string `json:"lead_id,omitempty"`
	JobID      string `json:"job_id,omitempty"`
	RequestID  string `json:"request_id"`
}

// Intake validates and creates a lead plus its research job. Gate 1: a
// suppressed address is rejected before any row is written. Intake is
// idempotent on website URL; a duplicate returns the existing lead.
func (s *Service) Intake(ctx context.Context, req domain.IntakeRequest, actor string) (*IntakeResult, error) {
	requestID := NewRequestID()

	if strings.TrimSpace(req.CompanyName) == "" || strings.TrimSpace(req.ContactEmail) == "" {
		return nil, ErrInvalidIntake
	}
	email := domain.NormalizeEmail(req.ContactEmail)

	blocked, err := s.registry.IsSuppressed(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("suppression check: %w", err)
	}
	if blocked {
		log.Printf("[Pipeline] Intake rejected, suppressed address: %s", email)
		return &IntakeResult{Suppressed: true, RequestID: requestID}, nil
	}

	if req.WebsiteURL != "" {
		existing, err := s.store.FindLeadByWebsite(ctx, req.WebsiteURL)
		if err != nil {
			return nil, fmt.Errorf("dedupe lookup: %w", err)
		}
		if existing != nil {
			return &IntakeResult{Dedupe: true, LeadID: existing.ID, RequestID: requestID}, nil
		}
	}

	now := time.Now().UTC()
	lead := &domain.Lead{
		ID:           newID("lead"),
		CompanyName:  req.CompanyName,
		WebsiteURL:   req.WebsiteURL,
		ContactEmail: email,
		Channel:      req.Channel,
		Niche:        req.Niche,
		Location:     req.Location,
		Notes:        req.Notes,
		Status:       domain.LeadNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	job := &domain.Job{
		ID:        newID("job"),
		Type:      domain.JobLeadResearch,
		LeadID:    lead.ID,
		Status:    domain.JobQueued,
		CreatedAt: now,
	}

	audits := []*domain.AuditEntry{
		s.audit(requestID, domain.EventLeadCreated, lead.ID, "", actor, map[string]any{
			"company_name": req.CompanyName,
			"email":        email,
		}),
		s.audit(requestID, domain.EventJobCreated, lead.ID, job.ID, actor, map[string]any{
			"job_type": string(job.Type),
		}),
	}
	if err := s.store.CreateLeadAndJob(ctx, lead, job, audits); err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}

	log.Printf("[Pipeline] Lead created: %s (%s), job %s", lead.ID, lead.CompanyName, job.ID)
	return &IntakeResult{LeadID: lead.ID, JobID: job.ID, RequestID: requestID}, nil
}

// Research runs the storefront scrape for a lead. Gate 2: an address
// suppressed after intake disqualifies the lead here instead of scraping.
// Exactly one SignalSet is ever created per lead; a failed scrape records
// the failure and stores an empty set so classification still runs on safe
// defaults.
func (s *Service) Research(ctx context.Context, lead *domain.Lead, job *domain.Job, requestID string) error {
	blocked, err := s.registry.IsSuppressed(ctx, lead.ContactEmail)
	if err != nil {
		return fmt.Errorf("suppression check: %w", err)
	}
	if blocked {
		lead.Status = domain.LeadDisqualified
		lead.DisqualifyReason = domain.DisqualifySuppressed
		audits := []*domain.AuditEntry{
			s.audit(requestID, domain.EventLeadSuppressed, lead.ID, job.ID, "worker", nil),
		}
		return s.store.UpdateLead(ctx, lead, audits)
	}

	scrape := &domain.ScrapeJob{
		ID:       newID("scrape"),
		LeadID:   lead.ID,
		JobID:    job.ID,
		Status:   "running",
		BudgetMS: s.opts.ResearchBudgetMS,
		MaxPages: s.opts.ResearchMaxPages,
	}
	requested := []*domain.AuditEntry{
		s.audit(requestID, domain.EventScrapeRequested, lead.ID, job.ID, "worker", map[string]any{
			"budget_ms": scrape.BudgetMS,
			"max_pages": scrape.MaxPages,
		}),
	}
	if err := s.store.CreateScrapeJob(ctx, scrape, requested); err != nil {
		return fmt.Errorf("create scrape job: %w", err)
	}

	var signals *domain.SignalSet
	if lead.WebsiteURL != "" {
		signals, err = s.researcher.Research(ctx, lead, *scrape)
	}
	if err != nil || signals == nil {
		if err != nil {
			scrape.Error = err.Error()
			log.Printf("[Pipeline] Scrape failed for %s: %v", lead.ID, err)
		}
		scrape.Status = "failed"
		signals = &domain.SignalSet{LeadID: lead.ID}
		failed := []*domain.AuditEntry{
			s.audit(requestID, domain.EventScrapeFailed, lead.ID, job.ID, "worker", map[string]any{
				"error": scrape.Error,
			}),
		}
		return s.store.SaveSignals(ctx, signals, scrape, failed)
	}

	scrape.Status = "success"
	scrape.PagesFetched = 1 + len(signals.SampleProducts)
	completed := []*domain.AuditEntry{
		s.audit(requestID, domain.EventScrapeCompleted, lead.ID, job.ID, "worker", map[string]any{
			"pages_fetched": scrape.PagesFetched,
			"artifact_hash": signals.ArtifactHash,
		}),
	}
	return s.store.SaveSignals(ctx, signals, scrape, completed)
}

// ClassifyAndQualify merges the AI classification into the lead's signals
// and applies the qualification gates. A disqualified lead short-circuits
// the rest of the pipeline.
func (s *Service) ClassifyAndQualify(ctx context.Context, lead *domain.Lead, job *domain.Job, requestID string) (bool, error) {
	signals, err := s.store.GetSignals(ctx, lead.ID)
	if err != nil {
		return false, err
	}
	if signals == nil {
		return false, ErrNoSignals
	}

	classification, callID, err := s.leadClassifier.ClassifyLead(ctx, signals, lead.CompanyName, lead.Niche)
	if err != nil {
		return false, fmt.Errorf("classify lead: %w", err)
	}

	signals.BrandList = classification.BrandList
	signals.PriceTier = classification.PriceTier
	signals.ScaleScore = classification.ScaleScore
	signals.MAPBehaviorScore = classification.MAPBehaviorScore
	signals.StoreCount = classification.StoreCount
	if classification.PrivateLabelRatio > 0 {
		signals.PrivateLabelRatio = classification.PrivateLabelRatio
	}

	verdict := leverage.Qualify(signals)
	qual := &domain.Qualification{
		LeadID:           lead.ID,
		Qualifies:        verdict.Qualified,
		DisqualifyReason: verdict.Reason,
		CallID:           callID,
		SchemaVersion:    config.SchemaVersion,
	}

	audits := []*domain.AuditEntry{
		s.audit(requestID, domain.EventLeadClassified, lead.ID, job.ID, "worker", map[string]any{
			"call_id":   callID,
			"qualifies": verdict.Qualified,
		}),
	}
	if verdict.Qualified {
		lead.Status = domain.LeadResearched
		audits = append(audits, s.audit(requestID, domain.EventLeadQualified, lead.ID, job.ID, "worker", nil))
	} else {
		lead.Status = domain.LeadDisqualified
		lead.DisqualifyReason = verdict.Reason
		audits = append(audits, s.audit(requestID, domain.EventLeadDisqualified, lead.ID, job.ID, "worker", map[string]any{
			"reason": string(verdict.Reason),
		}))
	}

	if err := s.store.SaveClassification(ctx, signals, qual, lead, audits); err != nil {
		return false, fmt.Errorf("save classification: %w", err)
	}
	return verdict.Qualified, nil
}

// AssignLeverage evaluates the rule matrix and matches catalog items for a
// qualified lead, then moves it to qualified.
func (s *Service) AssignLeverage(ctx context.Context, lead *domain.Lead, requestID string) (*domain.LeverageAssignment, error) {
	signals, err := s.store.GetSignals(ctx, lead.ID)
	if err != nil {
		return nil, err
	}
	if signals == nil {
		return nil, ErrNoSignals
	}

	rules, err := s.store.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	match := leverage.Evaluate(rules, lead, signals, s.opts.ItemCap)

	items, err := s.store.ActiveItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	// A rule's item query can widen the category overlap the matcher scores
	// against.
	matchSignals := signals
	itemCap := s.opts.ItemCap
	if q := match.ItemQuery; q != nil {
		if q.Cap > 0 {
			itemCap = q.Cap
		}
		if len(q.Categories) > 0 {
			widened := *signals
			widened.Categories = append(append([]string{}, signals.Categories...), q.Categories...)
			matchSignals = &widened
		}
	}
	selection := catalog.Select(items, lead, matchSignals, itemCap)

	now := time.Now().UTC()
	assignment := &domain.LeverageAssignment{
		LeadID:         lead.ID,
		PrimaryAngle:   match.PrimaryAngle,
		SecondaryAngle: match.SecondaryAngle,
		MatchedRuleID:  match.RuleID,
		MatchReason:    match.Reason,
		ItemQuery:      match.ItemQuery,
		SelectedItems:  selection.ItemIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	lead.Status = domain.LeadQualified

	leveragePayload := map[string]any{
		"primary_angle": string(match.PrimaryAngle),
		"match_reason":  match.Reason,
	}
	if match.RuleID != nil {
		leveragePayload["rule_id"] = *match.RuleID
	}
	audits := []*domain.AuditEntry{
		s.audit(requestID, domain.EventLeverageAssigned, lead.ID, "", "worker", leveragePayload),
		s.audit(requestID, domain.EventItemMatched, lead.ID, "", "worker", map[string]any{
			"selected_item_ids": selection.ItemIDs,
			"pool_size":         selection.CandidateSize,
			"cap":               selection.Cap,
		}),
	}
	if err := s.store.SaveLeverage(ctx, assignment, lead, audits); err != nil {
		return nil, fmt.Errorf("save leverage: %w", err)
	}

	log.Printf("[Pipeline] Leverage: %s -> %s (items: %d)", lead.CompanyName, match.PrimaryAngle, len(selection.ItemIDs))
	return assignment, nil
}

// CreateSequence drafts the outbound touch sequence for a qualified lead.
// The variable lint runs once up front and aborts the whole batch on
// failure; a per-message lint failure marks only that touch failed. On
// success the lead moves to contacted.
func (s *Service) CreateSequence(ctx context.Context, lead *domain.Lead, requestID string) (string, error) {
	assignment, err := s.store.GetLeverage(ctx, lead.ID)
	if err != nil {
		return "", err
	}
	if assignment == nil {
		return "", ErrNoLeverage
	}

	itemNames, err := s.store.ItemNames(ctx, assignment.SelectedItems)
	if err != nil {
		return "", fmt.Errorf("load item names: %w", err)
	}

	varsResult := s.linter.CheckVariables(lint.Variables{
		CompanyName: lead.CompanyName,
		ItemNames:   itemNames,
	})
	if !varsResult.OK {
		return "", fmt.Errorf("%w: %v", ErrLintFailed, varsResult.Violations)
	}

	signals, err := s.store.GetSignals(ctx, lead.ID)
	if err != nil {
		return "", err
	}
	var excerpt string
	var categories []string
	if signals != nil {
		excerpt = signals.SiteExcerpt
		categories = signals.Categories
	}

	sequenceID := newID("seq")
	now := time.Now().UTC()
	jobs := make([]*domain.MessageJob, 0, domain.SequenceLength)
	var audits []*domain.AuditEntry

	for touch := 1; touch <= domain.SequenceLength; touch++ {
		msg, err := s.generator.GenerateMessage(ctx, enrichment.MessageRequest{
			CompanyName: lead.CompanyName,
			Niche:       lead.Niche,
			Angle:       assignment.PrimaryAngle,
			TouchNumber: touch,
			BrandNames:  itemNames,
			SiteExcerpt: excerpt,
			Categories:  categories,
		})
		if err != nil {
			return "", fmt.Errorf("generate touch %d: %w", touch, err)
		}

		job := &domain.MessageJob{
			ID:          newID("msg"),
			LeadID:      lead.ID,
			SequenceID:  sequenceID,
			TouchNumber: touch,
			Type:        domain.MessageTypeSequence,
			Subject:     msg.Subject,
			Body:        msg.Body,
			Status:      domain.MessageRendered,
			ScheduledAt: now.Add(time.Duration(s.opts.TouchDelayHours[touch]) * time.Hour),
			CreatedAt:   now,
		}

		bodyLint := s.linter.Check(msg.Subject, msg.Body, len(itemNames))
		if !bodyLint.OK {
			job.Status = domain.MessageFailed
			job.Error = fmt.Sprintf("lint: %v", bodyLint.Violations)
			log.Printf("[Pipeline] Touch %d failed lint for %s: %v", touch, lead.ID, bodyLint.Violations)
		}

		jobs = append(jobs, job)
		audits = append(audits, s.audit(requestID, domain.EventEmailRendered, lead.ID, job.ID, "worker", map[string]any{
			"touch":       touch,
			"sequence_id": sequenceID,
			"lint_ok":     bodyLint.OK,
		}))
	}

	lead.Status = domain.LeadContacted
	if err := s.store.CreateMessageJobs(ctx, jobs, lead, audits); err != nil {
		// A suppression can commit between leverage assignment and here;
		// the killed lead keeps its status and gets no sequence.
		if errors.Is(err, ErrLeadTerminal) {
			log.Printf("[Pipeline] Lead %s went terminal before sequencing, no jobs created", lead.ID)
			return "", nil
		}
		return "", fmt.Errorf("create sequence: %w", err)
	}

	log.Printf("[Pipeline] Sequence %s created for %s", sequenceID, lead.CompanyName)
	return sequenceID, nil
}

// ReplyResult reports how an inbound reply was handled.
type ReplyResult struct {
	ReplyID        string                     `json:"reply_id"`
	Classification domain.ReplyClassification `json:"classification"`
	Action         domain.ReplyAction         `json:"action"`
	DraftResponse  string                     `json:"draft_response,omitempty"`
	NeedsApproval  bool                       `json:"needs_approval"`
	RequestID      string                     `json:"request_id"`
}

// HandleReply processes one inbound reply: the reply_received audit lands
// first, then gate 3 scans for an opt-out before any classification, then
// the classifier routes the closed action set. Interested and objection
// replies get a drafted response subject to the first-N approval policy and
// pause the lead's remaining sequence.
func (s *Service) HandleReply(ctx context.Context, leadID, rawText, messageJobID, providerMessageID string) (*ReplyResult, error) {
	requestID := NewRequestID()

	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	reply := &domain.Reply{
		ID:                newID("reply"),
		LeadID:            leadID,
		MessageJobID:      messageJobID,
		RawText:           rawText,
		ProviderMessageID: providerMessageID,
		CreatedAt:         time.Now().UTC(),
	}
	preview := rawText
	if len(preview) > 100 {
		preview = preview[:100]
	}
	received := []*domain.AuditEntry{
		s.audit(requestID, domain.EventReplyReceived, leadID, "", "webhook", map[string]any{
			"reply_id":     reply.ID,
			"text_preview": preview,
		}),
	}
	if err := s.store.CreateReply(ctx, reply, received); err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}

	// A terminal lead never re-enters the pipeline: provider webhook
	// retries for suppressed or closed leads are recorded and handed off,
	// never classified.
	if lead.Status.IsTerminal() {
		log.Printf("[Pipeline] Reply %s for %s lead %s routed to handoff", reply.ID, lead.Status, leadID)
		reply.Action = domain.ActionHandoff
		if err := s.store.FinalizeReply(ctx, reply, lead, false, s.opts.ApprovalThreshold, nil); err != nil {
			return nil, fmt.Errorf("finalize reply: %w", err)
		}
		return &ReplyResult{
			ReplyID:   reply.ID,
			Action:    reply.Action,
			RequestID: requestID,
		}, nil
	}

	// Gate 3: opt-out wins over everything the classifier might say.
	if enrichment.ContainsOptOut(rawText) {
		if _, err := s.registry.Suppress(ctx, lead.ContactEmail, domain.SuppressUnsubscribe, leadID, requestID, true); err != nil {
			return nil, fmt.Errorf("suppress: %w", err)
		}
		reply.Classification = domain.ReplyUnsubscribe
		reply.Action = domain.ActionSuppress
		lead.Status = domain.LeadDead
		if err := s.store.FinalizeReply(ctx, reply, lead, false, s.opts.ApprovalThreshold, nil); err != nil {
			return nil, fmt.Errorf("finalize reply: %w", err)
		}
		return &ReplyResult{
			ReplyID:        reply.ID,
			Classification: reply.Classification,
			Action:         reply.Action,
			RequestID:      requestID,
		}, nil
	}

	assignment, err := s.store.GetLeverage(ctx, leadID)
	if err != nil {
		return nil, err
	}
	angle := "unknown"
	if assignment != nil {
		angle = string(assignment.PrimaryAngle)
	}
	leadContext := fmt.Sprintf("Company: %s, Niche: %s, Angle: %s", lead.CompanyName, lead.Niche, angle)

	verdict, callID, err := s.replyClassifier.ClassifyReply(ctx, rawText, leadContext)
	if err != nil {
		return nil, fmt.Errorf("classify reply: %w", err)
	}

	reply.Classification = verdict.Classification
	reply.ObjectionType = verdict.ObjectionType
	reply.Action = verdict.Action
	reply.InterestLevel = verdict.InterestLevel
	reply.CallID = callID

	audits := []*domain.AuditEntry{
		s.audit(requestID, domain.EventReplyClassified, leadID, "", "worker", map[string]any{
			"reply_id":       reply.ID,
			"classification": string(verdict.Classification),
			"action":         string(verdict.Action),
		}),
	}

	pausePending := false
	switch verdict.Classification {
	case domain.ReplyInterested:
		lead.Status = domain.LeadInterested
		reply.DraftResponse = s.responder.Interested(lead.CompanyName).Body
		pausePending = true
	case domain.ReplyObjection:
		lead.Status = domain.LeadObjection
		templates, terr := s.store.ObjectionTemplates(ctx)
		if terr != nil {
			return nil, fmt.Errorf("load objection templates: %w", terr)
		}
		objectionType := verdict.ObjectionType
		if objectionType == "" {
			objectionType = objection.MatchType(rawText, templates)
		}
		reply.ObjectionType = objectionType
		var itemNames []string
		if assignment != nil {
			itemNames, _ = s.store.ItemNames(ctx, assignment.SelectedItems)
		}
		reply.DraftResponse = s.responder.Handle(objectionType, templates, lead.CompanyName, itemNames).Body
		pausePending = true
	case domain.ReplyNotInterested:
		lead.Status = domain.LeadDead
	default:
		reply.Action = domain.ActionHandoff
	}

	if err := s.store.FinalizeReply(ctx, reply, lead, pausePending, s.opts.ApprovalThreshold, audits); err != nil {
		return nil, fmt.Errorf("finalize reply: %w", err)
	}

	return &ReplyResult{
		ReplyID:        reply.ID,
		Classification: reply.Classification,
		Action:         reply.Action,
		DraftResponse:  reply.DraftResponse,
		NeedsApproval:  reply.DraftResponse != "" && reply.Approval == domain.ApprovalPending,
		RequestID:      requestID,
	}, nil
}

// Lead returns one lead by id.
func (s *Service) Lead(ctx context.Context, id string) (*domain.Lead, error) {
	return s.store.GetLead(ctx, id)
}

// ApproveReply records a human decision on a drafted response.
func (s *Service) ApproveReply(ctx context.Context, replyID string, approve bool, actor string) (*domain.Reply, error) {
	reply, err := s.store.GetReply(ctx, replyID)
	if err != nil {
		return nil, err
	}
	if approve {
		reply.Approval = domain.ApprovalApproved
	} else {
		reply.Approval = domain.ApprovalRejected
	}
	audits := []*domain.AuditEntry{
		s.audit(NewRequestID(), domain.EventReplyReviewed, reply.LeadID, "", actor, map[string]any{
			"reply_id": reply.ID,
			"approved": approve,
		}),
	}
	if err := s.store.SetReplyApproval(ctx, reply, audits); err != nil {
		return nil, err
	}
	return reply, nil
}

// MarkBooked records a booked meeting and its outcome on a lead.
func (s *Service) MarkBooked(ctx context.Context, leadID string, outcome domain.Outcome, notes, actor string) (*domain.Lead, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	lead.Status = domain.LeadBooked
	lead.BookedAt = &now
	lead.Outcome = outcome
	lead.OutcomeNotes = notes
	audits := []*domain.AuditEntry{
		s.audit(NewRequestID(), domain.EventLeadBooked, leadID, "", actor, map[string]any{
			"outcome": string(outcome),
		}),
	}
	if err := s.store.UpdateLead(ctx, lead, audits); err != nil {
		return nil, err
	}
	return lead, nil
}

// ProcessLead runs the full automated pipeline for one claimed job:
// research, classify, leverage, sequence. Disqualification at any step ends
// the run successfully; only infrastructure errors fail the job.
func (s *Service) ProcessLead(ctx context.Context, lead *domain.Lead, job *domain.Job) error {
	requestID := NewRequestID()

	if err := s.Research(ctx, lead, job, requestID); err != nil {
		return err
	}
	if lead.Status.IsTerminal() {
		return s.finishJob(ctx, job, requestID, domain.JobSuccess, "")
	}

	qualified, err := s.ClassifyAndQualify(ctx, lead, job, requestID)
	if err != nil {
		return err
	}
	if !qualified {
		return s.finishJob(ctx, job, requestID, domain.JobSuccess, "")
	}

	if _, err := s.AssignLeverage(ctx, lead, requestID); err != nil {
		return err
	}
	if _, err := s.CreateSequence(ctx, lead, requestID); err != nil {
		return err
	}
	return s.finishJob(ctx, job, requestID, domain.JobSuccess, "")
}

// DrainQueue claims and runs queued research jobs. One lead's failure never
// stops the batch; the failed job records its error and the loop continues.
func (s *Service) DrainQueue(ctx context.Context) (processed, failed int, err error) {
	jobs, err := s.store.ClaimQueuedJobs(ctx, s.opts.ClaimBatchSize, s.opts.WorkerID)
	if err != nil {
		return 0, 0, fmt.Errorf("claim jobs: %w", err)
	}

	for _, job := range jobs {
		requestID := NewRequestID()
		lead, lerr := s.store.GetLead(ctx, job.LeadID)
		if lerr != nil {
			failed++
			if ferr := s.finishJob(ctx, job, requestID, domain.JobFailed, "lead not found"); ferr != nil {
				log.Printf("[Pipeline] Failed to finalize job %s: %v", job.ID, ferr)
			}
			continue
		}
		if perr := s.ProcessLead(ctx, lead, job); perr != nil {
			failed++
			log.Printf("[Pipeline] Job %s failed: %v", job.ID, perr)
			if ferr := s.finishJob(ctx, job, requestID, domain.JobFailed, perr.Error()); ferr != nil {
				log.Printf("[Pipeline] Failed to finalize job %s: %v", job.ID, ferr)
			}
			continue
		}
		processed++
	}
	return processed, failed, nil
}

// Stats returns pipeline aggregates for the dashboard.
func (s *Service) Stats(ctx context.Context) (*domain.PipelineStats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) finishJob(ctx context.Context, job *domain.Job, requestID string, status domain.JobStatus, errText string) error {
	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	job.Error = errText

	event := domain.EventJobCompleted
	var payload map[string]any
	if status == domain.JobFailed {
		event = domain.EventJobFailed
		payload = map[string]any{"error": errText}
	}
	audits := []*domain.AuditEntry{
		s.audit(requestID, event, job.LeadID, job.ID, "worker", payload),
	}
	return s.store.CompleteJob(ctx, job, audits)
}

func (s *Service) audit(requestID string, event domain.AuditEvent, leadID, jobID, actor string, payload map[string]any) *domain.AuditEntry {
	return &domain.AuditEntry{
		RequestID: requestID,
		Event:     event,
		LeadID:    leadID,
		JobID:     jobID,
		Actor:     actor,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
