package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/engine/lint"
	"github.com/ignite/leadflow/internal/engine/objection"
	"github.com/ignite/leadflow/internal/enrichment"
	"github.com/ignite/leadflow/internal/service/suppression"
)

const testBookingLink = "https://cal.example.com/book"

// fakeStore is an in-memory Store for orchestrator tests.
type fakeStore struct {
	leads     map[string]*domain.Lead
	jobs      map[string]*domain.Job
	signals   map[string]*domain.SignalSet
	scrapes   []*domain.ScrapeJob
	quals     []*domain.Qualification
	rules     []domain.Rule
	items     []domain.Item
	leverage  map[string]*domain.LeverageAssignment
	msgJobs   []*domain.MessageJob
	replies   map[string]*domain.Reply
	templates []domain.ObjectionTemplate
	audits    []*domain.AuditEntry

	drafted int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:    make(map[string]*domain.Lead),
		jobs:     make(map[string]*domain.Job),
		signals:  make(map[string]*domain.SignalSet),
		leverage: make(map[string]*domain.LeverageAssignment),
		replies:  make(map[string]*domain.Reply),
	}
}

func (f *fakeStore) GetLead(_ context.Context, leadID string) (*domain.Lead, error) {
	lead, ok := f.leads[leadID]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead, nil
}

func (f *fakeStore) FindLeadByWebsite(_ context.Context, websiteURL string) (*domain.Lead, error) {
	for _, lead := range f.leads {
		if lead.WebsiteURL == websiteURL {
			return lead, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateLeadAndJob(_ context.Context, lead *domain.Lead, job *domain.Job, audits []*domain.AuditEntry) error {
	f.leads[lead.ID] = lead
	f.jobs[job.ID] = job
	f.audits = append(f.audits, audits...)
	return nil
}

// guardLead mirrors the repository contract: a lead already dead or
// disqualified only accepts writes that keep that status.
func (f *fakeStore) guardLead(lead *domain.Lead) error {
	cur, ok := f.leads[lead.ID]
	if !ok {
		return nil
	}
	terminal := cur.Status == domain.LeadDead || cur.Status == domain.LeadDisqualified
	if terminal && cur.Status != lead.Status {
		return ErrLeadTerminal
	}
	return nil
}

func (f *fakeStore) UpdateLead(_ context.Context, lead *domain.Lead, audits []*domain.AuditEntry) error {
	if err := f.guardLead(lead); err != nil {
		return err
	}
	f.leads[lead.ID] = lead
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) GetSignals(_ context.Context, leadID string) (*domain.SignalSet, error) {
	return f.signals[leadID], nil
}

func (f *fakeStore) CreateScrapeJob(_ context.Context, scrape *domain.ScrapeJob, audits []*domain.AuditEntry) error {
	f.scrapes = append(f.scrapes, scrape)
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) SaveSignals(_ context.Context, signals *domain.SignalSet, scrape *domain.ScrapeJob, audits []*domain.AuditEntry) error {
	f.signals[signals.LeadID] = signals
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) SaveClassification(_ context.Context, signals *domain.SignalSet, qual *domain.Qualification, lead *domain.Lead, audits []*domain.AuditEntry) error {
	if err := f.guardLead(lead); err != nil {
		return err
	}
	f.signals[signals.LeadID] = signals
	f.quals = append(f.quals, qual)
	f.leads[lead.ID] = lead
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) ActiveRules(_ context.Context) ([]domain.Rule, error) { return f.rules, nil }
func (f *fakeStore) ActiveItems(_ context.Context) ([]domain.Item, error) { return f.items, nil }

func (f *fakeStore) ItemNames(_ context.Context, itemIDs []string) ([]string, error) {
	byID := make(map[string]string, len(f.items))
	for _, item := range f.items {
		byID[item.ID] = item.Name
	}
	var names []string
	for _, id := range itemIDs {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (f *fakeStore) GetLeverage(_ context.Context, leadID string) (*domain.LeverageAssignment, error) {
	return f.leverage[leadID], nil
}

func (f *fakeStore) SaveLeverage(_ context.Context, assignment *domain.LeverageAssignment, lead *domain.Lead, audits []*domain.AuditEntry) error {
	if err := f.guardLead(lead); err != nil {
		return err
	}
	f.leverage[assignment.LeadID] = assignment
	f.leads[lead.ID] = lead
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) CreateMessageJobs(_ context.Context, jobs []*domain.MessageJob, lead *domain.Lead, audits []*domain.AuditEntry) error {
	if err := f.guardLead(lead); err != nil {
		return err
	}
	f.msgJobs = append(f.msgJobs, jobs...)
	f.leads[lead.ID] = lead
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) CreateReply(_ context.Context, reply *domain.Reply, audits []*domain.AuditEntry) error {
	f.replies[reply.ID] = reply
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) GetReply(_ context.Context, replyID string) (*domain.Reply, error) {
	reply, ok := f.replies[replyID]
	if !ok {
		return nil, ErrReplyNotFound
	}
	return reply, nil
}

func (f *fakeStore) FinalizeReply(_ context.Context, reply *domain.Reply, lead *domain.Lead, pausePending bool, approvalThreshold int, audits []*domain.AuditEntry) error {
	if err := f.guardLead(lead); err != nil {
		return err
	}
	if reply.DraftResponse != "" {
		f.drafted++
		if f.drafted <= approvalThreshold {
			reply.Approval = domain.ApprovalPending
		} else {
			reply.Approval = domain.ApprovalApproved
		}
	}
	f.replies[reply.ID] = reply
	f.leads[lead.ID] = lead
	if pausePending {
		for _, job := range f.msgJobs {
			if job.LeadID == lead.ID && job.Status.IsPending() {
				job.Status = domain.MessagePaused
			}
		}
	}
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) SetReplyApproval(_ context.Context, reply *domain.Reply, audits []*domain.AuditEntry) error {
	f.replies[reply.ID] = reply
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) ObjectionTemplates(_ context.Context) ([]domain.ObjectionTemplate, error) {
	return f.templates, nil
}

func (f *fakeStore) ClaimQueuedJobs(_ context.Context, limit int, workerID string) ([]*domain.Job, error) {
	var claimed []*domain.Job
	for _, job := range f.jobs {
		if len(claimed) >= limit {
			break
		}
		if job.Status == domain.JobQueued {
			job.Status = domain.JobRunning
			job.LockedBy = workerID
			job.Attempts++
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

func (f *fakeStore) CompleteJob(_ context.Context, job *domain.Job, audits []*domain.AuditEntry) error {
	f.jobs[job.ID] = job
	f.audits = append(f.audits, audits...)
	return nil
}

func (f *fakeStore) Stats(_ context.Context) (*domain.PipelineStats, error) {
	stats := &domain.PipelineStats{TotalLeads: len(f.leads)}
	for _, lead := range f.leads {
		switch lead.Status {
		case domain.LeadNew:
			stats.New++
		case domain.LeadContacted:
			stats.Contacted++
		case domain.LeadDisqualified:
			stats.Disqualified++
		case domain.LeadDead:
			stats.Dead++
		case domain.LeadBooked:
			stats.Booked++
		}
	}
	return stats, nil
}

func (f *fakeStore) auditEvents() []domain.AuditEvent {
	events := make([]domain.AuditEvent, len(f.audits))
	for i, a := range f.audits {
		events[i] = a.Event
	}
	return events
}

// fakeRegistry is an in-memory opt-out registry.
type fakeRegistry struct {
	suppressed map[string]bool
	calls      []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{suppressed: make(map[string]bool)}
}

func (f *fakeRegistry) IsSuppressed(_ context.Context, email string) (bool, error) {
	return f.suppressed[domain.NormalizeEmail(email)], nil
}

func (f *fakeRegistry) Suppress(_ context.Context, email string, _ domain.SuppressionReason, _, _ string, _ bool) (suppression.Result, error) {
	email = domain.NormalizeEmail(email)
	f.calls = append(f.calls, email)
	if f.suppressed[email] {
		return suppression.Result{}, nil
	}
	f.suppressed[email] = true
	return suppression.Result{Added: true}, nil
}

// fakeResearcher returns canned signals.
type fakeResearcher struct {
	signals domain.SignalSet
	err     error
}

func (f *fakeResearcher) Research(_ context.Context, lead *domain.Lead, _ domain.ScrapeJob) (*domain.SignalSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.signals
	s.LeadID = lead.ID
	return &s, nil
}

// fakeLeadClassifier returns a canned classification.
type fakeLeadClassifier struct {
	out enrichment.LeadClassification
}

func (f *fakeLeadClassifier) ClassifyLead(_ context.Context, _ *domain.SignalSet, _, _ string) (enrichment.LeadClassification, string, error) {
	return f.out, "llm-test", nil
}

// fakeReplyClassifier returns a canned verdict.
type fakeReplyClassifier struct {
	verdict enrichment.ReplyVerdict
}

func (f *fakeReplyClassifier) ClassifyReply(_ context.Context, _, _ string) (enrichment.ReplyVerdict, string, error) {
	return f.verdict, "llm-test", nil
}

// phraseGenerator emits a forbidden phrase on one touch.
type phraseGenerator struct {
	badTouch int
}

func (g *phraseGenerator) GenerateMessage(_ context.Context, req enrichment.MessageRequest) (enrichment.Message, error) {
	body := "Hi,\n\nWorth a chat?\n\n" + testBookingLink
	if req.TouchNumber == g.badTouch {
		body = "Here is our full catalog and wholesale price list.\n\n" + testBookingLink
	}
	return enrichment.Message{Subject: "Quick idea", Body: body}, nil
}

type harness struct {
	store    *fakeStore
	registry *fakeRegistry
	svc      *Service
}

type harnessOpt func(*harnessConfig)

type harnessConfig struct {
	classification enrichment.LeadClassification
	verdict        enrichment.ReplyVerdict
	generator      enrichment.MessageGenerator
	researchErr    error
	threshold      int
}

func withClassification(out enrichment.LeadClassification) harnessOpt {
	return func(c *harnessConfig) { c.classification = out }
}

func withVerdict(v enrichment.ReplyVerdict) harnessOpt {
	return func(c *harnessConfig) { c.verdict = v }
}

func withGenerator(g enrichment.MessageGenerator) harnessOpt {
	return func(c *harnessConfig) { c.generator = g }
}

func withResearchErr(err error) harnessOpt {
	return func(c *harnessConfig) { c.researchErr = err }
}

func withThreshold(n int) harnessOpt {
	return func(c *harnessConfig) { c.threshold = n }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()

	cfg := harnessConfig{
		classification: enrichment.LeadClassification{
			BrandList:  []string{"GlowCo"},
			PriceTier:  domain.TierMid,
			ScaleScore: 60,
			Qualifies:  true,
		},
		verdict:   enrichment.ReplyVerdict{Classification: domain.ReplyUnknown, Action: domain.ActionHandoff},
		generator: enrichment.NewGenerator(nil, testBookingLink, "30 min"),
		threshold: 200,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := newFakeStore()
	amazon := domain.ChannelAmazon
	minScale := 50
	store.rules = []domain.Rule{
		{
			ID:            "rule-expansion",
			Priority:      10,
			Active:        true,
			ChannelMatch:  &amazon,
			MinScaleScore: &minScale,
			PrimaryAngle:  domain.AngleExpansion,
			ItemQuery:     &domain.ItemQuery{PriorityFirst: true, Cap: 3},
		},
	}
	store.items = []domain.Item{
		{ID: "item-1", Name: "Serum Bundle", Categories: []string{"beauty"}, PctOffRetail: 65, ChannelFit: []domain.Channel{domain.ChannelAmazon}, Priority: true, Active: true},
		{ID: "item-2", Name: "Shampoo Case", Categories: []string{"haircare"}, PctOffRetail: 55, ChannelFit: []domain.Channel{domain.ChannelMulti}, Priority: true, Active: true},
	}
	store.templates = []domain.ObjectionTemplate{
		{
			ObjectionType:   "already_have_supplier",
			PatternKeywords: []string{"already have"},
			Body:            "Most partners kept their suppliers, {{ company_name }}.\n\n{{ booking_link }}",
			Active:          true,
			Version:         "v1",
		},
	}

	registry := newFakeRegistry()
	researcher := &fakeResearcher{
		signals: domain.SignalSet{
			DetectedPlatform: "shopify",
			Categories:       []string{"beauty"},
			SKUEstimate:      120,
			SiteExcerpt:      "premium skincare boutique",
			ArtifactHash:     "abc123",
		},
		err: cfg.researchErr,
	}

	svc := NewService(
		store,
		registry,
		researcher,
		&fakeLeadClassifier{out: cfg.classification},
		&fakeReplyClassifier{verdict: cfg.verdict},
		cfg.generator,
		lint.New([]string{"full catalog", "wholesale price"}, []string{"price_list"}, 3),
		objection.NewResponder(testBookingLink, objection.Meeting{Duration: "30 min", Days: "Mon-Thu", Hours: "11am-4pm EST"}),
		Options{
			ItemCap:           3,
			ApprovalThreshold: cfg.threshold,
			ResearchBudgetMS:  25000,
			ResearchMaxPages:  6,
			TouchDelayHours:   map[int]int{1: 0, 2: 24, 3: 96, 4: 168, 5: 720},
			WorkerID:          "worker-test",
		},
	)
	return &harness{store: store, registry: registry, svc: svc}
}

func (h *harness) intake(t *testing.T) *IntakeResult {
	t.Helper()
	res, err := h.svc.Intake(context.Background(), domain.IntakeRequest{
		CompanyName:  "Acme Goods",
		WebsiteURL:   "https://acmegoods.example",
		ContactEmail: "Buyer@AcmeGoods.example",
		Channel:      domain.ChannelAmazon,
		Niche:        "beauty",
	}, "dashboard")
	require.NoError(t, err)
	return res
}

func TestIntakeCreatesLeadAndResearchJob(t *testing.T) {
	h := newHarness(t)

	res := h.intake(t)
	assert.False(t, res.Suppressed)
	assert.False(t, res.Dedupe)
	require.NotEmpty(t, res.LeadID)
	require.NotEmpty(t, res.JobID)

	lead := h.store.leads[res.LeadID]
	require.NotNil(t, lead)
	assert.Equal(t, domain.LeadNew, lead.Status)
	assert.Equal(t, "buyer@acmegoods.example", lead.ContactEmail)

	job := h.store.jobs[res.JobID]
	require.NotNil(t, job)
	assert.Equal(t, domain.JobQueued, job.Status)
	assert.Equal(t, domain.JobLeadResearch, job.Type)

	events := h.store.auditEvents()
	assert.Equal(t, []domain.AuditEvent{domain.EventLeadCreated, domain.EventJobCreated}, events)
	assert.Equal(t, res.RequestID, h.store.audits[0].RequestID)
}

func TestIntakeRejectsSuppressedAddress(t *testing.T) {
	h := newHarness(t)
	h.registry.suppressed["buyer@acmegoods.example"] = true

	res := h.intake(t)
	assert.True(t, res.Suppressed)
	assert.Empty(t, res.LeadID)
	assert.Empty(t, h.store.leads)
}

func TestIntakeDedupesByWebsite(t *testing.T) {
	h := newHarness(t)

	first := h.intake(t)
	second := h.intake(t)

	assert.True(t, second.Dedupe)
	assert.Equal(t, first.LeadID, second.LeadID)
	assert.Len(t, h.store.leads, 1)
	assert.Len(t, h.store.jobs, 1)
}

func TestIntakeValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Intake(context.Background(), domain.IntakeRequest{CompanyName: "Acme"}, "dashboard")
	assert.ErrorIs(t, err, ErrInvalidIntake)

	_, err = h.svc.Intake(context.Background(), domain.IntakeRequest{ContactEmail: "a@b.co"}, "dashboard")
	assert.ErrorIs(t, err, ErrInvalidIntake)
}

func TestDrainQueueRunsFullPipeline(t *testing.T) {
	h := newHarness(t)
	res := h.intake(t)

	processed, failed, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, failed)

	lead := h.store.leads[res.LeadID]
	assert.Equal(t, domain.LeadContacted, lead.Status)

	// One SignalSet with the AI fields merged in.
	signals := h.store.signals[res.LeadID]
	require.NotNil(t, signals)
	assert.Equal(t, "shopify", signals.DetectedPlatform)
	assert.Equal(t, 60, signals.ScaleScore)
	assert.Equal(t, []string{"GlowCo"}, signals.BrandList)

	require.Len(t, h.store.quals, 1)
	assert.True(t, h.store.quals[0].Qualifies)
	assert.Equal(t, "llm-test", h.store.quals[0].CallID)

	assignment := h.store.leverage[res.LeadID]
	require.NotNil(t, assignment)
	assert.Equal(t, domain.AngleExpansion, assignment.PrimaryAngle)
	require.NotNil(t, assignment.MatchedRuleID)
	assert.Equal(t, "rule-expansion", *assignment.MatchedRuleID)
	assert.Equal(t, []string{"item-1", "item-2"}, assignment.SelectedItems)

	// Five touches, all rendered, scheduled in ascending order.
	require.Len(t, h.store.msgJobs, domain.SequenceLength)
	for i, job := range h.store.msgJobs {
		assert.Equal(t, i+1, job.TouchNumber)
		assert.Equal(t, domain.MessageRendered, job.Status)
		if i > 0 {
			assert.True(t, job.ScheduledAt.After(h.store.msgJobs[i-1].ScheduledAt))
		}
	}

	job := h.store.jobs[res.JobID]
	assert.Equal(t, domain.JobSuccess, job.Status)

	assert.Equal(t, []domain.AuditEvent{
		domain.EventLeadCreated,
		domain.EventJobCreated,
		domain.EventScrapeRequested,
		domain.EventScrapeCompleted,
		domain.EventLeadClassified,
		domain.EventLeadQualified,
		domain.EventLeverageAssigned,
		domain.EventItemMatched,
		domain.EventEmailRendered,
		domain.EventEmailRendered,
		domain.EventEmailRendered,
		domain.EventEmailRendered,
		domain.EventEmailRendered,
		domain.EventJobCompleted,
	}, h.store.auditEvents())
}

func TestDisqualificationShortCircuits(t *testing.T) {
	h := newHarness(t, withClassification(enrichment.LeadClassification{
		PriceTier:         domain.TierMixed,
		PrivateLabelRatio: 0.97,
		ScaleScore:        60,
		Qualifies:         true, // the gate decides, not the classifier's own opinion
	}))
	res := h.intake(t)

	processed, failed, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, failed)

	lead := h.store.leads[res.LeadID]
	assert.Equal(t, domain.LeadDisqualified, lead.Status)
	assert.Equal(t, domain.DisqualifyPrivateLabelOnly, lead.DisqualifyReason)

	assert.Empty(t, h.store.leverage)
	assert.Empty(t, h.store.msgJobs)
	assert.Equal(t, domain.JobSuccess, h.store.jobs[res.JobID].Status)

	events := h.store.auditEvents()
	assert.Contains(t, events, domain.EventLeadDisqualified)
	assert.NotContains(t, events, domain.EventLeverageAssigned)
}

func TestResearchGateCatchesLateSuppression(t *testing.T) {
	h := newHarness(t)
	res := h.intake(t)

	// Suppressed after intake but before the worker picks the job up.
	h.registry.suppressed["buyer@acmegoods.example"] = true

	processed, failed, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, failed)

	lead := h.store.leads[res.LeadID]
	assert.Equal(t, domain.LeadDisqualified, lead.Status)
	assert.Equal(t, domain.DisqualifySuppressed, lead.DisqualifyReason)
	assert.Empty(t, h.store.msgJobs)
	assert.Contains(t, h.store.auditEvents(), domain.EventLeadSuppressed)
}

func TestScrapeFailureStillClassifiesOnDefaults(t *testing.T) {
	h := newHarness(t, withResearchErr(assert.AnError))
	res := h.intake(t)

	processed, failed, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, failed)

	events := h.store.auditEvents()
	assert.Contains(t, events, domain.EventScrapeFailed)
	assert.NotContains(t, events, domain.EventScrapeCompleted)

	// Empty signals merged with the classifier's scale score still qualify.
	signals := h.store.signals[res.LeadID]
	require.NotNil(t, signals)
	assert.Empty(t, signals.DetectedPlatform)
	assert.Equal(t, domain.LeadContacted, h.store.leads[res.LeadID].Status)
}

func TestCreateSequenceVariableLintAbortsBatch(t *testing.T) {
	h := newHarness(t)
	res := h.intake(t)
	lead := h.store.leads[res.LeadID]

	// Four selected items against a cap of three.
	h.store.leverage[lead.ID] = &domain.LeverageAssignment{
		LeadID:        lead.ID,
		PrimaryAngle:  domain.AngleExpansion,
		SelectedItems: []string{"item-1", "item-2", "x", "y"},
	}
	h.store.items = append(h.store.items,
		domain.Item{ID: "x", Name: "X", Active: true},
		domain.Item{ID: "y", Name: "Y", Active: true},
	)

	_, err := h.svc.CreateSequence(context.Background(), lead, NewRequestID())
	assert.ErrorIs(t, err, ErrLintFailed)
	assert.Empty(t, h.store.msgJobs)
	assert.NotEqual(t, domain.LeadContacted, lead.Status)
}

func TestCreateSequencePerMessageLintFailsOnlyThatTouch(t *testing.T) {
	h := newHarness(t, withGenerator(&phraseGenerator{badTouch: 2}))
	res := h.intake(t)

	_, _, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)

	require.Len(t, h.store.msgJobs, domain.SequenceLength)
	for _, job := range h.store.msgJobs {
		if job.TouchNumber == 2 {
			assert.Equal(t, domain.MessageFailed, job.Status)
			assert.Contains(t, job.Error, "lint")
		} else {
			assert.Equal(t, domain.MessageRendered, job.Status)
		}
	}
	assert.Equal(t, domain.LeadContacted, h.store.leads[res.LeadID].Status)
}

func TestHandleReplyOptOutSuppressesBeforeClassification(t *testing.T) {
	h := newHarness(t, withVerdict(enrichment.ReplyVerdict{
		// Would claim interested; the opt-out gate must win.
		Classification: domain.ReplyInterested,
		Action:         domain.ActionSendCalendar,
	}))
	res := h.intake(t)
	_, _, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)

	result, err := h.svc.HandleReply(context.Background(), res.LeadID, "Please remove me from your list", "", "")
	require.NoError(t, err)

	assert.Equal(t, domain.ReplyUnsubscribe, result.Classification)
	assert.Equal(t, domain.ActionSuppress, result.Action)
	assert.Empty(t, result.DraftResponse)
	assert.Equal(t, []string{"buyer@acmegoods.example"}, h.registry.calls)
	assert.Equal(t, domain.LeadDead, h.store.leads[res.LeadID].Status)

	events := h.store.auditEvents()
	assert.Contains(t, events, domain.EventReplyReceived)
	assert.NotContains(t, events, domain.EventReplyClassified)
}

func TestHandleReplyInterested(t *testing.T) {
	h := newHarness(t, withVerdict(enrichment.ReplyVerdict{
		Classification: domain.ReplyInterested,
		Action:         domain.ActionSendCalendar,
		InterestLevel:  9,
	}))
	res := h.intake(t)
	_, _, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)

	result, err := h.svc.HandleReply(context.Background(), res.LeadID, "Sounds great, when can we talk?", "", "")
	require.NoError(t, err)

	assert.Equal(t, domain.ReplyInterested, result.Classification)
	assert.Contains(t, result.DraftResponse, testBookingLink)
	assert.True(t, result.NeedsApproval)
	assert.Equal(t, domain.LeadInterested, h.store.leads[res.LeadID].Status)

	// The remaining sequence is paused.
	for _, job := range h.store.msgJobs {
		assert.Equal(t, domain.MessagePaused, job.Status)
	}
}

func TestHandleReplyObjectionRendersKBTemplate(t *testing.T) {
	h := newHarness(t, withVerdict(enrichment.ReplyVerdict{
		Classification: domain.ReplyObjection,
		ObjectionType:  "already_have_supplier",
		Action:         domain.ActionSendCurated,
		InterestLevel:  6,
	}))
	res := h.intake(t)
	_, _, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)

	result, err := h.svc.HandleReply(context.Background(), res.LeadID, "We already have a supplier", "", "")
	require.NoError(t, err)

	assert.Equal(t, domain.ReplyObjection, result.Classification)
	assert.Contains(t, result.DraftResponse, "Acme Goods")
	assert.Contains(t, result.DraftResponse, testBookingLink)
	assert.Equal(t, domain.LeadObjection, h.store.leads[res.LeadID].Status)

	reply := h.store.replies[result.ReplyID]
	assert.Equal(t, "already_have_supplier", reply.ObjectionType)
}

func TestHandleReplyNotInterestedKillsLead(t *testing.T) {
	h := newHarness(t, withVerdict(enrichment.ReplyVerdict{
		Classification: domain.ReplyNotInterested,
		Action:         domain.ActionHandoff,
		InterestLevel:  2,
	}))
	res := h.intake(t)
	_, _, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)

	result, err := h.svc.HandleReply(context.Background(), res.LeadID, "Not for us, thanks", "", "")
	require.NoError(t, err)

	assert.Empty(t, result.DraftResponse)
	assert.Equal(t, domain.LeadDead, h.store.leads[res.LeadID].Status)
}

func TestHandleReplyUnknownRoutesToHuman(t *testing.T) {
	h := newHarness(t)
	res := h.intake(t)

	result, err := h.svc.HandleReply(context.Background(), res.LeadID, "???", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHandoff, result.Action)
	assert.False(t, result.NeedsApproval)
}

func TestHandleReplyDeadLeadStaysDead(t *testing.T) {
	h := newHarness(t, withVerdict(enrichment.ReplyVerdict{
		Classification: domain.ReplyInterested,
		Action:         domain.ActionSendCalendar,
		InterestLevel:  9,
	}))
	res := h.intake(t)
	_, _, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)

	// Suppression killed the lead; the provider retries the reply webhook.
	h.store.leads[res.LeadID].Status = domain.LeadDead

	result, err := h.svc.HandleReply(context.Background(), res.LeadID, "Sounds great, when can we talk?", "", "")
	require.NoError(t, err)

	assert.Equal(t, domain.ActionHandoff, result.Action)
	assert.Empty(t, result.Classification)
	assert.Empty(t, result.DraftResponse)
	assert.Equal(t, domain.LeadDead, h.store.leads[res.LeadID].Status)

	events := h.store.auditEvents()
	assert.Contains(t, events, domain.EventReplyReceived)
	assert.NotContains(t, events, domain.EventReplyClassified)
}

func TestCreateSequenceRefusesKilledLead(t *testing.T) {
	h := newHarness(t)
	res := h.intake(t)
	ctx := context.Background()
	requestID := NewRequestID()

	lead := h.store.leads[res.LeadID]
	job := h.store.jobs[res.JobID]
	require.NoError(t, h.svc.Research(ctx, lead, job, requestID))
	qualified, err := h.svc.ClassifyAndQualify(ctx, lead, job, requestID)
	require.NoError(t, err)
	require.True(t, qualified)
	_, err = h.svc.AssignLeverage(ctx, lead, requestID)
	require.NoError(t, err)

	// A second actor suppresses the lead while this worker still holds the
	// qualified snapshot it loaded earlier.
	stale := *lead
	lead.Status = domain.LeadDead

	sequenceID, err := h.svc.CreateSequence(ctx, &stale, NewRequestID())
	require.NoError(t, err)

	assert.Empty(t, sequenceID)
	assert.Empty(t, h.store.msgJobs)
	assert.Equal(t, domain.LeadDead, h.store.leads[res.LeadID].Status)
}

func TestHandleReplyUnknownLead(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.HandleReply(context.Background(), "lead-missing", "hello", "", "")
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestApprovalPolicyAutoApprovesAfterThreshold(t *testing.T) {
	h := newHarness(t,
		withThreshold(2),
		withVerdict(enrichment.ReplyVerdict{
			Classification: domain.ReplyInterested,
			Action:         domain.ActionSendCalendar,
		}),
	)

	var results []*ReplyResult
	for i := 0; i < 3; i++ {
		res, err := h.svc.Intake(context.Background(), domain.IntakeRequest{
			CompanyName:  "Store",
			WebsiteURL:   "https://store" + string(rune('a'+i)) + ".example",
			ContactEmail: "buyer@store" + string(rune('a'+i)) + ".example",
			Channel:      domain.ChannelAmazon,
		}, "dashboard")
		require.NoError(t, err)

		reply, err := h.svc.HandleReply(context.Background(), res.LeadID, "interested!", "", "")
		require.NoError(t, err)
		results = append(results, reply)
	}

	assert.True(t, results[0].NeedsApproval)
	assert.True(t, results[1].NeedsApproval)
	assert.False(t, results[2].NeedsApproval)
	assert.Equal(t, domain.ApprovalApproved, h.store.replies[results[2].ReplyID].Approval)
}

func TestApproveReply(t *testing.T) {
	h := newHarness(t, withVerdict(enrichment.ReplyVerdict{
		Classification: domain.ReplyInterested,
		Action:         domain.ActionSendCalendar,
	}))
	res := h.intake(t)
	result, err := h.svc.HandleReply(context.Background(), res.LeadID, "interested!", "", "")
	require.NoError(t, err)

	reply, err := h.svc.ApproveReply(context.Background(), result.ReplyID, true, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, reply.Approval)

	reply, err = h.svc.ApproveReply(context.Background(), result.ReplyID, false, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalRejected, reply.Approval)

	events := h.store.auditEvents()
	assert.Contains(t, events, domain.EventReplyReviewed)
}

func TestDrainQueueIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	res := h.intake(t)

	// A second job whose lead row is gone.
	h.store.jobs["job-orphan"] = &domain.Job{
		ID:     "job-orphan",
		Type:   domain.JobLeadResearch,
		LeadID: "lead-missing",
		Status: domain.JobQueued,
	}

	processed, failed, err := h.svc.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, failed)

	assert.Equal(t, domain.JobFailed, h.store.jobs["job-orphan"].Status)
	assert.Equal(t, "lead not found", h.store.jobs["job-orphan"].Error)
	assert.Equal(t, domain.JobSuccess, h.store.jobs[res.JobID].Status)
	assert.Equal(t, domain.LeadContacted, h.store.leads[res.LeadID].Status)
}

func TestMarkBooked(t *testing.T) {
	h := newHarness(t)
	res := h.intake(t)

	lead, err := h.svc.MarkBooked(context.Background(), res.LeadID, domain.OutcomeDealInProgress, "good call", "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadBooked, lead.Status)
	require.NotNil(t, lead.BookedAt)
	assert.Equal(t, domain.OutcomeDealInProgress, lead.Outcome)
	assert.Contains(t, h.store.auditEvents(), domain.EventLeadBooked)
}
