package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/service/pipeline"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func leadRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"lead_id", "company_name", "website_url", "contact_email", "channel",
		"niche", "location", "notes", "status", "disqualify_reason", "booked_at",
		"outcome", "outcome_notes", "created_at", "updated_at",
	}).AddRow(
		"lead-abc", "Acme Goods", "https://acme.example", "buyer@acme.example", "amazon",
		"beauty", "", "", "new", "", nil, "", "", now, now,
	)
}

func TestGetLead(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE lead_id").
		WithArgs("lead-abc").
		WillReturnRows(leadRows())

	lead, err := store.GetLead(context.Background(), "lead-abc")
	require.NoError(t, err)
	assert.Equal(t, "Acme Goods", lead.CompanyName)
	assert.Equal(t, domain.LeadNew, lead.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLeadNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE lead_id").
		WithArgs("lead-missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetLead(context.Background(), "lead-missing")
	assert.ErrorIs(t, err, pipeline.ErrLeadNotFound)
}

func TestFindLeadByWebsiteAbsenceIsNotAnError(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectQuery("SELECT (.+) FROM leads WHERE website_url").
		WithArgs("https://nobody.example").
		WillReturnError(sql.ErrNoRows)

	lead, err := store.FindLeadByWebsite(context.Background(), "https://nobody.example")
	require.NoError(t, err)
	assert.Nil(t, lead)
}

func TestCreateLeadAndJobCommitsAuditsInSameTx(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO leads").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO pipeline_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_trail").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_trail").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	lead := &domain.Lead{ID: "lead-1", CompanyName: "Acme", WebsiteURL: "https://acme.example",
		ContactEmail: "buyer@acme.example", Channel: domain.ChannelAmazon, Status: domain.LeadNew}
	job := &domain.Job{ID: "job-1", Type: domain.JobLeadResearch, LeadID: "lead-1", Status: domain.JobQueued}
	audits := []*domain.AuditEntry{
		{RequestID: "req-1", Event: domain.EventLeadCreated, LeadID: "lead-1", Actor: "dashboard"},
		{RequestID: "req-1", Event: domain.EventJobCreated, LeadID: "lead-1", JobID: "job-1", Actor: "dashboard"},
	}

	err := store.CreateLeadAndJob(context.Background(), lead, job, audits)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLeadAndJobRollsBackOnAuditFailure(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO leads").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO pipeline_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_trail").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	lead := &domain.Lead{ID: "lead-1", Status: domain.LeadNew}
	job := &domain.Job{ID: "job-1", LeadID: "lead-1", Status: domain.JobQueued}
	audits := []*domain.AuditEntry{{Event: domain.EventLeadCreated, LeadID: "lead-1", Actor: "dashboard"}}

	err := store.CreateLeadAndJob(context.Background(), lead, job, audits)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimQueuedJobsUsesSkipLocked(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	now := time.Now()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("worker-1", 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"job_id", "job_type", "lead_id", "status", "attempts", "locked_by", "started_at", "created_at",
		}).AddRow("job-1", "lead_research", "lead-1", "running", 1, "worker-1", now, now))

	jobs, err := store.ClaimQueuedJobs(context.Background(), 5, "worker-1")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobRunning, jobs[0].Status)
	assert.Equal(t, "worker-1", jobs[0].LockedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeReplyPendingWithinThreshold(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT(.+) FROM replies").
		WithArgs("reply-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec("UPDATE replies").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE leads").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_trail").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	reply := &domain.Reply{ID: "reply-1", LeadID: "lead-1",
		Classification: domain.ReplyInterested, Action: domain.ActionSendCalendar,
		DraftResponse: "draft text"}
	lead := &domain.Lead{ID: "lead-1", Status: domain.LeadInterested}
	audits := []*domain.AuditEntry{{Event: domain.EventReplyClassified, LeadID: "lead-1", Actor: "worker"}}

	// Four drafts in total against a threshold of 200: still pending.
	err := store.FinalizeReply(context.Background(), reply, lead, false, 200, audits)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalPending, reply.Approval)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeReplyAutoApprovesPastThreshold(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT(.+) FROM replies").
		WithArgs("reply-201").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(200))
	mock.ExpectExec("UPDATE replies").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE message_jobs").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE leads").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_trail").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	reply := &domain.Reply{ID: "reply-201", LeadID: "lead-1",
		Classification: domain.ReplyInterested, Action: domain.ActionSendCalendar,
		DraftResponse: "draft text"}
	lead := &domain.Lead{ID: "lead-1", Status: domain.LeadInterested}

	err := store.FinalizeReply(context.Background(), reply, lead, true, 200, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, reply.Approval)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeReplySkipsCounterWithoutDraft(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE replies").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE leads").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reply := &domain.Reply{ID: "reply-1", LeadID: "lead-1",
		Classification: domain.ReplyNotInterested, Action: domain.ActionHandoff}
	lead := &domain.Lead{ID: "lead-1", Status: domain.LeadDead}

	err := store.FinalizeReply(context.Background(), reply, lead, false, 200, nil)
	require.NoError(t, err)
	assert.Empty(t, reply.Approval)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLeadRefusesTerminalOverwrite(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	// The status guard matches no row for a dead lead, and the lead exists.
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE leads.*status NOT IN`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("lead-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	lead := &domain.Lead{ID: "lead-1", Status: domain.LeadInterested}
	err := store.UpdateLead(context.Background(), lead, nil)
	assert.ErrorIs(t, err, pipeline.ErrLeadTerminal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLeadMissingRow(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE leads").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("lead-missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	lead := &domain.Lead{ID: "lead-missing", Status: domain.LeadBooked}
	err := store.UpdateLead(context.Background(), lead, nil)
	assert.ErrorIs(t, err, pipeline.ErrLeadNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveRulesDecodesPredicatesAndItemQuery(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectQuery("SELECT (.+) FROM leverage_rules").
		WillReturnRows(sqlmock.NewRows([]string{
			"rule_id", "priority", "is_active", "channel_match", "min_scale_score",
			"max_private_label_ratio", "min_map_behavior_score", "min_store_count",
			"requires_brand_overlap", "requires_adjacent_brands",
			"primary_angle", "secondary_angle", "item_query", "description",
		}).AddRow(
			"rule-1", 10, true, "amazon", 50,
			nil, nil, nil,
			false, false,
			"expansion", "", []byte(`{"priority_first":true,"cap":3}`), "amazon scale",
		).AddRow(
			"rule-2", 20, true, nil, nil,
			0.4, nil, nil,
			false, false,
			"alignment", "stability", nil, "",
		))

	rules, err := store.ActiveRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)

	require.NotNil(t, rules[0].ChannelMatch)
	assert.Equal(t, domain.ChannelAmazon, *rules[0].ChannelMatch)
	require.NotNil(t, rules[0].ItemQuery)
	assert.Equal(t, 3, rules[0].ItemQuery.Cap)
	assert.True(t, rules[0].ItemQuery.PriorityFirst)

	assert.Nil(t, rules[1].ChannelMatch)
	assert.Nil(t, rules[1].ItemQuery)
	require.NotNil(t, rules[1].MaxPrivateLabelRatio)
	assert.Equal(t, 0.4, *rules[1].MaxPrivateLabelRatio)
}

func TestItemNamesPreservesSelectionOrder(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	mock.ExpectQuery("SELECT item_id, item_name FROM catalog_items").
		WillReturnRows(sqlmock.NewRows([]string{"item_id", "item_name"}).
			AddRow("item-b", "Beta").
			AddRow("item-a", "Alpha"))

	names, err := store.ItemNames(context.Background(), []string{"item-a", "item-b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta"}, names)
}

func TestItemNamesEmptyInput(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()
	store := NewStore(db)

	names, err := store.ItemNames(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}
