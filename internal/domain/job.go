package domain

import "time"

// JobType enumerates the kinds of background job the worker processes.
type JobType string

const (
	JobLeadResearch JobType = "lead_research"
)

// JobStatus enumerates queue-job states. The queued → running transition is
// the atomic claim step; running → {success|failed} finalizes.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job is a queue record. Every automated run of the pipeline for a lead is
// tied to a job id.
type Job struct {
	ID          string     `json:"job_id" db:"job_id"`
	Type        JobType    `json:"job_type" db:"job_type"`
	LeadID      string     `json:"lead_id" db:"lead_id"`
	Status      JobStatus  `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	LockedBy    string     `json:"locked_by,omitempty" db:"locked_by"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Error       string     `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// ScrapeJob tracks one research fetch with its artifact budget.
type ScrapeJob struct {
	ID           string    `json:"scrape_id" db:"scrape_id"`
	LeadID       string    `json:"lead_id" db:"lead_id"`
	JobID        string    `json:"job_id" db:"job_id"` // parent job
	Status       string    `json:"status" db:"status"`
	PagesFetched int       `json:"pages_fetched" db:"pages_fetched"`
	BudgetMS     int       `json:"budget_ms" db:"budget_ms"`
	MaxPages     int       `json:"max_pages" db:"max_pages"`
	Error        string    `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
