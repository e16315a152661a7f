// Package models holds the shared data types for the ingestion pipeline:
// runs, jobs, and the two queue message shapes that move between them.
package models

import (
	"strings"
	"time"
)

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusPending      RunStatus = "pending"
	RunStatusInitializing RunStatus = "initializing"
	RunStatusIngesting    RunStatus = "ingesting"
	RunStatusFinished     RunStatus = "finished"
	RunStatusError        RunStatus = "error"
	RunStatusAborted      RunStatus = "aborted"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusFinished, RunStatusError, RunStatusAborted:
		return true
	default:
		return false
	}
}

// JobStatus is the per-run status of a tracked posting.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusReady    JobStatus = "ready"
	JobStatusSkipped  JobStatus = "skipped"
	JobStatusExpired  JobStatus = "expired"
	JobStatusError    JobStatus = "error"
)

// Terminal reports whether the status ends a job's participation in a run.
func (s JobStatus) Terminal() bool {
	return s != JobStatusPending
}

// Run is one user-initiated end-to-end ingestion.
type Run struct {
	ID           int64      `db:"id"`
	UserID       string     `db:"user_id"`
	Status       RunStatus  `db:"status"`
	Force        bool       `db:"force"`
	TotalJobs    int        `db:"total_jobs"`
	JobsReady    int        `db:"jobs_ready"`
	JobsSkipped  int        `db:"jobs_skipped"`
	JobsExpired  int        `db:"jobs_expired"`
	JobsFailed   int        `db:"jobs_failed"`
	CreatedAt    time.Time  `db:"created_at"`
	StartedAt    *time.Time `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	ErrorMessage string     `db:"error_message"`
}

// CountersPopulated reports whether the snapshot counters have been written.
func (r *Run) CountersPopulated() bool {
	return r.Status.Terminal()
}

// Job is a tracked posting identified by (user, company, external_id).
type Job struct {
	ID            int64     `db:"id"`
	RunID         int64     `db:"run_id"`
	UserID        string    `db:"user_id"`
	Company       string    `db:"company"`
	ExternalID    string    `db:"external_id"`
	URL           string    `db:"url"`
	Status        JobStatus `db:"status"`
	Title         string    `db:"title"`
	Location      string    `db:"location"`
	Description   string    `db:"description"`
	Requirements  string    `db:"requirements"`
	SimHash       int64     `db:"simhash"`
	HasSimHash    bool      `db:"has_simhash"`
	ErrorMessage  string    `db:"error_message"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ListedJob is what an extraction adapter returns from list_jobs.
type ListedJob struct {
	ExternalID string
	Title      string
	Location   string
	URL        string
}

// TitleFilters normalizes the include/exclude title filters an adapter
// applies to list_jobs results. Empty/nil lists mean "accept all"; the
// zero value is always a valid, permissive filter.
type TitleFilters struct {
	Include []string
	Exclude []string
}

// NormalizeTitleFilters trims, lowercases, and drops empties from both
// lists so the membership checks in Allows never need to re-normalize.
func NormalizeTitleFilters(f TitleFilters) TitleFilters {
	return TitleFilters{
		Include: normalizeTerms(f.Include),
		Exclude: normalizeTerms(f.Exclude),
	}
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Allows reports whether a job title passes the include/exclude filters.
// f must already be normalized via NormalizeTitleFilters.
func (f TitleFilters) Allows(title string) bool {
	title = strings.ToLower(title)
	if len(f.Include) > 0 {
		matched := false
		for _, term := range f.Include {
			if strings.Contains(title, term) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, term := range f.Exclude {
		if strings.Contains(title, term) {
			return false
		}
	}
	return true
}

// CrawlMessage is the crawl-queue payload. Immutable once enqueued.
type CrawlMessage struct {
	MessageID    string `json:"message_id"`
	RunID        int64  `json:"run_id"`
	JobID        int64  `json:"job_id"`
	Company      string `json:"company"`
	URL          string `json:"url"`
	PriorSimHash int64  `json:"prior_simhash"`
	HasPrior     bool   `json:"has_prior_simhash"`
	Force        bool   `json:"force"`
	UserID       string `json:"user_context"`
}

// ExtractMessage is the extract-queue payload. Immutable once enqueued.
type ExtractMessage struct {
	MessageID      string `json:"message_id"`
	RunID          int64  `json:"run_id"`
	JobID          int64  `json:"job_id"`
	Company        string `json:"company"`
	RawContentPath string `json:"raw_content_path"`
	UserID         string `json:"user_context"`
}
