package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zduanx/jobtrawl/internal/errs"
	"github.com/zduanx/jobtrawl/internal/models"
)

// JobStore persists Job rows, keyed by the natural key
// (user_id, company, external_id).
type JobStore struct {
	db *DB
}

// NewJobStore builds a JobStore over an open state store connection.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// Upsert inserts a newly-listed posting or, if one already exists for the
// same natural key, re-associates it with the current run and resets it to
// pending. Idempotent: receiving the same listing twice in one run is safe.
func (s *JobStore) Upsert(ctx context.Context, runID int64, userID, company, externalID, url, title, location string) (int64, error) {
	now := time.Now().UTC()
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO job (run_id, user_id, company, external_id, url, status, title, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, company, external_id) DO UPDATE SET
			run_id = excluded.run_id,
			url = excluded.url,
			status = excluded.status,
			title = excluded.title,
			location = excluded.location,
			updated_at = excluded.updated_at
	`, runID, userID, company, externalID, url, models.JobStatusPending, title, location, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert job %s/%s: %w", company, externalID, err)
	}

	// The id is always looked up by natural key: when the statement takes the
	// DO UPDATE path, SQLite's last-insert rowid still holds whatever row was
	// last inserted on this connection, which may be a different job.
	var id int64
	err = s.db.conn.GetContext(ctx, &id, `
		SELECT id FROM job WHERE user_id = ? AND company = ? AND external_id = ?
	`, userID, company, externalID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve id for upserted job %s/%s: %w", company, externalID, err)
	}
	return id, nil
}

// GetByID returns the job with the given ID.
func (s *JobStore) GetByID(ctx context.Context, jobID int64) (*models.Job, error) {
	var job models.Job
	err := s.db.conn.GetContext(ctx, &job, `SELECT * FROM job WHERE id = ?`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %d: %w", jobID, err)
	}
	return &job, nil
}

// PriorSimHash returns the fingerprint the crawler stored from the most
// recent successful fetch of this job, if any.
func (s *JobStore) PriorSimHash(ctx context.Context, jobID int64) (int64, bool, error) {
	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return 0, false, err
	}
	return job.SimHash, job.HasSimHash, nil
}

// MarkSkipped records that the crawler found the content unchanged. The
// simhash is written anyway: it's the fingerprint of the bytes just fetched,
// not of whatever produced the prior value, and it becomes the new
// comparison point for the next run regardless of the skip decision.
func (s *JobStore) MarkSkipped(ctx context.Context, jobID int64, simhash int64) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE job SET status = ?, simhash = ?, has_simhash = 1, error_message = '', updated_at = ?
		WHERE id = ?
	`, models.JobStatusSkipped, simhash, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %d skipped: %w", jobID, err)
	}
	return nil
}

// UpdateSimHash records the fingerprint of the raw bytes just fetched,
// without otherwise changing the job's status. Called by the crawler on the
// "changed" path, before handoff to the extractor, so the comparison basis
// for the next run is always the most recently fetched raw content.
func (s *JobStore) UpdateSimHash(ctx context.Context, jobID int64, simhash int64) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE job SET simhash = ?, has_simhash = 1, updated_at = ? WHERE id = ?
	`, simhash, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update simhash for job %d: %w", jobID, err)
	}
	return nil
}

// MarkReady records a successful extraction: parsed fields only. The
// simhash was already written by the crawler over the raw fetched bytes;
// extraction never recomputes or overwrites it.
func (s *JobStore) MarkReady(ctx context.Context, jobID int64, title, location, description, requirements string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE job SET status = ?, title = ?, location = ?,
			description = ?, requirements = ?, error_message = '', updated_at = ?
		WHERE id = ?
	`, models.JobStatusReady, title, location, description, requirements, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %d ready: %w", jobID, err)
	}
	return nil
}

// MarkError records a terminal failure for this job within the run.
func (s *JobStore) MarkError(ctx context.Context, jobID int64, errMsg string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE job SET status = ?, error_message = ?, updated_at = ? WHERE id = ?
	`, models.JobStatusError, errMsg, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %d error: %w", jobID, err)
	}
	return nil
}

// MarkExpiredAbsent marks as expired every job belonging to userID/company
// from a prior run that was NOT listed in the current run (runID), i.e. the
// posting has disappeared from the company's career page. Companies that
// failed to list this run are excluded by the caller (they simply aren't
// passed in), per the conservative "no expiry on list failure" rule.
// Expired jobs are reattributed to runID so CountersForRun's per-run
// aggregation (and the run's terminal snapshot) accounts for them.
func (s *JobStore) MarkExpiredAbsent(ctx context.Context, userID, company string, runID int64) (int, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE job SET status = ?, run_id = ?, updated_at = ?
		WHERE user_id = ? AND company = ? AND run_id != ? AND status != ?
	`, models.JobStatusExpired, runID, time.Now().UTC(), userID, company, runID, models.JobStatusExpired)
	if err != nil {
		return 0, fmt.Errorf("failed to mark expired jobs for %s/%s: %w", userID, company, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected expiring jobs for %s/%s: %w", userID, company, err)
	}
	return int(n), nil
}

// CountPendingForRun reports how many jobs in a run have not yet reached a
// terminal status. The finalizer polls this (via zero-check) to decide
// whether the run is done.
func (s *JobStore) CountPendingForRun(ctx context.Context, runID int64) (int, error) {
	var n int
	err := s.db.conn.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM job WHERE run_id = ? AND status = ?
	`, runID, models.JobStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs for run %d: %w", runID, err)
	}
	return n, nil
}

// CountersForRun aggregates terminal-status counts for a run, used both at
// normal finalization and when populating an aborted run's snapshot.
func (s *JobStore) CountersForRun(ctx context.Context, runID int64) (RunCounters, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM job WHERE run_id = ? GROUP BY status
	`, runID)
	if err != nil {
		return RunCounters{}, fmt.Errorf("failed to aggregate counters for run %d: %w", runID, err)
	}
	defer rows.Close()

	var c RunCounters
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return RunCounters{}, fmt.Errorf("failed to scan counter row for run %d: %w", runID, err)
		}
		switch models.JobStatus(status) {
		case models.JobStatusReady:
			c.Ready = count
		case models.JobStatusSkipped:
			c.Skipped = count
		case models.JobStatusExpired:
			c.Expired = count
		case models.JobStatusError:
			c.Failed = count
		}
	}
	return c, rows.Err()
}

// ListForRun returns every job associated with runID, for the progress
// streamer's snapshot-on-connect.
func (s *JobStore) ListForRun(ctx context.Context, runID int64) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.conn.SelectContext(ctx, &jobs, `
		SELECT * FROM job WHERE run_id = ? ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for run %d: %w", runID, err)
	}
	return jobs, nil
}

// ListUpdatedSince returns jobs in a run whose updated_at is after `since`,
// for the progress streamer's diff events.
func (s *JobStore) ListUpdatedSince(ctx context.Context, runID int64, since time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := s.db.conn.SelectContext(ctx, &jobs, `
		SELECT * FROM job WHERE run_id = ? AND updated_at > ? ORDER BY updated_at ASC
	`, runID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list updated jobs for run %d: %w", runID, err)
	}
	return jobs, nil
}

// DistinctCompaniesForRun lists the companies that have at least one job
// row in this run. The initializer does not use it: its expiry sweep works
// from the companies whose ListJobs call succeeded.
func (s *JobStore) DistinctCompaniesForRun(ctx context.Context, runID int64) ([]string, error) {
	var companies []string
	err := s.db.conn.SelectContext(ctx, &companies, `
		SELECT DISTINCT company FROM job WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies for run %d: %w", runID, err)
	}
	return companies, nil
}
