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

// RunStore persists Run rows and implements the run lifecycle transitions.
type RunStore struct {
	db *DB
}

// NewRunStore builds a RunStore over an open state store connection.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// Create inserts a new run in "pending" status and returns its assigned ID.
func (s *RunStore) Create(ctx context.Context, userID string, force bool) (int64, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO run (user_id, status, force, created_at)
		VALUES (?, ?, ?, ?)
	`, userID, models.RunStatusPending, force, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}
	return res.LastInsertId()
}

// Get returns the run with the given ID.
func (s *RunStore) Get(ctx context.Context, runID int64) (*models.Run, error) {
	var run models.Run
	err := s.db.conn.GetContext(ctx, &run, `SELECT * FROM run WHERE id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", runID, err)
	}
	return &run, nil
}

// GetOwned returns the run only if it belongs to userID, else an
// OwnershipError, so API handlers can return 404 without leaking existence.
func (s *RunStore) GetOwned(ctx context.Context, runID int64, userID string) (*models.Run, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, &errs.OwnershipError{RunID: runID, UserID: userID}
	}
	return run, nil
}

// CurrentForUser returns the most recent non-terminal run for userID, if
// any. Returns (nil, nil) when the user has no active run.
func (s *RunStore) CurrentForUser(ctx context.Context, userID string) (*models.Run, error) {
	var run models.Run
	err := s.db.conn.GetContext(ctx, &run, `
		SELECT * FROM run
		WHERE user_id = ? AND status NOT IN (?, ?, ?)
		ORDER BY id DESC LIMIT 1
	`, userID, models.RunStatusFinished, models.RunStatusError, models.RunStatusAborted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query current run for user %s: %w", userID, err)
	}
	return &run, nil
}

// MarkInitializing transitions a pending run to "initializing" and stamps
// started_at. Guarded so it only applies from the expected prior status.
func (s *RunStore) MarkInitializing(ctx context.Context, runID int64) error {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE run SET status = ?, started_at = ?
		WHERE id = ? AND status = ?
	`, models.RunStatusInitializing, time.Now().UTC(), runID, models.RunStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark run %d initializing: %w", runID, err)
	}
	return expectRowsAffected(res, "mark run initializing")
}

// MarkIngesting transitions an initializing run to "ingesting" once the
// initial job set has been enqueued, recording the total job count.
func (s *RunStore) MarkIngesting(ctx context.Context, runID int64, totalJobs int) error {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE run SET status = ?, total_jobs = ?
		WHERE id = ? AND status = ?
	`, models.RunStatusIngesting, totalJobs, runID, models.RunStatusInitializing)
	if err != nil {
		return fmt.Errorf("failed to mark run %d ingesting: %w", runID, err)
	}
	return expectRowsAffected(res, "mark run ingesting")
}

// Finalize is the "last worker wins" completion path: it flips an
// in-progress run to a terminal status only if it is still "ingesting",
// using a conditional UPDATE as the race-free guard (no application-level
// locking needed — whichever worker's UPDATE actually matches a row wins).
func (s *RunStore) Finalize(ctx context.Context, runID int64, status models.RunStatus, counters RunCounters, errMsg string) (bool, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE run SET status = ?, finished_at = ?, jobs_ready = ?, jobs_skipped = ?,
			jobs_expired = ?, jobs_failed = ?, error_message = ?
		WHERE id = ? AND status = ?
	`, status, time.Now().UTC(), counters.Ready, counters.Skipped, counters.Expired, counters.Failed,
		errMsg, runID, models.RunStatusIngesting)
	if err != nil {
		return false, fmt.Errorf("failed to finalize run %d: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected finalizing run %d: %w", runID, err)
	}
	return n == 1, nil
}

// Abort force-transitions a run to "aborted" from any non-terminal status,
// populating counters from whatever job statuses exist at abort time so the
// snapshot isn't left all-zero.
func (s *RunStore) Abort(ctx context.Context, runID int64, counters RunCounters) (bool, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE run SET status = ?, finished_at = ?, jobs_ready = ?, jobs_skipped = ?,
			jobs_expired = ?, jobs_failed = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)
	`, models.RunStatusAborted, time.Now().UTC(), counters.Ready, counters.Skipped, counters.Expired, counters.Failed,
		runID, models.RunStatusFinished, models.RunStatusError, models.RunStatusAborted)
	if err != nil {
		return false, fmt.Errorf("failed to abort run %d: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected aborting run %d: %w", runID, err)
	}
	return n == 1, nil
}

// RunCounters is the set of terminal job-count snapshots stored on a run
// when it finishes, fails, or is aborted.
type RunCounters struct {
	Ready   int
	Skipped int
	Expired int
	Failed  int
}

func expectRowsAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s: %w", op, err)
	}
	if n == 0 {
		return &errorNoRowsMatched{op: op}
	}
	return nil
}

type errorNoRowsMatched struct{ op string }

func (e *errorNoRowsMatched) Error() string {
	return fmt.Sprintf("%s: no matching row (status guard did not hold)", e.op)
}
