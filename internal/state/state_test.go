package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/errs"
	"github.com/zduanx/jobtrawl/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	runs := NewRunStore(db)

	runID, err := runs.Create(ctx, "user-1", false)
	require.NoError(t, err)
	require.NotZero(t, runID)

	run, err := runs.Get(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusPending, run.Status)

	require.NoError(t, runs.MarkInitializing(ctx, runID))
	require.NoError(t, runs.MarkIngesting(ctx, runID, 3))

	ok, err := runs.Finalize(ctx, runID, models.RunStatusFinished, RunCounters{Ready: 2, Skipped: 1}, "")
	require.NoError(t, err)
	require.True(t, ok)

	// A second finalize attempt must not match (status is no longer "ingesting").
	ok, err = runs.Finalize(ctx, runID, models.RunStatusFinished, RunCounters{Ready: 2, Skipped: 1}, "")
	require.NoError(t, err)
	require.False(t, ok)

	run, err = runs.Get(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFinished, run.Status)
	require.Equal(t, 2, run.JobsReady)
}

func TestRunOwnership(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	runs := NewRunStore(db)

	runID, err := runs.Create(ctx, "user-1", false)
	require.NoError(t, err)

	_, err = runs.GetOwned(ctx, runID, "user-2")
	var ownershipErr *errs.OwnershipError
	require.ErrorAs(t, err, &ownershipErr)

	run, err := runs.GetOwned(ctx, runID, "user-1")
	require.NoError(t, err)
	require.Equal(t, runID, run.ID)
}

func TestRunNotFound(t *testing.T) {
	db := setupTestDB(t)
	runs := NewRunStore(db)

	_, err := runs.Get(context.Background(), 999)
	require.ErrorIs(t, err, errs.ErrRunNotFound)
}

func TestJobUpsertIsIdempotentByNaturalKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	runs := NewRunStore(db)
	jobs := NewJobStore(db)

	runID, err := runs.Create(ctx, "user-1", false)
	require.NoError(t, err)

	id1, err := jobs.Upsert(ctx, runID, "user-1", "acme", "ext-1", "https://acme.example/jobs/1", "Engineer", "Remote")
	require.NoError(t, err)

	id2, err := jobs.Upsert(ctx, runID, "user-1", "acme", "ext-1", "https://acme.example/jobs/1-renamed", "Senior Engineer", "Remote")
	require.NoError(t, err)

	require.Equal(t, id1, id2, "same natural key must resolve to the same row")

	job, err := jobs.GetByID(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, "Senior Engineer", job.Title)
	require.Equal(t, models.JobStatusPending, job.Status)
}

func TestJobMarkReadyAndSkipped(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	runs := NewRunStore(db)
	jobs := NewJobStore(db)

	runID, err := runs.Create(ctx, "user-1", false)
	require.NoError(t, err)

	jobID, err := jobs.Upsert(ctx, runID, "user-1", "acme", "ext-1", "https://acme.example/jobs/1", "Engineer", "Remote")
	require.NoError(t, err)

	require.NoError(t, jobs.UpdateSimHash(ctx, jobID, 12345))
	require.NoError(t, jobs.MarkReady(ctx, jobID, "Engineer", "Remote", "desc", "reqs"))
	job, err := jobs.GetByID(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusReady, job.Status)
	require.True(t, job.HasSimHash)
	require.EqualValues(t, 12345, job.SimHash)

	jobID2, err := jobs.Upsert(ctx, runID, "user-1", "acme", "ext-2", "https://acme.example/jobs/2", "Other", "Remote")
	require.NoError(t, err)
	require.NoError(t, jobs.MarkSkipped(ctx, jobID2, 67890))

	job2, err := jobs.GetByID(ctx, jobID2)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusSkipped, job2.Status)
}

func TestMarkExpiredAbsentExcludesCurrentRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	runs := NewRunStore(db)
	jobs := NewJobStore(db)

	run1, err := runs.Create(ctx, "user-1", false)
	require.NoError(t, err)
	jobID, err := jobs.Upsert(ctx, run1, "user-1", "acme", "ext-1", "https://acme.example/jobs/1", "Engineer", "Remote")
	require.NoError(t, err)
	require.NoError(t, jobs.MarkSkipped(ctx, jobID, 111))

	run2, err := runs.Create(ctx, "user-1", false)
	require.NoError(t, err)

	n, err := jobs.MarkExpiredAbsent(ctx, "user-1", "acme", run2)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	job, err := jobs.GetByID(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusExpired, job.Status)

	counters, err := jobs.CountersForRun(ctx, run2)
	require.NoError(t, err)
	require.Equal(t, 1, counters.Expired, "expired job must be attributed to the finalizing run for counting")
}

func TestCountPendingForRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	runs := NewRunStore(db)
	jobs := NewJobStore(db)

	runID, err := runs.Create(ctx, "user-1", false)
	require.NoError(t, err)

	id1, err := jobs.Upsert(ctx, runID, "user-1", "acme", "ext-1", "u1", "t1", "l1")
	require.NoError(t, err)
	_, err = jobs.Upsert(ctx, runID, "user-1", "acme", "ext-2", "u2", "t2", "l2")
	require.NoError(t, err)

	n, err := jobs.CountPendingForRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, jobs.MarkSkipped(ctx, id1, 222))
	n, err = jobs.CountPendingForRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
