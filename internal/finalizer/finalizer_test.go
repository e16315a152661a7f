package finalizer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/zduanx/jobtrawl/internal/models"
	"github.com/zduanx/jobtrawl/internal/state"
)

func setupRun(t *testing.T) (*state.DB, *state.RunStore, *state.JobStore, int64) {
	t.Helper()
	db, err := state.Open(":memory:", arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runs := state.NewRunStore(db)
	jobs := state.NewJobStore(db)

	runID, err := runs.Create(context.Background(), "user-1", false)
	require.NoError(t, err)

	return db, runs, jobs, runID
}

func TestTryFinalizeNoopWhilePending(t *testing.T) {
	_, runs, jobs, runID := setupRun(t)
	ctx := context.Background()

	_, err := jobs.Upsert(ctx, runID, "user-1", "acme", "ext-1", "u", "t", "l")
	require.NoError(t, err)

	f := New(runs, jobs, arbor.NewLogger())
	require.NoError(t, f.TryFinalize(ctx, runID))

	run, err := runs.Get(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusPending, run.Status)
}

func TestTryFinalizeCompletesWhenAllTerminal(t *testing.T) {
	_, runs, jobs, runID := setupRun(t)
	ctx := context.Background()

	jobID, err := jobs.Upsert(ctx, runID, "user-1", "acme", "ext-1", "u", "t", "l")
	require.NoError(t, err)
	require.NoError(t, runs.MarkInitializing(ctx, runID))
	require.NoError(t, runs.MarkIngesting(ctx, runID, 1))
	require.NoError(t, jobs.MarkSkipped(ctx, jobID, 42))

	f := New(runs, jobs, arbor.NewLogger())
	require.NoError(t, f.TryFinalize(ctx, runID))

	run, err := runs.Get(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFinished, run.Status)
	require.Equal(t, 1, run.JobsSkipped)
}

func TestTryFinalizeOnlyOneWinnerUnderConcurrency(t *testing.T) {
	_, runs, jobs, runID := setupRun(t)
	ctx := context.Background()

	var jobIDs []int64
	for i := 0; i < 5; i++ {
		id, err := jobs.Upsert(ctx, runID, "user-1", "acme", string(rune('a'+i)), "u", "t", "l")
		require.NoError(t, err)
		jobIDs = append(jobIDs, id)
	}
	require.NoError(t, runs.MarkInitializing(ctx, runID))
	require.NoError(t, runs.MarkIngesting(ctx, runID, len(jobIDs)))

	f := New(runs, jobs, arbor.NewLogger())

	var wg sync.WaitGroup
	for _, id := range jobIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, jobs.MarkSkipped(ctx, id, 42))
			require.NoError(t, f.TryFinalize(ctx, runID))
		}()
	}
	wg.Wait()

	run, err := runs.Get(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFinished, run.Status)
	require.Equal(t, len(jobIDs), run.JobsSkipped)
}
