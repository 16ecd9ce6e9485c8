package rebuild

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solaius/pathkeeper/pkg/pathsync"
)

// fakeRebuilder implements Rebuilder for tests.
type fakeRebuilder struct {
	result pathsync.RebuildResult
	err    error
	calls  int
	types  []string
}

func (f *fakeRebuilder) Rebuild(_ context.Context, entityType string, _ pathsync.RebuildOptions) (pathsync.RebuildResult, error) {
	f.calls++
	f.types = append(f.types, entityType)
	if f.err != nil {
		return pathsync.RebuildResult{}, f.err
	}
	return f.result, nil
}

func newTestPool(t *testing.T, rebuilder Rebuilder) (*WorkerPool, *JobStore) {
	t.Helper()
	db := setupTestDB(t)
	store := NewJobStore(db)
	cfg := DefaultRebuildConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorkerPool(store, rebuilder, cfg, logger), store
}

func TestProcessOneCompletesJob(t *testing.T) {
	fake := &fakeRebuilder{result: pathsync.RebuildResult{Synced: 10, Changed: 4, Failed: 1}}
	pool, store := newTestPool(t, fake)

	job := newTestJob("category", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)

	pool.ProcessOne(context.Background(), 0)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, []string{"category"}, fake.types)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStateSucceeded, got.State)
	assert.Equal(t, 10, got.EntitiesSynced)
	assert.Equal(t, 4, got.PathsChanged)
	assert.Equal(t, 1, got.EntitiesFailed)
}

func TestProcessOneNoJobsIsNoop(t *testing.T) {
	fake := &fakeRebuilder{}
	pool, _ := newTestPool(t, fake)

	pool.ProcessOne(context.Background(), 0)

	assert.Equal(t, 0, fake.calls)
}

func TestProcessOneRequeuesOnError(t *testing.T) {
	fake := &fakeRebuilder{err: errors.New("database unavailable")}
	pool, store := newTestPool(t, fake)

	job := newTestJob("item", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)

	pool.ProcessOne(context.Background(), 0)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStateQueued, got.State)
	assert.Equal(t, "database unavailable", got.LastError)
	assert.Equal(t, 1, got.AttemptCount)
}

func TestProcessOneFailsAfterMaxRetries(t *testing.T) {
	fake := &fakeRebuilder{err: errors.New("broken path builder")}
	pool, store := newTestPool(t, fake)

	job := newTestJob("item", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)

	for i := 0; i < pool.cfg.MaxRetries; i++ {
		pool.ProcessOne(context.Background(), 0)
	}

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStateFailed, got.State)
	assert.Contains(t, got.Message, "Max retries exceeded")
	assert.Equal(t, pool.cfg.MaxRetries, fake.calls)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	fake := &fakeRebuilder{}
	pool, _ := newTestPool(t, fake)
	pool.cfg.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not stop after context cancel")
	}
}

func TestRunDisabledReturnsImmediately(t *testing.T) {
	fake := &fakeRebuilder{}
	pool, _ := newTestPool(t, fake)
	pool.cfg.Enabled = false

	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker pool did not return")
	}
}
