package rebuild

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, NewJobStore(db).AutoMigrate())
	return db
}

func newTestJob(entityType, filter string) *RebuildJob {
	return &RebuildJob{
		ID:             uuid.New().String(),
		EntityType:     entityType,
		Filter:         filter,
		RequestedBy:    "test-user",
		RequestedAt:    time.Now(),
		State:          JobStateQueued,
		IdempotencyKey: entityType + ":" + filter,
	}
}

func TestEnqueueCreatesJob(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job := newTestJob("category", "")
	created, err := store.Enqueue(job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, created.ID)
	assert.Equal(t, JobStateQueued, created.State)
	assert.Equal(t, "category", created.EntityType)
}

func TestEnqueueIdempotencyReturnsDuplicate(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job1 := newTestJob("category", "")
	created1, err := store.Enqueue(job1)
	require.NoError(t, err)

	// Same idempotency key, different ID.
	job2 := newTestJob("category", "")
	job2.IdempotencyKey = job1.IdempotencyKey
	created2, err := store.Enqueue(job2)
	require.NoError(t, err)

	// Should return the original, not create a new one.
	assert.Equal(t, created1.ID, created2.ID)
}

func TestEnqueueIdempotencyAllowsAfterTerminal(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job1 := newTestJob("category", "")
	created1, err := store.Enqueue(job1)
	require.NoError(t, err)
	require.NoError(t, store.Complete(created1.ID, 10, 3, 0, 50))

	job2 := newTestJob("category", "")
	job2.IdempotencyKey = created1.IdempotencyKey
	created2, err := store.Enqueue(job2)
	require.NoError(t, err)

	// Terminal jobs don't block re-enqueue with the same key.
	assert.NotEqual(t, created1.ID, created2.ID)
	assert.Equal(t, JobStateQueued, created2.State)
}

func TestClaimTransitionsToRunning(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job := newTestJob("item", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)

	claimed, err := store.Claim(3)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, JobStateRunning, claimed.State)
	assert.Equal(t, 1, claimed.AttemptCount)
	assert.NotNil(t, claimed.StartedAt)
}

func TestClaimReturnsNilWhenEmpty(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	claimed, err := store.Claim(3)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimOldestFirst(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	old := newTestJob("category", "old")
	old.RequestedAt = time.Now().Add(-time.Hour)
	_, err := store.Enqueue(old)
	require.NoError(t, err)

	recent := newTestJob("category", "recent")
	_, err = store.Enqueue(recent)
	require.NoError(t, err)

	claimed, err := store.Claim(3)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, old.ID, claimed.ID)
}

func TestCompleteRecordsCounters(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job := newTestJob("item", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)
	_, err = store.Claim(3)
	require.NoError(t, err)

	require.NoError(t, store.Complete(job.ID, 42, 7, 1, 1234))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStateSucceeded, got.State)
	assert.Equal(t, 42, got.EntitiesSynced)
	assert.Equal(t, 7, got.PathsChanged)
	assert.Equal(t, 1, got.EntitiesFailed)
	assert.Equal(t, int64(1234), got.DurationMs)
	assert.NotNil(t, got.FinishedAt)
}

func TestFailRequeuesWithinRetries(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job := newTestJob("item", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)
	_, err = store.Claim(3)
	require.NoError(t, err)

	require.NoError(t, store.Fail(job.ID, "transient error", 3))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStateQueued, got.State)
	assert.Equal(t, "transient error", got.LastError)
	assert.Nil(t, got.FinishedAt)
}

func TestFailTerminalAfterMaxRetries(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job := newTestJob("item", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		claimed, err := store.Claim(3)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		require.NoError(t, store.Fail(job.ID, "persistent error", 3))
	}

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStateFailed, got.State)
	assert.Contains(t, got.Message, "Max retries exceeded")
}

func TestCancelQueuedJob(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job := newTestJob("category", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)

	require.NoError(t, store.Cancel(job.ID))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, JobStateCanceled, got.State)
}

func TestCancelRunningJobFails(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job := newTestJob("category", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)
	_, err = store.Claim(3)
	require.NoError(t, err)

	err = store.Cancel(job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only queued jobs")
}

func TestCancelUnknownJob(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	err := store.Cancel("no-such-job")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetMissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	got, err := store.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListFiltersAndPaginates(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		job := newTestJob("category", "")
		job.IdempotencyKey = ""
		job.RequestedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.Enqueue(job)
		require.NoError(t, err)
	}
	other := newTestJob("item", "")
	other.RequestedAt = base.Add(10 * time.Minute)
	_, err := store.Enqueue(other)
	require.NoError(t, err)

	jobs, nextToken, total, err := store.List(JobListFilter{EntityType: "category"}, 2, "")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, 5, total)
	require.NotEmpty(t, nextToken)

	// Newest first, second page continues where the first stopped.
	page2, _, _, err := store.List(JobListFilter{EntityType: "category"}, 2, nextToken)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.True(t, page2[0].RequestedAt.Before(jobs[1].RequestedAt))
}

func TestListFilterByState(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	queued := newTestJob("category", "a")
	_, err := store.Enqueue(queued)
	require.NoError(t, err)

	done := newTestJob("category", "b")
	_, err = store.Enqueue(done)
	require.NoError(t, err)
	require.NoError(t, store.Complete(done.ID, 1, 1, 0, 10))

	jobs, _, total, err := store.List(JobListFilter{State: string(JobStateSucceeded)}, 20, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, jobs, 1)
	assert.Equal(t, done.ID, jobs[0].ID)
}

func TestCleanupStuckRequeues(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	job := newTestJob("item", "")
	_, err := store.Enqueue(job)
	require.NoError(t, err)
	_, err = store.Claim(3)
	require.NoError(t, err)

	// Backdate the claim beyond the timeout.
	old := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&RebuildJob{}).Where("id = ?", job.ID).
		Update("started_at", old).Error)

	n, err := store.CleanupStuck(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, got.State)
}

func TestPurgeOldRemovesTerminalJobs(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	done := newTestJob("item", "old")
	_, err := store.Enqueue(done)
	require.NoError(t, err)
	require.NoError(t, store.Complete(done.ID, 1, 0, 0, 5))
	old := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, db.Model(&RebuildJob{}).Where("id = ?", done.ID).
		Update("finished_at", old).Error)

	queued := newTestJob("item", "keep")
	_, err = store.Enqueue(queued)
	require.NoError(t, err)

	n, err := store.PurgeOld(7 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := store.Get(done.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := store.Get(queued.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestEnqueueDuplicateKeyRaceReturnsWinner(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)

	// Simulate a competing enqueue landing between the idempotency lookup
	// and the insert by slipping the winner in just before the create
	// statement runs.
	winnerID := uuid.New().String()
	planted := false
	err := db.Callback().Create().Before("gorm:create").Register("competing_enqueue", func(d *gorm.DB) {
		if planted {
			return
		}
		planted = true
		_, execErr := d.Statement.ConnPool.ExecContext(d.Statement.Context,
			`INSERT INTO rebuild_jobs (id, entity_type, requested_by, requested_at, state, idempotency_key)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			winnerID, "category", "other-replica", time.Now(), string(JobStateQueued), "category:contested")
		require.NoError(t, execErr)
	})
	require.NoError(t, err)

	job := newTestJob("category", "")
	job.IdempotencyKey = "category:contested"
	got, err := store.Enqueue(job)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, winnerID, got.ID)

	var count int64
	require.NoError(t, db.Model(&RebuildJob{}).
		Where("idempotency_key = ?", "category:contested").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnqueueWithoutKeyNeverCollides(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	for i := 0; i < 3; i++ {
		job := newTestJob("category", "")
		job.IdempotencyKey = ""
		_, err := store.Enqueue(job)
		require.NoError(t, err)
	}

	jobs, _, _, err := store.List(JobListFilter{}, 10, "")
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}
