package rebuild

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/solaius/pathkeeper/pkg/pathsync"
)

// Rebuilder executes one bulk rebuild pass. Satisfied by *pathsync.Engine.
type Rebuilder interface {
	Rebuild(ctx context.Context, entityType string, opts pathsync.RebuildOptions) (pathsync.RebuildResult, error)
}

// WorkerPool processes queued rebuild jobs using a pool of goroutines.
type WorkerPool struct {
	store     *JobStore
	rebuilder Rebuilder
	cfg       *RebuildConfig
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store *JobStore, rebuilder Rebuilder, cfg *RebuildConfig, logger *slog.Logger) *WorkerPool {
	if cfg == nil {
		cfg = DefaultRebuildConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		store:     store,
		rebuilder: rebuilder,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run starts the worker pool. It spawns cfg.Concurrency goroutines, each
// polling for jobs, plus a stuck-job cleanup loop. It blocks until the
// context is cancelled, then waits for all workers to finish.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || !wp.cfg.Enabled {
		wp.logger.Info("rebuild worker pool disabled")
		return
	}

	wp.logger.Info("rebuild worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"maxRetries", wp.cfg.MaxRetries,
		"pollInterval", wp.cfg.PollInterval.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("rebuild worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("rebuild worker pool stopped")
}

// workerLoop is the main loop for a single worker goroutine.
func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.ProcessOne(ctx, workerID)
		}
	}
}

// ProcessOne tries to claim and process a single job. Exported so tests and
// synchronous callers can drain the queue without the poll loop.
func (wp *WorkerPool) ProcessOne(ctx context.Context, workerID int) {
	job, err := wp.store.Claim(wp.cfg.MaxRetries)
	if err != nil {
		wp.logger.Error("failed to claim rebuild job", "workerID", workerID, "error", err)
		return
	}
	if job == nil {
		return
	}

	wp.logger.Info("processing rebuild job",
		"workerID", workerID, "jobID", job.ID, "entityType", job.EntityType,
		"attempt", job.AttemptCount)

	start := time.Now()
	result, err := wp.rebuilder.Rebuild(ctx, job.EntityType, pathsync.RebuildOptions{
		Filter:    job.Filter,
		BatchSize: job.BatchSize,
	})
	elapsed := time.Since(start)

	if err != nil {
		wp.logger.Warn("rebuild job failed",
			"workerID", workerID, "jobID", job.ID, "error", err)
		if failErr := wp.store.Fail(job.ID, err.Error(), wp.cfg.MaxRetries); failErr != nil {
			wp.logger.Error("failed to mark rebuild job failed", "jobID", job.ID, "error", failErr)
		}
		return
	}

	if err := wp.store.Complete(job.ID, result.Synced, result.Changed, result.Failed, elapsed.Milliseconds()); err != nil {
		wp.logger.Error("failed to mark rebuild job complete", "jobID", job.ID, "error", err)
		return
	}

	wp.logger.Info("rebuild job finished",
		"workerID", workerID, "jobID", job.ID,
		"synced", result.Synced, "changed", result.Changed, "failed", result.Failed,
		"duration", elapsed.String())
}

// cleanupLoop periodically requeues stuck jobs and purges old terminal ones.
func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(wp.cfg.ClaimTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := wp.store.CleanupStuck(wp.cfg.ClaimTimeout); err != nil {
				wp.logger.Error("stuck job cleanup failed", "error", err)
			} else if n > 0 {
				wp.logger.Warn("requeued stuck rebuild jobs", "count", n)
			}
			retention := time.Duration(wp.cfg.RetentionDays) * 24 * time.Hour
			if _, err := wp.store.PurgeOld(retention); err != nil {
				wp.logger.Error("old job purge failed", "error", err)
			}
		}
	}
}
