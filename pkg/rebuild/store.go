package rebuild

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/solaius/pathkeeper/pkg/pathdb"
)

// JobStore provides database operations for rebuild jobs.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// AutoMigrate creates or updates the rebuild_jobs table. Idempotency keys
// are unique only among non-empty values, so the uniqueness lives in a
// partial index rather than the column tag; jobs without a key and terminal
// jobs whose key was cleared never collide.
func (s *JobStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&RebuildJob{}); err != nil {
		return fmt.Errorf("auto-migrate rebuild_jobs: %w", err)
	}
	if pathdb.SupportsPartialIndexes(s.db) {
		err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_rebuild_idemp_unique
			ON rebuild_jobs (idempotency_key) WHERE idempotency_key <> ''`).Error
		if err != nil {
			return fmt.Errorf("create idempotency key unique index: %w", err)
		}
	}
	return nil
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	EntityType  string
	State       string
	RequestedBy string
}

// Enqueue creates a new queued job. If idempotencyKey is non-empty and a
// non-terminal job with the same key exists, the existing job is returned
// instead of creating a duplicate. Safe for concurrent use.
func (s *JobStore) Enqueue(job *RebuildJob) (*RebuildJob, error) {
	if job.State == "" {
		job.State = JobStateQueued
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now()
	}

	if job.IdempotencyKey == "" {
		if err := s.db.Create(job).Error; err != nil {
			return nil, fmt.Errorf("enqueue rebuild job: %w", err)
		}
		return job, nil
	}

	var result *RebuildJob
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Check for an existing non-terminal job with this key.
		var existing RebuildJob
		err := tx.Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey,
			[]JobState{JobStateQueued, JobStateRunning}).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// Clear the idempotency key on terminal jobs with the same key so
		// the unique index doesn't block creating a new job.
		tx.Model(&RebuildJob{}).
			Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey,
				[]JobState{JobStateSucceeded, JobStateFailed, JobStateCanceled}).
			Update("idempotency_key", "")

		if err := tx.Create(job).Error; err != nil {
			// Another enqueue may have won the key between the check and
			// the create. Return the winner. The transaction handle is
			// tried first; dialects that poison the transaction after an
			// error fall through to a fresh read.
			var winner RebuildJob
			lookupErr := tx.Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey,
				[]JobState{JobStateQueued, JobStateRunning}).First(&winner).Error
			if lookupErr != nil {
				lookupErr = s.db.Where("idempotency_key = ? AND state IN ?", job.IdempotencyKey,
					[]JobState{JobStateQueued, JobStateRunning}).First(&winner).Error
			}
			if lookupErr == nil {
				result = &winner
				return nil
			}
			return fmt.Errorf("enqueue rebuild job: %w", err)
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Claim atomically picks a queued job and transitions it to running.
// Uses FOR UPDATE SKIP LOCKED where supported (PostgreSQL).
// Returns nil if no jobs are available.
func (s *JobStore) Claim(maxRetries int) (*RebuildJob, error) {
	var job RebuildJob

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Attempt FOR UPDATE SKIP LOCKED (PostgreSQL). For SQLite or
		// databases that don't support it, fall back to a plain SELECT.
		result := tx.Raw(`
			SELECT * FROM rebuild_jobs
			WHERE state = ? AND attempt_count <= ?
			ORDER BY requested_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, JobStateQueued, maxRetries).Scan(&job)

		if result.Error != nil {
			result = tx.Where("state = ? AND attempt_count <= ?", JobStateQueued, maxRetries).
				Order("requested_at ASC").
				Limit(1).
				First(&job)
			if result.Error != nil {
				if result.Error == gorm.ErrRecordNotFound {
					return nil
				}
				return result.Error
			}
		}

		if job.ID == "" {
			return nil
		}

		now := time.Now()
		return tx.Model(&RebuildJob{}).Where("id = ? AND state = ?", job.ID, JobStateQueued).
			Updates(map[string]any{
				"state":         JobStateRunning,
				"started_at":    now,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim rebuild job: %w", err)
	}

	if job.ID == "" {
		return nil, nil
	}

	if err := s.db.First(&job, "id = ?", job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload claimed job: %w", err)
	}
	return &job, nil
}

// Complete marks a job as succeeded with its result counters.
func (s *JobStore) Complete(jobID string, synced, changed, failed int, durationMs int64) error {
	now := time.Now()
	result := s.db.Model(&RebuildJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":           JobStateSucceeded,
		"finished_at":     now,
		"entities_synced": synced,
		"paths_changed":   changed,
		"entities_failed": failed,
		"duration_ms":     durationMs,
		"message":         fmt.Sprintf("Synced %d entities, %d paths changed, %d failed", synced, changed, failed),
	})
	if result.Error != nil {
		return fmt.Errorf("complete rebuild job: %w", result.Error)
	}
	return nil
}

// Fail marks a job as failed. If the attempt count is within retries, it
// re-queues the job for retry.
func (s *JobStore) Fail(jobID string, errMsg string, maxRetries int) error {
	now := time.Now()

	var job RebuildJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("load rebuild job for fail: %w", err)
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": now,
	}
	if job.AttemptCount < maxRetries {
		updates["state"] = JobStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["state"] = JobStateFailed
		updates["message"] = "Max retries exceeded: " + errMsg
	}

	result := s.db.Model(&RebuildJob{}).Where("id = ?", jobID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("fail rebuild job: %w", result.Error)
	}
	return nil
}

// Cancel marks a queued job as canceled. Running jobs cannot be canceled
// through this method.
func (s *JobStore) Cancel(jobID string) error {
	now := time.Now()
	result := s.db.Model(&RebuildJob{}).
		Where("id = ? AND state = ?", jobID, JobStateQueued).
		Updates(map[string]any{
			"state":       JobStateCanceled,
			"finished_at": now,
			"message":     "Canceled by user",
		})
	if result.Error != nil {
		return fmt.Errorf("cancel rebuild job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var job RebuildJob
		if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("rebuild job not found: %s", jobID)
			}
			return fmt.Errorf("check rebuild job: %w", err)
		}
		return fmt.Errorf("rebuild job %s is in state %s, only queued jobs can be canceled", jobID, job.State)
	}
	return nil
}

// Get retrieves a job by ID. Returns nil, nil if no job exists.
func (s *JobStore) Get(jobID string) (*RebuildJob, error) {
	var job RebuildJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get rebuild job: %w", err)
	}
	return &job, nil
}

// List returns paginated jobs matching the filter, newest request first.
// pageToken is an RFC3339Nano timestamp; jobs requested before it are
// returned.
func (s *JobStore) List(filter JobListFilter, pageSize int, pageToken string) ([]RebuildJob, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&RebuildJob{})
		if filter.EntityType != "" {
			q = q.Where("entity_type = ?", filter.EntityType)
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		if filter.RequestedBy != "" {
			q = q.Where("requested_by = ?", filter.RequestedBy)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count rebuild jobs: %w", err)
	}

	query := buildQuery(s.db).Order("requested_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("requested_at < ?", t)
	}

	var jobs []RebuildJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list rebuild jobs: %w", err)
	}

	var nextToken string
	if len(jobs) > pageSize {
		nextToken = jobs[pageSize-1].RequestedAt.Format(time.RFC3339Nano)
		jobs = jobs[:pageSize]
	}

	return jobs, nextToken, int(totalSize), nil
}

// CleanupStuck re-queues jobs that have been running longer than the claim
// timeout, assuming the worker died mid-run.
func (s *JobStore) CleanupStuck(claimTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-claimTimeout)
	result := s.db.Model(&RebuildJob{}).
		Where("state = ? AND started_at < ?", JobStateRunning, cutoff).
		Updates(map[string]any{
			"state":      JobStateQueued,
			"started_at": nil,
			"last_error": "requeued: worker did not finish within claim timeout",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup stuck rebuild jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeOld permanently removes terminal jobs older than the retention window.
func (s *JobStore) PurgeOld(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.db.
		Where("state IN ? AND finished_at < ?",
			[]JobState{JobStateSucceeded, JobStateFailed, JobStateCanceled}, cutoff).
		Delete(&RebuildJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge old rebuild jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
