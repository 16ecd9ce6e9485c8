// Package rebuild provides the persistent job queue and worker pool behind
// administrative bulk path rebuilds.
package rebuild

import (
	"time"
)

// JobState represents the lifecycle state of a rebuild job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// RebuildJob is the GORM model for a queued bulk rebuild.
type RebuildJob struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	EntityType     string     `gorm:"column:entity_type;index:idx_rebuild_type_state,priority:1;not null"`
	Filter         string     `gorm:"column:filter"`
	BatchSize      int        `gorm:"column:batch_size"`
	RequestedBy    string     `gorm:"column:requested_by;not null"`
	RequestedAt    time.Time  `gorm:"column:requested_at;not null"`
	State          JobState   `gorm:"column:state;index:idx_rebuild_type_state,priority:2;index:idx_rebuild_state;not null;default:queued"`
	Message        string     `gorm:"column:message"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at"`
	AttemptCount   int        `gorm:"column:attempt_count;default:0"`
	LastError      string     `gorm:"column:last_error"`
	IdempotencyKey string     `gorm:"column:idempotency_key;index:idx_rebuild_idemp_key"`
	EntitiesSynced int        `gorm:"column:entities_synced"`
	PathsChanged   int        `gorm:"column:paths_changed"`
	EntitiesFailed int        `gorm:"column:entities_failed"`
	DurationMs     int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (RebuildJob) TableName() string { return "rebuild_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *RebuildJob) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}
