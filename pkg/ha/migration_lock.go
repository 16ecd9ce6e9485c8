// Package ha provides primitives for running the pathkeeper server with
// multiple replicas. Schema migrations are serialized through a database
// lock so concurrent AutoMigrate calls from different replicas cannot
// interleave.
package ha

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// MigrationLocker serializes schema migrations across replicas.
type MigrationLocker interface {
	// WithLock executes fn while holding the migration lock. It blocks
	// until the lock is acquired and releases it after fn returns.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker creates a MigrationLocker for the database dialect.
// PostgreSQL uses advisory locks; other databases fall back to a lock
// table. The lock table is created eagerly so the first WithLock never
// races table creation.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	if db == nil {
		return &noopLock{}
	}
	if db.Dialector.Name() == "postgres" {
		return &advisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte("pathkeeper-migration"))),
		}
	}
	lock := &tableLock{db: db}
	_ = db.AutoMigrate(&lockRecord{})
	return lock
}

// noopLock is used when no database is configured.
type noopLock struct{}

func (n *noopLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// advisoryLock serializes through a PostgreSQL advisory lock.
type advisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *advisoryLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_ = l.db.Exec("SELECT pg_advisory_unlock(?)", l.lockID).Error
	}()

	return fn()
}

// lockRecord is the lock row for the table-based fallback.
type lockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (lockRecord) TableName() string { return "migration_lock" }

// tableLock serializes through INSERT-or-fail on a single lock row,
// for databases without advisory locks (SQLite, MySQL). Stale rows are
// cleaned up so a crashed holder does not wedge the next migration.
type tableLock struct {
	db *gorm.DB
}

func (l *tableLock) WithLock(ctx context.Context, fn func() error) error {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	row := lockRecord{
		ID:       "migration",
		LockedBy: hostname,
	}

	const maxRetries = 30
	const retryInterval = 1 * time.Second
	const staleLockAge = 5 * time.Minute

	acquired := false
	for i := 0; i < maxRetries; i++ {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", "migration", time.Now().Add(-staleLockAge)).
			Delete(&lockRecord{})

		row.LockedAt = time.Now()

		result := l.db.WithContext(ctx).Create(&row)
		if result.Error == nil {
			acquired = true
			break
		}

		if i == maxRetries-1 {
			return fmt.Errorf("acquire migration lock after %d retries: %w", maxRetries, result.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	if !acquired {
		return fmt.Errorf("acquire migration lock")
	}

	defer func() {
		l.db.Where("id = ?", "migration").Delete(&lockRecord{})
	}()

	return fn()
}
