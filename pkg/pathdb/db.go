package pathdb

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// SupportsPartialIndexes reports whether the dialect can scope a unique
// index to a subset of rows. Postgres and SQLite can; MySQL cannot, so
// there the transactional conflict checks are the only guard against
// concurrent writers.
func SupportsPartialIndexes(db *gorm.DB) bool {
	name := db.Dialector.Name()
	return name == "postgres" || name == "sqlite"
}

// IsUniqueViolation reports whether err is a unique-constraint violation
// from any of the supported dialects.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value violates unique constraint") || // postgres
		strings.Contains(msg, "Duplicate entry") // mysql
}
