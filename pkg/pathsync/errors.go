package pathsync

import "errors"

// ErrSlugConflict is returned when another active entity of the same type and
// group already owns the requested slug. Callers recover by prompting for a
// different slug; the engine never resolves the conflict silently.
var ErrSlugConflict = errors.New("slug already in use by another entity")

// ErrPathConflict is returned when another active entity, of any type,
// already owns the computed full path. During cascades this aborts the one
// descendant's update without unwinding the ancestor's committed change.
var ErrPathConflict = errors.New("path already owned by another entity")

// ErrPathTooLong is returned when a computed or requested path exceeds the
// configured maximum. The input is rejected before any write.
var ErrPathTooLong = errors.New("path exceeds maximum length")

// ErrNotFound is returned by or-fail convenience lookups when no record
// matches. The read-path resolver reports misses as a NotFound outcome
// instead of an error.
var ErrNotFound = errors.New("record not found")
