// Package slugify normalizes raw, human-entered text into the URL-safe
// tokens that entities contribute to their path segments.
package slugify

import (
	"strings"

	"github.com/gosimple/slug"
)

// MaxLength is the maximum length of a normalized slug, in bytes.
const MaxLength = 100

// Make normalizes raw input into a slug: whitespace is trimmed, the text is
// lowercased and transliterated to ASCII, runs of non-alphanumeric characters
// collapse to a single hyphen, leading/trailing hyphens are stripped, and the
// result is truncated to MaxLength. An empty return value means no usable
// slug could be derived and callers must treat the input as "no slug
// supplied".
func Make(raw string) string {
	s := slug.Make(strings.TrimSpace(raw))
	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}
	return s
}

// IsValid reports whether s is already in normalized form and within the
// length limit. The empty string is not a valid slug.
func IsValid(s string) bool {
	return s != "" && len(s) <= MaxLength && slug.IsSlug(s)
}
