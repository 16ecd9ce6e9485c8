package slugify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Electronics", "electronics"},
		{"trims whitespace", "  Summer Sale  ", "summer-sale"},
		{"collapses punctuation runs", "a -- b!!c", "a-b-c"},
		{"strips edge hyphens", "--hello--", "hello"},
		{"transliterates", "Küchengeräte", "kuchengerate"},
		{"empty", "", ""},
		{"only punctuation", "!!! ---", ""},
		{"digits kept", "top 10 items", "top-10-items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Make(tt.in))
		})
	}
}

func TestMakeTruncates(t *testing.T) {
	long := strings.Repeat("abcde-", 40)
	got := Make(long)
	assert.LessOrEqual(t, len(got), MaxLength)
	assert.False(t, strings.HasSuffix(got, "-"), "truncation must not leave a trailing hyphen")
	assert.True(t, IsValid(got))
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("summer-sale"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("Has Spaces"))
	assert.False(t, IsValid(strings.Repeat("a", MaxLength+1)))
}
