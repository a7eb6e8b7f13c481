package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a, b := New("req"), New("req")
	assert.True(t, strings.HasPrefix(a, "req-"))
	assert.NotEqual(t, a, b)
	assert.Len(t, New(""), 36)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "abc-123", Sanitize("req", " abc-123 "))
	assert.True(t, strings.HasPrefix(Sanitize("req", "has space"), "req-"))
	assert.True(t, strings.HasPrefix(Sanitize("req", strings.Repeat("x", 65)), "req-"))
	assert.True(t, strings.HasPrefix(Sanitize("req", ""), "req-"))
}
