// Package xid issues prefixed identifiers for requests and background jobs.
package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns prefix-<uuid v7>, falling back to a random v4 when the clock
// source fails. V7 ids sort by creation time, which keeps log greps ordered.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}

// Sanitize accepts a caller-supplied id only when it is short and printable,
// otherwise it issues a fresh one.
func Sanitize(prefix string, candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || len(candidate) > 64 {
		return New(prefix)
	}
	for _, r := range candidate {
		if r < 0x21 || r > 0x7e {
			return New(prefix)
		}
	}
	return candidate
}
