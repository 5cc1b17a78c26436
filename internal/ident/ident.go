// Package ident generates record identifiers and supplies wall-clock time.
package ident

import (
	"time"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable identifiers: a millisecond timestamp in
// the high bits followed by random bits, so ids sort by creation time and
// collisions are practically impossible.
//
// Format: Prefix + "0190a6e0-7c1b-7d3e-9a43-1f2e3d4c5b6a"
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct {
	Prefix string
}

// Generate returns a new prefixed UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7) Generate() string {
	return g.Prefix + uuid.Must(uuid.NewV7()).String()
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
