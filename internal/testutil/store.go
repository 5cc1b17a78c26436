package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/taskmarket/internal/store"
)

// NewStore opens a fresh store in a temp directory and closes it when the
// test ends.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	return OpenStore(t, filepath.Join(t.TempDir(), "test.db"))
}

// OpenStore opens the store at path and closes it when the test ends.
// Two calls with the same path give two independent connections to one
// database, the way two processes would see it.
func OpenStore(t testing.TB, path string) *store.Store {
	t.Helper()
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open(%q) failed: %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
