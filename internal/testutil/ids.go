package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator generates predictable identifiers: prefix followed by
// a counter starting at 1 ("task-1", "task-2", ...).
//
// This enables deterministic test execution and golden snapshot comparison.
// The same scenario with the same SequenceGenerator produces byte-identical
// store contents.
//
// Thread-safety: Generate is safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator for the given prefix.
//
// If prefix is empty, ids are "id-1", "id-2", ...
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "id-"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next identifier.
//
// Implements ident.Generator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%d", g.prefix, g.n)
}
