package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable task ids for tests: prefix-1, prefix-2, ...
//
// Unlike engine.FixedGenerator, SequentialIDs never runs out and can be reset
// for test reuse, so the same scenario run twice produces identical ids.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "task".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "task"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements engine.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
