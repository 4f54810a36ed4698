package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator hands out run ids "<prefix>-0001", "<prefix>-0002", ...
//
// This enables deterministic test execution and golden snapshot comparison.
// Unlike engine.FixedGenerator it never runs out, so it suits explorations
// whose run count depends on which hops fail.
//
// Thread-safety: SequenceGenerator is safe for concurrent use, but the
// mapping from id to run is only stable when runs start sequentially.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceGenerator creates a generator. If prefix is empty, "run" is used.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
//
// Implements engine.RunIDGenerator interface.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%04d", g.prefix, g.next)
}
