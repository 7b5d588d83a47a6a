package testutil

import (
	"fmt"
	"sync"
)

// SequenceNames generates predictable dataset names for tests.
//
// Unlike the store's UUIDv7 generator, SequenceNames can be reset so the
// same test produces the same SQL every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceNames struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceNames creates a generator. The first name is prefix_1.
// If prefix is empty, "reljoin_test" is used.
func NewSequenceNames(prefix string) *SequenceNames {
	if prefix == "" {
		prefix = "reljoin_test"
	}
	return &SequenceNames{prefix: prefix}
}

// Generate returns the next name.
func (g *SequenceNames) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s_%d", g.prefix, g.seq)
}

// Reset restarts the sequence.
func (g *SequenceNames) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
