// Package testutil provides shared test helpers: a temporary rule store and
// a deterministic embedding double.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/starford/othala/internal/embed"
	"github.com/starford/othala/internal/rules"
)

// StaticEmbedder is a deterministic embed.Provider for tests. Every distinct
// word gets its own basis vector, so equal words have cosine 1 and different
// words cosine 0. Explicit vectors can be injected through Vectors to model
// partial similarity.
type StaticEmbedder struct {
	// Vectors overrides the basis assignment for specific words.
	Vectors map[string][]float32

	mu    sync.Mutex
	index map[string]int
}

// Dim is the vector size produced by StaticEmbedder.
const Dim = 64

// Embed assigns (or reuses) a basis vector for the word.
func (s *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embed.ErrEmptyInput
	}
	if v, ok := s.Vectors[text]; ok {
		return v, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		s.index = make(map[string]int)
	}
	idx, ok := s.index[text]
	if !ok {
		idx = len(s.index) % Dim
		s.index[text] = idx
	}
	v := make([]float32, Dim)
	v[idx] = 1
	return v, nil
}

// Dimension returns the fixed test vector size.
func (s *StaticEmbedder) Dimension() int { return Dim }

// Close is a no-op.
func (s *StaticEmbedder) Close() error { return nil }

// Verify StaticEmbedder satisfies embed.Provider at compile time.
var _ embed.Provider = (*StaticEmbedder)(nil)

// TestStore creates a temporary SQLite rule store backed by a StaticEmbedder,
// cleaned up with the test.
func TestStore(t *testing.T) (*rules.DB, *StaticEmbedder) {
	t.Helper()
	dbFile, err := os.CreateTemp("", "othala-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	emb := &StaticEmbedder{}
	db, err := rules.Open(dbFile.Name(), emb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db, emb
}
