package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an exact flat index using squared Euclidean distance.
type MemoryIndex struct {
	mu       sync.RWMutex
	dims     int
	snippets []Snippet
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Add(_ context.Context, snippets []Snippet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snippet := range snippets {
		if len(snippet.Vector) == 0 {
			return fmt.Errorf("snippet %d has no vector", snippet.ID)
		}
		if m.dims == 0 {
			m.dims = len(snippet.Vector)
		}
		if len(snippet.Vector) != m.dims {
			return fmt.Errorf("snippet %d has %d dimensions, want %d", snippet.ID, len(snippet.Vector), m.dims)
		}
		m.snippets = append(m.snippets, snippet)
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.snippets) == 0 {
		return nil, nil
	}
	if len(vector) != m.dims {
		return nil, fmt.Errorf("query has %d dimensions, want %d", len(vector), m.dims)
	}

	matches := make([]Match, len(m.snippets))
	for i, snippet := range m.snippets {
		matches[i] = Match{Snippet: snippet, Distance: squaredL2(vector, snippet.Vector)}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MemoryIndex) Close() error { return nil }

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
