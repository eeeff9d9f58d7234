package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
)

// MockEmbedder produces deterministic vectors derived from the input text.
// Identical texts always map to identical vectors; fixtures can also pin
// exact vectors per text to control similarity in tests.
type MockEmbedder struct {
	mu     sync.Mutex
	dims   int
	pinned map[string][]float32
	calls  int
}

// NewMockEmbedder builds a MockEmbedder with the given dimensionality.
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &MockEmbedder{dims: dims, pinned: make(map[string][]float32)}
}

// Pin fixes the vector returned for text. The vector is normalized.
func (m *MockEmbedder) Pin(text string, vec []float32) {
	clone := make([]float32, len(vec))
	copy(clone, vec)
	Normalize(clone)
	m.mu.Lock()
	m.pinned[text] = clone
	m.mu.Unlock()
}

func (m *MockEmbedder) Dimensions() int { return m.dims }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls++
	pinned, ok := m.pinned[text]
	m.mu.Unlock()
	if ok {
		return pinned, nil
	}

	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, m.dims)
	for i := range vec {
		raw := binary.BigEndian.Uint32(sum[(i*4)%28 : (i*4)%28+4])
		vec[i] = float32(raw%1000)/500 - 1
	}
	Normalize(vec)
	return vec, nil
}

// Calls reports how many embeddings were requested.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
