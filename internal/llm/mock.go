package llm

import (
	"context"
	"sync"
)

// MockClient replays scripted responses for tests. Safe for concurrent use.
type MockClient struct {
	mu        sync.Mutex
	responses []*CompletionResponse
	err       error
	calls     int
	requests  []CompletionRequest

	// Handler, when set, overrides scripted responses entirely.
	Handler func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// NewMockClient scripts the given responses in order. After the script is
// exhausted the last response repeats.
func NewMockClient(responses ...*CompletionResponse) *MockClient {
	return &MockClient{responses: responses}
}

// FailWith makes every call return err.
func (m *MockClient) FailWith(err error) *MockClient {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	return m
}

func (m *MockClient) Model() string { return "mock-model" }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	handler := m.Handler
	err := m.err
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	var resp *CompletionResponse
	if idx >= 0 {
		resp = m.responses[idx]
	}
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &CompletionResponse{Content: "ok", FinishReason: "stop"}, nil
	}
	clone := *resp
	return &clone, nil
}

// Calls reports how many times Complete was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, or a zero value when none.
func (m *MockClient) LastRequest() CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return CompletionRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// Requests returns a copy of every request seen.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
