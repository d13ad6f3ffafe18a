package testutils

import (
	"context"
	"sync"

	"github.com/sightlinelabs/vizbench/pkg/llm"
)

// MockProvider is a scriptable model backend for tests. Responses are
// returned in order; once the script is exhausted the last entry repeats.
type MockProvider struct {
	ModelName string

	mu    sync.Mutex
	calls []llm.Request
	// Script holds per-call outcomes, consumed in order.
	Script []MockOutcome
}

// MockOutcome is a single scripted Generate result.
type MockOutcome struct {
	Response *llm.Response
	Err      error
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{ModelName: name}
}

// Respond appends a successful outcome with the given text.
func (m *MockProvider) Respond(text string) *MockProvider {
	m.Script = append(m.Script, MockOutcome{
		Response: &llm.Response{Text: text, Model: m.ModelName},
	})
	return m
}

// Fail appends a failing outcome.
func (m *MockProvider) Fail(err error) *MockProvider {
	m.Script = append(m.Script, MockOutcome{Err: err})
	return m
}

func (m *MockProvider) Name() string {
	return m.ModelName
}

func (m *MockProvider) Generate(_ context.Context, _ *llm.Conversation, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if len(m.Script) == 0 {
		return &llm.Response{Text: "mock answer", Model: m.ModelName}, nil
	}

	idx := len(m.calls) - 1
	if idx >= len(m.Script) {
		idx = len(m.Script) - 1
	}

	outcome := m.Script[idx]
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return outcome.Response, nil
}

// Calls returns a copy of every request seen so far.
func (m *MockProvider) Calls() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]llm.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Generate invocations.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
