package llm

import (
	"context"
	"sync"
)

// MockProvider is a scripted Completer for tests. Successful calls consume
// responses in order; when the script runs out the last response repeats.
// FailFirst injects failures before any response is served.
//
// Safe for concurrent use.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	failures  int
	failErr   error
	served    int
	calls     []Request
}

// NewMockProvider returns a mock that replays the given responses.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// FailFirst makes the first n calls return err before the scripted
// responses start. Returns the mock for chaining in test setup.
func (m *MockProvider) FailFirst(n int, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
	return m
}

// Name returns "mock".
func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if m.failures > 0 {
		m.failures--
		return "", m.failErr
	}
	if len(m.responses) == 0 {
		return "", &CompletionError{
			Code:    CodeEmptyResponse,
			Message: "mock: no scripted responses",
		}
	}

	idx := m.served
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.served++
	return m.responses[idx], nil
}

// Calls returns a copy of every request seen so far.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount reports how many times Complete has been invoked.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
