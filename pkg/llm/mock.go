package llm

import (
	"context"
	"sync"
)

// Mock is a scripted TextService for tests.
type Mock struct {
	// GenerateFunc answers Generate. When nil, Response is returned.
	GenerateFunc func(ctx context.Context, system, prompt string) (string, error)
	Response     string

	mu      sync.Mutex
	Prompts []string
}

// Generate implements TextService.
func (m *Mock) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, system, prompt)
	}
	return m.Response, nil
}

// Calls returns how many times Generate ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}
