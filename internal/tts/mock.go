package tts

import (
	"context"
	"fmt"
	"sync"

	"github.com/wenjin27/lingvox/internal/audio"
)

// MockProvider returns a short silent WAV for every sentence. Individual
// sentences can be marked to fail for failure-isolation tests.
type MockProvider struct {
	mu       sync.Mutex
	failures map[string]struct{}
	calls    []string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{failures: make(map[string]struct{})}
}

// FailOn makes Synthesize return an error for the given sentence.
func (m *MockProvider) FailOn(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[text] = struct{}{}
}

func (m *MockProvider) Synthesize(ctx context.Context, text string, _ Params) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, text)
	_, fail := m.failures[text]
	m.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("mock synthesis failure for %q", text)
	}
	return audio.EncodeWAVPCM16LE(make([]byte, 320), 16000)
}

func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
