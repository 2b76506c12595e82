package asr

import (
	"context"
	"sync"
	"time"
)

// MockRecognizer is an in-memory Recognizer for tests.
type MockRecognizer struct {
	// Latency delays every RecognizeSegment call. Set before first use.
	Latency time.Duration

	mu      sync.Mutex
	results []Result
	errs    []error
	calls   int
	closed  bool
}

// QueueResult appends one successful outcome.
func (m *MockRecognizer) QueueResult(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	m.errs = append(m.errs, nil)
}

// QueueError appends one failed outcome.
func (m *MockRecognizer) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, Result{})
	m.errs = append(m.errs, err)
}

func (m *MockRecognizer) RecognizeSegment(ctx context.Context, _ []byte, _ bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Result{}, ErrClosed
	}
	idx := m.calls
	m.calls++
	if idx >= len(m.results) {
		return Result{}, ErrNoSpeech
	}
	if err := m.errs[idx]; err != nil {
		return Result{}, err
	}
	return m.results[idx], nil
}

func (m *MockRecognizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockRecognizer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
