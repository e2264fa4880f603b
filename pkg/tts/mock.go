package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
// It records calls and can simulate errors and latency.
type Mock struct {
	mu sync.Mutex

	// SynthesizeFunc overrides the default synthesize behavior.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	// HealthErr is returned by Health when set.
	HealthErr error

	// Latency is added before each Synthesize call returns.
	Latency time.Duration

	// Err is returned by Synthesize when set and SynthesizeFunc is nil.
	Err error

	calls []string
}

// NewMock creates a mock provider that succeeds by default.
func NewMock() *Mock {
	return &Mock{}
}

// WithError configures the mock to fail every Synthesize call.
func (m *Mock) WithError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
	return m
}

// WithLatency adds artificial latency to each call.
func (m *Mock) WithLatency(d time.Duration) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Latency = d
	return m
}

// Synthesize records the call and returns canned audio or the configured error.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	fn := m.SynthesizeFunc
	latency := m.Latency
	err := m.Err
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return nil, WrapError("mock", err)
	}

	return &AudioResult{
		Audio:     make([]byte, 4096),
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1},
		Provider:  "mock",
		CharCount: len(text),
	}, nil
}

// Health returns the configured health error.
func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.HealthErr
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// CallCount returns the number of Synthesize calls made.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the texts passed to Synthesize.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
