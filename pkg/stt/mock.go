package stt

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// MockRecognizer scripts recognition sessions for tests.
// Each Start consumes the next scripted session; when the script runs
// out, sessions stay open and silent until closed.
type MockRecognizer struct {
	mu       sync.Mutex
	scripts  []*MockSession
	starts   int
	StartErr error
}

// NewMockRecognizer creates a recognizer with no scripted sessions.
func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{}
}

// Script appends a session to be returned by a future Start call.
func (m *MockRecognizer) Script(s *MockSession) *MockRecognizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, s)
	return m
}

// Starts returns how many sessions were started.
func (m *MockRecognizer) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Start returns the next scripted session.
func (m *MockRecognizer) Start(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.starts++
	if m.StartErr != nil {
		return nil, m.StartErr
	}

	if len(m.scripts) > 0 {
		s := m.scripts[0]
		m.scripts = m.scripts[1:]
		return s, nil
	}
	return NewMockSession(), nil
}

// MockSession is a hand-driven recognition session.
type MockSession struct {
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
	sent   [][]byte
}

// NewMockSession creates an open session with a buffered event channel.
func NewMockSession() *MockSession {
	return &MockSession{
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Emit pushes an event to the session's consumers.
func (s *MockSession) Emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Fail ends the session with the given error.
func (s *MockSession) Fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.mu.Unlock()

	close(s.done)
	close(s.events)
}

// SendAudio records the chunk.
func (s *MockSession) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.sent = append(s.sent, append([]byte(nil), chunk...))
	return nil
}

// SentBytes returns the total audio bytes received.
func (s *MockSession) SentBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, c := range s.sent {
		n += len(c)
	}
	return n
}

// Events returns the event channel.
func (s *MockSession) Events() <-chan Event {
	return s.events
}

// Close ends the session cleanly.
func (s *MockSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	close(s.events)
	return nil
}

// Err returns the session's terminal error.
func (s *MockSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// MockCapture returns silence for tests.
type MockCapture struct {
	StartErr error
}

// Start returns an endless silent reader or the configured error.
func (m *MockCapture) Start(ctx context.Context) (io.ReadCloser, error) {
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	return io.NopCloser(&silentReader{ctx: ctx}), nil
}

type silentReader struct {
	ctx context.Context
}

// Read returns small silent chunks at roughly real-time pace.
func (r *silentReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, io.EOF
	case <-time.After(10 * time.Millisecond):
	}
	n := len(p)
	if n > 320 {
		n = 320
	}
	copy(p, bytes.Repeat([]byte{0}, n))
	return n, nil
}

var (
	_ Recognizer = (*MockRecognizer)(nil)
	_ Session    = (*MockSession)(nil)
	_ Capture    = (*MockCapture)(nil)
)
