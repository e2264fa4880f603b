package stt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestController(t *testing.T, rec *MockRecognizer, opts ...ControllerOption) *Controller {
	t.Helper()
	base := []ControllerOption{
		WithSilenceWindow(40 * time.Millisecond),
		WithMinUtteranceLen(4),
		WithResponseCooldown(0),
		WithRestartBackoff(10*time.Millisecond, 100*time.Millisecond),
	}
	return NewController(rec, &MockCapture{}, append(base, opts...)...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestControllerFinalizesAfterSilence(t *testing.T) {
	session := NewMockSession()
	rec := NewMockRecognizer().Script(session)
	c := newTestController(t, rec)

	var mu sync.Mutex
	var utterances []string
	c.OnUtterance = func(text string, suppressed bool) {
		mu.Lock()
		utterances = append(utterances, text)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Stop()

	session.Emit(Event{Kind: KindFinal, Text: "I think we can"})
	session.Emit(Event{Kind: KindFinal, Text: "use a hash map"})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(utterances) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if utterances[0] != "I think we can use a hash map" {
		t.Errorf("utterance = %q", utterances[0])
	}
}

func TestControllerDropsShortUtterances(t *testing.T) {
	session := NewMockSession()
	rec := NewMockRecognizer().Script(session)
	c := newTestController(t, rec, WithMinUtteranceLen(8))

	var mu sync.Mutex
	var count int
	c.OnUtterance = func(string, bool) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	session.Emit(Event{Kind: KindFinal, Text: "um"})

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("short utterance fired %d times, want 0", count)
	}
}

func TestControllerPauseDropsEvents(t *testing.T) {
	session := NewMockSession()
	rec := NewMockRecognizer().Script(session)
	c := newTestController(t, rec)

	var mu sync.Mutex
	var count int
	c.OnUtterance = func(string, bool) {
		mu.Lock()
		count++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	c.Pause()
	if !c.Muted() {
		t.Error("expected muted after pause")
	}
	if c.State() != StatePaused {
		t.Errorf("State = %v, want paused", c.State())
	}

	session.Emit(Event{Kind: KindFinal, Text: "this is the interviewer speaking"})
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	got := count
	mu.Unlock()
	if got != 0 {
		t.Errorf("paused controller fired %d utterances", got)
	}

	c.Resume()
	if c.State() != StateListening {
		t.Errorf("State = %v after resume, want listening", c.State())
	}

	session.Emit(Event{Kind: KindFinal, Text: "now the candidate talks"})
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})
}

func TestControllerCooldownSuppressesButStillFlushes(t *testing.T) {
	session := NewMockSession()
	rec := NewMockRecognizer().Script(session)
	c := newTestController(t, rec, WithResponseCooldown(300*time.Millisecond))

	type flush struct {
		text       string
		suppressed bool
		at         time.Time
	}
	var mu sync.Mutex
	var flushes []flush
	c.OnUtterance = func(text string, suppressed bool) {
		mu.Lock()
		flushes = append(flushes, flush{text, suppressed, time.Now()})
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	session.Emit(Event{Kind: KindFinal, Text: "first utterance here"})
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushes) == 1
	})

	// Inside the cooldown: still flushes on the silence window, but
	// marked suppressed so it goes to the transcript without a reply.
	session.Emit(Event{Kind: KindFinal, Text: "second utterance here"})
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushes) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if flushes[0].suppressed {
		t.Error("first utterance should not be suppressed")
	}
	if !flushes[1].suppressed {
		t.Error("utterance inside cooldown should be suppressed")
	}
	if flushes[1].text != "second utterance here" {
		t.Errorf("utterance = %q", flushes[1].text)
	}
	if gap := flushes[1].at.Sub(flushes[0].at); gap > 250*time.Millisecond {
		t.Errorf("suppressed flush waited %v, should fire on the silence window", gap)
	}
}

func TestControllerPermissionErrorIsTerminal(t *testing.T) {
	session := NewMockSession()
	rec := NewMockRecognizer().Script(session)
	c := newTestController(t, rec)

	terminal := make(chan error, 1)
	c.OnTerminalError = func(err error) { terminal <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	session.Fail(errors.New("microphone permission denied"))

	select {
	case err := <-terminal:
		var recErr *RecognitionError
		if !errors.As(err, &recErr) {
			t.Fatalf("expected RecognitionError, got %T", err)
		}
		if recErr.Class != ClassPermission {
			t.Errorf("Class = %v, want permission", recErr.Class)
		}
	case <-time.After(time.Second):
		t.Fatal("terminal error never fired")
	}

	time.Sleep(100 * time.Millisecond)
	if rec.Starts() != 1 {
		t.Errorf("terminal error should not restart, got %d starts", rec.Starts())
	}
}

func TestControllerTransientErrorRestarts(t *testing.T) {
	first := NewMockSession()
	second := NewMockSession()
	rec := NewMockRecognizer().Script(first).Script(second)
	c := newTestController(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	first.Fail(errors.New("websocket: connection reset"))

	waitFor(t, time.Second, func() bool { return rec.Starts() == 2 })
	waitFor(t, time.Second, func() bool { return c.State() == StateListening })

	// The replacement session still works.
	fired := make(chan struct{}, 1)
	c.OnUtterance = func(string, bool) { fired <- struct{}{} }
	second.Emit(Event{Kind: KindFinal, Text: "still listening after restart"})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("no utterance after restart")
	}
}

func TestControllerNoSpeechRestartsSilently(t *testing.T) {
	first := NewMockSession()
	second := NewMockSession()
	rec := NewMockRecognizer().Script(first).Script(second)
	c := newTestController(t, rec)

	terminal := make(chan error, 1)
	c.OnTerminalError = func(err error) { terminal <- err }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	first.Fail(errors.New("NET0001: no speech detected"))

	waitFor(t, time.Second, func() bool { return rec.Starts() == 2 })

	select {
	case err := <-terminal:
		t.Fatalf("no-speech should not be terminal, got %v", err)
	default:
	}
}

func TestControllerRestartIsSingleton(t *testing.T) {
	session := NewMockSession()
	rec := NewMockRecognizer().Script(session)
	c := newTestController(t, rec, WithRestartBackoff(50*time.Millisecond, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	// Several overlapping failure signals while one restart is pending.
	c.scheduleRestart(50*time.Millisecond, "test")
	c.scheduleRestart(50*time.Millisecond, "test")
	c.scheduleRestart(50*time.Millisecond, "test")

	time.Sleep(200 * time.Millisecond)

	if got := rec.Starts(); got != 2 {
		t.Errorf("starts = %d, want 2 (initial + one restart)", got)
	}
}

func TestControllerBackoffStaysCappedAtHighAttempts(t *testing.T) {
	session := NewMockSession()
	rec := NewMockRecognizer().Script(session)
	c := newTestController(t, rec, WithRestartBackoff(500*time.Millisecond, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	// Enough consecutive failures that a naive doubling would wrap
	// negative and restart immediately instead of holding at the cap.
	c.mu.Lock()
	c.attempts = 40
	c.mu.Unlock()

	c.handleFailure(errors.New("websocket: connection reset"))

	time.Sleep(200 * time.Millisecond)
	if got := rec.Starts(); got != 1 {
		t.Errorf("starts = %d, restart fired before the capped delay", got)
	}
}

func TestControllerStopIsFinal(t *testing.T) {
	session := NewMockSession()
	rec := NewMockRecognizer().Script(session)
	c := newTestController(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Stop()
	if c.State() != StateIdle {
		t.Errorf("State = %v after stop", c.State())
	}

	time.Sleep(100 * time.Millisecond)
	if rec.Starts() != 1 {
		t.Errorf("stopped controller restarted, %d starts", rec.Starts())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"permission denied", errors.New("mic: permission denied"), ClassPermission},
		{"unauthorized", errors.New("401 unauthorized"), ClassPermission},
		{"no speech", errors.New("NET0001 timed out"), ClassNoSpeech},
		{"websocket drop", errors.New("websocket: close 1006"), ClassTransient},
		{"timeout", errors.New("read timeout"), ClassTransient},
		{"unknown", errors.New("something odd"), ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
