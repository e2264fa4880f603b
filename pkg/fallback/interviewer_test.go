package fallback_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretelabs/go-arete/pkg/fallback"
	"github.com/aretelabs/go-arete/pkg/speech"
	"github.com/aretelabs/go-arete/pkg/stt"
	"github.com/aretelabs/go-arete/pkg/tts"
)

type harness struct {
	interviewer *fallback.Interviewer
	session     *stt.MockSession
	sink        *speech.NullSink
	synth       *tts.Mock

	mu         sync.Mutex
	transcript []string
	notices    []string
	chatCalls  []string
	chatReply  string
	chatErr    error
}

func newHarness(t *testing.T, ctrlOpts ...stt.ControllerOption) *harness {
	t.Helper()

	h := &harness{
		session:   stt.NewMockSession(),
		sink:      &speech.NullSink{},
		synth:     tts.NewMock(),
		chatReply: "Tell me more about that.",
	}

	opts := []stt.ControllerOption{
		stt.WithSilenceWindow(30 * time.Millisecond),
		stt.WithMinUtteranceLen(4),
		stt.WithResponseCooldown(0),
	}
	controller := stt.NewController(
		stt.NewMockRecognizer().Script(h.session),
		&stt.MockCapture{},
		append(opts, ctrlOpts...)...,
	)

	speaker := speech.NewSpeaker(h.synth, h.sink,
		speech.WithGate(controller),
		speech.WithCooldown(0),
	)

	chat := func(ctx context.Context, message, code string) (string, error) {
		h.mu.Lock()
		h.chatCalls = append(h.chatCalls, message)
		reply, err := h.chatReply, h.chatErr
		h.mu.Unlock()
		return reply, err
	}

	h.interviewer = fallback.New(speaker, controller, chat, func() string { return "def solve(): pass" })
	h.interviewer.OnTranscript = func(role, text string) {
		h.mu.Lock()
		h.transcript = append(h.transcript, role+": "+text)
		h.mu.Unlock()
	}
	h.interviewer.OnNotice = func(text string) {
		h.mu.Lock()
		h.notices = append(h.notices, text)
		h.mu.Unlock()
	}
	return h
}

func (h *harness) waitTranscript(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		got := len(h.transcript)
		h.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("transcript never reached %d lines", n)
}

func TestGreetingAppendsBeforeUnlock(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.interviewer.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer h.interviewer.Close()

	h.interviewer.Greet("Hi Dana, ready when you are.")

	h.mu.Lock()
	if len(h.transcript) != 1 || h.transcript[0] != "ai: Hi Dana, ready when you are." {
		t.Errorf("transcript = %v", h.transcript)
	}
	h.mu.Unlock()

	// Locked: nothing may be synthesized.
	time.Sleep(50 * time.Millisecond)
	if h.synth.CallCount() != 0 {
		t.Errorf("locked interviewer synthesized %d times", h.synth.CallCount())
	}

	h.interviewer.Unlock()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && h.synth.CallCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if h.synth.CallCount() != 1 {
		t.Errorf("unlock should flush the greeting, got %d calls", h.synth.CallCount())
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.interviewer.Start(ctx)
	defer h.interviewer.Close()

	h.interviewer.Greet("Welcome.")
	h.interviewer.Unlock()
	h.interviewer.Unlock()

	time.Sleep(100 * time.Millisecond)
	if h.synth.CallCount() != 1 {
		t.Errorf("double unlock replayed the queue, %d calls", h.synth.CallCount())
	}
	if !h.interviewer.Unlocked() {
		t.Error("expected unlocked")
	}
}

func TestUtteranceRunsChatTurn(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.interviewer.Start(ctx)
	defer h.interviewer.Close()
	h.interviewer.Unlock()

	h.session.Emit(stt.Event{Kind: stt.KindFinal, Text: "I would use two pointers"})

	h.waitTranscript(t, 2)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.transcript[0] != "candidate: I would use two pointers" {
		t.Errorf("transcript[0] = %q", h.transcript[0])
	}
	if h.transcript[1] != "ai: Tell me more about that." {
		t.Errorf("transcript[1] = %q", h.transcript[1])
	}
	if len(h.chatCalls) != 1 || h.chatCalls[0] != "I would use two pointers" {
		t.Errorf("chatCalls = %v", h.chatCalls)
	}
}

func TestChatFailureSpeaksApology(t *testing.T) {
	h := newHarness(t)
	h.chatErr = errors.New("backend unreachable")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.interviewer.Start(ctx)
	defer h.interviewer.Close()
	h.interviewer.Unlock()

	h.session.Emit(stt.Event{Kind: stt.KindFinal, Text: "can you hear me now"})

	h.waitTranscript(t, 2)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.transcript[1] != "ai: "+fallback.ApologyLine {
		t.Errorf("transcript[1] = %q", h.transcript[1])
	}
}

func TestMutedUtteranceIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.interviewer.Start(ctx)
	defer h.interviewer.Close()
	h.interviewer.Unlock()

	if on := h.interviewer.ToggleMicrophone(); on {
		t.Fatal("toggle should mute")
	}

	h.session.Emit(stt.Event{Kind: stt.KindFinal, Text: "this should go nowhere"})
	time.Sleep(150 * time.Millisecond)

	h.mu.Lock()
	if len(h.chatCalls) != 0 {
		t.Errorf("muted utterance reached chat: %v", h.chatCalls)
	}
	h.mu.Unlock()

	// Unmute restores the loop.
	if on := h.interviewer.ToggleMicrophone(); !on {
		t.Fatal("toggle should unmute")
	}
	h.session.Emit(stt.Event{Kind: stt.KindFinal, Text: "now this one counts"})
	h.waitTranscript(t, 2)
}

func TestCooldownUtteranceRecordedWithoutReply(t *testing.T) {
	h := newHarness(t, stt.WithResponseCooldown(500*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.interviewer.Start(ctx)
	defer h.interviewer.Close()
	h.interviewer.Unlock()

	h.session.Emit(stt.Event{Kind: stt.KindFinal, Text: "my first thought is sorting"})
	h.waitTranscript(t, 2)

	// Let the reply playback release the recognition gate.
	time.Sleep(100 * time.Millisecond)

	// Lands inside the cooldown: appended to the transcript, no chat turn.
	h.session.Emit(stt.Event{Kind: stt.KindFinal, Text: "actually wait a hash map"})
	h.waitTranscript(t, 3)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.transcript[2] != "candidate: actually wait a hash map" {
		t.Errorf("transcript[2] = %q", h.transcript[2])
	}
	if len(h.chatCalls) != 1 {
		t.Errorf("chatCalls = %v, cooldown utterance should not reach chat", h.chatCalls)
	}
}

func TestCameraToggle(t *testing.T) {
	h := newHarness(t)

	if !h.interviewer.CameraOn() {
		t.Fatal("camera should start on")
	}
	if on := h.interviewer.ToggleCamera(); on {
		t.Error("first toggle should disable")
	}
	if on := h.interviewer.ToggleCamera(); !on {
		t.Error("second toggle should enable")
	}
}
