package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/aretelabs/go-arete/pkg/protocol"
)

func TestHealthTransitions(t *testing.T) {
	tests := []struct {
		name string
		from ConnectionHealth
		to   ConnectionHealth
		ok   bool
	}{
		{"start connecting", HealthDisconnected, HealthConnecting, true},
		{"connect succeeds", HealthConnecting, HealthConnected, true},
		{"connect fails", HealthConnecting, HealthFailed, true},
		{"drop to reconnecting", HealthConnected, HealthReconnecting, true},
		{"recover", HealthReconnecting, HealthConnected, true},
		{"give up", HealthReconnecting, HealthFailed, true},
		{"clean teardown", HealthConnected, HealthDisconnected, true},
		{"no self loop", HealthConnected, HealthConnected, false},
		{"failed is terminal", HealthFailed, HealthConnecting, false},
		{"failed cannot recover", HealthFailed, HealthConnected, false},
		{"connected cannot fail directly", HealthConnected, HealthFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.ok {
				t.Errorf("CanTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}
		})
	}
}

func TestHealthTerminal(t *testing.T) {
	if !HealthFailed.Terminal() {
		t.Error("failed should be terminal")
	}
	if HealthConnected.Terminal() {
		t.Error("connected should not be terminal")
	}
}

func TestSessionIgnoresIllegalHealthJump(t *testing.T) {
	s := NewSession(DefaultSessionConfig())

	var mu sync.Mutex
	var seen []ConnectionHealth
	s.OnHealthChange = func(h ConnectionHealth) {
		mu.Lock()
		seen = append(seen, h)
		mu.Unlock()
	}

	s.setHealth(HealthConnected) // illegal from disconnected
	s.setHealth(HealthConnecting)
	s.setHealth(HealthConnected)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != HealthConnecting || seen[1] != HealthConnected {
		t.Errorf("health sequence = %v", seen)
	}
}

func TestSendDataIsNoopWhenNotConnected(t *testing.T) {
	s := NewSession(DefaultSessionConfig())

	if err := s.SendData([]byte(`{"type":"ping"}`)); err != nil {
		t.Errorf("disconnected SendData should be a silent no-op, got %v", err)
	}
}

func TestToggles(t *testing.T) {
	s := NewSession(DefaultSessionConfig())

	if !s.MicrophoneOn() || !s.CameraOn() {
		t.Fatal("mic and camera should start enabled")
	}

	if on := s.ToggleMicrophone(); on {
		t.Error("first toggle should disable the mic")
	}
	if s.MicrophoneOn() {
		t.Error("mic state did not stick")
	}
	if on := s.ToggleMicrophone(); !on {
		t.Error("second toggle should re-enable the mic")
	}

	s.SetMicrophone(false)
	s.SetMicrophone(false) // idempotent
	if s.MicrophoneOn() {
		t.Error("SetMicrophone(false) did not hold")
	}

	if on := s.ToggleCamera(); on {
		t.Error("first camera toggle should disable")
	}
	if s.CameraOn() {
		t.Error("camera state did not stick")
	}
}

func TestWriteAudioDroppedWhileMuted(t *testing.T) {
	s := NewSession(DefaultSessionConfig())
	s.SetMicrophone(false)

	// No track is attached; a muted write must not touch it.
	if err := s.WriteAudio([]byte{1, 2, 3}, 20*time.Millisecond); err != nil {
		t.Errorf("muted WriteAudio should drop silently, got %v", err)
	}
}

func TestHandleDataStructuredTranscript(t *testing.T) {
	s := NewSession(DefaultSessionConfig())

	var mu sync.Mutex
	var gotRole, gotText string
	var gotStructured bool
	s.OnTranscript = func(role, text string, structured bool) {
		mu.Lock()
		gotRole, gotText, gotStructured = role, text, structured
		mu.Unlock()
	}

	msg, _ := protocol.NewTranscriptMessage("ai", "Walk me through your approach.")
	payload, _ := msg.Bytes()
	s.handleData(payload)

	mu.Lock()
	defer mu.Unlock()
	if gotRole != "ai" || gotText != "Walk me through your approach." || !gotStructured {
		t.Errorf("got role=%q text=%q structured=%v", gotRole, gotText, gotStructured)
	}
}

func TestHandleDataDegradesToPlainText(t *testing.T) {
	s := NewSession(DefaultSessionConfig())

	var mu sync.Mutex
	var gotRole, gotText string
	var gotStructured bool
	s.OnTranscript = func(role, text string, structured bool) {
		mu.Lock()
		gotRole, gotText, gotStructured = role, text, structured
		mu.Unlock()
	}

	s.handleData([]byte("the agent said something unframed"))

	mu.Lock()
	defer mu.Unlock()
	if gotRole != "ai" {
		t.Errorf("degraded role = %q, want ai", gotRole)
	}
	if gotText != "the agent said something unframed" {
		t.Errorf("degraded text = %q", gotText)
	}
	if gotStructured {
		t.Error("degraded line should not be structured")
	}
}

func TestHandleDataRoutesRunResult(t *testing.T) {
	s := NewSession(DefaultSessionConfig())

	var mu sync.Mutex
	var events []*protocol.Message
	var transcripts int
	s.OnEvent = func(m *protocol.Message) {
		mu.Lock()
		events = append(events, m)
		mu.Unlock()
	}
	s.OnTranscript = func(string, string, bool) {
		mu.Lock()
		transcripts++
		mu.Unlock()
	}

	msg, _ := protocol.NewMessage(protocol.TypeRunResult, protocol.RunResultData{
		Passed: 3, Failed: 1, Total: 4,
	})
	payload, _ := msg.Bytes()
	s.handleData(payload)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Type != protocol.TypeRunResult {
		t.Fatalf("events = %v", events)
	}
	if transcripts != 0 {
		t.Errorf("run result produced %d transcript lines", transcripts)
	}
}

func TestLevelMeterActiveSpeaker(t *testing.T) {
	meter, err := NewLevelMeter()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mu sync.Mutex
	var flips []bool
	meter.OnActiveChange = func(active bool) {
		mu.Lock()
		flips = append(flips, active)
		mu.Unlock()
	}

	silence := make([]int16, 960)
	meter.FeedPCM(silence)
	if meter.Active() {
		t.Error("silence should not be active")
	}

	loud := make([]int16, 960)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 8000
		} else {
			loud[i] = -8000
		}
	}
	meter.FeedPCM(loud)
	if !meter.Active() {
		t.Error("speech energy should be active")
	}
	if meter.Level() <= 0 {
		t.Error("level should be positive")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(flips) != 1 || !flips[0] {
		t.Errorf("flips = %v", flips)
	}
}

func TestStaleRTP(t *testing.T) {
	tests := []struct {
		name    string
		seq     uint16
		lastSeq uint16
		stale   bool
	}{
		{"next in order", 101, 100, false},
		{"duplicate", 100, 100, false},
		{"small gap forward", 110, 100, false},
		{"one behind", 99, 100, true},
		{"far behind", 50, 100, true},
		{"wraparound forward", 2, 65530, false},
		{"wraparound behind", 65530, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := &rtp.Packet{}
			pkt.SequenceNumber = tt.seq
			if got := staleRTP(pkt, tt.lastSeq); got != tt.stale {
				t.Errorf("staleRTP(%d, %d) = %v, want %v", tt.seq, tt.lastSeq, got, tt.stale)
			}
		})
	}
}
