package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretelabs/go-arete/pkg/api"
	"github.com/aretelabs/go-arete/pkg/protocol"
	"github.com/aretelabs/go-arete/pkg/transport"
)

// fakeBackend scripts the session API.
type fakeBackend struct {
	mu        sync.Mutex
	startErr  error
	tokenErr  error
	submitErr error
	snapshots []string
	submits   []string
	runCalls  int
}

func (f *fakeBackend) StartInterview(ctx context.Context, candidateName, problemID string) (*api.StartInterviewResponse, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &api.StartInterviewResponse{
		SessionID:      "sess-1",
		CandidateName:  candidateName,
		ProblemTitle:   "Two Sum",
		StarterCode:    "def two_sum(nums, target):\n    pass",
		WelcomeMessage: "Welcome! Let's get started.",
	}, nil
}

func (f *fakeBackend) Token(ctx context.Context, sessionID, participantName string) (*api.TokenResponse, error) {
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return &api.TokenResponse{Token: "tok", Identity: participantName, RoomName: sessionID}, nil
}

func (f *fakeBackend) SnapshotCode(ctx context.Context, sessionID, code string) (*api.CodeSnapshotResponse, error) {
	f.mu.Lock()
	f.snapshots = append(f.snapshots, code)
	f.mu.Unlock()
	return &api.CodeSnapshotResponse{}, nil
}

func (f *fakeBackend) RunCode(ctx context.Context, sessionID, code string) (*api.RunCodeResponse, error) {
	f.mu.Lock()
	f.runCalls++
	f.mu.Unlock()
	return &api.RunCodeResponse{Passed: 2, Failed: 0, Total: 2}, nil
}

func (f *fakeBackend) SubmitSolution(ctx context.Context, sessionID, code string) (*api.InterviewReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submits = append(f.submits, code)
	return &api.InterviewReport{SessionID: sessionID, OverallScore: 4.2}, nil
}

// fakeRealtime scripts the transport.
type fakeRealtime struct {
	mu         sync.Mutex
	connectErr error
	health     transport.ConnectionHealth
	sent       [][]byte
	closed     bool
	micOn      bool
	camOn      bool
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{health: transport.HealthDisconnected, micOn: true, camOn: true}
}

func (f *fakeRealtime) ConnectWith(ctx context.Context, fetch transport.CredentialFunc) error {
	if _, err := fetch(ctx); err != nil {
		return err
	}
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.health = transport.HealthConnected
	f.mu.Unlock()
	return nil
}

func (f *fakeRealtime) SendData(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.health != transport.HealthConnected {
		return nil
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeRealtime) Health() transport.ConnectionHealth {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *fakeRealtime) ToggleMicrophone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.micOn = !f.micOn
	return f.micOn
}

func (f *fakeRealtime) ToggleCamera() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.camOn = !f.camOn
	return f.camOn
}

func (f *fakeRealtime) MicrophoneOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.micOn
}

func (f *fakeRealtime) CameraOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.camOn
}

func (f *fakeRealtime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.health = transport.HealthDisconnected
	return nil
}

func fastConfig() Config {
	return Config{
		CodeDebounce:  20 * time.Millisecond,
		RedirectDelay: 30 * time.Millisecond,
	}
}

func TestStartRequiresCandidateName(t *testing.T) {
	o := New(&fakeBackend{})
	if err := o.Start(context.Background(), "", "two_sum"); !errors.Is(err, ErrNoCandidateName) {
		t.Errorf("expected ErrNoCandidateName, got %v", err)
	}
	if o.State() != StateSetup {
		t.Errorf("State = %v, want setup", o.State())
	}
}

func TestStartFailureAllowsRetry(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("backend down")}
	o := New(backend, WithConfig(fastConfig()))

	if err := o.Start(context.Background(), "Dana", "two_sum"); err == nil {
		t.Fatal("expected error")
	}
	if o.State() != StateSetup {
		t.Errorf("State = %v, want setup so the client can retry", o.State())
	}

	// The backend recovers; the same orchestrator starts cleanly.
	backend.mu.Lock()
	backend.startErr = nil
	backend.mu.Unlock()

	if err := o.Start(context.Background(), "Dana", "two_sum"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if o.State() != StateLive {
		t.Errorf("State = %v after retry, want live", o.State())
	}
}

func TestStartRealtimePath(t *testing.T) {
	backend := &fakeBackend{}
	session := newFakeRealtime()
	o := New(backend, WithRealtime(session), WithConfig(fastConfig()))

	if err := o.Start(context.Background(), "Dana", "two_sum"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if o.State() != StateLive {
		t.Errorf("State = %v, want live", o.State())
	}
	if o.Mode() != ModeRealtime {
		t.Errorf("Mode = %v, want realtime", o.Mode())
	}
	if o.SessionID() != "sess-1" {
		t.Errorf("SessionID = %q", o.SessionID())
	}
	if o.Code() == "" {
		t.Error("starter code should seed the buffer")
	}

	lines := o.Transcript().Snapshot()
	if len(lines) != 1 || lines[0].Speaker != "ai" {
		t.Errorf("transcript = %v", lines)
	}

	if o.Elapsed() <= 0 {
		t.Error("elapsed timer should run once live")
	}
}

func TestRealtimeFailureDoesNotBlockSession(t *testing.T) {
	backend := &fakeBackend{}
	session := newFakeRealtime()
	session.connectErr = errors.New("no route")
	o := New(backend, WithRealtime(session), WithConfig(fastConfig()))

	var notices []string
	var mu sync.Mutex
	o.OnNotice = func(text string) {
		mu.Lock()
		notices = append(notices, text)
		mu.Unlock()
	}

	if err := o.Start(context.Background(), "Dana", "two_sum"); err != nil {
		t.Fatalf("connect failure must not fail the session: %v", err)
	}

	if o.State() != StateLive {
		t.Errorf("State = %v, want live", o.State())
	}
	if o.Mode() == ModeRealtime {
		t.Error("failed transport must not be the active mode")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(notices) == 0 {
		t.Error("fallback should be announced")
	}
}

func TestCodeRelayUsesDataChannelWhenConnected(t *testing.T) {
	backend := &fakeBackend{}
	session := newFakeRealtime()
	o := New(backend, WithRealtime(session), WithConfig(fastConfig()))

	o.Start(context.Background(), "Dana", "two_sum")

	o.UpdateCode("def two_sum(nums, target):")
	o.UpdateCode("def two_sum(nums, target):\n    seen = {}")

	time.Sleep(100 * time.Millisecond)

	session.mu.Lock()
	sent := len(session.sent)
	var payload []byte
	if sent > 0 {
		payload = session.sent[0]
	}
	session.mu.Unlock()

	if sent != 1 {
		t.Fatalf("data channel got %d snapshots, want 1 (debounced)", sent)
	}

	msg, err := protocol.ParseMessage(payload)
	if err != nil || msg.Type != protocol.TypeCodeSnapshot {
		t.Fatalf("payload = %s", payload)
	}
	data, _ := msg.GetCodeSnapshotData()
	if data.Code != "def two_sum(nums, target):\n    seen = {}" {
		t.Errorf("snapshot carries %q, want latest value", data.Code)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.snapshots) != 0 {
		t.Error("HTTP endpoint used while data channel available")
	}
}

func TestCodeRelayFallsBackToHTTP(t *testing.T) {
	backend := &fakeBackend{}
	session := newFakeRealtime()
	o := New(backend, WithRealtime(session), WithConfig(fastConfig()))

	o.Start(context.Background(), "Dana", "two_sum")

	// Transport drops; the next emit resolves to HTTP.
	session.mu.Lock()
	session.health = transport.HealthFailed
	session.mu.Unlock()

	o.UpdateCode("x = 1")
	time.Sleep(100 * time.Millisecond)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.snapshots) != 1 || backend.snapshots[0] != "x = 1" {
		t.Errorf("snapshots = %v", backend.snapshots)
	}
}

func TestSubmitSuccess(t *testing.T) {
	backend := &fakeBackend{}
	session := newFakeRealtime()
	o := New(backend, WithRealtime(session), WithConfig(fastConfig()))

	redirected := make(chan string, 1)
	o.OnComplete = func(url string) { redirected <- url }

	o.Start(context.Background(), "Dana", "two_sum")
	o.UpdateCode("final solution")

	report, err := o.Submit(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.OverallScore != 4.2 {
		t.Errorf("OverallScore = %v", report.OverallScore)
	}
	if o.State() != StateEnded {
		t.Errorf("State = %v, want ended", o.State())
	}

	backend.mu.Lock()
	if len(backend.submits) != 1 || backend.submits[0] != "final solution" {
		t.Errorf("submits = %v", backend.submits)
	}
	backend.mu.Unlock()

	session.mu.Lock()
	closed := session.closed
	session.mu.Unlock()
	if !closed {
		t.Error("transport not released after submit")
	}

	select {
	case url := <-redirected:
		if url != "/report/sess-1" {
			t.Errorf("redirect = %q", url)
		}
	case <-time.After(time.Second):
		t.Fatal("redirect never fired")
	}

	// Closing line landed.
	lines := o.Transcript().Snapshot()
	if lines[len(lines)-1].Speaker != "ai" {
		t.Error("closing transcript line missing")
	}
}

func TestSubmitFailureReturnsToLive(t *testing.T) {
	backend := &fakeBackend{submitErr: errors.New("scoring backend down")}
	session := newFakeRealtime()
	o := New(backend, WithRealtime(session), WithConfig(fastConfig()))

	o.Start(context.Background(), "Dana", "two_sum")
	o.UpdateCode("work in progress")

	if _, err := o.Submit(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	if o.State() != StateLive {
		t.Errorf("State = %v, want live after failed submit", o.State())
	}
	if o.Code() != "work in progress" {
		t.Errorf("code = %q, must be preserved", o.Code())
	}

	// Retry succeeds.
	backend.mu.Lock()
	backend.submitErr = nil
	backend.mu.Unlock()
	if _, err := o.Submit(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if o.State() != StateEnded {
		t.Errorf("State = %v after retry", o.State())
	}
}

func TestHintCounter(t *testing.T) {
	o := New(&fakeBackend{}, WithConfig(fastConfig()))
	o.Start(context.Background(), "Dana", "two_sum")

	var mu sync.Mutex
	var counts []int
	o.OnHint = func(text string, count int) {
		mu.Lock()
		counts = append(counts, count)
		mu.Unlock()
	}

	hint1, _ := protocol.NewHintMessage("Think about a map.")
	hint2, _ := protocol.NewHintMessage("What about duplicates?")
	o.HandleRemoteEvent(hint1)
	o.HandleRemoteEvent(hint2)

	if o.HintCount() != 2 {
		t.Errorf("HintCount = %d", o.HintCount())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 2 {
		t.Errorf("counts = %v", counts)
	}
}

func TestTranscriptKeepsFinalizationOrder(t *testing.T) {
	o := New(&fakeBackend{}, WithConfig(fastConfig()))
	o.Start(context.Background(), "Dana", "two_sum")

	o.HandleRemoteTranscript("ai", "How would you start?", true)
	o.HandleRemoteTranscript("candidate", "Probably a brute force first.", true)
	o.HandleRemoteTranscript("ai", "Walk me through it.", true)

	lines := o.Transcript().Snapshot()
	// Line 0 is the welcome message.
	want := []string{"How would you start?", "Probably a brute force first.", "Walk me through it."}
	if len(lines) != len(want)+1 {
		t.Fatalf("got %d lines", len(lines))
	}
	for i, text := range want {
		if lines[i+1].Text != text {
			t.Errorf("lines[%d] = %q, want %q", i+1, lines[i+1].Text, text)
		}
	}
}

func TestConnectionLostIndicator(t *testing.T) {
	backend := &fakeBackend{}
	session := newFakeRealtime()
	o := New(backend, WithRealtime(session), WithConfig(fastConfig()))

	lost := make(chan struct{}, 1)
	o.OnConnectionLost = func() { lost <- struct{}{} }

	o.Start(context.Background(), "Dana", "two_sum")

	o.HandleHealthChange(transport.HealthReconnecting)

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("connection-lost never fired")
	}
	if !o.ConnectionLost() {
		t.Error("indicator not set")
	}
	if o.Mode() != ModeRealtime {
		t.Error("mid-session drop must not swap modes")
	}

	// Repeat signal does not re-fire.
	o.HandleHealthChange(transport.HealthFailed)
	select {
	case <-lost:
		t.Error("indicator fired twice")
	default:
	}

	// Recovery clears it.
	o.HandleHealthChange(transport.HealthConnected)
	if o.ConnectionLost() {
		t.Error("indicator not cleared on recovery")
	}
}

func TestToggleNotifiesFarEnd(t *testing.T) {
	backend := &fakeBackend{}
	session := newFakeRealtime()
	o := New(backend, WithRealtime(session), WithConfig(fastConfig()))

	o.Start(context.Background(), "Dana", "two_sum")

	if on := o.ToggleCamera(); on {
		t.Fatal("first toggle should disable the camera")
	}
	o.ToggleMicrophone()

	session.mu.Lock()
	sent := make([][]byte, len(session.sent))
	copy(sent, session.sent)
	session.mu.Unlock()

	if len(sent) != 2 {
		t.Fatalf("data channel got %d messages, want one per toggle", len(sent))
	}

	msg, err := protocol.ParseMessage(sent[0])
	if err != nil || msg.Type != protocol.TypeMediaState {
		t.Fatalf("payload = %s", sent[0])
	}
	data, _ := msg.GetMediaStateData()
	if data.CameraOn || !data.MicrophoneOn {
		t.Errorf("camera toggle sent mic=%v cam=%v", data.MicrophoneOn, data.CameraOn)
	}

	msg, err = protocol.ParseMessage(sent[1])
	if err != nil || msg.Type != protocol.TypeMediaState {
		t.Fatalf("payload = %s", sent[1])
	}
	data, _ = msg.GetMediaStateData()
	if data.CameraOn || data.MicrophoneOn {
		t.Errorf("mic toggle sent mic=%v cam=%v", data.MicrophoneOn, data.CameraOn)
	}
}

func TestRunCodeRequiresLive(t *testing.T) {
	o := New(&fakeBackend{})
	if _, err := o.RunCode(context.Background()); !errors.Is(err, ErrNotLive) {
		t.Errorf("expected ErrNotLive, got %v", err)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	session := newFakeRealtime()
	o := New(backend, WithRealtime(session), WithConfig(fastConfig()))

	o.Start(context.Background(), "Dana", "two_sum")
	o.End()
	o.End()

	if o.State() != StateEnded {
		t.Errorf("State = %v", o.State())
	}
}

func TestStateTransitionTable(t *testing.T) {
	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		{StateSetup, StateConnecting, true},
		{StateConnecting, StateLive, true},
		{StateConnecting, StateSetup, true},
		{StateConnecting, StateEnded, true},
		{StateLive, StateSubmitting, true},
		{StateSubmitting, StateLive, true},
		{StateSubmitting, StateEnded, true},
		{StateLive, StateEnded, true},
		{StateSetup, StateLive, false},
		{StateEnded, StateLive, false},
		{StateEnded, StateConnecting, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("canTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}
