package interview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretelabs/go-arete/pkg/api"
	"github.com/aretelabs/go-arete/pkg/fallback"
	"github.com/aretelabs/go-arete/pkg/protocol"
	"github.com/aretelabs/go-arete/pkg/relay"
	"github.com/aretelabs/go-arete/pkg/transport"
)

// ErrNoCandidateName is returned when starting without a name.
var ErrNoCandidateName = errors.New("interview: candidate name required")

// ErrNotLive is returned for operations that need a live session.
var ErrNotLive = errors.New("interview: session is not live")

// Backend is the slice of the session API the orchestrator drives.
type Backend interface {
	StartInterview(ctx context.Context, candidateName, problemID string) (*api.StartInterviewResponse, error)
	Token(ctx context.Context, sessionID, participantName string) (*api.TokenResponse, error)
	SnapshotCode(ctx context.Context, sessionID, code string) (*api.CodeSnapshotResponse, error)
	RunCode(ctx context.Context, sessionID, code string) (*api.RunCodeResponse, error)
	SubmitSolution(ctx context.Context, sessionID, code string) (*api.InterviewReport, error)
}

// Realtime is the transport surface the orchestrator drives. Satisfied
// by *transport.Session.
type Realtime interface {
	ConnectWith(ctx context.Context, fetch transport.CredentialFunc) error
	SendData(payload []byte) error
	Health() transport.ConnectionHealth
	ToggleMicrophone() bool
	ToggleCamera() bool
	MicrophoneOn() bool
	CameraOn() bool
	Close() error
}

// Config holds orchestrator tunables.
type Config struct {
	CodeDebounce  time.Duration
	RedirectDelay time.Duration
}

// DefaultConfig returns orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		CodeDebounce:  1500 * time.Millisecond,
		RedirectDelay: 3 * time.Second,
	}
}

// Orchestrator owns the interview lifecycle: one state machine, one
// transcript, one active interviewer path.
type Orchestrator struct {
	backend Backend
	session Realtime
	local   *fallback.Interviewer
	cfg     Config
	logger  *slog.Logger

	transcript *Transcript
	relay      *relay.Relay

	mu             sync.Mutex
	state          State
	mode           Mode
	sessionID      string
	candidateName  string
	problemTitle   string
	starterCode    string
	welcome        string
	code           string
	hints          int
	liveSince      time.Time
	connectionLost bool
	ended          bool

	ctx context.Context

	// Callbacks.
	OnStateChange    func(State)
	OnNotice         func(text string)
	OnHint           func(text string, count int)
	OnRunResult      func(*protocol.RunResultData)
	OnComplete       func(redirectURL string)
	OnConnectionLost func()
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRealtime attaches the realtime transport path.
func WithRealtime(session Realtime) Option {
	return func(o *Orchestrator) { o.session = session }
}

// WithLocal attaches the local fallback path.
func WithLocal(local *fallback.Interviewer) Option {
	return func(o *Orchestrator) { o.local = local }
}

// WithConfig overrides the tunables.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger.With("component", "interview") }
}

// New creates an orchestrator in the setup state.
func New(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:    backend,
		cfg:        DefaultConfig(),
		logger:     slog.Default().With("component", "interview"),
		transcript: NewTranscript(),
		state:      StateSetup,
		mode:       ModeNone,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.relay = relay.New(o.cfg.CodeDebounce, o.sendSnapshot)
	return o
}

// Transcript returns the transcript store.
func (o *Orchestrator) Transcript() *Transcript {
	return o.transcript
}

// State returns the lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Mode returns the active interviewer path.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SessionID returns the backend session identifier.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// ProblemTitle returns the assigned problem's title.
func (o *Orchestrator) ProblemTitle() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.problemTitle
}

// Code returns the latest editor buffer.
func (o *Orchestrator) Code() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.code
}

// HintCount returns how many hints the interviewer has given.
func (o *Orchestrator) HintCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hints
}

// Elapsed returns time since the session went live, zero before that.
func (o *Orchestrator) Elapsed() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.liveSince.IsZero() {
		return 0
	}
	return time.Since(o.liveSince)
}

// ConnectionLost reports whether the realtime path dropped mid-session.
func (o *Orchestrator) ConnectionLost() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connectionLost
}

func (o *Orchestrator) setState(to State) bool {
	o.mu.Lock()
	from := o.state
	if !canTransition(from, to) {
		o.mu.Unlock()
		return false
	}
	o.state = to
	cb := o.OnStateChange
	o.mu.Unlock()

	o.logger.Info("state changed", "from", from.String(), "to", to.String())
	if cb != nil {
		cb(to)
	}
	return true
}

// Start runs setup and connecting: create the backend session, then
// bring up exactly one interviewer path. Realtime is preferred; the
// local fallback takes over when the transport cannot connect.
func (o *Orchestrator) Start(ctx context.Context, candidateName, problemID string) error {
	if candidateName == "" {
		return ErrNoCandidateName
	}

	if !o.setState(StateConnecting) {
		return errors.New("interview: already started")
	}

	o.mu.Lock()
	o.ctx = ctx
	o.candidateName = candidateName
	o.mu.Unlock()

	resp, err := o.backend.StartInterview(ctx, candidateName, problemID)
	if err != nil {
		// Back to setup: the attempt failed but the client may retry.
		o.logger.Error("session create failed", "error", err)
		o.setState(StateSetup)
		return err
	}

	o.mu.Lock()
	o.sessionID = resp.SessionID
	o.problemTitle = resp.ProblemTitle
	o.starterCode = resp.StarterCode
	o.welcome = resp.WelcomeMessage
	o.code = resp.StarterCode
	o.mu.Unlock()

	mode := o.connectInterviewer(ctx, resp)

	o.mu.Lock()
	o.mode = mode
	o.liveSince = time.Now()
	o.mu.Unlock()

	o.setState(StateLive)
	o.logger.Info("interview live",
		"session_id", resp.SessionID,
		"problem", resp.ProblemTitle,
		"mode", mode.String(),
	)
	return nil
}

// connectInterviewer tries realtime first, then the local fallback.
func (o *Orchestrator) connectInterviewer(ctx context.Context, resp *api.StartInterviewResponse) Mode {
	if o.session != nil {
		err := o.session.ConnectWith(ctx, func(ctx context.Context) (transport.Credentials, error) {
			tok, err := o.backend.Token(ctx, resp.SessionID, resp.CandidateName)
			if err != nil {
				return transport.Credentials{}, err
			}
			return transport.Credentials{
				Token:    tok.Token,
				Identity: tok.Identity,
				RoomName: tok.RoomName,
			}, nil
		})
		if err == nil {
			if resp.WelcomeMessage != "" {
				o.transcript.Append("ai", resp.WelcomeMessage)
			}
			return ModeRealtime
		}
		o.logger.Warn("realtime connect failed, using local interviewer", "error", err)
		o.notice("Realtime connection unavailable. Continuing with the local interviewer.")
	}

	if o.local != nil {
		o.local.OnTranscript = func(role, text string) {
			o.transcript.Append(role, text)
		}
		o.local.OnNotice = o.notice
		if err := o.local.Start(ctx); err != nil {
			o.logger.Error("local interviewer start failed", "error", err)
		}
		if resp.WelcomeMessage != "" {
			o.local.Greet(resp.WelcomeMessage)
		}
		return ModeLocal
	}

	if resp.WelcomeMessage != "" {
		o.transcript.Append("ai", resp.WelcomeMessage)
	}
	return ModeNone
}

// Unlock opens audio output after the user gesture.
func (o *Orchestrator) Unlock() {
	if o.local != nil {
		o.local.Unlock()
	}
}

// UpdateCode records an editor change and arms the relay.
func (o *Orchestrator) UpdateCode(code string) {
	o.mu.Lock()
	o.code = code
	live := o.state == StateLive
	o.mu.Unlock()

	if live {
		o.relay.Update(code)
	}
}

// sendSnapshot delivers a debounced snapshot. The target is resolved
// now, not when the edit happened: data channel while the realtime
// path is connected, the HTTP endpoint otherwise, dropped when there
// is no session.
func (o *Orchestrator) sendSnapshot(code string) {
	o.mu.Lock()
	sessionID := o.sessionID
	ctx := o.ctx
	o.mu.Unlock()

	if sessionID == "" {
		return
	}

	if o.session != nil && o.session.Health() == transport.HealthConnected {
		if msg, err := protocol.NewCodeSnapshotMessage(code, 0, time.Now().UnixMilli()); err == nil {
			if payload, err := msg.Bytes(); err == nil {
				if err := o.session.SendData(payload); err == nil {
					return
				}
			}
		}
	}

	snapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := o.backend.SnapshotCode(snapCtx, sessionID, code); err != nil {
		o.logger.Debug("code snapshot dropped", "error", err)
	}
}

// RunCode executes the current buffer against the problem's tests.
func (o *Orchestrator) RunCode(ctx context.Context) (*api.RunCodeResponse, error) {
	o.mu.Lock()
	sessionID := o.sessionID
	code := o.code
	live := o.state == StateLive
	o.mu.Unlock()

	if !live {
		return nil, ErrNotLive
	}
	return o.backend.RunCode(ctx, sessionID, code)
}

// Submit sends the final solution. On success the closing line lands
// in the transcript and the redirect is scheduled; on failure the
// session returns to live with the code untouched.
func (o *Orchestrator) Submit(ctx context.Context) (*api.InterviewReport, error) {
	if !o.setState(StateSubmitting) {
		return nil, ErrNotLive
	}

	o.relay.Flush()

	o.mu.Lock()
	sessionID := o.sessionID
	code := o.code
	o.mu.Unlock()

	report, err := o.backend.SubmitSolution(ctx, sessionID, code)
	if err != nil {
		o.logger.Warn("submit failed", "error", err)
		o.setState(StateLive)
		o.notice("Submission failed. Your code is untouched; try again.")
		return nil, err
	}

	o.transcript.Append("ai", "Thanks, your solution is in. Generating your report now.")

	redirectURL := "/report/" + sessionID
	go func() {
		time.Sleep(o.cfg.RedirectDelay)
		if o.OnComplete != nil {
			o.OnComplete(redirectURL)
		}
	}()

	o.End()
	return report, nil
}

// HandleRemoteTranscript routes a transport transcript line into the
// store. Wire this to transport.Session.OnTranscript.
func (o *Orchestrator) HandleRemoteTranscript(role, text string, structured bool) {
	if text == "" {
		return
	}
	o.transcript.Append(role, text)
}

// HandleRemoteEvent routes a structured data-channel event. Wire this
// to transport.Session.OnEvent.
func (o *Orchestrator) HandleRemoteEvent(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeHint:
		data, err := msg.GetHintData()
		if err != nil {
			return
		}
		o.mu.Lock()
		o.hints++
		count := o.hints
		cb := o.OnHint
		o.mu.Unlock()
		if cb != nil {
			cb(data.Text, count)
		}

	case protocol.TypeRunResult:
		data, err := msg.GetRunResultData()
		if err != nil {
			return
		}
		if o.OnRunResult != nil {
			o.OnRunResult(data)
		}

	case protocol.TypeInterviewComplete:
		data, err := msg.GetInterviewCompleteData()
		if err != nil {
			return
		}
		o.transcript.Append("ai", "That's the end of the interview. Thanks for your time.")
		if o.OnComplete != nil && data.RedirectURL != "" {
			o.OnComplete(data.RedirectURL)
		}

	case protocol.TypeError:
		if data, err := msg.GetErrorData(); err == nil {
			o.notice(data.Error)
		}
	}
}

// HandleHealthChange reacts to realtime health transitions. A drop
// mid-session raises the connection-lost indicator; the session never
// silently swaps to the local path.
func (o *Orchestrator) HandleHealthChange(h transport.ConnectionHealth) {
	o.mu.Lock()
	live := o.state == StateLive
	o.mu.Unlock()

	if !live {
		return
	}

	switch h {
	case transport.HealthReconnecting:
		o.markConnectionLost("Connection lost. Reconnecting...")
	case transport.HealthFailed:
		o.markConnectionLost("Connection lost. The interviewer may not hear you.")
	case transport.HealthConnected:
		o.mu.Lock()
		o.connectionLost = false
		o.mu.Unlock()
		o.notice("Connection restored.")
	}
}

func (o *Orchestrator) markConnectionLost(msg string) {
	o.mu.Lock()
	already := o.connectionLost
	o.connectionLost = true
	cb := o.OnConnectionLost
	o.mu.Unlock()

	if already {
		return
	}
	o.notice(msg)
	if cb != nil {
		cb()
	}
}

// ToggleMicrophone flips the active path's mic and returns the new
// state. On the realtime path the far end is told over the data
// channel.
func (o *Orchestrator) ToggleMicrophone() bool {
	switch o.Mode() {
	case ModeRealtime:
		on := o.session.ToggleMicrophone()
		o.sendMediaState()
		return on
	case ModeLocal:
		return o.local.ToggleMicrophone()
	}
	return false
}

// ToggleCamera flips the active path's camera and returns the new
// state. On the realtime path the far end is told over the data
// channel.
func (o *Orchestrator) ToggleCamera() bool {
	switch o.Mode() {
	case ModeRealtime:
		on := o.session.ToggleCamera()
		o.sendMediaState()
		return on
	case ModeLocal:
		return o.local.ToggleCamera()
	}
	return false
}

// sendMediaState notifies the far end of the local mic and camera
// state. Best effort: a drop just means the next toggle resends.
func (o *Orchestrator) sendMediaState() {
	if o.session == nil || o.session.Health() != transport.HealthConnected {
		return
	}
	msg, err := protocol.NewMediaStateMessage(o.session.MicrophoneOn(), o.session.CameraOn())
	if err != nil {
		return
	}
	payload, err := msg.Bytes()
	if err != nil {
		return
	}
	if err := o.session.SendData(payload); err != nil {
		o.logger.Debug("media state dropped", "error", err)
	}
}

// End tears everything down. Idempotent; the final state is ended.
func (o *Orchestrator) End() {
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		return
	}
	o.ended = true
	mode := o.mode
	o.mu.Unlock()

	if mode == ModeRealtime && o.session != nil {
		if err := o.session.Close(); err != nil {
			o.logger.Warn("transport close failed", "error", err)
		}
	}
	if mode == ModeLocal && o.local != nil {
		o.local.Close()
	}

	o.setState(StateEnded)
	o.logger.Info("interview ended")
}

func (o *Orchestrator) notice(text string) {
	if o.OnNotice != nil {
		o.OnNotice(text)
	}
}
