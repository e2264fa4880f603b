package stt

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ControllerState describes what the controller is doing.
type ControllerState int

const (
	StateIdle ControllerState = iota
	StateListening
	StatePaused
	StateRestarting
)

// String returns a human-readable state name.
func (s ControllerState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StatePaused:
		return "paused"
	case StateRestarting:
		return "restarting"
	default:
		return "idle"
	}
}

// Controller drives a recognition session and turns its event stream
// into whole candidate utterances.
//
// Final segments accumulate in a buffer. When no new final segment
// arrives within the silence window, the buffer is flushed as one
// utterance. Utterances shorter than the minimum length are dropped as
// noise. After an utterance fires, a response cooldown marks further
// flushes as suppressed so the interviewer is not interrupted
// mid-reply; suppressed utterances still reach the callback and belong
// in the transcript, they just must not trigger a reply.
type Controller struct {
	rec     Recognizer
	capture Capture
	logger  *slog.Logger

	silenceWindow    time.Duration
	minUtteranceLen  int
	responseCooldown time.Duration
	restartBase      time.Duration
	restartMax       time.Duration

	mu             sync.Mutex
	state          ControllerState
	paused         bool
	stopped        bool
	segments       []string
	lastUtterance  time.Time
	silenceTimer   *time.Timer
	restartPending bool
	restartTimer   *time.Timer
	attempts       int
	session        Session
	cancelSession  context.CancelFunc

	ctx context.Context

	// Callbacks, invoked without the controller lock held. An
	// utterance finalized inside the response cooldown arrives with
	// suppressed true: record it, do not reply to it.
	OnUtterance     func(text string, suppressed bool)
	OnPartial       func(text string)
	OnStateChange   func(ControllerState)
	OnTerminalError func(error)
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSilenceWindow sets the quiet period that finalizes an utterance.
func WithSilenceWindow(d time.Duration) ControllerOption {
	return func(c *Controller) { c.silenceWindow = d }
}

// WithMinUtteranceLen sets the minimum character count for an utterance.
func WithMinUtteranceLen(n int) ControllerOption {
	return func(c *Controller) { c.minUtteranceLen = n }
}

// WithResponseCooldown sets the suppression window after an utterance fires.
func WithResponseCooldown(d time.Duration) ControllerOption {
	return func(c *Controller) { c.responseCooldown = d }
}

// WithRestartBackoff sets the transient-error restart delays.
func WithRestartBackoff(base, max time.Duration) ControllerOption {
	return func(c *Controller) {
		c.restartBase = base
		c.restartMax = max
	}
}

// WithControllerLogger sets the structured logger.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger.With("component", "stt.controller") }
}

// NewController creates a recognition controller.
func NewController(rec Recognizer, capture Capture, opts ...ControllerOption) *Controller {
	c := &Controller{
		rec:              rec,
		capture:          capture,
		logger:           slog.Default().With("component", "stt.controller"),
		silenceWindow:    1500 * time.Millisecond,
		minUtteranceLen:  8,
		responseCooldown: 3 * time.Second,
		restartBase:      500 * time.Millisecond,
		restartMax:       15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens the first recognition session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle || c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.ctx = ctx
	c.mu.Unlock()

	return c.startSession()
}

// Stop tears everything down. Terminal; the controller cannot restart.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
	}
	if c.restartTimer != nil {
		c.restartTimer.Stop()
	}
	c.restartPending = false
	session := c.session
	cancel := c.cancelSession
	c.session = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil {
		_ = session.Close()
	}
	c.setState(StateIdle)
}

// Pause mutes recognition output. The stream keeps running but events
// are dropped and the buffer is cleared, so the interviewer's own
// voice never becomes an utterance. Implements the speech gate.
func (c *Controller) Pause() {
	c.mu.Lock()
	c.paused = true
	c.segments = nil
	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
	}
	c.mu.Unlock()
	c.setState(StatePaused)
}

// Resume reopens recognition output after a pause.
func (c *Controller) Resume() {
	c.mu.Lock()
	c.paused = false
	stopped := c.stopped
	restarting := c.restartPending
	c.mu.Unlock()

	if stopped {
		return
	}
	if restarting {
		c.setState(StateRestarting)
		return
	}
	c.setState(StateListening)
}

// State returns the controller's current state.
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Muted reports whether output is currently suppressed.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Controller) setState(s ControllerState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.OnStateChange
	c.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}

// startSession opens capture and a recognition stream, then consumes
// events until the stream dies.
func (c *Controller) startSession() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	ctx := c.ctx
	c.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)

	mic, err := c.capture.Start(sessionCtx)
	if err != nil {
		cancel()
		return c.handleFailure(err)
	}

	session, err := c.rec.Start(sessionCtx)
	if err != nil {
		mic.Close()
		cancel()
		return c.handleFailure(err)
	}

	c.mu.Lock()
	c.session = session
	c.cancelSession = cancel
	paused := c.paused
	c.mu.Unlock()

	if paused {
		c.setState(StatePaused)
	} else {
		c.setState(StateListening)
	}
	c.logger.Debug("recognition session started")

	go c.pump(mic, session)
	go c.consume(session, mic, cancel)
	return nil
}

// pump copies microphone audio into the session.
func (c *Controller) pump(mic io.ReadCloser, session Session) {
	buf := make([]byte, 3200) // 100ms at 16kHz mono PCM16
	for {
		n, err := mic.Read(buf)
		if n > 0 {
			if sendErr := session.SendAudio(buf[:n]); sendErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// consume processes events until the session ends, then routes the
// terminal error through tiered recovery.
func (c *Controller) consume(session Session, mic io.ReadCloser, cancel context.CancelFunc) {
	for ev := range session.Events() {
		c.handleEvent(ev)
	}

	mic.Close()
	cancel()

	c.mu.Lock()
	stopped := c.stopped
	if c.session == session {
		c.session = nil
		c.cancelSession = nil
	}
	c.mu.Unlock()

	if stopped {
		return
	}

	err := session.Err()
	if err == nil {
		// Clean provider close. Treat like a no-speech timeout and
		// reopen the stream.
		c.scheduleRestart(0, "clean close")
		return
	}
	_ = c.handleFailure(err)
}

func (c *Controller) handleEvent(ev Event) {
	c.mu.Lock()
	if c.paused || c.stopped {
		c.mu.Unlock()
		return
	}
	c.attempts = 0

	if ev.Kind == KindPartial {
		cb := c.OnPartial
		c.mu.Unlock()
		if cb != nil {
			cb(ev.Text)
		}
		return
	}

	c.segments = append(c.segments, ev.Text)
	c.armSilenceTimerLocked(c.silenceWindow)
	c.mu.Unlock()
}

// armSilenceTimerLocked (re)arms the finalization timer. Caller holds mu.
func (c *Controller) armSilenceTimerLocked(d time.Duration) {
	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
	}
	c.silenceTimer = time.AfterFunc(d, c.finalize)
}

// finalize flushes the buffer as one utterance once silence has held.
func (c *Controller) finalize() {
	c.mu.Lock()
	if c.paused || c.stopped || len(c.segments) == 0 {
		c.segments = nil
		c.mu.Unlock()
		return
	}

	text := strings.TrimSpace(strings.Join(c.segments, " "))
	c.segments = nil

	if len(text) < c.minUtteranceLen {
		c.mu.Unlock()
		c.logger.Debug("dropping short utterance", "chars", len(text))
		return
	}

	// Inside the response cooldown the utterance still flushes, but it
	// is marked suppressed so the listener records it without replying.
	// Suppressed utterances do not extend the cooldown.
	suppressed := !c.lastUtterance.IsZero() && time.Since(c.lastUtterance) < c.responseCooldown
	if !suppressed {
		c.lastUtterance = time.Now()
	}
	cb := c.OnUtterance
	c.mu.Unlock()

	c.logger.Debug("utterance finalized", "chars", len(text), "suppressed", suppressed)
	if cb != nil {
		cb(text, suppressed)
	}
}

// handleFailure routes an error through its recovery tier.
func (c *Controller) handleFailure(err error) error {
	class := Classify(err)
	recErr := &RecognitionError{Class: class, Err: err}

	switch class {
	case ClassPermission:
		c.logger.Error("microphone permission refused", "error", err)
		c.mu.Lock()
		c.stopped = true
		cb := c.OnTerminalError
		c.mu.Unlock()
		c.setState(StateIdle)
		if cb != nil {
			cb(recErr)
		}
		return recErr

	case ClassNoSpeech:
		// Expected during long silences. Reopen without noise.
		c.scheduleRestart(0, "no speech")
		return nil

	case ClassTransient:
		c.mu.Lock()
		c.attempts++
		// Double per attempt but stop at the cap; shifting by the raw
		// attempt count overflows once attempts pass the duration's
		// bit width and would arm an immediate restart.
		delay := c.restartBase
		for i := 1; i < c.attempts && delay < c.restartMax; i++ {
			delay *= 2
		}
		if delay > c.restartMax {
			delay = c.restartMax
		}
		c.mu.Unlock()
		c.logger.Warn("transient recognition failure", "error", err, "retry_in", delay)
		c.scheduleRestart(delay, "transient")
		return nil

	default:
		c.logger.Warn("recognition failure", "error", err)
		c.scheduleRestart(c.restartBase, "recoverable")
		return nil
	}
}

// scheduleRestart arms the restart timer. Idempotent: while a restart
// is pending further calls do nothing, so overlapping failure paths
// never stack sessions.
func (c *Controller) scheduleRestart(delay time.Duration, reason string) {
	c.mu.Lock()
	if c.stopped || c.restartPending {
		c.mu.Unlock()
		return
	}
	c.restartPending = true
	paused := c.paused
	c.restartTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.restartPending = false
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			return
		}
		if err := c.startSession(); err != nil {
			c.logger.Error("restart failed", "error", err)
		}
	})
	c.mu.Unlock()

	if !paused {
		c.setState(StateRestarting)
	}
	c.logger.Debug("restart scheduled", "reason", reason, "delay", delay)
}
