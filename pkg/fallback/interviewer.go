// Package fallback runs the interview locally when the realtime
// transport cannot. Recognition and synthesis happen on this machine;
// only the chat turns go to the backend.
package fallback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretelabs/go-arete/pkg/speech"
	"github.com/aretelabs/go-arete/pkg/stt"
)

// ApologyLine is spoken when a chat turn cannot reach the backend.
const ApologyLine = "I'm having trouble connecting. Could you repeat that?"

// ChatFunc sends one candidate message (with the latest code) and
// returns the interviewer's reply.
type ChatFunc func(ctx context.Context, message, code string) (string, error)

// CodeFunc returns the candidate's latest editor buffer.
type CodeFunc func() string

// Interviewer drives the local conversation loop.
//
// Audio output is held behind Unlock: nothing is spoken until the user
// has made an explicit gesture, but transcript text flows immediately.
type Interviewer struct {
	speaker    *speech.Speaker
	controller *stt.Controller
	chat       ChatFunc
	code       CodeFunc
	logger     *slog.Logger

	chatTimeout time.Duration

	mu       sync.Mutex
	unlocked bool
	pending  []string
	micOn    bool
	camOn    bool

	// OnTranscript receives every line in finalization order.
	OnTranscript func(role, text string)

	// OnNotice receives non-fatal user-facing notices.
	OnNotice func(text string)
}

// Option configures an Interviewer.
type Option func(*Interviewer)

// WithChatTimeout bounds each chat request.
func WithChatTimeout(d time.Duration) Option {
	return func(i *Interviewer) { i.chatTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interviewer) { i.logger = logger.With("component", "fallback") }
}

// New creates a fallback interviewer over an already wired speaker and
// recognition controller. The speaker's gate should be the controller,
// so recognition pauses whenever the interviewer talks.
func New(speaker *speech.Speaker, controller *stt.Controller, chat ChatFunc, code CodeFunc, opts ...Option) *Interviewer {
	i := &Interviewer{
		speaker:     speaker,
		controller:  controller,
		chat:        chat,
		code:        code,
		logger:      slog.Default().With("component", "fallback"),
		chatTimeout: 20 * time.Second,
		micOn:       true,
		camOn:       true,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start wires callbacks and begins listening. Speech stays locked
// until Unlock.
func (i *Interviewer) Start(ctx context.Context) error {
	i.speaker.OnUnavailable = func(err error) {
		i.logger.Warn("speech unavailable", "error", err)
		i.notice("Voice output is unavailable right now. The interview continues in text.")
	}

	i.controller.OnUtterance = func(text string, suppressed bool) {
		i.handleUtterance(ctx, text, suppressed)
	}
	i.controller.OnTerminalError = func(err error) {
		i.logger.Error("recognition unavailable", "error", err)
		i.notice("Microphone access was denied. Check your system privacy settings, then restart the interview.")
	}

	i.speaker.Start(ctx)
	return i.controller.Start(ctx)
}

// Greet appends the opening line to the transcript immediately and
// speaks it once audio is unlocked.
func (i *Interviewer) Greet(text string) {
	i.appendTranscript("ai", text)
	i.say(text)
}

// Unlock opens audio output after an explicit user gesture and flushes
// anything queued while locked. Idempotent.
func (i *Interviewer) Unlock() {
	i.mu.Lock()
	if i.unlocked {
		i.mu.Unlock()
		return
	}
	i.unlocked = true
	pending := i.pending
	i.pending = nil
	i.mu.Unlock()

	i.logger.Info("audio unlocked", "queued", len(pending))
	for _, text := range pending {
		if _, err := i.speaker.Speak(text); err != nil {
			i.logger.Warn("queued line dropped", "error", err)
		}
	}
}

// Unlocked reports whether audio output is open.
func (i *Interviewer) Unlocked() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unlocked
}

// ToggleMicrophone flips the user mute and returns the new state.
// Distinct from the system mute the speaker holds during playback.
func (i *Interviewer) ToggleMicrophone() bool {
	i.mu.Lock()
	i.micOn = !i.micOn
	on := i.micOn
	i.mu.Unlock()
	i.logger.Info("microphone toggled", "enabled", on)
	return on
}

// MicrophoneOn reports the user mute state.
func (i *Interviewer) MicrophoneOn() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.micOn
}

// ToggleCamera flips the camera and returns the new state.
func (i *Interviewer) ToggleCamera() bool {
	i.mu.Lock()
	i.camOn = !i.camOn
	on := i.camOn
	i.mu.Unlock()
	i.logger.Info("camera toggled", "enabled", on)
	return on
}

// CameraOn reports the camera state.
func (i *Interviewer) CameraOn() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.camOn
}

// Close stops recognition and playback.
func (i *Interviewer) Close() {
	i.controller.Stop()
	i.speaker.Stop()
}

// handleUtterance runs one chat turn. A suppressed utterance landed
// inside the response cooldown: it goes to the transcript but must
// not trigger a reply.
func (i *Interviewer) handleUtterance(ctx context.Context, text string, suppressed bool) {
	i.mu.Lock()
	muted := !i.micOn
	i.mu.Unlock()
	if muted {
		i.logger.Debug("dropping utterance while muted")
		return
	}

	i.appendTranscript("candidate", text)

	if suppressed {
		i.logger.Debug("utterance recorded without reply", "chars", len(text))
		return
	}

	chatCtx, cancel := context.WithTimeout(ctx, i.chatTimeout)
	defer cancel()

	reply, err := i.chat(chatCtx, text, i.code())
	if err != nil {
		i.logger.Warn("chat turn failed", "error", err)
		reply = ApologyLine
	}

	i.appendTranscript("ai", reply)
	i.say(reply)
}

// say speaks immediately when unlocked, otherwise queues.
func (i *Interviewer) say(text string) {
	i.mu.Lock()
	if !i.unlocked {
		i.pending = append(i.pending, text)
		i.mu.Unlock()
		return
	}
	i.mu.Unlock()

	if _, err := i.speaker.Speak(text); err != nil {
		i.logger.Warn("speak failed", "error", err)
	}
}

func (i *Interviewer) appendTranscript(role, text string) {
	if i.OnTranscript != nil {
		i.OnTranscript(role, text)
	}
}

func (i *Interviewer) notice(text string) {
	if i.OnNotice != nil {
		i.OnNotice(text)
	}
}
