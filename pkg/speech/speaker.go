// Package speech serializes AI speech playback.
//
// A Speaker owns a FIFO queue of utterances. Exactly one utterance plays at
// a time; while anything is playing (and during the cooldown that follows)
// the speaking flag is up and the recognition gate stays paused, so the
// interviewer never transcribes its own voice.
package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretelabs/go-arete/pkg/tts"
)

// State describes what the speaker is doing.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateCoolingDown
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateCoolingDown:
		return "cooling_down"
	default:
		return "idle"
	}
}

// TurnState tracks an utterance through its lifecycle.
type TurnState int

const (
	TurnQueued TurnState = iota
	TurnPlaying
	TurnDone
	TurnFailed
)

// String returns a human-readable turn state name.
func (s TurnState) String() string {
	switch s {
	case TurnPlaying:
		return "playing"
	case TurnDone:
		return "done"
	case TurnFailed:
		return "failed"
	default:
		return "queued"
	}
}

// SpeechTurn is one queued utterance.
type SpeechTurn struct {
	ID   string
	Text string

	mu    sync.Mutex
	state TurnState
	err   error
}

// State returns the turn's current state.
func (t *SpeechTurn) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the synthesis or playback error, nil unless failed.
func (t *SpeechTurn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *SpeechTurn) setState(s TurnState, err error) {
	t.mu.Lock()
	t.state = s
	t.err = err
	t.mu.Unlock()
}

// Gate pauses and resumes speech recognition around playback.
// Pause is called before any audio starts; Resume only after the
// post-utterance cooldown has elapsed.
type Gate interface {
	Pause()
	Resume()
}

// Speaker plays synthesized speech one utterance at a time.
type Speaker struct {
	synth    tts.Provider
	sink     Sink
	gate     Gate
	cooldown time.Duration
	logger   *slog.Logger

	queue chan *SpeechTurn

	mu       sync.Mutex
	speaking bool
	state    State
	started  bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Callbacks, invoked from the playback goroutine.
	OnTurnStart     func(*SpeechTurn)
	OnTurnDone      func(*SpeechTurn)
	OnSpeakingEnded func()
	OnUnavailable   func(error)
}

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithGate sets the recognition gate paused during playback.
func WithGate(g Gate) SpeakerOption {
	return func(s *Speaker) { s.gate = g }
}

// WithCooldown sets the pause after playback before the gate reopens.
func WithCooldown(d time.Duration) SpeakerOption {
	return func(s *Speaker) { s.cooldown = d }
}

// WithQueueSize sets the utterance queue capacity.
func WithQueueSize(n int) SpeakerOption {
	return func(s *Speaker) { s.queue = make(chan *SpeechTurn, n) }
}

// WithSpeakerLogger sets the structured logger.
func WithSpeakerLogger(logger *slog.Logger) SpeakerOption {
	return func(s *Speaker) { s.logger = logger.With("component", "speech.speaker") }
}

// NewSpeaker creates a speaker over the given synthesizer and audio sink.
func NewSpeaker(synth tts.Provider, sink Sink, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		synth:    synth,
		sink:     sink,
		cooldown: 2 * time.Second,
		logger:   slog.Default().With("component", "speech.speaker"),
		queue:    make(chan *SpeechTurn, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the playback loop. Safe to call once.
func (s *Speaker) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop halts the playback loop and waits for it to exit.
func (s *Speaker) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// Speak enqueues text for playback. Returns the queued turn so the
// caller can watch its state. Fails when the queue is full.
func (s *Speaker) Speak(text string) (*SpeechTurn, error) {
	turn := &SpeechTurn{ID: uuid.NewString(), Text: text}

	select {
	case s.queue <- turn:
		s.logger.Debug("utterance queued", "turn", turn.ID, "chars", len(text), "pending", len(s.queue))
		return turn, nil
	default:
		return nil, ErrQueueFull
	}
}

// Speaking reports whether playback or cooldown is in progress.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// State returns the speaker's current state.
func (s *Speaker) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of queued utterances not yet started.
func (s *Speaker) Pending() int {
	return len(s.queue)
}

func (s *Speaker) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case turn := <-s.queue:
			s.playTurn(ctx, turn)
			s.settle(ctx)
		}
	}
}

// playTurn plays one utterance. The gate is paused before any audio
// can start and stays paused until settle releases it.
func (s *Speaker) playTurn(ctx context.Context, turn *SpeechTurn) {
	s.mu.Lock()
	wasSpeaking := s.speaking
	s.speaking = true
	s.state = StatePlaying
	s.mu.Unlock()

	if !wasSpeaking && s.gate != nil {
		s.gate.Pause()
	}

	turn.setState(TurnPlaying, nil)
	if s.OnTurnStart != nil {
		s.OnTurnStart(turn)
	}

	result, err := s.synth.Synthesize(ctx, turn.Text)
	if err == nil {
		err = s.sink.Play(ctx, result)
	}

	if err != nil {
		turn.setState(TurnFailed, err)
		s.logger.Warn("utterance failed", "turn", turn.ID, "error", err, "chars", len(turn.Text))
		if s.OnUnavailable != nil {
			s.OnUnavailable(err)
		}
	} else {
		turn.setState(TurnDone, nil)
	}

	if s.OnTurnDone != nil {
		s.OnTurnDone(turn)
	}
}

// settle runs the post-utterance cooldown. If more utterances are
// queued the gate stays closed and the next turn plays immediately.
// Failed turns go through the same release path so the speaking flag
// never sticks.
func (s *Speaker) settle(ctx context.Context) {
	if len(s.queue) > 0 {
		return
	}

	s.mu.Lock()
	s.state = StateCoolingDown
	s.mu.Unlock()

	if s.cooldown > 0 {
		select {
		case <-time.After(s.cooldown):
		case <-ctx.Done():
		case <-s.stop:
		}
	}

	if len(s.queue) > 0 {
		return
	}

	s.mu.Lock()
	s.speaking = false
	s.state = StateIdle
	s.mu.Unlock()

	if s.gate != nil {
		s.gate.Resume()
	}
	if s.OnSpeakingEnded != nil {
		s.OnSpeakingEnded()
	}
}
