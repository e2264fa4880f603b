package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/aretelabs/go-arete/pkg/tts"
)

// ErrQueueFull is returned when the utterance queue has no room.
var ErrQueueFull = errors.New("speech: utterance queue full")

// ErrNoPlayer is returned when no audio player command is installed.
var ErrNoPlayer = errors.New("speech: no audio player available")

// Sink plays a synthesized audio buffer to completion.
type Sink interface {
	Play(ctx context.Context, result *tts.AudioResult) error
}

// playerCommands lists audio players in preference order.
var playerCommands = []struct {
	name string
	args func(path string) []string
}{
	{"afplay", func(path string) []string { return []string{path} }},
	{"mpg123", func(path string) []string { return []string{"-q", path} }},
	{"ffplay", func(path string) []string { return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path} }},
	{"aplay", func(path string) []string { return []string{"-q", path} }},
}

// ExecSink plays audio through a command-line player found on PATH.
type ExecSink struct {
	command string
	args    func(path string) []string
}

// NewExecSink resolves an audio player from PATH.
func NewExecSink() (*ExecSink, error) {
	for _, c := range playerCommands {
		if _, err := exec.LookPath(c.name); err == nil {
			return &ExecSink{command: c.name, args: c.args}, nil
		}
	}
	return nil, ErrNoPlayer
}

// Play writes the audio to a temp file and blocks until playback ends.
func (e *ExecSink) Play(ctx context.Context, result *tts.AudioResult) error {
	dir, err := os.MkdirTemp("", "arete-play-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	ext := "mp3"
	if result.Format.Encoding == tts.EncodingWAV {
		ext = "wav"
	}
	path := filepath.Join(dir, "utterance."+ext)
	if err := os.WriteFile(path, result.Audio, 0o600); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, e.command, e.args(path)...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("speech: %s: %w", e.command, err)
	}
	return nil
}

// Command returns the resolved player command.
func (e *ExecSink) Command() string {
	return e.command
}

// NullSink discards audio without playing it. Used in headless runs
// and diagnostics where no audio device is present.
type NullSink struct {
	mu     sync.Mutex
	played int
}

// Play records the call and returns immediately.
func (n *NullSink) Play(ctx context.Context, result *tts.AudioResult) error {
	n.mu.Lock()
	n.played++
	n.mu.Unlock()
	return ctx.Err()
}

// Played returns how many buffers were discarded.
func (n *NullSink) Played() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.played
}

var (
	_ Sink = (*ExecSink)(nil)
	_ Sink = (*NullSink)(nil)
)
