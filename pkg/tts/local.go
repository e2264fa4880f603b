package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// speechCommands lists platform synthesizers in preference order.
// Each entry renders text to a WAV file at the given path.
var speechCommands = []struct {
	name string
	args func(voice, text, outPath string) []string
}{
	{"say", func(voice, text, outPath string) []string {
		args := []string{"-o", outPath, "--data-format=LEI16@22050"}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		return append(args, text)
	}},
	{"espeak-ng", func(voice, text, outPath string) []string {
		args := []string{"-w", outPath}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		return append(args, text)
	}},
	{"espeak", func(voice, text, outPath string) []string {
		args := []string{"-w", outPath}
		if voice != "" {
			args = append(args, "-v", voice)
		}
		return append(args, text)
	}},
}

// Local synthesizes speech with the platform speech command.
// It needs no network or API key, which makes it the fallback of last
// resort when the backend voice is unreachable.
type Local struct {
	config  *Config
	command string
	args    func(voice, text, outPath string) []string
}

// NewLocal creates a local synthesizer provider.
// Returns ErrProviderUnavailable when no speech command is installed.
func NewLocal(opts ...Option) (*Local, error) {
	config := DefaultConfig()
	config.Apply(opts...)

	l := &Local{config: config}

	if config.Command != "" {
		for _, c := range speechCommands {
			if c.name == config.Command {
				if _, err := exec.LookPath(c.name); err != nil {
					return nil, WrapError("local", ErrProviderUnavailable)
				}
				l.command = c.name
				l.args = c.args
				return l, nil
			}
		}
		return nil, WrapError("local", fmt.Errorf("unknown speech command %q", config.Command))
	}

	for _, c := range speechCommands {
		if _, err := exec.LookPath(c.name); err == nil {
			l.command = c.name
			l.args = c.args
			return l, nil
		}
	}
	return nil, WrapError("local", ErrProviderUnavailable)
}

// Synthesize renders text to WAV with the platform command.
func (l *Local) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError("local", ErrEmptyText)
	}

	dir, err := os.MkdirTemp("", "arete-tts-")
	if err != nil {
		return nil, WrapError("local", err)
	}
	defer os.RemoveAll(dir)

	outPath := filepath.Join(dir, "out.wav")
	start := time.Now()

	cmd := exec.CommandContext(ctx, l.command, l.args(l.config.Voice, text, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, WrapError("local", ctx.Err())
		}
		return nil, WrapError("local", fmt.Errorf("%s: %v: %s", l.command, err, stderr.String()))
	}

	audio, err := os.ReadFile(outPath)
	if err != nil {
		return nil, WrapError("local", err)
	}
	if len(audio) == 0 {
		return nil, WrapError("local", ErrImplausibleAudio)
	}

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingWAV, SampleRate: 22050, Channels: 1},
		Provider:  "local",
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health verifies the speech command is still on PATH.
func (l *Local) Health(ctx context.Context) error {
	if _, err := exec.LookPath(l.command); err != nil {
		return WrapError("local", ErrProviderUnavailable)
	}
	return nil
}

// Close is a no-op.
func (l *Local) Close() error {
	return nil
}

// Command returns the speech command this provider resolved.
func (l *Local) Command() string {
	return l.command
}

// Verify Local implements Provider at compile time.
var _ Provider = (*Local)(nil)
