package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// FFmpegCapture streams microphone PCM16 audio through ffmpeg.
type FFmpegCapture struct {
	command    string
	inputFmt   string
	device     string
	sampleRate int
	channels   int
}

// FFmpegOption configures an FFmpegCapture.
type FFmpegOption func(*FFmpegCapture)

// WithDevice sets the input device name.
func WithDevice(device string) FFmpegOption {
	return func(c *FFmpegCapture) { c.device = device }
}

// WithInputFormat overrides the platform input format (pulse, avfoundation, alsa).
func WithInputFormat(format string) FFmpegOption {
	return func(c *FFmpegCapture) { c.inputFmt = format }
}

// WithSampleRate sets the capture sample rate in Hz.
func WithSampleRate(rate int) FFmpegOption {
	return func(c *FFmpegCapture) { c.sampleRate = rate }
}

// NewFFmpegCapture creates a microphone capture backed by ffmpeg.
func NewFFmpegCapture(opts ...FFmpegOption) *FFmpegCapture {
	c := &FFmpegCapture{
		command:    "ffmpeg",
		sampleRate: 16000,
		channels:   1,
	}
	switch runtime.GOOS {
	case "darwin":
		c.inputFmt = "avfoundation"
		c.device = ":0"
	default:
		c.inputFmt = "pulse"
		c.device = "default"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches ffmpeg and returns a reader of raw s16le audio.
// Returns quickly with a classified error when the device is denied
// or missing.
func (c *FFmpegCapture) Start(ctx context.Context) (io.ReadCloser, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.inputFmt,
		"-i", c.device,
		"-ac", strconv.Itoa(c.channels),
		"-ar", strconv.Itoa(c.sampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stt: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stt: start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// ffmpeg fails fast on device problems. Give it a beat so we can
	// surface the real error instead of an EOF on first read.
	select {
	case err := <-waitErr:
		detail := bytes.TrimSpace(stderr.Bytes())
		if err != nil {
			return nil, fmt.Errorf("stt: capture failed: %w: %s", err, detail)
		}
		return nil, fmt.Errorf("stt: capture exited before audio started: %s", detail)
	case <-time.After(250 * time.Millisecond):
	}

	return &captureSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type captureSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *captureSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *captureSession) Close() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeExit(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeExit(err)
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
	})
	return s.stopErr
}

// normalizeExit ignores the nonzero exit ffmpeg reports on interrupt.
func normalizeExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// Verify FFmpegCapture implements Capture at compile time.
var _ Capture = (*FFmpegCapture)(nil)
