package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ErrNoPCMPlayer is returned when no playback command is installed.
var ErrNoPCMPlayer = errors.New("transport: no pcm player available")

// pcmPlayerCommands lists stdin-streaming players in preference order.
// All read s16le mono 48kHz from fd 0.
var pcmPlayerCommands = []struct {
	name string
	args []string
}{
	{"ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-f", "s16le", "-ar", "48000", "-ch_layout", "mono", "-i", "pipe:0"}},
	{"aplay", []string{"-q", "-f", "S16_LE", "-r", "48000", "-c", "1"}},
	{"play", []string{"-q", "-t", "raw", "-e", "signed", "-b", "16", "-r", "48000", "-c", "1", "-"}},
}

// PCMPlayer streams decoded agent audio to the speakers through a
// long-lived player process fed on stdin.
type PCMPlayer struct {
	command string
	args    []string

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewPCMPlayer resolves a playback command from PATH.
func NewPCMPlayer() (*PCMPlayer, error) {
	for _, c := range pcmPlayerCommands {
		if _, err := exec.LookPath(c.name); err == nil {
			return &PCMPlayer{command: c.name, args: c.args}, nil
		}
	}
	return nil, ErrNoPCMPlayer
}

// Write queues PCM samples for playback, starting the player process
// on first use. A dead process is restarted on the next write.
func (p *PCMPlayer) Write(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin == nil {
		if err := p.startLocked(); err != nil {
			return err
		}
	}

	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	if _, err := p.stdin.Write(buf); err != nil {
		p.stopLocked()
		return fmt.Errorf("transport: pcm write: %w", err)
	}
	return nil
}

func (p *PCMPlayer) startLocked() error {
	cmd := exec.Command(p.command, p.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("transport: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("transport: start %s: %w", p.command, err)
	}
	p.cmd = cmd
	p.stdin = stdin
	return nil
}

func (p *PCMPlayer) stopLocked() {
	if p.stdin != nil {
		p.stdin.Close()
		p.stdin = nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
		p.cmd.Wait()
	}
	p.cmd = nil
}

// Close stops playback and the player process. Idempotent.
func (p *PCMPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}
