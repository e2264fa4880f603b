package transport

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"time"

	"gopkg.in/hraban/opus.v2"

	"github.com/aretelabs/go-arete/pkg/stt"
)

const (
	publishSampleRate = 48000
	publishFrameMs    = 20
	publishFrameSize  = publishSampleRate * publishFrameMs / 1000
)

// AudioPublisher pumps microphone PCM into the session's outbound
// track as 20ms Opus frames. Mute is handled downstream: the session
// drops samples while the mic is off, so the encoder keeps its state
// warm across toggles.
type AudioPublisher struct {
	session *Session
	capture stt.Capture
	logger  *slog.Logger
}

// NewAudioPublisher creates a publisher over the given capture.
// The capture must produce s16le mono at 48kHz.
func NewAudioPublisher(session *Session, capture stt.Capture) *AudioPublisher {
	return &AudioPublisher{
		session: session,
		capture: capture,
		logger:  slog.Default().With("component", "transport.publisher"),
	}
}

// Run captures, encodes, and writes until the context ends or the
// microphone stream dies.
func (p *AudioPublisher) Run(ctx context.Context) error {
	mic, err := p.capture.Start(ctx)
	if err != nil {
		return err
	}
	defer mic.Close()

	encoder, err := opus.NewEncoder(publishSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return err
	}

	raw := make([]byte, publishFrameSize*2)
	pcm := make([]int16, publishFrameSize)
	packet := make([]byte, 1500)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := io.ReadFull(mic, raw); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}

		for i := range pcm {
			pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		}

		n, err := encoder.Encode(pcm, packet)
		if err != nil {
			p.logger.Warn("encode failed", "error", err)
			continue
		}

		if err := p.session.WriteAudio(packet[:n], publishFrameMs*time.Millisecond); err != nil {
			p.logger.Debug("write sample failed", "error", err)
		}
	}
}
