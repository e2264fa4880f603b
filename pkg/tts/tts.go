// Package tts provides a unified interface for text-to-speech providers.
//
// The package supports the interview backend's TTS endpoint as the primary
// provider and the local platform synthesizer (say, espeak-ng) as a fallback.
// All providers implement the Provider interface, enabling seamless switching
// without changing caller code.
//
// Example usage:
//
//	provider, _ := tts.NewRemote(tts.WithBaseURL("http://localhost:8080/api/v1"))
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello, welcome to the interview")
//	// result.Audio contains MP3/PCM audio bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
// All implementations must satisfy this interface for seamless provider switching.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the raw audio data in the specified format.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Provider identifies which provider produced the audio.
	Provider string

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time to first byte in milliseconds.
	LatencyMs int64

	// Duration is the estimated playback duration, zero when unknown.
	Duration time.Duration
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the audio codec (e.g., mp3_44100, wav_22050).
	Encoding Encoding

	// SampleRate in Hz (e.g., 22050, 44100).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingMP3 Encoding = "mp3_44100" // MP3 at 44.1kHz, what the backend returns
	EncodingWAV Encoding = "wav_22050" // WAV 22.05kHz, local synthesizer output
	EncodingPCM Encoding = "pcm_24000" // 24kHz mono PCM16
)

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingWAV:
		return 22050
	case EncodingPCM:
		return 24000
	default:
		return 44100
	}
}
