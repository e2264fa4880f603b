// Package stt provides streaming speech recognition for the local
// interviewer path.
//
// A Recognizer opens a streaming Session against a transcription backend.
// The Controller sits on top: it pumps microphone audio into the session,
// buffers partial results, finalizes an utterance after a window of
// silence, and survives provider errors with tiered recovery.
package stt

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// EventKind identifies whether a stream event is partial or final text.
type EventKind string

const (
	KindPartial EventKind = "partial"
	KindFinal   EventKind = "final"
)

// Event is incremental transcription output from a provider.
type Event struct {
	Kind          EventKind
	Text          string
	IsSpeechFinal bool
}

// Session is an active streaming recognition session.
type Session interface {
	// SendAudio queues a PCM chunk for the provider.
	SendAudio(chunk []byte) error

	// Events delivers transcription events until the session ends.
	Events() <-chan Event

	// Close tears the session down. Idempotent.
	Close() error

	// Err returns the first stream error, nil on clean shutdown.
	Err() error
}

// Recognizer starts streaming recognition sessions.
type Recognizer interface {
	Start(ctx context.Context) (Session, error)
}

// Capture opens a live microphone stream of raw PCM16 audio.
type Capture interface {
	Start(ctx context.Context) (io.ReadCloser, error)
}

// ErrorClass tiers recognition failures by how the controller recovers.
type ErrorClass int

const (
	// ClassOther is a recoverable failure handled with a plain restart.
	ClassOther ErrorClass = iota

	// ClassPermission means microphone access was refused. Terminal;
	// no restart can succeed until the user intervenes.
	ClassPermission

	// ClassTransient is a network or provider hiccup. Restarted with
	// exponential backoff.
	ClassTransient

	// ClassNoSpeech means the provider gave up waiting for audio.
	// Restarted immediately and silently.
	ClassNoSpeech
)

// String returns a human-readable class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassPermission:
		return "permission"
	case ClassTransient:
		return "transient"
	case ClassNoSpeech:
		return "no_speech"
	default:
		return "other"
	}
}

// ErrNoAPIKey is returned when the recognizer has no credentials.
var ErrNoAPIKey = errors.New("stt: API key required")

// ErrSessionClosed is returned when sending on a finished session.
var ErrSessionClosed = errors.New("stt: session closed")

// permissionMarkers are substrings that indicate an access failure
// rather than a stream failure.
var permissionMarkers = []string{
	"permission denied",
	"not allowed",
	"operation not permitted",
	"unauthorized",
	"401",
	"403",
	"access denied",
}

var noSpeechMarkers = []string{
	"no speech",
	"no-speech",
	"net0001", // Deepgram: no audio received before timeout
}

// Classify maps an error to its recovery tier.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassOther
	}

	msg := strings.ToLower(err.Error())
	for _, m := range permissionMarkers {
		if strings.Contains(msg, m) {
			return ClassPermission
		}
	}
	for _, m := range noSpeechMarkers {
		if strings.Contains(msg, m) {
			return ClassNoSpeech
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	if strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporarily") ||
		strings.Contains(msg, "websocket") {
		return ClassTransient
	}

	return ClassOther
}

// RecognitionError pairs a provider error with its recovery tier.
type RecognitionError struct {
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	return "stt [" + e.Class.String() + "]: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *RecognitionError) Unwrap() error {
	return e.Err
}
