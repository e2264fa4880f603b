// Package arete assembles the interview client: backend API, speech
// synthesis and recognition, realtime transport, local fallback,
// orchestrator and the browser UI bridge.
package arete

import (
	"time"

	"github.com/aretelabs/go-arete/internal/config"
)

// Config holds all configuration for the interview client.
// Flag parsing is done in cmd/arete/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool

	// APIBaseURL is the backend session API.
	APIBaseURL string

	// SignalingURL is the realtime signaling websocket endpoint.
	SignalingURL string

	// UIPort is the local UI bridge port.
	UIPort string

	// DeepgramKey enables streaming speech recognition.
	DeepgramKey string

	// Voice is the TTS voice identifier passed to the backend.
	Voice string

	// CameraDevice is the webcam device index for the self-preview.
	CameraDevice int

	// Feature flags.
	NoCamera   bool // skip webcam preview entirely
	NoRealtime bool // skip the realtime transport, local interviewer only

	// Interview tunables.
	SilenceWindow    time.Duration
	ResponseCooldown time.Duration
	SpeechCooldown   time.Duration
	CodeDebounce     time.Duration
	MinUtteranceLen  int
	ConnectTimeout   time.Duration
}

// DefaultConfig returns defaults with environment overrides applied.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:       config.APIBaseURL(),
		SignalingURL:     config.SignalingURL(),
		UIPort:           config.UIPort(),
		DeepgramKey:      config.DeepgramAPIKey(),
		SilenceWindow:    config.SilenceWindow(),
		ResponseCooldown: config.ResponseCooldown(),
		SpeechCooldown:   config.SpeechCooldown(),
		CodeDebounce:     config.CodeDebounce(),
		MinUtteranceLen:  config.MinUtteranceLen(),
		ConnectTimeout:   config.ConnectTimeout(),
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return &ConfigError{Field: "APIBaseURL", Message: "backend API URL is required (ARETE_API_URL)"}
	}
	if !c.NoRealtime && c.SignalingURL == "" {
		return &ConfigError{Field: "SignalingURL", Message: "signaling URL is required unless realtime is disabled (ARETE_SIGNALING_URL)"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
