package tts

import (
	"log/slog"
	"time"
)

// Config holds TTS provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Remote endpoint
	BaseURL string

	// Timeouts
	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// MinAudioBytes is the smallest payload accepted as real audio.
	// Smaller responses are rejected with ErrImplausibleAudio.
	MinAudioBytes int

	// Local synthesizer settings
	Voice   string
	Command string // override the platform speech command lookup

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring TTS providers.
type Option func(*Config)

// WithBaseURL sets the remote TTS endpoint base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRetry configures retry behavior for failed requests.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithMinAudioBytes sets the plausibility threshold for audio payloads.
func WithMinAudioBytes(n int) Option {
	return func(c *Config) {
		c.MinAudioBytes = n
	}
}

// WithVoice sets the voice name for providers that support it.
func WithVoice(voice string) Option {
	return func(c *Config) {
		c.Voice = voice
	}
}

// WithCommand overrides the local synthesizer command.
func WithCommand(cmd string) Option {
	return func(c *Config) {
		c.Command = cmd
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:       10 * time.Second,
		MaxRetries:    2,
		RetryDelay:    100 * time.Millisecond,
		MinAudioBytes: 1024, // Anything smaller is an error page, not speech
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	return nil
}
