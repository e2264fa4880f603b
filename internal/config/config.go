// Package config provides configuration helpers for go-arete commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Default endpoints.
const (
	DefaultAPIBaseURL   = "http://localhost:8080/api/v1"
	DefaultSignalingURL = "ws://localhost:8080/rtc"
	DefaultUIPort       = "3000"
)

// Interview tunables. These were tuned empirically on the demo deployment;
// all of them can be overridden through the environment.
const (
	DefaultSilenceWindow    = 1500 * time.Millisecond
	DefaultResponseCooldown = 3 * time.Second
	DefaultSpeechCooldown   = 2 * time.Second
	DefaultCodeDebounce     = 1500 * time.Millisecond
	DefaultMinUtteranceLen  = 8
	DefaultConnectTimeout   = 3 * time.Second
)

// APIBaseURL returns the backend API base URL from ARETE_API_URL.
func APIBaseURL() string {
	return envString("ARETE_API_URL", DefaultAPIBaseURL)
}

// SignalingURL returns the realtime signaling URL from ARETE_SIGNALING_URL.
func SignalingURL() string {
	return envString("ARETE_SIGNALING_URL", DefaultSignalingURL)
}

// UIPort returns the local UI bridge port from ARETE_UI_PORT.
func UIPort() string {
	return envString("ARETE_UI_PORT", DefaultUIPort)
}

// DeepgramAPIKey returns the Deepgram API key, empty when not configured.
func DeepgramAPIKey() string {
	return os.Getenv("DEEPGRAM_API_KEY")
}

// AvatarMode returns the avatar rendering mode flag for the UI
// ("video", "static" or empty for the default).
func AvatarMode() string {
	return os.Getenv("ARETE_AVATAR_MODE")
}

// SilenceWindow returns the recognition silence window.
func SilenceWindow() time.Duration {
	return envDuration("ARETE_SILENCE_WINDOW_MS", DefaultSilenceWindow)
}

// ResponseCooldown returns the minimum gap between AI replies.
func ResponseCooldown() time.Duration {
	return envDuration("ARETE_RESPONSE_COOLDOWN_MS", DefaultResponseCooldown)
}

// SpeechCooldown returns the post-synthesis window before recognition resumes.
func SpeechCooldown() time.Duration {
	return envDuration("ARETE_SPEECH_COOLDOWN_MS", DefaultSpeechCooldown)
}

// CodeDebounce returns the code relay quiet period.
func CodeDebounce() time.Duration {
	return envDuration("ARETE_CODE_DEBOUNCE_MS", DefaultCodeDebounce)
}

// MinUtteranceLen returns the minimum finalized utterance length in runes.
func MinUtteranceLen() int {
	return envInt("ARETE_MIN_UTTERANCE_LEN", DefaultMinUtteranceLen)
}

// ConnectTimeout bounds the token fetch and transport connect.
func ConnectTimeout() time.Duration {
	return envDuration("ARETE_CONNECT_TIMEOUT_MS", DefaultConnectTimeout)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
