package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aretelabs/go-arete/internal/httpc"
)

// Remote synthesizes speech through the interview backend's TTS endpoint.
// The backend proxies to its own upstream voice so the client never holds
// a voice API key.
type Remote struct {
	config *Config
	client *http.Client
}

// NewRemote creates a backend TTS provider.
func NewRemote(opts ...Option) (*Remote, error) {
	config := DefaultConfig()
	config.Apply(opts...)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Remote{
		config: config,
		client: httpc.NewClient(config.Timeout),
	}, nil
}

// Synthesize converts text to audio via POST /tts.
func (r *Remote) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError("remote", ErrEmptyText)
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, WrapError("remote", err)
	}

	start := time.Now()

	var audio []byte
	err = r.doWithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			r.config.BaseURL+"/tts", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return r.parseError(resp)
		}

		audio, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, WrapError("remote", err)
	}

	if len(audio) < r.config.MinAudioBytes {
		r.config.Logger.Warn("rejecting implausibly small audio payload",
			"bytes", len(audio),
			"min", r.config.MinAudioBytes,
		)
		return nil, WrapError("remote", ErrImplausibleAudio)
	}

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1},
		Provider:  "remote",
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health checks the endpoint with a minimal request.
func (r *Remote) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.config.BaseURL+"/problems", nil)
	if err != nil {
		return WrapError("remote", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return WrapError("remote", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return WrapError("remote", &APIError{
			StatusCode: resp.StatusCode,
			Message:    "health check failed",
			Provider:   "remote",
		})
	}
	return nil
}

// Close is a no-op; the HTTP client is shared.
func (r *Remote) Close() error {
	return nil
}

// doWithRetry executes fn with retry on retryable errors.
func (r *Remote) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
			r.config.Logger.Debug("retrying synthesis",
				"attempt", attempt,
				"max", r.config.MaxRetries,
			)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		apiErr, ok := lastErr.(*APIError)
		if !ok || !apiErr.IsRetryable() {
			return lastErr
		}
	}

	return fmt.Errorf("after %d retries: %w", r.config.MaxRetries, lastErr)
}

// parseError extracts an error from an HTTP response body.
func (r *Remote) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil {
		if payload.Detail != "" {
			msg = payload.Detail
		} else if payload.Error != "" {
			msg = payload.Error
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		Provider:   "remote",
	}
}

// Verify Remote implements Provider at compile time.
var _ Provider = (*Remote)(nil)
