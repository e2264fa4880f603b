// Package api is the HTTP client for the interview backend. Every call is
// JSON over HTTP with a bounded timeout; connection-establishing calls
// (Token, StartInterview) use a short-timeout client so failure surfaces
// quickly instead of hanging the session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretelabs/go-arete/internal/httpc"
)

// Client talks to the interview backend.
type Client struct {
	baseURL string
	http    *http.Client
	short   *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithShortClient overrides the client used for connection-establishing calls.
func WithShortClient(c *http.Client) Option {
	return func(cl *Client) { cl.short = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger.With("component", "api") }
}

// NewClient creates a backend API client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpc.Client,
		short:   httpc.Short,
		logger:  slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StartInterview starts a new interview session. Bounded by the short
// timeout: a slow backend here is a connection failure, not a wait.
func (c *Client) StartInterview(ctx context.Context, candidateName, problemID string) (*StartInterviewResponse, error) {
	var resp StartInterviewResponse
	err := c.post(ctx, c.short, "/interviews", StartInterviewRequest{
		CandidateName: candidateName,
		ProblemID:     problemID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the current session status.
func (c *Client) Status(ctx context.Context, sessionID string) (*SessionStatusResponse, error) {
	var resp SessionStatusResponse
	if err := c.get(ctx, c.http, "/interviews/"+sessionID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SnapshotCode posts a debounced editor snapshot. Fire-and-forget from the
// caller's perspective; a stale in-flight send is superseded by the next one.
func (c *Client) SnapshotCode(ctx context.Context, sessionID, code string) (*CodeSnapshotResponse, error) {
	var resp CodeSnapshotResponse
	err := c.post(ctx, c.http, "/interviews/"+sessionID+"/code", CodeSnapshotRequest{Code: code}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunCode executes the candidate's code against the problem test cases.
func (c *Client) RunCode(ctx context.Context, sessionID, code string) (*RunCodeResponse, error) {
	var resp RunCodeResponse
	err := c.post(ctx, c.http, "/interviews/"+sessionID+"/run", RunCodeRequest{Code: code}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitSolution submits the final code and returns the report.
func (c *Client) SubmitSolution(ctx context.Context, sessionID, code string) (*InterviewReport, error) {
	var resp InterviewReport
	err := c.post(ctx, c.http, "/interviews/"+sessionID+"/submit", SubmitSolutionRequest{Code: code}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Report fetches the final report for a completed session.
func (c *Client) Report(ctx context.Context, sessionID string) (*InterviewReport, error) {
	var resp InterviewReport
	if err := c.get(ctx, c.http, "/interviews/"+sessionID+"/report", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Problems lists the available problems.
func (c *Client) Problems(ctx context.Context) ([]ProblemSummary, error) {
	var resp []ProblemSummary
	if err := c.get(ctx, c.http, "/problems", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Chat sends a candidate message plus the latest code snapshot to the
// interviewer and returns the reply. Used by the local fallback mode.
func (c *Client) Chat(ctx context.Context, sessionID, message, code string) (*ChatResponse, error) {
	var resp ChatResponse
	err := c.post(ctx, c.http, "/interviews/"+sessionID+"/chat", ChatRequest{
		Message: message,
		Code:    code,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Token fetches a short-lived transport access credential. Bounded by the
// short timeout; timeout or non-2xx is a connection failure at this layer.
func (c *Client) Token(ctx context.Context, sessionID, participantName string) (*TokenResponse, error) {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("candidate_name", participantName)

	var resp TokenResponse
	if err := c.get(ctx, c.short, "/token?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TTS requests synthesized speech for the given text and returns raw audio
// bytes. Callers validate payload plausibility; this method only surfaces
// HTTP-level failures.
func (c *Client) TTS(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(TTSRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError("tts", resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	return audio, nil
}

// post issues a JSON POST and decodes the response into out.
func (c *Client) post(ctx context.Context, client *http.Client, route string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(client, route, req, out)
}

// get issues a GET and decodes the response into out.
func (c *Client) get(ctx context.Context, client *http.Client, route string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+route, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(client, route, req, out)
}

func (c *Client) do(client *http.Client, route string, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseError(route, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseError reads and parses an error response body.
func (c *Client) parseError(route string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Detail != "" {
			message = errResp.Detail
		} else if errResp.Error != "" {
			message = errResp.Error
		}
	}

	c.logger.Warn("backend error response",
		"route", route,
		"status", resp.StatusCode,
	)

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Route:      route,
	}
}
