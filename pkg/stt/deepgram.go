package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// DeepgramConfig controls the Deepgram websocket connection.
type DeepgramConfig struct {
	APIKey      string
	BaseURL     string // defaults to https://api.deepgram.com/v1
	Model       string // defaults to nova-2
	Language    string
	SampleRate  int // defaults to 16000
	Channels    int // defaults to 1
	SmartFormat bool
}

// Deepgram streams microphone audio to Deepgram's listen endpoint.
type Deepgram struct {
	cfg DeepgramConfig
}

// NewDeepgram creates a Deepgram recognizer.
func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Deepgram{cfg: cfg}
}

// Start dials the websocket and begins streaming.
func (d *Deepgram) Start(ctx context.Context) (Session, error) {
	if strings.TrimSpace(d.cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}

	wsURL, err := d.listenURL()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("stt: dial deepgram: %w", err)
	}

	s := &deepgramSession{
		conn:   conn,
		events: make(chan Event, 64),
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// listenURL builds the websocket URL with query parameters.
func (d *Deepgram) listenURL() (string, error) {
	base := strings.TrimSpace(d.cfg.BaseURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	u, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("stt: invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("model", d.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", d.cfg.SampleRate))
	q.Set("channels", fmt.Sprintf("%d", d.cfg.Channels))
	q.Set("interim_results", "true")
	q.Set("smart_format", fmt.Sprintf("%t", d.cfg.SmartFormat))
	if d.cfg.Language != "" {
		q.Set("language", d.cfg.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type deepgramSession struct {
	conn *websocket.Conn

	events chan Event
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *deepgramSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return ErrSessionClosed
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	}
}

func (s *deepgramSession) Events() <-chan Event {
	return s.events
}

func (s *deepgramSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeSendOnce.Do(func() {
			s.sendMu.Lock()
			s.sendClosed = true
			close(s.audio)
			s.sendMu.Unlock()
		})
		_ = s.conn.Close()
	})
	<-s.done
	return s.Err()
}

func (s *deepgramSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *deepgramSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *deepgramSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("stt: send audio: %w", err))
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("stt: close stream: %w", err))
	}
}

func (s *deepgramSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("stt: read event: %w", err))
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			continue
		}

		if strings.EqualFold(resp.Type, "Error") {
			msg := strings.TrimSpace(resp.Message)
			if msg == "" {
				msg = "deepgram returned an unknown error"
			}
			s.setErr(fmt.Errorf("stt: provider error: %s", msg))
			return
		}

		text := resp.transcript()
		if text == "" {
			continue
		}

		ev := Event{Text: text, IsSpeechFinal: resp.SpeechFinal}
		if resp.IsFinal || resp.SpeechFinal {
			ev.Kind = KindFinal
		} else {
			ev.Kind = KindPartial
		}
		s.emit(ev)
	}
}

func (s *deepgramSession) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	default:
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (r deepgramResponse) transcript() string {
	if len(r.Channel.Alternatives) > 0 {
		return strings.TrimSpace(r.Channel.Alternatives[0].Transcript)
	}
	return ""
}

// Verify Deepgram implements Recognizer at compile time.
var _ Recognizer = (*Deepgram)(nil)
var _ Session = (*deepgramSession)(nil)
