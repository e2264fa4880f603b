package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
)

// signalMessage is the JSON envelope exchanged with the signaling server.
type signalMessage struct {
	Type string `json:"type"`

	SDP *struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	} `json:"sdp,omitempty"`

	ICE *struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	} `json:"ice,omitempty"`

	Error string `json:"error,omitempty"`
}

// Signaler exchanges SDP and ICE with the session's far end.
// Abstracted so the session state machine is testable without a live
// websocket.
type Signaler interface {
	SendOffer(sdp webrtc.SessionDescription) error
	SendCandidate(candidate *webrtc.ICECandidate) error

	// Messages delivers inbound signaling until the connection closes.
	Messages() <-chan signalMessage

	Close() error
}

// wsSignaler talks JSON over a gorilla websocket.
type wsSignaler struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	msgs    chan signalMessage

	closeOnce sync.Once
}

// dialSignaler connects to the signaling endpoint. The session token
// rides in the Authorization header.
func dialSignaler(ctx context.Context, url, token string) (*wsSignaler, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	headers := http.Header{}
	if token != "" {
		headers.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("transport: signaling dial: %w", err)
	}

	s := &wsSignaler{
		conn: conn,
		msgs: make(chan signalMessage, 16),
	}
	go s.readLoop()
	return s, nil
}

func (s *wsSignaler) readLoop() {
	defer close(s.msgs)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg signalMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		s.msgs <- msg
	}
}

func (s *wsSignaler) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *wsSignaler) SendOffer(sdp webrtc.SessionDescription) error {
	return s.writeJSON(map[string]any{
		"type": "offer",
		"sdp": map[string]string{
			"type": sdp.Type.String(),
			"sdp":  sdp.SDP,
		},
	})
}

func (s *wsSignaler) SendCandidate(candidate *webrtc.ICECandidate) error {
	init := candidate.ToJSON()
	return s.writeJSON(map[string]any{
		"type": "ice",
		"ice": map[string]any{
			"candidate":     init.Candidate,
			"sdpMid":        init.SDPMid,
			"sdpMLineIndex": init.SDPMLineIndex,
		},
	})
}

func (s *wsSignaler) Messages() <-chan signalMessage {
	return s.msgs
}

func (s *wsSignaler) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

var _ Signaler = (*wsSignaler)(nil)
