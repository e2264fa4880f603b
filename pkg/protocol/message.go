// Package protocol defines the structured message types exchanged over the
// interview event channel. The same envelope travels over the transport data
// channel and the local UI websocket, so both ends parse one format.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of an event-channel message.
type MessageType string

const (
	// Client → backend messages
	TypeCodeSnapshot MessageType = "code_snapshot" // Debounced editor state
	TypeMessage      MessageType = "message"       // Candidate chat/utterance
	TypeRunCode      MessageType = "run_code"      // Execute against test cases
	TypeSubmit       MessageType = "submit"        // Final submission
	TypeMediaState   MessageType = "media_state"   // Local mic/camera state

	// Backend → client messages
	TypeTranscript        MessageType = "transcript"         // Transcript line
	TypeHint              MessageType = "hint"               // Explicit hint from the interviewer
	TypeRunResult         MessageType = "run_result"         // Execution results
	TypeInterviewComplete MessageType = "interview_complete" // Session finished
	TypeError             MessageType = "error"              // Recoverable error notice

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all event-channel messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Backend Message Types
// =============================================================================

// CodeSnapshotData carries a debounced editor snapshot.
type CodeSnapshotData struct {
	Code      string `json:"code"`
	Cursor    int    `json:"cursor,omitempty"`
	Timestamp int64  `json:"ts,omitempty"`
}

// MessageData carries a candidate chat message or finalized utterance.
type MessageData struct {
	Role string `json:"role,omitempty"` // "candidate" or "ai"
	Text string `json:"text"`
}

// RunCodeData requests execution of the given code.
type RunCodeData struct {
	Code string `json:"code"`
}

// SubmitData carries the final solution.
type SubmitData struct {
	Code string `json:"code"`
}

// MediaStateData tells the far end the local microphone and camera
// state after a toggle.
type MediaStateData struct {
	MicrophoneOn bool `json:"microphone_on"`
	CameraOn     bool `json:"camera_on"`
}

// =============================================================================
// Backend → Client Message Types
// =============================================================================

// TranscriptData is a single transcript line.
type TranscriptData struct {
	Role string `json:"role"` // "ai" or "candidate"
	Text string `json:"text"`
}

// HintData carries an explicit hint from the interviewer.
type HintData struct {
	Text string `json:"text"`
}

// RunResultData carries code execution results.
type RunResultData struct {
	Passed  int             `json:"passed"`
	Failed  int             `json:"failed"`
	Total   int             `json:"total"`
	Details json.RawMessage `json:"details,omitempty"`
	Stderr  string          `json:"stderr,omitempty"`
}

// InterviewCompleteData signals session completion.
type InterviewCompleteData struct {
	OverallScore   float64 `json:"overall_score,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`
	RedirectURL    string  `json:"redirect_url,omitempty"`
}

// ErrorData carries a recoverable error notice.
type ErrorData struct {
	Error string `json:"error"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information.
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
