package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewCodeSnapshotMessage creates a code snapshot message.
func NewCodeSnapshotMessage(code string, cursor int, ts int64) (*Message, error) {
	return NewMessage(TypeCodeSnapshot, CodeSnapshotData{
		Code:      code,
		Cursor:    cursor,
		Timestamp: ts,
	})
}

// NewCandidateMessage creates a candidate chat/utterance message.
func NewCandidateMessage(text string) (*Message, error) {
	return NewMessage(TypeMessage, MessageData{
		Role: "candidate",
		Text: text,
	})
}

// NewTranscriptMessage creates a transcript line message.
func NewTranscriptMessage(role, text string) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{
		Role: role,
		Text: text,
	})
}

// NewHintMessage creates a hint message.
func NewHintMessage(text string) (*Message, error) {
	return NewMessage(TypeHint, HintData{Text: text})
}

// NewRunCodeMessage creates a run request message.
func NewRunCodeMessage(code string) (*Message, error) {
	return NewMessage(TypeRunCode, RunCodeData{Code: code})
}

// NewSubmitMessage creates a final submission message.
func NewSubmitMessage(code string) (*Message, error) {
	return NewMessage(TypeSubmit, SubmitData{Code: code})
}

// NewMediaStateMessage creates a media state notification.
func NewMediaStateMessage(micOn, camOn bool) (*Message, error) {
	return NewMessage(TypeMediaState, MediaStateData{
		MicrophoneOn: micOn,
		CameraOn:     camOn,
	})
}

// NewErrorMessage creates a recoverable error notice.
func NewErrorMessage(text string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Error: text})
}

// NewPingMessage creates a ping message.
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message.
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetCodeSnapshotData extracts code snapshot data from a message.
func (m *Message) GetCodeSnapshotData() (*CodeSnapshotData, error) {
	var data CodeSnapshotData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMessageData extracts chat message data from a message.
func (m *Message) GetMessageData() (*MessageData, error) {
	var data MessageData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTranscriptData extracts transcript data from a message.
func (m *Message) GetTranscriptData() (*TranscriptData, error) {
	var data TranscriptData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetHintData extracts hint data from a message.
func (m *Message) GetHintData() (*HintData, error) {
	var data HintData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRunResultData extracts run result data from a message.
func (m *Message) GetRunResultData() (*RunResultData, error) {
	var data RunResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetInterviewCompleteData extracts completion data from a message.
func (m *Message) GetInterviewCompleteData() (*InterviewCompleteData, error) {
	var data InterviewCompleteData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMediaStateData extracts media state data from a message.
func (m *Message) GetMediaStateData() (*MediaStateData, error) {
	var data MediaStateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message.
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message.
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message.
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// =============================================================================
// Degradation
// =============================================================================

// TranscriptLine extracts a best-effort transcript line from a raw payload.
// A well-formed transcript or message envelope yields its role and text; an
// unknown type or unparseable payload degrades to a plain-text line under
// fallbackRole rather than being dropped.
func TranscriptLine(payload []byte, fallbackRole string) (role, text string, structured bool) {
	msg, err := ParseMessage(payload)
	if err != nil {
		return fallbackRole, string(payload), false
	}

	switch msg.Type {
	case TypeTranscript:
		if data, err := msg.GetTranscriptData(); err == nil && data.Text != "" {
			return data.Role, data.Text, true
		}
	case TypeMessage:
		if data, err := msg.GetMessageData(); err == nil && data.Text != "" {
			role := data.Role
			if role == "" {
				role = "candidate"
			}
			return role, data.Text, true
		}
	case TypeHint:
		if data, err := msg.GetHintData(); err == nil && data.Text != "" {
			return "ai", data.Text, true
		}
	}

	return fallbackRole, string(payload), false
}
