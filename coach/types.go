package coach

import (
	"bytes"
	"encoding/json"
)

// Stream message types sent by the server.
const (
	TypeContent                = "content"
	TypeDone                   = "done"
	TypeError                  = "error"
	TypeWorkoutHistoryApproved = "workout_history_approved"
)

const requestMessage = "message"

// StreamMessage is one decoded frame received from the stream transport.
type StreamMessage struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Request is the envelope sent from client to server.
type Request struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ChatPayload asks the coach to answer a user message.
type ChatPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
}

// ParseStreamMessage decodes a raw JSON frame.
func ParseStreamMessage(raw []byte) (StreamMessage, error) {
	var msg StreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return StreamMessage{}, WrapError(ErrorSerialization, "failed to unmarshal stream message", err)
	}
	return msg, nil
}

// UnmarshalData decodes RawMessage into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}

// stringData returns data as a Go string when it holds a JSON string.
func stringData(data json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}
