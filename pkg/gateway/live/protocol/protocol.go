// Package protocol defines the coaching websocket wire format: the
// inbound pause notification and the outbound suggestion and error
// frames.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/echo-ai/coach-gateway/pkg/engine"
)

// Message type tags.
const (
	TypePauseDetected   = "pause_detected"
	TypeVoiceSuggestion = "voice_suggestion"
	TypeError           = "error"
)

// DecodeError is a protocol-level rejection of one inbound frame. It
// is reported to the client and the session continues.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ClientPause is the inbound unit of work: the client detected a pause
// and ships a snapshot of the recent conversation. A nil snapshot in
// the frame decodes to the zero Snapshot; the analyzer handles empty
// input.
type ClientPause struct {
	Type     string          `json:"type"`
	Snapshot engine.Snapshot `json:"conversation_snapshot"`
}

// DecodeClientMessage parses one inbound text frame. All failures are
// *DecodeError values suitable for an error reply.
func DecodeClientMessage(data []byte) (ClientPause, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ClientPause{}, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return ClientPause{}, badRequest("missing type", "type")
	}
	if typ != TypePauseDetected {
		return ClientPause{}, unsupported("unsupported message type", "type")
	}

	var msg ClientPause
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientPause{}, badRequest("invalid pause_detected frame", "")
	}
	if msg.Snapshot.ConfidenceScore != nil {
		c := *msg.Snapshot.ConfidenceScore
		if c < 0 || c > 1 {
			return ClientPause{}, badRequest("conversation_snapshot.confidenceScore must be in [0, 1]", "conversation_snapshot.confidenceScore")
		}
	}
	return msg, nil
}

// ServerSuggestion is the outbound success frame. The audio fields are
// only present for deployments with synthesis enabled.
type ServerSuggestion struct {
	Type           string `json:"type"`
	SuggestionText string `json:"suggestion_text"`
	Language       string `json:"language,omitempty"`
	AudioURL       string `json:"audio_url,omitempty"`
	AudioStream    string `json:"audio_stream,omitempty"`
}

// NewSuggestion builds a suggestion frame with the type tag set.
func NewSuggestion(text, language string) ServerSuggestion {
	return ServerSuggestion{
		Type:           TypeVoiceSuggestion,
		SuggestionText: text,
		Language:       language,
	}
}

// ServerError is the outbound error frame.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewError builds an error frame from a decode failure or an internal
// message.
func NewError(err error) ServerError {
	if de, ok := err.(*DecodeError); ok {
		return ServerError{Type: TypeError, Code: de.Code, Message: de.Message, Details: de.Param}
	}
	return ServerError{Type: TypeError, Code: "internal", Message: "Server error", Details: err.Error()}
}
