package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/mockinterview/internal/session"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAnswer        MessageType = "client_answer"
	TypeClientControl       MessageType = "client_control"
	TypeInterviewerQuestion MessageType = "interviewer_question"
	TypeEvaluationReport    MessageType = "evaluation_report"
	TypeSystemEvent         MessageType = "system_event"
	TypeErrorEvent          MessageType = "error_event"
)

// ActionEnd is the only client_control action.
const ActionEnd = "end"

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAnswer struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type InterviewerQuestion struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type EvaluationReport struct {
	Type         MessageType    `json:"type"`
	SessionID    string         `json:"session_id"`
	Report       session.Report `json:"report"`
	OverallScore float64        `json:"overall_score"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes one client frame. The session id is optional in
// the payload; the connection's session wins when they disagree.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAnswer:
		var msg ClientAnswer
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid client_answer")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
		if msg.Action != ActionEnd {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
