// Package prompt renders interview state into the message lists sent to the
// completion backend. Everything here is pure and deterministic.
package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ent0n29/mockinterview/internal/session"
)

// Role is the role tag understood by chat-completion backends.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// StartCue is the synthetic candidate message that asks for the opening question.
const StartCue = "Please start the interview."

var (
	//go:embed interviewer.md
	interviewerTemplate string
	//go:embed evaluation.md
	evaluationTemplate string
)

// BuildInterviewerPrompt returns the system instruction for the interviewer.
func BuildInterviewerPrompt(role, level string) string {
	out := strings.ReplaceAll(interviewerTemplate, "{{ROLE}}", strings.TrimSpace(role))
	out = strings.ReplaceAll(out, "{{LEVEL}}", strings.TrimSpace(level))
	return strings.TrimSpace(out)
}

// BuildMessageList renders instruction, then every turn in order, then the
// unsent candidate text when non-empty.
func BuildMessageList(instruction string, history []session.Turn, newCandidateText string) []Message {
	out := make([]Message, 0, len(history)+2)
	out = append(out, Message{Role: RoleSystem, Content: instruction})
	for _, turn := range history {
		out = append(out, Message{Role: roleFor(turn.Speaker), Content: turn.Content})
	}
	if newCandidateText != "" {
		out = append(out, Message{Role: RoleUser, Content: newCandidateText})
	}
	return out
}

// ParseMessageList is the inverse of BuildMessageList. Timestamps are not part
// of the wire shape and come back zero.
func ParseMessageList(messages []Message) (string, []session.Turn, error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("empty message list")
	}
	if messages[0].Role != RoleSystem {
		return "", nil, fmt.Errorf("first message role = %q, want %q", messages[0].Role, RoleSystem)
	}
	turns := make([]session.Turn, 0, len(messages)-1)
	for i, m := range messages[1:] {
		var speaker session.Speaker
		switch m.Role {
		case RoleAssistant:
			speaker = session.SpeakerInterviewer
		case RoleUser:
			speaker = session.SpeakerCandidate
		default:
			return "", nil, fmt.Errorf("message %d: unexpected role %q", i+1, m.Role)
		}
		turns = append(turns, session.Turn{Speaker: speaker, Content: m.Content})
	}
	return messages[0].Content, turns, nil
}

type transcriptEntry struct {
	Speaker session.Speaker `json:"speaker"`
	Content string          `json:"content"`
}

// BuildEvaluationPrompt embeds the full transcript and asks for a single JSON
// object shaped like session.Report.
func BuildEvaluationPrompt(history []session.Turn) string {
	entries := make([]transcriptEntry, 0, len(history))
	for _, turn := range history {
		entries = append(entries, transcriptEntry{Speaker: turn.Speaker, Content: turn.Content})
	}
	// Marshalling a slice of string-only structs cannot fail.
	transcript, _ := json.MarshalIndent(entries, "", "  ")
	return strings.TrimSpace(strings.ReplaceAll(evaluationTemplate, "{{TRANSCRIPT}}", string(transcript)))
}

// EvaluationMessages wraps the evaluation prompt as a one-message request.
func EvaluationMessages(history []session.Turn) []Message {
	return []Message{{Role: RoleSystem, Content: BuildEvaluationPrompt(history)}}
}

func roleFor(s session.Speaker) Role {
	if s == session.SpeakerInterviewer {
		return RoleAssistant
	}
	return RoleUser
}
