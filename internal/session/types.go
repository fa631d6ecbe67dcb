package session

import (
	"errors"
	"math"
	"time"
)

// State is the lifecycle position of an interview session.
type State string

const (
	StateCreated    State = "created"
	StateInProgress State = "in_progress"
	StateEnded      State = "ended"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// CanTransition reports whether a session may move from s to next.
// InProgress -> InProgress is the turn-append case.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateCreated:
		return next == StateInProgress
	case StateInProgress:
		return next == StateInProgress || next == StateEnded
	default:
		return false
	}
}

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
)

func (s Speaker) Valid() bool {
	return s == SpeakerInterviewer || s == SpeakerCandidate
}

// Session is one end-to-end interview for a role/level pair.
// EndedAt set implies Report set; no turns are appended after that.
type Session struct {
	ID        string     `json:"sessionId"`
	Role      string     `json:"role"`
	Level     string     `json:"level"`
	State     State      `json:"state"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Report    *Report    `json:"report,omitempty"`
}

// Turn is one message in a session's append-only history.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ModelAnswer pairs an asked question with a suggested strong answer.
type ModelAnswer struct {
	Question        string `json:"question"`
	SuggestedAnswer string `json:"suggestedAnswer"`
}

// Report is the normalized evaluation attached when a session ends.
type Report struct {
	TechnicalDepth        int           `json:"technicalDepth"`
	Clarity               int           `json:"clarity"`
	Confidence            int           `json:"confidence"`
	Strengths             []string      `json:"strengths"`
	Weaknesses            []string      `json:"weaknesses"`
	SuggestedImprovements []string      `json:"suggestedImprovements"`
	ModelAnswers          []ModelAnswer `json:"modelAnswers"`
	OverallFeedback       string        `json:"overallFeedback,omitempty"`
}

// OverallScore is the mean of the three scores rounded to one decimal.
func (r Report) OverallScore() float64 {
	sum := float64(r.TechnicalDepth + r.Clarity + r.Confidence)
	return math.Round(sum/3*10) / 10
}

// Clone returns a deep copy so callers cannot mutate stored slices.
func (r Report) Clone() Report {
	c := r
	c.Strengths = cloneStrings(r.Strengths)
	c.Weaknesses = cloneStrings(r.Weaknesses)
	c.SuggestedImprovements = cloneStrings(r.SuggestedImprovements)
	c.ModelAnswers = append([]ModelAnswer{}, r.ModelAnswers...)
	return c
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	c := s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Report != nil {
		r := s.Report.Clone()
		c.Report = &r
	}
	return c
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
