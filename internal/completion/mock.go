package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ent0n29/mockinterview/internal/prompt"
)

var mockQuestions = []string{
	"Walk me through a recent project you are proud of. What was your role and what trade-offs did you make?",
	"How would you design a service that must stay responsive when one of its dependencies becomes slow?",
	"You said that worked well. What would break first if traffic grew tenfold, and how would you notice?",
	"How do you decide between consistency and availability when designing data storage for a feature?",
	"Describe how you would debug a memory leak that only appears in production.",
}

// MockBackend returns deterministic replies without any network access.
type MockBackend struct{}

func NewMockBackend() *MockBackend { return &MockBackend{} }

func (b *MockBackend) Name() string { return "mock" }

func (b *MockBackend) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if req.JSON {
		return mockReport(req.Messages), nil
	}

	asked := 0
	for _, m := range req.Messages {
		if m.Role == prompt.RoleAssistant {
			asked++
		}
	}
	return mockQuestions[asked%len(mockQuestions)], nil
}

func mockReport(messages []prompt.Message) string {
	questions := 0
	for _, m := range messages {
		questions += strings.Count(m.Content, `"speaker": "interviewer"`)
	}
	answers := make([]map[string]string, 0, questions)
	for i := 0; i < questions; i++ {
		answers = append(answers, map[string]string{
			"question":        fmt.Sprintf("Question %d", i+1),
			"suggestedAnswer": "State the constraints first, then walk through the design and its failure modes.",
		})
	}
	report := map[string]any{
		"technicalDepth":        6,
		"clarity":               7,
		"confidence":            6,
		"strengths":             []string{"Structured answers"},
		"weaknesses":            []string{"Limited discussion of failure modes"},
		"suggestedImprovements": []string{"Quantify trade-offs with concrete numbers"},
		"modelAnswers":          answers,
	}
	out, _ := json.Marshal(report)
	return string(out)
}
