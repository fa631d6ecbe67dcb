package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/mockinterview/internal/session"
)

func sampleHistory() []session.Turn {
	return []session.Turn{
		{Speaker: session.SpeakerInterviewer, Content: "How would you design a rate limiter?"},
		{Speaker: session.SpeakerCandidate, Content: "Token bucket per client key."},
		{Speaker: session.SpeakerInterviewer, Content: "Where would the buckets live across replicas?"},
	}
}

func TestBuildInterviewerPromptEncodesRules(t *testing.T) {
	p := BuildInterviewerPrompt("  Backend Engineer ", "Mid")

	assert.Contains(t, p, "Role: Backend Engineer\n")
	assert.Contains(t, p, "Level: Mid")
	for _, rule := range []string{
		"exactly one question per turn",
		"most recent answer",
		"clarifying follow-up",
		"increase the difficulty",
		"Never give feedback",
		"neutral, professional tone",
	} {
		assert.Contains(t, p, rule)
	}
	assert.Equal(t, p, BuildInterviewerPrompt("Backend Engineer", "Mid"))
}

func TestBuildMessageListOrdering(t *testing.T) {
	msgs := BuildMessageList("instr", sampleHistory(), "Redis with a Lua script.")

	require.Len(t, msgs, 5)
	assert.Equal(t, Message{Role: RoleSystem, Content: "instr"}, msgs[0])
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, RoleUser, msgs[2].Role)
	assert.Equal(t, RoleAssistant, msgs[3].Role)
	assert.Equal(t, Message{Role: RoleUser, Content: "Redis with a Lua script."}, msgs[4])
}

func TestBuildMessageListWithoutPendingText(t *testing.T) {
	msgs := BuildMessageList("instr", sampleHistory(), "")
	require.Len(t, msgs, 4)
	assert.Equal(t, RoleAssistant, msgs[3].Role)
}

func TestMessageListRoundTrip(t *testing.T) {
	history := sampleHistory()
	instr, turns, err := ParseMessageList(BuildMessageList("instr", history, ""))
	require.NoError(t, err)
	assert.Equal(t, "instr", instr)
	assert.Equal(t, history, turns)

	_, turns, err = ParseMessageList(BuildMessageList("instr", history, "pending"))
	require.NoError(t, err)
	require.Len(t, turns, len(history)+1)
	assert.Equal(t, session.Turn{Speaker: session.SpeakerCandidate, Content: "pending"}, turns[len(turns)-1])
}

func TestParseMessageListRejectsBadShapes(t *testing.T) {
	_, _, err := ParseMessageList(nil)
	assert.Error(t, err)

	_, _, err = ParseMessageList([]Message{{Role: RoleUser, Content: "x"}})
	assert.Error(t, err)

	_, _, err = ParseMessageList([]Message{{Role: RoleSystem}, {Role: "tool", Content: "x"}})
	assert.Error(t, err)
}

func TestBuildEvaluationPromptEmbedsTranscript(t *testing.T) {
	history := append(sampleHistory(), session.Turn{Speaker: session.SpeakerCandidate, Content: `quotes " and {braces}`})
	p := BuildEvaluationPrompt(history)

	assert.Contains(t, p, `"technicalDepth": <integer 1-10>`)
	assert.Contains(t, p, "no code fences")

	const marker = "Transcript (JSON, in order):\n"
	idx := strings.Index(p, marker)
	require.GreaterOrEqual(t, idx, 0)
	var entries []transcriptEntry
	require.NoError(t, json.Unmarshal([]byte(p[idx+len(marker):]), &entries))
	require.Len(t, entries, len(history))
	assert.Equal(t, `quotes " and {braces}`, entries[3].Content)
	assert.Equal(t, session.SpeakerInterviewer, entries[0].Speaker)

	assert.Equal(t, p, BuildEvaluationPrompt(history))
}
