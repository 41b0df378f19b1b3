package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"matchroom/backend/internal/models"
)

// scriptedGenerator returns queued responses and records the prompts it saw.
type scriptedGenerator struct {
	responses []string
	err       error
	prompts   []string
}

func (s *scriptedGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func payloadWith(content, prompt, expected string) *models.PartyPayload {
	return &models.PartyPayload{
		Conversations: []json.RawMessage{
			json.RawMessage(`{"role":"user","content":"` + content + `"}`),
		},
		Prompt:   prompt,
		Expected: expected,
	}
}

func TestScorerEvaluate(t *testing.T) {
	stub := &scriptedGenerator{responses: []string{
		"They clearly love the outdoors",
		"85",
		"They prefer quiet evenings",
		"Similarity: 70.",
	}}
	scorer := NewScorer(stub, zap.NewNop())

	partyA := payloadWith("booked another climbing trip", "does my match like the outdoors?", "yes, very much")
	partyB := payloadWith("reading by the fire again", "is my match a homebody?", "somewhat")

	result, err := scorer.Evaluate(context.Background(), partyA, partyB)
	require.NoError(t, err)
	assert.Equal(t, 85, result.AToBScore)
	assert.Equal(t, 70, result.BToAScore)

	require.Len(t, stub.prompts, 4)

	// a_to_b answers A's question from B's conversations.
	assert.Contains(t, stub.prompts[0], "[USER]: reading by the fire again")
	assert.Contains(t, stub.prompts[0], "does my match like the outdoors?")
	assert.NotContains(t, stub.prompts[0], "climbing trip")

	// The similarity call compares the model answer with A's expectation.
	assert.Contains(t, stub.prompts[1], "They clearly love the outdoors")
	assert.Contains(t, stub.prompts[1], "yes, very much")

	// b_to_a answers B's question from A's conversations.
	assert.Contains(t, stub.prompts[2], "[USER]: booked another climbing trip")
	assert.Contains(t, stub.prompts[2], "is my match a homebody?")
}

func TestScorerEvaluate_GeneratorError(t *testing.T) {
	stub := &scriptedGenerator{err: errors.New("quota exceeded")}
	scorer := NewScorer(stub, zap.NewNop())

	_, err := scorer.Evaluate(context.Background(), payloadWith("a", "q", "e"), payloadWith("b", "q", "e"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score a_to_b")
}

func TestScorerEvaluate_NilPayload(t *testing.T) {
	scorer := NewScorer(&scriptedGenerator{}, zap.NewNop())
	_, err := scorer.Evaluate(context.Background(), nil, payloadWith("b", "q", "e"))
	assert.Error(t, err)
}

func TestScorerEvaluate_UnparseableScore(t *testing.T) {
	stub := &scriptedGenerator{responses: []string{
		"an answer",
		"I cannot rate this",
	}}
	scorer := NewScorer(stub, zap.NewNop())

	_, err := scorer.Evaluate(context.Background(), payloadWith("a", "q", "e"), payloadWith("b", "q", "e"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no score")
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "85", want: 85},
		{raw: "Score: 90.", want: 90},
		{raw: "I would rate this 42 out of 100", want: 42},
		{raw: "0", want: 0},
		{raw: "150", want: 100},
		{raw: "no digits here", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseScore(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "raw=%q", tt.raw)
			continue
		}
		require.NoError(t, err, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
	}
}

func TestBuildAnswerPrompt_BoundsContext(t *testing.T) {
	long := strings.Repeat("x", 2000)
	items := []json.RawMessage{
		json.RawMessage(`{"role":"user","content":"` + long + `"}`),
	}
	payload := &models.PartyPayload{Conversations: items, Prompt: "q", Expected: "e"}

	stub := &scriptedGenerator{responses: []string{"answer", "50", "answer", "50"}}
	scorer := NewScorer(stub, zap.NewNop())

	_, err := scorer.Evaluate(context.Background(), payload, payload)
	require.NoError(t, err)
	require.NotEmpty(t, stub.prompts)
	assert.Less(t, len(stub.prompts[0]), 1500, "context messages must be truncated")
}
