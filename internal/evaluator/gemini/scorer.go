package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"matchroom/backend/internal/evaluator"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/models"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

const (
	// maxContextMessages and maxMessageChars bound the excerpt of a party's
	// history included in the context prompt, keeping token usage flat no
	// matter how large the upload was.
	maxContextMessages = 50
	maxMessageChars    = 500

	defaultMaxLogLength = 200
)

// Scorer computes mutual compatibility scores with two model calls per
// direction: answer the asking party's question from the other party's
// conversation history, then rate the semantic similarity of that answer
// against the asking party's expected answer.
type Scorer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewScorer(generator contentGenerator, log *zap.Logger) *Scorer {
	return &Scorer{
		generator: generator,
		logger:    log,
		maxLogLen: defaultMaxLogLength,
	}
}

// Evaluate scores both directions. Party payloads stay inside this call;
// only the scores leave.
func (s *Scorer) Evaluate(ctx context.Context, partyA, partyB *models.PartyPayload) (*models.EvaluationResult, error) {
	if partyA == nil || partyB == nil {
		return nil, fmt.Errorf("both party payloads are required")
	}

	aToB, err := s.scoreDirection(ctx, "a_to_b", partyB.Conversations, partyA.Prompt, partyA.Expected)
	if err != nil {
		return nil, fmt.Errorf("score a_to_b: %w", err)
	}

	bToA, err := s.scoreDirection(ctx, "b_to_a", partyA.Conversations, partyB.Prompt, partyB.Expected)
	if err != nil {
		return nil, fmt.Errorf("score b_to_a: %w", err)
	}

	return &models.EvaluationResult{AToBScore: aToB, BToAScore: bToA}, nil
}

// scoreDirection answers prompt from the counterpart's conversations, then
// rates the answer against expected on a 0-100 scale.
func (s *Scorer) scoreDirection(ctx context.Context, direction string, conversations []json.RawMessage, prompt, expected string) (int, error) {
	messages := evaluator.FlattenConversations(conversations)

	answerPrompt := buildAnswerPrompt(messages, prompt)
	s.logger.Debug("gemini answer request",
		zap.String("direction", direction),
		zap.Int("context_messages", len(messages)),
		zap.Int("prompt_length", utf8.RuneCountInString(answerPrompt)),
	)

	answer, err := s.generator.GenerateContent(ctx, answerPrompt)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("gemini answer response",
		zap.String("direction", direction),
		zap.String("answer_preview", logger.TruncateForLog(answer, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, buildSimilarityPrompt(answer, expected))
	if err != nil {
		return 0, err
	}

	score, err := parseScore(raw)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("gemini similarity score",
		zap.String("direction", direction),
		zap.Int("score", score),
	)
	return score, nil
}

func buildAnswerPrompt(messages []evaluator.Message, prompt string) string {
	var b strings.Builder
	b.WriteString("You are analyzing a person's chat conversation history to answer questions about their personality, values, and preferences.\n\n")
	b.WriteString("Below is their conversation history:\n\n")

	count := len(messages)
	if count > maxContextMessages {
		messages = messages[count-maxContextMessages:]
	}
	for _, msg := range messages {
		content := msg.Content
		if utf8.RuneCountInString(content) > maxMessageChars {
			content = string([]rune(content)[:maxMessageChars])
		}
		fmt.Fprintf(&b, "[%s]: %s\n", strings.ToUpper(msg.Role), content)
	}

	b.WriteString("\nBased ONLY on this conversation history, answer the following question concisely and directly.\n")
	b.WriteString("If the conversation history doesn't provide enough information, say 'Unable to determine from available data'.\n\n")
	b.WriteString("Question: ")
	b.WriteString(prompt)
	return b.String()
}

func buildSimilarityPrompt(answer, expected string) string {
	var b strings.Builder
	b.WriteString("Compare the following two answers and rate their semantic similarity on a scale of 0-100.\n\n")
	fmt.Fprintf(&b, "Answer 1 (Actual): %s\n", answer)
	fmt.Fprintf(&b, "Answer 2 (Expected): %s\n\n", expected)
	b.WriteString("Provide ONLY a number from 0-100 where:\n")
	b.WriteString("- 0 = Completely opposite or unrelated\n")
	b.WriteString("- 50 = Somewhat related but different\n")
	b.WriteString("- 100 = Essentially the same meaning\n")
	return b.String()
}

// parseScore extracts the first integer from the model response and clamps
// it to [0,100].
func parseScore(raw string) (int, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) })
	if len(fields) == 0 {
		return 0, fmt.Errorf("no score in model response")
	}

	score, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", fields[0], err)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}
