package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/llm"
)

const rewriteSystemPrompt = `Given the conversation so far and a follow-up question, rewrite the follow-up into a standalone question that can be understood without the conversation. Resolve pronouns and implicit references against the history. Do not answer the question. Return only the rewritten question.`

// Memory rewrites follow-up questions into standalone queries using
// the conversation history.
type Memory struct {
	client llm.Client
	logger *zap.Logger
}

// NewMemory creates a Memory backed by the given chat client.
func NewMemory(client llm.Client, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{client: client, logger: logger}
}

// Rewrite returns the standalone form of question given the session's
// history. The first turn of a session is returned unchanged without a
// model call. If the model returns an empty rewrite, the original
// question is used.
func (m *Memory) Rewrite(ctx context.Context, sess *Session, question string) (string, error) {
	turns := sess.Turns()
	if len(turns) == 0 {
		return question, nil
	}

	var history strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&history, "User: %s\nAssistant: %s\n", t.Question, t.Answer)
	}
	user := fmt.Sprintf("Conversation:\n%s\nFollow-up question: %s", history.String(), question)

	rewritten, err := m.client.Complete(ctx, rewriteSystemPrompt, user)
	if err != nil {
		return "", err
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question, nil
	}

	m.logger.Debug("question rewritten",
		zap.String("session_id", sess.ID()),
		zap.String("original", question),
		zap.String("rewritten", rewritten),
	)
	return rewritten, nil
}
