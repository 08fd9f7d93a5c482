// Package persona lets a user be played by a language model. Generation is
// optional and may fail at any time: a Responder always returns some text,
// falling back to canned replies instead of surfacing errors to chat.
package persona

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"whatschat/models"
)

const (
	// HistoryLimit is how many recent messages are sent along as context.
	HistoryLimit = 10

	FallbackReply = "Sorry, I can't connect right now (Network Error)."
	EmptyReply    = "Hmm, I'm not sure what to say."
)

// Turn is one history entry as the model sees it.
type Turn struct {
	FromModel bool
	Text      string
}

// Generator produces the persona's next reply.
type Generator interface {
	Generate(ctx context.Context, history []Turn, systemInstruction, userMessage string) (string, error)
}

type Responder struct {
	gen       Generator
	personaID string
	logger    *zap.Logger
}

// NewResponder wraps gen for the persona user personaID. gen may be nil, in
// which case every reply is FallbackReply.
func NewResponder(gen Generator, personaID string, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{gen: gen, personaID: personaID, logger: logger}
}

// Reply generates the persona's answer to userMessage given the preceding
// conversation. Only the last HistoryLimit messages are used.
func (r *Responder) Reply(ctx context.Context, history []models.Message, systemInstruction, userMessage string) string {
	if r.gen == nil {
		return FallbackReply
	}

	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	turns := make([]Turn, len(history))
	for i, m := range history {
		turns[i] = Turn{FromModel: m.SenderID == r.personaID, Text: m.Text}
	}

	text, err := r.gen.Generate(ctx, turns, systemInstruction, userMessage)
	if err != nil {
		r.logger.Warn("persona generation failed", zap.String("persona", r.personaID), zap.Error(err))
		return FallbackReply
	}
	if strings.TrimSpace(text) == "" {
		return EmptyReply
	}
	return text
}
