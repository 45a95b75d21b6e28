package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kazz187/deepagent/internal/model"
)

const summarizeThreshold = 8

const summaryInstruction = `Condense the following conversation history into a short third-person summary.
Keep concrete facts, decisions, and user preferences. Reply with the summary text only.`

type roleResolver interface {
	Resolve(role string) (model.Backend, error)
}

// Summarizer watches a user's ledger and condenses conversation history
// once enough unsummarized turns accumulate.
type Summarizer struct {
	ledger   *Ledger
	resolver roleResolver
	logger   *slog.Logger
}

func NewSummarizer(ledger *Ledger, resolver roleResolver, logger *slog.Logger) *Summarizer {
	return &Summarizer{ledger: ledger, resolver: resolver, logger: logger}
}

// MaybeSummarize condenses history when at least 8 conversation records
// exist past the last summary's watermark. The new summary's
// ConversationCount is the current total, so watermarks never decrease.
func (s *Summarizer) MaybeSummarize(ctx context.Context, userID string) error {
	records, err := s.ledger.All(ctx, userID)
	if err != nil {
		return err
	}

	var conversations []Record
	for _, rec := range records {
		if rec.Value.Type == TypeConversation {
			conversations = append(conversations, rec)
		}
	}
	watermark := 0
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Value.Type == TypeSummary {
			watermark = records[i].Value.ConversationCount
			break
		}
	}
	if len(conversations)-watermark < summarizeThreshold {
		return nil
	}
	if watermark > len(conversations) {
		watermark = len(conversations)
	}

	chunk := conversations[watermark:]
	var b strings.Builder
	for _, rec := range chunk {
		fmt.Fprintf(&b, "user: %s\n", rec.Value.UserMessage)
		fmt.Fprintf(&b, "assistant: %s\n", rec.Value.AgentReply)
	}

	backend, err := s.resolver.Resolve("summary")
	if err != nil {
		return fmt.Errorf("resolve summary backend: %w", err)
	}
	text, err := model.GenerateWithRetry(ctx, backend, []model.Message{
		{Role: "system", Content: summaryInstruction},
		{Role: "user", Content: b.String()},
	})
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.logger.Warn("summary generation returned empty text, skipping", "user_id", userID)
		return nil
	}

	_, err = s.ledger.Append(ctx, userID, Value{
		Type:              TypeSummary,
		Summary:           text,
		ConversationCount: len(conversations),
	})
	if err != nil {
		return err
	}
	s.logger.Info("stored conversation summary",
		"user_id", userID, "conversation_count", len(conversations))
	return nil
}
