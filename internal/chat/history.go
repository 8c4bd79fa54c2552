package chat

import (
	"context"
	"fmt"

	"github.com/smartchat-ai/smartchat/internal/api"
	"github.com/smartchat-ai/smartchat/internal/transcript"
)

// HistoryBackend is the API surface needed to load stored conversations.
type HistoryBackend interface {
	History(ctx context.Context) ([]api.HistoryEntry, error)
}

var _ HistoryBackend = (*api.Client)(nil)

// LoadHistory fetches the stored conversation and hydrates the transcript
// with it, replacing any local content.
func LoadHistory(ctx context.Context, backend HistoryBackend, store *transcript.Store) error {
	entries, err := backend.History(ctx)
	if err != nil {
		return fmt.Errorf("chat: load history: %w", err)
	}

	exchanges := make([]transcript.Exchange, 0, len(entries))
	for _, e := range entries {
		exchanges = append(exchanges, transcript.Exchange{
			ServerID:  e.MessageID.String(),
			UserText:  e.UserMessage,
			ReplyText: e.AIResponse,
			Corrected: e.CorrectedMessage,
		})
	}
	store.Hydrate(exchanges)
	return nil
}
