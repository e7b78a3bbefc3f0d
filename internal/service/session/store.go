package session

import (
	"context"
	"errors"
	"sort"

	"github.com/brightdoor/brokerchat/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyContent    = errors.New("message content is required")
)

// Store persists conversation sessions and their ordered message logs.
type Store interface {
	CreateSession(ctx context.Context, title string) (chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	ListSessions(ctx context.Context) ([]chat.Session, error)
	AppendMessage(ctx context.Context, message chat.Message) (chat.Message, error)
	// History returns the transcript sorted by timestamp ascending, ties
	// broken by message ID, with roles and optional fields normalized.
	History(ctx context.Context, sessionID string) ([]chat.Message, error)
}

// sortTranscript orders messages deterministically: timestamp, then ID.
func sortTranscript(messages []chat.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

func normalizeTranscript(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, len(messages))
	for i, m := range messages {
		out[i] = chat.Normalize(m)
	}
	sortTranscript(out)
	return out
}
