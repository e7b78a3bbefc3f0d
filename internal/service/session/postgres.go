package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightdoor/brokerchat/internal/model/chat"
	"github.com/brightdoor/brokerchat/internal/model/entity"
)

// PostgresStore persists sessions and transcripts in the brokerage database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateSession provisions a new active conversation row.
func (s *PostgresStore) CreateSession(ctx context.Context, title string) (chat.Session, error) {
	session := chat.Session{
		ID:        uuid.NewString(),
		Title:     title,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, title, active, created_at) VALUES ($1, $2, $3, $4)`,
		session.ID, session.Title, session.Active, session.CreatedAt)
	if err != nil {
		return chat.Session{}, fmt.Errorf("insert session: %w", err)
	}

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var session chat.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, active, created_at FROM chat_sessions WHERE id = $1`,
		sessionID).Scan(&session.ID, &session.Title, &session.Active, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("select session: %w", err)
	}
	return session, nil
}

// ListSessions returns all sessions, newest first.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]chat.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, active, created_at FROM chat_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]chat.Session, 0, 16)
	for rows.Next() {
		var session chat.Session
		if err := rows.Scan(&session.ID, &session.Title, &session.Active, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// AppendMessage inserts a transcript row, assigning identifier and timestamp.
func (s *PostgresStore) AppendMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionNotFound
	}
	if message.Content == "" {
		return chat.Message{}, ErrEmptyContent
	}

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	entities, err := json.Marshal(nonNilEntities(message.Entities))
	if err != nil {
		return chat.Message{}, fmt.Errorf("marshal entities: %w", err)
	}
	suggestions, err := json.Marshal(nonNilStrings(message.Suggestions))
	if err != nil {
		return chat.Message{}, fmt.Errorf("marshal suggestions: %w", err)
	}
	var richContent []byte
	if message.RichContent != nil {
		richContent, err = json.Marshal(message.RichContent)
		if err != nil {
			return chat.Message{}, fmt.Errorf("marshal rich content: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, entities, rich_content, suggestions, attachment, created_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		 WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE id = $2)`,
		message.ID, message.SessionID, message.Role, message.Content,
		entities, richContent, suggestions, message.Attachment, message.CreatedAt)
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.Message{}, ErrSessionNotFound
	}

	return message, nil
}

// History returns the normalized transcript ordered by timestamp, then ID.
func (s *PostgresStore) History(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, entities, rich_content, suggestions, attachment, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0, 32)
	for rows.Next() {
		var (
			m           chat.Message
			entitiesRaw []byte
			richRaw     []byte
			suggestRaw  []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content,
			&entitiesRaw, &richRaw, &suggestRaw, &m.Attachment, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(entitiesRaw) > 0 {
			if err := json.Unmarshal(entitiesRaw, &m.Entities); err != nil {
				return nil, fmt.Errorf("decode entities for message %s: %w", m.ID, err)
			}
		}
		if len(richRaw) > 0 {
			var rc chat.RichContent
			if err := json.Unmarshal(richRaw, &rc); err != nil {
				return nil, fmt.Errorf("decode rich content for message %s: %w", m.ID, err)
			}
			m.RichContent = &rc
		}
		if len(suggestRaw) > 0 {
			if err := json.Unmarshal(suggestRaw, &m.Suggestions); err != nil {
				return nil, fmt.Errorf("decode suggestions for message %s: %w", m.ID, err)
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return normalizeTranscript(messages), nil
}

func nonNilEntities(in []entity.Detected) []entity.Detected {
	if in == nil {
		return []entity.Detected{}
	}
	return in
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
