package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresHistoryStore persists conversations as one JSONB document per user.
type postgresHistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a PostgreSQL-backed HistoryStore.
func NewHistoryStore(pool *pgxpool.Pool) HistoryStore {
	return &postgresHistoryStore{pool: pool}
}

func (s *postgresHistoryStore) Load(ctx context.Context, userID uuid.UUID) ([]Message, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT messages FROM conversations WHERE user_id = $1`, userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("decoding conversation: %w", err)
	}
	return messages, nil
}

func (s *postgresHistoryStore) Save(ctx context.Context, userID uuid.UUID, messages []Message) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations (user_id, messages, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET messages = $2, updated_at = now()`,
		userID, raw)
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

func (s *postgresHistoryStore) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}
