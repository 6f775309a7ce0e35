package store

import (
	"context"
	"fmt"

	"example.com/morghi/internal/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageStore keeps the chat history of every game. It implements
// game.MessageSink.
type MessageStore struct {
	db *pgxpool.Pool
}

func NewMessageStore(db *pgxpool.Pool) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) SaveMessage(ctx context.Context, gameID string, m model.Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO game_messages (id, game_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, gameID, m.Sender, m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// History returns a game's messages oldest first, at most limit of them.
func (s *MessageStore) History(ctx context.Context, gameID string, limit int) ([]model.Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, sender_id, body, created_at
		FROM game_messages
		WHERE game_id=$1
		ORDER BY created_at, id
		LIMIT $2
	`, gameID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
