package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/morghi/internal/game"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlayerStats aggregates finished games for one player.
type PlayerStats struct {
	PlayerID  string
	Played    int
	Wins      int
	UpdatedAt time.Time
}

// ResultStore records finished games. It implements game.ResultSink.
type ResultStore struct {
	db *pgxpool.Pool
}

func NewResultStore(db *pgxpool.Pool) *ResultStore {
	return &ResultStore{db: db}
}

// SaveResult writes the game and per-player rows and bumps every participant's stats in one
// transaction. A result that was already saved is ignored.
func (s *ResultStore) SaveResult(ctx context.Context, r game.Result) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var winner *string
	if r.Winner != "" {
		winner = &r.Winner
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO game_results (game_id, winner_id, ended_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (game_id) DO NOTHING
	`, r.GameID, winner, r.EndedAt)
	if err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range r.Players {
		won := p.ID == r.Winner
		batch.Queue(`
			INSERT INTO player_results (game_id, player_id, name, eggs, chickens, won, left_early)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.GameID, p.ID, p.Name, p.Eggs, p.Chickens, won, p.Left)
		batch.Queue(`
			INSERT INTO player_stats (player_id, played, wins, updated_at)
			VALUES ($1, 1, $2, now())
			ON CONFLICT (player_id) DO UPDATE
			SET played = player_stats.played + 1,
			    wins = player_stats.wins + EXCLUDED.wins,
			    updated_at = now()
		`, p.ID, boolToInt(won))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	return tx.Commit(ctx)
}

// Stats returns a player's totals. A player with no finished games gets zeros.
func (s *ResultStore) Stats(ctx context.Context, playerID string) (PlayerStats, error) {
	var st PlayerStats
	err := s.db.QueryRow(ctx, `
		SELECT player_id, played, wins, updated_at
		FROM player_stats
		WHERE player_id=$1
	`, playerID).Scan(&st.PlayerID, &st.Played, &st.Wins, &st.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return PlayerStats{PlayerID: playerID}, nil
	}
	if err != nil {
		return PlayerStats{}, err
	}
	return st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
