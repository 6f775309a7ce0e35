package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPersistence keeps one JSON snapshot per game. Every save refreshes
// the TTL, so abandoned games expire on their own.
type RedisPersistence struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ SnapshotDeleter = (*RedisPersistence)(nil)

func NewRedisPersistence(rdb *redis.Client, ttl time.Duration) *RedisPersistence {
	return &RedisPersistence{rdb: rdb, ttl: ttl}
}

func (p *RedisPersistence) key(gameID string) string {
	return fmt.Sprintf("game:%s:snapshot", gameID)
}

func (p *RedisPersistence) Save(ctx context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, p.key(snap.GameID), b, p.ttl).Err()
}

func (p *RedisPersistence) Load(ctx context.Context, gameID string) (Snapshot, bool, error) {
	val, err := p.rdb.Get(ctx, p.key(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", gameID, err)
	}
	return snap, true, nil
}

// Delete removes a snapshot, e.g. once a finished game has been recorded.
func (p *RedisPersistence) Delete(ctx context.Context, gameID string) error {
	return p.rdb.Del(ctx, p.key(gameID)).Err()
}
