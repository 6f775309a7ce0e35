package client

import (
	"context"

	"example.com/morghi/internal/model"
)

// Authority is the minimum an observer needs from the game store: fetch
// the public state and its own hand, and submit actions. Implementations
// are bound to one game and one player.
type Authority interface {
	FetchGame(ctx context.Context) (model.Game, error)
	FetchHand(ctx context.Context) (model.Hand, error)
	Execute(ctx context.Context, a model.GameAction) (model.GameActionResponse, error)
}

// Channel is an open event stream for one game. Next fails with an error
// wrapping model.ErrChannelLoss once the stream is gone; a malformed notice
// fails with model.ErrMalformedPayload and the stream stays usable.
type Channel interface {
	Next(ctx context.Context) (model.Notice, error)
	Close() error
}

// Feed is an Authority that also pushes notices.
type Feed interface {
	Authority
	Subscribe(ctx context.Context) (Channel, error)
}

// SessionAuthority adds the lobby and chat operations of a full player
// session.
type SessionAuthority interface {
	Feed
	Join(ctx context.Context, name string) error
	SetReady(ctx context.Context) error
	StartGame(ctx context.Context) error
	Leave(ctx context.Context) error
	SendMessage(ctx context.Context, text string) error
}
