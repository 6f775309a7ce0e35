package client

import (
	"context"
	"fmt"

	"example.com/morghi/internal/game"
	"example.com/morghi/internal/model"
	"example.com/morghi/internal/realtime"
)

// Local is a SessionAuthority over an in-process Store and Hub, used by
// bots, tests and single-binary setups.
type Local struct {
	store  *game.Store
	hub    *realtime.Hub
	gameID string
	player string
}

func NewLocal(store *game.Store, hub *realtime.Hub, gameID, player string) *Local {
	return &Local{store: store, hub: hub, gameID: gameID, player: player}
}

func (l *Local) session(ctx context.Context) (*game.Session, error) {
	return l.store.GetOrLoad(ctx, l.gameID)
}

func (l *Local) FetchGame(ctx context.Context) (model.Game, error) {
	s, err := l.session(ctx)
	if err != nil {
		return model.Game{}, err
	}
	return s.Game(), nil
}

func (l *Local) FetchHand(ctx context.Context) (model.Hand, error) {
	s, err := l.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.Hand(l.player)
}

func (l *Local) Execute(ctx context.Context, a model.GameAction) (model.GameActionResponse, error) {
	if a.Actor.ID != l.player {
		return model.GameActionResponse{}, model.Illegal("cannot act as %s", a.Actor.ID)
	}
	s, err := l.session(ctx)
	if err != nil {
		return model.GameActionResponse{}, err
	}
	return s.ApplyAction(a)
}

func (l *Local) Subscribe(ctx context.Context) (Channel, error) {
	if _, err := l.session(ctx); err != nil {
		return nil, err
	}
	return &hubChannel{hub: l.hub, sub: l.hub.Subscribe(l.gameID, l.player)}, nil
}

func (l *Local) Join(ctx context.Context, name string) error {
	s, err := l.session(ctx)
	if err != nil {
		return err
	}
	return s.Join(l.player, name)
}

func (l *Local) SetReady(ctx context.Context) error {
	s, err := l.session(ctx)
	if err != nil {
		return err
	}
	return s.SetReady(l.player)
}

func (l *Local) StartGame(ctx context.Context) error {
	s, err := l.session(ctx)
	if err != nil {
		return err
	}
	return s.Start(l.player)
}

func (l *Local) Leave(ctx context.Context) error {
	s, err := l.session(ctx)
	if err != nil {
		return err
	}
	return s.Leave(l.player)
}

func (l *Local) SendMessage(ctx context.Context, text string) error {
	s, err := l.session(ctx)
	if err != nil {
		return err
	}
	_, err = s.SendMessage(l.player, text)
	return err
}

type hubChannel struct {
	hub *realtime.Hub
	sub *realtime.Subscription
}

func (c *hubChannel) Next(ctx context.Context) (model.Notice, error) {
	select {
	case <-ctx.Done():
		return model.Notice{}, ctx.Err()
	case n, ok := <-c.sub.C:
		if !ok {
			if c.sub.Lagged() {
				return model.Notice{}, fmt.Errorf("%w: subscriber fell behind", model.ErrChannelLoss)
			}
			return model.Notice{}, model.ErrChannelLoss
		}
		return n, nil
	}
}

func (c *hubChannel) Close() error {
	c.hub.Unsubscribe(c.sub)
	return nil
}
