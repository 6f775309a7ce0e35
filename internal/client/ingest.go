package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"example.com/morghi/internal/model"
)

// DefaultRetry is the pause between a lost channel and the next attempt.
const DefaultRetry = 2 * time.Second

type IngestOptions struct {
	Retry time.Duration
	Log   *slog.Logger
	// OnSync runs after every completed full resync.
	OnSync func()
}

// Ingestor keeps a Projection in step with a Feed.
type Ingestor struct {
	feed   Feed
	proj   *Projection
	retry  time.Duration
	log    *slog.Logger
	onSync func()
}

func NewIngestor(feed Feed, proj *Projection, opts IngestOptions) *Ingestor {
	if opts.Retry <= 0 {
		opts.Retry = DefaultRetry
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Ingestor{
		feed:   feed,
		proj:   proj,
		retry:  opts.Retry,
		log:    opts.Log,
		onSync: opts.OnSync,
	}
}

// Run ingests until ctx is cancelled. Every (re)connect subscribes first and
// then fetches a full snapshot, so nothing published in between is lost.
func (in *Ingestor) Run(ctx context.Context) error {
	for {
		err := in.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		in.log.Warn("event channel lost, resyncing", "err", err, "retry", in.retry)

		t := time.NewTimer(in.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (in *Ingestor) session(ctx context.Context) error {
	ch, err := in.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer ch.Close()

	if err := in.Resync(ctx); err != nil {
		return err
	}

	for {
		n, err := ch.Next(ctx)
		if errors.Is(err, model.ErrMalformedPayload) {
			in.log.Warn("skipping malformed notice", "err", err)
			continue
		}
		if err != nil {
			return err
		}
		in.handle(n)
	}
}

func (in *Ingestor) handle(n model.Notice) {
	if n.Type == model.NoticeError {
		var e model.ErrorPayload
		if model.Decode(n.Payload, &e) == nil {
			in.log.Warn("authority reported error", "code", e.Code, "message", e.Message)
		}
		return
	}
	if err := in.proj.Apply(n); err != nil {
		in.log.Warn("skipping malformed notice", "type", n.Type, "err", err)
	}
}

// Resync replaces the projection with freshly fetched state. An observer
// that is not a member of the game has no hand to fetch.
func (in *Ingestor) Resync(ctx context.Context) error {
	g, err := in.feed.FetchGame(ctx)
	if err != nil {
		return fmt.Errorf("fetch game: %w", err)
	}
	in.proj.ReplaceGame(g)

	if in.proj.Player() != "" && g.Player(in.proj.Player()) != nil {
		h, err := in.feed.FetchHand(ctx)
		if err != nil {
			return fmt.Errorf("fetch hand: %w", err)
		}
		in.proj.ReplaceHand(h)
	}
	if in.onSync != nil {
		in.onSync()
	}
	return nil
}
