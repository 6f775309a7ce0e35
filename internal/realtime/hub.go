package realtime

import (
	"sync"

	"example.com/morghi/internal/model"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Subscription is one observer's view of a game's notice stream. C is
// closed when the subscription ends, either by Unsubscribe or because the
// subscriber fell behind; consumers treat both as channel loss and resync.
type Subscription struct {
	GameID string
	Player string // "" receives broadcasts only

	C <-chan model.Notice

	ch     chan model.Notice
	lagged bool
}

// Lagged reports a subscription dropped for falling behind. Only meaningful
// once C is closed.
func (s *Subscription) Lagged() bool { return s.lagged }

// Hub fans notices out to subscribers of the same game.
type Hub struct {
	mu     sync.Mutex
	games  map[string]map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		games:  make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers an observer. Notices scoped to player are delivered
// to it in addition to broadcasts.
func (h *Hub) Subscribe(gameID, player string) *Subscription {
	ch := make(chan model.Notice, h.buffer)
	sub := &Subscription{GameID: gameID, Player: player, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.games[gameID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.games[gameID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub)
}

// Publish never blocks: a subscriber whose queue is full is dropped.
func (h *Hub) Publish(n model.Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.games[n.GameID] {
		if n.Recipient != "" && n.Recipient != sub.Player {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			sub.lagged = true
			h.dropLocked(sub)
		}
	}
}

// Subscribers counts the live subscriptions of a game.
func (h *Hub) Subscribers(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.games[gameID])
}

func (h *Hub) dropLocked(sub *Subscription) {
	subs, ok := h.games[sub.GameID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.games, sub.GameID)
	}
}
