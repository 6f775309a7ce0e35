package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"example.com/morghi/internal/model"
)

// Update is what a projection handler sees after every change.
type Update struct {
	Cause model.NoticeType
	Game  model.Game
	Hand  model.Hand
}

// Projection is one observer's local copy of a game and of its own hand.
// The authority is the single writer; a projection only ever replaces or
// patches itself from notices and fetches, never the other way round.
type Projection struct {
	player string

	mu       sync.Mutex
	game     *model.Game
	hand     model.Hand
	handSet  bool
	seen     map[string]struct{}
	handlers map[int]func(Update)
	nextID   int
}

// NewProjection tracks the hand of player. An empty player observes
// without a hand.
func NewProjection(player string) *Projection {
	return &Projection{
		player:   player,
		seen:     make(map[string]struct{}),
		handlers: make(map[int]func(Update)),
	}
}

func (p *Projection) Player() string { return p.player }

// Game returns a copy of the local game, if any snapshot was received.
func (p *Projection) Game() (model.Game, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.game == nil {
		return model.Game{}, false
	}
	return *p.game.Clone(), true
}

// Hand returns the local hand and whether it is known.
func (p *Projection) Hand() (model.Hand, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hand.Clone(), p.handSet
}

// ReplaceGame swaps the whole local game for g.
func (p *Projection) ReplaceGame(g model.Game) {
	p.mu.Lock()
	p.game = g.Clone()
	clear(p.seen)
	for _, m := range p.game.Messages {
		p.seen[m.ID] = struct{}{}
	}
	u, hs := p.updateLocked(model.NoticeState)
	p.mu.Unlock()
	notify(hs, u)
}

// ReplaceHand sets the observer's own hand.
func (p *Projection) ReplaceHand(h model.Hand) {
	p.mu.Lock()
	p.hand = h.Clone()
	p.handSet = true
	u, hs := p.updateLocked(model.NoticeHand)
	p.mu.Unlock()
	notify(hs, u)
}

// AppendMessage adds m unless a message with the same id is already there.
// Before the first snapshot there is nothing to append to, and the message
// arrives with that snapshot instead.
func (p *Projection) AppendMessage(m model.Message) bool {
	p.mu.Lock()
	if p.game == nil {
		p.mu.Unlock()
		return false
	}
	if _, dup := p.seen[m.ID]; dup {
		p.mu.Unlock()
		return false
	}
	p.seen[m.ID] = struct{}{}
	p.game.Messages = append(p.game.Messages, m)
	u, hs := p.updateLocked(model.NoticeMessage)
	p.mu.Unlock()
	notify(hs, u)
	return true
}

// Apply folds one notice into the projection. A payload that fails to
// decode is returned and nothing changes.
func (p *Projection) Apply(n model.Notice) error {
	switch n.Type {
	case model.NoticeState:
		var g model.Game
		if err := model.Decode(n.Payload, &g); err != nil {
			return err
		}
		p.ReplaceGame(g)

	case model.NoticeHand:
		var h model.HandPayload
		if err := model.Decode(n.Payload, &h); err != nil {
			return err
		}
		if h.Player != p.player {
			return nil
		}
		p.ReplaceHand(h.Hand)

	case model.NoticeMessage:
		var m model.Message
		if err := model.Decode(n.Payload, &m); err != nil {
			return err
		}
		p.AppendMessage(m)

	case model.NoticeReady, model.NoticeTurn:
		var ref model.PlayerRef
		if err := model.Decode(n.Payload, &ref); err != nil {
			return err
		}
		p.patch(n.Type, ref.Player)

	case model.NoticeError:
		var e model.ErrorPayload
		if err := model.Decode(n.Payload, &e); err != nil {
			return err
		}

	case model.NoticeAck:
		// acknowledgments carry no game state; the state notice that
		// follows every mutation does
		var r model.GameActionResponse
		if err := model.Decode(n.Payload, &r); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: unknown notice type %q", model.ErrMalformedPayload, n.Type)
	}
	return nil
}

// patch applies a ready/turn delta. Deltas for unknown players are ignored;
// the next snapshot settles them.
func (p *Projection) patch(t model.NoticeType, player string) {
	p.mu.Lock()
	if p.game == nil {
		p.mu.Unlock()
		return
	}
	target := p.game.Player(player)
	if target == nil {
		p.mu.Unlock()
		return
	}
	switch t {
	case model.NoticeReady:
		target.Ready = true
	case model.NoticeTurn:
		id := player
		p.game.CurrentPlayer = &id
	}
	u, hs := p.updateLocked(t)
	p.mu.Unlock()
	notify(hs, u)
}

// Subscribe registers fn for every change. Handlers run on the goroutine
// that changed the projection, in no particular order.
func (p *Projection) Subscribe(fn func(Update)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, id)
	}
}

// Reset forgets all local state.
func (p *Projection) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.game = nil
	p.hand = nil
	p.handSet = false
	clear(p.seen)
}

type cached struct {
	Game *model.Game `json:"game"`
	Hand model.Hand  `json:"hand,omitempty"`
}

// Encode serializes the projection for a local cache.
func (p *Projection) Encode() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := cached{Game: p.game}
	if p.handSet {
		c.Hand = p.hand.Clone()
	}
	return json.Marshal(c)
}

// Restore loads a cache written by Encode. A malformed cache is discarded
// and the projection starts empty; it reports whether anything was loaded.
func (p *Projection) Restore(b []byte) bool {
	var raw struct {
		Game json.RawMessage `json:"game"`
		Hand json.RawMessage `json:"hand"`
	}
	var g model.Game
	var cards []model.Card
	err := json.Unmarshal(b, &raw)
	if err == nil {
		err = model.Decode(raw.Game, &g)
	}
	if err == nil && len(raw.Hand) > 0 {
		err = model.Decode(raw.Hand, &cards)
	}
	if err != nil {
		p.Reset()
		return false
	}

	p.ReplaceGame(g)
	if len(raw.Hand) > 0 {
		p.ReplaceHand(cards)
	}
	return true
}

func (p *Projection) updateLocked(cause model.NoticeType) (Update, []func(Update)) {
	if len(p.handlers) == 0 {
		return Update{}, nil
	}
	u := Update{Cause: cause, Hand: p.hand.Clone()}
	if p.game != nil {
		u.Game = *p.game.Clone()
	}
	hs := make([]func(Update), 0, len(p.handlers))
	for _, h := range p.handlers {
		hs = append(hs, h)
	}
	return u, hs
}

func notify(hs []func(Update), u Update) {
	for _, h := range hs {
		h(u)
	}
}
