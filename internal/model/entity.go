package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Player is a participant in one game. ID comes from the identity provider
// and is treated as an opaque comparable token.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Eggs     int    `json:"eggs"`
	Chickens int    `json:"chickens"`
	Ready    bool   `json:"ready"`
	Order    *int   `json:"order,omitempty"` // assigned once at game start
	Left     bool   `json:"left,omitempty"`
}

func (p *Player) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out Player
	if out.ID, err = o.str("id"); err != nil {
		return err
	}
	if out.Name, err = o.str("name"); err != nil {
		return err
	}
	if out.Eggs, err = o.count("eggs"); err != nil {
		return err
	}
	if out.Chickens, err = o.count("chickens"); err != nil {
		return err
	}
	if out.Ready, err = o.optBool("ready"); err != nil {
		return err
	}
	if out.Order, err = o.optInt("order"); err != nil {
		return err
	}
	if out.Order != nil && *out.Order < 0 {
		return malformed("order", "must be non-negative")
	}
	if out.Left, err = o.optBool("left"); err != nil {
		return err
	}
	*p = out
	return nil
}

// Message is one immutable chat or system line. Sender nil means system.
type Message struct {
	ID        string    `json:"id"`
	Sender    *string   `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m *Message) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out Message
	if out.ID, err = o.str("id"); err != nil {
		return err
	}
	if out.Sender, err = o.optStr("sender"); err != nil {
		return err
	}
	if out.Text, err = o.str("text"); err != nil {
		return err
	}
	if _, ok := o.present("createdAt"); ok {
		if out.CreatedAt, err = o.timestamp("createdAt"); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

// IsSystem reports a message generated by the authority.
func (m Message) IsSystem() bool { return m.Sender == nil }

// ActionParams is the type-dependent payload of a GameAction.
type ActionParams struct {
	Target   *Player `json:"target,omitempty"`
	EggCount int     `json:"eggCount,omitempty"`
	Finish   bool    `json:"finish,omitempty"`
	Card     *Card   `json:"card,omitempty"`
}

func (a *ActionParams) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out ActionParams
	var target Player
	ok, err := o.optInto("target", &target)
	if err != nil {
		return err
	}
	if ok {
		out.Target = &target
	}
	if _, ok := o.present("eggCount"); ok {
		if out.EggCount, err = o.count("eggCount"); err != nil {
			return err
		}
	}
	if out.Finish, err = o.optBool("finish"); err != nil {
		return err
	}
	var card Card
	ok, err = o.optInto("card", &card)
	if err != nil {
		return err
	}
	if ok {
		out.Card = &card
	}
	*a = out
	return nil
}

// GameAction is a player's request to mutate the game.
type GameAction struct {
	Type   ActionType    `json:"type"`
	Actor  Player        `json:"actor"`
	Cards  []Card        `json:"cards"`
	Params *ActionParams `json:"params"`
}

func (a *GameAction) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out GameAction
	if err := o.into("type", &out.Type); err != nil {
		return err
	}
	if err := o.into("actor", &out.Actor); err != nil {
		return err
	}
	if _, ok := o.present("cards"); ok {
		if out.Cards, err = o.cards("cards"); err != nil {
			return err
		}
	}
	var params ActionParams
	ok, err := o.optInto("params", &params)
	if err != nil {
		return err
	}
	if ok {
		out.Params = &params
	}
	if err := out.requireParams(); err != nil {
		return err
	}
	*a = out
	return nil
}

// requireParams checks the parameters each type cannot be interpreted without.
func (a GameAction) requireParams() error {
	switch a.Type {
	case FoxSteal, SnakeEat, TrapKill:
		if a.Params == nil {
			return malformed("params", fmt.Sprintf("required for %s", a.Type))
		}
		if a.Params.Target == nil {
			return malformed("params.target", "required")
		}
	}
	switch {
	case a.Type == SnakeEat && a.Params.EggCount == 0:
		return malformed("params.eggCount", "required")
	case a.Type == TrapKill && a.Params.Finish && a.Params.Card == nil:
		return malformed("params.card", "required when finishing a trap")
	}
	return nil
}

// Target returns the action's target player id, or "".
func (a GameAction) Target() string {
	if a.Params == nil || a.Params.Target == nil {
		return ""
	}
	return a.Params.Target.ID
}

// IsTrapFinish reports the second phase of a TrapKill.
func (a GameAction) IsTrapFinish() bool {
	return a.Type == TrapKill && a.Params != nil && a.Params.Finish
}

// ResponseParams is only populated for TrapKill init: the target's hand,
// shown to the actor alone.
type ResponseParams struct {
	TargetHand Hand `json:"targetHand"`
}

func (r *ResponseParams) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out ResponseParams
	if _, ok := o.present("targetHand"); ok {
		cards, err := o.cards("targetHand")
		if err != nil {
			return err
		}
		out.TargetHand = cards
	}
	*r = out
	return nil
}

// GameActionResponse is the authority's acknowledgment of how far an
// action has progressed.
type GameActionResponse struct {
	Type             ActionType      `json:"type"`
	IsComplete       bool            `json:"isComplete"`
	IsAwaitingActor  bool            `json:"isAwaitingActor"`
	IsAwaitingTarget bool            `json:"isAwaitingTarget"`
	Params           *ResponseParams `json:"params"`
}

func (r *GameActionResponse) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out GameActionResponse
	if err := o.into("type", &out.Type); err != nil {
		return err
	}
	if out.IsComplete, err = o.boolean("isComplete"); err != nil {
		return err
	}
	if out.IsAwaitingActor, err = o.boolean("isAwaitingActor"); err != nil {
		return err
	}
	if out.IsAwaitingTarget, err = o.boolean("isAwaitingTarget"); err != nil {
		return err
	}
	var params ResponseParams
	ok, err := o.optInto("params", &params)
	if err != nil {
		return err
	}
	if ok {
		out.Params = &params
	}
	*r = out
	return nil
}

// PendingAction blocks the game until its responder acts or Deadline passes.
type PendingAction struct {
	Action       GameAction          `json:"action"`
	Deadline     time.Time           `json:"deadline"`
	LastResponse *GameActionResponse `json:"lastResponse"`
}

func (p *PendingAction) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out PendingAction
	if err := o.into("action", &out.Action); err != nil {
		return err
	}
	if out.Deadline, err = o.timestamp("deadline"); err != nil {
		return err
	}
	var last GameActionResponse
	ok, err := o.optInto("lastResponse", &last)
	if err != nil {
		return err
	}
	if ok {
		out.LastResponse = &last
	}
	*p = out
	return nil
}

// Responder is the only player allowed to act while p is pending.
func (p PendingAction) Responder() string {
	if p.Action.Type == TrapKill {
		return p.Action.Actor.ID
	}
	return p.Action.Target()
}

type GameState string

const (
	StateLobby   GameState = "lobby"
	StatePlaying GameState = "playing"
	StateEnded   GameState = "ended"
)

func (s *GameState) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return malformed("", "state must be a string")
	}
	switch GameState(v) {
	case StateLobby, StatePlaying, StateEnded:
		*s = GameState(v)
		return nil
	}
	return malformed("", fmt.Sprintf("unknown state %q", v))
}

// Game is the public, broadcastable state of one session. It never carries
// hands.
type Game struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	State         GameState      `json:"state"`
	Players       []Player       `json:"players"`
	Messages      []Message      `json:"messages"`
	CurrentPlayer *string        `json:"currentPlayer"`
	Pending       *PendingAction `json:"pending"`
}

func (g *Game) UnmarshalJSON(b []byte) error {
	o, err := decodeObject(b)
	if err != nil {
		return err
	}
	var out Game
	if out.ID, err = o.str("id"); err != nil {
		return err
	}
	if out.Name, err = o.str("name"); err != nil {
		return err
	}
	if err := o.into("state", &out.State); err != nil {
		return err
	}
	players, err := o.array("players")
	if err != nil {
		return err
	}
	out.Players = make([]Player, len(players))
	for i, raw := range players {
		if err := decodeInto(fmt.Sprintf("players[%d]", i), raw, &out.Players[i]); err != nil {
			return err
		}
	}
	messages, err := o.array("messages")
	if err != nil {
		return err
	}
	out.Messages = make([]Message, len(messages))
	for i, raw := range messages {
		if err := decodeInto(fmt.Sprintf("messages[%d]", i), raw, &out.Messages[i]); err != nil {
			return err
		}
	}
	if out.CurrentPlayer, err = o.optStr("currentPlayer"); err != nil {
		return err
	}
	var pending PendingAction
	ok, err := o.optInto("pending", &pending)
	if err != nil {
		return err
	}
	if ok {
		out.Pending = &pending
	}
	*g = out
	return nil
}

// Player looks a player up by id.
func (g *Game) Player(id string) *Player {
	if g == nil {
		return nil
	}
	for i := range g.Players {
		if g.Players[i].ID == id {
			return &g.Players[i]
		}
	}
	return nil
}

// CurrentPlayerOf resolves g.CurrentPlayer. A stale id (e.g. the player
// left) resolves to nil.
func CurrentPlayerOf(g *Game) *Player {
	if g == nil || g.CurrentPlayer == nil {
		return nil
	}
	return g.Player(*g.CurrentPlayer)
}

// Clone deep-copies the game so projections never share slices.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	out := *g
	out.Players = make([]Player, len(g.Players))
	for i, p := range g.Players {
		if p.Order != nil {
			o := *p.Order
			p.Order = &o
		}
		out.Players[i] = p
	}
	out.Messages = append(make([]Message, 0, len(g.Messages)), g.Messages...)
	if g.CurrentPlayer != nil {
		id := *g.CurrentPlayer
		out.CurrentPlayer = &id
	}
	if g.Pending != nil {
		p := *g.Pending
		p.Action.Cards = append([]Card{}, p.Action.Cards...)
		if p.LastResponse != nil {
			r := *p.LastResponse
			p.LastResponse = &r
		}
		out.Pending = &p
	}
	return &out
}

// GameInfo is the lobby listing entry.
type GameInfo struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	State    GameState `json:"state"`
	Players  int       `json:"players"`
	Capacity int       `json:"capacity"`
}
