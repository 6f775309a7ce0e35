package game

import (
	"time"

	"example.com/morghi/internal/model"
)

// Snapshot is the serializable state of a session, hands and deck included.
// It never leaves the server.
type Snapshot struct {
	GameID string          `json:"gameId"`
	Name   string          `json:"name"`
	State  model.GameState `json:"state"`

	Seats    []SeatSnapshot       `json:"seats"`
	Messages []model.Message      `json:"messages"`
	Current  int                  `json:"current"`
	Pending  *model.PendingAction `json:"pending,omitempty"`

	Deck    []model.Card `json:"deck"`
	Reserve []model.Card `json:"reserve"`

	SavedAt time.Time `json:"savedAt"`
}

type SeatSnapshot struct {
	Player model.Player `json:"player"`
	Hand   model.Hand   `json:"hand"`
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		GameID:   s.id,
		Name:     s.name,
		State:    s.state,
		Seats:    make([]SeatSnapshot, 0, len(s.seats)),
		Messages: append([]model.Message{}, s.messages...),
		Current:  s.current,
		Deck:     append([]model.Card{}, s.deck.cards...),
		Reserve:  append([]model.Card{}, s.deck.reserve...),
		SavedAt:  s.cfg.Now().UTC(),
	}
	for _, st := range s.seats {
		snap.Seats = append(snap.Seats, SeatSnapshot{Player: st.player, Hand: st.hand.Clone()})
	}
	if s.pending != nil {
		p := *s.pending
		if p.LastResponse != nil {
			r := *p.LastResponse
			r.Params = nil
			p.LastResponse = &r
		}
		snap.Pending = &p
	}
	return snap
}

func (s *Session) restoreLocked(snap Snapshot) {
	s.name = snap.Name
	s.state = snap.State
	s.seats = s.seats[:0]
	for _, ss := range snap.Seats {
		s.seats = append(s.seats, &seat{player: ss.Player, hand: ss.Hand.Clone()})
	}
	s.messages = append([]model.Message(nil), snap.Messages...)
	s.current = snap.Current
	if s.state != model.StatePlaying || s.current >= len(s.seats) {
		s.current = -1
	}
	s.pending = snap.Pending
	s.deck.cards = append([]model.Card(nil), snap.Deck...)
	s.deck.reserve = append([]model.Card(nil), snap.Reserve...)
}
