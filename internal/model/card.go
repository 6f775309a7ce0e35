package model

import (
	"encoding/json"
	"fmt"
)

// Card is one of the six playing cards.
type Card string

const (
	Hen     Card = "Hen"
	Rooster Card = "Rooster"
	Nest    Card = "Nest"
	Fox     Card = "Fox"
	Snake   Card = "Snake"
	Trap    Card = "Trap"
)

// AllCards lists the closed card set.
var AllCards = []Card{Hen, Rooster, Nest, Fox, Snake, Trap}

// AnimalCards can be killed by a Trap.
var AnimalCards = []Card{Hen, Rooster, Snake, Fox}

func (c Card) Valid() bool {
	switch c {
	case Hen, Rooster, Nest, Fox, Snake, Trap:
		return true
	}
	return false
}

func (c Card) IsAnimal() bool {
	switch c {
	case Hen, Rooster, Snake, Fox:
		return true
	}
	return false
}

func (c *Card) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return malformed("", "card must be a string")
	}
	if !Card(s).Valid() {
		return malformed("", fmt.Sprintf("unknown card %q", s))
	}
	*c = Card(s)
	return nil
}

// ActionType enumerates game actions.
type ActionType string

const (
	SkipTurn       ActionType = "SkipTurn"
	LayEgg         ActionType = "LayEgg"
	HatchEgg       ActionType = "HatchEgg"
	FoxSteal       ActionType = "FoxSteal"
	SnakeEat       ActionType = "SnakeEat"
	TrapKill       ActionType = "TrapKill"
	DefendFoxSteal ActionType = "DefendFoxSteal"
)

func (t ActionType) Valid() bool {
	switch t {
	case SkipTurn, LayEgg, HatchEgg, FoxSteal, SnakeEat, TrapKill, DefendFoxSteal:
		return true
	}
	return false
}

func (t *ActionType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return malformed("", "action type must be a string")
	}
	if !ActionType(s).Valid() {
		return malformed("", fmt.Sprintf("unknown action type %q", s))
	}
	*t = ActionType(s)
	return nil
}

// Hand is an unordered multiset of cards.
type Hand []Card

// Count returns how many copies of c the hand holds.
func (h Hand) Count(c Card) int {
	n := 0
	for _, x := range h {
		if x == c {
			n++
		}
	}
	return n
}

// Contains reports whether every card of sub (with multiplicity) is in h.
func (h Hand) Contains(sub []Card) bool {
	need := make(map[Card]int, len(sub))
	for _, c := range sub {
		need[c]++
	}
	for c, n := range need {
		if h.Count(c) < n {
			return false
		}
	}
	return true
}

// Without returns a copy of h with one copy of each card in sub removed.
// ok is false if sub is not contained in h.
func (h Hand) Without(sub []Card) (Hand, bool) {
	if !h.Contains(sub) {
		return h, false
	}
	out := append(Hand(nil), h...)
	for _, c := range sub {
		for i, x := range out {
			if x == c {
				out = append(out[:i], out[i+1:]...)
				break
			}
		}
	}
	return out, true
}

// HasAnimal reports whether the hand holds any trappable card.
func (h Hand) HasAnimal() bool {
	for _, c := range h {
		if c.IsAnimal() {
			return true
		}
	}
	return false
}

// Clone copies the hand; a nil hand clones to an empty one.
func (h Hand) Clone() Hand {
	return append(Hand{}, h...)
}
