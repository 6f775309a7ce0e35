package model

// MaxSnakeEggs is the most eggs a single SnakeEat may remove. The
// original card rules let one Snake swallow at most two eggs.
const MaxSnakeEggs = 2

// shapes lists the minimum cards each action needs. Every submitted card
// is consumed.
var shapes = map[ActionType]map[Card]int{
	LayEgg:   {Hen: 1, Rooster: 1, Nest: 1},
	HatchEgg: {Hen: 2},
	FoxSteal: {Fox: 1},
	SnakeEat: {Snake: 1},
	TrapKill: {Trap: 1},
}

// CheckShape validates card counts and parameters of an action without
// looking at any game state. It is cheap enough for clients to run before
// submitting; the authority runs it again.
func CheckShape(a GameAction) error {
	if !a.Type.Valid() {
		return Illegal("unknown action type %q", a.Type)
	}
	for _, c := range a.Cards {
		if !c.Valid() {
			return Illegal("unknown card %q", c)
		}
	}

	switch a.Type {
	case SkipTurn:
		return nil
	case DefendFoxSteal:
		if len(a.Cards) != 0 && len(a.Cards) != 2 {
			return Illegal("defend takes 0 or 2 cards, got %d", len(a.Cards))
		}
		return nil
	case TrapKill:
		if a.Target() == "" {
			return Illegal("trap needs a target")
		}
		if a.IsTrapFinish() {
			if len(a.Cards) != 0 {
				return Illegal("finishing a trap takes no cards")
			}
			if a.Params.Card == nil || !a.Params.Card.IsAnimal() {
				return Illegal("trap can only kill an animal card")
			}
			return nil
		}
	case FoxSteal:
		if a.Target() == "" {
			return Illegal("fox needs a target")
		}
	case SnakeEat:
		if a.Target() == "" {
			return Illegal("snake needs a target")
		}
		if a.Params.EggCount < 1 || a.Params.EggCount > MaxSnakeEggs {
			return Illegal("snake eats 1 to %d eggs, got %d", MaxSnakeEggs, a.Params.EggCount)
		}
	}

	if t := a.Target(); t != "" && t == a.Actor.ID {
		return Illegal("%s cannot target yourself", a.Type)
	}
	return matchShape(a.Type, a.Cards)
}

func matchShape(t ActionType, cards []Card) error {
	for _, c := range AllCards {
		if n := shapes[t][c]; Hand(cards).Count(c) < n {
			return Illegal("%s needs at least %d %s", t, n, c)
		}
	}
	return nil
}

// IsDefended reports whether a DefendFoxSteal's cards void the steal.
func IsDefended(cards []Card) bool {
	return len(cards) == 2 && Hand(cards).Count(Rooster) == 2
}
