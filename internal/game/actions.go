package game

import (
	"fmt"
	"time"

	"example.com/morghi/internal/model"
)

// ApplyAction validates and applies one action. A rejected action leaves
// the session untouched, except that an overdue pending action is resolved
// first.
func (s *Session) ApplyAction(a model.GameAction) (model.GameActionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := s.expireLocked(s.cfg.Now())
	resp, err := s.applyLocked(a)
	if err == nil || expired {
		s.commitLocked()
	}
	if err != nil {
		s.log.Debug("action rejected", "type", a.Type, "actor", a.Actor.ID, "err", err)
		return model.GameActionResponse{}, err
	}
	return resp, nil
}

// ExpirePending resolves the pending action if its deadline has passed.
// It reports whether anything was resolved; calling it again is a no-op.
func (s *Session) ExpirePending(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.expireLocked(now) {
		return false
	}
	s.commitLocked()
	return true
}

func (s *Session) applyLocked(a model.GameAction) (model.GameActionResponse, error) {
	if s.state != model.StatePlaying {
		return model.GameActionResponse{}, model.Illegal("game is %s", s.state)
	}
	if err := model.CheckShape(a); err != nil {
		return model.GameActionResponse{}, err
	}
	actor := s.seatLocked(a.Actor.ID)
	if actor == nil || actor.player.Left {
		return model.GameActionResponse{}, model.Illegal("%s is not playing in this game", a.Actor.ID)
	}

	switch {
	case a.Type == model.DefendFoxSteal:
		return s.defendLocked(a, actor)
	case a.IsTrapFinish():
		return s.finishTrapLocked(a, actor)
	}

	if !actor.hand.Contains(a.Cards) {
		return model.GameActionResponse{}, model.Illegal("cards %v are not in your hand", a.Cards)
	}
	if s.pending != nil {
		return model.GameActionResponse{}, model.Illegal("waiting on %s to respond to %s", s.pending.Responder(), s.pending.Action.Type)
	}
	if s.currentIDLocked() != actor.player.ID {
		return model.GameActionResponse{}, model.Illegal("it is not your turn")
	}
	var target *seat
	if id := a.Target(); id != "" {
		target = s.seatLocked(id)
		if target == nil || target.player.Left {
			return model.GameActionResponse{}, model.Illegal("target %s is not playing", id)
		}
	}

	done := model.GameActionResponse{Type: a.Type, IsComplete: true}
	switch a.Type {
	case model.SkipTurn:
		s.consumeLocked(actor, a.Cards)
		s.systemLocked(fmt.Sprintf("%s skipped their turn", actor.player.Name))

	case model.LayEgg:
		s.consumeLocked(actor, a.Cards)
		actor.player.Eggs++
		s.systemLocked(fmt.Sprintf("%s laid an egg", actor.player.Name))

	case model.HatchEgg:
		if actor.player.Eggs < 1 {
			return model.GameActionResponse{}, model.Illegal("no egg to hatch")
		}
		s.consumeLocked(actor, a.Cards)
		actor.player.Eggs--
		actor.player.Chickens++
		s.systemLocked(fmt.Sprintf("%s hatched a chicken", actor.player.Name))

	case model.SnakeEat:
		s.consumeLocked(actor, a.Cards)
		n := min(a.Params.EggCount, target.player.Eggs)
		target.player.Eggs -= n
		s.systemLocked(fmt.Sprintf("%s's snake ate %d of %s's eggs", actor.player.Name, n, target.player.Name))

	case model.FoxSteal:
		s.consumeLocked(actor, a.Cards)
		s.setPendingLocked(a, s.cfg.FoxGrace, nil)
		s.systemLocked(fmt.Sprintf("%s sent a fox after %s", actor.player.Name, target.player.Name))
		return model.GameActionResponse{Type: a.Type, IsAwaitingTarget: true}, nil

	case model.TrapKill:
		s.consumeLocked(actor, a.Cards)
		if !target.hand.HasAnimal() {
			s.systemLocked(fmt.Sprintf("%s set a trap but %s has no animals", actor.player.Name, target.player.Name))
			break
		}
		ack := model.GameActionResponse{Type: a.Type, IsAwaitingActor: true}
		s.setPendingLocked(a, s.cfg.TrapGrace, &ack)
		s.systemLocked(fmt.Sprintf("%s set a trap for %s", actor.player.Name, target.player.Name))
		ack.Params = &model.ResponseParams{TargetHand: target.hand.Clone()}
		return ack, nil
	}

	s.finishTurnLocked()
	return done, nil
}

func (s *Session) defendLocked(a model.GameAction, actor *seat) (model.GameActionResponse, error) {
	p := s.pending
	if p == nil || p.Action.Type != model.FoxSteal || p.Action.Target() != actor.player.ID {
		return model.GameActionResponse{}, model.Protocol("no fox steal is waiting on %s", actor.player.ID)
	}
	if !actor.hand.Contains(a.Cards) {
		return model.GameActionResponse{}, model.Illegal("cards %v are not in your hand", a.Cards)
	}

	s.clearPendingLocked()
	thief := s.seatLocked(p.Action.Actor.ID)
	if model.IsDefended(a.Cards) {
		s.consumeLocked(actor, a.Cards)
		s.systemLocked(fmt.Sprintf("%s's roosters chased the fox away", actor.player.Name))
	} else {
		s.systemLocked(fmt.Sprintf("The fox took %s from %s", steal(thief, actor), actor.player.Name))
	}
	s.finishTurnLocked()
	return model.GameActionResponse{Type: a.Type, IsComplete: true}, nil
}

func (s *Session) finishTrapLocked(a model.GameAction, actor *seat) (model.GameActionResponse, error) {
	p := s.pending
	if p == nil || p.Action.Type != model.TrapKill ||
		p.Action.Actor.ID != actor.player.ID || p.Action.Target() != a.Target() {
		return model.GameActionResponse{}, model.Protocol("no trap by %s on %s to finish", actor.player.ID, a.Target())
	}
	target := s.seatLocked(a.Target())
	card := *a.Params.Card
	hand, ok := target.hand.Without([]model.Card{card})
	if !ok {
		return model.GameActionResponse{}, model.Illegal("%s holds no %s", target.player.Name, card)
	}

	s.clearPendingLocked()
	target.hand = hand
	s.deck.Discard(card)
	s.markHandLocked(target.player.ID)
	s.systemLocked(fmt.Sprintf("%s's trap caught %s's %s", actor.player.Name, target.player.Name, card))
	s.finishTurnLocked()
	return model.GameActionResponse{Type: model.TrapKill, IsComplete: true}, nil
}

// expireLocked resolves an overdue pending action with its default outcome.
func (s *Session) expireLocked(now time.Time) bool {
	if s.pending == nil || now.Before(s.pending.Deadline) {
		return false
	}
	s.timeoutLocked()
	return true
}

// timeoutLocked: an undefended fox steals, an abandoned trap kills nothing.
func (s *Session) timeoutLocked() {
	p := s.pending
	s.clearPendingLocked()
	actor := s.seatLocked(p.Action.Actor.ID)
	target := s.seatLocked(p.Action.Target())

	switch p.Action.Type {
	case model.FoxSteal:
		s.systemLocked(fmt.Sprintf("%s did not defend in time; the fox took %s", target.player.Name, steal(actor, target)))
	case model.TrapKill:
		s.systemLocked(fmt.Sprintf("%s's trap snapped shut on nothing", actor.player.Name))
	}
	s.log.Info("pending action expired", "type", p.Action.Type)
	s.finishTurnLocked()
}

func (s *Session) setPendingLocked(a model.GameAction, grace time.Duration, last *model.GameActionResponse) {
	s.pending = &model.PendingAction{
		Action:       a,
		Deadline:     s.cfg.Now().Add(grace).UTC(),
		LastResponse: last,
	}
	s.armTimerLocked(s.pending.Deadline)
}

func (s *Session) clearPendingLocked() {
	s.pending = nil
	s.stopTimerLocked()
}

// armTimerLocked schedules deadline resolution. The token check drops
// callbacks from timers that were replaced or stopped after firing.
func (s *Session) armTimerLocked(deadline time.Time) {
	s.stopTimerLocked()
	s.timerToken++
	token := s.timerToken
	s.timer = time.AfterFunc(max(deadline.Sub(s.cfg.Now()), 0), func() { s.onDeadline(token) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerToken++
}

func (s *Session) onDeadline(token int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.timerToken || s.pending == nil {
		return
	}
	s.timeoutLocked()
	s.commitLocked()
}

func (s *Session) consumeLocked(st *seat, cards []model.Card) {
	if len(cards) == 0 {
		return
	}
	st.hand, _ = st.hand.Without(cards)
	s.deck.Discard(cards...)
	s.markHandLocked(st.player.ID)
}

// finishTurnLocked runs after an action fully resolves: win check, refill,
// then rotation to the next present player.
func (s *Session) finishTurnLocked() {
	if s.winnerLocked() != nil {
		s.endLocked("target reached")
		return
	}
	for _, st := range s.seats {
		if st.player.Left || len(st.hand) >= s.cfg.HandSize {
			continue
		}
		st.hand = append(st.hand, s.deck.Draw(s.cfg.HandSize-len(st.hand))...)
		s.markHandLocked(st.player.ID)
	}
	n := len(s.seats)
	for i := 1; i <= n; i++ {
		next := (s.current + i) % n
		if !s.seats[next].player.Left {
			s.current = next
			break
		}
	}
	s.announceTurnLocked()
}

// steal moves one egg, or failing that one chicken, from victim to thief.
func steal(thief, victim *seat) string {
	switch {
	case victim.player.Eggs > 0:
		victim.player.Eggs--
		if thief != nil {
			thief.player.Eggs++
		}
		return "an egg"
	case victim.player.Chickens > 0:
		victim.player.Chickens--
		if thief != nil {
			thief.player.Chickens++
		}
		return "a chicken"
	}
	return "nothing"
}
