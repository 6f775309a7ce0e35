package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"example.com/morghi/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	notices []model.Notice
}

func (r *recorder) Publish(n model.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) take() []model.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}

func (r *recorder) lastState(t *testing.T) model.Game {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notices) - 1; i >= 0; i-- {
		if r.notices[i].Type == model.NoticeState {
			var g model.Game
			require.NoError(t, json.Unmarshal(r.notices[i].Payload, &g))
			return g
		}
	}
	t.Fatalf("no state notice")
	return model.Game{}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// newPlaying starts a game between A and B with A to move.
func newPlaying(t *testing.T, cfg Config) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := NewSession("g1", "Coop", cfg, rec, nil)
	t.Cleanup(s.Close)

	require.NoError(t, s.Join("A", "Alice"))
	require.NoError(t, s.Join("B", "Bob"))
	require.NoError(t, s.SetReady("A"))
	require.NoError(t, s.SetReady("B"))
	require.NoError(t, s.Start("A"))
	rec.take()
	return s, rec
}

func setHand(s *Session, id string, cards ...model.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seatLocked(id).hand = cards
}

func setEggs(s *Session, id string, eggs, chickens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seatLocked(id)
	st.player.Eggs = eggs
	st.player.Chickens = chickens
}

func act(t model.ActionType, actor string, cards ...model.Card) model.GameAction {
	return model.GameAction{Type: t, Actor: model.Player{ID: actor}, Cards: cards}
}

func aimed(a model.GameAction, target string) model.GameAction {
	if a.Params == nil {
		a.Params = &model.ActionParams{}
	}
	a.Params.Target = &model.Player{ID: target}
	return a
}

func current(g model.Game) string {
	if p := model.CurrentPlayerOf(&g); p != nil {
		return p.ID
	}
	return ""
}

func TestSession_Lobby(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "join is idempotent and capacity bound",
			run: func(t *testing.T) {
				s := NewSession("g1", "Coop", Config{Capacity: 2}, nil, nil)
				require.NoError(t, s.Join("A", "Alice"))
				require.NoError(t, s.Join("A", "Alice"))
				require.NoError(t, s.Join("B", "Bob"))
				err := s.Join("C", "Carol")
				require.ErrorIs(t, err, model.ErrIllegalAction)

				g := s.Game()
				require.Len(t, g.Players, 2)
				assert.Equal(t, model.StateLobby, g.State)
				assert.Nil(t, g.CurrentPlayer)
			},
		},
		{
			name: "start needs two ready players",
			run: func(t *testing.T) {
				s := NewSession("g1", "Coop", Config{}, nil, nil)
				require.NoError(t, s.Join("A", "Alice"))
				require.NoError(t, s.SetReady("A"))
				require.ErrorIs(t, s.Start("A"), model.ErrIllegalAction)

				require.NoError(t, s.Join("B", "Bob"))
				require.ErrorIs(t, s.Start("A"), model.ErrIllegalAction)
				require.ErrorIs(t, s.Start("Z"), model.ErrNotFound)

				require.NoError(t, s.SetReady("B"))
				require.NoError(t, s.Start("B"))

				g := s.Game()
				assert.Equal(t, model.StatePlaying, g.State)
				assert.Equal(t, "A", current(g))
				for i, p := range g.Players {
					require.NotNil(t, p.Order)
					assert.Equal(t, i, *p.Order)
				}
				h, err := s.Hand("A")
				require.NoError(t, err)
				assert.Len(t, h, 4)
			},
		},
		{
			name: "leaving the lobby frees the seat",
			run: func(t *testing.T) {
				s := NewSession("g1", "Coop", Config{Capacity: 2}, nil, nil)
				require.NoError(t, s.Join("A", "Alice"))
				require.NoError(t, s.Join("B", "Bob"))
				require.NoError(t, s.Leave("B"))
				require.NoError(t, s.Join("C", "Carol"))
				assert.Equal(t, 2, s.Info().Players)
			},
		},
		{
			name: "messages are bounded",
			run: func(t *testing.T) {
				rec := &recorder{}
				s := NewSession("g1", "Coop", Config{}, rec, nil)
				require.NoError(t, s.Join("A", "Alice"))
				rec.take()

				m, err := s.SendMessage("A", "cluck")
				require.NoError(t, err)
				require.NotNil(t, m.Sender)
				assert.Equal(t, "A", *m.Sender)

				notices := rec.take()
				require.Len(t, notices, 1)
				assert.Equal(t, model.NoticeMessage, notices[0].Type)

				_, err = s.SendMessage("A", "   ")
				require.ErrorIs(t, err, model.ErrIllegalAction)
				long := make([]rune, MaxMessageLen+1)
				for i := range long {
					long[i] = 'é'
				}
				_, err = s.SendMessage("A", string(long))
				require.ErrorIs(t, err, model.ErrIllegalAction)
				_, err = s.SendMessage("Z", "hi")
				require.ErrorIs(t, err, model.ErrNotFound)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestSession_Actions(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "lay egg advances the turn once",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{})
				setHand(s, "A", model.Hen, model.Rooster, model.Nest, model.Fox)

				resp, err := s.ApplyAction(act(model.LayEgg, "A", model.Hen, model.Rooster, model.Nest))
				require.NoError(t, err)
				assert.True(t, resp.IsComplete)

				g := s.Game()
				assert.Equal(t, 1, g.Player("A").Eggs)
				assert.Equal(t, "B", current(g))
				h, _ := s.Hand("A")
				assert.Len(t, h, 4, "refilled")
				assert.Contains(t, h, model.Fox)
			},
		},
		{
			name: "hatch needs an egg",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{})
				setHand(s, "A", model.Hen, model.Hen, model.Nest, model.Nest)

				_, err := s.ApplyAction(act(model.HatchEgg, "A", model.Hen, model.Hen))
				require.ErrorIs(t, err, model.ErrIllegalAction)
				assert.Equal(t, "A", current(s.Game()))

				setEggs(s, "A", 1, 0)
				_, err = s.ApplyAction(act(model.HatchEgg, "A", model.Hen, model.Hen))
				require.NoError(t, err)
				g := s.Game()
				p := g.Player("A")
				assert.Equal(t, 0, p.Eggs)
				assert.Equal(t, 1, p.Chickens)
			},
		},
		{
			name: "rejected actions do not mutate",
			run: func(t *testing.T) {
				s, rec := newPlaying(t, Config{})
				setHand(s, "A", model.Hen, model.Rooster, model.Nest, model.Fox)
				setHand(s, "B", model.Hen, model.Rooster, model.Nest, model.Fox)
				before := s.Game()

				_, err := s.ApplyAction(act(model.LayEgg, "B", model.Hen, model.Rooster, model.Nest))
				require.ErrorIs(t, err, model.ErrIllegalAction, "not B's turn")
				_, err = s.ApplyAction(act(model.LayEgg, "A", model.Hen, model.Hen, model.Rooster, model.Nest))
				require.ErrorIs(t, err, model.ErrIllegalAction, "cards not in hand")
				_, err = s.ApplyAction(act(model.LayEgg, "A", model.Hen, model.Nest))
				require.ErrorIs(t, err, model.ErrIllegalAction, "missing rooster")
				_, err = s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "A"))
				require.ErrorIs(t, err, model.ErrIllegalAction, "self target")
				_, err = s.ApplyAction(act(model.LayEgg, "Z", model.Hen, model.Rooster, model.Nest))
				require.ErrorIs(t, err, model.ErrIllegalAction, "stranger")

				assert.Equal(t, before, s.Game())
				assert.Empty(t, rec.take())
			},
		},
		{
			name: "snake eats at most what the target has",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{})
				setHand(s, "A", model.Snake, model.Nest, model.Nest, model.Nest)
				setEggs(s, "B", 1, 0)

				a := aimed(act(model.SnakeEat, "A", model.Snake), "B")
				a.Params.EggCount = 2
				resp, err := s.ApplyAction(a)
				require.NoError(t, err)
				assert.True(t, resp.IsComplete)

				g := s.Game()
				assert.Equal(t, 0, g.Player("B").Eggs)
				assert.Nil(t, g.Pending)
				assert.Equal(t, "B", current(g))
			},
		},
		{
			name: "skip discards the given cards",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{})
				setHand(s, "A", model.Trap, model.Trap, model.Trap, model.Trap)

				_, err := s.ApplyAction(act(model.SkipTurn, "A", model.Trap, model.Trap))
				require.NoError(t, err)
				h, _ := s.Hand("A")
				assert.Len(t, h, 4)
				assert.Equal(t, "B", current(s.Game()))
			},
		},
		{
			name: "hand notices go to their owner only",
			run: func(t *testing.T) {
				s, rec := newPlaying(t, Config{})
				setHand(s, "A", model.Hen, model.Rooster, model.Nest, model.Fox)

				_, err := s.ApplyAction(act(model.LayEgg, "A", model.Hen, model.Rooster, model.Nest))
				require.NoError(t, err)

				var hands []model.Notice
				for _, n := range rec.take() {
					if n.Type == model.NoticeHand {
						hands = append(hands, n)
					}
				}
				require.Len(t, hands, 1)
				assert.Equal(t, "A", hands[0].Recipient)
				var hp model.HandPayload
				require.NoError(t, json.Unmarshal(hands[0].Payload, &hp))
				assert.Equal(t, "A", hp.Player)
				assert.Len(t, hp.Hand, 4)
			},
		},
		{
			name: "chicken target ends the game",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{ChickensToWin: 1})
				setHand(s, "A", model.Hen, model.Hen, model.Nest, model.Nest)
				setEggs(s, "A", 1, 0)

				_, err := s.ApplyAction(act(model.HatchEgg, "A", model.Hen, model.Hen))
				require.NoError(t, err)
				g := s.Game()
				assert.Equal(t, model.StateEnded, g.State)
				assert.Nil(t, g.CurrentPlayer)

				_, err = s.ApplyAction(act(model.SkipTurn, "B"))
				require.ErrorIs(t, err, model.ErrIllegalAction)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestSession_FoxSteal(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "two roosters void the steal",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{FoxGrace: time.Hour})
				setHand(s, "A", model.Fox, model.Nest, model.Nest, model.Nest)
				setHand(s, "B", model.Rooster, model.Rooster, model.Nest, model.Nest)
				setEggs(s, "B", 2, 0)

				resp, err := s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "B"))
				require.NoError(t, err)
				assert.True(t, resp.IsAwaitingTarget)
				assert.False(t, resp.IsComplete)

				g := s.Game()
				require.NotNil(t, g.Pending)
				assert.Equal(t, model.FoxSteal, g.Pending.Action.Type)
				assert.Nil(t, g.Pending.LastResponse)
				assert.Equal(t, "A", current(g))

				_, err = s.ApplyAction(act(model.SkipTurn, "A"))
				require.ErrorIs(t, err, model.ErrIllegalAction, "blocked while pending")

				resp, err = s.ApplyAction(act(model.DefendFoxSteal, "B", model.Rooster, model.Rooster))
				require.NoError(t, err)
				assert.True(t, resp.IsComplete)

				g = s.Game()
				assert.Nil(t, g.Pending)
				assert.Equal(t, "B", current(g))
				assert.Equal(t, 2, g.Player("B").Eggs)
				assert.Equal(t, 0, g.Player("A").Eggs)
			},
		},
		{
			name: "a failed defence lets the fox steal",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{FoxGrace: time.Hour})
				setHand(s, "A", model.Fox, model.Nest, model.Nest, model.Nest)
				setHand(s, "B", model.Rooster, model.Hen, model.Nest, model.Nest)
				setEggs(s, "B", 0, 1)

				_, err := s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "B"))
				require.NoError(t, err)
				_, err = s.ApplyAction(act(model.DefendFoxSteal, "B", model.Rooster, model.Hen))
				require.NoError(t, err)

				g := s.Game()
				assert.Equal(t, 0, g.Player("B").Chickens)
				assert.Equal(t, 1, g.Player("A").Chickens)
				assert.Equal(t, "B", current(g))
				h, _ := s.Hand("B")
				assert.Equal(t, 1, h.Count(model.Hen), "failed defence keeps its cards")
			},
		},
		{
			name: "defend without a pending steal is a protocol violation",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{})
				setHand(s, "B", model.Rooster, model.Rooster, model.Nest, model.Nest)
				_, err := s.ApplyAction(act(model.DefendFoxSteal, "B", model.Rooster, model.Rooster))
				require.ErrorIs(t, err, model.ErrProtocolViolation)
			},
		},
		{
			name: "only the target may defend",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{FoxGrace: time.Hour})
				setHand(s, "A", model.Fox, model.Rooster, model.Rooster, model.Nest)
				_, err := s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "B"))
				require.NoError(t, err)
				_, err = s.ApplyAction(act(model.DefendFoxSteal, "A", model.Rooster, model.Rooster))
				require.ErrorIs(t, err, model.ErrProtocolViolation)
			},
		},
		{
			name: "expire pending is idempotent",
			run: func(t *testing.T) {
				clock := newClock()
				s, _ := newPlaying(t, Config{FoxGrace: time.Hour, Now: clock.Now})
				setHand(s, "A", model.Fox, model.Nest, model.Nest, model.Nest)
				setHand(s, "B", model.Rooster, model.Rooster, model.Nest, model.Nest)
				setEggs(s, "B", 1, 0)

				_, err := s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "B"))
				require.NoError(t, err)

				assert.False(t, s.ExpirePending(clock.Now()), "deadline not reached")
				now := clock.Advance(time.Hour)
				assert.True(t, s.ExpirePending(now))
				assert.False(t, s.ExpirePending(now))

				g := s.Game()
				assert.Nil(t, g.Pending)
				assert.Equal(t, "B", current(g))
				assert.Equal(t, 0, g.Player("B").Eggs)
				assert.Equal(t, 1, g.Player("A").Eggs)

				_, err = s.ApplyAction(act(model.DefendFoxSteal, "B", model.Rooster, model.Rooster))
				require.ErrorIs(t, err, model.ErrProtocolViolation, "too late")
			},
		},
		{
			name: "a late defence loses to lazy expiry",
			run: func(t *testing.T) {
				clock := newClock()
				s, _ := newPlaying(t, Config{FoxGrace: time.Hour, Now: clock.Now})
				setHand(s, "A", model.Fox, model.Nest, model.Nest, model.Nest)
				setHand(s, "B", model.Rooster, model.Rooster, model.Nest, model.Nest)
				setEggs(s, "B", 1, 0)

				_, err := s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "B"))
				require.NoError(t, err)
				clock.Advance(2 * time.Hour)

				_, err = s.ApplyAction(act(model.DefendFoxSteal, "B", model.Rooster, model.Rooster))
				require.ErrorIs(t, err, model.ErrProtocolViolation)

				g := s.Game()
				assert.Nil(t, g.Pending)
				assert.Equal(t, 0, g.Player("B").Eggs)
			},
		},
		{
			name: "the timer resolves an undefended steal",
			run: func(t *testing.T) {
				s, rec := newPlaying(t, Config{FoxGrace: 20 * time.Millisecond})
				setHand(s, "A", model.Fox, model.Nest, model.Nest, model.Nest)
				setEggs(s, "B", 1, 0)

				_, err := s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "B"))
				require.NoError(t, err)

				require.Eventually(t, func() bool {
					return s.Game().Pending == nil
				}, 2*time.Second, 5*time.Millisecond)

				g := rec.lastState(t)
				assert.Nil(t, g.Pending)
				assert.Equal(t, "B", current(g))
				assert.Equal(t, 0, g.Player("B").Eggs)
				assert.Equal(t, 1, g.Player("A").Eggs)
			},
		},
		{
			name: "a stale timer does nothing",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{FoxGrace: time.Hour})
				setHand(s, "A", model.Fox, model.Nest, model.Nest, model.Nest)
				_, err := s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "B"))
				require.NoError(t, err)

				s.mu.Lock()
				stale := s.timerToken - 1
				s.mu.Unlock()
				s.onDeadline(stale)

				assert.NotNil(t, s.Game().Pending)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func trapInit(target string) model.GameAction {
	return aimed(act(model.TrapKill, "A", model.Trap), target)
}

func trapFinish(target string, card model.Card) model.GameAction {
	a := aimed(act(model.TrapKill, "A"), target)
	a.Params.Finish = true
	a.Params.Card = &card
	return a
}

func TestSession_TrapKill(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "init exposes the hand to the actor only",
			run: func(t *testing.T) {
				s, rec := newPlaying(t, Config{TrapGrace: time.Hour})
				setHand(s, "A", model.Trap, model.Nest, model.Nest, model.Nest)
				setHand(s, "B", model.Fox, model.Hen, model.Nest, model.Nest)

				resp, err := s.ApplyAction(trapInit("B"))
				require.NoError(t, err)
				assert.True(t, resp.IsAwaitingActor)
				assert.False(t, resp.IsComplete)
				require.NotNil(t, resp.Params)
				assert.ElementsMatch(t, []model.Card{model.Fox, model.Hen, model.Nest, model.Nest}, resp.Params.TargetHand)

				g := rec.lastState(t)
				require.NotNil(t, g.Pending)
				require.NotNil(t, g.Pending.LastResponse)
				assert.True(t, g.Pending.LastResponse.IsAwaitingActor)
				assert.Nil(t, g.Pending.LastResponse.Params)

				s.mu.Lock()
				snap := s.snapshotLocked()
				s.mu.Unlock()
				require.NotNil(t, snap.Pending)
				assert.Nil(t, snap.Pending.LastResponse.Params)

				_, err = s.ApplyAction(act(model.SkipTurn, "B"))
				require.ErrorIs(t, err, model.ErrIllegalAction)
			},
		},
		{
			name: "finish kills the chosen animal",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{TrapGrace: time.Hour})
				setHand(s, "A", model.Trap, model.Nest, model.Nest, model.Nest)
				setHand(s, "B", model.Fox, model.Nest, model.Nest, model.Nest)

				_, err := s.ApplyAction(trapInit("B"))
				require.NoError(t, err)

				_, err = s.ApplyAction(trapFinish("B", model.Hen))
				require.ErrorIs(t, err, model.ErrIllegalAction, "no hen to kill")

				resp, err := s.ApplyAction(trapFinish("B", model.Fox))
				require.NoError(t, err)
				assert.True(t, resp.IsComplete)

				g := s.Game()
				assert.Nil(t, g.Pending)
				assert.Equal(t, "B", current(g))

				_, err = s.ApplyAction(trapFinish("B", model.Fox))
				require.ErrorIs(t, err, model.ErrProtocolViolation, "repeated finish")
			},
		},
		{
			name: "finish without init is a protocol violation",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{})
				setHand(s, "B", model.Fox, model.Nest, model.Nest, model.Nest)
				_, err := s.ApplyAction(trapFinish("B", model.Fox))
				require.ErrorIs(t, err, model.ErrProtocolViolation)
			},
		},
		{
			name: "finish must name an animal",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{})
				_, err := s.ApplyAction(trapFinish("B", model.Nest))
				require.ErrorIs(t, err, model.ErrIllegalAction)
			},
		},
		{
			name: "a trap on a hand without animals completes at once",
			run: func(t *testing.T) {
				s, _ := newPlaying(t, Config{})
				setHand(s, "A", model.Trap, model.Nest, model.Nest, model.Nest)
				setHand(s, "B", model.Nest, model.Nest, model.Trap, model.Trap)

				resp, err := s.ApplyAction(trapInit("B"))
				require.NoError(t, err)
				assert.True(t, resp.IsComplete)
				assert.Nil(t, s.Game().Pending)
				assert.Equal(t, "B", current(s.Game()))
			},
		},
		{
			name: "an abandoned trap expires harmlessly",
			run: func(t *testing.T) {
				clock := newClock()
				s, _ := newPlaying(t, Config{TrapGrace: time.Minute, Now: clock.Now})
				setHand(s, "A", model.Trap, model.Nest, model.Nest, model.Nest)
				setHand(s, "B", model.Fox, model.Nest, model.Nest, model.Nest)

				_, err := s.ApplyAction(trapInit("B"))
				require.NoError(t, err)
				assert.True(t, s.ExpirePending(clock.Advance(time.Minute)))

				h, _ := s.Hand("B")
				assert.Contains(t, h, model.Fox)
				assert.Equal(t, "B", current(s.Game()))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestSession_Leave(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "last player standing wins",
			run: func(t *testing.T) {
				results := make(chan Result, 1)
				s, _ := newPlaying(t, Config{})
				s.onEnded = func(r Result) { results <- r }

				require.NoError(t, s.Leave("B"))
				g := s.Game()
				assert.Equal(t, model.StateEnded, g.State)
				assert.True(t, g.Player("B").Left)
				assert.Nil(t, g.CurrentPlayer)

				r := <-results
				assert.Equal(t, "A", r.Winner)
				require.ErrorIs(t, s.Leave("B"), model.ErrNotFound)
			},
		},
		{
			name: "turn skips players who left",
			run: func(t *testing.T) {
				rec := &recorder{}
				s := NewSession("g1", "Coop", Config{}, rec, nil)
				t.Cleanup(s.Close)
				for _, id := range []string{"A", "B", "C"} {
					require.NoError(t, s.Join(id, id))
					require.NoError(t, s.SetReady(id))
				}
				require.NoError(t, s.Start("A"))

				require.NoError(t, s.Leave("B"))
				assert.Equal(t, "A", current(s.Game()))

				_, err := s.ApplyAction(act(model.SkipTurn, "A"))
				require.NoError(t, err)
				assert.Equal(t, "C", current(s.Game()))

				_, err = s.ApplyAction(act(model.SkipTurn, "B"))
				require.ErrorIs(t, err, model.ErrIllegalAction)
			},
		},
		{
			name: "a fleeing fox target still loses the egg",
			run: func(t *testing.T) {
				rec := &recorder{}
				s := NewSession("g1", "Coop", Config{FoxGrace: time.Hour}, rec, nil)
				t.Cleanup(s.Close)
				for _, id := range []string{"A", "B", "C"} {
					require.NoError(t, s.Join(id, id))
					require.NoError(t, s.SetReady(id))
				}
				require.NoError(t, s.Start("A"))
				setHand(s, "A", model.Fox, model.Nest, model.Nest, model.Nest)
				setEggs(s, "B", 1, 0)

				_, err := s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "B"))
				require.NoError(t, err)
				require.NoError(t, s.Leave("B"))

				g := s.Game()
				assert.Nil(t, g.Pending)
				assert.Equal(t, 1, g.Player("A").Eggs)
				assert.Equal(t, "C", current(g))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestSession_ConcurrentDefendAndExpire(t *testing.T) {
	clock := newClock()
	s, _ := newPlaying(t, Config{FoxGrace: time.Minute, Now: clock.Now})
	setHand(s, "A", model.Fox, model.Nest, model.Nest, model.Nest)
	setHand(s, "B", model.Rooster, model.Rooster, model.Nest, model.Nest)
	setEggs(s, "B", 1, 0)

	_, err := s.ApplyAction(aimed(act(model.FoxSteal, "A", model.Fox), "B"))
	require.NoError(t, err)
	now := clock.Now().Add(time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var defended, expired int
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.ApplyAction(act(model.DefendFoxSteal, "B", model.Rooster, model.Rooster)); err == nil {
				mu.Lock()
				defended++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, model.ErrProtocolViolation)
			}
		}()
		go func() {
			defer wg.Done()
			if s.ExpirePending(now) {
				mu.Lock()
				expired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, defended+expired, "exactly one resolution")
	g := s.Game()
	assert.Nil(t, g.Pending)
	assert.Equal(t, "B", current(g))
}
