package game

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"example.com/morghi/internal/model"
	"github.com/google/uuid"
)

// MaxCapacity is the largest table the deck can deal for.
const MaxCapacity = 8

// MaxMessageLen bounds chat messages, in runes.
const MaxMessageLen = 500

type Config struct {
	Capacity      int           // players per game, 2..MaxCapacity
	HandSize      int           // cards each player holds after a turn
	FoxGrace      time.Duration // how long a fox target has to defend
	TrapGrace     time.Duration // how long a trap actor has to pick a card
	ChickensToWin int           // 0 => no chicken win rule

	Now     func() time.Time   // nil => time.Now
	Shuffle func([]model.Card) // nil => math/rand
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = 4
	}
	if c.Capacity > MaxCapacity {
		c.Capacity = MaxCapacity
	}
	if c.HandSize <= 0 {
		c.HandSize = 4
	}
	if c.FoxGrace <= 0 {
		c.FoxGrace = 15 * time.Second
	}
	if c.TrapGrace <= 0 {
		c.TrapGrace = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Notifier receives every notice a session emits, in commit order.
type Notifier interface {
	Publish(n model.Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(model.Notice)

func (f NotifierFunc) Publish(n model.Notice) { f(n) }

type seat struct {
	player model.Player
	hand   model.Hand
}

// Session is the authoritative state of one game. Every exported method
// takes mu, so all mutations of a game are serialized.
type Session struct {
	id   string
	name string
	cfg  Config
	log  *slog.Logger

	mu sync.Mutex

	state    model.GameState
	seats    []*seat // join order in lobby, turn order once playing
	messages []model.Message
	current  int // index into seats, -1 unless playing
	pending  *model.PendingAction
	deck     *Deck

	timer      *time.Timer
	timerToken int64

	dirtyHands map[string]struct{}

	notify    Notifier
	onPersist func(Snapshot)
	onMessage func(model.Message)
	onEnded   func(Result)
}

// Result is reported once when a game ends.
type Result struct {
	GameID  string
	Winner  string // "" if nobody won
	Players []model.Player
	EndedAt time.Time
}

func NewSession(id, name string, cfg Config, notify Notifier, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Session{
		id:         id,
		name:       name,
		cfg:        cfg,
		log:        log.With("game", id),
		state:      model.StateLobby,
		current:    -1,
		deck:       NewDeck(cfg.Shuffle),
		dirtyHands: make(map[string]struct{}),
		notify:     notify,
	}
}

func (s *Session) ID() string { return s.id }

// Join adds a player to the lobby. Joining twice is a no-op.
func (s *Session) Join(id, name string) error {
	name = strings.TrimSpace(name)
	if id == "" {
		return model.Illegal("player id is empty")
	}
	if name == "" {
		name = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seatLocked(id) != nil {
		return nil
	}
	if s.state != model.StateLobby {
		return model.Illegal("game already %s", s.state)
	}
	if len(s.seats) >= s.cfg.Capacity {
		return model.Illegal("game is full (%d players)", s.cfg.Capacity)
	}

	s.seats = append(s.seats, &seat{player: model.Player{ID: id, Name: name}})
	s.systemLocked(fmt.Sprintf("%s joined the coop", name))
	s.commitLocked()
	return nil
}

// SetReady marks a lobby player as ready.
func (s *Session) SetReady(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.seatLocked(id)
	if st == nil {
		return fmt.Errorf("%w: player %s", model.ErrNotFound, id)
	}
	if s.state != model.StateLobby {
		return model.Illegal("ready is only possible in the lobby")
	}
	if st.player.Ready {
		return nil
	}
	st.player.Ready = true
	s.publishLocked(model.NewNotice(model.NoticeReady, s.id, model.PlayerRef{Player: id}))
	s.commitLocked()
	return nil
}

// Start deals hands and opens the first turn. Any member may trigger it
// once every present player is ready.
func (s *Session) Start(by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seatLocked(by) == nil {
		return fmt.Errorf("%w: player %s", model.ErrNotFound, by)
	}
	if s.state != model.StateLobby {
		return model.Illegal("game already %s", s.state)
	}
	if len(s.seats) < 2 {
		return model.Illegal("need at least 2 players, have %d", len(s.seats))
	}
	for _, st := range s.seats {
		if !st.player.Ready {
			return model.Illegal("%s is not ready", st.player.Name)
		}
	}

	for i, st := range s.seats {
		order := i
		st.player.Order = &order
		st.hand = s.deck.Draw(s.cfg.HandSize)
		s.markHandLocked(st.player.ID)
	}
	s.state = model.StatePlaying
	s.current = 0
	s.log.Info("game started", "players", len(s.seats))

	s.systemLocked("All players ready, the game begins")
	s.announceTurnLocked()
	s.commitLocked()
	return nil
}

// Leave removes a player from the lobby, or marks them as left mid-game.
func (s *Session) Leave(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 || s.seats[idx].player.Left {
		return fmt.Errorf("%w: player %s", model.ErrNotFound, id)
	}
	st := s.seats[idx]

	switch s.state {
	case model.StateLobby:
		s.seats = append(s.seats[:idx], s.seats[idx+1:]...)
		s.systemLocked(fmt.Sprintf("%s left the coop", st.player.Name))
	case model.StateEnded:
		st.player.Left = true
	case model.StatePlaying:
		s.expireLocked(s.cfg.Now())
		wasCurrent := s.current == idx

		st.player.Left = true
		s.deck.Discard(st.hand...)
		st.hand = nil
		s.markHandLocked(id)
		s.systemLocked(fmt.Sprintf("%s left the game", st.player.Name))

		resolved := s.resolveForLeaverLocked(id)
		if s.state == model.StatePlaying && s.presentLocked() <= 1 {
			s.endLocked("everyone else left")
		} else if (wasCurrent || resolved) && s.state == model.StatePlaying {
			s.finishTurnLocked()
		}
	}

	s.commitLocked()
	return nil
}

// resolveForLeaverLocked settles a pending action the leaver takes part in.
// A fox aimed at the leaver still steals; anything else is dropped.
func (s *Session) resolveForLeaverLocked(id string) bool {
	p := s.pending
	if p == nil {
		return false
	}
	switch {
	case p.Action.Type == model.FoxSteal && p.Action.Target() == id:
		s.clearPendingLocked()
		thief := s.seatLocked(p.Action.Actor.ID)
		victim := s.seatLocked(id)
		s.systemLocked(fmt.Sprintf("%s fled; the fox takes %s", victim.player.Name, steal(thief, victim)))
		return true
	case p.Action.Actor.ID == id || p.Action.Target() == id:
		s.clearPendingLocked()
		s.systemLocked(fmt.Sprintf("%s was abandoned", p.Action.Type))
		return true
	}
	return false
}

// SendMessage appends a chat line from a present member.
func (s *Session) SendMessage(sender, text string) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, model.Illegal("message is empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return model.Message{}, model.Illegal("message longer than %d characters", MaxMessageLen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.seatLocked(sender)
	if st == nil || st.player.Left {
		return model.Message{}, fmt.Errorf("%w: player %s", model.ErrNotFound, sender)
	}
	id := sender
	m := s.appendMessageLocked(&id, text)
	s.persistLocked()
	return m, nil
}

// Game returns the public view of the session.
func (s *Session) Game() model.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameLocked()
}

// Hand returns a player's private hand.
func (s *Session) Hand(id string) (model.Hand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seatLocked(id)
	if st == nil {
		return nil, fmt.Errorf("%w: player %s", model.ErrNotFound, id)
	}
	return st.hand.Clone(), nil
}

func (s *Session) Info() model.GameInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.GameInfo{
		ID:       s.id,
		Name:     s.name,
		State:    s.state,
		Players:  s.presentLocked(),
		Capacity: s.cfg.Capacity,
	}
}

// Close stops the deadline timer. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

func (s *Session) gameLocked() model.Game {
	g := model.Game{
		ID:       s.id,
		Name:     s.name,
		State:    s.state,
		Players:  make([]model.Player, 0, len(s.seats)),
		Messages: append(make([]model.Message, 0, len(s.messages)), s.messages...),
	}
	for _, st := range s.seats {
		g.Players = append(g.Players, st.player)
	}
	if s.state == model.StatePlaying && s.current >= 0 {
		id := s.seats[s.current].player.ID
		g.CurrentPlayer = &id
	}
	if s.pending != nil {
		p := *s.pending
		if p.LastResponse != nil {
			r := *p.LastResponse
			r.Params = nil // a trap exposure is for the actor's eyes only
			p.LastResponse = &r
		}
		g.Pending = &p
	}
	return *g.Clone()
}

func (s *Session) seatLocked(id string) *seat {
	if i := s.indexLocked(id); i >= 0 {
		return s.seats[i]
	}
	return nil
}

func (s *Session) indexLocked(id string) int {
	for i, st := range s.seats {
		if st.player.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) presentLocked() int {
	n := 0
	for _, st := range s.seats {
		if !st.player.Left {
			n++
		}
	}
	return n
}

func (s *Session) currentIDLocked() string {
	if s.current < 0 || s.current >= len(s.seats) {
		return ""
	}
	return s.seats[s.current].player.ID
}

func (s *Session) systemLocked(text string) {
	s.appendMessageLocked(nil, text)
}

func (s *Session) appendMessageLocked(sender *string, text string) model.Message {
	m := model.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		CreatedAt: s.cfg.Now().UTC(),
	}
	s.messages = append(s.messages, m)
	s.publishLocked(model.NewNotice(model.NoticeMessage, s.id, m))
	if s.onMessage != nil {
		s.onMessage(m)
	}
	return m
}

func (s *Session) markHandLocked(id string) {
	s.dirtyHands[id] = struct{}{}
}

func (s *Session) announceTurnLocked() {
	if id := s.currentIDLocked(); id != "" {
		s.publishLocked(model.NewNotice(model.NoticeTurn, s.id, model.PlayerRef{Player: id}))
	}
}

func (s *Session) publishLocked(n model.Notice) {
	if s.notify != nil {
		s.notify.Publish(n)
	}
}

// commitLocked ends a mutation: it broadcasts the new snapshot, sends each
// changed hand to its owner only, and persists.
func (s *Session) commitLocked() {
	s.publishLocked(model.NewNotice(model.NoticeState, s.id, s.gameLocked()))
	for _, st := range s.seats {
		if _, ok := s.dirtyHands[st.player.ID]; !ok {
			continue
		}
		payload := model.HandPayload{Player: st.player.ID, Hand: st.hand.Clone()}
		s.publishLocked(model.NewNotice(model.NoticeHand, s.id, payload).To(st.player.ID))
	}
	clear(s.dirtyHands)
	s.persistLocked()
}

func (s *Session) persistLocked() {
	if s.onPersist == nil {
		return
	}
	s.onPersist(s.snapshotLocked())
}

func (s *Session) endLocked(reason string) {
	s.clearPendingLocked()
	s.state = model.StateEnded
	s.current = -1

	winner := s.winnerLocked()
	if winner != nil {
		s.systemLocked(fmt.Sprintf("Game over: %s wins (%s)", winner.player.Name, reason))
	} else {
		s.systemLocked(fmt.Sprintf("Game over (%s)", reason))
	}
	s.log.Info("game ended", "reason", reason)

	if s.onEnded != nil {
		r := Result{GameID: s.id, EndedAt: s.cfg.Now().UTC()}
		if winner != nil {
			r.Winner = winner.player.ID
		}
		for _, st := range s.seats {
			r.Players = append(r.Players, st.player)
		}
		s.onEnded(r)
	}
}

// winnerLocked is the last present player, or whoever reached the chicken
// target first.
func (s *Session) winnerLocked() *seat {
	var last *seat
	present := 0
	for _, st := range s.seats {
		if st.player.Left {
			continue
		}
		present++
		last = st
		if s.cfg.ChickensToWin > 0 && st.player.Chickens >= s.cfg.ChickensToWin {
			return st
		}
	}
	if present == 1 {
		return last
	}
	return nil
}
