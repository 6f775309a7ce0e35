package game

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"example.com/morghi/internal/model"
	"github.com/google/uuid"
)

// Persistence saves and loads session snapshots.
type Persistence interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, gameID string) (Snapshot, bool, error)
}

// SnapshotDeleter is implemented by persistence that can drop a snapshot.
// The store uses it once a finished game's result has been recorded.
type SnapshotDeleter interface {
	Delete(ctx context.Context, gameID string) error
}

// MessageSink archives chat and system lines.
type MessageSink interface {
	SaveMessage(ctx context.Context, gameID string, m model.Message) error
}

// ResultSink records finished games.
type ResultSink interface {
	SaveResult(ctx context.Context, r Result) error
}

type Options struct {
	Persist  Persistence // nil => memory only
	Notify   Notifier
	Messages MessageSink
	Results  ResultSink
	Log      *slog.Logger

	// SaveTimeout bounds each background write.
	SaveTimeout time.Duration
}

// Store owns every live session of this process. Sessions restored from
// Persistence are cached until Remove.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg  Config
	opts Options
	log  *slog.Logger
}

func NewStore(cfg Config, opts Options) *Store {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 3 * time.Second
	}
	return &Store{
		sessions: make(map[string]*Session),
		cfg:      cfg.withDefaults(),
		opts:     opts,
		log:      opts.Log,
	}
}

// Create opens a new lobby.
func (s *Store) Create(ctx context.Context, name string) (*Session, error) {
	if name == "" {
		name = "Coop"
	}
	sess := s.newSession(uuid.NewString(), name)

	sess.mu.Lock()
	snap := sess.snapshotLocked()
	sess.mu.Unlock()
	if s.opts.Persist != nil {
		if err := s.opts.Persist.Save(ctx, snap); err != nil {
			return nil, fmt.Errorf("save new game: %w", err)
		}
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.Info("game created", "game", sess.id, "name", name)
	return sess, nil
}

// Get returns a cached session.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// GetOrLoad returns a cached session, restoring it from Persistence if this
// process has not seen it yet.
func (s *Store) GetOrLoad(ctx context.Context, id string) (*Session, error) {
	if sess, ok := s.Get(id); ok {
		return sess, nil
	}
	if s.opts.Persist == nil {
		return nil, fmt.Errorf("%w: game %s", model.ErrNotFound, id)
	}

	snap, found, err := s.opts.Persist.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: game %s", model.ErrNotFound, id)
	}

	sess := s.newSession(id, snap.Name)
	sess.mu.Lock()
	sess.restoreLocked(snap)
	if sess.pending != nil {
		if !sess.expireLocked(sess.cfg.Now()) {
			sess.armTimerLocked(sess.pending.Deadline)
		} else {
			sess.commitLocked()
		}
	}
	sess.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// another request may have restored it first
	if existing, ok := s.sessions[id]; ok {
		sess.Close()
		return existing, nil
	}
	s.sessions[id] = sess
	s.log.Info("game restored", "game", id, "state", snap.State)
	return sess, nil
}

// List returns cached games, open lobbies first.
func (s *Store) List() []model.GameInfo {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	out := make([]model.GameInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].State == model.StateLobby, out[j].State == model.StateLobby
		if li != lj {
			return li
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Remove drops a session from the cache and stops its timer.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Close stops every session timer.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, id)
	}
}

func (s *Store) newSession(id, name string) *Session {
	sess := NewSession(id, name, s.cfg, s.opts.Notify, s.log)

	// hooks run under the session lock, so writes are bounded and detached
	// from the caller's context
	recorded := false // result saved; guarded by the session lock
	if p := s.opts.Persist; p != nil {
		sess.onPersist = func(snap Snapshot) {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
			defer cancel()
			if d, ok := p.(SnapshotDeleter); ok && recorded && snap.State == model.StateEnded {
				if err := d.Delete(ctx, id); err != nil {
					s.log.Warn("drop snapshot failed", "game", id, "err", err)
				}
				return
			}
			if err := p.Save(ctx, snap); err != nil {
				s.log.Warn("save snapshot failed", "game", id, "err", err)
			}
		}
	}
	if m := s.opts.Messages; m != nil {
		sess.onMessage = func(msg model.Message) {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
			defer cancel()
			if err := m.SaveMessage(ctx, id, msg); err != nil {
				s.log.Warn("archive message failed", "game", id, "err", err)
			}
		}
	}
	if r := s.opts.Results; r != nil {
		sess.onEnded = func(res Result) {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
			defer cancel()
			if err := r.SaveResult(ctx, res); err != nil {
				s.log.Warn("record result failed", "game", id, "err", err)
				return
			}
			recorded = true
		}
	}
	return sess
}
