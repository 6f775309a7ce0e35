package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"example.com/morghi/internal/game"
	"example.com/morghi/internal/model"
	"example.com/morghi/internal/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxBody = 64 << 10

// GameServer exposes a Store over REST and its notices over WebSocket.
type GameServer struct {
	store    *game.Store
	hub      *realtime.Hub
	verifier Verifier
	log      *slog.Logger
}

func NewGameServer(store *game.Store, hub *realtime.Hub, v Verifier, log *slog.Logger) *GameServer {
	if log == nil {
		log = slog.Default()
	}
	return &GameServer{store: store, hub: hub, verifier: v, log: log}
}

// RegisterRoutes mounts the API on r. Request timeouts apply to REST only;
// the event channel is long-lived.
func (s *GameServer) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.verifier))

		r.Route("/api/games", func(r chi.Router) {
			r.Use(middleware.Timeout(15 * time.Second))
			r.Get("/", s.handleList)
			r.Post("/", s.handleCreate)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGame)
				r.Get("/hand", s.handleHand)
				r.Post("/join", s.handleJoin)
				r.Post("/ready", s.handleReady)
				r.Post("/start", s.handleStart)
				r.Post("/leave", s.handleLeave)
				r.Post("/messages", s.handleMessage)
				r.Post("/actions", s.handleAction)
			})
		})

		r.Get("/ws/{id}", s.handleWS)
	})
}

// Handler returns a standalone router with the usual middleware stack.
func (s *GameServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Recoverer)
	s.RegisterRoutes(r)
	return r
}

// validGameID accepts the ids Store.Create hands out.
func validGameID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// session resolves {id} to a live session, writing the error response itself.
func (s *GameServer) session(w http.ResponseWriter, r *http.Request) (*game.Session, bool) {
	id := chi.URLParam(r, "id")
	if !validGameID(id) {
		writeError(w, http.StatusBadRequest, model.CodeMalformedPayload, "invalid game id")
		return nil, false
	}
	sess, err := s.store.GetOrLoad(r.Context(), id)
	if err != nil {
		writeErr(w, s.log, err)
		return nil, false
	}
	return sess, true
}

func player(r *http.Request) (id, name string) {
	c, ok := ClaimsFromContext(r.Context())
	if !ok {
		return "", ""
	}
	name = c.DisplayName
	if name == "" {
		name = c.UserID
	}
	return c.UserID, name
}

// decodeBody reads an optional JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedPayload, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return model.Decode(data, v)
}

type nameRequest struct {
	Name string `json:"name"`
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *GameServer) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *GameServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, s.log, err)
		return
	}
	sess, err := s.store.Create(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *GameServer) handleGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Game())
}

func (s *GameServer) handleHand(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, _ := player(r)
	hand, err := sess.Hand(id)
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, model.HandPayload{Player: id, Hand: hand})
}

func (s *GameServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, s.log, err)
		return
	}
	id, name := player(r)
	if req.Name != "" {
		name = req.Name
	}
	s.reply(w, sess.Join(id, name))
}

func (s *GameServer) handleReady(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, _ := player(r)
	s.reply(w, sess.SetReady(id))
}

func (s *GameServer) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, _ := player(r)
	s.reply(w, sess.Start(id))
}

func (s *GameServer) handleLeave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, _ := player(r)
	s.reply(w, sess.Leave(id))
}

func (s *GameServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req textRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, s.log, err)
		return
	}
	id, _ := player(r)
	m, err := sess.SendMessage(id, req.Text)
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *GameServer) handleAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.CodeMalformedPayload, "body too large")
		return
	}
	var a model.GameAction
	if err := model.Decode(data, &a); err != nil {
		writeErr(w, s.log, err)
		return
	}
	id, _ := player(r)
	resp, err := applyAs(id, sess, a)
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// applyAs runs an action on behalf of the authenticated player only.
func applyAs(id string, sess *game.Session, a model.GameAction) (model.GameActionResponse, error) {
	if a.Actor.ID != id {
		return model.GameActionResponse{}, model.Illegal("cannot act as %s", a.Actor.ID)
	}
	return sess.ApplyAction(a)
}

func (s *GameServer) reply(w http.ResponseWriter, err error) {
	if err != nil {
		writeErr(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
