package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"example.com/morghi/internal/game"
	"example.com/morghi/internal/model"
	"github.com/gorilla/websocket"
)

const (
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is an inbound WebSocket frame: {"type":"...","payload":{...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handleWS streams a game's notices to one player. It also accepts
// "action" and "message" frames. An action is acknowledged with an ack
// notice carrying the GameActionResponse; failures come back as error
// notices. Both go to this connection only.
func (s *GameServer) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	playerID, _ := player(r)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	log := s.log.With("game", sess.ID(), "player", playerID)

	sub := s.hub.Subscribe(sess.ID(), playerID)
	defer s.hub.Unsubscribe(sub)

	// the snapshot is written before any hub notice; notices queued since
	// Subscribe are never older than it
	initial := []model.Notice{model.NewNotice(model.NoticeState, sess.ID(), sess.Game())}
	if hand, err := sess.Hand(playerID); err == nil {
		initial = append(initial, model.NewNotice(model.NoticeHand, sess.ID(), model.HandPayload{Player: playerID, Hand: hand}))
	}
	for _, n := range initial {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(n); err != nil {
			_ = ws.Close()
			return
		}
	}

	direct := make(chan model.Notice, 8)
	done := make(chan struct{})

	// writer loop
	go func() {
		defer close(done)
		defer ws.Close()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			var n model.Notice
			select {
			case m, ok := <-sub.C:
				if !ok {
					if sub.Lagged() {
						log.Warn("subscriber fell behind, closing channel")
					}
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync"), time.Now().Add(writeWait))
					return
				}
				n = m
			case m := <-direct:
				n = m
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(n); err != nil {
				return
			}
		}
	}()

	// reader loop
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if reply := s.handleFrame(sess, playerID, data); reply != nil {
			select {
			case direct <- *reply:
			case <-done:
			}
		}
	}

	s.hub.Unsubscribe(sub)
	<-done
	log.Debug("event channel closed")
}

func (s *GameServer) handleFrame(sess *game.Session, playerID string, data []byte) *model.Notice {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errorNotice(sess.ID(), model.ErrorPayload{Code: model.CodeMalformedPayload, Message: "invalid json"})
	}

	var (
		err   error
		reply *model.Notice
	)
	switch env.Type {
	case "action":
		var a model.GameAction
		if err = model.Decode(env.Payload, &a); err == nil {
			var resp model.GameActionResponse
			if resp, err = applyAs(playerID, sess, a); err == nil {
				ack := model.NewNotice(model.NoticeAck, sess.ID(), resp).To(playerID)
				reply = &ack
			}
		}
	case "message":
		var req textRequest
		if err = model.Decode(env.Payload, &req); err == nil {
			_, err = sess.SendMessage(playerID, req.Text)
		}
	default:
		return errorNotice(sess.ID(), model.ErrorPayload{Code: model.CodeMalformedPayload, Message: "unknown frame type " + env.Type})
	}
	if err == nil {
		return reply
	}

	code := model.CodeOf(err)
	msg := err.Error()
	if code == model.CodeInternal {
		s.log.Error("ws frame failed", "game", sess.ID(), "err", err)
		msg = "internal error"
	}
	return errorNotice(sess.ID(), model.ErrorPayload{Code: code, Message: msg})
}

func errorNotice(gameID string, p model.ErrorPayload) *model.Notice {
	n := model.Notice{Type: model.NoticeError, GameID: gameID, Payload: mustJSON(p)}
	return &n
}
