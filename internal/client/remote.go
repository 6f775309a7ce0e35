package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/morghi/internal/model"
	"github.com/gorilla/websocket"
)

// API talks to a remote authority over HTTP. One API serves every game the
// token's player takes part in.
type API struct {
	base   *url.URL
	token  string
	http   *http.Client
	dialer *websocket.Dialer
}

func NewAPI(baseURL, token string, hc *http.Client) (*API, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s), got %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{
		base:   u,
		token:  token,
		http:   hc,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (c *API) ListGames(ctx context.Context) ([]model.GameInfo, error) {
	var out []model.GameInfo
	err := c.do(ctx, http.MethodGet, "/api/games", nil, &out)
	return out, err
}

func (c *API) CreateGame(ctx context.Context, name string) (model.GameInfo, error) {
	var out model.GameInfo
	err := c.do(ctx, http.MethodPost, "/api/games", map[string]string{"name": name}, &out)
	return out, err
}

// Game binds the API to one game.
func (c *API) Game(gameID string) *Remote {
	return &Remote{api: c, gameID: gameID}
}

// Remote is a SessionAuthority for one game on a remote authority.
type Remote struct {
	api    *API
	gameID string
}

func (r *Remote) path(suffix string) string {
	return "/api/games/" + url.PathEscape(r.gameID) + suffix
}

func (r *Remote) FetchGame(ctx context.Context) (model.Game, error) {
	var g model.Game
	err := r.api.do(ctx, http.MethodGet, r.path(""), nil, &g)
	return g, err
}

func (r *Remote) FetchHand(ctx context.Context) (model.Hand, error) {
	var h model.HandPayload
	if err := r.api.do(ctx, http.MethodGet, r.path("/hand"), nil, &h); err != nil {
		return nil, err
	}
	return h.Hand, nil
}

func (r *Remote) Execute(ctx context.Context, a model.GameAction) (model.GameActionResponse, error) {
	var resp model.GameActionResponse
	err := r.api.do(ctx, http.MethodPost, r.path("/actions"), a, &resp)
	return resp, err
}

func (r *Remote) Join(ctx context.Context, name string) error {
	return r.api.do(ctx, http.MethodPost, r.path("/join"), map[string]string{"name": name}, nil)
}

func (r *Remote) SetReady(ctx context.Context) error {
	return r.api.do(ctx, http.MethodPost, r.path("/ready"), nil, nil)
}

func (r *Remote) StartGame(ctx context.Context) error {
	return r.api.do(ctx, http.MethodPost, r.path("/start"), nil, nil)
}

func (r *Remote) Leave(ctx context.Context) error {
	return r.api.do(ctx, http.MethodPost, r.path("/leave"), nil, nil)
}

func (r *Remote) SendMessage(ctx context.Context, text string) error {
	return r.api.do(ctx, http.MethodPost, r.path("/messages"), map[string]string{"text": text}, nil)
}

// Subscribe opens the game's WebSocket event channel.
func (r *Remote) Subscribe(ctx context.Context) (Channel, error) {
	u := *r.api.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/ws/" + url.PathEscape(r.gameID)
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+r.api.token)

	conn, resp, err := r.api.dialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if apiErr := decodeError(resp); apiErr != nil {
				return nil, apiErr
			}
		}
		return nil, fmt.Errorf("%w: dial: %v", model.ErrChannelLoss, err)
	}
	return &wsChannel{conn: conn}, nil
}

func (c *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		if apiErr := decodeError(resp); apiErr != nil {
			return apiErr
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return model.Decode(data, out)
}

func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return nil
	}
	var e model.ErrorPayload
	if json.Unmarshal(data, &e) != nil || e.Code == "" {
		return nil
	}
	return model.ErrorFromCode(e.Code, e.Message)
}

type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Next(ctx context.Context) (model.Notice, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return model.Notice{}, ctx.Err()
		}
		return model.Notice{}, fmt.Errorf("%w: %v", model.ErrChannelLoss, err)
	}
	var n model.Notice
	if err := model.Decode(data, &n); err != nil {
		return model.Notice{}, err
	}
	return n, nil
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}
