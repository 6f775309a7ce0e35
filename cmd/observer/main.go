// Command observer follows one game as a player and logs its live
// projection. With -join it also takes a seat and readies up.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"example.com/morghi/internal/auth"
	"example.com/morghi/internal/client"
	"example.com/morghi/internal/model"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL = flag.String("url", envString("MORGHI_URL", "http://localhost:8080"), "authority base URL")
		gameID  = flag.String("game", "", "game id; empty creates a new game")
		token   = flag.String("token", os.Getenv("MORGHI_TOKEN"), "bearer token; empty mints one from JWT_SECRET")
		player  = flag.String("player", "", "player id to mint a token for")
		name    = flag.String("name", "", "display name")
		join    = flag.Bool("join", false, "join the game and mark ready")
		cache   = flag.String("cache", "", "file to keep the projection in between runs")
		jsonLog = flag.Bool("json", false, "log as JSON")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *jsonLog {
		log = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	if err := run(*baseURL, *gameID, *token, *player, *name, *join, *cache, log); err != nil {
		log.Error("observer stopped", "err", err)
		os.Exit(1)
	}
}

func run(baseURL, gameID, token, player, name string, join bool, cache string, log *slog.Logger) error {
	if token == "" {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" || player == "" {
			return fmt.Errorf("need -token, or -player with JWT_SECRET set")
		}
		var err error
		token, err = auth.NewService([]byte(secret)).SignWithName(player, name, 12*time.Hour)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
	}
	claims, err := auth.PeekClaims(token)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := client.NewAPI(baseURL, token, nil)
	if err != nil {
		return err
	}
	if gameID == "" {
		info, err := api.CreateGame(ctx, "")
		if err != nil {
			return fmt.Errorf("create game: %w", err)
		}
		gameID = info.ID
		log.Info("created game", "game", gameID, "name", info.Name)
	}
	remote := api.Game(gameID)

	if join {
		if err := remote.Join(ctx, name); err != nil {
			return fmt.Errorf("join: %w", err)
		}
		if err := remote.SetReady(ctx); err != nil {
			return fmt.Errorf("ready: %w", err)
		}
	}

	proj := client.NewProjection(claims.UserID)
	if cache != "" {
		if b, err := os.ReadFile(cache); err == nil && proj.Restore(b) {
			log.Info("restored cached projection", "file", cache)
		}
	}
	cancel := proj.Subscribe(func(u client.Update) { printUpdate(log, claims.UserID, u) })
	defer cancel()

	in := client.NewIngestor(remote, proj, client.IngestOptions{Log: log})
	err = in.Run(ctx)

	if cache != "" {
		if b, encErr := proj.Encode(); encErr == nil {
			if werr := os.WriteFile(cache, b, 0o600); werr != nil {
				log.Warn("write cache", "file", cache, "err", werr)
			}
		}
	}
	return err
}

func printUpdate(log *slog.Logger, me string, u client.Update) {
	g := u.Game
	board := make([]string, 0, len(g.Players))
	for _, p := range g.Players {
		mark := ""
		if g.CurrentPlayer != nil && *g.CurrentPlayer == p.ID {
			mark = "*"
		}
		if p.ID == me {
			mark += "(you)"
		}
		if p.Left {
			mark += "(left)"
		}
		board = append(board, fmt.Sprintf("%s%s e=%d c=%d", p.Name, mark, p.Eggs, p.Chickens))
	}
	attrs := []any{
		"cause", u.Cause,
		"state", g.State,
		"players", strings.Join(board, ", "),
	}
	if g.Pending != nil {
		attrs = append(attrs, "pending", g.Pending.Action.Type, "responder", g.Pending.Responder(), "deadline", g.Pending.Deadline)
	}
	if u.Hand != nil {
		attrs = append(attrs, "hand", u.Hand)
	}
	if n := len(g.Messages); n > 0 && u.Cause == model.NoticeMessage {
		m := g.Messages[n-1]
		sender := "system"
		if m.Sender != nil {
			sender = *m.Sender
		}
		attrs = append(attrs, "from", sender, "text", m.Text)
	}
	log.Info("game "+g.ID, attrs...)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
