// Command autoplayer joins the arena as a client and plays the first legal move until the
// game ends or the ply limit is reached, then resigns.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/rules"
	"github.com/park285/chess-arena/internal/wsclient"
	"github.com/park285/chess-arena/pkg/chessdto"
)

func main() {
	wsURL := getenv("ARENA_WS_URL", "ws://localhost:8080/ws")
	playerID := getenv("AUTOPLAYER_PLAYER_ID", "autoplayer-"+strconv.FormatInt(time.Now().Unix(), 36))
	username := getenv("AUTOPLAYER_USERNAME", "autoplayer")
	maxPlies, _ := strconv.Atoi(getenv("AUTOPLAYER_MAX_PLIES", "40"))

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L().With(zap.String("player_id", playerID))

	client := wsclient.New(wsURL, wsclient.WithReconnect(3, time.Second))
	client.OnStateChange(func(s wsclient.State) { logger.Info("autoplayer_ws_state", zap.String("state", string(s))) })

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	done := make(chan struct{})
	p := &autoplayer{client: client, log: logger, maxPlies: maxPlies, done: done}
	client.OnMessage(func(env chessdto.Envelope) { p.handle(ctx, env) })

	if err := client.Connect(ctx); err != nil {
		logger.Fatal("autoplayer_connect_failed", zap.Error(err))
	}
	if err := client.Send(ctx, chessdto.EventFindGame, chessdto.FindGameRequest{ID: playerID, Username: username, Rating: 1200}); err != nil {
		logger.Fatal("autoplayer_find_game_failed", zap.Error(err))
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
	cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = client.Close(cctx)
}

// autoplayer is only touched from the client's single listen goroutine.
type autoplayer struct {
	client   *wsclient.Client
	log      *zap.Logger
	maxPlies int
	done     chan struct{}

	gameID string
	color  string
	plies  int
	over   bool
}

func (p *autoplayer) handle(ctx context.Context, env chessdto.Envelope) {
	switch env.Type {
	case chessdto.EventWaitingForOpponent:
		p.log.Info("autoplayer_waiting")
	case chessdto.EventGameFound, chessdto.EventGameRejoined:
		var snap chessdto.GameSnapshot
		if err := env.Decode(&snap); err != nil {
			p.log.Warn("autoplayer_decode_failed", zap.String("type", env.Type), zap.Error(err))
			return
		}
		p.gameID, p.color = snap.GameID, snap.Color
		p.log.Info("autoplayer_game_found", zap.String("game_id", snap.GameID), zap.String("color", snap.Color))
		p.maybeMove(ctx, snap.FEN, snap.CurrentPlayer, len(snap.Moves))
	case chessdto.EventMoveMade:
		var mm chessdto.MoveMade
		if err := env.Decode(&mm); err != nil {
			return
		}
		p.log.Info("autoplayer_move", zap.String("san", mm.Move.SAN), zap.String("by", mm.Move.Color))
		if mm.Status == "active" {
			p.maybeMove(ctx, mm.FEN, mm.CurrentPlayer, len(mm.Moves))
		}
	case chessdto.EventDrawOffered:
		p.send(ctx, chessdto.EventDeclineDraw, chessdto.GameRef{GameID: p.gameID})
	case chessdto.EventFriendlyGameOffered:
		p.send(ctx, chessdto.EventAcceptFriendlyGame, chessdto.GameRef{GameID: p.gameID})
	case chessdto.EventGameOver:
		var over chessdto.GameOver
		_ = env.Decode(&over)
		p.log.Info("autoplayer_game_over", zap.String("winner", over.Winner), zap.String("reason", over.Reason))
		p.finish()
	case chessdto.EventError, chessdto.EventGameNotFound:
		p.log.Warn("autoplayer_server_error", zap.String("type", env.Type), zap.ByteString("payload", env.Payload))
	}
}

func (p *autoplayer) maybeMove(ctx context.Context, fen, current string, plies int) {
	if current != p.color || p.over {
		return
	}
	if plies >= p.maxPlies {
		p.send(ctx, chessdto.EventResign, chessdto.GameRef{GameID: p.gameID})
		return
	}
	pos, err := rules.FromFEN(fen)
	if err != nil {
		p.log.Warn("autoplayer_bad_fen", zap.String("fen", fen), zap.Error(err))
		return
	}
	legal := pos.LegalMoves()
	if len(legal) == 0 {
		return
	}
	p.send(ctx, chessdto.EventMakeMove, chessdto.MakeMoveRequest{GameID: p.gameID, Move: legal[0].SAN})
}

func (p *autoplayer) send(ctx context.Context, typ string, payload any) {
	if err := p.client.Send(ctx, typ, payload); err != nil {
		p.log.Warn("autoplayer_send_failed", zap.String("type", typ), zap.Error(err))
	}
}

func (p *autoplayer) finish() {
	if !p.over {
		p.over = true
		close(p.done)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
