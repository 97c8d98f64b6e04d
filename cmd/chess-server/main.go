package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/archive"
	appcfg "github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/engine/eval"
	"github.com/park285/chess-arena/internal/engine/openingbook"
	"github.com/park285/chess-arena/internal/engine/search"
	"github.com/park285/chess-arena/internal/gamestore"
	"github.com/park285/chess-arena/internal/httpapi"
	"github.com/park285/chess-arena/internal/learning"
	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/msgcat"
	"github.com/park285/chess-arena/internal/notify"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/internal/transport"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	catalog, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		logger.Fatal("msgcat_init_failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Redis backs live snapshots and learned moves; without it both stay in memory.
	var (
		store   session.SnapshotStore
		learned learning.Store = learning.NewMemoryStore()
		closers []func() error
		pings   []func(context.Context) error
	)
	if cfg.RedisURL != "" {
		gs, err := gamestore.Open(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis_init_failed", zap.Error(err))
		}
		store = gs
		learned = learning.NewRedisStore(gs.Client(), 0)
		closers = append(closers, gs.Close)
		pings = append(pings, func(ctx context.Context) error { return gs.Client().Ping(ctx).Err() })
	} else {
		logger.Warn("redis_disabled", zap.String("reason", "REDIS_URL not set"))
	}

	var repo archive.Repository
	if cfg.DatabaseURL != "" {
		if repo, err = archive.Open(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal("postgres_init_failed", zap.Error(err))
		}
	} else {
		logger.Warn("postgres_disabled", zap.String("reason", "DATABASE_URL not set"))
		repo = archive.NewMemoryRepository()
	}
	closers = append(closers, repo.Close)

	book := openingbook.Default()
	if cfg.PolyglotBookPath != "" {
		if err := book.AttachPolyglot(cfg.PolyglotBookPath); err != nil {
			logger.Warn("polyglot_book_ignored", zap.String("path", cfg.PolyglotBookPath), zap.Error(err))
		}
	}
	weights := eval.DefaultWeights()
	weights.PSTWeight = cfg.EvalPSTWeight
	weights.CheckPenalty = cfg.EvalCheckPenalty
	selector := search.NewSelector(eval.New(weights, cfg.EvalCacheLimit),
		search.WithBook(book),
		search.WithStore(learned),
	)

	personalities := []search.Personality{cfg.BotPersonality()}
	if cfg.BotProfilePath != "" {
		ps, err := appcfg.LoadBotProfiles(cfg.BotProfilePath)
		if err != nil {
			logger.Fatal("bot_profiles_invalid", zap.Error(err))
		}
		personalities = ps
	}
	var (
		pickMu sync.Mutex
		pick   = rand.New(rand.NewSource(time.Now().UnixNano()))
	)
	newBot := func() *session.BotController {
		pickMu.Lock()
		pers := personalities[pick.Intn(len(personalities))]
		seed := pick.Int63()
		pickMu.Unlock()
		return session.NewBotController(selector, pers, cfg.BotMoveDelay, seed)
	}

	hub := transport.NewHub()
	archivers := []session.Archiver{archive.NewRecorder(repo)}
	if cfg.ResultWebhookURL != "" {
		archivers = append(archivers, notify.NewWebhook(cfg.ResultWebhookURL, catalog))
	}
	registry := session.NewRegistry(session.RegistryConfig{
		InitialClockMs: cfg.ClockInitialMs,
		FinishedGrace:  cfg.FinishedGrace,
		Emitter:        hub,
		Store:          store,
		Archivers:      archivers,
		Reviewer:       learning.NewReviewer(learned),
		NewBot:         newBot,
	})
	queue := matchmaking.New(matchmaking.Config{
		Timeout: cfg.MatchTimeout,
		Games:   registry,
		Emitter: hub,
		BotSeat: func() session.Seat { return session.NewBotSeat(cfg.BotName, cfg.BotRating) },
	})
	ws := transport.NewServer(hub, queue, registry, catalog, transport.WithOriginPatterns(cfg.AllowedOrigins...))

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			WS:       ws,
			Registry: registry,
			Archive:  repo,
			Ready: func(ctx context.Context) error {
				for _, ping := range pings {
					if err := ping(ctx); err != nil {
						return err
					}
				}
				return nil
			},
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http_serve_failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown_start", zap.String("signal", sig.String()))

	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	// Shutdown does not track hijacked websocket connections.
	ws.Drain()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	ws.Wait()
	registry.Shutdown()
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Warn("close_failed", zap.Error(err))
		}
	}
	logger.Info("shutdown_done")
}
