// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"github.com/park285/chess-arena/internal/engine/search"
)

type AppConfig struct {
	HTTPAddr       string
	AllowedOrigins []string

	RedisURL    string
	DatabaseURL string

	ClockInitialMs int64
	MatchTimeout   time.Duration
	FinishedGrace  time.Duration

	BotName      string
	BotRating    int
	BotMoveDelay time.Duration

	SearchDepth      int
	SearchTopN       int
	EvalPSTWeight    float64
	EvalCheckPenalty int
	EvalCacheLimit   int

	ResultWebhookURL string
	MsgOverrideDir   string
	BotProfilePath   string
	PolyglotBookPath string
}

// Load reads an optional .env (or ENV_FILE) and then the process environment.
func Load() (*AppConfig, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &AppConfig{
		HTTPAddr:         ":8080",
		ClockInitialMs:   600_000,
		MatchTimeout:     10 * time.Second,
		FinishedGrace:    60 * time.Second,
		BotName:          "ChessBot",
		BotRating:        2000,
		BotMoveDelay:     500 * time.Millisecond,
		SearchDepth:      3,
		SearchTopN:       15,
		EvalPSTWeight:    0.5,
		EvalCheckPenalty: 50,
		EvalCacheLimit:   1000,
	}

	if v := env("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.AllowedOrigins = splitList(env("ALLOWED_ORIGINS"))
	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.ResultWebhookURL = env("RESULT_WEBHOOK_URL")
	cfg.MsgOverrideDir = env("MSG_OVERRIDE_DIR")
	cfg.BotProfilePath = env("BOT_PROFILE_PATH")
	cfg.PolyglotBookPath = env("POLYGLOT_BOOK_PATH")
	if v := env("BOT_NAME"); v != "" {
		cfg.BotName = v
	}

	if v := env("CLOCK_INITIAL_MS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("CLOCK_INITIAL_MS must be a positive integer, got %q", v)
		}
		cfg.ClockInitialMs = n
	}

	var err error
	if cfg.MatchTimeout, err = durationEnv("MATCH_TIMEOUT", cfg.MatchTimeout); err != nil {
		return nil, err
	}
	if cfg.FinishedGrace, err = durationEnv("FINISHED_GRACE", cfg.FinishedGrace); err != nil {
		return nil, err
	}
	if cfg.BotMoveDelay, err = durationEnv("BOT_MOVE_DELAY", cfg.BotMoveDelay); err != nil {
		return nil, err
	}

	intEnv("BOT_RATING", &cfg.BotRating)
	intEnv("SEARCH_DEPTH", &cfg.SearchDepth)
	intEnv("SEARCH_TOP_N", &cfg.SearchTopN)
	intEnv("EVAL_CHECK_PENALTY", &cfg.EvalCheckPenalty)
	intEnv("EVAL_CACHE_LIMIT", &cfg.EvalCacheLimit)
	if v := env("EVAL_PST_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.EvalPSTWeight = f
		}
	}

	if cfg.SearchDepth > 6 {
		return nil, fmt.Errorf("SEARCH_DEPTH %d is too deep for per-move latency", cfg.SearchDepth)
	}
	return cfg, nil
}

// BotPersonality is the default personality derived from the SEARCH_* settings.
func (c *AppConfig) BotPersonality() search.Personality {
	p := search.DefaultPersonality()
	p.Name = c.BotName
	p.Depth = c.SearchDepth
	p.TopN = c.SearchTopN
	return p.Normalized()
}

type profileFile struct {
	Personalities []search.Personality `yaml:"personalities"`
}

// LoadBotProfiles parses a yaml file with a top-level personalities list.
func LoadBotProfiles(path string) ([]search.Personality, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot profiles: %w", err)
	}
	var f profileFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse bot profiles: %w", err)
	}
	if len(f.Personalities) == 0 {
		return nil, errors.New("bot profiles: no personalities defined")
	}
	out := make([]search.Personality, 0, len(f.Personalities))
	for _, p := range f.Personalities {
		out = append(out, p.Normalized())
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func intEnv(k string, dst *int) {
	if v := env(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

// durationEnv accepts Go durations ("10s") or bare seconds ("10").
func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := env(k)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", k, v)
	}
	return d, nil
}
