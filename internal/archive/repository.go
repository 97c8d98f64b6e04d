// Package archive stores finished games and the rating profiles they update.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/chess-arena/pkg/chessdto"
)

var ErrDuplicateGame = errors.New("game already archived")

//go:embed schema.sql
var schemaSQL string

type Repository interface {
	SaveResult(ctx context.Context, rec *chessdto.GameRecord) (int64, error)
	GetGame(ctx context.Context, gameID string) (*chessdto.GameRecord, error)
	RecentGames(ctx context.Context, playerID string, limit int) ([]*chessdto.GameRecord, error)
	GetProfile(ctx context.Context, playerID string) (*chessdto.PlayerProfile, error)
	UpsertProfile(ctx context.Context, profile *chessdto.PlayerProfile) error
	Close() error
}

type repository struct {
	db *sql.DB
}

// Open connects to DATABASE_URL and applies the schema.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &repository{db: db}, nil
}

func (r *repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

const gameColumns = `
	id, game_id,
	white_id, white_name, white_rating, white_bot,
	black_id, black_name, black_rating, black_bot,
	result, result_method, moves_uci, moves_san, pgn,
	eco, opening_name, friendly,
	started_at, ended_at, duration_ms`

func (r *repository) SaveResult(ctx context.Context, rec *chessdto.GameRecord) (int64, error) {
	if rec == nil {
		return 0, fmt.Errorf("nil game record")
	}
	movesUCI, err := json.Marshal(nonNil(rec.MovesUCI))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(rec.MovesSAN))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO arena_games (
			game_id,
			white_id, white_name, white_rating, white_bot,
			black_id, black_name, black_rating, black_bot,
			result, result_method, moves_uci, moves_san, pgn,
			eco, opening_name, friendly,
			started_at, ended_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13::jsonb, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (game_id) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(ctx, query,
		rec.GameID,
		rec.White.ID, rec.White.Username, rec.White.Rating, rec.White.IsBot,
		rec.Black.ID, rec.Black.Username, rec.Black.Rating, rec.Black.IsBot,
		rec.Result, rec.Method, movesUCI, movesSAN, rec.PGN,
		rec.ECO, rec.OpeningName, rec.Friendly,
		rec.StartedAt, rec.EndedAt, rec.Duration.Milliseconds(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert game: %w", err)
	}
	rec.ID = id.Int64
	return id.Int64, nil
}

func (r *repository) GetGame(ctx context.Context, gameID string) (*chessdto.GameRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM arena_games WHERE game_id = $1`, gameID)
	rec, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	return rec, nil
}

func (r *repository) RecentGames(ctx context.Context, playerID string, limit int) ([]*chessdto.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+gameColumns+`
		FROM arena_games
		WHERE white_id = $1 OR black_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	games := make([]*chessdto.GameRecord, 0, limit)
	for rows.Next() {
		rec, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, rec)
	}
	return games, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*chessdto.GameRecord, error) {
	var (
		rec          chessdto.GameRecord
		movesUCIJSON []byte
		movesSANJSON []byte
		durationMS   sql.NullInt64
	)
	if err := row.Scan(
		&rec.ID, &rec.GameID,
		&rec.White.ID, &rec.White.Username, &rec.White.Rating, &rec.White.IsBot,
		&rec.Black.ID, &rec.Black.Username, &rec.Black.Rating, &rec.Black.IsBot,
		&rec.Result, &rec.Method, &movesUCIJSON, &movesSANJSON, &rec.PGN,
		&rec.ECO, &rec.OpeningName, &rec.Friendly,
		&rec.StartedAt, &rec.EndedAt, &durationMS,
	); err != nil {
		return nil, err
	}
	if durationMS.Valid {
		rec.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &rec.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &rec.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &rec, nil
}

func (r *repository) GetProfile(ctx context.Context, playerID string) (*chessdto.PlayerProfile, error) {
	const query = `
		SELECT
			player_id, username, rating,
			games_played, wins, losses, draws,
			streak, streak_type,
			last_played_at, updated_at, created_at
		FROM arena_profiles
		WHERE player_id = $1`

	var (
		p          chessdto.PlayerProfile
		lastPlayed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, playerID).Scan(
		&p.PlayerID, &p.Username, &p.Rating,
		&p.GamesPlayed, &p.Wins, &p.Losses, &p.Draws,
		&p.Streak, &p.StreakType,
		&lastPlayed, &p.UpdatedAt, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	if lastPlayed.Valid {
		p.LastPlayedAt = lastPlayed.Time
	}
	return &p, nil
}

func (r *repository) UpsertProfile(ctx context.Context, p *chessdto.PlayerProfile) error {
	if p == nil {
		return fmt.Errorf("nil profile")
	}
	const query = `
		INSERT INTO arena_profiles (
			player_id, username, rating,
			games_played, wins, losses, draws,
			streak, streak_type, last_played_at,
			updated_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (player_id)
		DO UPDATE SET
			username = EXCLUDED.username,
			rating = EXCLUDED.rating,
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			streak = EXCLUDED.streak,
			streak_type = EXCLUDED.streak_type,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		p.PlayerID, p.Username, p.Rating,
		p.GamesPlayed, p.Wins, p.Losses, p.Draws,
		p.Streak, p.StreakType, p.LastPlayedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
