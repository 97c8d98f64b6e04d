package archive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/engine/openingbook"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/chessdto"
)

const (
	kFactor       = 32
	DefaultRating = 1200
)

// Recorder archives finished sessions and updates the human players' profiles.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder { return &Recorder{repo: repo} }

func (r *Recorder) Repository() Repository { return r.repo }

// Archive implements session.Archiver. Re-archiving a game is a no-op.
func (r *Recorder) Archive(ctx context.Context, st session.State) error {
	rec := BuildRecord(st)
	if rec == nil {
		return nil
	}
	id, err := r.repo.SaveResult(ctx, rec)
	if errors.Is(err, ErrDuplicateGame) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("archive %s: %w", st.ID, err)
	}
	obslog.L().Info("game_archived",
		zap.String("game_id", st.ID),
		zap.Int64("row_id", id),
		zap.String("result", rec.Result),
		zap.String("method", rec.Method),
		zap.String("eco", rec.ECO),
	)
	// friendly games are archived unrated
	if rec.Friendly {
		return nil
	}
	white, black := rec.White, rec.Black
	whiteRating, blackRating := r.currentRating(ctx, white), r.currentRating(ctx, black)
	if err := r.rate(ctx, white, blackRating, scoreFor(rec.Result, true), rec.EndedAt); err != nil {
		return err
	}
	return r.rate(ctx, black, whiteRating, scoreFor(rec.Result, false), rec.EndedAt)
}

// currentRating is the pre-game rating of p: its profile when one exists, else the seat rating.
func (r *Recorder) currentRating(ctx context.Context, p chessdto.Player) int {
	if !p.IsBot && p.ID != "" {
		if prof, err := r.repo.GetProfile(ctx, p.ID); err == nil && prof != nil {
			return prof.Rating
		}
	}
	if p.Rating <= 0 {
		return DefaultRating
	}
	return p.Rating
}

func (r *Recorder) rate(ctx context.Context, player chessdto.Player, opponentRating int, score float64, endedAt time.Time) error {
	if player.IsBot || strings.TrimSpace(player.ID) == "" {
		return nil
	}
	profile, err := r.repo.GetProfile(ctx, player.ID)
	if err != nil {
		return err
	}
	updated, delta := ApplyResult(profile, player, opponentRating, score, endedAt)
	if err := r.repo.UpsertProfile(ctx, updated); err != nil {
		return err
	}
	obslog.L().Debug("profile_rated",
		zap.String("player_id", player.ID),
		zap.Int("rating", updated.Rating),
		zap.Int("delta", delta),
	)
	return nil
}

func scoreFor(result string, white bool) float64 {
	switch result {
	case chessdto.ResultWhiteWins:
		if white {
			return 1
		}
		return 0
	case chessdto.ResultBlackWins:
		if white {
			return 0
		}
		return 1
	default:
		return 0.5
	}
}

// ApplyResult folds one game into profile (created when nil) and returns the rating change.
func ApplyResult(profile *chessdto.PlayerProfile, player chessdto.Player, opponentRating int, score float64, endedAt time.Time) (*chessdto.PlayerProfile, int) {
	if profile == nil {
		rating := player.Rating
		if rating <= 0 {
			rating = DefaultRating
		}
		profile = &chessdto.PlayerProfile{
			PlayerID:  player.ID,
			Rating:    rating,
			CreatedAt: endedAt,
		}
	}
	if strings.TrimSpace(player.Username) != "" {
		profile.Username = player.Username
	}
	prev := profile.Rating

	profile.GamesPlayed++
	profile.LastPlayedAt = endedAt
	profile.UpdatedAt = endedAt

	var resultType string
	switch {
	case score >= 1:
		profile.Wins++
		resultType = "win"
	case score <= 0:
		profile.Losses++
		resultType = "loss"
	default:
		profile.Draws++
		resultType = "draw"
	}
	if profile.StreakType == resultType {
		profile.Streak++
	} else {
		profile.Streak = 1
		profile.StreakType = resultType
	}

	expected := 1 / (1 + math.Pow(10, float64(opponentRating-profile.Rating)/400))
	profile.Rating = int(math.Round(float64(profile.Rating) + kFactor*(score-expected)))
	return profile, profile.Rating - prev
}

// BuildRecord converts a finished session into its archive form; nil while the game is active.
func BuildRecord(st session.State) *chessdto.GameRecord {
	if st.Status != session.StatusFinished || st.Outcome == nil {
		return nil
	}
	ended := st.EndedAt
	if ended.IsZero() {
		ended = st.UpdatedAt
	}
	duration := ended.Sub(st.CreatedAt)
	if duration < 0 {
		duration = 0
	}
	eco, name := openingbook.Label(st.MovesSAN)
	rec := &chessdto.GameRecord{
		GameID:      st.ID,
		White:       st.White.DTO(),
		Black:       st.Black.DTO(),
		Result:      chessdto.ResultFor(st.Outcome.Winner),
		Method:      st.Outcome.Reason,
		MovesSAN:    append([]string(nil), st.MovesSAN...),
		MovesUCI:    append([]string(nil), st.MovesUCI...),
		ECO:         eco,
		OpeningName: name,
		Friendly:    st.Friendly,
		StartedAt:   st.CreatedAt,
		EndedAt:     ended,
		Duration:    duration,
	}
	rec.PGN = BuildPGN(rec)
	return rec
}

func BuildPGN(rec *chessdto.GameRecord) string {
	if rec == nil {
		return ""
	}
	var b strings.Builder
	date := rec.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	fmt.Fprintf(&b, "[Event \"%s\"]\n", eventName(rec))
	b.WriteString("[Site \"chess-arena\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(rec.White.Username))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(rec.Black.Username))
	if rec.White.Rating > 0 {
		fmt.Fprintf(&b, "[WhiteElo \"%d\"]\n", rec.White.Rating)
	}
	if rec.Black.Rating > 0 {
		fmt.Fprintf(&b, "[BlackElo \"%d\"]\n", rec.Black.Rating)
	}
	if rec.ECO != "" {
		fmt.Fprintf(&b, "[ECO \"%s\"]\n", rec.ECO)
	}
	if rec.OpeningName != "" {
		fmt.Fprintf(&b, "[Opening \"%s\"]\n", sanitizePGN(rec.OpeningName))
	}
	if m := strings.TrimSpace(rec.Method); m != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(m)))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", rec.Result)

	for i := 0; i < len(rec.MovesSAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(rec.MovesSAN[i]))
		if i+1 < len(rec.MovesSAN) {
			b.WriteString(strings.TrimSpace(rec.MovesSAN[i+1]))
			b.WriteString(" ")
		}
	}
	b.WriteString(rec.Result)
	return b.String()
}

func eventName(rec *chessdto.GameRecord) string {
	switch {
	case rec.Friendly:
		return "Arena Friendly"
	case rec.White.IsBot || rec.Black.IsBot:
		return "Arena vs Bot"
	default:
		return "Arena Rated"
	}
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
