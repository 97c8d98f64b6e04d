package learning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/engine/safety"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/rules"
)

const (
	reviewWindow          = 3
	materialLossThreshold = 200
	handedCaptureValue    = 300
)

// Flag explains why a move was recorded as bad.
type Flag string

const (
	FlagLeftInCheck   Flag = "left_in_check"
	FlagLostMaterial  Flag = "lost_material"
	FlagHandedCapture Flag = "handed_capture"
)

// Verdict is one reviewed bot move.
type Verdict struct {
	Ply  int
	Move string
	FEN  string
	Flag Flag
}

// Review summarises what a game taught the bot.
type Review struct {
	Bad  []Verdict
	Good []Verdict
}

// Reviewer attributes a finished game's result to the bot's last moves.
type Reviewer struct {
	store Store
}

func NewReviewer(store Store) *Reviewer { return &Reviewer{store: store} }

// ReviewCompletedGame replays history (SAN). winner is "white", "black" or "draw".
// On a loss at most one of the bot's last moves is recorded as bad; on a win they are all
// recorded as good.
func (r *Reviewer) ReviewCompletedGame(ctx context.Context, history []string, winner string, bot rules.Color) (Review, error) {
	var out Review
	if r == nil || r.store == nil || len(history) == 0 {
		return out, nil
	}
	g, err := rules.ReplaySAN(history)
	if err != nil {
		return out, fmt.Errorf("review replay: %w", err)
	}
	positions := g.Positions()
	ucis := g.HistoryUCI()

	var botPlies []int
	for i := len(ucis) - 1; i >= 0 && len(botPlies) < reviewWindow; i-- {
		if positions[i].Turn() == bot {
			botPlies = append(botPlies, i)
		}
	}

	switch winner {
	case string(bot.Opposite()):
		for _, ply := range botPlies {
			flag := judge(positions, ply, bot)
			if flag == "" {
				continue
			}
			v := Verdict{Ply: ply, Move: ucis[ply], FEN: positions[ply].FEN(), Flag: flag}
			if err := r.store.RecordBad(ctx, v.FEN, v.Move); err != nil {
				return out, err
			}
			out.Bad = append(out.Bad, v)
			break
		}
	case string(bot):
		for _, ply := range botPlies {
			v := Verdict{Ply: ply, Move: ucis[ply], FEN: positions[ply].FEN()}
			if err := r.store.RecordGood(ctx, v.FEN, v.Move); err != nil {
				return out, err
			}
			out.Good = append(out.Good, v)
		}
	}
	obslog.L().Debug("learning_review",
		zap.String("winner", winner),
		zap.String("bot", string(bot)),
		zap.Int("bad", len(out.Bad)),
		zap.Int("good", len(out.Good)),
	)
	return out, nil
}

// judge inspects the bot move played from positions[ply].
func judge(positions []rules.Position, ply int, bot rules.Color) Flag {
	if ply+2 < len(positions) {
		after := positions[ply+2]
		if after.Turn() == bot && after.InCheck() {
			return FlagLeftInCheck
		}
		if materialFor(positions[ply], bot)-materialFor(after, bot) > materialLossThreshold {
			return FlagLostMaterial
		}
	}
	if ply+1 < len(positions) {
		reply := positions[ply+1]
		for _, m := range reply.Candidates() {
			if m.IsCapture() && safety.CaptureGain(reply, m) >= handedCaptureValue {
				return FlagHandedCapture
			}
		}
	}
	return ""
}

// materialFor is the material balance from c's point of view, kings excluded.
func materialFor(p rules.Position, c rules.Color) int {
	total := 0
	for _, pc := range p.Pieces() {
		v := rules.PieceValue(pc.Piece.Type())
		if v >= rules.KingValue {
			continue
		}
		if rules.ColorOf(pc.Piece) == c {
			total += v
		} else {
			total -= v
		}
	}
	return total
}
