package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Draw reasons reported by Game.
const (
	DrawStalemate            = "stalemate"
	DrawInsufficientMaterial = "insufficient_material"
	DrawThreefold            = "threefold_repetition"
	DrawFiftyMove            = "fifty_move_rule"
)

// Game is a mutable game record. It is not safe for concurrent use.
type Game struct {
	g   *nchess.Game
	san []string
	uci []string
}

// NewGame starts from the standard position.
func NewGame() *Game {
	return &Game{g: nchess.NewGame(), san: []string{}, uci: []string{}}
}

// ReplaySAN rebuilds a game from its SAN history.
func ReplaySAN(history []string) (*Game, error) {
	g := NewGame()
	for i, san := range history {
		if _, err := g.Apply(san); err != nil {
			return nil, fmt.Errorf("replay ply %d %q: %w", i+1, san, err)
		}
	}
	return g, nil
}

func (g *Game) Position() Position { return Position{pos: g.g.Position()} }

func (g *Game) FEN() string { return g.g.FEN() }

func (g *Game) Turn() Color { return colorFrom(g.g.Position().Turn()) }

// History returns a copy of the SAN move list.
func (g *Game) History() []string { return append([]string(nil), g.san...) }

// HistoryUCI returns a copy of the UCI move list.
func (g *Game) HistoryUCI() []string { return append([]string(nil), g.uci...) }

// Apply validates text (SAN or UCI) against the current position and plays it.
func (g *Game) Apply(text string) (MoveResult, error) {
	pos := g.Position()
	m, err := pos.FindMove(text)
	if err != nil {
		return MoveResult{}, err
	}
	raw := m.raw
	if err := g.g.Move(&raw, nil); err != nil {
		return MoveResult{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	g.san = append(g.san, m.SAN)
	g.uci = append(g.uci, m.UCI)

	next := g.Position()
	res := MoveResult{
		Move:  m,
		FEN:   g.g.FEN(),
		Turn:  next.Turn(),
		Check: next.InCheck(),
	}
	switch g.g.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		if g.g.Method() == nchess.Checkmate {
			res.Checkmate = true
		}
	case nchess.Draw:
		res.Draw = true
		res.DrawReason = drawReason(g.g.Method())
	default:
		if reason := g.claimableDraw(); reason != "" {
			res.Draw = true
			res.DrawReason = reason
		}
	}
	return res, nil
}

// claimableDraw auto-claims threefold repetition and the fifty-move rule.
func (g *Game) claimableDraw() string {
	for _, method := range g.g.EligibleDraws() {
		switch method {
		case nchess.ThreefoldRepetition, nchess.FiftyMoveRule:
			if err := g.g.Draw(method); err == nil {
				return drawReason(method)
			}
		}
	}
	return ""
}

func drawReason(m nchess.Method) string {
	switch m {
	case nchess.Stalemate:
		return DrawStalemate
	case nchess.InsufficientMaterial:
		return DrawInsufficientMaterial
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return DrawThreefold
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return DrawFiftyMove
	default:
		return strings.ToLower(m.String())
	}
}

// Positions returns the position before every move plus the final one.
func (g *Game) Positions() []Position {
	raw := g.g.Positions()
	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		out = append(out, Position{pos: p})
	}
	return out
}
