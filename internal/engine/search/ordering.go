package search

import (
	"sort"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-arena/internal/rules"
)

var centerSquares = map[nchess.Square]bool{nchess.D4: true, nchess.D5: true, nchess.E4: true, nchess.E5: true}

// HeuristicScore ranks a root candidate before search.
func HeuristicScore(m rules.Move, style Style) int {
	w := style.weights()
	score := 0
	if m.IsCapture() {
		score += int(float64(rules.PieceValue(m.Captured)) * w.capture)
	}
	if m.IsCheck {
		score += w.check
	}
	if m.IsCastle() {
		score += w.castle
	}
	if m.Has(rules.FlagPromotion) {
		score += rules.PieceValue(m.Promotion)
	}
	if centerSquares[m.To] {
		score += w.center
	}
	if developsMinor(m) {
		score += w.development
	}
	return score
}

func developsMinor(m rules.Move) bool {
	if m.Piece != nchess.Knight && m.Piece != nchess.Bishop {
		return false
	}
	back := nchess.Rank1
	if m.Color == rules.Black {
		back = nchess.Rank8
	}
	return m.From.Rank() == back && m.To.Rank() != back
}

type scored struct {
	move  rules.Move
	score int
}

// orderRoot sorts by HeuristicScore, keeping generation order among equals.
func orderRoot(moves []rules.Move, style Style) []scored {
	out := make([]scored, 0, len(moves))
	for _, m := range moves {
		out = append(out, scored{move: m, score: HeuristicScore(m, style)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// orderInner puts captures first, most valuable victim then least valuable attacker.
func orderInner(moves []rules.Move) []rules.Move {
	sort.SliceStable(moves, func(i, j int) bool {
		return mvvLva(moves[i]) > mvvLva(moves[j])
	})
	return moves
}

func mvvLva(m rules.Move) int {
	if !m.IsCapture() {
		return 0
	}
	return rules.PieceValue(m.Captured)*10 - rules.PieceValue(m.Piece)/100
}
