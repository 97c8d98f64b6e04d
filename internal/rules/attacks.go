package rules

import nchess "github.com/corentings/chess/v2"

// Direction is a board step in file/rank units.
type Direction struct{ DF, DR int }

var (
	OrthogonalDirs = []Direction{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	DiagonalDirs   = []Direction{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	AllDirs        = append(append([]Direction{}, OrthogonalDirs...), DiagonalDirs...)

	knightSteps = []Direction{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
)

// Diagonal reports whether d moves along a diagonal.
func (d Direction) Diagonal() bool { return d.DF != 0 && d.DR != 0 }

// Step returns the square one step from sq along d.
func Step(sq nchess.Square, d Direction) (nchess.Square, bool) {
	f := int(sq.File()) + d.DF
	r := int(sq.Rank()) + d.DR
	if f < 0 || f > 7 || r < 0 || r > 7 {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(f), nchess.Rank(r)), true
}

// SliderMatches reports whether a piece type slides along d.
func SliderMatches(pt nchess.PieceType, d Direction) bool {
	switch pt {
	case nchess.Queen:
		return true
	case nchess.Rook:
		return !d.Diagonal()
	case nchess.Bishop:
		return d.Diagonal()
	}
	return false
}

// Attackers returns the pieces of color by that attack sq, ignoring pins.
func (p Position) Attackers(sq nchess.Square, by Color) []Placed {
	board := p.pos.Board()
	var out []Placed
	owner := by.lib()

	pawnRank := -1
	if by == Black {
		pawnRank = 1
	}
	for _, df := range []int{-1, 1} {
		if from, ok := Step(sq, Direction{df, pawnRank}); ok {
			if pc := board.Piece(from); pc != nchess.NoPiece && pc.Color() == owner && pc.Type() == nchess.Pawn {
				out = append(out, Placed{Square: from, Piece: pc})
			}
		}
	}
	for _, d := range knightSteps {
		if from, ok := Step(sq, d); ok {
			if pc := board.Piece(from); pc != nchess.NoPiece && pc.Color() == owner && pc.Type() == nchess.Knight {
				out = append(out, Placed{Square: from, Piece: pc})
			}
		}
	}
	for _, d := range AllDirs {
		if from, ok := Step(sq, d); ok {
			if pc := board.Piece(from); pc != nchess.NoPiece && pc.Color() == owner && pc.Type() == nchess.King {
				out = append(out, Placed{Square: from, Piece: pc})
			}
		}
	}
	for _, d := range AllDirs {
		cur := sq
		for {
			next, ok := Step(cur, d)
			if !ok {
				break
			}
			cur = next
			pc := board.Piece(cur)
			if pc == nchess.NoPiece {
				continue
			}
			if pc.Color() == owner && SliderMatches(pc.Type(), d) {
				out = append(out, Placed{Square: cur, Piece: pc})
			}
			break
		}
	}
	return out
}

// FirstPieceAlong walks from sq along d and returns the first occupied square.
func (p Position) FirstPieceAlong(sq nchess.Square, d Direction) (Placed, bool) {
	board := p.pos.Board()
	cur := sq
	for {
		next, ok := Step(cur, d)
		if !ok {
			return Placed{}, false
		}
		cur = next
		if pc := board.Piece(cur); pc != nchess.NoPiece {
			return Placed{Square: cur, Piece: pc}, true
		}
	}
}

// CheapestValue returns the lowest piece value in the list, or 0 when empty.
func CheapestValue(list []Placed) int {
	best := 0
	for i, pc := range list {
		v := PieceValue(pc.Piece.Type())
		if i == 0 || v < best {
			best = v
		}
	}
	return best
}

// Values maps placed pieces to their material values.
func Values(list []Placed) []int {
	out := make([]int, 0, len(list))
	for _, pc := range list {
		out = append(out, PieceValue(pc.Piece.Type()))
	}
	return out
}
