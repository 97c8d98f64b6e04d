package rules

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// MoveFlag marks tactical properties of a move.
type MoveFlag uint8

const (
	FlagCapture MoveFlag = 1 << iota
	FlagEnPassant
	FlagKingCastle
	FlagQueenCastle
	FlagPromotion
)

// Move is a legal move in a specific position.
type Move struct {
	From      nchess.Square
	To        nchess.Square
	Promotion nchess.PieceType
	SAN       string
	UCI       string
	Piece     nchess.PieceType
	Color     Color
	Captured  nchess.PieceType
	IsCheck   bool
	Flags     MoveFlag

	raw nchess.Move
}

func (m Move) Has(f MoveFlag) bool { return m.Flags&f != 0 }

func (m Move) IsCapture() bool { return m.Captured != nchess.NoPieceType }

func (m Move) IsCastle() bool { return m.Has(FlagKingCastle) || m.Has(FlagQueenCastle) }

func (m Move) String() string { return m.SAN }

// MoveResult describes the position reached by applying a move.
type MoveResult struct {
	Move       Move
	FEN        string
	Turn       Color
	Check      bool
	Checkmate  bool
	Draw       bool
	DrawReason string
}

// Piece values in centipawns.
const (
	PawnValue   = 100
	KnightValue = 320
	BishopValue = 330
	RookValue   = 500
	QueenValue  = 900
	KingValue   = 20000
)

// PieceValue returns the material value of a piece type.
func PieceValue(pt nchess.PieceType) int {
	switch pt {
	case nchess.Pawn:
		return PawnValue
	case nchess.Knight:
		return KnightValue
	case nchess.Bishop:
		return BishopValue
	case nchess.Rook:
		return RookValue
	case nchess.Queen:
		return QueenValue
	case nchess.King:
		return KingValue
	default:
		return 0
	}
}

// SameSAN compares two SAN strings ignoring check/mate suffixes and annotations.
func SameSAN(a, b string) bool {
	return normalizeSAN(a) == normalizeSAN(b)
}

func normalizeSAN(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "+#!?")
	s = strings.ReplaceAll(s, "0-0-0", "O-O-O")
	s = strings.ReplaceAll(s, "0-0", "O-O")
	return s
}

// SquareName returns algebraic square text such as "e4".
func SquareName(sq nchess.Square) string {
	return sq.String()
}

// ParseSquare parses "e4" style text.
func ParseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}

// PieceName is the lower-case English name of pt, empty for NoPieceType.
func PieceName(pt nchess.PieceType) string {
	switch pt {
	case nchess.King:
		return "king"
	case nchess.Queen:
		return "queen"
	case nchess.Rook:
		return "rook"
	case nchess.Bishop:
		return "bishop"
	case nchess.Knight:
		return "knight"
	case nchess.Pawn:
		return "pawn"
	default:
		return ""
	}
}
