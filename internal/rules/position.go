package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var ErrIllegalMove = errors.New("illegal move")

// Position is an immutable board state. The zero value is not usable.
type Position struct {
	pos *nchess.Position
}

// StartPosition returns the standard initial position.
func StartPosition() Position {
	return Position{pos: nchess.NewGame().Position()}
}

// FromFEN parses a FEN string.
func FromFEN(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return StartPosition(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return Position{pos: nchess.NewGame(opt).Position()}, nil
}

// PositionKey is a FEN without the halfmove and fullmove counters.
func PositionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

// Key is PositionKey of the position.
func (p Position) Key() string { return PositionKey(p.FEN()) }

func (p Position) Valid() bool { return p.pos != nil }

// FEN returns the canonical serialization of the position.
func (p Position) FEN() string { return p.pos.String() }

func (p Position) Turn() Color { return colorFrom(p.pos.Turn()) }

// Ply is the number of half moves played, derived from the fullmove counter.
func (p Position) Ply() int {
	fields := strings.Fields(p.FEN())
	if len(fields) < 6 {
		return 0
	}
	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 {
		return 0
	}
	ply := (full - 1) * 2
	if p.Turn() == Black {
		ply++
	}
	return ply
}

// PieceAt returns the piece on sq, or nchess.NoPiece.
func (p Position) PieceAt(sq nchess.Square) nchess.Piece {
	return p.pos.Board().Piece(sq)
}

// LegalMoves lists all legal moves for the side to move with SAN filled in.
func (p Position) LegalMoves() []Move {
	valid := p.pos.ValidMoves()
	out := make([]Move, 0, len(valid))
	for i := range valid {
		out = append(out, p.describe(valid[i], true))
	}
	return out
}

// Candidates is LegalMoves without SAN encoding, for search inner loops.
func (p Position) Candidates() []Move {
	valid := p.pos.ValidMoves()
	out := make([]Move, 0, len(valid))
	for i := range valid {
		out = append(out, p.describe(valid[i], false))
	}
	return out
}

// Annotate fills in the SAN of a move produced by Candidates.
func (p Position) Annotate(m Move) Move {
	if m.SAN == "" {
		raw := m.raw
		m.SAN = nchess.AlgebraicNotation{}.Encode(p.pos, &raw)
	}
	return m
}

// Apply plays m, which must come from LegalMoves of this position.
func (p Position) Apply(m Move) (Position, MoveResult) {
	raw := m.raw
	next := Position{pos: p.pos.Update(&raw)}
	res := MoveResult{
		Move:  m,
		FEN:   next.FEN(),
		Turn:  next.Turn(),
		Check: next.InCheck(),
	}
	if !next.HasLegalMoves() {
		if res.Check {
			res.Checkmate = true
		} else {
			res.Draw = true
			res.DrawReason = "stalemate"
		}
	}
	return next, res
}

// Play looks up a move by SAN or UCI text and applies it.
func (p Position) Play(text string) (Position, MoveResult, error) {
	m, err := p.FindMove(text)
	if err != nil {
		return p, MoveResult{}, err
	}
	next, res := p.Apply(m)
	return next, res, nil
}

// FindMove resolves SAN (preferred) or UCI text to a legal move.
func (p Position) FindMove(text string) (Move, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Move{}, ErrIllegalMove
	}
	moves := p.LegalMoves()
	for _, m := range moves {
		if SameSAN(m.SAN, text) {
			return m, nil
		}
	}
	uci := strings.ToLower(text)
	for _, m := range moves {
		if m.UCI == uci {
			return m, nil
		}
	}
	return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
}

func (p Position) HasLegalMoves() bool { return len(p.pos.ValidMoves()) > 0 }

// InCheck reports whether the side to move is in check.
func (p Position) InCheck() bool {
	king, ok := p.KingSquare(p.Turn())
	if !ok {
		return false
	}
	return len(p.Attackers(king, p.Turn().Opposite())) > 0
}

func (p Position) IsCheckmate() bool { return p.InCheck() && !p.HasLegalMoves() }

func (p Position) IsStalemate() bool { return !p.InCheck() && !p.HasLegalMoves() }

// IsTerminal reports checkmate, stalemate or insufficient material.
func (p Position) IsTerminal() bool {
	return !p.HasLegalMoves() || p.InsufficientMaterial()
}

// InsufficientMaterial covers K v K, K+minor v K and K+B v K+B on same colored squares.
func (p Position) InsufficientMaterial() bool {
	var minors []Placed
	for _, pc := range p.Pieces() {
		switch pc.Piece.Type() {
		case nchess.King:
		case nchess.Knight, nchess.Bishop:
			minors = append(minors, pc)
		default:
			return false
		}
	}
	switch len(minors) {
	case 0, 1:
		return true
	case 2:
		a, b := minors[0], minors[1]
		if a.Piece.Type() != nchess.Bishop || b.Piece.Type() != nchess.Bishop {
			return false
		}
		if a.Piece.Color() == b.Piece.Color() {
			return false
		}
		return squareShade(a.Square) == squareShade(b.Square)
	}
	return false
}

func squareShade(sq nchess.Square) int {
	return (int(sq.File()) + int(sq.Rank())) % 2
}

// Placed is a piece on a square.
type Placed struct {
	Square nchess.Square
	Piece  nchess.Piece
}

// Pieces returns every occupied square from a1 to h8.
func (p Position) Pieces() []Placed {
	board := p.pos.Board()
	out := make([]Placed, 0, 32)
	for i := 0; i < 64; i++ {
		sq := nchess.Square(i)
		if pc := board.Piece(sq); pc != nchess.NoPiece {
			out = append(out, Placed{Square: sq, Piece: pc})
		}
	}
	return out
}

// KingSquare locates the king of color c.
func (p Position) KingSquare(c Color) (nchess.Square, bool) {
	want := nchess.NewPiece(nchess.King, c.lib())
	board := p.pos.Board()
	for i := 0; i < 64; i++ {
		sq := nchess.Square(i)
		if board.Piece(sq) == want {
			return sq, true
		}
	}
	return nchess.NoSquare, false
}

// ColorOf returns the color of a piece.
func ColorOf(pc nchess.Piece) Color { return colorFrom(pc.Color()) }

func (p Position) describe(mv nchess.Move, withSAN bool) Move {
	mover := p.pos.Board().Piece(mv.S1())
	m := Move{
		From:      mv.S1(),
		To:        mv.S2(),
		Promotion: mv.Promo(),
		UCI:       mv.String(),
		Piece:     mover.Type(),
		Color:     colorFrom(mover.Color()),
		Captured:  nchess.NoPieceType,
		IsCheck:   mv.HasTag(nchess.Check),
		raw:       mv,
	}
	if withSAN {
		m.SAN = nchess.AlgebraicNotation{}.Encode(p.pos, &mv)
	}
	if target := p.pos.Board().Piece(mv.S2()); target != nchess.NoPiece {
		m.Captured = target.Type()
		m.Flags |= FlagCapture
	}
	if mv.HasTag(nchess.EnPassant) {
		m.Captured = nchess.Pawn
		m.Flags |= FlagCapture | FlagEnPassant
	}
	if mv.HasTag(nchess.KingSideCastle) {
		m.Flags |= FlagKingCastle
	}
	if mv.HasTag(nchess.QueenSideCastle) {
		m.Flags |= FlagQueenCastle
	}
	if m.Promotion != nchess.NoPieceType {
		m.Flags |= FlagPromotion
	}
	return m
}
