package rules

import (
	"errors"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func TestStartPositionHasTwentyMoves(t *testing.T) {
	p := StartPosition()
	if got := len(p.LegalMoves()); got != 20 {
		t.Fatalf("expected 20 legal moves, got %d", got)
	}
	if p.Turn() != White {
		t.Fatalf("expected white to move, got %s", p.Turn())
	}
	if p.Ply() != 0 {
		t.Fatalf("expected ply 0, got %d", p.Ply())
	}
}

func TestGameHistoryAndTurn(t *testing.T) {
	g := NewGame()
	for _, san := range []string{"e4", "e5", "Qh5"} {
		if _, err := g.Apply(san); err != nil {
			t.Fatalf("apply %s: %v", san, err)
		}
	}
	h := g.History()
	if len(h) != 3 || h[0] != "e4" || h[1] != "e5" || h[2] != "Qh5" {
		t.Fatalf("unexpected history %v", h)
	}
	if g.Turn() != Black {
		t.Fatalf("expected black to move, got %s", g.Turn())
	}
	if g.Position().Ply() != 3 {
		t.Fatalf("expected ply 3, got %d", g.Position().Ply())
	}
}

func TestIllegalMoveRejected(t *testing.T) {
	g := NewGame()
	_, err := g.Apply("e5")
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if len(g.History()) != 0 {
		t.Fatalf("history changed on illegal move")
	}
}

func TestUCIFallback(t *testing.T) {
	g := NewGame()
	res, err := g.Apply("g1f3")
	if err != nil {
		t.Fatalf("apply uci: %v", err)
	}
	if res.Move.SAN != "Nf3" {
		t.Fatalf("expected SAN Nf3, got %q", res.Move.SAN)
	}
}

func TestFoolsMateIsCheckmate(t *testing.T) {
	g := NewGame()
	var last MoveResult
	for _, san := range []string{"f3", "e5", "g4", "Qh4#"} {
		res, err := g.Apply(san)
		if err != nil {
			t.Fatalf("apply %s: %v", san, err)
		}
		last = res
	}
	if !last.Checkmate {
		t.Fatalf("expected checkmate")
	}
	if !g.Position().IsCheckmate() {
		t.Fatalf("position should report checkmate")
	}
	if g.History()[3] != "Qh4#" {
		t.Fatalf("mating move missing from history: %v", g.History())
	}
}

func TestFENRoundTrip(t *testing.T) {
	g, err := ReplaySAN([]string{"e4", "c5", "Nf3", "d6", "d4"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	fen := g.FEN()
	p, err := FromFEN(fen)
	if err != nil {
		t.Fatalf("from fen: %v", err)
	}
	if p.FEN() != fen {
		t.Fatalf("round trip mismatch\n got %s\nwant %s", p.FEN(), fen)
	}
}

func TestAttackersCountsBothColors(t *testing.T) {
	// Nf3 hits e5, defended by d6 and Nc6; Bc4 eyes f7
	p, err := FromFEN("r1bqkbnr/ppp2ppp/2np4/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 0 4")
	if err != nil {
		t.Fatalf("fen: %v", err)
	}
	e5, _ := ParseSquare("e5")
	if got := len(p.Attackers(e5, White)); got != 1 {
		t.Fatalf("expected 1 white attacker on e5, got %d", got)
	}
	if got := len(p.Attackers(e5, Black)); got != 2 {
		t.Fatalf("expected 2 black defenders on e5, got %d", got)
	}
	f7, _ := ParseSquare("f7")
	if got := len(p.Attackers(f7, White)); got != 1 {
		t.Fatalf("expected bishop to hit f7, got %d attackers", got)
	}
}

func TestInsufficientMaterial(t *testing.T) {
	p, err := FromFEN("8/8/8/4k3/8/8/3NK3/8 w - - 0 1")
	if err != nil {
		t.Fatalf("fen: %v", err)
	}
	if !p.InsufficientMaterial() {
		t.Fatalf("K+N v K should be insufficient")
	}
	p, _ = FromFEN("8/8/8/4k3/8/8/3RK3/8 w - - 0 1")
	if p.InsufficientMaterial() {
		t.Fatalf("K+R v K is sufficient")
	}
}

func TestCaptureFlags(t *testing.T) {
	g, err := ReplaySAN([]string{"e4", "d5"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	m, err := g.Position().FindMove("exd5")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !m.IsCapture() || m.Captured != nchess.Pawn || m.Piece != nchess.Pawn {
		t.Fatalf("unexpected capture metadata: %+v", m)
	}
}

func gameFromFEN(t *testing.T, fen string) *Game {
	t.Helper()
	opt, err := nchess.FEN(fen)
	if err != nil {
		t.Fatalf("fen: %v", err)
	}
	return &Game{g: nchess.NewGame(opt), san: []string{}, uci: []string{}}
}

func TestFiftyMoveRuleClaimed(t *testing.T) {
	g := gameFromFEN(t, "4k3/8/8/8/8/8/r7/4K2R w - - 99 80")
	res, err := g.Apply("Rh2")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Draw || res.DrawReason != DrawFiftyMove {
		t.Fatalf("expected fifty-move draw, got %+v", res)
	}
}

func TestCaptureIntoInsufficientMaterialDraws(t *testing.T) {
	g := gameFromFEN(t, "4k3/8/8/8/8/8/3n4/4K1N1 w - - 0 1")
	res, err := g.Apply("Kxd2")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Draw || res.DrawReason != DrawInsufficientMaterial {
		t.Fatalf("expected insufficient material draw, got %+v", res)
	}
}
