package search

import (
	"context"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-arena/internal/engine/eval"
	"github.com/park285/chess-arena/internal/learning"
	"github.com/park285/chess-arena/internal/rules"
)

func position(t *testing.T, fen string) rules.Position {
	t.Helper()
	p, err := rules.FromFEN(fen)
	require.NoError(t, err)
	return p
}

func quietPersonality() Personality {
	p := DefaultPersonality()
	p.OpeningPlies = 0
	p.DriftChance = 0
	return p
}

func TestAlphaBetaMatchesMinimax(t *testing.T) {
	fens := []string{
		rules.StartFEN,
		"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3",
		"6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1",
		"4k3/8/8/3q4/8/2N5/3R4/4K3 b - - 0 1",
	}
	ev := eval.New(eval.DefaultWeights(), eval.DefaultCacheLimit)
	for _, fen := range fens {
		p := position(t, fen)
		moves := p.Candidates()
		for depth := 1; depth <= 2; depth++ {
			ab := AlphaBeta(ev, p, moves, depth)
			mm := Minimax(ev, p, moves, depth)
			require.NotNil(t, ab.Move, fen)
			require.NotNil(t, mm.Move, fen)
			require.Equal(t, mm.Value, ab.Value, "fen %s depth %d", fen, depth)
			require.Equal(t, mm.Move.UCI, ab.Move.UCI, "fen %s depth %d", fen, depth)
			require.LessOrEqual(t, ab.Nodes, mm.Nodes)
		}
	}
}

func TestSearchFindsBackRankMate(t *testing.T) {
	p := position(t, "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1")
	s := NewSelector(nil, WithSeed(1))
	m, d := s.SelectMove(context.Background(), p, quietPersonality())
	require.NotNil(t, m)
	require.Equal(t, "a1a8", m.UCI)
	require.Equal(t, TierSearch, d.Tier)
	require.Greater(t, d.Score, MateScore)
}

func TestSelectMoveWithoutLegalMoves(t *testing.T) {
	s := NewSelector(nil, WithSeed(1))
	for _, fen := range []string{
		"rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
		"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1",
	} {
		m, d := s.SelectMove(context.Background(), position(t, fen), DefaultPersonality())
		require.Nil(t, m, fen)
		require.Equal(t, TierNone, d.Tier)
	}
}

func TestCheckEscapeMovesTheKing(t *testing.T) {
	p := position(t, "4r2k/8/8/8/8/8/8/4K3 w - - 0 1")
	s := NewSelector(nil, WithSeed(1))
	m, d := s.SelectMove(context.Background(), p, quietPersonality())
	require.NotNil(t, m)
	require.Equal(t, TierCheckEscape, d.Tier)
	require.Equal(t, nchess.King, m.Piece)
	require.NotEqual(t, "e1e2", m.UCI)
}

func TestGoodCaptureShortCircuitsSearch(t *testing.T) {
	p := position(t, "4k3/8/8/3q4/8/8/3R4/4K3 w - - 0 1")
	s := NewSelector(nil, WithSeed(1))
	m, d := s.SelectMove(context.Background(), p, quietPersonality())
	require.NotNil(t, m)
	require.Equal(t, TierCapture, d.Tier)
	require.Equal(t, "d2d5", m.UCI)
	require.Equal(t, rules.QueenValue, d.Score)
}

func TestOpeningBookOnFirstMove(t *testing.T) {
	s := NewSelector(nil, WithSeed(3))
	m, d := s.SelectMove(context.Background(), rules.StartPosition(), DefaultPersonality())
	require.NotNil(t, m)
	require.Equal(t, TierBook, d.Tier)
	require.Contains(t, []string{"e4", "d4"}, m.SAN)
}

func TestLearnedGoodMoveWins(t *testing.T) {
	ctx := context.Background()
	store := learning.NewMemoryStore()
	require.NoError(t, store.RecordGood(ctx, rules.StartFEN, "g1f3"))

	s := NewSelector(nil, WithSeed(1), WithStore(store))
	m, d := s.SelectMove(ctx, rules.StartPosition(), DefaultPersonality())
	require.NotNil(t, m)
	require.Equal(t, TierLearned, d.Tier)
	require.Equal(t, "g1f3", m.UCI)
}

func TestLearnedBadMovesAreFiltered(t *testing.T) {
	ctx := context.Background()
	store := learning.NewMemoryStore()
	require.NoError(t, store.RecordBad(ctx, rules.StartFEN, "e2e4"))
	require.NoError(t, store.RecordBad(ctx, rules.StartFEN, "d2d4"))

	s := NewSelector(nil, WithSeed(1), WithStore(store))
	m, d := s.SelectMove(ctx, rules.StartPosition(), DefaultPersonality())
	require.NotNil(t, m)
	require.Equal(t, TierDevelopment, d.Tier)
	require.Equal(t, "Nf3", m.SAN)
}

func TestShortlistDropsHangingQueen(t *testing.T) {
	p := position(t, "rnbqkbnr/ppp1pppp/8/3p4/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2")
	s := NewSelector(nil, WithSeed(1))
	pers := quietPersonality()
	pers.TopN = 100
	pool := s.shortlist(p, p.LegalMoves(), pers)
	require.NotEmpty(t, pool)
	for _, m := range pool {
		require.NotEqual(t, "d1g4", m.UCI)
	}
}

func TestNodeBudgetKeepsBestSoFar(t *testing.T) {
	ev := eval.New(eval.DefaultWeights(), eval.DefaultCacheLimit)
	p := rules.StartPosition()
	res := Search(ev, p, p.Candidates(), 2, true, 1)
	require.ErrorIs(t, res.Err, ErrSearchBudgetExceeded)
	require.NotNil(t, res.Move)
}

func TestDriftNeverMutatesReceiver(t *testing.T) {
	p := DefaultPersonality()
	p.DriftChance = 1
	before := p
	_ = p.Drift(newTestRand())
	require.Equal(t, before, p)

	p.DriftChance = 0
	require.Equal(t, p, p.Drift(newTestRand()))
}

func TestHeuristicPrefersCaptureAndCastle(t *testing.T) {
	p := position(t, "r3k2r/pppq1ppp/2n5/3pp3/4P3/2N2N2/PPPP1PPP/R3K2R w KQkq - 0 1")
	var quiet, castle, capture int
	for _, m := range p.LegalMoves() {
		switch m.UCI {
		case "a2a3":
			quiet = HeuristicScore(m, StyleBalanced)
		case "e1g1":
			castle = HeuristicScore(m, StyleBalanced)
		case "e4d5":
			capture = HeuristicScore(m, StyleBalanced)
		}
	}
	require.Zero(t, quiet)
	require.Greater(t, castle, quiet)
	require.Equal(t, rules.PawnValue+20, capture)
}
