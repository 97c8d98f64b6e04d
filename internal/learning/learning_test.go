package learning

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-arena/internal/rules"
)

var foolsMate = []string{"f3", "e5", "g4", "Qh4#"}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func TestPositionKeyIgnoresCounters(t *testing.T) {
	a := PositionKey("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
	b := PositionKey("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 4 9")
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
}

func TestMemoryStoreDeduplicates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 3; i++ {
		if err := s.RecordBad(ctx, rules.StartFEN, "f2f3"); err != nil {
			t.Fatalf("RecordBad: %v", err)
		}
	}
	bad, _ := s.Bad(ctx, rules.StartFEN)
	if len(bad) != 1 || bad[0] != "f2f3" {
		t.Fatalf("unexpected bad list %v", bad)
	}
	good, _ := s.Good(ctx, rules.StartFEN)
	if len(good) != 0 {
		t.Fatalf("expected no good moves, got %v", good)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	if err := s.RecordGood(ctx, rules.StartFEN, "e2e4"); err != nil {
		t.Fatalf("RecordGood: %v", err)
	}
	if err := s.RecordGood(ctx, rules.StartFEN, "d2d4"); err != nil {
		t.Fatalf("RecordGood: %v", err)
	}
	good, err := s.Good(ctx, rules.StartFEN)
	if err != nil {
		t.Fatalf("Good: %v", err)
	}
	if len(good) != 2 || good[0] != "d2d4" || good[1] != "e2e4" {
		t.Fatalf("unexpected good list %v", good)
	}

	mr.FastForward(2 * time.Hour)
	good, err = s.Good(ctx, rules.StartFEN)
	if err != nil {
		t.Fatalf("Good after expiry: %v", err)
	}
	if len(good) != 0 {
		t.Fatalf("expected expiry, got %v", good)
	}
}

func TestReviewFlagsMoveThatAllowedMate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewReviewer(store)

	rev, err := r.ReviewCompletedGame(ctx, foolsMate, "black", rules.White)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if len(rev.Bad) != 1 {
		t.Fatalf("expected one bad move, got %+v", rev.Bad)
	}
	if rev.Bad[0].Move != "g2g4" || rev.Bad[0].Flag != FlagLeftInCheck {
		t.Fatalf("unexpected verdict %+v", rev.Bad[0])
	}
	bad, _ := store.Bad(ctx, rev.Bad[0].FEN)
	if len(bad) != 1 || bad[0] != "g2g4" {
		t.Fatalf("store not updated: %v", bad)
	}
}

func TestReviewReinforcesWinningMoves(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewReviewer(store)

	rev, err := r.ReviewCompletedGame(ctx, foolsMate, "black", rules.Black)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if len(rev.Good) != 2 || len(rev.Bad) != 0 {
		t.Fatalf("unexpected review %+v", rev)
	}
	if rev.Good[0].Move != "d8h4" {
		t.Fatalf("expected mating move first, got %+v", rev.Good[0])
	}
}

func TestReviewIgnoresDraws(t *testing.T) {
	r := NewReviewer(NewMemoryStore())
	rev, err := r.ReviewCompletedGame(context.Background(), foolsMate, "draw", rules.White)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if len(rev.Bad)+len(rev.Good) != 0 {
		t.Fatalf("draw should not teach anything: %+v", rev)
	}
}
