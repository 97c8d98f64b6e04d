package gamestore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/chess-arena/internal/session"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	s, err := Open(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func sampleState(moves ...string) session.State {
	return session.State{
		ID:        "g1",
		White:     session.Seat{PlayerID: "alice", Username: "alice"},
		Black:     session.Seat{PlayerID: "bot-1", Username: "ChessBot", Bot: true},
		MovesSAN:  moves,
		Status:    session.StatusActive,
		Clock:     session.Clock{White: 1000, Black: 2000},
		UpdatedAt: time.Now(),
	}
}

func TestSaveLoadDelete(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, sampleState("e4")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx, "g1")
	if err != nil || got == nil {
		t.Fatalf("Load: %v %v", got, err)
	}
	if len(got.MovesSAN) != 1 || got.Clock.Black != 2000 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if mr.Exists(playerKey("bot-1")) {
		t.Fatalf("bot seats must not be indexed")
	}

	active, err := s.ActiveForPlayer(ctx, "alice")
	if err != nil || active == nil || active.ID != "g1" {
		t.Fatalf("ActiveForPlayer: %v %v", active, err)
	}

	if err := s.Delete(ctx, *got); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Load(ctx, "g1"); got != nil {
		t.Fatalf("snapshot survived Delete")
	}
	if active, _ := s.ActiveForPlayer(ctx, "alice"); active != nil {
		t.Fatalf("index survived Delete")
	}
}

func TestSaveAfterDeleteIsRefused(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	st := sampleState("e4")
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, st); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// a writer that captured the active state before the game ended arrives late
	if err := s.Save(ctx, st); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished, got %v", err)
	}
	if got, _ := s.Load(ctx, "g1"); got != nil {
		t.Fatalf("finished game came back: %+v", got)
	}
	if active, _ := s.ActiveForPlayer(ctx, "alice"); active != nil {
		t.Fatalf("finished game re-indexed for alice")
	}
}

func TestSaveRejectsOlderSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, sampleState("e4", "e5")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, sampleState("e4")); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	got, _ := s.Load(ctx, "g1")
	if len(got.MovesSAN) != 2 {
		t.Fatalf("older snapshot overwrote newer one")
	}
}

func TestSnapshotsExpire(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(DefaultTTL + time.Minute)
	if got, _ := s.Load(ctx, "g1"); got != nil {
		t.Fatalf("snapshot did not expire")
	}
}

func TestParseRedisURL(t *testing.T) {
	o, err := ParseRedisURL("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("ParseRedisURL: %v", err)
	}
	if o.Addr != "localhost:6380" || o.Password != "secret" || o.DB != 2 {
		t.Fatalf("unexpected options %+v", o)
	}
	if _, err := ParseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
