package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-arena/internal/learning"
	"github.com/park285/chess-arena/internal/rules"
)

type memSnapshots struct {
	mu      sync.Mutex
	states  map[string]State
	deleted []string
}

func newMemSnapshots() *memSnapshots { return &memSnapshots{states: make(map[string]State)} }

func (m *memSnapshots) Save(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.ID] = st
	return nil
}

func (m *memSnapshots) Load(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memSnapshots) Delete(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, st.ID)
	m.deleted = append(m.deleted, st.ID)
	return nil
}

type archiveFunc func(ctx context.Context, st State) error

func (f archiveFunc) Archive(ctx context.Context, st State) error { return f(ctx, st) }

func TestRegistryLifecycle(t *testing.T) {
	store := newMemSnapshots()
	sch := &manualScheduler{}
	var (
		mu       sync.Mutex
		archived []State
	)
	failing := archiveFunc(func(context.Context, State) error { return errors.New("db down") })
	recording := archiveFunc(func(_ context.Context, st State) error {
		mu.Lock()
		archived = append(archived, st)
		mu.Unlock()
		return nil
	})
	r := NewRegistry(RegistryConfig{Scheduler: sch, Store: store, Archivers: []Archiver{failing, recording}})

	s := r.Create(alice, bob)
	s.Start()
	if got, ok := r.ActiveFor("bob"); !ok || got != s {
		t.Fatalf("ActiveFor did not find the session")
	}
	mustMove(t, s, "alice", "e4")
	if st, _ := store.Load(context.Background(), s.ID()); st == nil || len(st.MovesSAN) != 1 {
		t.Fatalf("snapshot not saved after move: %+v", st)
	}

	if err := s.Resign("bob"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	r.Wait()

	mu.Lock()
	if len(archived) != 1 || archived[0].Outcome.Winner != "white" {
		t.Fatalf("archive hook not run once: %+v", archived)
	}
	mu.Unlock()
	if st, _ := store.Load(context.Background(), s.ID()); st != nil {
		t.Fatalf("snapshot kept after finish")
	}
	if _, ok := r.ActiveFor("alice"); ok {
		t.Fatalf("finished game still active for alice")
	}
	if _, err := r.Lookup(context.Background(), s.ID()); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}

	if r.Len() != 1 {
		t.Fatalf("finished game evicted before grace")
	}
	for _, fn := range sch.timers {
		fn()
	}
	if r.Len() != 0 {
		t.Fatalf("finished game not evicted")
	}
}

func TestRegistryRehydratesFromStore(t *testing.T) {
	store := newMemSnapshots()
	first := NewRegistry(RegistryConfig{Scheduler: &manualScheduler{}, Store: store})
	s := first.Create(alice, bob)
	mustMove(t, s, "alice", "d4")
	mustMove(t, s, "bob", "Nf6")
	fen := s.State().FEN

	second := NewRegistry(RegistryConfig{Scheduler: &manualScheduler{}, Store: store})
	got, err := second.Lookup(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.State().FEN != fen {
		t.Fatalf("rehydrated FEN %q, want %q", got.State().FEN, fen)
	}
	if again, _ := second.Lookup(context.Background(), s.ID()); again != got {
		t.Fatalf("second lookup built a new session")
	}
	if _, ok := second.ActiveFor("bob"); !ok {
		t.Fatalf("player index not rebuilt")
	}
	mustMove(t, got, "alice", "c4")

	if _, err := second.Lookup(context.Background(), "missing"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestRegistryReviewsBotLosses(t *testing.T) {
	learned := learning.NewMemoryStore()
	r := NewRegistry(RegistryConfig{Scheduler: &manualScheduler{}, Reviewer: learning.NewReviewer(learned)})
	bot := NewBotSeat("ChessBot", 2000)
	s := r.Create(bot, alice)

	for i, mv := range []string{"f3", "e5", "g4", "Qh4#"} {
		player := bot.PlayerID
		if i%2 == 1 {
			player = "alice"
		}
		mustMove(t, s, player, mv)
	}
	r.Wait()

	g, err := rules.ReplaySAN([]string{"f3", "e5"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	bad, _ := learned.Bad(context.Background(), g.FEN())
	if len(bad) != 1 || bad[0] != "g2g4" {
		t.Fatalf("expected g2g4 to be learned as bad, got %v", bad)
	}
}

type indexedSnapshots struct{ *memSnapshots }

func (m indexedSnapshots) ActiveForPlayer(_ context.Context, playerID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.states {
		if _, ok := st.ColorOf(playerID); ok && st.Status == StatusActive {
			return &st, nil
		}
	}
	return nil, nil
}

func TestRegistryResumeFromPlayerIndex(t *testing.T) {
	store := indexedSnapshots{newMemSnapshots()}
	first := NewRegistry(RegistryConfig{Scheduler: &manualScheduler{}, Store: store})
	s := first.Create(alice, bob)
	mustMove(t, s, "alice", "e4")

	second := NewRegistry(RegistryConfig{Scheduler: &manualScheduler{}, Store: store})
	if _, ok := second.ActiveFor("bob"); ok {
		t.Fatalf("fresh registry should not know bob in memory")
	}
	got, ok := second.Resume(context.Background(), "bob")
	if !ok || got.ID() != s.ID() {
		t.Fatalf("Resume did not find the persisted game")
	}
	if _, ok := second.Resume(context.Background(), "carol"); ok {
		t.Fatalf("carol has no game")
	}

	plain := NewRegistry(RegistryConfig{Scheduler: &manualScheduler{}, Store: newMemSnapshots()})
	if _, ok := plain.Resume(context.Background(), "bob"); ok {
		t.Fatalf("store without index resumed a game")
	}
}

// slowSnapshots stalls the first save with moves until released.
type slowSnapshots struct {
	*memSnapshots
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (m *slowSnapshots) Save(ctx context.Context, st State) error {
	if len(st.MovesSAN) == 1 {
		m.once.Do(func() {
			close(m.entered)
			<-m.release
		})
	}
	return m.memSnapshots.Save(ctx, st)
}

func TestLateSnapshotCannotReviveFinishedGame(t *testing.T) {
	store := &slowSnapshots{memSnapshots: newMemSnapshots(), entered: make(chan struct{}), release: make(chan struct{})}
	sch := &manualScheduler{}
	r := NewRegistry(RegistryConfig{Scheduler: sch, Store: store})
	s := r.Create(alice, bob)
	s.Start()

	moved := make(chan error, 1)
	go func() {
		_, err := s.ApplyMove("alice", "e4")
		moved <- err
	}()
	<-store.entered

	resigned := make(chan error, 1)
	go func() { resigned <- s.Resign("bob") }()
	// the resignation is decided at once; only its hooks queue behind the slow save
	for !s.Finished() {
		time.Sleep(time.Millisecond)
	}
	close(store.release)
	if err := <-moved; err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if err := <-resigned; err != nil {
		t.Fatalf("Resign: %v", err)
	}
	r.Wait()

	if st, _ := store.Load(context.Background(), s.ID()); st != nil {
		t.Fatalf("active snapshot written after finish: %+v", st)
	}
	for _, fn := range sch.timers {
		fn()
	}
	if _, err := r.Lookup(context.Background(), s.ID()); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("finished game rehydrated, err = %v", err)
	}
	if _, ok := r.Resume(context.Background(), "alice"); ok {
		t.Fatalf("finished game resumed for alice")
	}
}
