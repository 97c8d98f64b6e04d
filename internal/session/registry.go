package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/learning"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/rules"
)

// SnapshotStore persists live session state so a game can be rehydrated after a restart.
type SnapshotStore interface {
	Save(ctx context.Context, st State) error
	// Load returns nil without error when id is unknown.
	Load(ctx context.Context, id string) (*State, error)
	Delete(ctx context.Context, st State) error
}

// Archiver receives every finished game once.
type Archiver interface {
	Archive(ctx context.Context, st State) error
}

type RegistryConfig struct {
	InitialClockMs int64
	FinishedGrace  time.Duration
	Scheduler      Scheduler
	Emitter        Emitter
	Store          SnapshotStore
	Archivers      []Archiver
	Reviewer       *learning.Reviewer
	NewBot         func() *BotController
	Now            func() time.Time
	StoreTimeout   time.Duration
}

// Registry owns the live sessions by id.
type Registry struct {
	cfg RegistryConfig

	mu       sync.RWMutex
	sessions map[string]*Session
	byPlayer map[string]string

	wg sync.WaitGroup
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler{}
	}
	if cfg.FinishedGrace <= 0 {
		cfg.FinishedGrace = time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]string),
	}
}

// Create registers a new session. The caller starts it once both seats are bound.
func (r *Registry) Create(white, black Seat) *Session {
	id := uuid.NewString()
	s := New(id, white, black, r.sessionConfig(white.Bot || black.Bot))
	r.register(s, white, black)
	r.save(s.State())
	obslog.L().Info("session_created",
		zap.String("game_id", id),
		zap.String("white", white.PlayerID),
		zap.String("black", black.PlayerID),
		zap.Bool("bot", white.Bot || black.Bot),
	)
	return s
}

func (r *Registry) sessionConfig(withBot bool) Config {
	cfg := Config{
		InitialClockMs: r.cfg.InitialClockMs,
		Scheduler:      r.cfg.Scheduler,
		Emitter:        r.cfg.Emitter,
		Now:            r.cfg.Now,
		Hooks:          Hooks{OnChange: r.save, OnFinish: r.onFinish},
	}
	if withBot && r.cfg.NewBot != nil {
		cfg.Bot = r.cfg.NewBot()
	}
	return cfg
}

func (r *Registry) register(s *Session, white, black Seat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	for _, seat := range []Seat{white, black} {
		if !seat.Bot {
			r.byPlayer[seat.PlayerID] = s.ID()
		}
	}
}

// Get returns a live session from memory only.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Lookup finds an active session, rehydrating it from the snapshot store when needed.
func (r *Registry) Lookup(ctx context.Context, id string) (*Session, error) {
	if s, ok := r.Get(id); ok {
		if s.Finished() {
			return nil, ErrGameNotFound
		}
		return s, nil
	}
	if r.cfg.Store == nil || id == "" {
		return nil, ErrGameNotFound
	}
	st, err := r.cfg.Store.Load(ctx, id)
	if err != nil {
		obslog.L().Warn("session_rehydrate_failed", zap.String("game_id", id), zap.Error(err))
		return nil, ErrGameNotFound
	}
	if st == nil || st.Status != StatusActive {
		return nil, ErrGameNotFound
	}
	s, err := Restore(*st, r.sessionConfig(st.HasBot()))
	if err != nil {
		obslog.L().Warn("session_rehydrate_failed", zap.String("game_id", id), zap.Error(err))
		return nil, ErrGameNotFound
	}

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.sessions[id] = s
	for _, seat := range []Seat{st.White, st.Black} {
		if !seat.Bot {
			r.byPlayer[seat.PlayerID] = id
		}
	}
	r.mu.Unlock()

	s.Resume()
	obslog.L().Info("session_rehydrated", zap.String("game_id", id), zap.Int("plies", len(st.MovesSAN)))
	return s, nil
}

// View reads an active game without taking ownership of it: a game known only to the
// snapshot store is read as stored and not rehydrated, so its clock stays stopped.
func (r *Registry) View(ctx context.Context, id string) (State, bool) {
	if s, ok := r.Get(id); ok {
		st := s.State()
		return st, st.Status == StatusActive
	}
	if r.cfg.Store == nil || id == "" {
		return State{}, false
	}
	st, err := r.cfg.Store.Load(ctx, id)
	if err != nil {
		obslog.L().Warn("session_view_failed", zap.String("game_id", id), zap.Error(err))
		return State{}, false
	}
	if st == nil || st.Status != StatusActive {
		return State{}, false
	}
	return *st, true
}

// ActiveFor returns the active session playerID is seated in.
func (r *Registry) ActiveFor(playerID string) (*Session, bool) {
	r.mu.RLock()
	id, ok := r.byPlayer[playerID]
	s := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s == nil || s.Finished() {
		return nil, false
	}
	return s, true
}

// playerIndex is implemented by stores that can find a player's persisted game.
type playerIndex interface {
	ActiveForPlayer(ctx context.Context, playerID string) (*State, error)
}

// Resume is ActiveFor extended to the snapshot store, for players whose game was
// persisted by another process.
func (r *Registry) Resume(ctx context.Context, playerID string) (*Session, bool) {
	if s, ok := r.ActiveFor(playerID); ok {
		return s, true
	}
	idx, ok := r.cfg.Store.(playerIndex)
	if !ok || playerID == "" {
		return nil, false
	}
	st, err := idx.ActiveForPlayer(ctx, playerID)
	if err != nil {
		obslog.L().Warn("session_player_index_failed", zap.String("player_id", playerID), zap.Error(err))
		return nil, false
	}
	if st == nil {
		return nil, false
	}
	s, err := r.Lookup(ctx, st.ID)
	if err != nil {
		return nil, false
	}
	return s, true
}

// Len counts sessions held in memory, finished ones awaiting eviction included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Wait blocks until background finalization (archive and review) has drained.
func (r *Registry) Wait() { r.wg.Wait() }

// Shutdown stops every clock and waits for finalization.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	for _, s := range r.sessions {
		s.Stop()
	}
	r.mu.RUnlock()
	r.wg.Wait()
}

func (r *Registry) save(st State) {
	if r.cfg.Store == nil || st.Status != StatusActive {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.StoreTimeout)
	defer cancel()
	if err := r.cfg.Store.Save(ctx, st); err != nil {
		obslog.L().Warn("session_snapshot_failed", zap.String("game_id", st.ID), zap.Error(err))
	}
}

func (r *Registry) onFinish(st State) {
	r.mu.Lock()
	for _, seat := range []Seat{st.White, st.Black} {
		if r.byPlayer[seat.PlayerID] == st.ID {
			delete(r.byPlayer, seat.PlayerID)
		}
	}
	r.mu.Unlock()

	r.cfg.Scheduler.After(r.cfg.FinishedGrace, func() { r.evict(st.ID) })

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.finalize(st)
	}()
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.Finished() {
		delete(r.sessions, id)
		obslog.L().Debug("session_evicted", zap.String("game_id", id))
	}
}

// finalize is best effort: every failure is logged and dropped.
func (r *Registry) finalize(st State) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*r.cfg.StoreTimeout)
	defer cancel()

	if r.cfg.Store != nil {
		if err := r.cfg.Store.Delete(ctx, st); err != nil {
			obslog.L().Warn("session_snapshot_delete_failed", zap.String("game_id", st.ID), zap.Error(err))
		}
	}
	for _, a := range r.cfg.Archivers {
		if err := a.Archive(ctx, st); err != nil {
			obslog.L().Error("session_archive_failed", zap.String("game_id", st.ID), zap.Error(err))
		}
	}
	if r.cfg.Reviewer != nil && st.HasBot() && st.Outcome != nil {
		bot := rules.White
		if st.Black.Bot {
			bot = rules.Black
		}
		if _, err := r.cfg.Reviewer.ReviewCompletedGame(ctx, st.MovesSAN, st.Outcome.Winner, bot); err != nil {
			obslog.L().Warn("learning_review_failed", zap.String("game_id", st.ID), zap.Error(err))
		}
	}
}
