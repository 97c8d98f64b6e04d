package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/rules"
	"github.com/park285/chess-arena/pkg/chessdto"
)

// DefaultClockMs is the initial time per side.
const DefaultClockMs int64 = 10 * 60 * 1000

// Hooks observe committed state. They run after the session lock is released.
type Hooks struct {
	// OnChange runs after moves, offers and terminal transitions. Ticks are not reported.
	OnChange func(st State)
	// OnFinish runs once, after the terminal transition.
	OnFinish func(st State)
}

type Config struct {
	InitialClockMs int64
	Scheduler      Scheduler
	Emitter        Emitter
	Bot            *BotController
	Now            func() time.Time
	Hooks          Hooks
}

func (c *Config) normalize() {
	if c.InitialClockMs <= 0 {
		c.InitialClockMs = DefaultClockMs
	}
	if c.Scheduler == nil {
		c.Scheduler = RealScheduler{}
	}
	if c.Emitter == nil {
		c.Emitter = EmitterFunc(func(string, Event) {})
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Session serializes every mutation of one game behind mu. Events produced by a mutation
// are delivered in mutation order after mu is released.
type Session struct {
	id  string
	cfg Config

	mu        sync.Mutex
	game      *rules.Game
	white     Seat
	black     Seat
	clock     Clock
	status    Status
	outcome   *Outcome
	friendly  bool
	pending   *Offer
	createdAt time.Time
	updatedAt time.Time
	endedAt   time.Time
	lastTick  time.Time
	handle    *clockHandle
	started   bool
	botBusy   bool

	// emitMu is taken before mu is released and hookMu before emitMu is released, so
	// events and hooks observe transitions in the order they happened.
	emitMu sync.Mutex
	hookMu sync.Mutex
}

type delivery struct {
	to string
	ev Event
}

type effects struct {
	out      []delivery
	changed  bool
	finished bool
}

// New creates an active session at the initial position with full clocks.
func New(id string, white, black Seat, cfg Config) *Session {
	cfg.normalize()
	now := cfg.Now()
	return &Session{
		id:        id,
		cfg:       cfg,
		game:      rules.NewGame(),
		white:     white,
		black:     black,
		clock:     Clock{White: cfg.InitialClockMs, Black: cfg.InitialClockMs},
		status:    StatusActive,
		createdAt: now,
		updatedAt: now,
		lastTick:  now,
	}
}

// Restore rebuilds a session from a snapshot by replaying its SAN history.
func Restore(st State, cfg Config) (*Session, error) {
	cfg.normalize()
	g, err := rules.ReplaySAN(st.MovesSAN)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", st.ID, err)
	}
	now := cfg.Now()
	s := &Session{
		id:        st.ID,
		cfg:       cfg,
		game:      g,
		white:     st.White,
		black:     st.Black,
		clock:     st.Clock,
		status:    st.Status,
		friendly:  st.Friendly,
		pending:   st.Pending,
		createdAt: st.CreatedAt,
		updatedAt: st.UpdatedAt,
		endedAt:   st.EndedAt,
		lastTick:  now,
	}
	if st.Outcome != nil {
		o := *st.Outcome
		s.outcome = &o
	}
	if s.status == "" {
		s.status = StatusActive
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Start announces the game to both seats and starts the clock.
func (s *Session) Start() {
	_ = s.run(func(fx *effects) error {
		for _, c := range []rules.Color{rules.White, rules.Black} {
			seat := s.seatLocked(c)
			fx.send(seat, Event{Type: chessdto.EventGameFound, Payload: s.snapshotLocked(seat.PlayerID)})
		}
		s.startLocked()
		return nil
	})
}

// Resume starts the clock of a restored session without announcing it.
func (s *Session) Resume() {
	_ = s.run(func(fx *effects) error {
		s.startLocked()
		return nil
	})
}

func (s *Session) startLocked() {
	if s.started || s.status != StatusActive {
		return
	}
	s.started = true
	s.lastTick = s.cfg.Now()
	s.handle = startClock(s.cfg.Scheduler, s.onTimer)
	obslog.L().Info("session_started",
		zap.String("game_id", s.id),
		zap.String("white", s.white.PlayerID),
		zap.String("black", s.black.PlayerID),
		zap.Int64("clock_ms", s.clock.White),
	)
}

// ApplyMove plays text (SAN or UCI) for playerID.
func (s *Session) ApplyMove(playerID, text string) (rules.MoveResult, error) {
	var res rules.MoveResult
	err := s.run(func(fx *effects) error {
		color, err := s.participantLocked(playerID)
		if err != nil {
			return err
		}
		res, err = s.applyLocked(fx, color, text)
		return err
	})
	return res, err
}

func (s *Session) applyLocked(fx *effects, color rules.Color, text string) (rules.MoveResult, error) {
	if s.status != StatusActive {
		return rules.MoveResult{}, ErrGameFinished
	}
	if color != s.game.Turn() {
		return rules.MoveResult{}, ErrNotYourTurn
	}
	res, err := s.game.Apply(text)
	if err != nil {
		return rules.MoveResult{}, fmt.Errorf("%w: %v", ErrInvalidMove, err)
	}
	now := s.cfg.Now()
	s.updatedAt = now
	s.lastTick = now
	fx.changed = true

	// moving answers an opponent's draw offer with a decline
	if s.pending != nil && s.pending.Kind == OfferDraw && s.pending.From != color {
		from := s.pending.From
		s.pending = nil
		fx.send(s.seatLocked(from), Event{Type: chessdto.EventDrawDeclined, Payload: chessdto.OfferNotice{GameID: s.id}})
	}

	switch {
	case res.Checkmate:
		s.finishLocked(fx, string(color), ReasonCheckmate)
	case res.Draw:
		s.finishLocked(fx, WinnerDraw, res.DrawReason)
	}
	fx.prepend(s.allLocked(Event{Type: chessdto.EventMoveMade, Payload: s.moveMadeLocked(res)}))
	return res, nil
}

// Tick charges elapsed to the side to move. Friendly games only report the frozen clock.
func (s *Session) Tick(elapsed time.Duration) {
	_ = s.run(func(fx *effects) error {
		s.tickLocked(fx, elapsed)
		return nil
	})
}

func (s *Session) onTimer() {
	_ = s.run(func(fx *effects) error {
		now := s.cfg.Now()
		elapsed := now.Sub(s.lastTick)
		s.lastTick = now
		s.tickLocked(fx, elapsed)
		return nil
	})
}

func (s *Session) tickLocked(fx *effects, elapsed time.Duration) {
	if s.status != StatusActive {
		return
	}
	turn := s.game.Turn()
	if !s.friendly && elapsed > 0 {
		rem := s.clock.Of(turn) - elapsed.Milliseconds()
		if rem < 0 {
			rem = 0
		}
		s.clock.set(turn, rem)
	}
	fx.sendAll(s.allLocked(Event{Type: chessdto.EventTimeUpdate, Payload: chessdto.TimeUpdate{
		GameID:        s.id,
		White:         s.clock.White,
		Black:         s.clock.Black,
		CurrentPlayer: string(turn),
	}}))
	if !s.friendly && s.clock.Of(turn) == 0 {
		s.finishLocked(fx, string(turn.Opposite()), ReasonTimeout)
	}
}

// OfferDraw records a draw offer. Offers to a bot are declined on the spot and never recorded.
func (s *Session) OfferDraw(playerID string) error {
	return s.offer(playerID, OfferDraw)
}

// ResolveDraw answers the opponent's pending draw offer.
func (s *Session) ResolveDraw(playerID string, accept bool) error {
	return s.resolve(playerID, OfferDraw, accept)
}

// OfferFriendly proposes switching off the clock. A bot declines it.
func (s *Session) OfferFriendly(playerID string) error {
	return s.offer(playerID, OfferFriendly)
}

// ResolveFriendly answers the opponent's pending friendly-game offer.
func (s *Session) ResolveFriendly(playerID string, accept bool) error {
	return s.resolve(playerID, OfferFriendly, accept)
}

func (s *Session) offer(playerID string, kind OfferKind) error {
	return s.run(func(fx *effects) error {
		color, err := s.participantLocked(playerID)
		if err != nil {
			return err
		}
		if s.status != StatusActive {
			return ErrGameFinished
		}
		if kind == OfferFriendly && s.friendly {
			return nil
		}
		if s.pending != nil {
			return ErrOfferPending
		}
		notice := chessdto.OfferNotice{GameID: s.id, From: string(color)}
		opp := s.seatLocked(color.Opposite())
		if opp.Bot {
			obslog.L().Info("bot_declined_offer", zap.String("game_id", s.id), zap.String("kind", string(kind)))
			fx.send(s.seatLocked(color), Event{Type: declinedEvent(kind), Payload: notice})
			return nil
		}
		s.pending = &Offer{Kind: kind, From: color}
		fx.changed = true
		typ := chessdto.EventDrawOffered
		if kind == OfferFriendly {
			typ = chessdto.EventFriendlyGameOffered
		}
		fx.send(opp, Event{Type: typ, Payload: notice})
		return nil
	})
}

func (s *Session) resolve(playerID string, kind OfferKind, accept bool) error {
	return s.run(func(fx *effects) error {
		color, err := s.participantLocked(playerID)
		if err != nil {
			return err
		}
		if s.status != StatusActive {
			return ErrGameFinished
		}
		if s.pending == nil || s.pending.Kind != kind || s.pending.From == color {
			return ErrNoOffer
		}
		from := s.pending.From
		s.pending = nil
		fx.changed = true
		notice := chessdto.OfferNotice{GameID: s.id, From: string(color)}
		switch {
		case !accept:
			fx.send(s.seatLocked(from), Event{Type: declinedEvent(kind), Payload: notice})
		case kind == OfferDraw:
			s.finishLocked(fx, WinnerDraw, ReasonAgreement)
		default:
			s.friendly = true
			fx.sendAll(s.allLocked(Event{Type: chessdto.EventFriendlyGameAccepted, Payload: notice}))
			obslog.L().Info("session_friendly", zap.String("game_id", s.id))
		}
		return nil
	})
}

func declinedEvent(kind OfferKind) string {
	if kind == OfferFriendly {
		return chessdto.EventFriendlyGameDeclined
	}
	return chessdto.EventDrawDeclined
}

// Resign ends the game in favor of playerID's opponent.
func (s *Session) Resign(playerID string) error {
	return s.run(func(fx *effects) error {
		color, err := s.participantLocked(playerID)
		if err != nil {
			return err
		}
		if s.status != StatusActive {
			return ErrGameFinished
		}
		s.finishLocked(fx, string(color.Opposite()), ReasonResignation)
		return nil
	})
}

// OnDisconnect forfeits an active game for playerID. It reports whether the game ended.
func (s *Session) OnDisconnect(playerID string) bool {
	ended := false
	_ = s.run(func(fx *effects) error {
		color, err := s.participantLocked(playerID)
		if err != nil || s.status != StatusActive {
			return nil
		}
		s.finishLocked(fx, string(color.Opposite()), ReasonDisconnect)
		ended = true
		return nil
	})
	return ended
}

// Rejoin validates that playerID may resume this game and sends it a gameRejoined snapshot.
// Connection rebinding is owned by the transport; no game state changes.
func (s *Session) Rejoin(playerID string) (chessdto.GameSnapshot, error) {
	var snap chessdto.GameSnapshot
	err := s.run(func(fx *effects) error {
		if s.status != StatusActive {
			return ErrGameNotFound
		}
		if _, err := s.participantLocked(playerID); err != nil {
			return err
		}
		snap = s.snapshotLocked(playerID)
		fx.send(s.seatByIDLocked(playerID), Event{Type: chessdto.EventGameRejoined, Payload: snap})
		return nil
	})
	return snap, err
}

// Snapshot is the game as seen by playerID; unknown ids get the spectator view.
func (s *Session) Snapshot(playerID string) chessdto.GameSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(playerID)
}

// State returns the serializable state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Position returns the current position.
func (s *Session) Position() rules.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Position()
}

func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusFinished
}

// Stop cancels the clock without finishing the game, for shutdown.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle.stop()
}

func (s *Session) finishLocked(fx *effects, winner, reason string) {
	if s.status == StatusFinished {
		return
	}
	s.status = StatusFinished
	s.outcome = &Outcome{Winner: winner, Reason: reason}
	s.pending = nil
	s.endedAt = s.cfg.Now()
	s.updatedAt = s.endedAt
	s.handle.stop()
	fx.changed = true
	fx.finished = true
	fx.sendAll(s.allLocked(Event{Type: chessdto.EventGameOver, Payload: chessdto.GameOver{GameID: s.id, Winner: winner, Reason: reason}}))
	obslog.L().Info("session_finished",
		zap.String("game_id", s.id),
		zap.String("winner", winner),
		zap.String("reason", reason),
		zap.Int("plies", len(s.game.History())),
	)
}

// run executes fn under the session lock, then delivers events, hooks and a pending bot turn.
func (s *Session) run(fn func(fx *effects) error) error {
	fx := &effects{}
	s.mu.Lock()
	err := fn(fx)
	var st State
	if fx.changed {
		st = s.stateLocked()
	}
	botDue := s.botDueLocked()
	s.emitMu.Lock()
	s.mu.Unlock()
	for _, d := range fx.out {
		s.cfg.Emitter.Emit(d.to, d.ev)
	}
	s.hookMu.Lock()
	s.emitMu.Unlock()

	if fx.changed && s.cfg.Hooks.OnChange != nil {
		s.cfg.Hooks.OnChange(st)
	}
	if fx.finished && s.cfg.Hooks.OnFinish != nil {
		s.cfg.Hooks.OnFinish(st)
	}
	s.hookMu.Unlock()
	if botDue {
		s.cfg.Scheduler.After(s.cfg.Bot.Delay(), s.playBot)
	}
	return err
}

func (s *Session) botDueLocked() bool {
	if s.cfg.Bot == nil || s.botBusy || !s.started || s.status != StatusActive {
		return false
	}
	if !s.seatLocked(s.game.Turn()).Bot {
		return false
	}
	s.botBusy = true
	return true
}

func (s *Session) playBot() {
	s.mu.Lock()
	turn := s.game.Turn()
	if s.status != StatusActive || !s.seatLocked(turn).Bot {
		s.botBusy = false
		s.mu.Unlock()
		return
	}
	pos := s.game.Position()
	ply := len(s.game.History())
	s.mu.Unlock()

	m, d := s.cfg.Bot.Decide(context.Background(), pos)
	_ = s.run(func(fx *effects) error {
		s.botBusy = false
		if m == nil || s.status != StatusActive || len(s.game.History()) != ply {
			return nil
		}
		if _, err := s.applyLocked(fx, turn, m.UCI); err != nil {
			obslog.L().Error("bot_move_rejected", zap.String("game_id", s.id), zap.String("move", m.UCI), zap.Error(err))
			return err
		}
		obslog.L().Info("bot_move",
			zap.String("game_id", s.id),
			zap.String("move", m.SAN),
			zap.String("tier", string(d.Tier)),
			zap.Int("score", d.Score),
			zap.Duration("think", d.Elapsed),
		)
		return nil
	})
}

func (s *Session) participantLocked(playerID string) (rules.Color, error) {
	if playerID == "" {
		return "", ErrUnauthenticated
	}
	c, ok := s.stateColorLocked(playerID)
	if !ok {
		return "", ErrNotAParticipant
	}
	return c, nil
}

func (s *Session) stateColorLocked(playerID string) (rules.Color, bool) {
	switch playerID {
	case s.white.PlayerID:
		return rules.White, true
	case s.black.PlayerID:
		return rules.Black, true
	}
	return "", false
}

func (s *Session) seatLocked(c rules.Color) Seat {
	if c == rules.Black {
		return s.black
	}
	return s.white
}

func (s *Session) seatByIDLocked(playerID string) Seat {
	c, _ := s.stateColorLocked(playerID)
	return s.seatLocked(c)
}

// allLocked addresses ev to every human seat.
func (s *Session) allLocked(ev Event) []delivery {
	var out []delivery
	for _, seat := range []Seat{s.white, s.black} {
		if !seat.Bot && seat.PlayerID != "" {
			out = append(out, delivery{to: seat.PlayerID, ev: ev})
		}
	}
	return out
}

func (fx *effects) send(seat Seat, ev Event) {
	if seat.Bot || seat.PlayerID == "" {
		return
	}
	fx.out = append(fx.out, delivery{to: seat.PlayerID, ev: ev})
}

func (fx *effects) sendAll(ds []delivery) { fx.out = append(fx.out, ds...) }

// prepend keeps moveMade ahead of any gameOver raised by the same move.
func (fx *effects) prepend(ds []delivery) { fx.out = append(ds, fx.out...) }

func (s *Session) stateLocked() State {
	st := State{
		ID:        s.id,
		White:     s.white,
		Black:     s.black,
		MovesSAN:  s.game.History(),
		MovesUCI:  s.game.HistoryUCI(),
		FEN:       s.game.FEN(),
		Clock:     s.clock,
		Friendly:  s.friendly,
		Status:    s.status,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
		EndedAt:   s.endedAt,
	}
	if s.pending != nil {
		p := *s.pending
		st.Pending = &p
	}
	if s.outcome != nil {
		o := *s.outcome
		st.Outcome = &o
	}
	return st
}

func (s *Session) snapshotLocked(playerID string) chessdto.GameSnapshot {
	snap := chessdto.GameSnapshot{
		GameID:         s.id,
		White:          s.white.DTO(),
		Black:          s.black.DTO(),
		FEN:            s.game.FEN(),
		TimeLeft:       chessdto.Clock{White: s.clock.White, Black: s.clock.Black},
		CurrentPlayer:  string(s.game.Turn()),
		Moves:          s.game.History(),
		IsFriendlyGame: s.friendly,
		Status:         string(s.status),
	}
	if c, ok := s.stateColorLocked(playerID); ok {
		snap.Color = string(c)
		opp := s.seatLocked(c.Opposite()).DTO()
		snap.Opponent = &opp
	}
	if s.outcome != nil {
		snap.Outcome = &chessdto.Outcome{Winner: s.outcome.Winner, Reason: s.outcome.Reason}
	}
	if s.pending != nil {
		snap.PendingOffer = string(s.pending.Kind)
	}
	return snap
}

func (s *Session) moveMadeLocked(res rules.MoveResult) chessdto.MoveMade {
	m := res.Move
	mm := chessdto.MoveMade{
		GameID: s.id,
		Move: chessdto.MoveInfo{
			SAN:       m.SAN,
			UCI:       m.UCI,
			From:      rules.SquareName(m.From),
			To:        rules.SquareName(m.To),
			Promotion: rules.PieceName(m.Promotion),
			Captured:  rules.PieceName(m.Captured),
			IsCheck:   res.Check,
			Color:     string(m.Color),
		},
		FEN:           res.FEN,
		CurrentPlayer: string(res.Turn),
		Status:        string(s.status),
		Moves:         s.game.History(),
	}
	if s.outcome != nil {
		mm.Outcome = &chessdto.Outcome{Winner: s.outcome.Winner, Reason: s.outcome.Reason}
	}
	return mm
}
