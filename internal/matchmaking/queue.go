// Package matchmaking pairs waiting players and falls back to a bot after a timeout.
package matchmaking

import (
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/chessdto"
)

// DefaultTimeout is how long a lone player waits before a bot game is created.
const DefaultTimeout = 10 * time.Second

var ErrInvalidTicket = errors.New("player profile missing")

// Ticket is a queued player.
type Ticket struct {
	PlayerID   string
	Username   string
	Rating     int
	EnqueuedAt time.Time
}

func (t Ticket) seat() session.Seat {
	return session.Seat{PlayerID: t.PlayerID, Username: t.Username, Rating: t.Rating}
}

// GameFactory creates registered sessions; *session.Registry satisfies it.
type GameFactory interface {
	Create(white, black session.Seat) *session.Session
}

type Config struct {
	Timeout   time.Duration
	Games     GameFactory
	Emitter   session.Emitter
	Scheduler session.Scheduler
	BotSeat   func() session.Seat
	Now       func() time.Time
}

// Outcome of Enqueue.
type Outcome int

const (
	Queued Outcome = iota
	Paired
	AlreadyQueued
)

type entry struct {
	ticket Ticket
	gen    uint64
	cancel func()
}

// Queue serializes enqueue, pairing, cancellation and timeout firing behind one mutex.
type Queue struct {
	cfg Config

	mu       sync.Mutex
	waiting  []*entry
	byPlayer map[string]*entry
	gen      uint64
}

func New(cfg Config) *Queue {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = session.RealScheduler{}
	}
	if cfg.Emitter == nil {
		cfg.Emitter = session.EmitterFunc(func(string, session.Event) {})
	}
	if cfg.BotSeat == nil {
		cfg.BotSeat = func() session.Seat { return session.NewBotSeat("ChessBot", 2000) }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Queue{cfg: cfg, byPlayer: make(map[string]*entry)}
}

// Enqueue pairs t with the longest-waiting ticket, which takes white, or queues it and arms
// the bot timeout.
func (q *Queue) Enqueue(t Ticket) (Outcome, *session.Session, error) {
	t.PlayerID = strings.TrimSpace(t.PlayerID)
	t.Username = strings.TrimSpace(t.Username)
	if t.PlayerID == "" {
		return Queued, nil, session.ErrUnauthenticated
	}
	if t.Username == "" {
		return Queued, nil, ErrInvalidTicket
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = q.cfg.Now()
	}

	q.mu.Lock()
	if _, ok := q.byPlayer[t.PlayerID]; ok {
		q.mu.Unlock()
		q.cfg.Emitter.Emit(t.PlayerID, session.Event{Type: chessdto.EventWaitingForOpponent})
		return AlreadyQueued, nil, nil
	}
	if len(q.waiting) > 0 {
		opp := q.waiting[0]
		q.waiting = q.waiting[1:]
		delete(q.byPlayer, opp.ticket.PlayerID)
		opp.cancel()
		q.mu.Unlock()

		s := q.cfg.Games.Create(opp.ticket.seat(), t.seat())
		obslog.L().Info("match_paired",
			zap.String("game_id", s.ID()),
			zap.String("white", opp.ticket.PlayerID),
			zap.String("black", t.PlayerID),
			zap.Duration("waited", q.cfg.Now().Sub(opp.ticket.EnqueuedAt)),
		)
		s.Start()
		return Paired, s, nil
	}

	q.gen++
	e := &entry{ticket: t, gen: q.gen}
	gen, player := e.gen, t.PlayerID
	e.cancel = q.cfg.Scheduler.After(q.cfg.Timeout, func() { q.expire(player, gen) })
	q.waiting = append(q.waiting, e)
	q.byPlayer[player] = e
	q.mu.Unlock()

	obslog.L().Info("match_waiting", zap.String("player_id", player))
	q.cfg.Emitter.Emit(player, session.Event{Type: chessdto.EventWaitingForOpponent})
	return Queued, nil, nil
}

// expire turns a still-waiting ticket into a bot game. Stale firings are ignored.
func (q *Queue) expire(playerID string, gen uint64) {
	q.mu.Lock()
	e, ok := q.byPlayer[playerID]
	if !ok || e.gen != gen {
		q.mu.Unlock()
		return
	}
	q.removeLocked(e)
	q.mu.Unlock()

	s := q.cfg.Games.Create(e.ticket.seat(), q.cfg.BotSeat())
	obslog.L().Info("match_bot_fallback",
		zap.String("game_id", s.ID()),
		zap.String("player_id", playerID),
	)
	s.Start()
}

// Cancel removes playerID from the queue. It reports whether a ticket was removed.
func (q *Queue) Cancel(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byPlayer[playerID]
	if !ok {
		return false
	}
	q.removeLocked(e)
	e.cancel()
	obslog.L().Info("match_cancelled", zap.String("player_id", playerID))
	return true
}

func (q *Queue) removeLocked(e *entry) {
	delete(q.byPlayer, e.ticket.PlayerID)
	for i, w := range q.waiting {
		if w == e {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

// Waiting reports whether playerID holds a ticket.
func (q *Queue) Waiting(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byPlayer[playerID]
	return ok
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}
