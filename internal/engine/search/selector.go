package search

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/engine/eval"
	"github.com/park285/chess-arena/internal/engine/openingbook"
	"github.com/park285/chess-arena/internal/engine/safety"
	"github.com/park285/chess-arena/internal/learning"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/rules"
)

// Tier names the rule that produced a decision.
type Tier string

const (
	TierNone        Tier = "none"
	TierLearned     Tier = "learned"
	TierCheckEscape Tier = "check_escape"
	TierCapture     Tier = "capture"
	TierBook        Tier = "book"
	TierDevelopment Tier = "development"
	TierSearch      Tier = "search"
)

// Decision describes how SelectMove arrived at its move.
type Decision struct {
	Tier        Tier
	Score       int
	Nodes       int
	Considered  int
	Elapsed     time.Duration
	Personality string
}

// Selector picks moves for bot seats. It is safe for concurrent use.
type Selector struct {
	ev    *eval.Evaluator
	book  *openingbook.Book
	store learning.Store

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Selector)

// WithBook replaces the default opening book. A nil book disables the tier.
func WithBook(b *openingbook.Book) Option { return func(s *Selector) { s.book = b } }

// WithStore enables the learned-move tier.
func WithStore(st learning.Store) Option { return func(s *Selector) { s.store = st } }

// WithSeed makes random choices reproducible.
func WithSeed(seed int64) Option {
	return func(s *Selector) { s.rng = rand.New(rand.NewSource(seed)) }
}

func NewSelector(ev *eval.Evaluator, opts ...Option) *Selector {
	if ev == nil {
		ev = eval.New(eval.DefaultWeights(), eval.DefaultCacheLimit)
	}
	s := &Selector{
		ev:   ev,
		book: openingbook.Default(),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Evaluator exposes the shared evaluator.
func (s *Selector) Evaluator() *eval.Evaluator { return s.ev }

// SelectMove returns nil only when p has no legal moves.
func (s *Selector) SelectMove(ctx context.Context, p rules.Position, pers Personality) (*rules.Move, Decision) {
	start := time.Now()
	pers = pers.Normalized()
	legal := p.LegalMoves()
	if len(legal) == 0 {
		return nil, Decision{Tier: TierNone, Personality: pers.Name}
	}

	m, d := s.decide(ctx, p, legal, pers)
	d.Elapsed = time.Since(start)
	d.Personality = pers.Name
	obslog.L().Debug("bot_decision",
		zap.String("tier", string(d.Tier)),
		zap.String("move", m.SAN),
		zap.String("style", string(pers.Style)),
		zap.Int("score", d.Score),
		zap.Int("nodes", d.Nodes),
		zap.Duration("elapsed", d.Elapsed),
	)
	return &m, d
}

func (s *Selector) decide(ctx context.Context, p rules.Position, legal []rules.Move, pers Personality) (rules.Move, Decision) {
	candidates := legal
	if s.store != nil {
		var (
			m  rules.Move
			ok bool
		)
		candidates, m, ok = s.learned(ctx, p, legal)
		if ok {
			return m, Decision{Tier: TierLearned, Considered: len(candidates)}
		}
	}

	if p.InCheck() {
		if m, ok := s.escapeCheck(p, candidates); ok {
			return m, Decision{Tier: TierCheckEscape, Considered: len(candidates)}
		}
	}

	if m, gain, ok := s.bestCapture(p, candidates); ok {
		return m, Decision{Tier: TierCapture, Score: gain, Considered: len(candidates)}
	}

	if s.book != nil && p.Ply() < pers.OpeningPlies {
		s.mu.Lock()
		m, ok := s.book.Suggest(p, candidates, s.rng)
		s.mu.Unlock()
		if ok {
			return m, Decision{Tier: TierBook, Considered: len(candidates)}
		}
		if m, ok := s.book.Development(candidates); ok {
			return m, Decision{Tier: TierDevelopment, Considered: len(candidates)}
		}
	}

	pool := s.shortlist(p, candidates, pers)
	res := Search(s.ev, p, pool, pers.Depth, true, pers.NodeBudget)
	if errors.Is(res.Err, ErrSearchBudgetExceeded) {
		obslog.L().Warn("search_budget_exceeded",
			zap.Int("budget", pers.NodeBudget),
			zap.Int("nodes", res.Nodes),
		)
	}
	if res.Move == nil {
		return pool[0], Decision{Tier: TierSearch, Considered: len(pool)}
	}
	return *res.Move, Decision{Tier: TierSearch, Score: res.Value, Nodes: res.Nodes, Considered: len(pool)}
}

// learned drops remembered bad moves (unless that empties the set) and plays a remembered good move.
func (s *Selector) learned(ctx context.Context, p rules.Position, legal []rules.Move) ([]rules.Move, rules.Move, bool) {
	fen := p.FEN()
	bad, err := s.store.Bad(ctx, fen)
	if err != nil {
		obslog.L().Warn("learning_lookup_failed", zap.Error(err))
		return legal, rules.Move{}, false
	}
	kept := legal
	if len(bad) > 0 {
		kept = make([]rules.Move, 0, len(legal))
		for _, m := range legal {
			if !slices.Contains(bad, m.UCI) {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			kept = legal
		}
	}
	good, err := s.store.Good(ctx, fen)
	if err != nil {
		obslog.L().Warn("learning_lookup_failed", zap.Error(err))
		return kept, rules.Move{}, false
	}
	for _, g := range good {
		for _, m := range kept {
			if m.UCI == g {
				return kept, m, true
			}
		}
	}
	return kept, rules.Move{}, false
}

// escapeCheck only considers king moves. Unattacked landing squares come first, then defended ones,
// then the static evaluation.
func (s *Selector) escapeCheck(p rules.Position, candidates []rules.Move) (rules.Move, bool) {
	mover := p.Turn()
	type option struct {
		move      rules.Move
		attackers int
		defenders int
		eval      int
	}
	var opts []option
	for _, m := range candidates {
		if m.Piece != nchess.King {
			continue
		}
		next, _ := p.Apply(m)
		o := option{
			move:      m,
			attackers: len(next.Attackers(m.To, mover.Opposite())),
			defenders: len(next.Attackers(m.To, mover)),
			eval:      s.ev.Evaluate(next) * mover.Sign(),
		}
		if o.attackers > 0 {
			continue
		}
		opts = append(opts, o)
	}
	if len(opts) == 0 {
		return rules.Move{}, false
	}
	sort.SliceStable(opts, func(i, j int) bool {
		a, b := opts[i], opts[j]
		if (a.defenders > 0) != (b.defenders > 0) {
			return a.defenders > 0
		}
		return a.eval > b.eval
	})
	return opts[0].move, true
}

// bestCapture keeps captures whose exchange is not losing and picks the best, breaking ties at random.
func (s *Selector) bestCapture(p rules.Position, candidates []rules.Move) (rules.Move, int, bool) {
	best := -1
	var top []rules.Move
	for _, m := range candidates {
		if !m.IsCapture() {
			continue
		}
		gain := safety.CaptureGain(p, m)
		switch {
		case gain < 0 || gain < best:
		case gain > best:
			best = gain
			top = append(top[:0], m)
		default:
			top = append(top, m)
		}
	}
	if len(top) == 0 {
		return rules.Move{}, 0, false
	}
	if len(top) == 1 {
		return top[0], best, true
	}
	s.mu.Lock()
	i := s.rng.Intn(len(top))
	s.mu.Unlock()
	return top[i], best, true
}

// shortlist orders candidates, drops dangerous ones and caps the result at TopN.
func (s *Selector) shortlist(p rules.Position, candidates []rules.Move, pers Personality) []rules.Move {
	ordered := orderRoot(candidates, pers.Style)
	type risky struct {
		move    rules.Move
		penalty int
	}
	var (
		safe []rules.Move
		all  []risky
	)
	for _, c := range ordered {
		pen := safety.AnalyzeSafety(p, c.move).Penalty
		all = append(all, risky{move: c.move, penalty: pen})
		if pen <= pers.DangerThreshold {
			safe = append(safe, c.move)
		}
	}
	if len(safe) == 0 {
		sort.SliceStable(all, func(i, j int) bool { return all[i].penalty < all[j].penalty })
		for i := 0; i < len(all) && i < pers.SafeFallback; i++ {
			safe = append(safe, all[i].move)
		}
	}
	if len(safe) > pers.TopN {
		safe = safe[:pers.TopN]
	}
	return safe
}
