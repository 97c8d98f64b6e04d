// Package eval scores chess positions from white's point of view.
package eval

import (
	"math"
	"sync"
	"sync/atomic"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-arena/internal/rules"
)

// Weights tunes the heuristic terms.
type Weights struct {
	PSTWeight        float64 `yaml:"pst_weight" json:"pst_weight"`
	MobilityWeight   int     `yaml:"mobility_weight" json:"mobility_weight"`
	CheckPenalty     int     `yaml:"check_penalty" json:"check_penalty"`
	KingSafetyWeight int     `yaml:"king_safety_weight" json:"king_safety_weight"`
	CastledBonus     int     `yaml:"castled_bonus" json:"castled_bonus"`
	CenterBonus      int     `yaml:"center_bonus" json:"center_bonus"`
}

// DefaultWeights is the canonical tuning: half-weight tables and a 50cp check penalty.
func DefaultWeights() Weights {
	return Weights{
		PSTWeight:        0.5,
		MobilityWeight:   2,
		CheckPenalty:     50,
		KingSafetyWeight: 10,
		CastledBonus:     25,
		CenterBonus:      10,
	}
}

// DefaultCacheLimit is the entry count above which the cache is dropped.
const DefaultCacheLimit = 1000

var (
	centerSquares = []nchess.Square{nchess.D4, nchess.D5, nchess.E4, nchess.E5}

	castledSquares = map[rules.Color][]nchess.Square{
		rules.White: {nchess.G1, nchess.C1},
		rules.Black: {nchess.G8, nchess.C8},
	}
)

// Evaluator is safe for concurrent use.
type Evaluator struct {
	w     Weights
	limit int

	mu    sync.Mutex
	cache map[string]int

	hits   atomic.Int64
	misses atomic.Int64
}

func New(w Weights, cacheLimit int) *Evaluator {
	if cacheLimit <= 0 {
		cacheLimit = DefaultCacheLimit
	}
	return &Evaluator{w: w, limit: cacheLimit, cache: make(map[string]int)}
}

func (e *Evaluator) Weights() Weights { return e.w }

// Evaluate returns the score of p; positive favors white.
func (e *Evaluator) Evaluate(p rules.Position) int {
	key := p.FEN()
	e.mu.Lock()
	if v, ok := e.cache[key]; ok {
		e.mu.Unlock()
		e.hits.Add(1)
		return v
	}
	e.mu.Unlock()
	e.misses.Add(1)

	v := e.compute(p)

	e.mu.Lock()
	if len(e.cache) > e.limit {
		clear(e.cache)
	}
	e.cache[key] = v
	e.mu.Unlock()
	return v
}

// Stats reports cache hits, misses and current size.
func (e *Evaluator) Stats() (hits, misses int64, size int) {
	e.mu.Lock()
	size = len(e.cache)
	e.mu.Unlock()
	return e.hits.Load(), e.misses.Load(), size
}

func (e *Evaluator) compute(p rules.Position) int {
	var material, positional int
	for _, pc := range p.Pieces() {
		sign := rules.ColorOf(pc.Piece).Sign()
		material += sign * rules.PieceValue(pc.Piece.Type())
		positional += sign * SquareBonus(pc.Piece, pc.Square)
	}
	score := material + int(math.Round(float64(positional)*e.w.PSTWeight))

	turn := p.Turn()
	score += turn.Sign() * len(p.Candidates()) * e.w.MobilityWeight

	if p.InCheck() {
		score -= turn.Sign() * e.w.CheckPenalty
	}

	score += e.kingSafety(p, rules.White) + e.kingSafety(p, rules.Black)
	score += e.centerControl(p)
	return score
}

func (e *Evaluator) kingSafety(p rules.Position, c rules.Color) int {
	king, ok := p.KingSquare(c)
	if !ok {
		return 0
	}
	attackers := len(p.Attackers(king, c.Opposite()))
	defenders := len(p.Attackers(king, c))
	score := (defenders - attackers) * e.w.KingSafetyWeight
	for _, sq := range castledSquares[c] {
		if king == sq {
			score += e.w.CastledBonus
			break
		}
	}
	return c.Sign() * score
}

func (e *Evaluator) centerControl(p rules.Position) int {
	score := 0
	for _, sq := range centerSquares {
		if pc := p.PieceAt(sq); pc != nchess.NoPiece {
			score += rules.ColorOf(pc).Sign() * e.w.CenterBonus
		}
	}
	return score
}
