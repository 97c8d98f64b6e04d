package search

import (
	"errors"
	"math"

	"github.com/park285/chess-arena/internal/engine/eval"
	"github.com/park285/chess-arena/internal/rules"
)

// MateScore dominates any material evaluation.
const MateScore = 1_000_000

// ErrSearchBudgetExceeded marks a search that stopped early on its node budget.
var ErrSearchBudgetExceeded = errors.New("search budget exceeded")

// SearchNode is the result of a root search.
type SearchNode struct {
	Move    *rules.Move
	Value   int
	Depth   int
	Nodes   int
	Cutoffs int
	Err     error
}

type searcher struct {
	ev      *eval.Evaluator
	nodes   int
	cutoffs int
}

// Search runs a fixed-depth search below every root candidate, in the given order.
// Values are white-positive; the mover keeps the first candidate with a strictly better value.
// With pruned false the tree is searched by plain minimax.
func Search(ev *eval.Evaluator, p rules.Position, candidates []rules.Move, depth int, pruned bool, budget int) SearchNode {
	s := &searcher{ev: ev}
	res := SearchNode{Depth: depth}
	if len(candidates) == 0 {
		return res
	}
	if depth < 1 {
		depth = 1
	}
	mover := p.Turn()
	best := math.MinInt
	for i := range candidates {
		if budget > 0 && s.nodes >= budget && res.Move != nil {
			res.Err = ErrSearchBudgetExceeded
			break
		}
		next, _ := p.Apply(candidates[i])
		s.nodes++
		var v int
		if pruned {
			v = s.alphaBeta(next, depth-1, math.MinInt+1, math.MaxInt)
		} else {
			v = s.minimax(next, depth-1)
		}
		if score := v * mover.Sign(); score > best {
			best = score
			m := candidates[i]
			res.Move = &m
			res.Value = v
		}
	}
	res.Nodes = s.nodes
	res.Cutoffs = s.cutoffs
	return res
}

func (s *searcher) alphaBeta(p rules.Position, depth, alpha, beta int) int {
	if depth <= 0 {
		return s.ev.Evaluate(p)
	}
	moves := p.Candidates()
	if v, ok := s.terminal(p, moves, depth); ok {
		return v
	}
	orderInner(moves)
	if p.Turn() == rules.White {
		value := math.MinInt + 1
		for _, m := range moves {
			next, _ := p.Apply(m)
			s.nodes++
			value = max(value, s.alphaBeta(next, depth-1, alpha, beta))
			alpha = max(alpha, value)
			if beta <= alpha {
				s.cutoffs++
				break
			}
		}
		return value
	}
	value := math.MaxInt
	for _, m := range moves {
		next, _ := p.Apply(m)
		s.nodes++
		value = min(value, s.alphaBeta(next, depth-1, alpha, beta))
		beta = min(beta, value)
		if beta <= alpha {
			s.cutoffs++
			break
		}
	}
	return value
}

func (s *searcher) minimax(p rules.Position, depth int) int {
	if depth <= 0 {
		return s.ev.Evaluate(p)
	}
	moves := p.Candidates()
	if v, ok := s.terminal(p, moves, depth); ok {
		return v
	}
	orderInner(moves)
	white := p.Turn() == rules.White
	value := math.MaxInt
	if white {
		value = math.MinInt + 1
	}
	for _, m := range moves {
		next, _ := p.Apply(m)
		s.nodes++
		v := s.minimax(next, depth-1)
		if white {
			value = max(value, v)
		} else {
			value = min(value, v)
		}
	}
	return value
}

// terminal scores checkmate by distance and falls back to the static value for other ends.
func (s *searcher) terminal(p rules.Position, moves []rules.Move, depth int) (int, bool) {
	if len(moves) == 0 {
		if p.InCheck() {
			return -p.Turn().Sign() * (MateScore + depth), true
		}
		return s.ev.Evaluate(p), true
	}
	if p.InsufficientMaterial() {
		return s.ev.Evaluate(p), true
	}
	return 0, false
}

// AlphaBeta searches candidates with alpha-beta pruning and no node budget.
func AlphaBeta(ev *eval.Evaluator, p rules.Position, candidates []rules.Move, depth int) SearchNode {
	return Search(ev, p, candidates, depth, true, 0)
}

// Minimax searches candidates exhaustively.
func Minimax(ev *eval.Evaluator, p rules.Position, candidates []rules.Move, depth int) SearchNode {
	return Search(ev, p, candidates, depth, false, 0)
}
