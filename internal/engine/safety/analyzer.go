// Package safety estimates the material risk of a single move.
package safety

import (
	"slices"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-arena/internal/rules"
)

const (
	undefendedFactor = 0.8
	exchangeFactor   = 0.3
	exposureFactor   = 0.5
)

// Exposure is a friendly piece left on an open line to an enemy slider.
type Exposure struct {
	Square nchess.Square
	Piece  nchess.Piece
	Slider nchess.Square
	Value  int
}

// SafetyReport is the outcome of AnalyzeSafety.
type SafetyReport struct {
	IsPieceInDanger bool
	MovedValue      int
	Attackers       []int
	Defenders       []int
	ExposedPieces   []Exposure
	Penalty         int
}

// AnalyzeSafety inspects the destination square and the vacated origin of m.
func AnalyzeSafety(p rules.Position, m rules.Move) SafetyReport {
	next, _ := p.Apply(m)
	mover := m.Color

	moved := m.Piece
	if m.Promotion != nchess.NoPieceType {
		moved = m.Promotion
	}
	rep := SafetyReport{MovedValue: rules.PieceValue(moved)}

	rep.Attackers = ReplyValuesOn(next, m.To)
	rep.Defenders = rules.Values(next.Attackers(m.To, mover))

	if len(rep.Attackers) > 0 && moved != nchess.King {
		cheapestAttacker := slices.Min(rep.Attackers)
		switch {
		case len(rep.Defenders) == 0:
			// undefended pieces are only scored when a cheaper piece can take them
			if cheapestAttacker < rep.MovedValue {
				rep.IsPieceInDanger = true
				rep.Penalty += int(float64(rep.MovedValue) * undefendedFactor)
			}
		case cheapestAttacker < slices.Min(rep.Defenders):
			if loss := rep.MovedValue - cheapestAttacker; loss > 0 {
				rep.IsPieceInDanger = true
				rep.Penalty += int(float64(loss) * exchangeFactor)
			}
		}
	}

	rep.ExposedPieces = exposures(next, m)
	for _, e := range rep.ExposedPieces {
		rep.Penalty += int(float64(e.Value) * exposureFactor)
	}
	return rep
}

// ReplyValuesOn lists the values of the side-to-move pieces that have a legal capture on sq.
func ReplyValuesOn(p rules.Position, sq nchess.Square) []int {
	var out []int
	for _, r := range p.Candidates() {
		if r.To == sq {
			out = append(out, rules.PieceValue(r.Piece))
		}
	}
	return out
}

func exposures(next rules.Position, m rules.Move) []Exposure {
	var out []Exposure
	for _, d := range rules.AllDirs {
		shielded, ok := next.FirstPieceAlong(m.From, d)
		if !ok || shielded.Square == m.To {
			continue
		}
		if rules.ColorOf(shielded.Piece) != m.Color || shielded.Piece.Type() == nchess.King {
			continue
		}
		back := rules.Direction{DF: -d.DF, DR: -d.DR}
		slider, ok := next.FirstPieceAlong(m.From, back)
		if !ok || rules.ColorOf(slider.Piece) == m.Color {
			continue
		}
		if !rules.SliderMatches(slider.Piece.Type(), d) {
			continue
		}
		out = append(out, Exposure{
			Square: shielded.Square,
			Piece:  shielded.Piece,
			Slider: slider.Square,
			Value:  rules.PieceValue(shielded.Piece.Type()),
		})
	}
	return out
}

// EvaluateExchange is a single-ply exchange estimate for capturing a piece worth capturedValue
// with a piece worth attackerValue. attackerPool holds the opponent's pieces that can recapture,
// defenderPool the capturing side's pieces covering the square.
func EvaluateExchange(capturedValue, attackerValue int, attackerPool, defenderPool []int) int {
	gain := capturedValue
	if len(attackerPool) == 0 {
		return gain
	}
	cheapest := slices.Min(attackerPool)
	if cheapest <= attackerValue {
		gain -= attackerValue
		if len(defenderPool) > 0 {
			gain += cheapest
		}
	}
	return gain
}

// CaptureGain runs EvaluateExchange for a capture move in p.
func CaptureGain(p rules.Position, m rules.Move) int {
	if !m.IsCapture() {
		return 0
	}
	next, _ := p.Apply(m)
	return EvaluateExchange(
		rules.PieceValue(m.Captured),
		rules.PieceValue(m.Piece),
		ReplyValuesOn(next, m.To),
		rules.Values(next.Attackers(m.To, m.Color)),
	)
}
