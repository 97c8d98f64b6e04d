package search

import (
	"math/rand"
	"strings"
)

// Style biases move ordering.
type Style string

const (
	StyleBalanced   Style = "balanced"
	StyleAggressive Style = "aggressive"
	StyleDefensive  Style = "defensive"
)

var styles = []Style{StyleBalanced, StyleAggressive, StyleDefensive}

// ParseStyle maps text to a Style, defaulting to balanced.
func ParseStyle(s string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleAggressive:
		return StyleAggressive
	case StyleDefensive:
		return StyleDefensive
	default:
		return StyleBalanced
	}
}

// Personality is the bot configuration for one decision. It is a value: callers that want
// the bot to change its mood between moves produce a new one with Drift.
type Personality struct {
	Name            string  `yaml:"name" json:"name"`
	Style           Style   `yaml:"style" json:"style"`
	Depth           int     `yaml:"depth" json:"depth"`
	TopN            int     `yaml:"top_n" json:"top_n"`
	OpeningPlies    int     `yaml:"opening_plies" json:"opening_plies"`
	DangerThreshold int     `yaml:"danger_threshold" json:"danger_threshold"`
	SafeFallback    int     `yaml:"safe_fallback" json:"safe_fallback"`
	NodeBudget      int     `yaml:"node_budget" json:"node_budget"`
	DriftChance     float64 `yaml:"drift_chance" json:"drift_chance"`
}

// DefaultPersonality mirrors the reference bot: depth 3 over the best 15 candidates.
func DefaultPersonality() Personality {
	return Personality{
		Name:            "default",
		Style:           StyleBalanced,
		Depth:           3,
		TopN:            15,
		OpeningPlies:    8,
		DangerThreshold: 200,
		SafeFallback:    3,
		DriftChance:     0.1,
	}
}

// Normalized fills zero fields from the defaults.
func (p Personality) Normalized() Personality {
	d := DefaultPersonality()
	if p.Name == "" {
		p.Name = d.Name
	}
	p.Style = ParseStyle(string(p.Style))
	if p.Depth <= 0 {
		p.Depth = d.Depth
	}
	if p.TopN <= 0 {
		p.TopN = d.TopN
	}
	if p.OpeningPlies < 0 {
		p.OpeningPlies = 0
	}
	if p.DangerThreshold <= 0 {
		p.DangerThreshold = d.DangerThreshold
	}
	if p.SafeFallback <= 0 {
		p.SafeFallback = d.SafeFallback
	}
	if p.NodeBudget < 0 {
		p.NodeBudget = 0
	}
	if p.DriftChance < 0 {
		p.DriftChance = 0
	}
	return p
}

// Drift returns p with a possibly different style. p itself is never modified.
func (p Personality) Drift(rng *rand.Rand) Personality {
	if rng == nil || p.DriftChance <= 0 || rng.Float64() >= p.DriftChance {
		return p
	}
	next := p
	next.Style = styles[rng.Intn(len(styles))]
	return next
}

type styleWeights struct {
	capture     float64
	check       int
	castle      int
	center      int
	development int
}

func (s Style) weights() styleWeights {
	switch s {
	case StyleAggressive:
		return styleWeights{capture: 1.5, check: 80, castle: 30, center: 15, development: 20}
	case StyleDefensive:
		return styleWeights{capture: 0.8, check: 30, castle: 90, center: 20, development: 40}
	default:
		return styleWeights{capture: 1.0, check: 50, castle: 60, center: 20, development: 30}
	}
}
