// Package openingbook suggests early-game moves and labels openings by ECO code.
package openingbook

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/chess-arena/internal/rules"
)

// Choice is a weighted book reply in SAN.
type Choice struct {
	SAN    string
	Weight int
}

// Line is a move sequence from the initial position followed by weighted replies.
type Line struct {
	Moves   []string
	Replies []Choice
}

// DefaultLines favor 1.e4 over 1.d4 and answer both with main-line theory.
var DefaultLines = []Line{
	{Moves: nil, Replies: []Choice{{"e4", 70}, {"d4", 30}}},
	{Moves: []string{"e4"}, Replies: []Choice{{"e5", 60}, {"c5", 40}}},
	{Moves: []string{"d4"}, Replies: []Choice{{"d5", 60}, {"Nf6", 40}}},
	{Moves: []string{"e4", "e5"}, Replies: []Choice{{"Nf3", 100}}},
	{Moves: []string{"e4", "e5", "Nf3"}, Replies: []Choice{{"Nc6", 100}}},
	{Moves: []string{"e4", "e5", "Nf3", "Nc6"}, Replies: []Choice{{"Bb5", 60}, {"Bc4", 40}}},
	{Moves: []string{"e4", "e5", "Nf3", "Nc6", "Bb5"}, Replies: []Choice{{"a6", 100}}},
	{Moves: []string{"e4", "e5", "Nf3", "Nc6", "Bc4"}, Replies: []Choice{{"Bc5", 60}, {"Nf6", 40}}},
	{Moves: []string{"e4", "c5"}, Replies: []Choice{{"Nf3", 100}}},
	{Moves: []string{"e4", "c5", "Nf3"}, Replies: []Choice{{"d6", 50}, {"Nc6", 50}}},
	{Moves: []string{"e4", "e6"}, Replies: []Choice{{"d4", 100}}},
	{Moves: []string{"e4", "c6"}, Replies: []Choice{{"d4", 100}}},
	{Moves: []string{"d4", "d5"}, Replies: []Choice{{"c4", 100}}},
	{Moves: []string{"d4", "d5", "c4"}, Replies: []Choice{{"e6", 60}, {"c6", 40}}},
	{Moves: []string{"d4", "Nf6"}, Replies: []Choice{{"c4", 100}}},
	{Moves: []string{"d4", "Nf6", "c4"}, Replies: []Choice{{"e6", 60}, {"g6", 40}}},
}

// DevelopmentMoves are tried in order when the position is out of book.
var DevelopmentMoves = []string{"e4", "e5", "d4", "d5", "Nf3", "Nc6", "Nf6", "Nc3", "Bc4", "Bb5", "Be7", "O-O"}

// Book is safe for concurrent use after construction.
type Book struct {
	byKey    map[string][]Choice
	polyglot *chesslib.PolyglotBook
}

// New indexes lines by the position they lead to.
func New(lines []Line) (*Book, error) {
	b := &Book{byKey: make(map[string][]Choice, len(lines))}
	for _, l := range lines {
		g, err := rules.ReplaySAN(l.Moves)
		if err != nil {
			return nil, fmt.Errorf("book line %v: %w", l.Moves, err)
		}
		key := g.Position().Key()
		b.byKey[key] = append(b.byKey[key], l.Replies...)
	}
	return b, nil
}

// Default builds the book from DefaultLines.
func Default() *Book {
	b, err := New(DefaultLines)
	if err != nil {
		panic(err)
	}
	return b
}

// AttachPolyglot loads a polyglot .bin whose entries take priority over the built-in lines.
func (b *Book) AttachPolyglot(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()
	pb, err := chesslib.LoadFromReader(file)
	if err != nil {
		return fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	b.polyglot = pb
	return nil
}

// Suggest returns a legal book move for p, drawn from legal with weights.
func (b *Book) Suggest(p rules.Position, legal []rules.Move, rng *rand.Rand) (rules.Move, bool) {
	if b == nil || len(legal) == 0 {
		return rules.Move{}, false
	}
	if m, ok := b.polyglotMove(p, legal); ok {
		return m, true
	}
	var (
		pool  []rules.Move
		total int
		ws    []int
	)
	for _, c := range b.byKey[p.Key()] {
		if m, ok := findLegal(legal, c.SAN); ok && c.Weight > 0 {
			pool = append(pool, m)
			ws = append(ws, c.Weight)
			total += c.Weight
		}
	}
	if len(pool) == 0 {
		return rules.Move{}, false
	}
	if rng == nil || len(pool) == 1 {
		return pool[0], true
	}
	r := rng.Intn(total)
	for i, w := range ws {
		if r < w {
			return pool[i], true
		}
		r -= w
	}
	return pool[len(pool)-1], true
}

// Development returns the first legal entry of DevelopmentMoves.
func (b *Book) Development(legal []rules.Move) (rules.Move, bool) {
	for _, san := range DevelopmentMoves {
		if m, ok := findLegal(legal, san); ok {
			return m, true
		}
	}
	return rules.Move{}, false
}

func (b *Book) polyglotMove(p rules.Position, legal []rules.Move) (rules.Move, bool) {
	if b.polyglot == nil {
		return rules.Move{}, false
	}
	hashStr, err := chesslib.NewZobristHasher().HashPosition(p.FEN())
	if err != nil {
		return rules.Move{}, false
	}
	entries := b.polyglot.FindMoves(chesslib.ZobristHashToUint64(hashStr))
	for _, e := range entries {
		mv := chesslib.DecodeMove(e.Move).ToMove()
		uci := mv.String()
		for _, m := range legal {
			if m.UCI == uci {
				return m, true
			}
		}
	}
	return rules.Move{}, false
}

func findLegal(legal []rules.Move, san string) (rules.Move, bool) {
	for _, m := range legal {
		if m.SAN != "" && rules.SameSAN(m.SAN, san) {
			return m, true
		}
	}
	return rules.Move{}, false
}
