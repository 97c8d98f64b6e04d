package rules

import nchess "github.com/corentings/chess/v2"

// Color identifies chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side. Unknown values map to white.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool { return c == White || c == Black }

// Sign is +1 for white and -1 for black.
func (c Color) Sign() int {
	if c == Black {
		return -1
	}
	return 1
}

func (c Color) lib() nchess.Color {
	if c == Black {
		return nchess.Black
	}
	return nchess.White
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.Black {
		return Black
	}
	return White
}
