// Package render draws a position as a PNG board image.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/chess-arena/internal/rules"
)

// Highlight marks the last move played.
type Highlight struct {
	From nchess.Square
	To   nchess.Square
}

type Options struct {
	LastMove *Highlight
	// Flip draws the board from black's side.
	Flip   bool
	Header string
}

const (
	squareSize = 64
	margin     = 24
	headerH    = 28
)

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	checkFill       = color.NRGBA{R: 230, G: 60, B: 60, A: 150}
	backgroundColor = color.RGBA{28, 31, 46, 255}
	labelColor      = color.RGBA{204, 210, 236, 255}
)

// PNG renders p. The context is checked before and after the expensive steps.
func PNG(ctx context.Context, p rules.Position, opts Options) ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid position")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	boardSize := squareSize * 8
	origin := image.Pt(margin, margin+headerH)
	img := image.NewRGBA(image.Rect(0, 0, boardSize+2*margin, boardSize+2*margin+headerH))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	drawSquares(img, origin, opts.Flip)
	if opts.LastMove != nil {
		overlay(img, squareRect(opts.LastMove.From, origin, opts.Flip), lastMoveFill)
		overlay(img, squareRect(opts.LastMove.To, origin, opts.Flip), lastMoveFill)
	}
	if p.InCheck() {
		if ksq, ok := p.KingSquare(p.Turn()); ok {
			overlay(img, squareRect(ksq, origin, opts.Flip), checkFill)
		}
	}
	for _, pl := range p.Pieces() {
		glyph, err := pieceImage(pl.Piece, squareSize)
		if err != nil {
			return nil, err
		}
		draw.Draw(img, squareRect(pl.Square, origin, opts.Flip), glyph, image.Point{}, draw.Over)
	}
	drawLabels(img, origin, opts)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// FromState renders a FEN with the last UCI move highlighted.
func FromState(ctx context.Context, fen string, lastUCI string, flip bool, header string) ([]byte, error) {
	p, err := rules.FromFEN(fen)
	if err != nil {
		return nil, err
	}
	opts := Options{Flip: flip, Header: header}
	if len(lastUCI) >= 4 {
		from, ok1 := rules.ParseSquare(lastUCI[:2])
		to, ok2 := rules.ParseSquare(lastUCI[2:4])
		if ok1 && ok2 {
			opts.LastMove = &Highlight{From: from, To: to}
		}
	}
	return PNG(ctx, p, opts)
}

func drawSquares(img *image.RGBA, origin image.Point, flip bool) {
	for i := 0; i < 64; i++ {
		sq := nchess.Square(i)
		clr := lightSquare
		if (int(sq.File())+int(sq.Rank()))%2 == 0 {
			clr = darkSquare
		}
		draw.Draw(img, squareRect(sq, origin, flip), image.NewUniform(clr), image.Point{}, draw.Src)
	}
}

func overlay(img *image.RGBA, r image.Rectangle, clr color.Color) {
	draw.Draw(img, r, image.NewUniform(clr), image.Point{}, draw.Over)
}

func squareRect(sq nchess.Square, origin image.Point, flip bool) image.Rectangle {
	col, row := int(sq.File()), 7-int(sq.Rank())
	if flip {
		col, row = 7-col, 7-row
	}
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawLabels(img *image.RGBA, origin image.Point, opts Options) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(labelColor), Face: basicfont.Face7x13}
	files, ranks := "abcdefgh", "87654321"
	if opts.Flip {
		files, ranks = "hgfedcba", "12345678"
	}
	boardSize := squareSize * 8
	for i := 0; i < 8; i++ {
		cx := origin.X + i*squareSize + squareSize/2
		text(d, string(files[i]), cx, origin.Y+boardSize+16)
		cy := origin.Y + i*squareSize + squareSize/2 + 4
		text(d, string(ranks[i]), origin.X-margin/2, cy)
	}
	if h := strings.TrimSpace(opts.Header); h != "" {
		text(d, h, origin.X+boardSize/2, margin+headerH/2)
	}
}

// text draws s centered horizontally on cx with its baseline at y.
func text(d *font.Drawer, s string, cx, y int) {
	w := d.MeasureString(s).Round()
	d.Dot = fixed.P(cx-w/2, y)
	d.DrawString(s)
}
