package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-arena/internal/rules"
)

func TestPNGStartPosition(t *testing.T) {
	data, err := PNG(context.Background(), rules.StartPosition(), Options{Header: "alice vs bob"})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, squareSize*8+2*margin, img.Bounds().Dx())
	require.Equal(t, squareSize*8+2*margin+headerH, img.Bounds().Dy())
}

func TestFromStateHighlightsLastMove(t *testing.T) {
	g, err := rules.ReplaySAN([]string{"e4"})
	require.NoError(t, err)
	data, err := FromState(context.Background(), g.FEN(), "e2e4", true, "")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// e2 and d3 are both light squares; only e2 carries the highlight
	origin := image.Pt(margin, margin+headerH)
	e2 := squareRect(nchess.E2, origin, true)
	d3 := squareRect(nchess.D3, origin, true)
	c := img.At(e2.Min.X+2, e2.Min.Y+2)
	plain := img.At(d3.Min.X+2, d3.Min.Y+2)
	require.NotEqual(t, plain, c)
}

func TestPNGHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := PNG(ctx, rules.StartPosition(), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEveryPieceHasAGlyph(t *testing.T) {
	for _, pt := range []nchess.PieceType{nchess.King, nchess.Queen, nchess.Rook, nchess.Bishop, nchess.Knight, nchess.Pawn} {
		for _, c := range []nchess.Color{nchess.White, nchess.Black} {
			img, err := pieceImage(nchess.NewPiece(pt, c), 32)
			require.NoError(t, err)
			require.Equal(t, 32, img.Bounds().Dx())
		}
	}
}
