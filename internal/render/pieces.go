package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Glyph bodies on a 45x45 canvas. FILL and STROKE are substituted per color.
var glyphs = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="13" r="5"/>
<path d="M16 34 L18 22 Q22.5 18 27 22 L29 34 Z"/>`,
	nchess.Knight: `<path d="M14 36 L15 26 Q13 20 18 14 L20 9 L23 13 Q31 14 32 24 L32 36 Z"/>
<circle cx="20" cy="17" r="1.5" fill="STROKE"/>`,
	nchess.Bishop: `<path d="M22.5 7 Q30 14 28 24 L30 34 L15 34 L17 24 Q15 14 22.5 7 Z"/>
<path d="M20 16 L25 21" fill="none"/>`,
	nchess.Rook: `<path d="M13 10 L17 10 L17 13 L20.5 13 L20.5 10 L24.5 10 L24.5 13 L28 13 L28 10 L32 10 L32 16 L29 19 L29 30 L16 30 L16 19 L13 16 Z"/>`,
	nchess.Queen: `<circle cx="9" cy="12" r="2.5"/><circle cx="16" cy="9" r="2.5"/><circle cx="22.5" cy="8" r="2.5"/>
<circle cx="29" cy="9" r="2.5"/><circle cx="36" cy="12" r="2.5"/>
<path d="M10 14 L14 28 L16 14 L20 27 L22.5 13 L25 27 L29 14 L31 28 L35 14 L32 32 L13 32 Z"/>`,
	nchess.King: `<path d="M22.5 5 L22.5 12 M19.5 8 L25.5 8" fill="none"/>
<path d="M22.5 13 Q28 13 27 20 Q36 16 36 24 Q35 29 31 32 L14 32 Q10 29 9 24 Q9 16 18 20 Q17 13 22.5 13 Z"/>`,
}

const baseGlyph = `<rect x="11" y="34" width="23" height="5" rx="1.5"/>`

type glyphKey struct {
	piece nchess.Piece
	size  int
}

var (
	glyphCache   = map[glyphKey]image.Image{}
	glyphCacheMu sync.RWMutex
)

func pieceSVG(pc nchess.Piece) (string, error) {
	body, ok := glyphs[pc.Type()]
	if !ok {
		return "", fmt.Errorf("no glyph for piece %v", pc)
	}
	fill, stroke := "#fafafa", "#1e1e1e"
	if pc.Color() == nchess.Black {
		fill, stroke = "#2b2b2b", "#e6e6e6"
	}
	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">` +
		`<g fill="FILL" stroke="STROKE" stroke-width="1.5" stroke-linejoin="round">` +
		body + baseGlyph + `</g></svg>`
	return strings.NewReplacer("FILL", fill, "STROKE", stroke).Replace(svg), nil
}

func pieceImage(pc nchess.Piece, size int) (image.Image, error) {
	key := glyphKey{piece: pc, size: size}
	glyphCacheMu.RLock()
	if img, ok := glyphCache[key]; ok {
		glyphCacheMu.RUnlock()
		return img, nil
	}
	glyphCacheMu.RUnlock()

	svg, err := pieceSVG(pc)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	glyphCacheMu.Lock()
	glyphCache[key] = img
	glyphCacheMu.Unlock()
	return img, nil
}
