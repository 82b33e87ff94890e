package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Pieces are drawn as a token: an SVG disc in the side's colours carrying the
// piece letter.
const tokenSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100" width="100" height="100">
<circle cx="50" cy="50" r="%d" fill="%s" stroke="%s" stroke-width="6"/>
</svg>`

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	fill, stroke, ink := "#f5f1e8", "#1c1f2e", color.Color(color.Black)
	if piece.Color() == nchess.Black {
		fill, stroke, ink = "#1c1f2e", "#f5f1e8", color.White
	}
	radius := 36
	if piece.Type() == nchess.Pawn {
		radius = 28
	}
	src := fmt.Sprintf(tokenSVG, radius, fill, stroke)

	icon, err := oksvg.ReadIconStream(bytes.NewReader([]byte(src)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	drawLetter(img, pieceLetter(piece), ink)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}

func drawLetter(img *image.RGBA, letter string, clr color.Color) {
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: basicfont.Face7x13,
	}
	b := img.Bounds()
	width := drawer.MeasureString(letter).Round()
	metrics := basicfont.Face7x13.Metrics()
	baseline := b.Min.Y + (b.Dy()+metrics.Ascent.Ceil()-metrics.Descent.Ceil())/2
	drawer.Dot = fixed.P(b.Min.X+(b.Dx()-width)/2, baseline)
	drawer.DrawString(letter)
}

func pieceLetter(piece nchess.Piece) string {
	switch piece.Type() {
	case nchess.King:
		return "K"
	case nchess.Queen:
		return "Q"
	case nchess.Rook:
		return "R"
	case nchess.Bishop:
		return "B"
	case nchess.Knight:
		return "N"
	default:
		return "P"
	}
}
