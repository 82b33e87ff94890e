// Package render draws board snapshots as PNG images.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"os"
	"path/filepath"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-console/internal/chess"
	"github.com/park285/cheese-console/internal/obslog"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize = 72
	margin     = 24
	boardSize  = squareSize * 8
)

var (
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	moveHighlightFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	backgroundColor     = color.RGBA{28, 31, 46, 255}
)

// RenderPNG draws the position as seen by perspective and highlights the
// squares of the last move.
func RenderPNG(ctx context.Context, p chess.Position, perspective chess.Color) ([]byte, error) {
	opt, err := nchess.FEN(p.FEN)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	board := nchess.NewGame(opt).Position().Board()
	white := perspective != chess.Black

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	total := boardSize + margin*2
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)
	origin := image.Point{X: margin, Y: margin}

	drawSquares(img, origin, white)
	if from, to, ok := parseMoveSquares(p.LastMove()); ok {
		drawSquareOverlay(img, from, origin, white, moveHighlightFill)
		drawSquareOverlay(img, to, origin, white, moveHighlightFill)
	}
	if err := drawPieces(img, board, origin, white); err != nil {
		return nil, err
	}
	drawCoordinates(img, origin, white)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// squareRect places sq on the image; black's view rotates the board 180 degrees.
func squareRect(sq nchess.Square, origin image.Point, white bool) image.Rectangle {
	col, row := int(sq.File()), 7-int(sq.Rank())
	if !white {
		col, row = 7-col, int(sq.Rank())
	}
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawSquares(dst imagedraw.Image, origin image.Point, white bool) {
	for i := 0; i < 64; i++ {
		sq := nchess.Square(i)
		imagedraw.Draw(dst, squareRect(sq, origin, white), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
	}
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, origin image.Point, white bool) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := renderPieceImage(piece, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, squareRect(sq, origin, white), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

func drawSquareOverlay(img *image.RGBA, sq nchess.Square, origin image.Point, white bool, clr color.Color) {
	imagedraw.Draw(img, squareRect(sq, origin, white), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawCoordinates(img *image.RGBA, origin image.Point, white bool) {
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(coordinateTextColor),
		Face: basicfont.Face7x13,
	}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		fileSq := nchess.NewSquare(nchess.File(i), nchess.Rank1)
		r := squareRect(fileSq, origin, white)
		drawCenteredText(drawer, fileSq.File().String(), r.Min.X+squareSize/2, origin.Y+boardSize+ascent+4)

		rankSq := nchess.NewSquare(nchess.FileA, nchess.Rank(i))
		r = squareRect(rankSq, origin, white)
		drawCenteredText(drawer, rankSq.Rank().String(), origin.X-margin/2, r.Min.Y+squareSize/2+ascent/2)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func parseMoveSquares(move string) (nchess.Square, nchess.Square, bool) {
	if len(move) < 4 {
		return 0, 0, false
	}
	from, ok1 := parseSquare(move[0:2])
	to, ok2 := parseSquare(move[2:4])
	return from, to, ok1 && ok2
}

func parseSquare(s string) (nchess.Square, bool) {
	f, r := s[0], s[1]
	if f < 'a' || f > 'h' || r < '1' || r > '8' {
		return 0, false
	}
	return nchess.NewSquare(nchess.File(f-'a'), nchess.Rank(r-'1')), true
}

// Snapshotter writes the board to a fixed path after each turn.
type Snapshotter struct {
	Path string
}

func (s Snapshotter) Write(ctx context.Context, p chess.Position, perspective chess.Color) error {
	if s.Path == "" {
		return nil
	}
	data, err := RenderPNG(ctx, p, perspective)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	obslog.L().Debug("board_snapshot_written", zap.String("path", s.Path), zap.Int("bytes", len(data)))
	return nil
}
