package chess

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Color identifies a side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// ParseColorChoice accepts exactly "W" or "B".
func ParseColorChoice(s string) (Color, bool) {
	switch s {
	case "W":
		return White, true
	case "B":
		return Black, true
	default:
		return "", false
	}
}

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func colorOf(c nchess.Color) Color {
	if c == nchess.Black {
		return Black
	}
	return White
}

// GameState is derived from a Position by Classify.
type GameState int

const (
	InProgress GameState = iota
	Check
	Checkmate
	Stalemate
	Drawn
)

func (s GameState) String() string {
	switch s {
	case Check:
		return "check"
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case Drawn:
		return "drawn"
	default:
		return "in_progress"
	}
}

// Terminal reports whether no further move may be requested.
func (s GameState) Terminal() bool {
	return s == Checkmate || s == Stalemate || s == Drawn
}

// Position is an immutable snapshot of the session's board.
type Position struct {
	StartFEN string   // position the session started from
	Moves    []string // coordinate moves played since StartFEN
	FEN      string
	Turn     Color
	// InCheck is set when the side to move is in check. After a move it comes
	// from the move's check tag; at the start position the session fills it
	// from the engine.
	InCheck bool
}

// Ply is the number of moves played since the session started.
func (p Position) Ply() int { return len(p.Moves) }

// LastMove is the move that produced this position, empty at session start.
func (p Position) LastMove() string {
	if len(p.Moves) == 0 {
		return ""
	}
	return p.Moves[len(p.Moves)-1]
}

type EvalKind string

const (
	EvalCentipawns EvalKind = "cp"
	EvalMate       EvalKind = "mate"
)

// Evaluation is an engine score from White's point of view.
type Evaluation struct {
	Kind  EvalKind
	Value int
	Depth int
	// Mating is the side delivering mate for mate scores. It is needed for
	// "mate 0", whose sign says nothing about who won.
	Mating Color
}

// Pawns formats a centipawn score as "+0.35".
func (e Evaluation) Pawns() string {
	v := e.Value
	sign := "+"
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MateFor is the side delivering mate; empty for centipawn scores.
func (e Evaluation) MateFor() Color {
	if e.Kind != EvalMate {
		return ""
	}
	if e.Mating != "" {
		return e.Mating
	}
	if e.Value < 0 {
		return Black
	}
	return White
}

func (e Evaluation) String() string {
	if e.Kind == EvalMate {
		n := e.Value
		if n < 0 {
			n = -n
		}
		return fmt.Sprintf("mate %d (%s)", n, strings.ToLower(string(e.MateFor())))
	}
	return e.Pawns()
}
