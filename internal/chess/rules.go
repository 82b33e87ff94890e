package chess

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Classify derives the GameState of a snapshot. It replays the snapshot's
// moves from its start position, so repetition draws are visible too.
func Classify(p Position) (GameState, error) {
	game, err := replay(p.StartFEN, p.Moves)
	if err != nil {
		return InProgress, err
	}
	state := classifyGame(game)
	if state == InProgress && len(p.Moves) == 0 && p.InCheck {
		return Check, nil
	}
	return state, nil
}

func classifyGame(game *nchess.Game) GameState {
	switch game.Position().Status() {
	case nchess.Checkmate:
		return Checkmate
	case nchess.Stalemate:
		return Stalemate
	}
	if game.Outcome() == nchess.Draw {
		return Drawn
	}
	if lastMoveGaveCheck(game) {
		return Check
	}
	return InProgress
}

func IsCheckmate(p Position) bool {
	s, err := Classify(p)
	return err == nil && s == Checkmate
}

func IsStalemate(p Position) bool {
	s, err := Classify(p)
	return err == nil && s == Stalemate
}

// IsCheck is true for any position whose side to move is in check, mate included.
func IsCheck(p Position) bool {
	s, err := Classify(p)
	return err == nil && (s == Check || s == Checkmate)
}

func lastMoveGaveCheck(game *nchess.Game) bool {
	moves := game.Moves()
	if len(moves) == 0 {
		return false
	}
	return moves[len(moves)-1].HasTag(nchess.Check)
}

func newGame(fen string) (*nchess.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return nchess.NewGame(opt), nil
}

func replay(startFEN string, moves []string) (*nchess.Game, error) {
	game, err := newGame(startFEN)
	if err != nil {
		return nil, err
	}
	for _, mv := range moves {
		if _, err := pushMove(game, mv); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	return game, nil
}

// pushMove decodes a coordinate move and plays it if legal.
func pushMove(game *nchess.Game, text string) (string, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", ErrInvalidMove
	}
	notation := nchess.UCINotation{}
	pos := game.Position()
	move, err := notation.Decode(pos, text)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMove, text)
	}
	if !isLegal(pos, move) {
		return "", fmt.Errorf("%w: %q is not legal here", ErrInvalidMove, text)
	}
	if err := game.Move(move, nil); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMove, err)
	}
	return strings.ToLower(notation.Encode(pos, move)), nil
}

func isLegal(pos *nchess.Position, move *nchess.Move) bool {
	for _, vm := range pos.ValidMoves() {
		if vm.S1() == move.S1() && vm.S2() == move.S2() && vm.Promo() == move.Promo() {
			return true
		}
	}
	return false
}

// Advance returns the position after move without touching p. It is the
// stateless form of Session.ApplyMove.
func Advance(p Position, move string) (Position, error) {
	game, err := replay(p.StartFEN, p.Moves)
	if err != nil {
		return p, err
	}
	played, err := pushMove(game, move)
	if err != nil {
		return p, err
	}
	moves := append(append([]string(nil), p.Moves...), played)
	return snapshot(p.StartFEN, moves, game), nil
}

func snapshot(startFEN string, moves []string, game *nchess.Game) Position {
	return Position{
		StartFEN: startFEN,
		Moves:    append([]string(nil), moves...),
		FEN:      game.FEN(),
		Turn:     colorOf(game.Position().Turn()),
		InCheck:  len(moves) > 0 && lastMoveGaveCheck(game),
	}
}

// PositionFromFEN builds a snapshot with no move history.
func PositionFromFEN(fen string) (Position, error) {
	game, err := newGame(fen)
	if err != nil {
		return Position{}, err
	}
	start := strings.TrimSpace(fen)
	if start == "" || start == "startpos" {
		start = StartingFEN
	}
	return snapshot(start, nil, game), nil
}
