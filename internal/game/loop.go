// Package game runs one human-versus-engine game on a console.
package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/park285/cheese-console/internal/chess"
	"github.com/park285/cheese-console/internal/msgcat"
	"github.com/park285/cheese-console/internal/obslog"
	"go.uber.org/zap"
)

// ErrAborted is returned when input ends or the context is cancelled before
// the game reaches a terminal state.
var ErrAborted = errors.New("game aborted")

const defaultMoveTime = time.Second

// Engine is the session the loop plays against.
type Engine interface {
	Position() chess.Position
	ApplyMove(ctx context.Context, move string) (chess.Position, error)
	RenderBoard(ctx context.Context, perspective chess.Color) (string, error)
	BestMove(ctx context.Context, budget time.Duration) (string, error)
	Evaluate(ctx context.Context) (chess.Evaluation, error)
}

type LineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// Snapshotter persists the board after each move.
type Snapshotter interface {
	Write(ctx context.Context, p chess.Position, perspective chess.Color) error
}

type Options struct {
	MoveTime time.Duration
	Decorate func(board string) string
	Snapshot Snapshotter
}

type Actor string

const (
	ActorHuman  Actor = "human"
	ActorEngine Actor = "engine"
)

type Turn struct {
	Ply   int
	Actor Actor
	Move  string
}

// Result is the outcome of Play. Winner is empty unless State is Checkmate.
type Result struct {
	Human  chess.Color
	State  chess.GameState
	Winner chess.Color
	Moves  []string
	Turns  []Turn
}

type Loop struct {
	eng     Engine
	in      LineReader
	out     io.Writer
	msgs    *msgcat.Catalog
	opts    Options
	logger  *zap.Logger
	opening string
}

func New(eng Engine, in LineReader, out io.Writer, msgs *msgcat.Catalog, opts Options) *Loop {
	if opts.MoveTime <= 0 {
		opts.MoveTime = defaultMoveTime
	}
	return &Loop{
		eng:    eng,
		in:     in,
		out:    out,
		msgs:   msgs,
		opts:   opts,
		logger: obslog.L().With(zap.String("component", "game")),
	}
}

// Run asks for a color, plays the game and prints the farewell, also after
// an abort.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	human, err := l.ChooseColor(ctx)
	if err != nil {
		l.println(l.msgs.Text("game.farewell", nil))
		return Result{}, err
	}
	res, err := l.Play(ctx, human)
	l.println(l.msgs.Text("game.farewell", nil))
	return res, err
}

// ChooseColor prompts until the input is exactly "W" or "B".
func (l *Loop) ChooseColor(ctx context.Context) (chess.Color, error) {
	prompt := l.msgs.Text("color.prompt", nil)
	for {
		line, err := l.readLine(ctx, prompt)
		if err != nil {
			return "", err
		}
		if c, ok := chess.ParseColorChoice(line); ok {
			l.logger.Info("color_chosen", zap.String("human", string(c)))
			return c, nil
		}
		prompt = l.msgs.Text("color.retry", nil)
	}
}

// Play alternates turns until a terminal state. The side to move owns each
// turn, so a start position with Black to move begins with Black.
func (l *Loop) Play(ctx context.Context, human chess.Color) (Result, error) {
	res := Result{Human: human}
	for {
		pos := l.eng.Position()
		res.Moves = pos.Moves

		state, err := chess.Classify(pos)
		if err != nil {
			return res, fmt.Errorf("classify position: %w", err)
		}
		res.State = state
		switch state {
		case chess.Check:
			l.println(l.msgs.Text("state.check", nil))
		case chess.Checkmate:
			res.Winner = pos.Turn.Other()
			l.println(l.msgs.Text("state.checkmate", nil))
		case chess.Stalemate:
			l.println(l.msgs.Text("state.stalemate", nil))
		case chess.Drawn:
			l.println(l.msgs.Text("state.draw", nil))
		}
		if state.Terminal() {
			l.logger.Info("game_over",
				zap.String("state", state.String()),
				zap.String("winner", string(res.Winner)),
				zap.Int("ply", pos.Ply()),
			)
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%w: %w", ErrAborted, err)
		}

		l.announceOpening(pos)
		board, err := l.eng.RenderBoard(ctx, human)
		if err != nil {
			return res, l.abortOr(ctx, err)
		}
		if l.opts.Decorate != nil {
			board = l.opts.Decorate(board)
		}
		l.println(board)

		var turn Turn
		if pos.Turn == human {
			turn, err = l.humanTurn(ctx)
		} else {
			turn, err = l.engineTurn(ctx)
		}
		if err != nil {
			return res, err
		}
		res.Turns = append(res.Turns, turn)

		if l.opts.Snapshot != nil {
			if err := l.opts.Snapshot.Write(ctx, l.eng.Position(), human); err != nil {
				l.logger.Warn("board_snapshot_failed", zap.Error(err))
			}
		}
	}
}

func (l *Loop) humanTurn(ctx context.Context) (Turn, error) {
	for {
		line, err := l.readLine(ctx, l.msgs.Text("move.prompt", nil))
		if err != nil {
			return Turn{}, err
		}
		pos, err := l.eng.ApplyMove(ctx, line)
		if errors.Is(err, chess.ErrInvalidMove) {
			l.println(l.msgs.Text("move.invalid", nil))
			continue
		}
		if err != nil {
			return Turn{}, l.abortOr(ctx, err)
		}
		return Turn{Ply: pos.Ply(), Actor: ActorHuman, Move: pos.LastMove()}, nil
	}
}

func (l *Loop) engineTurn(ctx context.Context) (Turn, error) {
	l.println(l.msgs.Text("engine.thinking", nil))
	move, err := l.eng.BestMove(ctx, l.opts.MoveTime)
	if err != nil {
		return Turn{}, l.abortOr(ctx, err)
	}
	pos, err := l.eng.ApplyMove(ctx, move)
	if err != nil {
		if errors.Is(err, chess.ErrInvalidMove) {
			return Turn{}, fmt.Errorf("%w: engine played %q: %w", chess.ErrEngineUnavailable, move, err)
		}
		return Turn{}, l.abortOr(ctx, err)
	}
	l.println(l.msgs.Text("engine.move", map[string]any{"Move": move}))

	// a finished game has nothing left to evaluate; Play reports the result
	if state, err := chess.Classify(pos); err == nil && state.Terminal() {
		return Turn{Ply: pos.Ply(), Actor: ActorEngine, Move: move}, nil
	}
	if ev, err := l.eng.Evaluate(ctx); err != nil {
		if ctx.Err() != nil {
			return Turn{}, l.abortOr(ctx, err)
		}
		l.logger.Warn("evaluation_failed", zap.Error(err))
	} else {
		l.println(l.formatEvaluation(ev))
	}
	return Turn{Ply: pos.Ply(), Actor: ActorEngine, Move: move}, nil
}

func (l *Loop) formatEvaluation(ev chess.Evaluation) string {
	if ev.Kind == chess.EvalMate {
		n := ev.Value
		if n < 0 {
			n = -n
		}
		return l.msgs.Text("engine.eval_mate", map[string]any{
			"Moves": n,
			"Side":  string(ev.MateFor()),
			"Depth": ev.Depth,
		})
	}
	return l.msgs.Text("engine.eval_cp", map[string]any{"Pawns": ev.Pawns(), "Depth": ev.Depth})
}

func (l *Loop) announceOpening(pos chess.Position) {
	code, title := chess.OpeningName(pos)
	if code == "" || code+title == l.opening {
		return
	}
	l.opening = code + title
	l.println(l.msgs.Text("game.opening", map[string]any{"Code": code, "Title": title}))
}

func (l *Loop) readLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAborted, err)
	}
	line, err := l.in.ReadLine(ctx, prompt)
	if errors.Is(err, io.EOF) || ctx.Err() != nil {
		return "", fmt.Errorf("%w: %w", ErrAborted, err)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return line, nil
}

// abortOr reports cancellation as ErrAborted and passes other errors through.
func (l *Loop) abortOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	}
	return err
}

func (l *Loop) println(s string) {
	fmt.Fprintln(l.out, s)
}
