package chess

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"github.com/park285/cheese-console/internal/chess/uci"
	"github.com/park285/cheese-console/internal/obslog"
	"go.uber.org/zap"
)

const defaultEvalDepth = 15

// engine is the part of uci.Session the chess session drives.
type engine interface {
	SetOption(ctx context.Context, name, value string) error
	SetPosition(fen string, moves []string) error
	Search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error)
	Display(ctx context.Context) (uci.Display, error)
	NewGame(ctx context.Context) error
	Close() error
}

type launcher func(ctx context.Context, path string) (engine, error)

func launchUCI(ctx context.Context, path string) (engine, error) {
	return uci.NewSession(ctx, path)
}

type SessionConfig struct {
	BinaryPath string
	HashMB     int
	Elo        int
	Threads    int
	EvalDepth  int
	Restarts   int
	StartFEN   string
}

// Session owns the engine process and the authoritative position of one game.
type Session struct {
	id       string
	cfg      SessionConfig
	path     string
	launch   launcher
	eng      engine
	game     *nchess.Game
	startFEN string
	moves    []string
	checkers []string // squares checking the side to move at startFEN
	logger   *zap.Logger
}

// NewSession resolves the engine executable, starts it and applies the
// configured hash size and strength.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	name := strings.TrimSpace(cfg.BinaryPath)
	if name == "" {
		return nil, fmt.Errorf("%w: empty path", ErrEngineNotFound)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineNotFound, name, err)
	}
	return newSessionWith(ctx, cfg, path, launchUCI)
}

func newSessionWith(ctx context.Context, cfg SessionConfig, path string, launch launcher) (*Session, error) {
	if cfg.EvalDepth <= 0 {
		cfg.EvalDepth = defaultEvalDepth
	}
	if cfg.Restarts < 0 {
		cfg.Restarts = 0
	}

	start, err := PositionFromFEN(cfg.StartFEN)
	if err != nil {
		return nil, err
	}
	game, err := newGame(start.StartFEN)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := &Session{
		id:       id,
		cfg:      cfg,
		path:     path,
		launch:   launch,
		game:     game,
		startFEN: start.StartFEN,
		logger:   obslog.L().With(zap.String("session_id", id)),
	}

	if err := s.start(ctx); err != nil {
		return nil, err
	}
	if s.startFEN != StartingFEN {
		s.readStartCheckers(ctx)
	}
	return s, nil
}

// readStartCheckers asks the engine which pieces give check at startFEN.
// Check is otherwise only known from the tag on the move that delivered it.
func (s *Session) readStartCheckers(ctx context.Context) {
	if err := s.eng.SetPosition(s.startFEN, nil); err != nil {
		s.logger.Warn("engine_start_checkers_failed", zap.Error(err))
		return
	}
	d, err := s.eng.Display(ctx)
	if err != nil {
		s.logger.Warn("engine_start_checkers_failed", zap.Error(err))
		return
	}
	s.checkers = d.Checkers
	if len(d.Checkers) > 0 {
		s.logger.Info("start_position_in_check", zap.Strings("checkers", d.Checkers))
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) start(ctx context.Context) error {
	eng, err := s.launch(ctx, s.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	s.eng = eng
	if err := s.Configure(ctx, s.cfg.HashMB, s.cfg.Elo); err != nil {
		_ = eng.Close()
		s.eng = nil
		return err
	}
	if err := eng.NewGame(ctx); err != nil {
		_ = eng.Close()
		s.eng = nil
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	s.logger.Info("engine_started",
		zap.String("path", s.path),
		zap.Int("hash_mb", s.cfg.HashMB),
		zap.Int("elo", s.cfg.Elo),
		zap.String("start_fen", s.startFEN),
	)
	return nil
}

// Configure sets the hash table size and target strength. Values outside the
// ranges the engine declared fail with ErrConfiguration.
func (s *Session) Configure(ctx context.Context, hashMB, elo int) error {
	if s.eng == nil {
		return ErrEngineUnavailable
	}
	opts := [][2]string{
		{"Hash", strconv.Itoa(hashMB)},
		{"UCI_LimitStrength", "true"},
		{"UCI_Elo", strconv.Itoa(elo)},
	}
	if s.cfg.Threads > 0 {
		opts = append([][2]string{{"Threads", strconv.Itoa(s.cfg.Threads)}}, opts...)
	}
	for _, kv := range opts {
		if err := s.eng.SetOption(ctx, kv[0], kv[1]); err != nil {
			if isConfigError(err) {
				return fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
			return fmt.Errorf("%w: setoption %s: %w", ErrEngineUnavailable, kv[0], err)
		}
	}
	s.cfg.HashMB, s.cfg.Elo = hashMB, elo
	return nil
}

// Position returns the current snapshot.
func (s *Session) Position() Position {
	p := snapshot(s.startFEN, s.moves, s.game)
	if len(s.moves) == 0 {
		p.InCheck = len(s.checkers) > 0
	}
	return p
}

// ApplyMove plays a coordinate move. Illegal or unparseable input fails with
// ErrInvalidMove and leaves the position unchanged. There is no undo.
func (s *Session) ApplyMove(ctx context.Context, move string) (Position, error) {
	if err := ctx.Err(); err != nil {
		return s.Position(), err
	}
	played, err := pushMove(s.game, move)
	if err != nil {
		s.logger.Debug("move_rejected", zap.String("input", move), zap.Error(err))
		return s.Position(), err
	}
	s.moves = append(s.moves, played)
	if s.eng != nil {
		// queries resend the position, so a failed sync only costs a log line
		if err := s.eng.SetPosition(s.startFEN, s.moves); err != nil {
			s.logger.Warn("engine_position_sync_failed", zap.Error(err))
		}
	}
	s.logger.Info("move_applied",
		zap.String("move", played),
		zap.Int("ply", len(s.moves)),
		zap.String("fen", s.game.FEN()),
	)
	return s.Position(), nil
}

// RenderBoard returns the engine's board diagram oriented for perspective.
func (s *Session) RenderBoard(ctx context.Context, perspective Color) (string, error) {
	var d uci.Display
	err := s.withEngine(ctx, "render", func(eng engine) error {
		if err := eng.SetPosition(s.startFEN, s.moves); err != nil {
			return err
		}
		var derr error
		d, derr = eng.Display(ctx)
		return derr
	})
	if err != nil {
		return "", err
	}
	if want := s.game.FEN(); d.FEN != "" && !samePlacement(d.FEN, want) {
		s.logger.Warn("engine_position_diverged",
			zap.String("engine_fen", d.FEN),
			zap.String("session_fen", want),
		)
	}
	return strings.Join(d.Oriented(perspective != Black), "\n"), nil
}

// BestMove asks the engine for its move within budget.
func (s *Session) BestMove(ctx context.Context, budget time.Duration) (string, error) {
	ms := int(budget / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	var resp uci.SearchResponse
	start := time.Now()
	err := s.withEngine(ctx, "bestmove", func(eng engine) error {
		var serr error
		resp, serr = eng.Search(ctx, uci.SearchRequest{
			FEN:    s.startFEN,
			Moves:  s.moves,
			Limits: uci.Limits{MoveTimeMillis: ms},
		})
		return serr
	})
	if err != nil {
		return "", err
	}
	move := strings.ToLower(strings.TrimSpace(resp.BestMove))
	if move == "" || move == "(none)" || move == "0000" {
		return "", fmt.Errorf("%w: engine returned no move", ErrEngineUnavailable)
	}
	s.logger.Info("engine_bestmove",
		zap.String("move", move),
		zap.Int("depth", resp.Depth),
		zap.Duration("elapsed", time.Since(start)),
	)
	return move, nil
}

// Evaluate scores the current position from White's point of view.
func (s *Session) Evaluate(ctx context.Context) (Evaluation, error) {
	var resp uci.SearchResponse
	err := s.withEngine(ctx, "evaluate", func(eng engine) error {
		var serr error
		resp, serr = eng.Search(ctx, uci.SearchRequest{
			FEN:    s.startFEN,
			Moves:  s.moves,
			Limits: uci.Limits{Depth: s.cfg.EvalDepth},
		})
		return serr
	})
	if err != nil {
		return Evaluation{}, err
	}
	if !resp.HasScore {
		return Evaluation{}, fmt.Errorf("%w: no score reported", ErrEngineUnavailable)
	}
	return toEvaluation(resp, colorOf(s.game.Position().Turn())), nil
}

// toEvaluation turns a side-to-move score into White's point of view. A mate
// score of zero means the side to move is already mated.
func toEvaluation(resp uci.SearchResponse, toMove Color) Evaluation {
	ev := Evaluation{Kind: EvalCentipawns, Value: resp.Score.Value, Depth: resp.Depth}
	if resp.Score.Mate {
		ev.Kind = EvalMate
		ev.Mating = toMove
		if resp.Score.Value <= 0 {
			ev.Mating = toMove.Other()
		}
	}
	if toMove == Black {
		ev.Value = -ev.Value
	}
	return ev
}

// Close stops the engine process.
func (s *Session) Close() error {
	if s.eng == nil {
		return nil
	}
	err := s.eng.Close()
	s.eng = nil
	return err
}

// withEngine runs op against the engine. Failures other than the caller's
// own cancellation restart the engine, up to cfg.Restarts times.
func (s *Session) withEngine(ctx context.Context, op string, fn func(engine) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Restarts; attempt++ {
		if s.eng == nil {
			if err := s.start(ctx); err != nil {
				if errors.Is(err, ErrConfiguration) {
					return err
				}
				lastErr = err
				continue
			}
		}
		err := fn(s.eng)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		lastErr = err
		s.logger.Warn("engine_failure",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_restarts", s.cfg.Restarts),
			zap.Error(err),
		)
		_ = s.eng.Close()
		s.eng = nil
	}
	return fmt.Errorf("%w: %s: %w", mapEngineError(lastErr), op, lastErr)
}

// samePlacement compares piece placement and side to move only; engines
// differ on when they print an en-passant square.
func samePlacement(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) < 2 || len(fb) < 2 {
		return a == b
	}
	return fa[0] == fb[0] && fa[1] == fb[1]
}
