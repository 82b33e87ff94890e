package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/park285/cheese-console/internal/chess"
	"github.com/park285/cheese-console/internal/chess/render"
	appcfg "github.com/park285/cheese-console/internal/config"
	"github.com/park285/cheese-console/internal/console"
	"github.com/park285/cheese-console/internal/game"
	"github.com/park285/cheese-console/internal/msgcat"
	"github.com/park285/cheese-console/internal/obslog"
	"go.uber.org/zap"
)

const (
	exitOK      = 0
	exitStartup = 1
	exitEngine  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Printf("config error: %v", err)
		return exitStartup
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Printf("logger init error: %v", err)
		return exitStartup
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Printf("messages error: %v", err)
		return exitStartup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := chess.NewSession(ctx, chess.SessionConfig{
		BinaryPath: cfg.StockfishPath,
		HashMB:     cfg.HashMB,
		Elo:        cfg.Elo,
		Threads:    cfg.Threads,
		EvalDepth:  cfg.EvalDepth,
		Restarts:   cfg.EngineRestarts,
		StartFEN:   cfg.StartFEN,
	})
	if err != nil {
		logger.Error("engine_start_failed", zap.Error(err))
		if errors.Is(err, chess.ErrConfiguration) {
			fmt.Fprintln(os.Stderr, msgs.Text("error.config", map[string]any{"Err": err}))
		} else {
			fmt.Fprintln(os.Stderr, msgs.Text("error.engine", map[string]any{"Err": err}))
		}
		return exitStartup
	}
	defer func() { _ = session.Close() }()

	reader, err := console.Open(os.Stdin, os.Stdout, cfg.HistoryFile)
	if err != nil {
		log.Printf("console init error: %v", err)
		return exitStartup
	}
	defer func() { _ = reader.Close() }()

	opts := game.Options{MoveTime: cfg.MoveTime}
	if cfg.ColorBoard {
		opts.Decorate = console.Colorize
	}
	if cfg.BoardPNG != "" {
		opts.Snapshot = render.Snapshotter{Path: cfg.BoardPNG}
	}

	fmt.Println(msgs.Text("game.welcome", map[string]any{
		"Elo":        cfg.Elo,
		"MoveTimeMS": cfg.MoveTime.Milliseconds(),
	}))

	loop := game.New(session, reader, os.Stdout, msgs, opts)
	res, err := loop.Run(ctx)
	switch {
	case err == nil:
		logger.Info("game_finished",
			zap.String("session_id", session.ID()),
			zap.String("state", res.State.String()),
			zap.String("winner", string(res.Winner)),
			zap.Int("ply", len(res.Moves)),
		)
		return exitOK
	case errors.Is(err, game.ErrAborted):
		logger.Info("game_aborted", zap.String("session_id", session.ID()), zap.Int("ply", len(res.Moves)))
		return exitOK
	default:
		logger.Error("game_failed", zap.String("session_id", session.ID()), zap.Error(err))
		fmt.Fprintln(os.Stderr, msgs.Text("error.engine", map[string]any{"Err": err}))
		return exitEngine
	}
}
