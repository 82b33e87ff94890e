package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	StockfishPath string

	HashMB         int
	Elo            int
	Threads        int
	MoveTime       time.Duration
	EvalDepth      int
	EngineRestarts int

	StartFEN    string
	BoardPNG    string
	ColorBoard  bool
	HistoryFile string
	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		StockfishPath:  "stockfish",
		HashMB:         256,
		Elo:            2500,
		Threads:        1,
		MoveTime:       1000 * time.Millisecond,
		EvalDepth:      15,
		EngineRestarts: 1,
		ColorBoard:     true,
		HistoryFile:    ".cheese_history",
	}

	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		cfg.StockfishPath = v
	}

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"CHESS_HASH_MB", &cfg.HashMB, 1},
		{"CHESS_ELO", &cfg.Elo, 0},
		{"CHESS_THREADS", &cfg.Threads, 1},
		{"CHESS_EVAL_DEPTH", &cfg.EvalDepth, 1},
		{"CHESS_ENGINE_RESTARTS", &cfg.EngineRestarts, 0},
	}
	for _, it := range ints {
		if err := readInt(it.key, it.dst, it.min); err != nil {
			return nil, err
		}
	}

	moveTimeMS := int(cfg.MoveTime / time.Millisecond)
	if err := readInt("CHESS_MOVE_TIME_MS", &moveTimeMS, 1); err != nil {
		return nil, err
	}
	cfg.MoveTime = time.Duration(moveTimeMS) * time.Millisecond

	cfg.StartFEN = strings.TrimSpace(os.Getenv("CHESS_START_FEN"))
	cfg.BoardPNG = strings.TrimSpace(os.Getenv("CHESS_BOARD_PNG"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("CHESS_MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("CHESS_COLOR_BOARD")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CHESS_COLOR_BOARD: %w", err)
		}
		cfg.ColorBoard = b
	}
	// "-" disables the history file
	if v, ok := os.LookupEnv("CHESS_HISTORY_FILE"); ok {
		v = strings.TrimSpace(v)
		if v == "-" {
			v = ""
		}
		cfg.HistoryFile = v
	}

	return cfg, nil
}

func readInt(key string, dst *int, min int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	if n < min {
		return fmt.Errorf("%s must be >= %d: %d", key, min, n)
	}
	*dst = n
	return nil
}
