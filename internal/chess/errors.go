package chess

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/cheese-console/internal/chess/uci"
)

var (
	ErrInvalidMove       = errors.New("invalid chess move")
	ErrConfiguration     = errors.New("engine configuration rejected")
	ErrEngineTimeout     = errors.New("chess engine timeout")
	ErrEngineUnavailable = errors.New("chess engine unavailable")
	ErrEngineNotFound    = errors.New("chess engine executable not found")
)

func mapEngineError(err error) error {
	if err == nil {
		return ErrEngineUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || engineTimeoutMessage(err) {
		return ErrEngineTimeout
	}
	return ErrEngineUnavailable
}

func engineTimeoutMessage(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout")
}

func isConfigError(err error) bool {
	return errors.Is(err, uci.ErrUnknownOption) || errors.Is(err, uci.ErrOptionValue)
}
