package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-console/internal/obslog"
	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	defaultQuitTimeout   = time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
)

var (
	ErrClosed        = errors.New("engine output closed")
	ErrUnknownOption = errors.New("unknown engine option")
	ErrOptionValue   = errors.New("invalid engine option value")
)

type Limits struct {
	Depth          int
	MoveTimeMillis int
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

type SearchResponse struct {
	BestMove string
	Ponder   string
	Score    Score
	HasScore bool
	Depth    int
	PV       []string
}

// Display is the parsed reply to the engine's "d" command.
type Display struct {
	Diagram  []string
	FEN      string
	Checkers []string
}

type lineResult struct {
	line string
	err  error
}

type Session struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan lineResult
	done    chan struct{}
	stop    sync.Once
	mu      sync.Mutex
	search  sync.Mutex
	name    string
	options map[string]Option
}

func NewSession(ctx context.Context, binaryPath string) (*Session, error) {
	cmd := exec.CommandContext(ctx, binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := newSession(stdin, stdoutPipe)
	s.cmd = cmd

	if err := s.initialize(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// newSession wires a session over raw pipes without starting a process.
func newSession(w io.WriteCloser, r io.Reader) *Session {
	s := &Session{
		stdin:   w,
		lines:   make(chan lineResult, 64),
		done:    make(chan struct{}),
		options: make(map[string]Option),
	}
	go s.pump(bufio.NewReader(r))
	return s
}

// pump is the only reader of engine output. It stops once Close runs, even
// when nobody drains the lines left over from an abandoned search.
func (s *Session) pump(r *bufio.Reader) {
	defer close(s.lines)
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" || err == nil {
			if !s.deliver(lineResult{line: line}) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.deliver(lineResult{err: err})
			}
			return
		}
	}
}

func (s *Session) deliver(r lineResult) bool {
	select {
	case s.lines <- r:
		return true
	case <-s.done:
		return false
	}
}

// Name is the engine's "id name" value.
func (s *Session) Name() string { return s.name }

// Options returns a copy of the options declared during the handshake.
func (s *Session) Options() map[string]Option {
	out := make(map[string]Option, len(s.options))
	for k, v := range s.options {
		out[k] = v
	}
	return out
}

// Option looks up a declared option; names are case-insensitive in UCI.
func (s *Session) Option(name string) (Option, bool) {
	opt, ok := s.options[strings.ToLower(name)]
	return opt, ok
}

func (s *Session) initialize(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	for {
		line, err := s.readLine(initCtx)
		if err != nil {
			return fmt.Errorf("wait uciok: %w", err)
		}
		switch {
		case line == "uciok":
			return s.EnsureReady(ctx)
		case strings.HasPrefix(line, "id name "):
			s.name = strings.TrimSpace(strings.TrimPrefix(line, "id name "))
		case strings.HasPrefix(line, "option "):
			if opt, ok := parseOption(line); ok {
				s.options[strings.ToLower(opt.Name)] = opt
			}
		}
	}
}

// SetOption validates value against the declared option and sends it.
// Engine complaints printed before readyok are reported as ErrOptionValue.
func (s *Session) SetOption(ctx context.Context, name, value string) error {
	opt, ok := s.Option(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOption, name)
	}
	if err := validateOption(opt, value); err != nil {
		return err
	}
	if err := s.send(fmt.Sprintf("setoption name %s value %s", opt.Name, value)); err != nil {
		return fmt.Errorf("send setoption: %w", err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()
	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	for {
		line, err := s.readLine(readyCtx)
		if err != nil {
			return fmt.Errorf("wait readyok: %w", err)
		}
		if line == "readyok" {
			return nil
		}
		if strings.HasPrefix(line, "No such option") || strings.HasPrefix(strings.ToLower(line), "info string error") {
			return fmt.Errorf("%w: %s", ErrOptionValue, line)
		}
	}
}

func validateOption(opt Option, value string) error {
	switch opt.Type {
	case "spin":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: %s expects an integer, got %q", ErrOptionValue, opt.Name, value)
		}
		if opt.HasRange && (n < opt.Min || n > opt.Max) {
			return fmt.Errorf("%w: %s=%d out of range %d-%d", ErrOptionValue, opt.Name, n, opt.Min, opt.Max)
		}
	case "check":
		if value != "true" && value != "false" {
			return fmt.Errorf("%w: %s expects true or false, got %q", ErrOptionValue, opt.Name, value)
		}
	case "combo":
		for _, v := range opt.Vars {
			if strings.EqualFold(v, value) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s does not accept %q", ErrOptionValue, opt.Name, value)
	}
	return nil
}

func (s *Session) SetPosition(fen string, moves []string) error {
	return s.send(strings.TrimSpace(buildPositionCommand(fen, moves)))
}

func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if err := s.SetPosition(req.FEN, req.Moves); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(req.Limits))
	defer cancel()

	var resp SearchResponse
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// leave the engine idle for whoever reuses it
				_ = s.send("stop")
			}
			obslog.L().Warn("uci_search_read_error",
				zap.String("go", goCmd),
				zap.Int("moves", len(req.Moves)),
				zap.Error(err),
			)
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "info "):
			if info, ok := parseInfo(line); ok {
				if info.depth > 0 {
					resp.Depth = info.depth
				}
				if info.hasScore {
					resp.Score = info.score
					resp.HasScore = true
				}
				if len(info.pv) > 0 {
					resp.PV = info.pv
				}
			}
		case strings.HasPrefix(line, "bestmove"):
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				resp.BestMove = parts[1]
			}
			if len(parts) >= 4 && parts[2] == "ponder" {
				resp.Ponder = parts[3]
			}
			return resp, nil
		}
	}
}

// Display sends "d" and collects the diagram, Fen and Checkers lines.
func (s *Session) Display(ctx context.Context) (Display, error) {
	s.search.Lock()
	defer s.search.Unlock()

	if err := s.send("d"); err != nil {
		return Display{}, fmt.Errorf("send d: %w", err)
	}
	readCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	var d Display
	for {
		line, err := s.readLine(readCtx)
		if err != nil {
			return Display{}, fmt.Errorf("read display: %w", err)
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "Fen:"):
			d.FEN = strings.TrimSpace(strings.TrimPrefix(trimmed, "Fen:"))
		case strings.HasPrefix(trimmed, "Checkers:"):
			d.Checkers = strings.Fields(strings.TrimPrefix(trimmed, "Checkers:"))
			return d, nil
		case strings.HasPrefix(trimmed, "Key:"):
		case d.FEN == "" && (strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "|") || isFilesLine(trimmed)):
			d.Diagram = append(d.Diagram, line)
		}
	}
}

// Oriented returns the diagram as seen from white or black.
func (d Display) Oriented(white bool) []string {
	if white {
		return append([]string(nil), d.Diagram...)
	}
	return flipDiagram(d.Diagram)
}

func isFilesLine(s string) bool {
	f := strings.Fields(s)
	return len(f) == 8 && f[0] == "a" && f[7] == "h"
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		ms := l.MoveTimeMillis + 2000
		return time.Duration(ms) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts {
			return err
		}
		obslog.L().Warn("uci_ready_retry",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", newGameRetryAttempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

// Close asks the engine to quit and kills it if it does not exit in time.
func (s *Session) Close() error {
	_ = s.send("quit")
	s.stop.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(defaultQuitTimeout):
		_ = s.cmd.Process.Kill()
		<-done
		return nil
	}
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obslog.L().Debug("uci_send", zap.String("cmd", msg))
	_, err := io.WriteString(s.stdin, msg+"\n")
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-s.lines:
		if !ok {
			return "", ErrClosed
		}
		return res.line, res.err
	}
}
