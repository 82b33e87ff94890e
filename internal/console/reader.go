package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// LineReader yields one line of user input per call. io.EOF marks the end of
// input, including an interrupt at the prompt. A cancelled ctx ends a pending
// read with ctx.Err().
type LineReader interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
	Close() error
}

// Open returns a readline editor when stdin is a terminal and a plain
// scanner otherwise. historyFile may be empty.
func Open(in *os.File, out io.Writer, historyFile string) (LineReader, error) {
	if !term.IsTerminal(int(in.Fd())) {
		return NewScanReader(in, out), nil
	}
	return NewReadline(in, out, historyFile)
}

type Readline struct {
	rl       *readline.Instance
	closing  sync.Once
	closeErr error
}

func NewReadline(in io.ReadCloser, out io.Writer, historyFile string) (*Readline, error) {
	rl, err := readline.NewEx(&readline.Config{
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           in,
		Stdout:          out,
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return &Readline{rl: rl}, nil
}

func (r *Readline) ReadLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// closing the editor is the only way to wake a blocked Readline
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if errors.Is(err, readline.ErrInterrupt) {
		return "", fmt.Errorf("interrupted: %w", io.EOF)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (r *Readline) Close() error {
	r.closing.Do(func() { r.closeErr = r.rl.Close() })
	return r.closeErr
}

type scanned struct {
	line string
	err  error
}

// ScanReader reads newline-terminated input, echoing the prompt to out.
// Scanning runs on its own goroutine so a read can be abandoned on cancel
// without losing the line that eventually arrives.
type ScanReader struct {
	sc    *bufio.Scanner
	out   io.Writer
	lines chan scanned
	start sync.Once
}

func NewScanReader(in io.Reader, out io.Writer) *ScanReader {
	return &ScanReader{sc: bufio.NewScanner(in), out: out, lines: make(chan scanned)}
}

func (r *ScanReader) ReadLine(ctx context.Context, prompt string) (string, error) {
	if prompt != "" && r.out != nil {
		if _, err := io.WriteString(r.out, prompt); err != nil {
			return "", err
		}
	}
	r.start.Do(func() { go r.scan() })
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case s, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		return s.line, s.err
	}
}

func (r *ScanReader) scan() {
	defer close(r.lines)
	for r.sc.Scan() {
		r.lines <- scanned{line: strings.TrimRight(r.sc.Text(), "\r")}
	}
	if err := r.sc.Err(); err != nil {
		r.lines <- scanned{err: err}
	}
}

func (r *ScanReader) Close() error { return nil }
