package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

var fakeOptions = []string{
	"option name Threads type spin default 1 min 1 max 1024",
	"option name Hash type spin default 16 min 1 max 33554432",
	"option name Skill Level type spin default 20 min 0 max 20",
	"option name UCI_LimitStrength type check default false",
	"option name UCI_Elo type spin default 1320 min 1320 max 3190",
	"option name Debug Log File type string default <empty>",
}

var fakeDiagram = []string{
	" +---+---+---+---+---+---+---+---+",
	" | r | n | b | q | k | b | n | r | 8",
	" +---+---+---+---+---+---+---+---+",
	" | p | p | p | p |   | p | p | p | 7",
	" +---+---+---+---+---+---+---+---+",
	" |   |   |   |   |   |   |   |   | 6",
	" +---+---+---+---+---+---+---+---+",
	" |   |   |   |   | p |   |   |   | 5",
	" +---+---+---+---+---+---+---+---+",
	" |   |   |   |   | P |   |   |   | 4",
	" +---+---+---+---+---+---+---+---+",
	" |   |   |   |   |   |   |   |   | 3",
	" +---+---+---+---+---+---+---+---+",
	" | P | P | P | P |   | P | P | P | 2",
	" +---+---+---+---+---+---+---+---+",
	" | R | N | B | Q | K | B | N | R | 1",
	" +---+---+---+---+---+---+---+---+",
	"   a   b   c   d   e   f   g   h",
}

type fakeEngine struct {
	silentGo bool
	mated    bool
	position string
}

func (f *fakeEngine) run(r io.Reader, w io.WriteCloser) {
	buf := bufio.NewReader(r)
	for {
		line, err := buf.ReadString('\n')
		if err != nil {
			w.Close()
			return
		}
		line = strings.TrimSpace(line)
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "uci":
			fmt.Fprintln(w, "id name Fakefish 1")
			for _, o := range fakeOptions {
				fmt.Fprintln(w, o)
			}
			fmt.Fprintln(w, "uciok")
		case "isready":
			fmt.Fprintln(w, "readyok")
		case "setoption":
			if strings.Contains(line, "name Bogus") {
				fmt.Fprintln(w, "No such option: Bogus")
			}
		case "position":
			f.position = line
		case "go":
			if f.silentGo {
				continue
			}
			if f.mated {
				fmt.Fprintln(w, "info depth 0 score mate 0")
				fmt.Fprintln(w, "bestmove (none)")
				continue
			}
			fmt.Fprintln(w, "info depth 1 score cp 12 nodes 20 pv d7d5")
			fmt.Fprintln(w, "info string NNUE evaluation enabled")
			fmt.Fprintln(w, "info depth 9 seldepth 12 multipv 1 score mate -3 nodes 900 pv e7e5 g1f3")
			fmt.Fprintln(w, "bestmove e7e5 ponder g1f3")
		case "d":
			fmt.Fprintln(w, "")
			for _, l := range fakeDiagram {
				fmt.Fprintln(w, l)
			}
			fmt.Fprintln(w, "")
			fmt.Fprintln(w, "Fen: rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2")
			fmt.Fprintln(w, "Key: 8F8F01D4562F59FB")
			fmt.Fprintln(w, "Checkers: ")
		case "quit":
			w.Close()
			return
		}
	}
}

func newFakeSession(t *testing.T, f *fakeEngine) *Session {
	t.Helper()
	r0, w0 := io.Pipe()
	r1, w1 := io.Pipe()
	go f.run(r1, w0)
	s := newSession(w1, r0)
	if err := s.initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHandshakeRecordsOptions(t *testing.T) {
	s := newFakeSession(t, &fakeEngine{})
	if s.Name() != "Fakefish 1" {
		t.Fatalf("name = %q", s.Name())
	}
	elo, ok := s.Option("uci_elo")
	if !ok {
		t.Fatalf("UCI_Elo not recorded: %v", s.Options())
	}
	if !elo.HasRange || elo.Min != 1320 || elo.Max != 3190 {
		t.Fatalf("unexpected UCI_Elo option: %+v", elo)
	}
	skill, ok := s.Option("Skill Level")
	if !ok || skill.Name != "Skill Level" {
		t.Fatalf("multi-word option name lost: %+v", skill)
	}
}

func TestSetOption(t *testing.T) {
	s := newFakeSession(t, &fakeEngine{})
	ctx := context.Background()

	if err := s.SetOption(ctx, "Hash", "256"); err != nil {
		t.Fatalf("SetOption Hash: %v", err)
	}
	if err := s.SetOption(ctx, "UCI_Elo", "2500"); err != nil {
		t.Fatalf("SetOption UCI_Elo: %v", err)
	}

	cases := []struct {
		name, value string
		want        error
	}{
		{"UCI_Elo", "9000", ErrOptionValue},
		{"UCI_Elo", "strong", ErrOptionValue},
		{"UCI_LimitStrength", "yes", ErrOptionValue},
		{"Contempt", "10", ErrUnknownOption},
	}
	for _, tc := range cases {
		err := s.SetOption(ctx, tc.name, tc.value)
		if !errors.Is(err, tc.want) {
			t.Errorf("SetOption(%s=%s) = %v, want %v", tc.name, tc.value, err, tc.want)
		}
	}
}

func TestSetOptionEngineRejects(t *testing.T) {
	s := newFakeSession(t, &fakeEngine{})
	s.options["bogus"] = Option{Name: "Bogus", Type: "string"}
	if err := s.SetOption(context.Background(), "Bogus", "x"); !errors.Is(err, ErrOptionValue) {
		t.Fatalf("expected engine rejection, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	f := &fakeEngine{}
	s := newFakeSession(t, f)

	resp, err := s.Search(context.Background(), SearchRequest{
		FEN:    "startpos",
		Moves:  []string{"e2e4"},
		Limits: Limits{MoveTimeMillis: 50},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "e7e5" || resp.Ponder != "g1f3" {
		t.Fatalf("unexpected best move: %+v", resp)
	}
	if !resp.HasScore || !resp.Score.Mate || resp.Score.Value != -3 || resp.Depth != 9 {
		t.Fatalf("unexpected score: %+v", resp)
	}
	if f.position != "position startpos moves e2e4" {
		t.Fatalf("position command = %q", f.position)
	}
}

func TestSearchMatedPosition(t *testing.T) {
	s := newFakeSession(t, &fakeEngine{mated: true})
	resp, err := s.Search(context.Background(), SearchRequest{
		FEN:    "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3",
		Limits: Limits{Depth: 15},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "(none)" {
		t.Fatalf("best move = %q", resp.BestMove)
	}
	if !resp.HasScore || !resp.Score.Mate || resp.Score.Value != 0 {
		t.Fatalf("mate 0 lost: %+v", resp)
	}
}

func TestParseInfo(t *testing.T) {
	cases := []struct {
		line     string
		hasScore bool
		score    Score
		depth    int
		pv       string
	}{
		{"info depth 0 score mate 0", true, Score{Mate: true}, 0, ""},
		{"info depth 20 seldepth 28 multipv 1 score cp 0 nodes 4096 nps 800000 time 5 pv e2e4 e7e5", true, Score{}, 20, "e2e4 e7e5"},
		{"info depth 9 score mate -3 nodes 900 pv e7e5 g1f3", true, Score{Mate: true, Value: -3}, 9, "e7e5 g1f3"},
		{"info depth 12 score cp -48 pv g8f6", true, Score{Value: -48}, 12, "g8f6"},
	}
	for _, tc := range cases {
		got, ok := parseInfo(tc.line)
		if !ok {
			t.Errorf("parseInfo(%q) rejected", tc.line)
			continue
		}
		if got.hasScore != tc.hasScore || got.score != tc.score || got.depth != tc.depth || strings.Join(got.pv, " ") != tc.pv {
			t.Errorf("parseInfo(%q) = %+v", tc.line, got)
		}
	}
	if got, ok := parseInfo("info string score cp 99 is not a score"); ok && got.hasScore {
		t.Fatalf("free text read as a score: %+v", got)
	}
	if _, ok := parseInfo("bestmove e2e4"); ok {
		t.Fatalf("non-info line accepted")
	}
}

func TestCloseStopsUnreadOutput(t *testing.T) {
	r0, w0 := io.Pipe()
	_, w1 := io.Pipe()
	s := newSession(w1, r0)
	defer r0.Close()

	go func() {
		for i := 0; ; i++ {
			if _, err := fmt.Fprintf(w0, "info depth %d score cp %d\n", i, i); err != nil {
				return
			}
		}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(s.lines) < cap(s.lines) {
		if time.Now().After(deadline) {
			t.Fatalf("buffer never filled: %d lines", len(s.lines))
		}
		time.Sleep(5 * time.Millisecond)
	}

	// w1 has no reader, so quit would block; closing it first makes send fail fast
	w1.Close()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.lines:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("reader kept delivering after Close")
		}
	}
}

func TestSearchDeadline(t *testing.T) {
	s := newFakeSession(t, &fakeEngine{silentGo: true})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Search(ctx, SearchRequest{Limits: Limits{MoveTimeMillis: 10}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSearchRequiresLimits(t *testing.T) {
	s := newFakeSession(t, &fakeEngine{})
	if _, err := s.Search(context.Background(), SearchRequest{}); err == nil {
		t.Fatalf("expected error for empty limits")
	}
}

func TestDisplay(t *testing.T) {
	s := newFakeSession(t, &fakeEngine{})
	d, err := s.Display(context.Background())
	if err != nil {
		t.Fatalf("Display: %v", err)
	}
	if d.FEN != "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq - 0 2" {
		t.Fatalf("fen = %q", d.FEN)
	}
	if len(d.Diagram) != len(fakeDiagram) {
		t.Fatalf("diagram has %d lines, want %d", len(d.Diagram), len(fakeDiagram))
	}
	if len(d.Checkers) != 0 {
		t.Fatalf("unexpected checkers %v", d.Checkers)
	}

	black := d.Oriented(false)
	if black[1] != " | R | N | B | K | Q | B | N | R | 1" {
		t.Fatalf("black top rank = %q", black[1])
	}
	if black[len(black)-1] != "   h   g   f   e   d   c   b   a" {
		t.Fatalf("black files = %q", black[len(black)-1])
	}
	if white := d.Oriented(true); white[1] != fakeDiagram[1] {
		t.Fatalf("white orientation changed: %q", white[1])
	}
}

func TestClosedEngine(t *testing.T) {
	r0, w0 := io.Pipe()
	_, w1 := io.Pipe()
	s := newSession(w1, r0)
	w0.Close()
	if err := s.awaitToken(context.Background(), "uciok"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestParseOption(t *testing.T) {
	cases := []struct {
		line string
		want Option
	}{
		{"option name Hash type spin default 16 min 1 max 1024", Option{Name: "Hash", Type: "spin", Default: "16", Min: 1, Max: 1024, HasRange: true}},
		{"option name Ponder type check default false", Option{Name: "Ponder", Type: "check", Default: "false"}},
		{"option name SyzygyPath type string default <empty>", Option{Name: "SyzygyPath", Type: "string"}},
		{"option name Clear Hash type button", Option{Name: "Clear Hash", Type: "button"}},
	}
	for _, tc := range cases {
		got, ok := parseOption(tc.line)
		if !ok {
			t.Errorf("parseOption(%q) failed", tc.line)
			continue
		}
		if got.Name != tc.want.Name || got.Type != tc.want.Type || got.Default != tc.want.Default ||
			got.Min != tc.want.Min || got.Max != tc.want.Max || got.HasRange != tc.want.HasRange {
			t.Errorf("parseOption(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}

	combo, ok := parseOption("option name Style type combo default Normal var Solid var Normal var Risky")
	if !ok || len(combo.Vars) != 3 || combo.Vars[2] != "Risky" || combo.Default != "Normal" {
		t.Fatalf("combo parse: %+v", combo)
	}
	if _, ok := parseOption("id name Stockfish"); ok {
		t.Fatalf("non-option line parsed")
	}
}

func TestBuildPositionCommand(t *testing.T) {
	cases := []struct {
		fen   string
		moves []string
		want  string
	}{
		{"", nil, "position startpos\n"},
		{"startpos", []string{"e2e4", "e7e5"}, "position startpos moves e2e4 e7e5\n"},
		{"7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", nil, "position fen 7k/5Q2/6K1/8/8/8/8/8 b - - 0 1\n"},
	}
	for _, tc := range cases {
		if got := buildPositionCommand(tc.fen, tc.moves); got != tc.want {
			t.Errorf("buildPositionCommand(%q, %v) = %q, want %q", tc.fen, tc.moves, got, tc.want)
		}
	}
}
