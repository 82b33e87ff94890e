package chess

import (
	"errors"
	"testing"
)

const (
	foolsMateFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	stalemateFEN = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	bareKingsFEN = "8/8/8/4k3/8/8/8/4K3 w - - 0 1"

	// 1.e4 f6 2.Qh5+
	checkedStartFEN = "rnbqkbnr/ppppp1pp/5p2/7Q/4P3/8/PPPP1PPP/RNB1KBNR b KQkq - 1 2"
)

func mustReplay(t *testing.T, moves ...string) Position {
	t.Helper()
	game, err := replay(StartingFEN, moves)
	if err != nil {
		t.Fatalf("replay %v: %v", moves, err)
	}
	return snapshot(StartingFEN, moves, game)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		moves []string
		want  GameState
	}{
		{"start", nil, InProgress},
		{"quiet", []string{"e2e4", "e7e5"}, InProgress},
		{"check", []string{"e2e4", "f7f6", "d1h5"}, Check},
		{"fools mate", []string{"f2f3", "e7e5", "g2g4", "d8h4"}, Checkmate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(mustReplay(t, tt.moves...))
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Fatalf("state = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyFromFEN(t *testing.T) {
	mate, err := PositionFromFEN(foolsMateFEN)
	if err != nil {
		t.Fatalf("PositionFromFEN: %v", err)
	}
	if !IsCheckmate(mate) || !IsCheck(mate) {
		t.Fatalf("expected checkmate for %s", foolsMateFEN)
	}
	if mate.Turn != White {
		t.Fatalf("turn = %s, want white", mate.Turn)
	}

	stale, err := PositionFromFEN(stalemateFEN)
	if err != nil {
		t.Fatalf("PositionFromFEN: %v", err)
	}
	if !IsStalemate(stale) {
		t.Fatalf("expected stalemate for %s", stalemateFEN)
	}
	if IsCheck(stale) {
		t.Fatalf("stalemate must not report check")
	}
	st, _ := Classify(stale)
	if !st.Terminal() {
		t.Fatalf("stalemate should be terminal")
	}

	kings, err := PositionFromFEN(bareKingsFEN)
	if err != nil {
		t.Fatalf("PositionFromFEN: %v", err)
	}
	if st, err := Classify(kings); err != nil || st != Drawn || !st.Terminal() {
		t.Fatalf("bare kings = %s, %v; want drawn", st, err)
	}
	if IsCheckmate(kings) || IsStalemate(kings) || IsCheck(kings) {
		t.Fatalf("bare kings misreported as mate, stalemate or check")
	}
}

func TestCaptureIntoBareKingsIsDrawn(t *testing.T) {
	start, err := PositionFromFEN("8/8/8/4k3/8/8/3q4/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("PositionFromFEN: %v", err)
	}
	if st, _ := Classify(start); st == Drawn {
		t.Fatalf("queen on the board is not a draw yet")
	}
	p, err := Advance(start, "e1d2")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st, err := Classify(p); err != nil || st != Drawn {
		t.Fatalf("after Kxd2 state = %s, %v; want drawn", st, err)
	}
}

func TestPositionFromFENStartpos(t *testing.T) {
	for _, in := range []string{"", "startpos", StartingFEN} {
		p, err := PositionFromFEN(in)
		if err != nil {
			t.Fatalf("PositionFromFEN(%q): %v", in, err)
		}
		if p.StartFEN != StartingFEN || p.FEN != StartingFEN {
			t.Fatalf("PositionFromFEN(%q) = %+v", in, p)
		}
		if p.Ply() != 0 || p.LastMove() != "" || p.Turn != White {
			t.Fatalf("unexpected fresh position %+v", p)
		}
	}
	if _, err := PositionFromFEN("not a fen"); err == nil {
		t.Fatalf("expected error for malformed fen")
	}
}

func TestPushMoveRejects(t *testing.T) {
	game, err := newGame("")
	if err != nil {
		t.Fatalf("newGame: %v", err)
	}
	for _, mv := range []string{"", "e2e5", "e7e5", "zz99", "hello"} {
		if _, err := pushMove(game, mv); !errors.Is(err, ErrInvalidMove) {
			t.Fatalf("pushMove(%q) err = %v, want ErrInvalidMove", mv, err)
		}
	}
	if got := game.FEN(); got != StartingFEN {
		t.Fatalf("rejected moves changed the board: %s", got)
	}
	played, err := pushMove(game, " E2E4 ")
	if err != nil {
		t.Fatalf("pushMove: %v", err)
	}
	if played != "e2e4" {
		t.Fatalf("played = %q, want e2e4", played)
	}
}

func TestOpeningName(t *testing.T) {
	code, title := OpeningName(mustReplay(t, "e2e4", "e7e5", "g1f3", "b8c6", "f1b5"))
	if code == "" || title == "" {
		t.Fatalf("expected a named opening, got %q %q", code, title)
	}
	if code, _ := OpeningName(mustReplay(t)); code != "" {
		t.Fatalf("no moves should have no opening, got %q", code)
	}
	p, _ := PositionFromFEN(stalemateFEN)
	if code, _ := OpeningName(p); code != "" {
		t.Fatalf("non-standard start should have no opening, got %q", code)
	}
}

func TestEvaluationFormatting(t *testing.T) {
	tests := []struct {
		ev   Evaluation
		want string
	}{
		{Evaluation{Kind: EvalCentipawns, Value: 35}, "+0.35"},
		{Evaluation{Kind: EvalCentipawns, Value: -120}, "-1.20"},
		{Evaluation{Kind: EvalCentipawns, Value: 0}, "+0.00"},
		{Evaluation{Kind: EvalMate, Value: 3}, "mate 3 (white)"},
		{Evaluation{Kind: EvalMate, Value: -2}, "mate 2 (black)"},
	}
	for _, tt := range tests {
		if got := tt.ev.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.ev, got, tt.want)
		}
	}
}

func TestParseColorChoice(t *testing.T) {
	for in, want := range map[string]Color{"W": White, "B": Black} {
		got, ok := ParseColorChoice(in)
		if !ok || got != want {
			t.Fatalf("ParseColorChoice(%q) = %v,%v", in, got, ok)
		}
	}
	for _, in := range []string{"w", "b", "White", " W", "", "X"} {
		if _, ok := ParseColorChoice(in); ok {
			t.Fatalf("ParseColorChoice(%q) accepted", in)
		}
	}
}

func TestAdvanceMatchesReplay(t *testing.T) {
	start, _ := PositionFromFEN("")
	p, err := Advance(start, "e2e4")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	p, err = Advance(p, "c7c5")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	want := mustReplay(t, "e2e4", "c7c5")
	if p.FEN != want.FEN || p.Turn != White || p.Ply() != 2 {
		t.Fatalf("Advance = %+v, want %+v", p, want)
	}
	if start.Ply() != 0 {
		t.Fatalf("Advance mutated its input")
	}
	if _, err := Advance(p, "e4e6"); !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("err = %v, want ErrInvalidMove", err)
	}
}

func TestSnapshotInCheck(t *testing.T) {
	if !mustReplay(t, "e2e4", "f7f6", "d1h5").InCheck {
		t.Fatalf("Qh5+ should be flagged as check")
	}
	if mustReplay(t, "e2e4").InCheck {
		t.Fatalf("e2e4 is not check")
	}
}

func TestClassifyStartInCheck(t *testing.T) {
	p, err := PositionFromFEN(checkedStartFEN)
	if err != nil {
		t.Fatalf("PositionFromFEN: %v", err)
	}
	if st, _ := Classify(p); st != InProgress {
		t.Fatalf("without a check flag the start reads %s", st)
	}
	p.InCheck = true
	if st, _ := Classify(p); st != Check || !IsCheck(p) {
		t.Fatalf("flagged start = %s, want check", st)
	}
	next, err := Advance(p, "g7g6")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if next.InCheck {
		t.Fatalf("g7g6 blocks the check")
	}
	if st, _ := Classify(next); st != InProgress {
		t.Fatalf("after g7g6 state = %s", st)
	}
}
