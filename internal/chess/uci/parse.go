package uci

import (
	"strconv"
	"strings"

	chessuci "github.com/corentings/chess/v2/uci"
)

// Option is an engine option as declared in reply to "uci".
type Option struct {
	Name     string
	Type     string // check, spin, combo, button, string
	Default  string
	Min      int
	Max      int
	HasRange bool
	Vars     []string
}

// Score is an engine score from the side to move's point of view.
type Score struct {
	Mate  bool
	Value int // centipawns, or moves to mate when Mate is set
}

type infoLine struct {
	depth    int
	score    Score
	hasScore bool
	pv       []string
}

// parseOption reads "option name <id> type <t> [default <x>] [min <x>] [max <x>] [var <x>]*".
func parseOption(line string) (Option, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "option" || fields[1] != "name" {
		return Option{}, false
	}
	typeIdx := -1
	for i := 2; i < len(fields); i++ {
		if fields[i] == "type" {
			typeIdx = i
			break
		}
	}
	if typeIdx <= 2 || typeIdx+1 >= len(fields) {
		return Option{}, false
	}

	opt := Option{
		Name: strings.Join(fields[2:typeIdx], " "),
		Type: fields[typeIdx+1],
	}

	var (
		key    string
		values []string
		hasMin bool
		hasMax bool
	)
	flush := func() {
		val := strings.Join(values, " ")
		switch key {
		case "default":
			if val == "<empty>" {
				val = ""
			}
			opt.Default = val
		case "min":
			if n, err := strconv.Atoi(val); err == nil {
				opt.Min = n
				hasMin = true
			}
		case "max":
			if n, err := strconv.Atoi(val); err == nil {
				opt.Max = n
				hasMax = true
			}
		case "var":
			opt.Vars = append(opt.Vars, val)
		}
		values = values[:0]
	}
	for _, f := range fields[typeIdx+2:] {
		switch f {
		case "default", "min", "max", "var":
			if key != "" {
				flush()
			}
			key = f
		default:
			values = append(values, f)
		}
	}
	if key != "" {
		flush()
	}
	opt.HasRange = hasMin && hasMax
	return opt, true
}

// parseInfo decodes an "info" line with the rules library's UCI decoder.
// Lines it rejects, such as "info string", carry nothing a search needs.
func parseInfo(line string) (infoLine, bool) {
	var parsed chessuci.Info
	if err := parsed.UnmarshalText([]byte(line)); err != nil {
		return infoLine{}, false
	}
	info := infoLine{depth: parsed.Depth}
	switch scoreUnit(line) {
	case "cp":
		info.score = Score{Value: parsed.Score.CP}
		info.hasScore = true
	case "mate":
		info.score = Score{Mate: true, Value: parsed.Score.Mate}
		info.hasScore = true
	}
	for _, m := range parsed.PV {
		info.pv = append(info.pv, m.String())
	}
	return info, true
}

// scoreUnit returns the token after "score". The decoded score leaves both
// CP and Mate at zero for "score mate 0", so the unit is read from the text.
func scoreUnit(line string) string {
	fields := strings.Fields(line)
	if len(fields) > 1 && fields[1] == "string" {
		return ""
	}
	for i := 1; i+1 < len(fields); i++ {
		if fields[i] == "score" {
			return fields[i+1]
		}
	}
	return ""
}

// flipDiagram turns the engine's white-side diagram into black's view.
func flipDiagram(lines []string) []string {
	out := make([]string, 0, len(lines))
	var files string
	rows := lines
	if n := len(lines); n > 0 && !strings.Contains(lines[n-1], "+") && !strings.Contains(lines[n-1], "|") {
		files = lines[n-1]
		rows = lines[:n-1]
	}
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, flipRankLine(rows[i]))
	}
	if files != "" {
		letters := strings.Fields(files)
		for i, j := 0, len(letters)-1; i < j; i, j = i+1, j-1 {
			letters[i], letters[j] = letters[j], letters[i]
		}
		out = append(out, "   "+strings.Join(letters, "   "))
	}
	return out
}

func flipRankLine(line string) string {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return line
	}
	cells := parts[1 : len(parts)-1]
	rev := make([]string, len(cells))
	for i, c := range cells {
		rev[len(cells)-1-i] = c
	}
	return parts[0] + "|" + strings.Join(rev, "|") + "|" + parts[len(parts)-1]
}
