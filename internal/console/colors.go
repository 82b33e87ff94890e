package console

import "strings"

// Terminal color codes
const (
	Reset = "\033[0m"
	Red   = "\033[31m"
	Blue  = "\033[34m"
	Cyan  = "\033[36m"
)

// Colorize paints an engine board diagram: white pieces blue, black pieces
// red, rank and file labels cyan. Box-drawing characters pass through.
func Colorize(board string) string {
	lines := strings.Split(board, "\n")
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		filesLine := !strings.ContainsAny(line, "|+")
		for _, ch := range line {
			switch {
			case filesLine && ch >= 'a' && ch <= 'h':
				sb.WriteString(Cyan + string(ch) + Reset)
			case ch >= '1' && ch <= '8':
				sb.WriteString(Cyan + string(ch) + Reset)
			case isPiece(ch) && ch >= 'A' && ch <= 'Z':
				sb.WriteString(Blue + string(ch) + Reset)
			case isPiece(ch):
				sb.WriteString(Red + string(ch) + Reset)
			default:
				sb.WriteRune(ch)
			}
		}
	}
	return sb.String()
}

func isPiece(ch rune) bool {
	return strings.ContainsRune("KQRBNPkqrbnp", ch)
}
