package chess

import (
	"sync"

	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// OpeningName returns the ECO code and title of the longest named line the
// position's moves follow. Only games from the standard start are looked up.
func OpeningName(p Position) (string, string) {
	if p.StartFEN != StartingFEN || len(p.Moves) == 0 {
		return "", ""
	}
	game, err := replay(p.StartFEN, p.Moves)
	if err != nil {
		return "", ""
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	if ecoBook == nil {
		return "", ""
	}
	if eco := ecoBook.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
