package openingbook

import (
	"sync"

	chesslib "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Label names the opening reached by a SAN history. Unknown lines return empty strings.
func Label(history []string) (code, title string) {
	if len(history) == 0 {
		return "", ""
	}
	game := chesslib.NewGame()
	for _, san := range history {
		if err := game.PushNotationMove(san, chesslib.AlgebraicNotation{}, nil); err != nil {
			break
		}
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
