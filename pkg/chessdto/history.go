package chessdto

import "time"

// GameRecord is an archived finished game.
type GameRecord struct {
	ID          int64         `json:"id"`
	GameID      string        `json:"gameId"`
	White       Player        `json:"white"`
	Black       Player        `json:"black"`
	Result      string        `json:"result"`
	Method      string        `json:"method"`
	MovesSAN    []string      `json:"movesSan"`
	MovesUCI    []string      `json:"movesUci"`
	PGN         string        `json:"pgn"`
	ECO         string        `json:"eco,omitempty"`
	OpeningName string        `json:"openingName,omitempty"`
	Friendly    bool          `json:"friendly"`
	StartedAt   time.Time     `json:"startedAt"`
	EndedAt     time.Time     `json:"endedAt"`
	Duration    time.Duration `json:"duration"`
}

// Result strings in PGN notation.
const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
)

// ResultFor maps an outcome winner to a PGN result.
func ResultFor(winner string) string {
	switch winner {
	case "white":
		return ResultWhiteWins
	case "black":
		return ResultBlackWins
	default:
		return ResultDraw
	}
}
