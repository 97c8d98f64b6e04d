package chessdto

import "time"

// PlayerProfile is the persisted rating and record of a human player.
type PlayerProfile struct {
	PlayerID     string    `json:"playerId"`
	Username     string    `json:"username"`
	Rating       int       `json:"rating"`
	GamesPlayed  int       `json:"gamesPlayed"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Draws        int       `json:"draws"`
	Streak       int       `json:"streak"`
	StreakType   string    `json:"streakType,omitempty"`
	LastPlayedAt time.Time `json:"lastPlayedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	CreatedAt    time.Time `json:"createdAt"`
}
