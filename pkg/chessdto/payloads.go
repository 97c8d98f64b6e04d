package chessdto

// Player is the public view of a seat occupant.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	IsBot    bool   `json:"isBot,omitempty"`
}

// FindGameRequest is the findGame payload.
type FindGameRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

// GameRef identifies a game in every per-game inbound event.
type GameRef struct {
	GameID string `json:"gameId"`
}

// RejoinRequest identifies the game and, on a fresh connection, the player resuming it.
type RejoinRequest struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId,omitempty"`
}

// MakeMoveRequest carries a move in SAN or UCI.
type MakeMoveRequest struct {
	GameID string `json:"gameId"`
	Move   string `json:"move"`
}

// Clock is the remaining time in milliseconds.
type Clock struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
}

// Outcome is present once a game has finished. Winner is white, black or draw.
type Outcome struct {
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}

// GameSnapshot is sent with gameFound and gameRejoined, and served over HTTP.
type GameSnapshot struct {
	GameID         string   `json:"gameId"`
	Color          string   `json:"color,omitempty"`
	Opponent       *Player  `json:"opponent,omitempty"`
	White          Player   `json:"white"`
	Black          Player   `json:"black"`
	FEN            string   `json:"fen"`
	TimeLeft       Clock    `json:"timeLeft"`
	CurrentPlayer  string   `json:"currentPlayer"`
	Moves          []string `json:"moves"`
	IsFriendlyGame bool     `json:"isFriendlyGame"`
	Status         string   `json:"status"`
	Outcome        *Outcome `json:"outcome,omitempty"`
	PendingOffer   string   `json:"pendingOffer,omitempty"`
}

// MoveInfo describes one applied move.
type MoveInfo struct {
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Captured  string `json:"captured,omitempty"`
	IsCheck   bool   `json:"isCheck,omitempty"`
	Color     string `json:"color"`
}

// MoveMade is broadcast after every applied move.
type MoveMade struct {
	GameID        string   `json:"gameId"`
	Move          MoveInfo `json:"move"`
	FEN           string   `json:"fen"`
	CurrentPlayer string   `json:"currentPlayer"`
	Status        string   `json:"status"`
	Outcome       *Outcome `json:"outcome,omitempty"`
	Moves         []string `json:"moves"`
}

// TimeUpdate is broadcast once per clock tick.
type TimeUpdate struct {
	GameID        string `json:"gameId"`
	White         int64  `json:"white"`
	Black         int64  `json:"black"`
	CurrentPlayer string `json:"currentPlayer"`
}

// GameOver is broadcast on every terminal transition.
type GameOver struct {
	GameID string `json:"gameId"`
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}

// OfferNotice accompanies draw and friendly-game offer events.
type OfferNotice struct {
	GameID string `json:"gameId"`
	From   string `json:"from,omitempty"`
}
