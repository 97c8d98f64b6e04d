// Package session is the authoritative state machine for live games.
package session

import (
	"time"

	"github.com/park285/chess-arena/internal/rules"
	"github.com/park285/chess-arena/pkg/chessdto"
)

// Status is active until the single terminal transition to finished.
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Terminal reasons. Draw reasons reported by the rules package are used as is.
const (
	ReasonCheckmate   = "checkmate"
	ReasonTimeout     = "timeout"
	ReasonResignation = "resignation"
	ReasonAgreement   = "agreement"
	ReasonDisconnect  = "disconnect"
)

// WinnerDraw is the Outcome winner of drawn games.
const WinnerDraw = "draw"

// Outcome is set exactly when the session is finished.
type Outcome struct {
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}

// OfferKind distinguishes the two negotiable offers.
type OfferKind string

const (
	OfferDraw     OfferKind = "draw"
	OfferFriendly OfferKind = "friendly"
)

// Offer is the single outstanding offer, tagged with the offering side.
type Offer struct {
	Kind OfferKind   `json:"kind"`
	From rules.Color `json:"from"`
}

// Seat binds a color to a human player or the bot.
type Seat struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Bot      bool   `json:"bot,omitempty"`
}

func (s Seat) DTO() chessdto.Player {
	return chessdto.Player{ID: s.PlayerID, Username: s.Username, Rating: s.Rating, IsBot: s.Bot}
}

// Clock holds remaining milliseconds per side.
type Clock struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
}

func (c Clock) Of(color rules.Color) int64 {
	if color == rules.Black {
		return c.Black
	}
	return c.White
}

func (c *Clock) set(color rules.Color, ms int64) {
	if color == rules.Black {
		c.Black = ms
	} else {
		c.White = ms
	}
}

// Event is one outbound message; Payload is a chessdto value or nil.
type Event struct {
	Type    string
	Payload any
}

// Emitter delivers events to a player's current connection. It must not block on slow clients.
type Emitter interface {
	Emit(playerID string, ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(playerID string, ev Event)

func (f EmitterFunc) Emit(playerID string, ev Event) { f(playerID, ev) }

// State is the serializable form of a session used for snapshots and rehydration.
type State struct {
	ID        string    `json:"id"`
	White     Seat      `json:"white"`
	Black     Seat      `json:"black"`
	MovesSAN  []string  `json:"moves_san"`
	MovesUCI  []string  `json:"moves_uci"`
	FEN       string    `json:"fen"`
	Clock     Clock     `json:"clock"`
	Friendly  bool      `json:"friendly"`
	Pending   *Offer    `json:"pending,omitempty"`
	Status    Status    `json:"status"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
}

// Seat returns the seat of color c.
func (st State) Seat(c rules.Color) Seat {
	if c == rules.Black {
		return st.Black
	}
	return st.White
}

// ColorOf reports which side playerID occupies.
func (st State) ColorOf(playerID string) (rules.Color, bool) {
	switch playerID {
	case "":
		return "", false
	case st.White.PlayerID:
		return rules.White, true
	case st.Black.PlayerID:
		return rules.Black, true
	}
	return "", false
}

// HasBot reports whether either seat is the bot.
func (st State) HasBot() bool { return st.White.Bot || st.Black.Bot }

// Snapshot is the spectator view of st.
func (st State) Snapshot() chessdto.GameSnapshot {
	turn := rules.White
	if len(st.MovesSAN)%2 == 1 {
		turn = rules.Black
	}
	snap := chessdto.GameSnapshot{
		GameID:         st.ID,
		White:          st.White.DTO(),
		Black:          st.Black.DTO(),
		FEN:            st.FEN,
		TimeLeft:       chessdto.Clock{White: st.Clock.White, Black: st.Clock.Black},
		CurrentPlayer:  string(turn),
		Moves:          append([]string{}, st.MovesSAN...),
		IsFriendlyGame: st.Friendly,
		Status:         string(st.Status),
	}
	if st.Outcome != nil {
		snap.Outcome = &chessdto.Outcome{Winner: st.Outcome.Winner, Reason: st.Outcome.Reason}
	}
	if st.Pending != nil {
		snap.PendingOffer = string(st.Pending.Kind)
	}
	return snap
}
