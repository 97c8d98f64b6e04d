package chessdto

import (
	"encoding/json"
	"fmt"
)

// Inbound event types.
const (
	EventFindGame            = "findGame"
	EventRejoinGame          = "rejoinGame"
	EventMakeMove            = "makeMove"
	EventOfferDraw           = "offerDraw"
	EventAcceptDraw          = "acceptDraw"
	EventDeclineDraw         = "declineDraw"
	EventResign              = "resign"
	EventOfferFriendlyGame   = "offerFriendlyGame"
	EventAcceptFriendlyGame  = "acceptFriendlyGame"
	EventDeclineFriendlyGame = "declineFriendlyGame"
	EventLeaveGame           = "leaveGame"
)

// Outbound event types.
const (
	EventWaitingForOpponent   = "waitingForOpponent"
	EventGameFound            = "gameFound"
	EventGameRejoined         = "gameRejoined"
	EventMoveMade             = "moveMade"
	EventTimeUpdate           = "timeUpdate"
	EventGameOver             = "gameOver"
	EventDrawOffered          = "drawOffered"
	EventDrawDeclined         = "drawDeclined"
	EventFriendlyGameOffered  = "friendlyGameOffered"
	EventFriendlyGameAccepted = "friendlyGameAccepted"
	EventFriendlyGameDeclined = "friendlyGameDeclined"
	EventGameNotFound         = "gameNotFound"
	EventError                = "error"
)

// Envelope is the frame exchanged on the websocket in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload; a nil payload yields an envelope without one.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	env := Envelope{Type: typ}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	env.Payload = raw
	return env, nil
}

// Decode unmarshals the payload into dst. An empty payload leaves dst untouched.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
