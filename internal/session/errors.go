package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMove     = errors.New("invalid move")
	ErrNotYourTurn     = fmt.Errorf("%w: not your turn", ErrInvalidMove)
	ErrGameNotFound    = errors.New("game not found")
	ErrNotAParticipant = errors.New("not a participant")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrGameFinished    = errors.New("game finished")
	ErrOfferPending    = errors.New("an offer is already pending")
	ErrNoOffer         = errors.New("no offer to answer")
)
