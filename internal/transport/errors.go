package transport

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/chessdto"
)

// errPlayerBound rejects a findGame naming a player that another live connection speaks for.
var errPlayerBound = fmt.Errorf("player connected elsewhere: %w", session.ErrNotAParticipant)

type badRequest string

func (e badRequest) Error() string { return string(e) }

// gameNotFound is answered with the gameNotFound event instead of error.
type gameNotFound struct{ id string }

func (e gameNotFound) Error() string { return "game not found: " + e.id }

type moveError struct {
	move string
	err  error
}

func (e moveError) Error() string { return e.err.Error() }
func (e moveError) Unwrap() error { return e.err }

// scoped attaches the game id a request referred to.
type scoped struct {
	gameID string
	err    error
}

func (e scoped) Error() string { return e.err.Error() }
func (e scoped) Unwrap() error { return e.err }

func inGame(gameID string, err error) error {
	if err == nil {
		return nil
	}
	return scoped{gameID: gameID, err: err}
}

func withMove(err error, move string) error {
	if err == nil {
		return nil
	}
	return moveError{move: move, err: err}
}

// reply answers a failed request on the requesting connection only.
func (s *Server) reply(c *Conn, typ string, err error) {
	var nf gameNotFound
	if errors.As(err, &nf) {
		sendEvent(c, chessdto.EventGameNotFound, chessdto.GameRef{GameID: nf.id})
		return
	}
	de := s.domainError(err)
	if de.Code == chessdto.CodeInternal {
		obslog.L().Error("ws_request_failed", zap.String("type", typ), zap.String("player_id", c.PlayerID()), zap.Error(err))
	} else {
		obslog.L().Debug("ws_request_rejected", zap.String("type", typ), zap.String("code", de.Code), zap.Error(err))
	}
	sendEvent(c, chessdto.EventError, de)
}

func (s *Server) domainError(err error) chessdto.DomainError {
	var (
		br   badRequest
		mv   moveError
		key  string
		data = map[string]any{}
		code string
	)
	var sc scoped
	if errors.As(err, &mv) {
		data["Move"] = mv.move
	}
	if errors.As(err, &sc) {
		data["GameID"] = sc.gameID
	}
	switch {
	case errors.As(err, &br):
		code, key = chessdto.CodeBadRequest, "error.bad_request"
		data["Detail"] = string(br)
	case errors.Is(err, session.ErrNotYourTurn):
		code, key = chessdto.CodeInvalidMove, "error.not_your_turn"
	case errors.Is(err, session.ErrInvalidMove):
		code, key = chessdto.CodeInvalidMove, "error.invalid_move"
	case errors.Is(err, session.ErrGameNotFound):
		code, key = chessdto.CodeGameNotFound, "error.game_not_found"
	case errors.Is(err, session.ErrGameFinished):
		code, key = chessdto.CodeGameNotFound, "error.game_finished"
	case errors.Is(err, errPlayerBound):
		code, key = chessdto.CodeNotAParticipant, "error.player_connected"
	case errors.Is(err, session.ErrNotAParticipant):
		code, key = chessdto.CodeNotAParticipant, "error.not_a_participant"
	case errors.Is(err, session.ErrUnauthenticated):
		code, key = chessdto.CodeUnauthenticated, "error.unauthenticated"
	case errors.Is(err, session.ErrOfferPending):
		code, key = chessdto.CodeBadRequest, "error.offer_pending"
	case errors.Is(err, session.ErrNoOffer):
		code, key = chessdto.CodeBadRequest, "error.no_offer"
	case errors.Is(err, matchmaking.ErrInvalidTicket):
		code, key = chessdto.CodeBadRequest, "error.bad_request"
		data["Detail"] = err.Error()
	default:
		return chessdto.DomainError{
			Code:      chessdto.CodeInternal,
			Message:   s.catalog.Text("error.internal", nil, "internal error"),
			Retryable: true,
		}
	}
	return chessdto.DomainError{Code: code, Message: s.catalog.Text(key, data, err.Error())}
}
