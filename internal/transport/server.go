package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/msgcat"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/chessdto"
)

// Server accepts websocket clients and routes their events to matchmaking and sessions.
type Server struct {
	hub      *Hub
	queue    *matchmaking.Queue
	registry *session.Registry
	catalog  *msgcat.Catalog
	origins  []string
	draining atomic.Bool

	wg sync.WaitGroup
}

type ServerOption func(*Server)

// WithOriginPatterns allows cross-origin browser clients matching the given host patterns.
func WithOriginPatterns(patterns ...string) ServerOption {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

func NewServer(hub *Hub, queue *matchmaking.Queue, registry *session.Registry, catalog *msgcat.Catalog, opts ...ServerOption) *Server {
	if catalog == nil {
		catalog = msgcat.MustDefault()
	}
	s := &Server{hub: hub, queue: queue, registry: registry, catalog: catalog}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	c := newConn(ws)
	s.hub.register(c)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go c.writePump(ctx)
	err = c.readPump(ctx, s.handle)
	c.close(websocket.StatusNormalClosure, "")
	s.onClose(c, err)
}

// Drain closes every connection without forfeiting the games they were playing, so a
// restarted process can resume them from the snapshot store.
func (s *Server) Drain() {
	s.draining.Store(true)
	s.hub.CloseAll()
}

// Wait blocks until every served connection has returned.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) onClose(c *Conn, cause error) {
	pid := s.hub.unregister(c)
	status := websocket.CloseStatus(cause)
	obslog.L().Debug("ws_closed", zap.String("conn_id", c.ID()), zap.String("player_id", pid), zap.Int("status", int(status)))
	if pid == "" {
		return
	}
	s.queue.Cancel(pid)
	if s.draining.Load() {
		return
	}
	if g, ok := s.registry.ActiveFor(pid); ok && g.OnDisconnect(pid) {
		obslog.L().Info("player_disconnect_forfeit", zap.String("game_id", g.ID()), zap.String("player_id", pid))
	}
}

func (s *Server) handle(ctx context.Context, c *Conn, env chessdto.Envelope) {
	var err error
	switch env.Type {
	case chessdto.EventFindGame:
		err = s.findGame(ctx, c, env)
	case chessdto.EventRejoinGame:
		err = s.rejoinGame(ctx, c, env)
	case chessdto.EventMakeMove:
		var req chessdto.MakeMoveRequest
		if err = decode(env, &req); err == nil {
			err = s.withGame(ctx, c, req.GameID, func(g *session.Session, pid string) error {
				_, err := g.ApplyMove(pid, req.Move)
				return withMove(err, req.Move)
			})
		}
	case chessdto.EventOfferDraw:
		err = s.gameAction(ctx, c, env, (*session.Session).OfferDraw)
	case chessdto.EventAcceptDraw:
		err = s.gameAction(ctx, c, env, func(g *session.Session, pid string) error { return g.ResolveDraw(pid, true) })
	case chessdto.EventDeclineDraw:
		err = s.gameAction(ctx, c, env, func(g *session.Session, pid string) error { return g.ResolveDraw(pid, false) })
	case chessdto.EventResign:
		err = s.gameAction(ctx, c, env, (*session.Session).Resign)
	case chessdto.EventOfferFriendlyGame:
		err = s.gameAction(ctx, c, env, (*session.Session).OfferFriendly)
	case chessdto.EventAcceptFriendlyGame:
		err = s.gameAction(ctx, c, env, func(g *session.Session, pid string) error { return g.ResolveFriendly(pid, true) })
	case chessdto.EventDeclineFriendlyGame:
		err = s.gameAction(ctx, c, env, func(g *session.Session, pid string) error { return g.ResolveFriendly(pid, false) })
	case chessdto.EventLeaveGame:
		if pid := c.PlayerID(); pid != "" {
			s.queue.Cancel(pid)
		}
	default:
		err = badRequest("unknown event type " + strings.TrimSpace(env.Type))
	}
	if err != nil {
		s.reply(c, env.Type, err)
	}
}

func (s *Server) findGame(ctx context.Context, c *Conn, env chessdto.Envelope) error {
	var req chessdto.FindGameRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	pid := strings.TrimSpace(req.ID)
	if pid == "" {
		pid = c.PlayerID()
	}
	if pid == "" {
		// anonymous clients play under their connection id
		pid = c.ID()
	}
	if strings.TrimSpace(req.Username) == "" {
		return matchmaking.ErrInvalidTicket
	}
	if c.PlayerID() != pid && s.hub.Connected(pid) {
		return errPlayerBound
	}
	s.hub.Bind(pid, c)

	if g, ok := s.registry.Resume(ctx, pid); ok {
		_, err := g.Rejoin(pid)
		return err
	}
	_, _, err := s.queue.Enqueue(matchmaking.Ticket{PlayerID: pid, Username: req.Username, Rating: req.Rating})
	return err
}

func (s *Server) rejoinGame(ctx context.Context, c *Conn, env chessdto.Envelope) error {
	var req chessdto.RejoinRequest
	if err := decode(env, &req); err != nil {
		return err
	}
	pid := c.PlayerID()
	if pid == "" {
		pid = strings.TrimSpace(req.PlayerID)
	}
	if pid == "" {
		return session.ErrUnauthenticated
	}
	g, err := s.registry.Lookup(ctx, req.GameID)
	if err != nil {
		return gameNotFound{id: req.GameID}
	}
	if _, ok := g.State().ColorOf(pid); !ok {
		return inGame(req.GameID, session.ErrNotAParticipant)
	}
	s.hub.Bind(pid, c)
	if _, err := g.Rejoin(pid); err != nil {
		if errors.Is(err, session.ErrGameNotFound) {
			return gameNotFound{id: req.GameID}
		}
		return err
	}
	obslog.L().Info("player_rejoined", zap.String("game_id", req.GameID), zap.String("player_id", pid))
	return nil
}

func (s *Server) gameAction(ctx context.Context, c *Conn, env chessdto.Envelope, fn func(*session.Session, string) error) error {
	var ref chessdto.GameRef
	if err := decode(env, &ref); err != nil {
		return err
	}
	return s.withGame(ctx, c, ref.GameID, fn)
}

func (s *Server) withGame(ctx context.Context, c *Conn, gameID string, fn func(*session.Session, string) error) error {
	pid := c.PlayerID()
	if pid == "" {
		return session.ErrUnauthenticated
	}
	if strings.TrimSpace(gameID) == "" {
		return badRequest("gameId is required")
	}
	g, err := s.registry.Lookup(ctx, gameID)
	if err != nil {
		return inGame(gameID, err)
	}
	return inGame(gameID, fn(g, pid))
}

func decode(env chessdto.Envelope, dst any) error {
	if err := env.Decode(dst); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

func marshalEnvelope(env chessdto.Envelope) ([]byte, error) { return json.Marshal(env) }
