// Package transport carries the game protocol over websockets.
package transport

import (
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/chessdto"
)

// Hub tracks live connections and the player each one speaks for. It is the session.Emitter.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
	bound map[string]*Conn
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[*Conn]struct{}),
		bound: make(map[string]*Conn),
	}
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	obslog.L().Debug("ws_registered", zap.String("conn_id", c.ID()), zap.Int("conns", n))
}

// unregister drops c and returns the player it was still the current connection for.
func (h *Hub) unregister(c *Conn) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	pid := c.PlayerID()
	if pid != "" && h.bound[pid] == c {
		delete(h.bound, pid)
		return pid
	}
	return ""
}

// Bind makes c the connection for playerID. A previous connection of the player is closed
// without forfeiting anything.
func (h *Hub) Bind(playerID string, c *Conn) {
	h.mu.Lock()
	prev := h.bound[playerID]
	h.bound[playerID] = c
	if old := c.PlayerID(); old != "" && old != playerID && h.bound[old] == c {
		delete(h.bound, old)
	}
	h.mu.Unlock()
	c.setPlayer(playerID)

	if prev != nil && prev != c {
		prev.setPlayer("")
		obslog.L().Info("ws_rebound", zap.String("player_id", playerID), zap.String("old_conn", prev.ID()), zap.String("conn_id", c.ID()))
		// the close handshake waits on the old peer
		go prev.close(websocket.StatusNormalClosure, "superseded")
	}
}

// Connected reports whether playerID has a bound connection.
func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.bound[playerID]
	return ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Emit implements session.Emitter. Players without a connection are skipped.
func (h *Hub) Emit(playerID string, ev session.Event) {
	h.mu.RLock()
	c := h.bound[playerID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	sendEvent(c, ev.Type, ev.Payload)
}

func sendEvent(c *Conn, typ string, payload any) {
	env, err := chessdto.NewEnvelope(typ, payload)
	if err != nil {
		obslog.L().Error("ws_encode_failed", zap.String("type", typ), zap.Error(err))
		return
	}
	b, err := marshalEnvelope(env)
	if err != nil {
		obslog.L().Error("ws_encode_failed", zap.String("type", typ), zap.Error(err))
		return
	}
	c.enqueue(b)
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	list := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		list = append(list, c)
	}
	h.mu.RUnlock()
	var wg sync.WaitGroup
	for _, c := range list {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			c.close(websocket.StatusGoingAway, "server shutdown")
		}(c)
	}
	wg.Wait()
}
