package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/pkg/chessdto"
)

const (
	sendBuffer   = 256
	readLimit    = 32 << 10
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Conn is one client websocket. Writes go through send and are performed by writePump only.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	playerID string
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(readLimit)
	return &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// PlayerID is the identity bound to this connection, empty until findGame or rejoinGame.
func (c *Conn) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

func (c *Conn) setPlayer(id string) {
	c.mu.Lock()
	c.playerID = id
	c.mu.Unlock()
}

// enqueue never blocks. A client that cannot keep up is disconnected.
func (c *Conn) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		obslog.L().Warn("ws_send_overflow", zap.String("conn_id", c.id), zap.String("player_id", c.playerID))
		go c.close(websocket.StatusPolicyViolation, "too slow")
		return false
	}
}

func (c *Conn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		_ = c.ws.Close(code, reason)
	})
}

func (c *Conn) readPump(ctx context.Context, handle func(context.Context, *Conn, chessdto.Envelope)) error {
	for {
		var env chessdto.Envelope
		if err := wsjson.Read(ctx, c.ws, &env); err != nil {
			return err
		}
		handle(ctx, c, env)
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("conn_id", c.id), zap.Error(err))
				c.close(websocket.StatusGoingAway, "write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			if failures++; failures >= 2 {
				c.close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}
