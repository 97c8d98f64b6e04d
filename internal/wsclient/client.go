// Package wsclient is a reconnecting websocket client for the game protocol.
package wsclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/pkg/chessdto"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

var ErrNotConnected = errors.New("websocket not connected")

type MessageCallback func(env chessdto.Envelope)

type StateCallback func(state State)

type Client struct {
	url     string
	headers func() map[string]string

	connM sync.Mutex
	conn  *websocket.Conn
	state State
	// writeM serializes writes; wsjson.Write is not safe for concurrent use.
	writeM sync.Mutex

	cbM      sync.RWMutex
	msgCbs   []MessageCallback
	stateCbs []StateCallback

	maxReconnect   int
	reconnectDelay time.Duration
	pingInterval   time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type Option func(*Client)

func WithHeaders(h func() map[string]string) Option {
	return func(c *Client) { c.headers = h }
}

func WithReconnect(max int, delay time.Duration) Option {
	return func(c *Client) { c.maxReconnect, c.reconnectDelay = max, delay }
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		state:          StateDisconnected,
		reconnectDelay: time.Second,
		pingInterval:   30 * time.Second,
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	return c
}

func (c *Client) OnMessage(cb MessageCallback) {
	c.cbM.Lock()
	c.msgCbs = append(c.msgCbs, cb)
	c.cbM.Unlock()
}

func (c *Client) OnStateChange(cb StateCallback) {
	c.cbM.Lock()
	c.stateCbs = append(c.stateCbs, cb)
	c.cbM.Unlock()
}

func (c *Client) State() State {
	c.connM.Lock()
	defer c.connM.Unlock()
	return c.state
}

func (c *Client) Connect(ctx context.Context) error {
	if s := c.State(); s == StateConnected || s == StateConnecting {
		return nil
	}
	c.setState(StateConnecting)
	if err := c.dial(ctx); err != nil {
		c.setState(StateFailed)
		c.scheduleReconnect()
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.buildHeaders(),
	})
	if err != nil {
		return err
	}

	c.connM.Lock()
	if c.isStopping() {
		c.connM.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
		return ErrNotConnected
	}
	c.conn = conn
	c.wg.Add(2)
	c.connM.Unlock()
	c.setState(StateConnected)

	go c.listen(conn)
	go c.pingLoop(conn)
	return nil
}

// Send writes one event.
func (c *Client) Send(ctx context.Context, typ string, payload any) error {
	env, err := chessdto.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	c.connM.Lock()
	conn := c.conn
	c.connM.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	c.writeM.Lock()
	defer c.writeM.Unlock()
	return wsjson.Write(ctx, conn, env)
}

func (c *Client) listen(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		var env chessdto.Envelope
		if err := wsjson.Read(c.rootCtx, conn, &env); err != nil {
			if c.isStopping() {
				return
			}
			c.dropConn(conn, websocket.StatusGoingAway, "reconnect")
			c.scheduleReconnect()
			return
		}
		c.cbM.RLock()
		cbs := append([]MessageCallback(nil), c.msgCbs...)
		c.cbM.RUnlock()
		for _, cb := range cbs {
			cb(env)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.rootCtx.Done():
			return
		case <-t.C:
			if c.currentConn() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			if failures++; failures >= 2 {
				// listen observes the close and reconnects
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *Client) scheduleReconnect() {
	if c.maxReconnect <= 0 || c.isStopping() {
		return
	}
	c.setState(StateReconnecting)
	go func() {
		for attempt := 1; attempt <= c.maxReconnect; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(c.backoff(attempt)):
			}
			if err := c.dial(c.rootCtx); err == nil {
				return
			}
		}
		c.setState(StateFailed)
	}()
}

func (c *Client) backoff(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * c.reconnectDelay
}

// Close stops reconnecting, closes the connection and waits for the loops to exit.
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if conn := c.currentConn(); conn != nil {
		c.dropConn(conn, websocket.StatusNormalClosure, "close")
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.rootCancel()
		return nil
	}
}

func (c *Client) currentConn() *websocket.Conn {
	c.connM.Lock()
	defer c.connM.Unlock()
	return c.conn
}

func (c *Client) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	c.connM.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connM.Unlock()
	_ = conn.Close(code, reason)
	c.setState(StateDisconnected)
}

func (c *Client) setState(s State) {
	c.connM.Lock()
	c.state = s
	c.connM.Unlock()
	c.cbM.RLock()
	cbs := append([]StateCallback(nil), c.stateCbs...)
	c.cbM.RUnlock()
	for _, cb := range cbs {
		cb(s)
	}
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Client) buildHeaders() http.Header {
	hdr := http.Header{}
	if c.headers == nil {
		return hdr
	}
	for k, v := range c.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
