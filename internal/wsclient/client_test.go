package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/pkg/chessdto"
)

// echoServer answers every envelope with the same type suffixed by "Ack".
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Player-Id") != "alice" {
			http.Error(w, "missing player", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		for {
			var env chessdto.Envelope
			if err := wsjson.Read(r.Context(), c, &env); err != nil {
				return
			}
			env.Type += "Ack"
			if err := wsjson.Write(r.Context(), c, env); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestSendAndReceive(t *testing.T) {
	ts := echoServer(t)
	c := New("ws"+strings.TrimPrefix(ts.URL, "http"), WithHeaders(func() map[string]string {
		return map[string]string{"X-Player-Id": "alice", "": "ignored"}
	}))

	var (
		mu     sync.Mutex
		states []State
	)
	c.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	got := make(chan chessdto.Envelope, 1)
	c.OnMessage(func(env chessdto.Envelope) { got <- env })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Send(ctx, chessdto.EventFindGame, chessdto.FindGameRequest{ID: "alice", Username: "alice"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case env := <-got:
		if env.Type != "findGameAck" {
			t.Fatalf("type = %s", env.Type)
		}
		var req chessdto.FindGameRequest
		if err := env.Decode(&req); err != nil || req.Username != "alice" {
			t.Fatalf("decode: %v %+v", err, req)
		}
	case <-ctx.Done():
		t.Fatalf("no reply")
	}

	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state = %s", c.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Fatalf("states = %v", states)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws")
	if err := c.Send(context.Background(), chessdto.EventResign, nil); err != ErrNotConnected {
		t.Fatalf("err = %v", err)
	}
}

func TestConnectFailureWithoutReconnect(t *testing.T) {
	ts := echoServer(t)
	c := New("ws" + strings.TrimPrefix(ts.URL, "http"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatalf("expected handshake rejection")
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %s", c.State())
	}
}
