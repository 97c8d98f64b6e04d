package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-arena/internal/matchmaking"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/chessdto"
)

type fixture struct {
	url      string
	hub      *Hub
	registry *session.Registry
	srv      *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := NewHub()
	reg := session.NewRegistry(session.RegistryConfig{Emitter: hub})
	q := matchmaking.New(matchmaking.Config{Games: reg, Emitter: hub, Timeout: time.Hour})
	srv := NewServer(hub, q, reg, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		hub.CloseAll()
		ts.Close()
		reg.Shutdown()
	})
	return &fixture{url: "ws" + strings.TrimPrefix(ts.URL, "http"), hub: hub, registry: reg, srv: srv}
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func (f *fixture) dial(t *testing.T) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return &client{t: t, ws: ws}
}

func (c *client) send(typ string, payload any) {
	c.t.Helper()
	env, err := chessdto.NewEnvelope(typ, payload)
	if err != nil {
		c.t.Fatalf("envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, env); err != nil {
		c.t.Fatalf("write %s: %v", typ, err)
	}
}

// expect reads until an event of type typ arrives, skipping clock updates.
func (c *client) expect(typ string, dst any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var env chessdto.Envelope
		if err := wsjson.Read(ctx, c.ws, &env); err != nil {
			c.t.Fatalf("waiting for %s: %v", typ, err)
		}
		if env.Type == chessdto.EventTimeUpdate && typ != chessdto.EventTimeUpdate {
			continue
		}
		if env.Type != typ {
			c.t.Fatalf("got %s (%s), want %s", env.Type, env.Payload, typ)
		}
		if dst != nil {
			if err := env.Decode(dst); err != nil {
				c.t.Fatalf("decode %s: %v", typ, err)
			}
		}
		return
	}
}

func pair(t *testing.T, f *fixture) (alice, bob *client, gameID string) {
	t.Helper()
	alice, bob = f.dial(t), f.dial(t)
	alice.send(chessdto.EventFindGame, chessdto.FindGameRequest{ID: "alice", Username: "alice", Rating: 1500})
	alice.expect(chessdto.EventWaitingForOpponent, nil)
	bob.send(chessdto.EventFindGame, chessdto.FindGameRequest{ID: "bob", Username: "bob", Rating: 1400})

	var a, b chessdto.GameSnapshot
	alice.expect(chessdto.EventGameFound, &a)
	bob.expect(chessdto.EventGameFound, &b)
	if a.GameID == "" || a.GameID != b.GameID {
		t.Fatalf("game ids differ: %q %q", a.GameID, b.GameID)
	}
	if a.Color != "white" || b.Color != "black" {
		t.Fatalf("colors = %s/%s, want white/black", a.Color, b.Color)
	}
	if a.Opponent == nil || a.Opponent.Username != "bob" {
		t.Fatalf("alice opponent = %+v", a.Opponent)
	}
	return alice, bob, a.GameID
}

func TestPairedPlayersExchangeMoves(t *testing.T) {
	f := newFixture(t)
	alice, bob, id := pair(t, f)

	alice.send(chessdto.EventMakeMove, chessdto.MakeMoveRequest{GameID: id, Move: "e4"})
	var mm chessdto.MoveMade
	bob.expect(chessdto.EventMoveMade, &mm)
	if mm.Move.SAN != "e4" || mm.CurrentPlayer != "black" {
		t.Fatalf("unexpected moveMade %+v", mm)
	}
	alice.expect(chessdto.EventMoveMade, nil)

	alice.send(chessdto.EventMakeMove, chessdto.MakeMoveRequest{GameID: id, Move: "d4"})
	var de chessdto.DomainError
	alice.expect(chessdto.EventError, &de)
	if de.Code != chessdto.CodeInvalidMove {
		t.Fatalf("code = %s, want INVALID_MOVE", de.Code)
	}

	bob.send(chessdto.EventMakeMove, chessdto.MakeMoveRequest{GameID: id, Move: "Ke7??"})
	bob.expect(chessdto.EventError, &de)
	if de.Code != chessdto.CodeInvalidMove || !strings.Contains(de.Message, "Ke7??") {
		t.Fatalf("unexpected error %+v", de)
	}
}

func TestDrawAgreementEndsGame(t *testing.T) {
	f := newFixture(t)
	alice, bob, id := pair(t, f)

	alice.send(chessdto.EventOfferDraw, chessdto.GameRef{GameID: id})
	bob.expect(chessdto.EventDrawOffered, nil)
	bob.send(chessdto.EventAcceptDraw, chessdto.GameRef{GameID: id})

	var over chessdto.GameOver
	alice.expect(chessdto.EventGameOver, &over)
	if over.Winner != "draw" || over.Reason != "agreement" {
		t.Fatalf("unexpected gameOver %+v", over)
	}
}

func TestDisconnectForfeits(t *testing.T) {
	f := newFixture(t)
	alice, bob, _ := pair(t, f)

	_ = bob.ws.Close(websocket.StatusNormalClosure, "bye")
	var over chessdto.GameOver
	alice.expect(chessdto.EventGameOver, &over)
	if over.Winner != "white" || over.Reason != "disconnect" {
		t.Fatalf("unexpected gameOver %+v", over)
	}
}

func TestDrainKeepsGamesAlive(t *testing.T) {
	f := newFixture(t)
	_, _, id := pair(t, f)

	f.srv.Drain()
	f.srv.Wait()
	if f.hub.Len() != 0 {
		t.Fatalf("connections left after drain: %d", f.hub.Len())
	}
	g, ok := f.registry.ActiveFor("bob")
	if !ok || g.ID() != id {
		t.Fatalf("drain forfeited the game")
	}
}

func TestRejoinRebindsConnection(t *testing.T) {
	f := newFixture(t)
	alice, bob, id := pair(t, f)

	// alice's old socket is not read while the new one rejoins, so it cannot answer the close
	second := f.dial(t)
	start := time.Now()
	second.send(chessdto.EventRejoinGame, chessdto.RejoinRequest{GameID: id, PlayerID: "alice"})
	var snap chessdto.GameSnapshot
	second.expect(chessdto.EventGameRejoined, &snap)
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("rejoin waited %v on the old connection", took)
	}
	if snap.Color != "white" || snap.GameID != id {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	// the superseded connection is closed without forfeiting
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, _, err := alice.ws.Read(ctx); err != nil {
			break
		}
	}
	second.send(chessdto.EventMakeMove, chessdto.MakeMoveRequest{GameID: id, Move: "Nf3"})
	bob.expect(chessdto.EventMoveMade, nil)
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	var de chessdto.DomainError
	c.send(chessdto.EventMakeMove, chessdto.MakeMoveRequest{GameID: "g", Move: "e4"})
	c.expect(chessdto.EventError, &de)
	if de.Code != chessdto.CodeUnauthenticated {
		t.Fatalf("code = %s, want UNAUTHENTICATED", de.Code)
	}

	c.send(chessdto.EventRejoinGame, chessdto.RejoinRequest{GameID: "missing", PlayerID: "carol"})
	var ref chessdto.GameRef
	c.expect(chessdto.EventGameNotFound, &ref)
	if ref.GameID != "missing" {
		t.Fatalf("gameNotFound for %q", ref.GameID)
	}

	c.send("teleport", nil)
	c.expect(chessdto.EventError, &de)
	if de.Code != chessdto.CodeBadRequest {
		t.Fatalf("code = %s, want BAD_REQUEST", de.Code)
	}

	c.send(chessdto.EventFindGame, chessdto.FindGameRequest{ID: "carol"})
	c.expect(chessdto.EventError, &de)
	if de.Code != chessdto.CodeBadRequest {
		t.Fatalf("code = %s, want BAD_REQUEST", de.Code)
	}
}

func TestFindGameCannotTakeOverConnectedPlayer(t *testing.T) {
	f := newFixture(t)
	alice, bob, id := pair(t, f)

	other := f.dial(t)
	other.send(chessdto.EventFindGame, chessdto.FindGameRequest{ID: "alice", Username: "mallory"})
	var de chessdto.DomainError
	other.expect(chessdto.EventError, &de)
	if de.Code != chessdto.CodeNotAParticipant {
		t.Fatalf("code = %s, want NOT_A_PARTICIPANT", de.Code)
	}

	// alice keeps the original connection and game
	alice.send(chessdto.EventMakeMove, chessdto.MakeMoveRequest{GameID: id, Move: "e4"})
	bob.expect(chessdto.EventMoveMade, nil)
	alice.expect(chessdto.EventMoveMade, nil)
}

func TestLeaveGameDequeues(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	c.send(chessdto.EventFindGame, chessdto.FindGameRequest{ID: "dave", Username: "dave"})
	c.expect(chessdto.EventWaitingForOpponent, nil)
	c.send(chessdto.EventLeaveGame, chessdto.GameRef{})

	other := f.dial(t)
	other.send(chessdto.EventFindGame, chessdto.FindGameRequest{ID: "erin", Username: "erin"})
	other.expect(chessdto.EventWaitingForOpponent, nil)
}
