package notify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/chess-arena/internal/msgcat"
	"github.com/park285/chess-arena/internal/session"
)

func serve(t *testing.T, h fasthttp.RequestHandler) *fasthttputil.InmemoryListener {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return ln
}

func finished() session.State {
	now := time.Now()
	return session.State{
		ID:        "g1",
		White:     session.Seat{PlayerID: "alice", Username: "alice"},
		Black:     session.Seat{PlayerID: "bob", Username: "bob"},
		MovesSAN:  []string{"e4", "e5"},
		Status:    session.StatusFinished,
		Outcome:   &session.Outcome{Winner: "white", Reason: session.ReasonTimeout},
		CreatedAt: now.Add(-time.Minute),
		EndedAt:   now,
	}
}

func TestWebhookPostsResult(t *testing.T) {
	var (
		body  []byte
		token string
	)
	ln := serve(t, func(ctx *fasthttp.RequestCtx) {
		token = string(ctx.Request.Header.Peek("X-Arena-Token"))
		body = append([]byte(nil), ctx.PostBody()...)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	})
	w := NewWebhook("http://hooks.test/result", msgcat.MustDefault(), WithDial(DialVia(ln)), WithHeader("X-Arena-Token", "secret"))

	require.NoError(t, w.Archive(context.Background(), finished()))
	require.Equal(t, "secret", token)
	var got ResultPayload
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, "g1", got.Record.GameID)
	require.Equal(t, "1-0", got.Record.Result)
	require.Equal(t, "alice vs bob: 1-0 (time forfeit) after 2 plies", got.Text)
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ln := serve(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	w := NewWebhook("http://hooks.test/result", nil, WithDial(DialVia(ln)), WithRetry(3))
	require.NoError(t, w.Archive(context.Background(), finished()))
	require.EqualValues(t, 3, calls.Load())
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	ln := serve(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
	})
	w := NewWebhook("http://hooks.test/result", nil, WithDial(DialVia(ln)))
	require.Error(t, w.Archive(context.Background(), finished()))
	require.EqualValues(t, 1, calls.Load())
}

func TestWebhookSkipsActiveGamesAndEmptyURL(t *testing.T) {
	st := finished()
	require.NoError(t, NewWebhook("", nil).Archive(context.Background(), st))
	st.Status = session.StatusActive
	require.NoError(t, NewWebhook("http://127.0.0.1:1", nil).Archive(context.Background(), st))
}
