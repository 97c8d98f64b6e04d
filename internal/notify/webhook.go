// Package notify posts finished game results to an external webhook.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/archive"
	"github.com/park285/chess-arena/internal/msgcat"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/chessdto"
)

// ResultPayload is the webhook body.
type ResultPayload struct {
	Text   string               `json:"text"`
	Record *chessdto.GameRecord `json:"record"`
}

type Webhook struct {
	url     string
	http    *fasthttp.Client
	catalog *msgcat.Catalog
	headers map[string]string

	timeout  time.Duration
	retryMax int
}

type Option func(*Webhook)

func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) { w.timeout = d }
}

func WithRetry(max int) Option {
	return func(w *Webhook) { w.retryMax = max }
}

func WithHeader(k, v string) Option {
	return func(w *Webhook) {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			w.headers[k] = v
		}
	}
}

// WithDial replaces the client dialer, mainly for in-memory tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(w *Webhook) { w.http.Dial = dial }
}

func NewWebhook(url string, catalog *msgcat.Catalog, opts ...Option) *Webhook {
	w := &Webhook{
		url:      strings.TrimSpace(url),
		http:     &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 16},
		catalog:  catalog,
		headers:  map[string]string{},
		timeout:  5 * time.Second,
		retryMax: 3,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Archive implements session.Archiver.
func (w *Webhook) Archive(ctx context.Context, st session.State) error {
	rec := archive.BuildRecord(st)
	if rec == nil || w.url == "" {
		return nil
	}
	payload := ResultPayload{Text: w.summary(rec), Record: rec}
	if err := w.post(ctx, payload); err != nil {
		return err
	}
	obslog.L().Debug("result_webhook_sent", zap.String("game_id", rec.GameID))
	return nil
}

func (w *Webhook) summary(rec *chessdto.GameRecord) string {
	fallback := fmt.Sprintf("%s vs %s: %s", rec.White.Username, rec.Black.Username, rec.Result)
	if w.catalog == nil {
		return fallback
	}
	reason := w.catalog.Text("reason."+rec.Method, nil, rec.Method)
	return w.catalog.Text("notify.result", map[string]any{
		"White":  rec.White.Username,
		"Black":  rec.Black.Username,
		"Result": rec.Result,
		"Reason": reason,
		"Plies":  len(rec.MovesSAN),
	}, fallback)
}

func (w *Webhook) post(ctx context.Context, in any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(w.url)
	req.Header.SetContentType("application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	attempts := max(w.retryMax, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := w.http.DoDeadline(req, resp, w.deadline(ctx))
		switch {
		case err != nil:
			lastErr = fmt.Errorf("webhook request: %w", err)
		case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
			return nil
		default:
			lastErr = fmt.Errorf("webhook status=%d body=%s", resp.StatusCode(), truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(resp.StatusCode()) {
				return lastErr
			}
		}
		if attempt == attempts {
			break
		}
		obslog.L().Warn("result_webhook_retry", zap.Int("attempt", attempt), zap.Error(lastErr))
		if err := sleepWithContext(ctx, backoff(attempt)); err != nil {
			return errors.Join(lastErr, err)
		}
	}
	return lastErr
}

func (w *Webhook) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(w.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoff(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DialVia adapts anything with a Dial method, such as an in-memory listener, to a fasthttp dial func.
func DialVia(d interface{ Dial() (net.Conn, error) }) fasthttp.DialFunc {
	return func(string) (net.Conn, error) { return d.Dial() }
}
