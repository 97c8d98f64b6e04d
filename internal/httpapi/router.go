// Package httpapi exposes the websocket endpoint and read-only game and player routes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/archive"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/render"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/pkg/chessdto"
)

type Deps struct {
	WS       http.Handler
	Registry *session.Registry
	Archive  archive.Repository
	// Ready reports dependency health for /healthz; nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if d.WS != nil {
		r.Handle("/ws", d.WS)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "games": d.Registry.Len()})
	})

	h := &handlers{d: d}
	r.Route("/games/{id}", func(r chi.Router) {
		r.Get("/", h.game)
		r.Get("/board.png", h.board)
	})
	r.Get("/players/{id}", h.player)
	return r
}

type handlers struct{ d Deps }

// game serves the live snapshot without rehydrating stored games, falling back to the archived record of a finished game.
func (h *handlers) game(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if st, ok := h.d.Registry.View(r.Context(), id); ok {
		writeJSON(w, http.StatusOK, st.Snapshot())
		return
	}
	if h.d.Archive != nil {
		rec, err := h.d.Archive.GetGame(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, chessdto.CodeInternal, err)
			return
		}
		if rec != nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeError(w, http.StatusNotFound, chessdto.CodeGameNotFound, session.ErrGameNotFound)
}

func (h *handlers) board(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := h.d.Registry.View(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, chessdto.CodeGameNotFound, session.ErrGameNotFound)
		return
	}
	last := ""
	if n := len(st.MovesUCI); n > 0 {
		last = st.MovesUCI[n-1]
	}
	flip := strings.EqualFold(r.URL.Query().Get("orientation"), "black")
	header := st.White.Username + " vs " + st.Black.Username
	png, err := render.FromState(r.Context(), st.FEN, last, flip, header)
	if err != nil {
		writeError(w, http.StatusInternalServerError, chessdto.CodeInternal, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

type playerView struct {
	Profile *chessdto.PlayerProfile `json:"profile"`
	Recent  []*chessdto.GameRecord  `json:"recent"`
	Live    string                  `json:"liveGameId,omitempty"`
}

func (h *handlers) player(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.d.Archive == nil {
		writeError(w, http.StatusNotFound, chessdto.CodeBadRequest, errors.New("no archive configured"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	limit = min(max(limit, 1), 50)
	if r.URL.Query().Get("limit") == "" {
		limit = 10
	}
	prof, err := h.d.Archive.GetProfile(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, chessdto.CodeInternal, err)
		return
	}
	recent, err := h.d.Archive.RecentGames(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, chessdto.CodeInternal, err)
		return
	}
	view := playerView{Profile: prof, Recent: recent}
	if g, ok := h.d.Registry.ActiveFor(id); ok {
		view.Live = g.ID()
	}
	if prof == nil && len(recent) == 0 && view.Live == "" {
		writeError(w, http.StatusNotFound, chessdto.CodeBadRequest, errors.New("unknown player"))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	if status >= 500 {
		obslog.L().Error("http_request_failed", zap.Error(err))
	}
	writeJSON(w, status, chessdto.DomainError{Code: code, Message: err.Error()})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		obslog.L().Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
