// Package inspect serves a small local HTTP API for looking at and steering
// the page that is currently playing.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alvarorichard/animebinge/internal/controller"
	"github.com/alvarorichard/animebinge/internal/engine"
	"github.com/alvarorichard/animebinge/internal/util"
)

// DefaultAddr only listens on loopback
const DefaultAddr = "127.0.0.1:7878"

const (
	requestTimeout  = 30 * time.Second
	videoURLTimeout = 5 * time.Second
)

// ErrNoPage is reported while no watch page is loaded
var ErrNoPage = errors.New("no page is playing")

// Controller is the part of a page the API drives
type Controller interface {
	View(ctx context.Context) (controller.View, error)
	Next(ctx context.Context) (engine.Decision, error)
	Previous(ctx context.Context) (engine.Decision, error)
	PlayIndex(ctx context.Context, i int) (engine.Decision, error)
	UpdateSettings(ctx context.Context, s controller.Settings) (controller.View, error)
	VideoURL(ctx context.Context) (string, error)
}

// CurrentFunc returns the live page, or nil between page loads
type CurrentFunc func() Controller

// Handler exposes the live page over HTTP
type Handler struct {
	current CurrentFunc
}

// NewHandler creates a handler over the page returned by current
func NewHandler(current CurrentFunc) *Handler {
	return &Handler{current: current}
}

// decisionResponse is the JSON form of an engine decision
type decisionResponse struct {
	Action  string `json:"action"`
	Index   int    `json:"index"`
	Episode string `json:"episode,omitempty"`
	URL     string `json:"url,omitempty"`
	DelayMS int64  `json:"delayMs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes mounts the endpoints on r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/state", h.state)
	r.Get("/catalog", h.catalog)
	r.Get("/video-url", h.videoURL)
	r.Post("/next", h.next)
	r.Post("/previous", h.previous)
	r.Post("/play/{index}", h.play)
	r.Patch("/settings", h.settings)
}

// Router builds the full handler with the usual middleware
func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(accessLog)
	h.Routes(r)
	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		util.Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"size", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (h *Handler) page(w http.ResponseWriter) Controller {
	c := h.current()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoPage)
	}
	return c
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	c := h.page(w)
	if c == nil {
		return
	}
	v, err := c.View(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	c := h.page(w)
	if c == nil {
		return
	}
	v, err := c.View(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"currentIndex": v.CurrentIndex,
		"episodes":     v.Catalog,
	})
}

func (h *Handler) videoURL(w http.ResponseWriter, r *http.Request) {
	c := h.page(w)
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), videoURLTimeout)
	defer cancel()
	u, err := c.VideoURL(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(c Controller) (engine.Decision, error) { return c.Next(r.Context()) })
}

func (h *Handler) previous(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(c Controller) (engine.Decision, error) { return c.Previous(r.Context()) })
}

func (h *Handler) play(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		writeError(w, http.StatusBadRequest, errors.New("index must be a non-negative integer"))
		return
	}
	h.decide(w, r, func(c Controller) (engine.Decision, error) { return c.PlayIndex(r.Context(), i) })
}

func (h *Handler) decide(w http.ResponseWriter, _ *http.Request, op func(Controller) (engine.Decision, error)) {
	c := h.page(w)
	if c == nil {
		return
	}
	d, err := op(c)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{
		Action:  d.Action.String(),
		Index:   d.Index,
		Episode: d.Episode.Title,
		URL:     d.Episode.URL,
		DelayMS: d.Delay.Milliseconds(),
	})
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	c := h.page(w)
	if c == nil {
		return
	}
	var s controller.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json"))
		return
	}
	v, err := c.UpdateSettings(r.Context(), s)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrTransitionInFlight):
		return http.StatusConflict
	case errors.Is(err, controller.ErrPageClosed), errors.Is(err, ErrNoPage):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
