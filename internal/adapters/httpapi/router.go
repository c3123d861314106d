// Package httpapi exposes the protocol service over HTTP with a chi router.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"habitcore/internal/core"
)

// Handler binds HTTP routes to a core.Service.
type Handler struct {
	svc      *core.Service
	logger   *zap.Logger
	gatherer prometheus.Gatherer
}

// Option customizes the handler.
type Option func(*Handler)

// WithLogger sets the request logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithGatherer selects the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		if g != nil {
			h.gatherer = g
		}
	}
}

// NewRouter builds the full route tree.
func NewRouter(svc *core.Service, opts ...Option) http.Handler {
	h := &Handler{svc: svc, logger: zap.NewNop(), gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	h.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the protocol API on r.
func (h *Handler) RegisterHTTP(r chi.Router) {
	r.Route("/api/protocols", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/", h.handleSettings)
			r.Delete("/", h.handleDelete)
			r.Post("/toggle", h.handleToggle)
			r.Post("/days/{day}/toggle", h.handleToggleDay)
			r.Put("/days/{day}/overrides/{item}", h.handleOverride)
			r.Get("/days/{day}/items/{item}", h.handleResolve)
			r.Post("/routine", h.handleAddItem)
			r.Delete("/routine/{item}", h.handleRemoveItem)
			r.Post("/reset", h.handleReset)
			r.Get("/analytics", h.handleAnalytics)
			r.Get("/agenda", h.handleAgenda)
			r.Get("/archives", h.handleListArchives)
		})
	})
	r.Get("/api/archives/*", h.handleLoadArchive)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
