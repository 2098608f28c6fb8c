// Package status serves a read-only view of the pipeline over HTTP.
package status

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sparrowcam/internal/annotation"
	"sparrowcam/internal/platform/logger"
	"sparrowcam/internal/platform/metrics"
	"sparrowcam/internal/scheduler"
)

// AnnotationReader is the read side of the annotation store.
type AnnotationReader interface {
	All() annotation.Annotations
}

// StateReader exposes the scheduler state.
type StateReader interface {
	State() scheduler.State
}

// Handler exposes status endpoints using go-chi.
type Handler struct {
	annotations AnnotationReader
	scheduler   StateReader
	log         *slog.Logger
}

// NewHandler returns a Handler backed by the given readers.
func NewHandler(anns AnnotationReader, sched StateReader, log *slog.Logger) *Handler {
	return &Handler{annotations: anns, scheduler: sched, log: log}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Annotations handles GET /annotations.
func (h *Handler) Annotations(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.annotations.All())
}

// Annotation handles GET /annotations/{segment}.
func (h *Handler) Annotation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "segment")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ann, ok := h.annotations.All()[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, ann)
}

// Scheduler handles GET /scheduler.
func (h *Handler) Scheduler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scheduler.State())
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response", slog.String("error", err.Error()))
	}
}

// NewRouter mounts the handler, request logging and metrics. m may be nil.
func NewRouter(h *Handler, log *slog.Logger, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	if m != nil {
		r.Use(metrics.RequestMiddleware(m))
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Get("/healthz", h.Health)
	r.Get("/scheduler", h.Scheduler)
	r.Route("/annotations", func(r chi.Router) {
		r.Get("/", h.Annotations)
		r.Get("/{segment}", h.Annotation)
	})
	return r
}
