// Package server exposes the editor's HTTP API: upload a PDF, query its
// page geometry, submit an overlay batch for compositing, download the
// result. Wire shapes live in wire.go; all document work is delegated to
// the store and the compositor.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kamiladigital/pdf-editor/compose"
	"github.com/kamiladigital/pdf-editor/observability"
	"github.com/kamiladigital/pdf-editor/store"
)

// Server wires the HTTP surface to the compositing core. The codec is held
// directly as well: upload and geometry queries open documents without
// running a composition.
type Server struct {
	cfg    *Config
	store  *store.Store
	codec  compose.Codec
	comp   *compose.Compositor
	events *observability.EventLogger
	logger *slog.Logger
}

// New creates a Server. events may be nil; event logging is then skipped.
func New(cfg *Config, st *store.Store, codec compose.Codec, comp *compose.Compositor, events *observability.EventLogger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, store: st, codec: codec, comp: comp, events: events, logger: logger}
}

// Router builds the chi router with the service middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/upload", s.handleUpload)
		r.Get("/info/{id}", s.handleInfo)
		r.Post("/process", s.handleProcess)
		r.Get("/download/{id}", s.handleDownload)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// logRequests is a minimal structured access log on slog.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// cors lets the interactive editor frontend call the API from its own
// origin. Preflights short-circuit here.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logEvent(r *http.Request, ev observability.Event) {
	if s.events == nil {
		return
	}
	s.events.Log(r.Context(), ev)
}
