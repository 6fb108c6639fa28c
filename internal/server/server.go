// Package server exposes the newswire HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/lazypower/newswire/internal/engine"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// TaskQueue accepts manual maintenance-task requests. *scheduler.Scheduler
// satisfies it.
type TaskQueue interface {
	Enqueue(name string) error
	Running() string
}

// Options tune the HTTP layer.
type Options struct {
	WriteRate      int      // write requests per minute per client IP, 0 disables
	AllowedOrigins []string // CORS origins; empty disables CORS
}

// Server is the newswire HTTP API server.
type Server struct {
	db      *store.DB
	eng     *engine.Engine
	tasks   TaskQueue
	router  chi.Router
	log     zerolog.Logger
	opts    Options
	version string
	started time.Time
}

// New creates a Server. tasks may be nil, in which case task requests are
// refused.
func New(db *store.DB, eng *engine.Engine, tasks TaskQueue, version string, opts Options) *Server {
	s := &Server{
		db:      db,
		eng:     eng,
		tasks:   tasks,
		log:     logging.Component("http"),
		opts:    opts,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.correlate)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/items", s.handleListItems)
		r.Get("/items/search", s.handleSearchItems)
		r.Get("/items/{itemID}", s.handleGetItem)
		r.Get("/devices/{deviceID}", s.handleGetDevice)
		r.Get("/feed", s.handleFeed)
		r.Get("/categories", s.handleCategories)
		r.Get("/tags", s.handleTags)
		r.Get("/tags/{name}", s.handleTag)
		r.Get("/sources", s.handleSources)
		r.Post("/classify", s.handleClassify)

		r.Group(func(r chi.Router) {
			if s.opts.WriteRate > 0 {
				r.Use(httprate.LimitByIP(s.opts.WriteRate, time.Minute))
			}
			r.Post("/items", s.handleIngest)
			r.Put("/items/{itemID}", s.handleUpdateItem)
			r.Post("/devices", s.handleRegisterDevice)
			r.Post("/devices/{deviceID}/profile", s.handleRebuildProfile)
			r.Post("/events", s.handleEvent)
			r.Post("/tasks/{name}", s.handleTask)
		})
	})

	s.router = r
}

// correlate tags the request context with the chi request id so engine logs
// can be tied back to the request.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if id == "" {
			id = logging.GenerateCorrelationID()
		}
		ctx := logging.ContextWithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		ev := s.log.Debug()
		if ww.Status() >= 500 {
			ev = s.log.Error()
		}
		ev.Str("correlation_id", logging.CorrelationIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
