package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"autopunch/internal/core"
	"autopunch/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the daemon's status and trigger API.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	store      *store.Store
	scheduler  *core.Scheduler
	logger     *slog.Logger
	authToken  string
	started    time.Time
}

// NewServer constructs the HTTP API server.
func NewServer(addr, authToken string, store *store.Store, scheduler *core.Scheduler, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger(logger))
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		store:     store,
		scheduler: scheduler,
		logger:    logger,
		authToken: authToken,
		started:   time.Now(),
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.authToken))

		r.Post("/schedule/preview", s.handleSchedulePreview)

		r.Route("/targets", func(r chi.Router) {
			r.Get("/", s.handleListTargets)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetTarget)
				r.Post("/run", s.handleRunTarget)
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{runID}", s.handleGetRun)
			r.Get("/{runID}/log", s.handleRunLog)
		})
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Targets int    `json:"targets"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Targets: len(s.scheduler.Targets()),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}
