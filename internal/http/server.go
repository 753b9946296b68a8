package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/post-ratings/internal/config"
	"github.com/Clark-Hu/post-ratings/internal/metrics"
	"github.com/Clark-Hu/post-ratings/internal/rating"
	"github.com/Clark-Hu/post-ratings/internal/repository"
	"github.com/Clark-Hu/post-ratings/internal/store"
)

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	store   *store.Store
	repo    *repository.Repository
	ratings *rating.Service
	logger  zerolog.Logger
	router  chi.Router
	httpSrv *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, repo *repository.Repository, ratings *rating.Service, logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	s := &Server{
		cfg:     cfg,
		store:   st,
		repo:    repo,
		ratings: ratings,
		logger:  logger,
		router:  r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/metrics", s.handleMetrics())
	s.router.Route("/ratings", func(r chi.Router) {
		r.Get("/", s.handleListRatings)
		r.Post("/", s.handleSubmitRating)
		r.Get("/post/{postID}", s.handleListPostRatings)
		r.Get("/average/{postID}", s.handleGetAverage)
	})
	s.router.Route("/posts", func(r chi.Router) {
		r.Post("/", s.handleUpsertPost)
		r.Get("/{postID}", s.handleGetPost)
		r.Delete("/{postID}", s.handleDeletePost)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server asynchronously.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.store == nil {
		s.respondError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "store not configured")
		return
	}
	if err := s.store.HealthCheck(ctx); err != nil {
		s.requestLogger(r).Warn().Err(err).Msg("health check failed")
		s.respondError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "store unavailable")
		return
	}
	s.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics() http.HandlerFunc {
	exposition := promhttp.Handler()
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store != nil {
			metrics.ObservePool(s.store.Stats())
		}
		exposition.ServeHTTP(w, r)
	}
}

func (s *Server) requestLogger(r *http.Request) *zerolog.Logger {
	l := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
	return &l
}
