package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Clark-Hu/pokedex-ratings/internal/config"
	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
	"github.com/Clark-Hu/pokedex-ratings/internal/rating"
)

// RatingService is the rating behaviour the handlers expose.
type RatingService interface {
	Rate(ctx context.Context, userID string, number int, value float64) (rating.Result, error)
	Unrate(ctx context.Context, userID string, number int) (rating.Result, error)
	ToggleFavorite(ctx context.Context, userID string, number int) (bool, error)
	Summaries(ctx context.Context, numbers []int) (map[int]domain.Summary, error)
	Membership(ctx context.Context, userID string) (domain.Membership, error)
	RegisterUser(ctx context.Context, userID string) (domain.User, bool, error)
}

// UserDeleter runs the account deletion cascade.
type UserDeleter interface {
	OnUserDeleted(ctx context.Context, userID string) error
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	health   HealthChecker
	ratings  RatingService
	users    UserDeleter
	verifier JWTVerifier
	logger   *zap.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, health HealthChecker, ratings RatingService, users UserDeleter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware(requestIDHeader))
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s := &Server{
		cfg:      cfg,
		health:   health,
		ratings:  ratings,
		users:    users,
		verifier: JWTVerifier{Secret: []byte(cfg.JWTSecret)},
		logger:   logger,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/pokemon/ratings", s.handleSummaries)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Route("/users", func(r chi.Router) {
				r.Put("/me", s.handleRegisterUser)
				r.Delete("/me", s.handleDeleteMe)
				r.Get("/me/membership", s.handleMembership)
				r.Delete("/{userID}", s.handleDeleteUser)
			})
			r.Route("/pokemon/{number}", func(r chi.Router) {
				r.Put("/rating", s.handleRate)
				r.Delete("/rating", s.handleUnrate)
				r.Post("/favorite", s.handleToggleFavorite)
			})
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or the listener fails.
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
		s.logger.Info("http server starting", zap.String("addr", s.httpSrv.Addr))
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

	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unreachable")
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
