package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/server/handlers"
	servermw "github.com/keygate/keygate/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	if !s.opts.DisableHealth {
		health := s.opts.Health
		s.router.Get("/health", health.HealthHandler)
		s.router.Get("/health/live", health.LivenessHandler)
		s.router.Get("/health/ready", health.ReadinessHandler)
		s.router.Get("/health/startup", health.StartupHandler)
	}

	s.router.Get("/version", handlers.VersionHandler)

	s.router.Get("/metrics", s.MetricsHandler)

	keys := handlers.NewKeysHandler(s.opts.Keys, s.opts.Sessions)
	s.router.Route("/api/keys", func(r chi.Router) {
		r.Use(servermw.RateLimit(servermw.RateLimitOptions{
			Limiter:        s.limiter(),
			IdentityHeader: s.opts.IdentityHeader,
			OnReject:       rejectRateLimited,
		}))

		r.Post("/generate", keys.Generate)
		r.Get("/", keys.List)
		r.Delete("/{id}", keys.Revoke)
	})

	if s.opts.Debug {
		s.router.Mount("/debug", middleware.Profiler())
	}

	s.registerAdminEndpoint()
}

// limiter avoids handing the middleware a typed nil.
func (s *Server) limiter() servermw.Admitter {
	if s.opts.Limiter == nil {
		return nil
	}
	return s.opts.Limiter
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	logger := observability.Logger()

	if s.opts.AdminToken == "" {
		logger.Debug("Admin signal endpoint disabled (no KEYGATE_ADMIN_TOKEN set)")
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil, // default global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	logger.Info("Admin signal endpoint enabled",
		zap.String("path", "/admin/signal"),
		zap.String("auth", "bearer token"),
		zap.String("rate_limit", "10/min, burst 5"))
	logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
}
