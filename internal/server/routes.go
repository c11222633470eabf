package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/agritutor/agritutor/internal/observability"
	"github.com/agritutor/agritutor/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.CatalogVersionHandler(s.opts.Catalog))
	s.router.Get("/metrics", MetricsHandler)

	catalog := &handlers.CatalogHandler{
		Catalog:      s.opts.Catalog,
		MaxBodyBytes: s.opts.MaxBodyBytes,
	}
	tutor := &handlers.TutorHandler{
		Tutor:        s.opts.Tutor,
		Media:        s.opts.Media,
		MaxBodyBytes: s.opts.MaxBodyBytes,
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/categories", catalog.ListCategories)
		r.Get("/categories/{id}/templates", catalog.CategoryTemplates)
		r.Get("/templates", catalog.ListTemplates)
		r.Get("/templates/{id}", catalog.GetTemplate)
		r.Post("/templates/{id}/fill", catalog.FillTemplate)
		r.Post("/fill", catalog.Fill)
		r.Get("/purposes", catalog.ListPurposes)

		r.Post("/ask", tutor.Ask)
		r.Post("/lessons", tutor.Lesson)
	})

	if s.opts.Pprof {
		s.router.Mount("/debug", middleware.Profiler())
		if logger := observability.ServerLogger; logger != nil {
			logger.Warn("pprof endpoints enabled", zap.String("path", "/debug/pprof"))
		}
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts POST /admin/signal when an admin token is
// configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
