package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AniketSaini0/task-manager/internal/service"
	"github.com/AniketSaini0/task-manager/pkg/health"
	"github.com/AniketSaini0/task-manager/pkg/middleware"
)

// RouterConfig bundles the dependencies for route registration.
type RouterConfig struct {
	AuthService   *service.AuthService
	TaskService   *service.TaskService
	AuthHandler   *AuthHandler
	HealthHandler *health.Handler
	Logger        *slog.Logger
	CORS          CORSConfig
}

// NewRouter creates a chi router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing("task-manager"))
	r.Use(middleware.PrometheusMetrics("task-manager"))

	// Health check and metrics endpoints
	r.Get("/health/live", cfg.HealthHandler.LivenessHandler())
	r.Get("/health/ready", cfg.HealthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	validate := middleware.TokenValidator(cfg.AuthService.ResolveAccessToken)
	taskHandler := NewTaskHandler(cfg.TaskService, cfg.Logger)

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/register", cfg.AuthHandler.Register)
		r.Post("/login", cfg.AuthHandler.Login)
		r.Post("/refresh-token", cfg.AuthHandler.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(validate))
			r.Post("/logout", cfg.AuthHandler.Logout)
		})

		// current-user probes session state, so it must not reject
		// anonymous requests.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(validate))
			r.Get("/current-user", cfg.AuthHandler.CurrentUser)
		})
	})

	r.Route("/api/tasks", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(validate))

		r.Get("/", taskHandler.List)
		r.Post("/", taskHandler.Create)
		r.Get("/{id}", taskHandler.Get)
		r.Put("/{id}", taskHandler.Update)
		r.Patch("/{id}/toggle", taskHandler.Toggle)
		r.Delete("/{id}", taskHandler.Delete)
	})

	return r
}
