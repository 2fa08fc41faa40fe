package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tierhost/tierhost/internal/handler"
	"github.com/tierhost/tierhost/internal/metrics"
	"github.com/tierhost/tierhost/internal/middleware"
	"github.com/tierhost/tierhost/internal/storage"
)

// Handlers are the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Base      *handler.Handler
	Health    *handler.HealthHandler
	Metrics   *handler.MetricsHandler
	Files     *handler.FileHandler
	TempLinks *handler.TempLinkHandler
	Users     *handler.UserHandler
	Media     *handler.MediaHandler // nil unless blobs live on the local filesystem
}

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	Logger      *slog.Logger
	Recorder    metrics.Recorder
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimitConfig
	Security    middleware.SecurityConfig
	CORSOrigins []string
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Recorder))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Operational endpoints (no auth required)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Get("/metrics", h.Metrics.Metrics)
	if h.Media != nil {
		r.Get(storage.MediaPrefix+"*", h.Media.Serve)
	}

	validID := middleware.ValidateParam("id", middleware.IDPattern)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth))
		r.Use(middleware.RateLimitUser(cfg.RateLimit))

		r.Route("/images", func(r chi.Router) {
			r.Use(middleware.RequireMethodScope())
			r.Get("/", h.Files.List)
			r.Post("/", h.Files.Create)
			r.With(validID).Get("/{id}/", h.Files.Get)
			r.With(validID).Put("/{id}/", h.Files.Update)
			r.With(validID).Delete("/{id}/", h.Files.Delete)
		})

		r.Route("/exp", func(r chi.Router) {
			// Issuing a link is a GET but creates state.
			r.With(
				middleware.RequireWrite(),
				middleware.ValidateParam("fileID", middleware.IDPattern),
			).Get("/generate/{fileID}/", h.TempLinks.Generate)

			r.With(
				middleware.RateLimitIP(cfg.RateLimit),
				middleware.RequireRead(),
				middleware.ValidateParam("token", middleware.TokenPattern),
			).Get("/use/{token}/", h.TempLinks.Redeem)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Get("/", h.Users.List)
			r.With(validID).Get("/{id}/", h.Users.Get)
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.Base.NotFound)
	r.MethodNotAllowed(h.Base.MethodNotAllowed)

	return r
}
