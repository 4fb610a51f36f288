package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mzagorsky/auth-service/internal/provider"
	"github.com/mzagorsky/auth-service/internal/service"
	"github.com/mzagorsky/auth-service/pkg/health"
	"github.com/mzagorsky/auth-service/pkg/middleware"
)

// RouterConfig carries the handler-level settings into NewRouter.
type RouterConfig struct {
	Environment    string
	RefreshTTL     time.Duration
	AllowedOrigins []string
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(
	authService *service.AuthService,
	userService *service.UserService,
	registry *provider.Registry,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(CORSConfig{AllowedOrigins: cfg.AllowedOrigins, Environment: cfg.Environment}))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("auth"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	cookies := newCookieSettings(cfg.Environment, cfg.RefreshTTL)

	// Auth endpoints (public)
	authHandler := NewAuthHandler(authService, cookies, logger)
	oauthHandler := NewOAuthHandler(authService, registry, cookies, logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(ContentTypeJSON).Post("/register", authHandler.Register)
		r.With(ContentTypeJSON).Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)

		// Provider login flow (browser redirects)
		r.Route("/{provider}", func(r chi.Router) {
			r.Get("/login", oauthHandler.Login)
			r.Get("/callback", oauthHandler.Callback)
		})
	})

	// Token validator that bridges to our internal JWTManager.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := authService.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID: claims.UserID,
			Email:  claims.Email,
			Roles:  claims.Roles,
		}, nil
	}

	// User endpoints (auth required)
	userHandler := NewUserHandler(userService, logger)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(middleware.Auth(tokenValidator))

		r.Get("/{idOrEmail}", userHandler.Get)
		r.Delete("/{id}", userHandler.Delete)
	})

	return r
}
