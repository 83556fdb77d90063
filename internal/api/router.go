package api

import (
	"net/http"

	"github.com/ayo6706/screening-settlement/internal/api/handler"
	"github.com/ayo6706/screening-settlement/internal/api/middleware"
	"github.com/ayo6706/screening-settlement/internal/api/spec"
	"github.com/ayo6706/screening-settlement/internal/config"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

const publicRateLimitRPS = 20

// Router assembles the admin HTTP surface.
type Router struct {
	cfg    *config.Config
	logger *zap.Logger
	auth   *middleware.Authenticator
	health *handler.HealthHandler
	runs   *handler.SettlementHandler
}

// NewRouter wires handlers. redisClient may be nil.
func NewRouter(cfg *config.Config, logger *zap.Logger, db handler.Pinger, redisClient redis.Cmdable, runner handler.Runner, reader handler.Reader) *Router {
	return &Router{
		cfg:    cfg,
		logger: logger,
		auth:   middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		health: handler.NewHealthHandler(db, redisClient),
		runs:   handler.NewSettlementHandler(runner, reader, cfg.Location),
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "not-found", "route not found")
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(publicRateLimitRPS))
		r.Get("/health/live", api.health.Live)
		r.Get("/health/ready", api.health.Ready)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	})

	// Operator routes
	r.Group(func(r chi.Router) {
		r.Use(api.auth.Middleware)
		r.Use(middleware.RequireRole(middleware.RoleAdmin))
		r.Use(middleware.OperatorRateLimiter(api.cfg.AdminRateLimitRPS))

		r.Post("/v1/admin/runs/{job}", api.runs.TriggerRun)
		r.Get("/v1/admin/runs", api.runs.ListRuns)

		r.Get("/v1/campaigns/{id}/payouts", api.runs.ListPayouts)
		r.Get("/v1/campaigns/{id}/refunds", api.runs.ListRefunds)
		r.Get("/v1/campaigns/{id}/audit", api.runs.AuditTrail)
	})

	return r
}

// Authenticator exposes the token issuer used by the CLI.
func (api *Router) Authenticator() *middleware.Authenticator {
	return api.auth
}
