// Package httpapi exposes the service over HTTP: location resolution,
// post CRUD and listing, the proximity feed, profiles and musician
// search, plus health and metrics endpoints.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/bandmate/bandmate/internal/cache"
	"github.com/bandmate/bandmate/internal/monitoring"
)

// RouterConfig holds the HTTP surface configuration.
type RouterConfig struct {
	ServiceName string
	// Geocode-backed endpoints get a tighter budget than the rest of
	// the API because each cache miss costs a provider call.
	GeocodeRateLimit  int
	GeocodeRateWindow time.Duration
}

// DefaultRouterConfig returns the production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ServiceName:       "bandmate",
		GeocodeRateLimit:  30,
		GeocodeRateWindow: time.Minute,
	}
}

// NewRouter assembles the gin engine: tracing, correlation ids, request
// logging and metrics on everything; auth on the API group; an extra
// rate limit on the geocode-backed location endpoint.
func NewRouter(
	config RouterConfig,
	handlers *Handlers,
	verifier TokenVerifier,
	redis *cache.RedisService,
	metrics *monitoring.MetricsCollector,
	health *monitoring.HealthChecker,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(config.ServiceName))
	router.Use(CorrelationMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware(metrics))

	router.GET("/health", health.HealthHandler())
	router.GET("/health/live", health.LivenessHandler())
	router.GET("/health/ready", health.ReadinessHandler())
	router.GET("/metrics", metrics.PrometheusHandler())
	router.GET("/metrics/json", metrics.JSONHandler())

	api := router.Group("/api/v1")
	api.Use(AuthMiddleware(verifier))
	{
		api.GET("/locations/:zipCode",
			RateLimitMiddleware(redis, config.GeocodeRateLimit, config.GeocodeRateWindow),
			handlers.ResolveLocation)

		api.GET("/posts", handlers.ListPosts)
		api.POST("/posts", handlers.CreatePost)
		api.GET("/posts/:postId", handlers.GetPost)
		api.PUT("/posts/:postId", handlers.UpdatePost)
		api.DELETE("/posts/:postId", handlers.DeletePost)
		api.POST("/posts/:postId/like", handlers.ToggleLike)

		api.GET("/feed", handlers.Feed)

		api.GET("/profiles/me", handlers.GetOwnProfile)
		api.PUT("/profiles/me", handlers.UpsertProfile)
		api.DELETE("/profiles/me", handlers.DeleteProfile)
		api.GET("/profiles/:userId", handlers.GetProfile)

		api.GET("/search/musicians", handlers.SearchMusicians)
	}

	return router
}
