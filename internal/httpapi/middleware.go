package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bandmate/bandmate/internal/cache"
	apperrors "github.com/bandmate/bandmate/internal/errors"
	"github.com/bandmate/bandmate/internal/monitoring"
	"github.com/bandmate/bandmate/internal/telemetry"
)

const (
	callerIDKey         = "caller_id"
	correlationIDHeader = "X-Correlation-ID"
)

// TokenVerifier maps a bearer token to a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// StaticTokenVerifier verifies tokens against a fixed token-to-user map.
// Suitable for development and tests; production deployments plug in a
// real identity provider behind the same interface.
type StaticTokenVerifier struct {
	tokens map[string]string
}

// NewStaticTokenVerifier builds a verifier from "token:userId" pairs.
func NewStaticTokenVerifier(pairs []string) *StaticTokenVerifier {
	tokens := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			tokens[parts[0]] = parts[1]
		}
	}
	return &StaticTokenVerifier{tokens: tokens}
}

// Verify implements TokenVerifier.
func (v *StaticTokenVerifier) Verify(_ context.Context, token string) (string, error) {
	userID, ok := v.tokens[token]
	if !ok {
		return "", apperrors.NewUnauthorizedError("invalid or expired token")
	}
	return userID, nil
}

// CorrelationMiddleware attaches a correlation id to every request,
// reusing the inbound header when the caller supplied one.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(correlationIDHeader)
		if correlationID == "" {
			correlationID = telemetry.NewCorrelationID()
		}

		ctx := telemetry.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(correlationIDHeader, correlationID)

		c.Next()
	}
}

// AuthMiddleware resolves the bearer token to a caller id and stores it
// on the request context.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(c, apperrors.NewUnauthorizedError("missing bearer token"))
			c.Abort()
			return
		}

		userID, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}

		c.Set(callerIDKey, userID)
		c.Next()
	}
}

// RateLimitMiddleware enforces a per-caller request budget over a fixed
// window, counted in Redis. A nil Redis service disables limiting; a
// Redis failure lets the request through rather than failing closed.
func RateLimitMiddleware(redis *cache.RedisService, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redis == nil {
			c.Next()
			return
		}

		caller := c.GetString(callerIDKey)
		if caller == "" {
			caller = c.ClientIP()
		}
		key := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), caller)

		count, err := redis.IncrementWindow(c.Request.Context(), key, window)
		if err != nil {
			telemetry.GetContextualLogger(c.Request.Context()).
				WithError(err).Warn("Rate limit counter unavailable, allowing request")
			c.Next()
			return
		}

		if count > int64(limit) {
			respondError(c, apperrors.NewRateLimitError(limit, window.String()))
			c.Abort()
			return
		}

		c.Next()
	}
}

// MetricsMiddleware records request counts and latencies.
func MetricsMiddleware(metrics *monitoring.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequest(
			c.Request.Method,
			fmt.Sprintf("%d", c.Writer.Status()),
			time.Since(start),
		)
	}
}

// RequestLoggingMiddleware logs one structured line per request.
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger := telemetry.GetContextualLogger(c.Request.Context()).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		})

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("Request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("Request rejected")
		default:
			logger.Info("Request completed")
		}
	}
}

// errorResponse is the wire shape of every error.
type errorResponse struct {
	Error *apperrors.AppError `json:"error"`
}

// respondError maps any error onto its HTTP status and a structured
// body. Unknown errors become opaque 500s; the cause stays in the logs.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.CorrelationID == "" {
		appErr = appErr.WithCorrelationID(telemetry.GetCorrelationID(c.Request.Context()))
	}

	if appErr.HTTPStatus >= http.StatusInternalServerError {
		telemetry.GetContextualLogger(c.Request.Context()).
			WithError(appErr).Error("Request error")
	}

	c.JSON(appErr.HTTPStatus, errorResponse{Error: appErr})
}

func callerID(c *gin.Context) string {
	return c.GetString(callerIDKey)
}
