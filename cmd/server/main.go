package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bandmate/bandmate/internal/cache"
	"github.com/bandmate/bandmate/internal/docstore"
	"github.com/bandmate/bandmate/internal/geocode"
	"github.com/bandmate/bandmate/internal/httpapi"
	"github.com/bandmate/bandmate/internal/location"
	"github.com/bandmate/bandmate/internal/monitoring"
	"github.com/bandmate/bandmate/internal/posts"
	"github.com/bandmate/bandmate/internal/profiles"
	"github.com/bandmate/bandmate/internal/telemetry"
)

const serviceVersion = "1.0.0"

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	if err := telemetry.InitGlobalLogger(nil); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx)

	shutdownTelemetry, err := telemetry.InitializeOpenTelemetry(ctx, telemetry.LoadConfigFromEnv())
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry initialization failed, continuing without tracing")
		shutdownTelemetry = func() {}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Document store
	storeConfig := docstore.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   getEnv("DB_NAME", "bandmate"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
	store, err := docstore.NewPostgresStore(storeConfig, docstore.WithNumericFields("likeCount"))
	if err != nil {
		logger.WithError(err).Error("Failed to connect to document store")
		os.Exit(1)
	}
	defer store.Close()

	// Redis is optional: without it the hot cache and rate limiting are
	// disabled, but every feature still works off the durable store.
	var redis *cache.RedisService
	if os.Getenv("REDIS_HOST") != "" {
		redis, err = cache.NewRedisService(nil)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, running without hot cache")
			redis = nil
		} else {
			defer redis.Close()
		}
	}

	geocoder := geocode.NewGoogleClient(os.Getenv("GOOGLE_GEOCODING_API_KEY"))

	// Services
	locationService := location.NewService(store, geocoder, redis)
	profileService := profiles.NewService(store, locationService)
	postService := posts.NewService(store, locationService, profileService)

	// Monitoring
	metrics := monitoring.NewMetricsCollector()
	health := monitoring.NewHealthChecker("bandmate", serviceVersion)
	health.RegisterDatabaseCheck("docstore", store.DB())
	if redis != nil {
		health.RegisterRedisCheck("redis", redis)
	}

	verifier := httpapi.NewStaticTokenVerifier(splitEnvList("AUTH_TOKENS"))

	handlers := httpapi.NewHandlers(locationService, postService, profileService, metrics)
	router := httpapi.NewRouter(httpapi.DefaultRouterConfig(), handlers, verifier, redis, metrics, health)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced server shutdown")
	}
	shutdownTelemetry()

	logger.Info("Server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
