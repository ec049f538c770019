package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/emberfeed/backend/internal/auth"
	"github.com/emberfeed/backend/internal/cache"
	"github.com/emberfeed/backend/internal/database"
	"github.com/emberfeed/backend/internal/draftwatch"
	"github.com/emberfeed/backend/internal/handlers"
	"github.com/emberfeed/backend/internal/logger"
	"github.com/emberfeed/backend/internal/metrics"
	"github.com/emberfeed/backend/internal/middleware"
	"github.com/emberfeed/backend/internal/storage"
	"github.com/emberfeed/backend/internal/telemetry"
)

func main() {
	// Missing .env is fine in containers; system environment takes over
	_ = godotenv.Load()

	if err := logger.Initialize(getEnv("LOG_LEVEL", "info"), os.Getenv("LOG_FILE")); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Log.Info("Emberfeed backend starting")

	metrics.Initialize()

	if err := database.Initialize(); err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}

	jwtSecret := []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logger.Log.Fatal("JWT_SECRET environment variable is required")
	}
	authService := auth.NewService(database.DB, jwtSecret)

	store, err := storage.NewS3Store(
		getEnv("AWS_REGION", "us-east-1"),
		os.Getenv("AWS_BUCKET"),
		os.Getenv("CDN_BASE_URL"),
	)
	if err != nil {
		logger.Log.Fatal("Failed to initialize S3 store", zap.Error(err))
	}
	if err := store.CheckBucketAccess(context.Background()); err != nil {
		logger.Log.Warn("S3 bucket access check failed, uploads will fail", zap.Error(err))
	}

	// Redis is optional: without it the rate limiter allows everything
	if host := os.Getenv("REDIS_HOST"); host != "" {
		if _, err := cache.NewRedisClient(host, getEnv("REDIS_PORT", "6379"), os.Getenv("REDIS_PASSWORD")); err != nil {
			logger.Log.Warn("Redis unavailable, rate limiting disabled", zap.Error(err))
		}
	}

	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  "emberfeed-backend",
		Environment:  getEnv("ENVIRONMENT", "development"),
		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4318"),
		Enabled:      os.Getenv("OTEL_ENABLED") == "true",
		SamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 0.1),
	})
	if err != nil {
		logger.Log.Warn("Failed to initialize tracing", zap.Error(err))
	}

	// Draft session tracker
	registry := draftwatch.NewRegistry()
	cleanup := draftwatch.NewCleanupExecutor(store)
	drafts := draftwatch.NewHandler(registry, cleanup, authService)
	reaper := draftwatch.NewReaper(registry,
		getEnvDuration("DRAFTWATCH_REAP_INTERVAL", draftwatch.DefaultReapInterval),
		getEnvDuration("DRAFTWATCH_SESSION_TTL", draftwatch.DefaultSessionTTL),
	)
	reaper.Start()

	h := handlers.NewHandlers(database.DB, authService, store)

	if getEnv("ENVIRONMENT", "development") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	if tp != nil {
		r.Use(otelgin.Middleware("emberfeed-backend"))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{getEnv("CORS_ORIGIN", "*")}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)
			authGroup.GET("/me", h.AuthMiddleware(), h.Me)
		}

		attachments := api.Group("/attachments")
		{
			attachments.Use(h.AuthMiddleware())
			attachments.POST("", middleware.RedisRateLimitMiddleware(30, time.Minute), h.UploadAttachment)
			attachments.DELETE("", h.DeleteAttachment)
		}

		posts := api.Group("/posts")
		{
			posts.GET("", h.ListPosts)
			posts.GET("/:id", h.GetPost)
			posts.POST("", h.AuthMiddleware(), h.CreatePost)
		}

		ws := api.Group("/ws")
		{
			ws.GET("/drafts", drafts.HandleWebSocket)
			ws.GET("/drafts/status", drafts.HandleStatus)
		}
	}

	srv := &http.Server{
		Addr:    ":" + getEnv("PORT", "8787"),
		Handler: r,
	}

	go func() {
		logger.Log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("HTTP shutdown error", zap.Error(err))
	}

	// Open draft sessions count as abandoned on shutdown; their cleanups
	// run before we let the process exit.
	cleanup.Wait()
	reaper.Stop()

	if tp != nil {
		_ = tp.Shutdown(ctx)
	}

	logger.Log.Info("Shutdown complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		logger.Log.Warn("Invalid duration in environment, using default", zap.String("key", key))
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
