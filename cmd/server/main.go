package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soundtrace/soundtrace/internal/adapter"
	"github.com/soundtrace/soundtrace/internal/cache"
	"github.com/soundtrace/soundtrace/internal/config"
	"github.com/soundtrace/soundtrace/internal/container"
	"github.com/soundtrace/soundtrace/internal/database"
	"github.com/soundtrace/soundtrace/internal/handlers"
	"github.com/soundtrace/soundtrace/internal/index"
	"github.com/soundtrace/soundtrace/internal/ingest"
	"github.com/soundtrace/soundtrace/internal/ledger"
	"github.com/soundtrace/soundtrace/internal/logger"
	"github.com/soundtrace/soundtrace/internal/matcher"
	"github.com/soundtrace/soundtrace/internal/metrics"
	"github.com/soundtrace/soundtrace/internal/middleware"
	"github.com/soundtrace/soundtrace/internal/telemetry"
	"github.com/soundtrace/soundtrace/internal/websocket"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func main() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "server.log"
	}

	if err := logger.Initialize(logLevel, logFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== soundtrace server starting ===")

	if err := godotenv.Load(); err != nil {
		logger.Log.Warn("Warning: .env file not found, using system environment variables")
	}

	var tracerProvider *trace.TracerProvider
	if os.Getenv("OTEL_ENABLED") == "true" {
		cfg := telemetry.Config{
			ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", "soundtrace"),
			Environment:  getEnvOrDefault("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Enabled:      true,
			SamplingRate: getEnvFloat("OTEL_TRACE_SAMPLER_RATE", 1.0),
		}

		var tracerErr error
		tracerProvider, tracerErr = telemetry.InitTracer(cfg)
		if tracerErr != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(tracerErr))
		} else {
			logger.Log.Info("OpenTelemetry tracing enabled",
				zap.String("service", cfg.ServiceName),
				zap.Float64("sampling_rate", cfg.SamplingRate),
				zap.String("endpoint", cfg.OTLPEndpoint),
			)
			defer func() {
				if tracerProvider != nil {
					if shutdownErr := tracerProvider.Shutdown(context.Background()); shutdownErr != nil {
						logger.Log.Error("Failed to shutdown tracer provider", zap.Error(shutdownErr))
					}
				}
			}()
		}
	}

	// Redis-backed posting cache (optional): the index store is queried on
	// every match, so a cache layer is worth wiring even though the store
	// itself already holds everything in postgres/sqlite.
	redisHost := os.Getenv("REDIS_HOST")
	redisPort := os.Getenv("REDIS_PORT")
	redisPassword := os.Getenv("REDIS_PASSWORD")

	var redisClient *cache.RedisClient
	var postingCache *cache.PostingCache
	if redisHost != "" || redisPort != "" {
		if redisHost == "" {
			redisHost = "localhost"
		}
		if redisPort == "" {
			redisPort = "6379"
		}

		var err error
		redisClient, err = cache.NewRedisClient(redisHost, redisPort, redisPassword)
		if err != nil {
			logger.Log.Warn("Failed to connect to Redis, posting cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			postingCache = cache.NewPostingCache(redisClient, 10*time.Minute)
		}
	} else {
		logger.Log.Info("Redis not configured (REDIS_HOST not set), posting cache disabled")
	}

	if err := database.Initialize(); err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	if err := database.Migrate(); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	// Local catalog root: where "file://" URLs passed to POST /songs are
	// resolved against. A single directory tree stands in for the remote
	// catalog adapters (Spotify, YouTube) that are out of scope.
	libraryRoot := os.Getenv("LIBRARY_ROOT")
	if libraryRoot == "" {
		libraryRoot = "./library"
	}
	if err := os.MkdirAll(libraryRoot, 0o755); err != nil {
		logger.FatalWithFields("Failed to create library root", err)
	}
	localFetcher := adapter.NewLocalFetcher(libraryRoot)

	cfg := config.Load()
	logger.Log.Info("engine configuration loaded",
		zap.Int("sample_rate", cfg.Params.Spectrogram.SampleRate),
		zap.Int("window_size", cfg.Params.Spectrogram.WindowSize),
		zap.Int("hop_size", cfg.Params.Spectrogram.HopSize),
		zap.Int("fan_value", cfg.Params.Hash.FanValue),
		zap.Int("min_absolute_matches", cfg.Matcher.MinAbsoluteMatches),
		zap.Int("task_retention_days", cfg.TaskRetentionDays),
	)

	store := index.NewStore(database.DB)
	if postingCache != nil {
		store = index.NewCachedStore(store, postingCache)
	}
	taskLedger := ledger.New(database.DB)
	matchEngine := matcher.New(store, cfg.Matcher)
	pool := ingest.NewPool(localFetcher, localFetcher, store, taskLedger, cfg.Params).
		WithWorkerCount(cfg.WorkerCount)
	pool.Start()

	appContainer := container.New().
		WithDB(database.DB).
		WithLogger(logger.Log).
		WithStore(store).
		WithMatcher(matchEngine).
		WithIngestPool(pool).
		WithLedger(taskLedger).
		WithParams(cfg.Params).
		WithMetadataFetcher(localFetcher).
		WithAudioFetcher(localFetcher)

	if redisClient != nil {
		appContainer.WithCache(redisClient)
	}
	if postingCache != nil {
		appContainer.WithPostingCache(postingCache)
	}

	if err := appContainer.Validate(); err != nil {
		logger.FatalWithFields("Container validation failed", err)
	}
	logger.Log.Info("Dependency injection container initialized")

	appContainer.OnCleanup(func(ctx context.Context) error {
		return pool.Shutdown(ctx)
	}).OnCleanup(func(ctx context.Context) error {
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	})

	// Sweep completed tasks past the retention window so the ledger table
	// doesn't grow without bound.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	ledger.StartRetentionSweep(sweepCtx, taskLedger, 1*time.Hour,
		time.Duration(cfg.TaskRetentionDays)*24*time.Hour)
	defer sweepCancel()

	h := handlers.NewHandlers(appContainer)

	metrics.Initialize()
	logger.Log.Info("Prometheus metrics initialized")

	r := gin.New()

	corsConfig := cors.DefaultConfig()
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.FieldsFunc(allowedOrigins, func(r rune) bool { return r == ',' })
		validOrigins := []string{}
		for _, origin := range corsConfig.AllowOrigins {
			origin = strings.TrimSpace(origin)
			if origin == "*" || strings.Contains(origin, "*") {
				logger.Log.Warn("CORS misconfiguration: wildcard origins are not allowed", zap.String("rejected_origin", origin))
				continue
			}
			if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
				logger.Log.Warn("CORS misconfiguration: origin must use http:// or https://", zap.String("rejected_origin", origin))
				continue
			}
			validOrigins = append(validOrigins, origin)
		}
		if len(validOrigins) == 0 {
			logger.Log.Error("CORS configuration had no valid origins, using safe defaults")
			validOrigins = []string{"http://localhost:3000"}
		}
		corsConfig.AllowOrigins = validOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With", "Accept"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 86400
	r.Use(cors.New(corsConfig))

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.GinLoggerMiddleware())

	if os.Getenv("OTEL_ENABLED") == "true" {
		r.Use(middleware.TracingMiddleware("soundtrace"))
		r.Use(middleware.CorrelationMiddleware())
		r.Use(middleware.SpanEnrichmentMiddleware())
		logger.Log.Info("OpenTelemetry tracing middleware registered")
	}

	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/metrics",
		"/internal/metrics",
	})))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "soundtrace",
		})
	})

	// Internal Prometheus scrape endpoint. Unauthenticated: there is no
	// auth layer in this build, so it's assumed to sit behind
	// network-level isolation rather than an admin-gated public route.
	r.GET("/internal/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	{
		api.POST("/songs", h.IngestSong)
		api.GET("/songs", h.ListSongs)
		api.DELETE("/songs/:id", h.DeleteSong)
		api.GET("/tasks/:id", h.GetTask)
		api.POST("/match", h.MatchAudio)
		api.GET("/stats", h.GetStats)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8787"
	}

	// WebSocket upgrades are routed to raw http.Handler before reaching
	// Gin: Gin's ResponseWriter wrapper interferes with connection
	// hijacking.
	wsIdentify := websocket.HandleIdentify(matchEngine, cfg.Params)
	wsTaskPrefix := "/tasks/"
	isUpgrade := func(req *http.Request) bool {
		return strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
	}

	topHandler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch {
		case req.URL.Path == "/identify" && isUpgrade(req):
			wsIdentify(w, req)
			return
		case strings.HasPrefix(req.URL.Path, wsTaskPrefix) && isUpgrade(req):
			taskID := strings.TrimPrefix(req.URL.Path, wsTaskPrefix)
			websocket.HandleTaskWatch(taskLedger, taskID)(w, req)
			return
		}
		r.ServeHTTP(w, req)
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: topHandler,
	}

	go func() {
		logger.Log.Info("soundtrace server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := appContainer.Cleanup(ctx); err != nil {
		logger.Log.Error("Error during application cleanup", zap.Error(err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.ErrorWithFields("Server forced to shutdown", err)
	}

	logger.Log.Info("Server exited")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := time.ParseDuration(value + "s"); err == nil {
			return f.Seconds()
		}
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}
