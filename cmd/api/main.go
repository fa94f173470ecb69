// Package main is the entry point for the TipTune play analytics API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tiptune/tiptune/internal/api"
	"github.com/tiptune/tiptune/internal/auth"
	"github.com/tiptune/tiptune/internal/config"
	"github.com/tiptune/tiptune/internal/db"
	"github.com/tiptune/tiptune/internal/health"
	"github.com/tiptune/tiptune/internal/middleware"
	"github.com/tiptune/tiptune/internal/play"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("TipTune Play Analytics API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Metrics registry
	registry := prometheus.NewRegistry()
	playMetrics := play.NewMetrics()
	if err := playMetrics.Register(registry); err != nil {
		logger.Error("failed to register play metrics", "error", err)
		os.Exit(1)
	}
	mwMetrics := middleware.NewMetrics()
	if err := mwMetrics.Register(registry); err != nil {
		logger.Error("failed to register middleware metrics", "error", err)
		os.Exit(1)
	}

	// Rate limit store: Redis when configured, per-instance memory otherwise
	var (
		limitStore   middleware.RateLimitStore
		redisChecker api.HealthChecker
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		limitStore = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(mwMetrics)
		redisChecker = health.NewRedisChecker(redisClient)
		logger.Info("using redis rate limit store", "addr", cfg.RedisAddr)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		limitStore = memStore
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				memStore.Cleanup()
			}
		}()
		logger.Info("using in-memory rate limit store")
	}

	globalLimit := middleware.DefaultGlobalLimit()
	globalLimit.RequestsPerWindow = cfg.GlobalRateLimit
	recordLimit := middleware.DefaultRecordLimit()
	recordLimit.RequestsPerWindow = cfg.RecordRateLimit

	// Repositories and services
	playRepo := play.NewPostgresRepository(conn, logger)
	service := play.NewService(playRepo, play.NewHasher(cfg.PlayHashSalt), logger, playMetrics)
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	playHandlers := api.NewPlayHandlers(service, logger)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    health.NewDBChecker(conn),
		RedisChecker: redisChecker,
	})

	recordLimiter := middleware.RateLimiter(limitStore, recordLimit, middleware.UserKeyFunc(), "record_play", mwMetrics)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/plays/record", recordLimiter(http.HandlerFunc(playHandlers.RecordPlay)))
	mux.HandleFunc("GET /api/plays/track/{trackID}/stats", playHandlers.TrackStats)
	mux.HandleFunc("GET /api/plays/track/{trackID}/sources", playHandlers.TrackSources)
	mux.HandleFunc("GET /api/plays/artist/{artistID}/overview", playHandlers.ArtistOverview)
	mux.HandleFunc("GET /api/plays/top-tracks", playHandlers.TopTracks)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"tiptune-play-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Middleware chain, outermost first: RequestID -> Logging -> CORS ->
	// HTTPMetrics -> OptionalAuth -> global rate limit. Auth runs before rate
	// limiting so the per-user record limit keys on the authenticated identity.
	globalLimiter := middleware.RateLimiter(limitStore, globalLimit, middleware.IPKeyFunc(), "global", mwMetrics)
	var handler http.Handler = middleware.HTTPMetrics(mwMetrics)(
		middleware.OptionalAuth(jwtService)(
			globalLimiter(mux),
		),
	)
	if origins := cfg.CORSOriginList(); len(origins) > 0 {
		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		})(handler)
	}
	handler = middleware.RequestID(middleware.Logging(logger)(handler))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
