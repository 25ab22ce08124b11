package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-battle-system/internal/render"
	"card-battle-system/pkg/api"
	"card-battle-system/pkg/auth"
	"card-battle-system/pkg/config"
	"card-battle-system/pkg/db"
	"card-battle-system/pkg/logger"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.ServiceRenderer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger with file output for the render service
	logger.InitWithFileLogging(cfg.LogLevel, logger.Renderer)

	startupLogger := logger.NewCategoryLogger(cfg.LogLevel, logger.Renderer, logger.Startup)
	startupLogger.Info().Msg("Starting Card Battle System - Render Service")

	// Initialize database
	database, err := db.NewRenderDB(cfg.RenderDBPath)
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer database.Close()
	startupLogger.Info().Str("db_path", cfg.RenderDBPath).Msg("Database initialized successfully")

	// Initialize HMAC authentication
	secrets := cfg.GetRenderSecrets()
	hmacAuth := auth.NewHMACAuth(secrets, cfg.GetClockSkew())
	startupLogger.Info().Int("secret_count", len(secrets)).Msg("HMAC authentication initialized")

	// Initialize service and routes
	service, err := render.NewService(cfg, database)
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("Failed to create render service")
	}
	middleware := api.NewMiddleware(hmacAuth, database)
	router := service.Router(middleware)

	server := &http.Server{
		Addr:         cfg.GetRenderAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		startupLogger.Info().
			Str("address", cfg.GetRenderAddr()).
			Str("output_dir", cfg.RenderOutputDir).
			Msg("Render server starting")

		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			startupLogger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Background job: clean up old nonces
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	cleanupLogger := logger.NewCategoryLogger(cfg.LogLevel, logger.Renderer, logger.General)
	_, err = scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			olderThan := time.Now().Add(-2 * cfg.GetClockSkew())
			if err := database.CleanupOldNonces(olderThan); err != nil {
				cleanupLogger.Error().Err(err).Msg("Failed to cleanup old nonces")
			} else {
				cleanupLogger.Debug().Msg("Cleaned up old nonces")
			}
		}),
	)
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("Failed to schedule nonce cleanup")
	}

	scheduler.Start()

	// Wait for interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	startupLogger.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		startupLogger.Error().Err(err).Msg("Server shutdown error")
	}
	if err := scheduler.Shutdown(); err != nil {
		startupLogger.Error().Err(err).Msg("Scheduler shutdown error")
	}

	startupLogger.Info().Msg("Render server stopped")

	// Clean up old log files (keep last 7 days)
	if err := logger.CleanupOldLogs(7); err != nil {
		startupLogger.Warn().Err(err).Msg("Failed to cleanup old log files")
	}
}
