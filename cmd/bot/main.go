package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-battle-system/internal/battle"
	"card-battle-system/internal/bot"
	"card-battle-system/internal/extract"
	"card-battle-system/internal/render"
	"card-battle-system/internal/session"
	"card-battle-system/pkg/config"
	"card-battle-system/pkg/db"
	"card-battle-system/pkg/logger"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.ServiceBot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger with file output for the bot service
	logger.InitWithFileLogging(cfg.LogLevel, logger.Bot)

	startupLogger := logger.NewCategoryLogger(cfg.LogLevel, logger.Bot, logger.Startup)
	startupLogger.Info().Msg("Starting Card Battle System - Bot")

	// Initialize database
	database, err := db.NewBotDB(cfg.DBPath)
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer database.Close()
	startupLogger.Info().Str("db_path", cfg.DBPath).Msg("Database initialized successfully")

	// Attribute extraction over the external recognition service
	recognizer := extract.NewHTTPRecognizer(cfg.OCRURL)
	extractor := extract.New(recognizer, logger.NewCategoryLogger(cfg.LogLevel, logger.Bot, logger.General))

	// Combat engine
	simulator := battle.NewSimulator(battle.Options{
		TurnCap:           cfg.Battle.TurnCap,
		CritChance:        cfg.Battle.CritChance,
		CritMultiplier:    cfg.Battle.CritMultiplier,
		DefenseMitigation: cfg.Battle.DefenseMitigation,
		CriticalHits:      cfg.Battle.CriticalHits,
	}, rand.New(rand.NewSource(time.Now().UnixNano())))

	// Telegram front end
	battleBot, err := bot.New(cfg, database, extractor)
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("Failed to create bot")
	}
	startupLogger.Info().Str("username", battleBot.Username()).Msg("Telegram bot authenticated")

	// Session tracker with the render service as presenter and the bot as
	// notifier
	presenter := render.NewClient(cfg)
	tracker := session.NewTracker(cfg.ChallengeTimeout, simulator, presenter, battleBot,
		logger.NewCategoryLogger(cfg.LogLevel, logger.Bot, logger.Session))
	battleBot.AttachTracker(tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reload open challenges and confirmed cards from the database
	if err := battleBot.RestoreState(ctx); err != nil {
		startupLogger.Error().Err(err).Msg("Failed to restore session state")
	}

	// Background jobs: expiry sweep and log rotation
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	sweepLogger := logger.NewCategoryLogger(cfg.LogLevel, logger.Bot, logger.Sweep)
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			if n := battleBot.SweepExpired(time.Now()); n > 0 {
				sweepLogger.Info().Int("expired", n).Msg("Expired pairings swept")
			}
		}),
	)
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("Failed to schedule expiry sweep")
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			if err := logger.CleanupOldLogs(7); err != nil {
				sweepLogger.Warn().Err(err).Msg("Failed to cleanup old log files")
			}
		}),
	)
	if err != nil {
		startupLogger.Fatal().Err(err).Msg("Failed to schedule log cleanup")
	}

	scheduler.Start()
	startupLogger.Info().
		Dur("sweep_interval", cfg.SweepInterval).
		Dur("challenge_timeout", cfg.ChallengeTimeout).
		Msg("Background jobs scheduled")

	// Run the update loop until a shutdown signal arrives
	go func() {
		if err := battleBot.Run(ctx); err != nil && err != context.Canceled {
			startupLogger.Error().Err(err).Msg("Bot update loop failed")
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	startupLogger.Info().Msg("Shutdown signal received")

	cancel()
	if err := scheduler.Shutdown(); err != nil {
		startupLogger.Error().Err(err).Msg("Scheduler shutdown error")
	}

	startupLogger.Info().Msg("Bot stopped")
}
