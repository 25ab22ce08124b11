// Package logger provides structured logging functionality for the Card
// Battle System. Built on top of zerolog for high-performance structured
// logging with contextual fields. Supports dual output to console and
// structured log files with timestamped naming.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global state for file logging
	logFileMutex        sync.Mutex
	sequenceCounter     = make(map[string]int)
	serviceLogFiles     = make(map[ServiceType]*os.File)
	serviceMultiWriters = make(map[ServiceType]io.Writer)
)

// LogCategory represents different types of log events
type LogCategory string

const (
	Startup LogCategory = "startup"
	Webhook LogCategory = "webhook"
	Session LogCategory = "session"
	Battle  LogCategory = "battle"
	Sweep   LogCategory = "sweep"
	Render  LogCategory = "render"
	Error   LogCategory = "error"
	General LogCategory = "general"
)

// ServiceType represents the service generating the logs
type ServiceType string

const (
	Bot      ServiceType = "bot"
	Renderer ServiceType = "renderd"
)

// Init initializes the global logger with the specified log level.
// Sets up console output with pretty formatting for development use.
// Defaults to info level if an invalid level is provided.
func Init(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})
}

// InitWithFileLogging initializes the logger with both console and file
// output. Creates timestamped log files in the logs/ directory named after
// the service.
func InitWithFileLogging(level string, service ServiceType) {
	zerolog.SetGlobalLevel(parseLevel(level))

	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	writer, err := multiWriterFor(service)
	if err != nil {
		fmt.Printf("Failed to set up file logging: %v\n", err)
		return
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
}

// NewCategoryLogger creates a new logger instance with file output for a
// specific category. All categories for the same service write to the same
// file, with category information in the log entry.
func NewCategoryLogger(level string, service ServiceType, category LogCategory) zerolog.Logger {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	writer, err := multiWriterFor(service)
	if err != nil {
		fmt.Printf("Failed to set up file logging: %v\n", err)
		return log.Logger
	}

	return zerolog.New(writer).With().
		Timestamp().
		Str("service", string(service)).
		Str("category", string(category)).
		Logger()
}

// multiWriterFor returns the console+file writer for a service, creating the
// log file on first use. Assumes logFileMutex is held by the caller.
func multiWriterFor(service ServiceType) (io.Writer, error) {
	if writer, exists := serviceMultiWriters[service]; exists {
		return writer, nil
	}

	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFilePath := filepath.Join("logs", generateLogFileName(service))
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	serviceLogFiles[service] = logFile

	// Console gets pretty format, file gets JSON
	writer := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
		logFile,
	)
	serviceMultiWriters[service] = writer

	fmt.Printf("Logging for service %s to file: %s\n", service, logFilePath)
	return writer, nil
}

// generateLogFileName creates a timestamped log file name with sequence
// number. Format: YYYYMMDD_HHMMSS_{service}_{sequence}.log
// Note: assumes the logFileMutex is already locked by the caller.
func generateLogFileName(service ServiceType) string {
	now := time.Now()
	dateStr := now.Format("20060102")
	timeStr := now.Format("150405")

	key := fmt.Sprintf("%s_%s_%s", dateStr, timeStr, service)
	sequenceCounter[key]++

	return fmt.Sprintf("%s_%s_%s_%03d.log", dateStr, timeStr, service, sequenceCounter[key])
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithRequestID creates a logger with a request ID field.
// Used for tracing requests across the webhook and render boundaries.
func WithRequestID(requestID string) zerolog.Logger {
	return log.With().Str("request_id", requestID).Logger()
}

// WithPairingID creates a logger with a pairing ID field.
// Used for tracking operations related to a specific challenge pairing.
func WithPairingID(pairingID string) zerolog.Logger {
	return log.With().Str("pairing_id", pairingID).Logger()
}

// WithBattleID creates a logger with a battle ID field.
// Used for tracking a battle from resolution through rendering.
func WithBattleID(battleID string) zerolog.Logger {
	return log.With().Str("battle_id", battleID).Logger()
}

// CleanupOldLogs removes log files older than the specified number of days.
// Helps prevent the logs directory from growing indefinitely.
func CleanupOldLogs(daysToKeep int) error {
	logsDir := "logs"
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		return nil // No logs directory, nothing to clean
	}

	return filepath.Walk(logsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || !strings.HasSuffix(info.Name(), ".log") {
			return nil
		}

		age := time.Since(info.ModTime())
		if age > time.Duration(daysToKeep)*24*time.Hour {
			return os.Remove(path)
		}

		return nil
	})
}
