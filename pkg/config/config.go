// Package config provides configuration management for the Card Battle System.
// Loads settings from environment variables and .env files with validation and
// defaults. Covers both the bot service and the replay render service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// BattleConfig contains the tunables of the combat engine. The defaults match
// the richest rule set; the toggles let deployments run the simpler rule
// variants without code changes.
type BattleConfig struct {
	TurnCap           int     // Maximum attacks before the battle is called on remaining vitality
	CritChance        float64 // Probability of a critical hit per attack
	CritMultiplier    float64 // Damage multiplier on a critical hit
	DefenseMitigation bool    // Whether defender's defense reduces incoming damage
	CriticalHits      bool    // Whether critical hits are rolled at all
}

// Config holds all configuration settings for the bot and render services.
// Provides centralized configuration management with validation and helper
// methods.
type Config struct {
	// Bot Configuration
	BotToken      string // Telegram bot token
	BotHost       string // Bot webhook server bind host
	BotPort       string // Bot webhook server bind port
	PublicHost    string // Public URL Telegram delivers webhooks to; empty enables long polling
	WebhookSecret string // Optional secret token echoed by Telegram on webhook delivery

	// Session Configuration
	ChallengeTimeout time.Duration // How long a pairing may wait for both cards
	SweepInterval    time.Duration // How often the expiry sweep runs

	// Battle Configuration
	Battle BattleConfig

	// Render Service Configuration
	RenderHost      string // Render service bind host
	RenderPort      string // Render service bind port
	RenderURL       string // Base URL the bot uses to reach the render service
	RenderOutputDir string // Directory the render service writes replay pages to
	RenderHMACKeyID string // Key identifier for render request signing
	RenderHMACKey   string // Secret for render request signing

	// Attribute Extraction
	OCRURL string // Base URL of the external text recognition service; empty disables recognition

	// Storage
	DBPath       string // File path for the bot SQLite database
	RenderDBPath string // File path for the render service SQLite database
	CardsDir     string // Directory uploaded card images are saved to

	// Security
	ClockSkewSeconds int // Maximum allowed time difference for HMAC timestamp validation
	RateLimitPerMin  int // Maximum card uploads per user per minute

	// Logging
	LogLevel string // Log level (debug, info, warn, error)
}

// Service selects which binary's required settings Load validates. The
// render service never talks to Telegram, so it must not demand the bot
// token.
type Service string

const (
	ServiceBot      Service = "bot"
	ServiceRenderer Service = "renderd"
)

// Load reads configuration from environment variables and .env file.
// Returns a validated configuration instance with all settings the given
// service requires. Automatically loads .env file if present, with
// environment variables taking precedence.
func Load(service Service) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		BotToken:      getEnv("BOT_TOKEN", ""),
		BotHost:       getEnv("BOT_HOST", "0.0.0.0"),
		BotPort:       getEnv("BOT_PORT", "8080"),
		PublicHost:    getEnv("PUBLIC_HOST", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		ChallengeTimeout: getEnvAsDuration("CHALLENGE_TIMEOUT", 10*time.Minute),
		SweepInterval:    getEnvAsDuration("SWEEP_INTERVAL", 60*time.Second),

		Battle: BattleConfig{
			TurnCap:           getEnvAsInt("BATTLE_TURN_CAP", 100),
			CritChance:        getEnvAsFloat("BATTLE_CRIT_CHANCE", 0.10),
			CritMultiplier:    getEnvAsFloat("BATTLE_CRIT_MULTIPLIER", 2.0),
			DefenseMitigation: getEnvAsBool("BATTLE_DEFENSE_MITIGATION", true),
			CriticalHits:      getEnvAsBool("BATTLE_CRITICAL_HITS", true),
		},

		RenderHost:      getEnv("RENDER_HOST", "0.0.0.0"),
		RenderPort:      getEnv("RENDER_PORT", "8081"),
		RenderURL:       getEnv("RENDER_URL", "http://localhost:8081"),
		RenderOutputDir: getEnv("RENDER_OUTPUT_DIR", "replays"),
		RenderHMACKeyID: getEnv("RENDER_HMAC_KEY_ID", "render-kid-1"),
		RenderHMACKey:   getEnv("RENDER_HMAC_KEY", ""),

		OCRURL: getEnv("OCR_URL", "http://localhost:8090"),

		DBPath:       getEnv("DB_PATH", "battle_bot.db"),
		RenderDBPath: getEnv("RENDER_DB_PATH", "renderd.db"),
		CardsDir:     getEnv("CARDS_DIR", "cards"),

		ClockSkewSeconds: getEnvAsInt("CLOCK_SKEW_SECONDS", 300),
		RateLimitPerMin:  getEnvAsInt("RATE_LIMIT_PER_MIN", 10),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config, config.validate(service)
}

// validate ensures all settings the service requires are present and sane.
// The HMAC key is required by both services: the bot signs render requests,
// the render service verifies them.
func (c *Config) validate(service Service) error {
	if service == ServiceBot && c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN must be set")
	}
	if c.RenderHMACKey == "" {
		return fmt.Errorf("RENDER_HMAC_KEY must be set")
	}
	if c.Battle.TurnCap <= 0 {
		return fmt.Errorf("BATTLE_TURN_CAP must be positive")
	}
	if c.Battle.CritChance < 0 || c.Battle.CritChance > 1 {
		return fmt.Errorf("BATTLE_CRIT_CHANCE must be between 0 and 1")
	}
	if c.ChallengeTimeout <= 0 {
		return fmt.Errorf("CHALLENGE_TIMEOUT must be positive")
	}
	return nil
}

// GetBotAddr returns the complete bind address for the bot webhook server.
func (c *Config) GetBotAddr() string {
	return fmt.Sprintf("%s:%s", c.BotHost, c.BotPort)
}

// GetRenderAddr returns the complete bind address for the render service.
func (c *Config) GetRenderAddr() string {
	return fmt.Sprintf("%s:%s", c.RenderHost, c.RenderPort)
}

// GetClockSkew returns the clock skew tolerance as a time.Duration.
func (c *Config) GetClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// GetRenderSecrets returns the HMAC secrets map shared by the bot and the
// render service.
func (c *Config) GetRenderSecrets() map[string]string {
	return map[string]string{c.RenderHMACKeyID: c.RenderHMACKey}
}

// WebhookPath returns the token-scoped webhook route the bot listens on.
// Scoping by token keeps unauthenticated callers from guessing the path.
func (c *Config) WebhookPath() string {
	return "/webhook/" + c.BotToken
}

// UseWebhook reports whether the bot should register a Telegram webhook.
// Without a public host the bot falls back to long polling.
func (c *Config) UseWebhook() bool {
	return c.PublicHost != ""
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as integer or returns a default.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as float64 or returns a default.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as boolean or returns a default.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as time.Duration or
// returns a default. Accepts Go duration syntax ("10m", "60s").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
