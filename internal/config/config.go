package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/playmatatu/experiment/internal/session"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL    string
	MigrateOnStart bool

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Gate switches
	UnmanagedGame           bool
	UnmanagedAssignment     bool
	DisableConsent          bool
	DisableNoGames          bool
	DisableURLParamsCapture bool

	// Step sequences shown before the game and before finishing
	IntroSteps []string
	ExitSteps  []string

	// Workers
	AssignPollSeconds int
	EndPollSeconds    int

	// Security
	JWTSecret         string
	SessionTimeoutMin int
	AdminKeyHash      string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/experiment?sslmode=disable"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Gate switches
		UnmanagedGame:           getEnvBool("UNMANAGED_GAME", false),
		UnmanagedAssignment:     getEnvBool("UNMANAGED_ASSIGNMENT", false),
		DisableConsent:          getEnvBool("DISABLE_CONSENT", false),
		DisableNoGames:          getEnvBool("DISABLE_NO_GAMES", false),
		DisableURLParamsCapture: getEnvBool("DISABLE_URL_PARAMS_CAPTURE", false),

		// Steps
		IntroSteps: getEnvList("INTRO_STEPS", nil),
		ExitSteps:  getEnvList("EXIT_STEPS", nil),

		// Workers
		AssignPollSeconds: getEnvInt("ASSIGN_POLL_SECONDS", 2),
		EndPollSeconds:    getEnvInt("END_POLL_SECONDS", 2),

		// Security
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"),
		SessionTimeoutMin: getEnvInt("SESSION_TIMEOUT_MINUTES", 24*60),
		AdminKeyHash:      getEnv("ADMIN_KEY_HASH", ""),
	}
}

// GateFlags returns the switches the session gates read.
func (c *Config) GateFlags() session.Flags {
	return session.Flags{
		UnmanagedGame:           c.UnmanagedGame,
		UnmanagedAssignment:     c.UnmanagedAssignment,
		DisableConsent:          c.DisableConsent,
		DisableNoGames:          c.DisableNoGames,
		DisableURLParamsCapture: c.DisableURLParamsCapture,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList reads a comma separated list, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
