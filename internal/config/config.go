package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server and worker processes
type Config struct {
	// HTTP server configuration
	Server ServerConfig

	// Database Configuration
	Database DatabaseConfig

	// Redis Configuration (asynq queue + realtime fan-out)
	Redis RedisConfig

	// Authentication configuration
	Auth AuthConfig

	// OAuth provider configuration
	OAuth OAuthConfig

	// Outbound email configuration
	Email EmailConfig

	// Worker configuration
	Worker WorkerConfig

	// Logging Configuration
	Logging LoggingConfig
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port           string
	SiteURL        string   // Public URL of the web/CLI front door, used in emails and redirects
	AllowedOrigins []string // CORS origins
	UploadDir      string   // Where avatar uploads are written
	SeedFile       string   // Optional YAML seed applied at startup
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address string // Redis address (host:port)
}

// AuthConfig holds session issuance settings
type AuthConfig struct {
	AccessTokenTTL           time.Duration
	RefreshTokenTTL          time.Duration
	ResetTokenTTL            time.Duration
	RequireEmailConfirmation bool
	MinPasswordLength        int
	// BootstrapDevAdmins are emails that receive the dev-admin role when their
	// account is first created. The role is stored on the account afterwards.
	BootstrapDevAdmins []string
}

// OAuthConfig holds Google OAuth client settings
type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURL        string
}

// Enabled reports whether Google sign-in is configured
func (o OAuthConfig) Enabled() bool {
	return o.GoogleClientID != "" && o.GoogleClientSecret != ""
}

// EmailConfig holds Resend settings
type EmailConfig struct {
	ResendAPIKey string
	From         string
}

// WorkerConfig holds background job settings
type WorkerConfig struct {
	Concurrency      int
	ReminderSchedule string        // Cron expression for event reminder sweeps
	ReminderWindow   time.Duration // How far ahead events are considered upcoming
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	accessTTL, err := durationEnv("ACCESS_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := durationEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	resetTTL, err := durationEnv("RESET_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	reminderWindow, err := durationEnv("REMINDER_WINDOW", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	minPassword, err := intEnv("MIN_PASSWORD_LENGTH", 6)
	if err != nil {
		return nil, err
	}
	concurrency, err := intEnv("WORKER_CONCURRENCY", 10)
	if err != nil {
		return nil, err
	}

	siteURL := strings.TrimSuffix(envOr("SITE_URL", "http://localhost:8080"), "/")

	return &Config{
		Server: ServerConfig{
			Port:           envOr("PORT", "8080"),
			SiteURL:        siteURL,
			AllowedOrigins: listEnv("CORS_ORIGINS", []string{"http://localhost:5173"}),
			UploadDir:      envOr("UPLOAD_DIR", "uploads"),
			SeedFile:       os.Getenv("SEED_FILE"),
		},
		Database: DatabaseConfig{
			URL: envOr("DATABASE_URL", "conecte.sqlite"),
		},
		Redis: RedisConfig{
			Address: envOr("REDIS_ADDRESS", "localhost:6379"),
		},
		Auth: AuthConfig{
			AccessTokenTTL:           accessTTL,
			RefreshTokenTTL:          refreshTTL,
			ResetTokenTTL:            resetTTL,
			RequireEmailConfirmation: boolEnv("REQUIRE_EMAIL_CONFIRMATION"),
			MinPasswordLength:        minPassword,
			BootstrapDevAdmins:       listEnv("BOOTSTRAP_DEV_ADMINS", nil),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:        envOr("GOOGLE_REDIRECT_URL", siteURL+"/api/auth/oauth/google/callback"),
		},
		Email: EmailConfig{
			ResendAPIKey: os.Getenv("RESEND_API_KEY"),
			From:         envOr("EMAIL_FROM", "HDS Conecte <no-reply@hdsconecte.com.br>"),
		},
		Worker: WorkerConfig{
			Concurrency:      concurrency,
			ReminderSchedule: envOr("REMINDER_SCHEDULE", "0 * * * *"),
			ReminderWindow:   reminderWindow,
		},
		Logging: LoggingConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// listEnv splits a comma-separated variable, trimming blanks. A variable
// holding no items yields fallback.
func listEnv(key string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
