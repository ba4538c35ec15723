// Package config manages application configuration
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/asjpl/pcl-portal/internal/apperr"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"

	// Database
	DatabaseURL string

	// Security
	AuthSecret        string // HS256 signing key for session tokens
	CronSecret        string // bearer token expected by the late-fee trigger
	WebhookToken      string // optional shared token on the inbound SMS webhook
	SessionDuration   time.Duration
	MinPasswordLength int

	// Billing
	LateFeeCents int64

	// Login throttling; empty disables it
	RedisURL string

	// SMTP
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPEncryption string
	EmailFrom      string
	EmailFromName  string
	EmailReplyTo   string

	// ClickSend
	ClickSendUsername string
	ClickSendAPIKey   string
	ClickSendFrom     string

	// RegCheck
	RegCheckUsername string

	// Branding used in emails
	PortalURL    string
	WebsiteURL   string
	SupportEmail string
	ProductName  string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PCL_PORT", "8080"),
		Environment:       getEnv("PCL_ENV", "development"),
		DatabaseURL:       getEnv("PCL_DATABASE_URL", "pcl.db"),
		AuthSecret:        os.Getenv("AUTH_SECRET"),
		CronSecret:        os.Getenv("CRON_SECRET"),
		WebhookToken:      os.Getenv("CLICKSEND_WEBHOOK_TOKEN"),
		SessionDuration:   getDurationEnv("PCL_SESSION_DURATION", 7*24*time.Hour),
		MinPasswordLength: getIntEnv("PCL_MIN_PASSWORD_LENGTH", 10),
		LateFeeCents:      int64(getIntEnv("LATE_FEE_CENTS", 6000)),
		RedisURL:          os.Getenv("REDIS_URL"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		SMTPEncryption:    getEnv("SMTP_ENCRYPTION", "STARTTLS"),
		EmailFrom:         getEnv("EMAIL_FROM_ADDRESS", "no-reply@perthcarleasing.com.au"),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Perth Car Leasing"),
		EmailReplyTo:      os.Getenv("EMAIL_REPLY_TO"),
		ClickSendUsername: os.Getenv("CLICKSEND_USERNAME"),
		ClickSendAPIKey:   os.Getenv("CLICKSEND_API_KEY"),
		ClickSendFrom:     getEnv("CLICKSEND_FROM", "+61427526002"),
		RegCheckUsername:  os.Getenv("REGCHECK_USERNAME"),
		PortalURL:         getEnv("PORTAL_URL", "http://localhost:8080"),
		WebsiteURL:        getEnv("WEBSITE_URL", "https://perthcarleasing.com.au"),
		SupportEmail:      getEnv("SUPPORT_EMAIL", "support@perthcarleasing.com.au"),
		ProductName:       getEnv("PRODUCT_NAME", "Perth Car Leasing"),
	}
}

// Validate reports settings the server cannot run without
func (c *Config) Validate() error {
	if c.AuthSecret == "" {
		return apperr.New(apperr.ErrConfiguration, "AUTH_SECRET is not set")
	}
	if c.SessionDuration <= 0 {
		return apperr.New(apperr.ErrConfiguration, "PCL_SESSION_DURATION must be positive")
	}
	if c.MinPasswordLength < 1 {
		return apperr.New(apperr.ErrConfiguration, "PCL_MIN_PASSWORD_LENGTH must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LogValue implements slog.LogValuer. Secrets are reported only as set/unset.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.String("env", c.Environment),
		slog.String("database", c.DatabaseURL),
		slog.Duration("session_duration", c.SessionDuration),
		slog.Int64("late_fee_cents", c.LateFeeCents),
		slog.Bool("auth_secret", c.AuthSecret != ""),
		slog.Bool("cron_secret", c.CronSecret != ""),
		slog.Bool("redis", c.RedisURL != ""),
		slog.Bool("smtp", c.SMTPHost != ""),
		slog.Bool("clicksend", c.ClickSendUsername != "" && c.ClickSendAPIKey != ""),
		slog.Bool("regcheck", c.RegCheckUsername != ""),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
