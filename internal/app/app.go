// Package app wires configuration, storage and services together for the
// server and the admin CLI.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/asjpl/pcl-portal/internal/config"
	"github.com/asjpl/pcl-portal/internal/handlers"
	"github.com/asjpl/pcl-portal/internal/kv"
	"github.com/asjpl/pcl-portal/internal/models"
	"github.com/asjpl/pcl-portal/internal/services/auth"
	"github.com/asjpl/pcl-portal/internal/services/customers"
	"github.com/asjpl/pcl-portal/internal/services/email"
	"github.com/asjpl/pcl-portal/internal/services/latefees"
	"github.com/asjpl/pcl-portal/internal/services/leasing"
	"github.com/asjpl/pcl-portal/internal/services/messaging"
	"github.com/asjpl/pcl-portal/internal/services/regcheck"
	"github.com/asjpl/pcl-portal/internal/services/sms"
	"github.com/asjpl/pcl-portal/internal/storage"
)

// Sign-in throttling
const (
	loginAttempts = 10
	loginWindow   = 15 * time.Minute
	loginLockout  = 15 * time.Minute
)

// App holds the long-lived dependencies
type App struct {
	Config    *config.Config
	DB        *storage.DB
	Limiter   *kv.Limiter
	Auth      *auth.Service
	Customers *customers.Service
	Leasing   *leasing.Service
	Messaging *messaging.Service
	RegCheck  *regcheck.Client
	LateFees  *latefees.Job
}

// New opens the database, applies migrations and builds every service
func New(cfg *config.Config) (*App, error) {
	db, err := storage.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	limiter, err := kv.NewLimiter(cfg.RedisURL, loginAttempts, loginWindow, loginLockout)
	if err != nil {
		db.Close()
		return nil, err
	}
	var throttle auth.Throttle
	if limiter.Available() {
		throttle = limiter
	}

	tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.SessionDuration)
	if err != nil {
		db.Close()
		return nil, err
	}

	brand := Brand(cfg)
	var mailer email.Sender
	if smtp := email.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
		cfg.EmailFrom, cfg.EmailFromName, cfg.EmailReplyTo, cfg.SMTPEncryption); smtp != nil {
		mailer = smtp
	} else {
		slog.Warn("SMTP_HOST not set; emails will not be delivered")
	}

	smsClient := sms.NewClient(cfg.ClickSendUsername, cfg.ClickSendAPIKey, cfg.ClickSendFrom)
	if !smsClient.Configured() {
		slog.Warn("ClickSend credentials not set; SMS sends will fail")
	}

	authService := auth.NewService(db, tokens, throttle, cfg.MinPasswordLength)
	return &App{
		Config:    cfg,
		DB:        db,
		Limiter:   limiter,
		Auth:      authService,
		Customers: customers.NewService(db, authService, mailer, brand),
		Leasing:   leasing.NewService(db),
		Messaging: messaging.NewService(db, smsClient, mailer, brand, cfg.WebhookToken),
		RegCheck:  regcheck.NewClient(cfg.RegCheckUsername),
		LateFees: latefees.NewJob(
			storage.NewPaymentRepository(db),
			storage.NewLateFeeRepository(db),
			cfg.CronSecret,
			models.Cents(cfg.LateFeeCents),
		),
	}, nil
}

// Brand is the email branding taken from configuration
func Brand(cfg *config.Config) email.Brand {
	return email.Brand{
		ProductName:  cfg.ProductName,
		WebsiteURL:   cfg.WebsiteURL,
		SupportEmail: cfg.SupportEmail,
		PortalURL:    cfg.PortalURL,
	}
}

// Handler builds the HTTP handler
func (a *App) Handler() (*handlers.Handler, error) {
	return handlers.New(a.Config, handlers.Services{
		Auth:      a.Auth,
		Customers: a.Customers,
		Leasing:   a.Leasing,
		Messaging: a.Messaging,
		RegCheck:  a.RegCheck,
		LateFees:  a.LateFees,
	})
}

// Close releases the database and Redis connections
func (a *App) Close() error {
	if err := a.Limiter.Close(); err != nil {
		slog.Warn("failed to close redis client", "error", err)
	}
	return a.DB.Close()
}
