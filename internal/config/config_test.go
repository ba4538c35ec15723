package config

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/asjpl/pcl-portal/internal/apperr"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PCL_SESSION_DURATION", "")
	t.Setenv("PCL_MIN_PASSWORD_LENGTH", "")
	t.Setenv("LATE_FEE_CENTS", "")
	t.Setenv("CLICKSEND_FROM", "")

	cfg := Load()
	assert.Equal(t, 7*24*time.Hour, cfg.SessionDuration)
	assert.Equal(t, 10, cfg.MinPasswordLength)
	assert.Equal(t, int64(6000), cfg.LateFeeCents)
	assert.Equal(t, "+61427526002", cfg.ClickSendFrom)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("PCL_SESSION_DURATION", "2h")
	t.Setenv("LATE_FEE_CENTS", "2500")
	t.Setenv("PCL_MIN_PASSWORD_LENGTH", "not-a-number")

	cfg := Load()
	assert.Equal(t, "s3cret", cfg.AuthSecret)
	assert.Equal(t, 2*time.Hour, cfg.SessionDuration)
	assert.Equal(t, int64(2500), cfg.LateFeeCents)
	assert.Equal(t, 10, cfg.MinPasswordLength, "unparseable values fall back to the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{AuthSecret: "x", SessionDuration: time.Hour, MinPasswordLength: 10}, false},
		{"missing auth secret", Config{SessionDuration: time.Hour, MinPasswordLength: 10}, true},
		{"zero duration", Config{AuthSecret: "x", MinPasswordLength: 10}, true},
		{"zero password length", Config{AuthSecret: "x", SessionDuration: time.Hour}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, apperr.ErrConfiguration))
		})
	}
}

func TestLogValue_RedactsSecrets(t *testing.T) {
	cfg := &Config{
		AuthSecret:      "auth-secret-value",
		CronSecret:      "cron-secret-value",
		SMTPPassword:    "smtp-password-value",
		ClickSendAPIKey: "clicksend-key-value",
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("config", "config", cfg)

	out := buf.String()
	for _, secret := range []string{"auth-secret-value", "cron-secret-value", "smtp-password-value", "clicksend-key-value"} {
		assert.False(t, strings.Contains(out, secret), "log output leaked %q", secret)
	}
	assert.Contains(t, out, "config.auth_secret=true")
}
