package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMap_Defaults(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.EqualValues(t, 25, cfg.Database.MaxConns)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5, cfg.Scoring.GradingAttempts)
	assert.Equal(t, 3*time.Hour, cfg.Scheduler.SessionMaxDuration)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestLoadFromMap_Overrides(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{
		"HTTP_ALLOWED_ORIGINS":        "https://a.example,https://b.example",
		"REDIS_URL":                   "redis://localhost:6379/0",
		"SCHEDULER_LOCK_DUE_INTERVAL": "30s",
		"DB_MAX_CONNS":                "4",
		"DB_MIN_CONNS":                "1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 30*time.Second, cfg.Scheduler.LockDueInterval)
	assert.EqualValues(t, 4, cfg.Database.MaxConns)
}

func TestLoadFromMap_BadValue(t *testing.T) {
	_, err := LoadFromMap(map[string]string{"HTTP_READ_TIMEOUT": "soon"})
	assert.ErrorContains(t, err, "parse env")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	_, err := LoadFromMap(map[string]string{
		"APP_ENV":                  "production",
		"AUTH_JWT_SECRET":          "short",
		"SCORING_GRADING_ATTEMPTS": "0",
		"LOG_FORMAT":               "xml",
	})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "DATABASE_URL is required in production")
	assert.Contains(t, msg, "AUTH_JWT_SECRET must be at least 32 bytes")
	assert.Contains(t, msg, "SCORING_GRADING_ATTEMPTS")
	assert.Contains(t, msg, "LOG_FORMAT")
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown env", map[string]string{"APP_ENV": "qa"}, "APP_ENV"},
		{"staging needs secret", map[string]string{"APP_ENV": "staging"}, "AUTH_JWT_SECRET is required"},
		{"plain passphrase", map[string]string{"AUTH_TEACHER_PASSPHRASE_HASH": "hunter2"}, "bcrypt"},
		{"min above max", map[string]string{"DB_MAX_CONNS": "2", "DB_MIN_CONNS": "3"}, "DB_MIN_CONNS"},
		{"zero interval", map[string]string{"SCHEDULER_JOB_TIMEOUT": "0s"}, "SCHEDULER_JOB_TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromMap(tt.env)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := LoadFromMap(map[string]string{"SCHEDULER_ENABLED": "false", "SCHEDULER_JOB_TIMEOUT": "0s"})
	assert.NoError(t, err)
}
