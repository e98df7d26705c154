package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("FOLIO_ENV", Test)
	Reset()
	t.Cleanup(Reset)
	return GetConfig()
}

func TestGetConfigDefaults(t *testing.T) {
	cfg := freshConfig(t)

	assert.Equal(t, Test, cfg.Environment)
	assert.Equal(t, 30*time.Minute, cfg.SessionWindow())
	assert.Equal(t, 14, cfg.RawRetentionDays)
	assert.Equal(t, 30, cfg.AggregateRetentionDays)
	assert.Equal(t, 365, cfg.BasicRetentionDays)
	assert.Equal(t, 2, cfg.RetentionRunHourUTC)
	assert.Equal(t, time.Hour, cfg.RetentionRetryBackoff())
	assert.Equal(t, 10000, cfg.BounceThresholdMs)
	assert.Equal(t, 60000, cfg.CompletionThresholdMs)
	assert.Equal(t, 1, cfg.GetMaxOpenConns())
	assert.Equal(t, "storage/folio-test.db", cfg.DatabaseName)
	assert.Empty(t, cfg.GetPublicDirectory())
	assert.Empty(t, cfg.GetAssetsPrefix())
}

func TestGetConfigFromEnvironment(t *testing.T) {
	t.Setenv("FOLIO_SESSION_WINDOW_MINUTES", "45")
	t.Setenv("FOLIO_RAW_RETENTION_DAYS", "7")
	t.Setenv("FOLIO_RETENTION_RUN_HOUR_UTC", "23")
	t.Setenv("FOLIO_DASHBOARD_PASSWORD", "hunter2")
	t.Setenv("FOLIO_DATABASE_URL", "/tmp/folio.db")
	cfg := freshConfig(t)

	assert.Equal(t, 45*time.Minute, cfg.SessionWindow())
	assert.Equal(t, 7, cfg.RawRetentionDays)
	assert.Equal(t, 23, cfg.RetentionRunHourUTC)
	assert.Equal(t, "hunter2", cfg.DashboardPassword)
	assert.Equal(t, "/tmp/folio.db", cfg.DatabaseName)
}

func TestAllowedOrigins(t *testing.T) {
	dev := &Config{Environment: Development, CORSAllowedOrigins: "https://me.dev"}
	assert.Equal(t, "*", dev.AllowedOrigins())

	prod := &Config{Environment: Production, CORSAllowedOrigins: " https://me.dev, ,https://www.me.dev "}
	assert.Equal(t, "https://me.dev,https://www.me.dev", prod.AllowedOrigins())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:            Test,
			DatabaseType:           SQLiteDatabase,
			PrivateKey:             "key",
			SessionWindowMinutes:   30,
			RetentionRunHourUTC:    2,
			RawRetentionDays:       14,
			AggregateRetentionDays: 30,
			BasicRetentionDays:     365,
		}
	}
	require.NoError(t, valid().validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown environment", mutate: func(c *Config) { c.Environment = "staging" }},
		{name: "unknown database", mutate: func(c *Config) { c.DatabaseType = "postgres" }},
		{name: "missing private key", mutate: func(c *Config) { c.PrivateKey = "" }},
		{name: "zero session window", mutate: func(c *Config) { c.SessionWindowMinutes = 0 }},
		{name: "run hour out of range", mutate: func(c *Config) { c.RetentionRunHourUTC = 24 }},
		{name: "aggregates shorter than raw", mutate: func(c *Config) { c.AggregateRetentionDays = 7 }},
		{name: "zero basic retention", mutate: func(c *Config) { c.BasicRetentionDays = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
