// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseURL  string `mapstructure:"databaseurl"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Dashboard access and CORS
	DashboardPassword  string `mapstructure:"dashboardpassword"`
	CORSAllowedOrigins string `mapstructure:"corsallowedorigins"`
	MetricsEnabled     bool   `mapstructure:"metricsenabled"`

	// Tracking settings
	SessionWindowMinutes  int `mapstructure:"sessionwindowminutes"`
	BounceThresholdMs     int `mapstructure:"bouncethresholdms"`
	CompletionThresholdMs int `mapstructure:"completionthresholdms"`

	// Stats settings
	StatsRecentVisits int `mapstructure:"statsrecentvisits"`
	StatsWorkers      int `mapstructure:"statsworkers"`

	// Data retention settings
	RawRetentionDays             int `mapstructure:"rawretentiondays"`
	AggregateRetentionDays       int `mapstructure:"aggregateretentiondays"`
	BasicRetentionDays           int `mapstructure:"basicretentiondays"`
	RetentionRunHourUTC          int `mapstructure:"retentionrunhourutc"`
	RetentionRetryBackoffMinutes int `mapstructure:"retentionretrybackoffminutes"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "folio")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("databaseurl", "")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("dashboardpassword", "")
		v.SetDefault("corsallowedorigins", "")
		v.SetDefault("metricsenabled", true)
		v.SetDefault("sessionwindowminutes", 30)
		v.SetDefault("bouncethresholdms", 10000)
		v.SetDefault("completionthresholdms", 60000)
		v.SetDefault("statsrecentvisits", 20)
		v.SetDefault("statsworkers", 4)
		v.SetDefault("rawretentiondays", 14)
		v.SetDefault("aggregateretentiondays", 30)
		v.SetDefault("basicretentiondays", 365)
		v.SetDefault("retentionrunhourutc", 2)
		v.SetDefault("retentionretrybackoffminutes", 60)

		v.BindEnv("appname", "FOLIO_APP_NAME")
		v.BindEnv("appport", "FOLIO_APP_PORT")
		v.BindEnv("environment", "FOLIO_ENV")
		v.BindEnv("loglevel", "FOLIO_LOG_LEVEL")
		v.BindEnv("privatekey", "FOLIO_PRIVATE_KEY")
		v.BindEnv("storagepath", "FOLIO_STORAGE_PATH")
		v.BindEnv("databaseurl", "FOLIO_DATABASE_URL")
		v.BindEnv("logsdir", "FOLIO_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "FOLIO_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "FOLIO_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "FOLIO_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "FOLIO_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "FOLIO_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "FOLIO_DB_MAX_IDLE_CONNS")
		v.BindEnv("dashboardpassword", "FOLIO_DASHBOARD_PASSWORD")
		v.BindEnv("corsallowedorigins", "FOLIO_CORS_ALLOWED_ORIGINS")
		v.BindEnv("metricsenabled", "FOLIO_METRICS_ENABLED")
		v.BindEnv("sessionwindowminutes", "FOLIO_SESSION_WINDOW_MINUTES")
		v.BindEnv("bouncethresholdms", "FOLIO_BOUNCE_THRESHOLD_MS")
		v.BindEnv("completionthresholdms", "FOLIO_COMPLETION_THRESHOLD_MS")
		v.BindEnv("statsrecentvisits", "FOLIO_STATS_RECENT_VISITS")
		v.BindEnv("statsworkers", "FOLIO_STATS_WORKERS")
		v.BindEnv("rawretentiondays", "FOLIO_RAW_RETENTION_DAYS")
		v.BindEnv("aggregateretentiondays", "FOLIO_AGGREGATE_RETENTION_DAYS")
		v.BindEnv("basicretentiondays", "FOLIO_BASIC_RETENTION_DAYS")
		v.BindEnv("retentionrunhourutc", "FOLIO_RETENTION_RUN_HOUR_UTC")
		v.BindEnv("retentionretrybackoffminutes", "FOLIO_RETENTION_RETRY_BACKOFF_MINUTES")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique FOLIO_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.DatabaseType != SQLiteDatabase {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}

	if c.SessionWindowMinutes <= 0 {
		return fmt.Errorf("session window must be positive: %d", c.SessionWindowMinutes)
	}

	if c.RetentionRunHourUTC < 0 || c.RetentionRunHourUTC > 23 {
		return fmt.Errorf("retention run hour must be within 0-23: %d", c.RetentionRunHourUTC)
	}

	// Aggregates replace raw rows, so they must outlive them.
	if c.RawRetentionDays <= 0 || c.AggregateRetentionDays < c.RawRetentionDays {
		return fmt.Errorf("invalid retention windows: raw=%d aggregate=%d",
			c.RawRetentionDays, c.AggregateRetentionDays)
	}

	if c.BasicRetentionDays <= 0 {
		return fmt.Errorf("basic retention days must be positive: %d", c.BasicRetentionDays)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment.
// FOLIO_DATABASE_URL wins over the derived storage path.
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		if c.DatabaseURL != "" {
			c.DatabaseName = c.DatabaseURL
		} else {
			c.DatabaseName = filepath.Join(c.DatabasePath,
				fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
		}
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory implements cartridge.Config. Folio serves JSON only, so
// there is no static directory.
func (c *Config) GetPublicDirectory() string {
	return ""
}

// GetAssetsPrefix implements cartridge.Config; see GetPublicDirectory.
func (c *Config) GetAssetsPrefix() string {
	return ""
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetSessionTimeout returns the analytics session sliding window in seconds.
func (c *Config) GetSessionTimeout() int {
	return c.SessionWindowMinutes * 60
}

// SessionWindow returns the sliding expiry window applied on every tracked event.
func (c *Config) SessionWindow() time.Duration {
	return time.Duration(c.SessionWindowMinutes) * time.Minute
}

// RetentionRetryBackoff returns the delay before a failed retention cycle is retried.
func (c *Config) RetentionRetryBackoff() time.Duration {
	return time.Duration(c.RetentionRetryBackoffMinutes) * time.Minute
}

// AllowedOrigins returns the CORS allow-list. Outside production every origin is
// allowed; production uses the configured comma separated list.
func (c *Config) AllowedOrigins() string {
	if !c.IsProduction() {
		return "*"
	}

	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return strings.Join(origins, ",")
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for E2E test stability)
// - Development/Production: 10 (allows concurrent reads for parallel stats queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
