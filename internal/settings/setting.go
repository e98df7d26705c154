package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"gorm.io/gorm"

	"folio/internal/models"
)

// Keys of the settings rows the application reads and writes
const (
	KeyExcludedIPs         = "excluded_ips"
	KeyRetentionLastRun    = "retention_last_run"
	KeyRetentionLastStatus = "retention_last_status"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

var excludedIPsCache *cache.Cache[string, []string]

// SetupDefaultSettings seeds the rows the application expects and primes the
// excluded IP cache.
func SetupDefaultSettings(dbConn *gorm.DB) error {
	defaults := []Setting{
		{Key: KeyExcludedIPs, Value: ""},
		{Key: KeyRetentionLastRun, Value: ""},
		{Key: KeyRetentionLastStatus, Value: ""},
	}
	logger := slog.Default()

	err := models.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, setting := range defaults {
			err := tx.Exec(`
				INSERT INTO settings (key, value, created_at, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(key) DO NOTHING
			`, setting.Key, setting.Value, now, now).Error
			if err != nil {
				logger.Error("Failed to seed setting", slog.String("key", setting.Key), slog.Any("error", err))
				return fmt.Errorf("failed to seed setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	loadCache(dbConn, logger)

	return err
}

// IsIPExcluded reports whether ip is on the excluded_ips list. Before
// SetupDefaultSettings has run nothing is excluded.
func IsIPExcluded(ip string) (bool, error) {
	if excludedIPsCache == nil || ip == "" {
		return false, nil
	}

	excludedIPs, err := excludedIPsCache.Get(KeyExcludedIPs)
	if err != nil {
		return false, fmt.Errorf("failed to check excluded IPs: %w", err)
	}

	for _, excludedIP := range excludedIPs {
		if excludedIP == ip {
			return true, nil
		}
	}
	return false, nil
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	if err := dbConn.Where("key = ?", key).First(&setting).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

// GetSettingOrDefault returns the stored value, or fallback when the row is missing.
func GetSettingOrDefault(dbConn *gorm.DB, key, fallback string) (string, error) {
	value, err := GetSetting(dbConn, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fallback, nil
	}
	return value, err
}

// UpdateSetting writes a setting, creating the row when it does not exist yet
func UpdateSetting(dbConn *gorm.DB, key string, value string) error {
	err := models.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		result := tx.Model(&Setting{}).Where("key = ?", key).Update("value", value)
		if result.Error != nil {
			return fmt.Errorf("failed to update setting: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}
		if err := tx.Create(&Setting{Key: key, Value: value}).Error; err != nil {
			return fmt.Errorf("failed to create setting: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if key == KeyExcludedIPs && excludedIPsCache != nil {
		excludedIPsCache.Clear()
	}
	if excludedIPsCache == nil {
		loadCache(dbConn, slog.Default())
	}
	return nil
}

// CreateOrUpdateSetting creates a new setting or updates an existing one
func CreateOrUpdateSetting(dbConn *gorm.DB, key string, value string) error {
	return UpdateSetting(dbConn, key, value)
}

// AllSettings lists every stored setting ordered by key
func AllSettings(dbConn *gorm.DB) ([]Setting, error) {
	var all []Setting
	if err := dbConn.Order("key ASC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}
	return all, nil
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		return parseIPList(value), nil
	}
	excludedIPsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
}

// parseIPList splits a comma separated list, dropping blanks
func parseIPList(value string) []string {
	var ips []string
	for _, ip := range strings.Split(value, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}
