package events

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"folio/internal/models"
	"folio/internal/timeframe"
)

var lower = cases.Lower(language.Und)

// NormalizeBasicDevice folds a client supplied device label onto the closed
// cookieless set.
func NormalizeBasicDevice(device string) string {
	switch label := lower.String(strings.TrimSpace(device)); label {
	case BasicDeviceDesktop, BasicDeviceMobile, BasicDeviceTablet:
		return label
	default:
		return BasicDeviceOther
	}
}

// RecordBasicPageView increments the cookieless counter for (date, path, device).
// A missing table is logged and ignored so pings keep succeeding while the
// schema is being migrated.
func RecordBasicPageView(logger *slog.Logger, db *gorm.DB, rawPath, device string, now time.Time) error {
	path, err := NormalizePath(rawPath)
	if err != nil {
		return err
	}

	now = timestampOrNow(now)
	date := now.Format(timeframe.DateLayout)
	device = NormalizeBasicDevice(device)

	err = models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Exec(`
			INSERT INTO basic_page_views (date, path, device, count, updated_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(date, path, device) DO UPDATE SET
				count = count + 1,
				updated_at = excluded.updated_at
		`, date, path, device, now).Error
	})
	if models.IsMissingTable(err) {
		logger.Warn("Cookieless table missing, ping dropped", slog.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record basic page view: %w", err)
	}
	return nil
}
