package analytics

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"folio/internal/models"
	"folio/internal/timeframe"
)

// AggregateForDate rolls up the sessions created on the UTC day of date. It
// never overwrites: an existing row is returned as is with written=false. Days
// without sessions produce no row (nil, false, nil).
func AggregateForDate(logger *slog.Logger, db *gorm.DB, date time.Time, th Thresholds) (*DailyAggregate, bool, error) {
	day := timeframe.DayStart(date)
	key := day.Format(timeframe.DateLayout)

	existing, err := findDaily(db, key)
	if err != nil || existing != nil {
		return existing, false, err
	}

	metrics, err := computeMetrics(db, day, day.AddDate(0, 0, 1), th)
	if err != nil {
		return nil, false, fmt.Errorf("failed to compute daily metrics for %s: %w", key, err)
	}
	if metrics == nil {
		logger.Debug("No sessions to aggregate", slog.String("date", key))
		return nil, false, nil
	}

	row := &DailyAggregate{Date: key, Metrics: *metrics, ComputedAt: time.Now().UTC()}
	written, err := insertOnce(logger, db, row, []clause.Column{{Name: "date"}})
	if err != nil {
		return nil, false, fmt.Errorf("failed to store daily aggregate for %s: %w", key, err)
	}
	if !written {
		// Another run stored the day first
		existing, err := findDaily(db, key)
		return existing, false, err
	}

	logger.Info("Daily aggregate stored",
		slog.String("date", key),
		slog.Int64("sessions", row.TotalSessions),
		slog.Int64("visits", row.TotalVisits))
	return row, true, nil
}

// AggregateForWeek rolls up the Monday-start ISO week containing anyDay, with
// the same write-once rules as AggregateForDate.
func AggregateForWeek(logger *slog.Logger, db *gorm.DB, anyDay time.Time, th Thresholds) (*WeeklyAggregate, bool, error) {
	start := timeframe.ISOWeekStart(anyDay)
	year, week := start.ISOWeek()

	existing, err := findWeekly(db, year, week)
	if err != nil || existing != nil {
		return existing, false, err
	}

	metrics, err := computeMetrics(db, start, start.AddDate(0, 0, 7), th)
	if err != nil {
		return nil, false, fmt.Errorf("failed to compute weekly metrics for %d-W%02d: %w", year, week, err)
	}
	if metrics == nil {
		logger.Debug("No sessions to aggregate", slog.Int("year", year), slog.Int("week", week))
		return nil, false, nil
	}

	row := &WeeklyAggregate{
		Year:       year,
		Week:       week,
		WeekStart:  start.Format(timeframe.DateLayout),
		Metrics:    *metrics,
		ComputedAt: time.Now().UTC(),
	}
	written, err := insertOnce(logger, db, row, []clause.Column{{Name: "year"}, {Name: "week"}})
	if err != nil {
		return nil, false, fmt.Errorf("failed to store weekly aggregate for %d-W%02d: %w", year, week, err)
	}
	if !written {
		existing, err := findWeekly(db, year, week)
		return existing, false, err
	}

	logger.Info("Weekly aggregate stored",
		slog.Int("year", year),
		slog.Int("week", week),
		slog.Int64("sessions", row.TotalSessions))
	return row, true, nil
}

// DailyAggregates lists stored daily rows in [from, to) ordered by date
func DailyAggregates(db *gorm.DB, from, to time.Time) ([]DailyAggregate, error) {
	var rows []DailyAggregate
	err := db.Where("date >= ? AND date < ?", from.UTC().Format(timeframe.DateLayout), to.UTC().Format(timeframe.DateLayout)).
		Order("date ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list daily aggregates: %w", err)
	}
	return rows, nil
}

func findDaily(db *gorm.DB, key string) (*DailyAggregate, error) {
	var row DailyAggregate
	err := db.Where("date = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up daily aggregate %s: %w", key, err)
	}
	return &row, nil
}

func findWeekly(db *gorm.DB, year, week int) (*WeeklyAggregate, error) {
	var row WeeklyAggregate
	err := db.Where("year = ? AND week = ?", year, week).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up weekly aggregate %d-W%02d: %w", year, week, err)
	}
	return &row, nil
}

// insertOnce inserts row unless a row with the same unique key exists.
func insertOnce(logger *slog.Logger, db *gorm.DB, row any, unique []clause.Column) (bool, error) {
	var written bool
	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{Columns: unique, DoNothing: true}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		written = res.RowsAffected == 1
		return nil
	})
	return written, err
}
