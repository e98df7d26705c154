package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/metrics"
	"folio/internal/models"
	"folio/internal/settings"
	"folio/internal/timeframe"
)

// Retention steps, in execution order
const (
	StepAggregate       = "aggregate"
	StepRawSessions     = "raw_sessions"
	StepAggregates      = "aggregates"
	StepBasicPageViews  = "basic_page_views"
	StepExpiredSessions = "expired_sessions"
)

// ErrNoConnection means the cycle could not start because the database is unavailable
var ErrNoConnection = errors.New("retention: database connection unavailable")

const (
	defaultBatchSize       = 1000
	defaultBatchPause      = 100 * time.Millisecond
	retentionStatusOK      = "ok"
	retentionStatusPartial = "partial"
)

// StepResult is the outcome of one retention step
type StepResult struct {
	Name    string
	Deleted map[string]int64
	Err     error
}

// RetentionReport summarises one retention cycle
type RetentionReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      []StepResult
}

// Failed reports whether any step returned an error
func (r *RetentionReport) Failed() bool {
	for _, step := range r.Steps {
		if step.Err != nil {
			return true
		}
	}
	return false
}

// Status is the value stored in the retention_last_status setting
func (r *RetentionReport) Status() string {
	if r.Failed() {
		return retentionStatusPartial
	}
	return retentionStatusOK
}

// Step returns the result of the named step, or nil if it did not run
func (r *RetentionReport) Step(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// RetentionJob rolls up yesterday's raw data and purges rows past their
// retention windows.
type RetentionJob struct {
	dbManager  cartridge.DBManager
	logger     *slog.Logger
	cfg        *config.Config
	batchSize  int
	batchPause time.Duration
}

func NewRetentionJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *RetentionJob {
	return &RetentionJob{
		dbManager:  dbManager,
		logger:     logger,
		cfg:        cfg,
		batchSize:  defaultBatchSize,
		batchPause: defaultBatchPause,
	}
}

func (j *RetentionJob) thresholds() analytics.Thresholds {
	return analytics.Thresholds{
		BounceMs:     int64(j.cfg.BounceThresholdMs),
		CompletionMs: int64(j.cfg.CompletionThresholdMs),
	}
}

// Run executes every step in order. A failing step is logged and recorded in
// the report but never stops the steps after it. The returned error is only
// set when the cycle itself cannot run.
func (j *RetentionJob) Run(now time.Time) (*RetentionReport, error) {
	now = now.UTC()
	db := j.dbManager.GetConnection()
	if db == nil {
		return nil, ErrNoConnection
	}
	report := &RetentionReport{StartedAt: time.Now().UTC()}

	j.logger.Info("Starting retention cycle",
		slog.Time("now", now),
		slog.Int("raw_retention_days", j.cfg.RawRetentionDays),
		slog.Int("aggregate_retention_days", j.cfg.AggregateRetentionDays),
		slog.Int("basic_retention_days", j.cfg.BasicRetentionDays))

	steps := []struct {
		name string
		fn   func(*gorm.DB, time.Time) (map[string]int64, error)
	}{
		{StepAggregate, j.aggregatePrevious},
		{StepRawSessions, j.purgeRawSessions},
		{StepAggregates, j.purgeAggregates},
		{StepBasicPageViews, j.purgeBasicPageViews},
		{StepExpiredSessions, j.purgeExpiredSessions},
	}

	for _, step := range steps {
		report.Steps = append(report.Steps, j.runStep(db, now, step.name, step.fn))
	}
	report.FinishedAt = time.Now().UTC()

	j.recordRun(db, now, report)

	j.logger.Info("Retention cycle finished",
		slog.String("status", report.Status()),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))

	return report, nil
}

func (j *RetentionJob) runStep(db *gorm.DB, now time.Time, name string, fn func(*gorm.DB, time.Time) (map[string]int64, error)) (result StepResult) {
	result.Name = name
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("panic: %v", r)
		}
		if result.Err != nil {
			metrics.RetentionStepFailuresTotal.WithLabelValues(name).Inc()
			j.logger.Error("Retention step failed", slog.String("step", name), slog.Any("error", result.Err))
		}
	}()

	deleted, err := fn(db, now)
	result.Deleted = deleted
	result.Err = err
	for table, count := range deleted {
		metrics.RetentionDeletedRowsTotal.WithLabelValues(table).Add(float64(count))
	}
	return result
}

func (j *RetentionJob) recordRun(db *gorm.DB, now time.Time, report *RetentionReport) {
	status := report.Status()
	metrics.RetentionRunsTotal.WithLabelValues(status).Inc()
	if status == retentionStatusOK {
		metrics.RetentionLastSuccessTimestamp.Set(float64(now.Unix()))
	}

	if err := settings.CreateOrUpdateSetting(db, settings.KeyRetentionLastRun, now.Format(time.RFC3339)); err != nil {
		j.logger.Error("Failed to record retention run", slog.Any("error", err))
	}
	if err := settings.CreateOrUpdateSetting(db, settings.KeyRetentionLastStatus, status); err != nil {
		j.logger.Error("Failed to record retention status", slog.Any("error", err))
	}
}

// aggregatePrevious rolls up yesterday and the previous ISO week when absent
func (j *RetentionJob) aggregatePrevious(db *gorm.DB, now time.Time) (map[string]int64, error) {
	th := j.thresholds()
	yesterday := timeframe.DayStart(now).AddDate(0, 0, -1)

	var errs []error
	if _, written, err := analytics.AggregateForDate(j.logger, db, yesterday, th); err != nil {
		errs = append(errs, err)
	} else if written {
		metrics.AggregatesWrittenTotal.WithLabelValues("daily").Inc()
	}

	previousWeek := timeframe.ISOWeekStart(now).AddDate(0, 0, -7)
	if _, written, err := analytics.AggregateForWeek(j.logger, db, previousWeek, th); err != nil {
		errs = append(errs, err)
	} else if written {
		metrics.AggregatesWrittenTotal.WithLabelValues("weekly").Inc()
	}

	return nil, errors.Join(errs...)
}

// purgeRawSessions removes sessions past the raw retention window together
// with their visits and engagement events, one batch of sessions at a time.
func (j *RetentionJob) purgeRawSessions(db *gorm.DB, now time.Time) (map[string]int64, error) {
	cutoff := now.AddDate(0, 0, -j.cfg.RawRetentionDays)
	return j.purgeSessions(db, "created_at < ?", cutoff)
}

// purgeExpiredSessions removes expired sessions that never recorded a visit
func (j *RetentionJob) purgeExpiredSessions(db *gorm.DB, now time.Time) (map[string]int64, error) {
	return j.purgeSessions(db,
		"expires_at < ? AND NOT EXISTS (SELECT 1 FROM visits WHERE visits.session_id = sessions.id)", now)
}

func (j *RetentionJob) purgeSessions(db *gorm.DB, where string, args ...interface{}) (map[string]int64, error) {
	deleted := map[string]int64{}

	var countToDelete int64
	if err := db.Table("sessions").Where(where, args...).Count(&countToDelete).Error; err != nil {
		return deleted, fmt.Errorf("failed to count sessions: %w", err)
	}
	if countToDelete == 0 {
		j.logger.Debug("No sessions to purge", slog.String("filter", where))
		return deleted, nil
	}

	for {
		var ids []string
		if err := db.Table("sessions").Where(where, args...).
			Order("created_at").Limit(j.batchSize).Pluck("id", &ids).Error; err != nil {
			return deleted, fmt.Errorf("failed to select sessions: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		batch, err := deleteSessionBatch(j.logger, db, ids)
		if err != nil {
			j.logger.Error("Failed to delete session batch",
				slog.Any("error", err),
				slog.Int64("deleted_so_far", deleted["sessions"]))
			return deleted, err
		}
		for table, count := range batch {
			deleted[table] += count
		}

		if len(ids) < j.batchSize {
			break
		}
		// Let tracking writes through between batches
		time.Sleep(j.batchPause)
	}

	j.logger.Info("Purged sessions",
		slog.String("filter", where),
		slog.Int64("sessions", deleted["sessions"]),
		slog.Int64("visits", deleted["visits"]),
		slog.Int64("scroll_events", deleted["scroll_events"]),
		slog.Int64("section_events", deleted["section_events"]))
	return deleted, nil
}

var sessionBatchDeletes = []struct {
	table string
	sql   string
}{
	{"scroll_events", "DELETE FROM scroll_events WHERE visit_id IN (SELECT id FROM visits WHERE session_id IN ?)"},
	{"section_events", "DELETE FROM section_events WHERE visit_id IN (SELECT id FROM visits WHERE session_id IN ?)"},
	{"visits", "DELETE FROM visits WHERE session_id IN ?"},
	{"sessions", "DELETE FROM sessions WHERE id IN ?"},
}

// deleteSessionBatch deletes children before parents so the purge does not
// depend on the foreign_keys pragma being enabled.
func deleteSessionBatch(logger *slog.Logger, db *gorm.DB, ids []string) (map[string]int64, error) {
	deleted := map[string]int64{}
	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		for _, stmt := range sessionBatchDeletes {
			result := tx.Exec(stmt.sql, ids)
			if result.Error != nil {
				return fmt.Errorf("failed to delete %s: %w", stmt.table, result.Error)
			}
			deleted[stmt.table] = result.RowsAffected
		}
		return nil
	})
	return deleted, err
}

// purgeAggregates removes daily and weekly rollups past the aggregate window
func (j *RetentionJob) purgeAggregates(db *gorm.DB, now time.Time) (map[string]int64, error) {
	cutoff := timeframe.DayStart(now.AddDate(0, 0, -j.cfg.AggregateRetentionDays)).Format(timeframe.DateLayout)
	deleted := map[string]int64{}

	err := models.PerformWrite(j.logger, db, func(tx *gorm.DB) error {
		daily := tx.Where("date < ?", cutoff).Delete(&analytics.DailyAggregate{})
		if daily.Error != nil {
			return fmt.Errorf("failed to delete daily aggregates: %w", daily.Error)
		}
		deleted["daily_aggregates"] = daily.RowsAffected

		weekly := tx.Where("week_start < ?", cutoff).Delete(&analytics.WeeklyAggregate{})
		if weekly.Error != nil {
			return fmt.Errorf("failed to delete weekly aggregates: %w", weekly.Error)
		}
		deleted["weekly_aggregates"] = weekly.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}

	j.logger.Info("Purged aggregates",
		slog.String("cutoff", cutoff),
		slog.Int64("daily", deleted["daily_aggregates"]),
		slog.Int64("weekly", deleted["weekly_aggregates"]))
	return deleted, nil
}

// purgeBasicPageViews removes cookieless counters past the basic window. A
// missing table means the cookieless mode was never migrated and is skipped.
func (j *RetentionJob) purgeBasicPageViews(db *gorm.DB, now time.Time) (map[string]int64, error) {
	cutoff := timeframe.DayStart(now.AddDate(0, 0, -j.cfg.BasicRetentionDays)).Format(timeframe.DateLayout)

	var affected int64
	err := models.PerformWrite(j.logger, db, func(tx *gorm.DB) error {
		result := tx.Exec("DELETE FROM basic_page_views WHERE date < ?", cutoff)
		affected = result.RowsAffected
		return result.Error
	})
	if models.IsMissingTable(err) {
		j.logger.Warn("Cookieless table missing, skipping purge")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete basic page views: %w", err)
	}

	j.logger.Info("Purged basic page views", slog.String("cutoff", cutoff), slog.Int64("deleted", affected))
	return map[string]int64{"basic_page_views": affected}, nil
}
