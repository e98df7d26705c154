package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/events"
	"folio/internal/jobs"
	"folio/internal/sessions"
	"folio/internal/settings"
	"folio/internal/testsupport"
)

var retentionNow = time.Date(2024, 6, 20, 2, 0, 0, 0, time.UTC)

func newRetentionJob(t *testing.T) (*jobs.RetentionJob, *gorm.DB) {
	t.Helper()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	require.NoError(t, settings.SetupDefaultSettings(db))

	job := jobs.NewRetentionJob(dbManager, logger, config.GetConfig())
	job.SetBatching(1000, 0)
	return job, db
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}

func sessionExists(t *testing.T, db *gorm.DB, id string) bool {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&sessions.Session{}).Where("id = ?", id).Count(&count).Error)
	return count == 1
}

func TestRetentionPurgesRawSessionsPastWindow(t *testing.T) {
	job, db := newRetentionJob(t)
	raw := config.GetConfig().RawRetentionDays

	oldCreated := retentionNow.AddDate(0, 0, -(raw + 1))
	old := testsupport.CreateSession(t, db, "old-session", oldCreated, oldCreated.Add(30*time.Minute))
	oldVisit := testsupport.CreateVisit(t, db, old.ID, "/home", oldCreated, 45000)
	testsupport.CreateScroll(t, db, oldVisit, 25, oldCreated)
	testsupport.CreateSection(t, db, oldVisit, "hero", 3000, oldCreated)

	recentCreated := retentionNow.AddDate(0, 0, -(raw - 1))
	recent := testsupport.CreateSession(t, db, "recent-session", recentCreated, recentCreated.Add(30*time.Minute))
	recentVisit := testsupport.CreateVisit(t, db, recent.ID, "/work", recentCreated, 12000)
	testsupport.CreateScroll(t, db, recentVisit, 50, recentCreated)

	report, err := job.Run(retentionNow)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	assert.False(t, sessionExists(t, db, "old-session"))
	assert.True(t, sessionExists(t, db, "recent-session"))

	assert.Equal(t, int64(1), countRows(t, db, &events.Visit{}))
	assert.Equal(t, int64(1), countRows(t, db, &events.ScrollEvent{}))
	assert.Equal(t, int64(0), countRows(t, db, &events.SectionEvent{}))

	step := report.Step(jobs.StepRawSessions)
	require.NotNil(t, step)
	assert.Equal(t, int64(1), step.Deleted["sessions"])
	assert.Equal(t, int64(1), step.Deleted["visits"])
	assert.Equal(t, int64(1), step.Deleted["scroll_events"])
	assert.Equal(t, int64(1), step.Deleted["section_events"])
}

func TestRetentionPurgesInBatches(t *testing.T) {
	job, db := newRetentionJob(t)
	job.SetBatching(2, 0)

	created := retentionNow.AddDate(0, 0, -40)
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		session := testsupport.CreateSession(t, db, id, created, created.Add(time.Hour))
		testsupport.CreateVisit(t, db, session.ID, "/", created, 1000)
	}

	report, err := job.Run(retentionNow)
	require.NoError(t, err)

	assert.Equal(t, int64(5), report.Step(jobs.StepRawSessions).Deleted["sessions"])
	assert.Equal(t, int64(0), countRows(t, db, &sessions.Session{}))
	assert.Equal(t, int64(0), countRows(t, db, &events.Visit{}))
}

func TestRetentionPurgesExpiredSessionsWithoutVisits(t *testing.T) {
	job, db := newRetentionJob(t)
	yesterday := retentionNow.AddDate(0, 0, -1)

	testsupport.CreateSession(t, db, "abandoned", yesterday, yesterday.Add(30*time.Minute))
	withVisit := testsupport.CreateSession(t, db, "expired-with-visit", yesterday, yesterday.Add(30*time.Minute))
	testsupport.CreateVisit(t, db, withVisit.ID, "/about", yesterday, 0)
	testsupport.CreateSession(t, db, "live", retentionNow.Add(-time.Minute), retentionNow.Add(29*time.Minute))

	report, err := job.Run(retentionNow)
	require.NoError(t, err)

	assert.False(t, sessionExists(t, db, "abandoned"))
	assert.True(t, sessionExists(t, db, "expired-with-visit"))
	assert.True(t, sessionExists(t, db, "live"))
	assert.Equal(t, int64(1), report.Step(jobs.StepExpiredSessions).Deleted["sessions"])
}

func TestRetentionPurgesOldAggregates(t *testing.T) {
	job, db := newRetentionJob(t)

	require.NoError(t, db.Create(&analytics.DailyAggregate{Date: "2024-05-01", ComputedAt: retentionNow}).Error)
	require.NoError(t, db.Create(&analytics.DailyAggregate{Date: "2024-06-10", ComputedAt: retentionNow}).Error)
	require.NoError(t, db.Create(&analytics.WeeklyAggregate{Year: 2024, Week: 19, WeekStart: "2024-05-06", ComputedAt: retentionNow}).Error)
	require.NoError(t, db.Create(&analytics.WeeklyAggregate{Year: 2024, Week: 24, WeekStart: "2024-06-10", ComputedAt: retentionNow}).Error)

	report, err := job.Run(retentionNow)
	require.NoError(t, err)

	var dates []string
	require.NoError(t, db.Model(&analytics.DailyAggregate{}).Order("date").Pluck("date", &dates).Error)
	assert.Equal(t, []string{"2024-06-10"}, dates)

	var weekStarts []string
	require.NoError(t, db.Model(&analytics.WeeklyAggregate{}).Order("week_start").Pluck("week_start", &weekStarts).Error)
	assert.Equal(t, []string{"2024-06-10"}, weekStarts)

	step := report.Step(jobs.StepAggregates)
	assert.Equal(t, int64(1), step.Deleted["daily_aggregates"])
	assert.Equal(t, int64(1), step.Deleted["weekly_aggregates"])
}

func TestRetentionPurgesOldBasicPageViews(t *testing.T) {
	job, db := newRetentionJob(t)

	require.NoError(t, db.Create(&events.BasicPageView{Date: "2023-06-01", Path: "/", Device: "mobile", Count: 3, UpdatedAt: retentionNow}).Error)
	require.NoError(t, db.Create(&events.BasicPageView{Date: "2024-06-01", Path: "/", Device: "mobile", Count: 1, UpdatedAt: retentionNow}).Error)

	report, err := job.Run(retentionNow)
	require.NoError(t, err)

	var dates []string
	require.NoError(t, db.Model(&events.BasicPageView{}).Pluck("date", &dates).Error)
	assert.Equal(t, []string{"2024-06-01"}, dates)
	assert.Equal(t, int64(1), report.Step(jobs.StepBasicPageViews).Deleted["basic_page_views"])
}

func TestRetentionAggregatesYesterdayAndPreviousWeek(t *testing.T) {
	job, db := newRetentionJob(t)

	yesterday := time.Date(2024, 6, 19, 10, 0, 0, 0, time.UTC)
	s1 := testsupport.CreateSession(t, db, "yesterday-session", yesterday, yesterday.Add(30*time.Minute))
	testsupport.CreateVisit(t, db, s1.ID, "/home", yesterday, 5000)

	lastWeek := time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)
	s2 := testsupport.CreateSession(t, db, "last-week-session", lastWeek, lastWeek.Add(30*time.Minute))
	testsupport.CreateVisit(t, db, s2.ID, "/work", lastWeek, 70000)

	_, err := job.Run(retentionNow)
	require.NoError(t, err)

	var daily analytics.DailyAggregate
	require.NoError(t, db.Where("date = ?", "2024-06-19").First(&daily).Error)
	assert.Equal(t, int64(1), daily.TotalSessions)
	assert.Equal(t, int64(1), daily.BounceCount)

	var weekly analytics.WeeklyAggregate
	require.NoError(t, db.Where("year = ? AND week = ?", 2024, 24).First(&weekly).Error)
	assert.Equal(t, "2024-06-10", weekly.WeekStart)
	assert.Equal(t, int64(1), weekly.TotalSessions)
	assert.Equal(t, int64(1), weekly.CompletedCount)

	// A second cycle leaves the rollups untouched
	_, err = job.Run(retentionNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), countRows(t, db, &analytics.DailyAggregate{}))
	assert.Equal(t, int64(1), countRows(t, db, &analytics.WeeklyAggregate{}))
}

func TestRetentionRecordsRunInSettings(t *testing.T) {
	job, db := newRetentionJob(t)

	_, err := job.Run(retentionNow)
	require.NoError(t, err)

	lastRun, err := settings.GetSetting(db, settings.KeyRetentionLastRun)
	require.NoError(t, err)
	assert.Equal(t, retentionNow.Format(time.RFC3339), lastRun)

	status, err := settings.GetSetting(db, settings.KeyRetentionLastStatus)
	require.NoError(t, err)
	assert.Equal(t, "ok", status)
}

func TestRetentionStepsAreIsolated(t *testing.T) {
	job, db := newRetentionJob(t)

	created := retentionNow.AddDate(0, 0, -30)
	testsupport.CreateSession(t, db, "stale", created, created.Add(time.Hour))
	require.NoError(t, db.Migrator().DropTable(&analytics.DailyAggregate{}))

	report, err := job.Run(retentionNow)
	require.NoError(t, err)
	assert.True(t, report.Failed())
	assert.Equal(t, "partial", report.Status())

	assert.Error(t, report.Step(jobs.StepAggregate).Err)
	assert.Error(t, report.Step(jobs.StepAggregates).Err)
	assert.NoError(t, report.Step(jobs.StepRawSessions).Err)
	assert.NoError(t, report.Step(jobs.StepBasicPageViews).Err)
	assert.NoError(t, report.Step(jobs.StepExpiredSessions).Err)
	assert.False(t, sessionExists(t, db, "stale"))

	status, err := settings.GetSetting(db, settings.KeyRetentionLastStatus)
	require.NoError(t, err)
	assert.Equal(t, "partial", status)
}

func TestRetentionToleratesMissingCookielessTable(t *testing.T) {
	job, db := newRetentionJob(t)
	require.NoError(t, db.Migrator().DropTable(&events.BasicPageView{}))

	report, err := job.Run(retentionNow)
	require.NoError(t, err)
	assert.NoError(t, report.Step(jobs.StepBasicPageViews).Err)
}
