package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/analytics"
	"folio/internal/events"
	"folio/internal/testsupport"
	"folio/internal/timeframe"
	"folio/internal/visitors"
)

func statsOptions() analytics.StatsOptions {
	return analytics.StatsOptions{Thresholds: analytics.DefaultThresholds(), RecentVisits: 5, Workers: 3}
}

func TestComputeStats(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	now := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

	visit, _, err := events.RecordVisit(logger, db, &events.VisitInput{
		SessionID: "stats-a", Path: "/", Referrer: "https://www.linkedin.com/feed/", UserAgent: desktopUA, Timestamp: now.Add(-2 * time.Hour),
	}, window)
	require.NoError(t, err)
	_, err = events.RecordScroll(logger, db, &events.ScrollInput{SessionID: "stats-a", VisitID: visit.PublicID, Percent: 50, Timestamp: now.Add(-2 * time.Hour)}, window)
	require.NoError(t, err)
	_, err = events.EndVisit(logger, db, &events.EndInput{SessionID: "stats-a", VisitID: visit.PublicID, DurationMs: 3000})
	require.NoError(t, err)

	second, _, err := events.RecordVisit(logger, db, &events.VisitInput{
		SessionID: "stats-b", Path: "/projects", Referrer: "https://linkedin.com/in/x", UserAgent: iPhoneUA, Timestamp: now.AddDate(0, 0, -2),
	}, window)
	require.NoError(t, err)
	_, err = events.EndVisit(logger, db, &events.EndInput{SessionID: "stats-b", VisitID: second.PublicID, DurationMs: 90000})
	require.NoError(t, err)
	require.NoError(t, events.RecordSection(logger, db, &events.SectionInput{
		SessionID: "stats-b", VisitID: second.PublicID, Section: "projects", DwellMs: 8000, Timestamp: now.AddDate(0, 0, -2),
	}, window))

	// Outside the week window
	_, _, err = events.RecordVisit(logger, db, &events.VisitInput{SessionID: "stats-old", Path: "/", UserAgent: desktopUA, Timestamp: now.AddDate(0, 0, -20)}, window)
	require.NoError(t, err)

	require.NoError(t, events.RecordBasicPageView(logger, db, "/about", "mobile", now))
	require.NoError(t, events.RecordBasicPageView(logger, db, "/about", "mobile", now))
	require.NoError(t, events.RecordBasicPageView(logger, db, "/", "desktop", now.AddDate(0, 0, -1)))

	tf, err := timeframe.ParsePeriod("week", "", "", now)
	require.NoError(t, err)

	stats, err := analytics.ComputeStats(context.Background(), db, logger, tf, statsOptions())
	require.NoError(t, err)

	assert.Equal(t, timeframe.PeriodWeek, stats.Period)
	assert.Equal(t, "2024-06-04", stats.StartDate)
	assert.Equal(t, "2024-06-10", stats.EndDate)
	assert.Equal(t, int64(2), stats.TotalSessions)
	assert.Equal(t, int64(2), stats.TotalVisits)
	assert.InDelta(t, 50, stats.AvgScrollDepthPercent, 0.001)
	assert.InDelta(t, 46500, stats.AvgVisitDurationMs, 0.001)
	assert.InDelta(t, 50, stats.BounceRate, 0.001)
	assert.InDelta(t, 50, stats.CompletionRate, 0.001)
	assert.Equal(t, map[string]int64{"Desktop": 1, "Mobile": 1}, stats.DeviceBreakdown)
	assert.Equal(t, analytics.SectionMetric{Views: 1, AvgDurationMs: 8000}, stats.SectionMetrics["projects"])

	require.Len(t, stats.RecentVisits, 2)
	assert.Equal(t, visit.PublicID, stats.RecentVisits[0].VisitID, "most recent first")
	assert.Equal(t, visitors.VisitorAlias("stats-a"), stats.RecentVisits[0].Visitor)
	assert.Equal(t, 50, stats.RecentVisits[0].MaxScrollPercent)
	assert.Equal(t, "LinkedIn", stats.RecentVisits[0].Referrer)

	require.Len(t, stats.DailySessions, 7)
	assert.Equal(t, timeframe.DateStat{Date: "2024-06-08", Count: 1}, stats.DailySessions[4])
	assert.Equal(t, timeframe.DateStat{Date: "2024-06-10", Count: 1}, stats.DailySessions[6])

	require.NotEmpty(t, stats.TopReferrers)
	assert.Equal(t, analytics.MetricCountResult{Name: "LinkedIn", Count: 2}, stats.TopReferrers[0])

	assert.Equal(t, int64(3), stats.Cookieless.Total)
	assert.Equal(t, analytics.MetricCountResult{Name: "/about", Count: 2}, stats.Cookieless.ByPath[0])
	assert.Equal(t, map[string]int64{"mobile": 2, "desktop": 1}, stats.Cookieless.ByDevice)
}

func TestComputeStatsEmptyWindow(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	tf, err := timeframe.ParsePeriod("today", "", "", time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	stats, err := analytics.ComputeStats(context.Background(), db, logger, tf, statsOptions())
	require.NoError(t, err)

	assert.Zero(t, stats.TotalSessions)
	assert.Zero(t, stats.BounceRate)
	assert.Zero(t, stats.CompletionRate)
	assert.Empty(t, stats.RecentVisits)
	assert.Equal(t, []timeframe.DateStat{{Date: "2024-06-10", Count: 0}}, stats.DailySessions)
	assert.Zero(t, stats.Cookieless.Total)
}

func TestComputeStatsWithoutCookielessTable(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	require.NoError(t, db.Migrator().DropTable(&events.BasicPageView{}))

	tf, err := timeframe.ParsePeriod("all", "", "", time.Now().UTC())
	require.NoError(t, err)

	stats, err := analytics.ComputeStats(context.Background(), db, logger, tf, statsOptions())
	require.NoError(t, err)
	assert.Zero(t, stats.Cookieless.Total)
	assert.Empty(t, stats.Cookieless.ByPath)
}
