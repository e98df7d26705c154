package http_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/testsupport"
)

const dashboardPassword = "portfolio-secret"

func setupStatsApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	cfg := config.GetConfig()
	previous := cfg.DashboardPassword
	cfg.DashboardPassword = dashboardPassword
	t.Cleanup(func() { cfg.DashboardPassword = previous })

	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	return testsupport.CreateMinimalTestApp(t, db), db
}

func TestStatsIndexAction(t *testing.T) {
	app, db := setupStatsApp(t)

	now := time.Now().UTC()
	session := testsupport.CreateSession(t, db, "stats-s1", now.Add(-time.Minute), now.Add(29*time.Minute))
	visit := testsupport.CreateVisit(t, db, session.ID, "/home", now.Add(-time.Minute), 45000)
	testsupport.CreateScroll(t, db, visit, 25, now)
	testsupport.CreateScroll(t, db, visit, 100, now)

	t.Run("rejects missing password", func(t *testing.T) {
		resp := testsupport.DoJSON(t, app, "GET", "/analytics/stats?period=today", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		resp := testsupport.DoJSON(t, app, "GET", "/analytics/stats?period=today&password=nope", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects unknown period", func(t *testing.T) {
		resp := testsupport.DoJSON(t, app, "GET", "/analytics/stats?period=decade&password="+dashboardPassword, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PERIOD", testsupport.DecodeJSON(t, resp)["code"])
	})

	t.Run("returns stats for today", func(t *testing.T) {
		resp := testsupport.DoJSON(t, app, "GET", "/analytics/stats?period=today&password="+dashboardPassword, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := testsupport.DecodeJSON(t, resp)
		assert.Equal(t, "today", body["period"])
		assert.Equal(t, float64(1), body["totalSessions"])
		assert.Equal(t, float64(1), body["totalVisits"])
		assert.Equal(t, 62.5, body["avgScrollDepthPercent"])
		assert.Equal(t, float64(100), body["completionRate"])

		recent, ok := body["recentVisits"].([]any)
		require.True(t, ok)
		require.Len(t, recent, 1)
		assert.NotContains(t, recent[0].(map[string]any)["visitor"], "stats-s1")
	})
}

func TestAggregatesIndexAction(t *testing.T) {
	app, db := setupStatsApp(t)

	require.NoError(t, db.Create(&analytics.DailyAggregate{Date: "2024-06-03", ComputedAt: time.Now().UTC()}).Error)
	require.NoError(t, db.Create(&analytics.DailyAggregate{Date: "2024-07-01", ComputedAt: time.Now().UTC()}).Error)

	resp := testsupport.DoJSON(t, app, "GET",
		"/analytics/aggregates?period=custom&startDate=2024-06-01&endDate=2024-06-30&password="+dashboardPassword, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := testsupport.DecodeJSON(t, resp)
	assert.Equal(t, "2024-06-01", body["startDate"])
	assert.Equal(t, "2024-06-30", body["endDate"])
	rows, ok := body["aggregates"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-06-03", rows[0].(map[string]any)["date"])
}

func TestHealthIndexAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	app := testsupport.CreateMinimalTestApp(t, dbManager.GetConnection())

	resp := testsupport.DoJSON(t, app, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := testsupport.DecodeJSON(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db_status"])
	assert.NotEmpty(t, body["timestamp"])
}
