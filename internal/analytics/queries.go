package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// All range queries scope rows by the creation time of the owning session,
// [from, to) in UTC.
const sessionRange = "s.created_at >= ? AND s.created_at < ?"

type visitTotals struct {
	Visits         int64
	AvgDurationMs  float64
	BounceCount    int64
	CompletedCount int64
}

func countSessions(db *gorm.DB, from, to time.Time) (int64, error) {
	var count int64
	err := db.Raw(`SELECT COUNT(*) FROM sessions s WHERE `+sessionRange, from.UTC(), to.UTC()).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting sessions: %w", err)
	}
	return count, nil
}

// getVisitTotals counts visits and classifies them. Only ended visits
// (duration > 0) take part in the mean duration and the bounce count.
func getVisitTotals(db *gorm.DB, from, to time.Time, th Thresholds) (visitTotals, error) {
	var totals visitTotals

	query := `
    SELECT
        COUNT(*) AS visits,
        COALESCE(AVG(CASE WHEN v.duration_ms > 0 THEN v.duration_ms END), 0) AS avg_duration_ms,
        COALESCE(SUM(CASE WHEN v.duration_ms > 0 AND v.duration_ms < ? THEN 1 ELSE 0 END), 0) AS bounce_count,
        COALESCE(SUM(CASE
            WHEN v.duration_ms > ? THEN 1
            WHEN EXISTS (SELECT 1 FROM scroll_events se WHERE se.visit_id = v.id AND se.milestone = 100) THEN 1
            ELSE 0
        END), 0) AS completed_count
    FROM visits v
    JOIN sessions s ON s.id = v.session_id
    WHERE ` + sessionRange

	err := db.Raw(query, th.BounceMs, th.CompletionMs, from.UTC(), to.UTC()).Scan(&totals).Error
	if err != nil {
		return visitTotals{}, fmt.Errorf("error fetching visit totals: %w", err)
	}
	return totals, nil
}

func getAvgScrollDepth(db *gorm.DB, from, to time.Time) (float64, error) {
	var result struct {
		AvgDepth float64
	}

	query := `
    SELECT COALESCE(AVG(se.milestone), 0) AS avg_depth
    FROM scroll_events se
    JOIN visits v ON v.id = se.visit_id
    JOIN sessions s ON s.id = v.session_id
    WHERE ` + sessionRange

	if err := db.Raw(query, from.UTC(), to.UTC()).Scan(&result).Error; err != nil {
		return 0, fmt.Errorf("error fetching scroll depth: %w", err)
	}
	return result.AvgDepth, nil
}

// getSessionBreakdown counts sessions per value of a classification column
func getSessionBreakdown(db *gorm.DB, from, to time.Time, column string) (map[string]int64, error) {
	if column != "device" && column != "browser" {
		return nil, fmt.Errorf("unsupported breakdown column %q", column)
	}

	var rows []MetricCountResult
	query := fmt.Sprintf(`
    SELECT s.%[1]s AS name, COUNT(*) AS count
    FROM sessions s
    WHERE %[2]s
    GROUP BY s.%[1]s`, column, sessionRange)

	if err := db.Raw(query, from.UTC(), to.UTC()).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching %s breakdown: %w", column, err)
	}

	breakdown := make(map[string]int64, len(rows))
	for _, row := range rows {
		breakdown[row.Name] = row.Count
	}
	return breakdown, nil
}

func getSectionMetrics(db *gorm.DB, from, to time.Time) (map[string]SectionMetric, error) {
	var rows []struct {
		Section       string
		Views         int64
		AvgDurationMs float64
	}

	query := `
    SELECT se.section AS section, COUNT(*) AS views, COALESCE(AVG(se.dwell_ms), 0) AS avg_duration_ms
    FROM section_events se
    JOIN visits v ON v.id = se.visit_id
    JOIN sessions s ON s.id = v.session_id
    WHERE ` + sessionRange + `
    GROUP BY se.section`

	if err := db.Raw(query, from.UTC(), to.UTC()).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching section metrics: %w", err)
	}

	metrics := make(map[string]SectionMetric, len(rows))
	for _, row := range rows {
		metrics[row.Section] = SectionMetric{Views: row.Views, AvgDurationMs: row.AvgDurationMs}
	}
	return metrics, nil
}

// computeMetrics builds the full metrics block for sessions created in
// [from, to). It returns nil when there are no such sessions.
func computeMetrics(db *gorm.DB, from, to time.Time, th Thresholds) (*Metrics, error) {
	sessionCount, err := countSessions(db, from, to)
	if err != nil {
		return nil, err
	}
	if sessionCount == 0 {
		return nil, nil
	}

	totals, err := getVisitTotals(db, from, to, th)
	if err != nil {
		return nil, err
	}
	avgScroll, err := getAvgScrollDepth(db, from, to)
	if err != nil {
		return nil, err
	}
	devices, err := getSessionBreakdown(db, from, to, "device")
	if err != nil {
		return nil, err
	}
	browsers, err := getSessionBreakdown(db, from, to, "browser")
	if err != nil {
		return nil, err
	}
	sections, err := getSectionMetrics(db, from, to)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		TotalSessions:         sessionCount,
		TotalVisits:           totals.Visits,
		AvgScrollDepthPercent: avgScroll,
		AvgVisitDurationMs:    totals.AvgDurationMs,
		DeviceBreakdown:       devices,
		BrowserBreakdown:      browsers,
		BounceCount:           totals.BounceCount,
		CompletedCount:        totals.CompletedCount,
		SectionMetrics:        sections,
	}, nil
}
