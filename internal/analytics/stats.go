package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"folio/internal/models"
	"folio/internal/pkg/async"
	"folio/internal/pkg/referrers"
	"folio/internal/timeframe"
	"folio/internal/visitors"
)

// StatsOptions tune a stats computation
type StatsOptions struct {
	Thresholds   Thresholds
	RecentVisits int
	TopReferrers int
	Workers      int
}

// RecentVisit is a visit as shown on the dashboard. The raw session token is
// replaced by a stable pseudonymous alias.
type RecentVisit struct {
	VisitID          string    `json:"visitId"`
	Visitor          string    `json:"visitor"`
	Path             string    `json:"path"`
	Referrer         string    `json:"referrer"`
	StartedAt        time.Time `json:"startedAt"`
	DurationMs       int64     `json:"durationMs"`
	MaxScrollPercent int       `json:"maxScrollPercent"`
	Device           string    `json:"device"`
	Browser          string    `json:"browser"`
}

// BasicSummary is the cookieless counter over the window
type BasicSummary struct {
	Total    int64               `json:"total"`
	ByPath   []MetricCountResult `json:"byPath"`
	ByDevice map[string]int64    `json:"byDevice"`
}

// Stats is the dashboard document
type Stats struct {
	Period    timeframe.Period `json:"period"`
	StartDate string           `json:"startDate"`
	EndDate   string           `json:"endDate"`

	Metrics
	BounceRate     float64 `json:"bounceRate"`
	CompletionRate float64 `json:"completionRate"`

	RecentVisits  []RecentVisit        `json:"recentVisits"`
	DailySessions []timeframe.DateStat `json:"dailySessions"`
	TopReferrers  []MetricCountResult  `json:"topReferrers"`
	Cookieless    BasicSummary         `json:"cookieless"`
	GeneratedAt   time.Time            `json:"generatedAt"`
}

// ComputeStats derives the dashboard document live from the raw tables for
// the window. Independent queries run concurrently on a bounded pool.
func ComputeStats(ctx context.Context, db *gorm.DB, logger *slog.Logger, tf *timeframe.TimeFrame, opts StatsOptions) (*Stats, error) {
	if opts.RecentVisits <= 0 {
		opts.RecentVisits = 20
	}
	if opts.TopReferrers <= 0 {
		opts.TopReferrers = 10
	}

	from, to := tf.From, tf.To
	tasks := []async.Task{
		{Name: "sessions", Execute: func(ctx context.Context) (interface{}, error) {
			return countSessions(db.WithContext(ctx), from, to)
		}},
		{Name: "visits", Execute: func(ctx context.Context) (interface{}, error) {
			return getVisitTotals(db.WithContext(ctx), from, to, opts.Thresholds)
		}},
		{Name: "scroll", Execute: func(ctx context.Context) (interface{}, error) {
			return getAvgScrollDepth(db.WithContext(ctx), from, to)
		}},
		{Name: "devices", Execute: func(ctx context.Context) (interface{}, error) {
			return getSessionBreakdown(db.WithContext(ctx), from, to, "device")
		}},
		{Name: "browsers", Execute: func(ctx context.Context) (interface{}, error) {
			return getSessionBreakdown(db.WithContext(ctx), from, to, "browser")
		}},
		{Name: "sections", Execute: func(ctx context.Context) (interface{}, error) {
			return getSectionMetrics(db.WithContext(ctx), from, to)
		}},
		{Name: "recent", Execute: func(ctx context.Context) (interface{}, error) {
			return getRecentVisits(db.WithContext(ctx), from, to, opts.RecentVisits)
		}},
		{Name: "trend", Execute: func(ctx context.Context) (interface{}, error) {
			return getDailySessions(db.WithContext(ctx), from, to)
		}},
		{Name: "referrers", Execute: func(ctx context.Context) (interface{}, error) {
			return getTopReferrers(db.WithContext(ctx), from, to, opts.TopReferrers)
		}},
		{Name: "cookieless", Execute: func(ctx context.Context) (interface{}, error) {
			return getBasicSummary(db.WithContext(ctx), logger, from, to)
		}},
	}

	results := async.NewPool(opts.Workers).Execute(ctx, tasks)
	for _, task := range tasks {
		result, ok := results[task.Name]
		if !ok {
			return nil, fmt.Errorf("stats query %s did not run", task.Name)
		}
		if result.Err != nil {
			logger.Error("Stats query failed", slog.String("query", task.Name), slog.Any("error", result.Err))
			return nil, result.Err
		}
	}

	totals := results["visits"].Data.(visitTotals)
	stats := &Stats{
		Period:    tf.Label,
		StartDate: tf.From.Format(timeframe.DateLayout),
		EndDate:   tf.To.AddDate(0, 0, -1).Format(timeframe.DateLayout),
		Metrics: Metrics{
			TotalSessions:         results["sessions"].Data.(int64),
			TotalVisits:           totals.Visits,
			AvgScrollDepthPercent: round2(results["scroll"].Data.(float64)),
			AvgVisitDurationMs:    round2(totals.AvgDurationMs),
			DeviceBreakdown:       results["devices"].Data.(map[string]int64),
			BrowserBreakdown:      results["browsers"].Data.(map[string]int64),
			BounceCount:           totals.BounceCount,
			CompletedCount:        totals.CompletedCount,
			SectionMetrics:        results["sections"].Data.(map[string]SectionMetric),
		},
		BounceRate:     rate(totals.BounceCount, totals.Visits),
		CompletionRate: rate(totals.CompletedCount, totals.Visits),
		RecentVisits:   results["recent"].Data.([]RecentVisit),
		DailySessions:  tf.BuildDailySeries(results["trend"].Data.([]timeframe.DateStat)),
		TopReferrers:   results["referrers"].Data.([]MetricCountResult),
		Cookieless:     results["cookieless"].Data.(BasicSummary),
		GeneratedAt:    time.Now().UTC(),
	}
	if tf.Label == timeframe.PeriodAll && len(stats.DailySessions) > 0 {
		stats.StartDate = stats.DailySessions[0].Date
	}

	return stats, nil
}

// rate is part/total as a percentage with two decimals, 0 when total is 0
func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func getRecentVisits(db *gorm.DB, from, to time.Time, limit int) ([]RecentVisit, error) {
	var rows []struct {
		PublicID   string
		SessionID  string
		Path       string
		Referrer   string
		StartedAt  time.Time
		DurationMs int64
		MaxScroll  int
		Device     string
		Browser    string
	}

	query := `
    SELECT
        v.public_id, v.session_id, v.path, v.referrer, v.started_at, v.duration_ms,
        COALESCE((SELECT MAX(se.milestone) FROM scroll_events se WHERE se.visit_id = v.id), 0) AS max_scroll,
        s.device, s.browser
    FROM visits v
    JOIN sessions s ON s.id = v.session_id
    WHERE ` + sessionRange + `
    ORDER BY v.started_at DESC, v.id DESC
    LIMIT ?`

	if err := db.Raw(query, from.UTC(), to.UTC(), limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching recent visits: %w", err)
	}

	visits := make([]RecentVisit, len(rows))
	for i, row := range rows {
		visits[i] = RecentVisit{
			VisitID:          row.PublicID,
			Visitor:          visitors.VisitorAlias(row.SessionID),
			Path:             row.Path,
			Referrer:         referrers.FromURL(row.Referrer),
			StartedAt:        row.StartedAt.UTC(),
			DurationMs:       row.DurationMs,
			MaxScrollPercent: row.MaxScroll,
			Device:           row.Device,
			Browser:          row.Browser,
		}
	}
	return visits, nil
}

func getDailySessions(db *gorm.DB, from, to time.Time) ([]timeframe.DateStat, error) {
	var points []timeframe.DateStat

	query := `
    SELECT strftime('%Y-%m-%d', s.created_at) AS date, COUNT(*) AS count
    FROM sessions s
    WHERE ` + sessionRange + `
    GROUP BY date
    ORDER BY date`

	if err := db.Raw(query, from.UTC(), to.UTC()).Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("error fetching daily sessions: %w", err)
	}
	return points, nil
}

// getTopReferrers groups visits by the display name of their referrer
func getTopReferrers(db *gorm.DB, from, to time.Time, limit int) ([]MetricCountResult, error) {
	var rows []MetricCountResult

	query := `
    SELECT COALESCE(v.referrer, '') AS name, COUNT(*) AS count
    FROM visits v
    JOIN sessions s ON s.id = v.session_id
    WHERE ` + sessionRange + `
    GROUP BY v.referrer`

	if err := db.Raw(query, from.UTC(), to.UTC()).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching referrers: %w", err)
	}

	merged := make(map[string]int64)
	for _, row := range rows {
		merged[referrers.FromURL(row.Name)] += row.Count
	}
	return topN(merged, limit), nil
}

// getBasicSummary reads the cookieless counters. A missing table reads as empty.
func getBasicSummary(db *gorm.DB, logger *slog.Logger, from, to time.Time) (BasicSummary, error) {
	summary := BasicSummary{ByPath: []MetricCountResult{}, ByDevice: map[string]int64{}}
	fromDate := from.UTC().Format(timeframe.DateLayout)
	toDate := to.UTC().Format(timeframe.DateLayout)

	var byPath []MetricCountResult
	err := db.Raw(`
    SELECT path AS name, SUM(count) AS count
    FROM basic_page_views
    WHERE date >= ? AND date < ?
    GROUP BY path
    ORDER BY count DESC, path ASC`, fromDate, toDate).Scan(&byPath).Error
	if models.IsMissingTable(err) {
		logger.Warn("Cookieless table missing, reporting empty summary")
		return summary, nil
	}
	if err != nil {
		return summary, fmt.Errorf("error fetching cookieless paths: %w", err)
	}

	var byDevice []MetricCountResult
	err = db.Raw(`
    SELECT device AS name, SUM(count) AS count
    FROM basic_page_views
    WHERE date >= ? AND date < ?
    GROUP BY device`, fromDate, toDate).Scan(&byDevice).Error
	if err != nil {
		return summary, fmt.Errorf("error fetching cookieless devices: %w", err)
	}

	summary.ByPath = append(summary.ByPath, byPath...)
	for _, row := range byPath {
		summary.Total += row.Count
	}
	for _, row := range byDevice {
		summary.ByDevice[row.Name] = row.Count
	}
	return summary, nil
}

func topN(counts map[string]int64, limit int) []MetricCountResult {
	results := make([]MetricCountResult, 0, len(counts))
	for name, count := range counts {
		results = append(results, MetricCountResult{Name: name, Count: count})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Name < results[j].Name
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
