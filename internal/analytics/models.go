package analytics

import "time"

// MetricCountResult is a generic name/count pair used by breakdowns and top lists
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// SectionMetric summarises dwell events of one page section
type SectionMetric struct {
	Views         int64   `json:"views"`
	AvgDurationMs float64 `json:"avgDurationMs"`
}

// Metrics is the block shared by daily and weekly rollups and by live stats
type Metrics struct {
	TotalSessions         int64                    `gorm:"not null;default:0" json:"totalSessions"`
	TotalVisits           int64                    `gorm:"not null;default:0" json:"totalVisits"`
	AvgScrollDepthPercent float64                  `gorm:"not null;default:0" json:"avgScrollDepthPercent"`
	AvgVisitDurationMs    float64                  `gorm:"not null;default:0" json:"avgVisitDurationMs"`
	DeviceBreakdown       map[string]int64         `gorm:"serializer:json;type:text" json:"deviceBreakdown"`
	BrowserBreakdown      map[string]int64         `gorm:"serializer:json;type:text" json:"browserBreakdown"`
	BounceCount           int64                    `gorm:"not null;default:0" json:"bounceCount"`
	CompletedCount        int64                    `gorm:"not null;default:0" json:"completedCount"`
	SectionMetrics        map[string]SectionMetric `gorm:"serializer:json;type:text" json:"sectionMetrics"`
}

// DailyAggregate is the immutable rollup of the sessions created on one UTC day
type DailyAggregate struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	Date       string `gorm:"uniqueIndex;size:10;not null" json:"date"`
	Metrics    `gorm:"embedded"`
	ComputedAt time.Time `gorm:"not null" json:"computedAt"`
}

// WeeklyAggregate is the immutable rollup of one Monday-start ISO week
type WeeklyAggregate struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	Year       int    `gorm:"uniqueIndex:idx_weekly_year_week;not null" json:"year"`
	Week       int    `gorm:"uniqueIndex:idx_weekly_year_week;not null" json:"week"`
	WeekStart  string `gorm:"index;size:10;not null" json:"weekStart"`
	Metrics    `gorm:"embedded"`
	ComputedAt time.Time `gorm:"not null" json:"computedAt"`
}

// Thresholds classify ended visits as bounced or completed
type Thresholds struct {
	BounceMs     int64
	CompletionMs int64
}

// DefaultThresholds: under 10s bounces, over 60s completes
func DefaultThresholds() Thresholds {
	return Thresholds{BounceMs: 10000, CompletionMs: 60000}
}
