// Package seeder fills a database with synthetic portfolio traffic for local
// dashboards and load checks. Data goes through the regular ingestion functions
// so sessions, milestones and counters follow the same rules as real beacons.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"folio/internal/events"
)

// Seeder generates sessions spread over the last Days days
type Seeder struct {
	DBManager    cartridge.DBManager
	Logger       *slog.Logger
	SessionCount int
	Days         int
	Window       time.Duration
	Now          func() time.Time

	rng *rand.Rand
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, sessionCount, days int, window time.Duration) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if days <= 0 {
		days = 1
	}
	return &Seeder{
		DBManager:    dbManager,
		Logger:       logger,
		SessionCount: sessionCount,
		Days:         days,
		Window:       window,
		Now:          time.Now,
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

var journeyTemplates = [][]string{
	{"/"},
	{"/", "/about"},
	{"/", "/work", "/work/case-study-1"},
	{"/", "/work", "/work/case-study-2", "/contact"},
	{"/blog", "/blog/go-retention-jobs", "/about"},
	{"/work/case-study-1", "/about", "/contact"},
	{"/", "/blog", "/blog/sqlite-in-production"},
}

var sectionNames = []string{"hero", "projects", "skills", "testimonials", "contact-form"}

// Run generates SessionCount sessions and one cookieless ping per visit
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	db := s.DBManager.GetConnection()
	userAgents := getUserAgents()
	referrers := getReferrers()
	now := s.Now().UTC()

	s.Logger.Info("Seeding sessions...",
		slog.Int("sessions", s.SessionCount),
		slog.Int("days", s.Days))

	visits := 0
	for i := 0; i < s.SessionCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		sessionID := "seed-" + strconv.FormatInt(now.UnixNano(), 36) + "-" + strconv.Itoa(i)
		at := now.Add(-time.Duration(s.rng.Int64N(int64(s.Days) * int64(24*time.Hour))))
		userAgent := userAgents[s.rng.IntN(len(userAgents))]
		journey := journeyTemplates[s.rng.IntN(len(journeyTemplates))]

		for step, path := range journey {
			referrer := ""
			if step == 0 {
				referrer = referrers[s.rng.IntN(len(referrers))]
			}

			visit, _, err := events.RecordVisit(s.Logger, db, &events.VisitInput{
				SessionID: sessionID,
				Path:      path,
				Referrer:  referrer,
				UserAgent: userAgent,
				Timestamp: at,
			}, s.Window)
			if err != nil {
				return fmt.Errorf("failed to seed visit %s: %w", path, err)
			}
			visits++

			durationMs, err := s.seedEngagement(db, sessionID, visit.PublicID, at)
			if err != nil {
				return err
			}

			if err := events.RecordBasicPageView(s.Logger, db, path, deviceLabel(userAgent), at); err != nil {
				return fmt.Errorf("failed to seed cookieless ping: %w", err)
			}

			at = at.Add(time.Duration(durationMs) * time.Millisecond)
		}
	}

	s.Logger.Info("Seeding completed",
		slog.Int("sessions", s.SessionCount),
		slog.Int("visits", visits),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// seedEngagement records scroll milestones, a few section dwells and the end
// of the visit, returning the visit duration.
func (s *Seeder) seedEngagement(db *gorm.DB, sessionID, visitID string, at time.Time) (int64, error) {
	// Short bounces and long reads both show up on a portfolio
	durationMs := int64(2000 + s.rng.IntN(120000))
	maxScroll := s.rng.Float64() * 100

	for _, milestone := range events.Milestones {
		if float64(milestone) > maxScroll+12.5 {
			break
		}
		_, err := events.RecordScroll(s.Logger, db, &events.ScrollInput{
			SessionID: sessionID,
			VisitID:   visitID,
			Percent:   float64(milestone),
			Timestamp: at.Add(time.Duration(milestone) * 100 * time.Millisecond),
		}, s.Window)
		if err != nil {
			return 0, fmt.Errorf("failed to seed scroll: %w", err)
		}
	}

	for i := 0; i < s.rng.IntN(3); i++ {
		err := events.RecordSection(s.Logger, db, &events.SectionInput{
			SessionID: sessionID,
			VisitID:   visitID,
			Section:   sectionNames[s.rng.IntN(len(sectionNames))],
			DwellMs:   int64(500 + s.rng.IntN(15000)),
			Timestamp: at.Add(time.Second),
		}, s.Window)
		if err != nil {
			return 0, fmt.Errorf("failed to seed section: %w", err)
		}
	}

	_, err := events.EndVisit(s.Logger, db, &events.EndInput{
		SessionID:  sessionID,
		VisitID:    visitID,
		DurationMs: durationMs,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to seed visit end: %w", err)
	}
	return durationMs, nil
}

func deviceLabel(userAgent string) string {
	switch {
	case containsAny(userAgent, "iPad", "Tablet"):
		return events.BasicDeviceTablet
	case containsAny(userAgent, "iPhone", "Android", "Mobile"):
		return events.BasicDeviceMobile
	default:
		return events.BasicDeviceDesktop
	}
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.61",
	}
}

func getReferrers() []string {
	return []string{
		"",
		"",
		"https://www.google.com/",
		"https://www.linkedin.com/feed/",
		"https://github.com/someone",
		"https://news.ycombinator.com/item?id=1",
		"https://t.co/abc",
	}
}
