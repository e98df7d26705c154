package events

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"folio/internal/models"
	"folio/internal/sessions"
)

// ScrollInput reports a raw scroll depth for a visit.
type ScrollInput struct {
	SessionID string
	VisitID   string
	Percent   float64
	Timestamp time.Time
}

// SectionInput reports dwell time on a named section.
type SectionInput struct {
	SessionID string
	VisitID   string
	Section   string
	DwellMs   int64
	Timestamp time.Time
}

// NormalizeMilestone maps a raw scroll percentage onto the nearest milestone.
// Input is clamped to [0, 100]; on a tie the lower milestone wins.
func NormalizeMilestone(percent float64) int {
	percent = math.Max(0, math.Min(100, percent))

	best := Milestones[0]
	bestDiff := math.Abs(percent - float64(best))
	for _, milestone := range Milestones[1:] {
		if diff := math.Abs(percent - float64(milestone)); diff < bestDiff {
			best, bestDiff = milestone, diff
		}
	}
	return best
}

// RecordScroll extends the session and stores the milestone reached by the
// visit. A milestone that is already recorded is accepted without a new row.
func RecordScroll(logger *slog.Logger, db *gorm.DB, input *ScrollInput, window time.Duration) (int, error) {
	if math.IsNaN(input.Percent) || math.IsInf(input.Percent, 0) {
		return 0, fmt.Errorf("%w: scroll percent must be a number", ErrInvalidInput)
	}
	now := timestampOrNow(input.Timestamp)

	if _, err := sessions.Touch(logger, db, input.SessionID, now, window); err != nil {
		return 0, err
	}

	milestone := NormalizeMilestone(input.Percent)
	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		visit, err := resolveVisit(tx, input.SessionID, input.VisitID)
		if err != nil {
			return err
		}

		event := &ScrollEvent{VisitID: visit.ID, Milestone: milestone, RecordedAt: now}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "visit_id"}, {Name: "milestone"}},
			DoNothing: true,
		}).Omit("Visit").Create(event).Error
		if err != nil {
			return fmt.Errorf("failed to store scroll milestone: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return milestone, nil
}

// RecordSection extends the session and appends a dwell event for the visit.
func RecordSection(logger *slog.Logger, db *gorm.DB, input *SectionInput, window time.Duration) error {
	section := strings.TrimSpace(input.Section)
	if section == "" || len(section) > MaxSectionLength {
		return fmt.Errorf("%w: section name must be 1-%d characters", ErrInvalidInput, MaxSectionLength)
	}
	if input.DwellMs < 0 {
		return fmt.Errorf("%w: negative dwell %d", ErrInvalidInput, input.DwellMs)
	}
	now := timestampOrNow(input.Timestamp)

	if _, err := sessions.Touch(logger, db, input.SessionID, now, window); err != nil {
		return err
	}

	return models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		visit, err := resolveVisit(tx, input.SessionID, input.VisitID)
		if err != nil {
			return err
		}

		event := &SectionEvent{VisitID: visit.ID, Section: section, DwellMs: input.DwellMs, RecordedAt: now}
		if err := tx.Omit("Visit").Create(event).Error; err != nil {
			return fmt.Errorf("failed to store section event: %w", err)
		}
		return nil
	})
}

func timestampOrNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}
