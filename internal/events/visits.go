package events

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"folio/internal/models"
	ua "folio/internal/pkg/user_agent"
	"folio/internal/sessions"
	"folio/internal/settings"
)

// VisitInput is a page view reported by the browser.
type VisitInput struct {
	SessionID string
	Path      string
	Referrer  string
	UserAgent string
	IPAddress string
	Timestamp time.Time
}

// EndInput reports the total duration of a visit.
type EndInput struct {
	SessionID  string
	VisitID    string
	DurationMs int64
}

// RecordVisit gets or creates the session and appends a visit to it. Bots and
// excluded addresses are reported with ErrBotTraffic and ErrExcludedIP and
// nothing is stored for them.
func RecordVisit(logger *slog.Logger, db *gorm.DB, input *VisitInput, window time.Duration) (*Visit, *sessions.Session, error) {
	if ua.ParseUserAgent(input.UserAgent).Bot {
		logger.Debug("Skipping visit from bot", slog.String("user_agent", input.UserAgent))
		return nil, nil, ErrBotTraffic
	}

	excluded, err := settings.IsIPExcluded(input.IPAddress)
	if err != nil {
		logger.Error("Error checking IP exclusion", slog.Any("error", err))
	} else if excluded {
		logger.Debug("Skipping visit for excluded IP", slog.String("ip", input.IPAddress))
		return nil, nil, ErrExcludedIP
	}

	path, err := NormalizePath(input.Path)
	if err != nil {
		return nil, nil, err
	}

	now := timestampOrNow(input.Timestamp)

	session, err := sessions.GetOrCreate(logger, db, input.SessionID, input.UserAgent, now, window)
	if err != nil {
		return nil, nil, err
	}

	publicID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate visit id: %w", err)
	}

	visit := &Visit{
		PublicID:  publicID.String(),
		SessionID: session.ID,
		Path:      path,
		Referrer:  normalizeReferrer(input.Referrer),
		StartedAt: now,
	}

	err = models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Omit("Session").Create(visit).Error
	})
	if err != nil {
		logger.Error("Failed to store visit", slog.String("session_id", session.ID), slog.Any("error", err))
		return nil, nil, fmt.Errorf("failed to store visit: %w", err)
	}

	return visit, session, nil
}

// EndVisit stores the reported duration on the visit. A repeated report
// overwrites the previous one. The session is neither required to be valid nor
// extended, beacons routinely arrive after it lapsed.
func EndVisit(logger *slog.Logger, db *gorm.DB, input *EndInput) (*Visit, error) {
	if err := sessions.ValidateID(input.SessionID); err != nil {
		return nil, err
	}
	if input.DurationMs < 0 {
		return nil, fmt.Errorf("%w: negative duration %d", ErrInvalidInput, input.DurationMs)
	}

	var visit *Visit
	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		found, err := resolveVisit(tx, input.SessionID, input.VisitID)
		if err != nil {
			return err
		}
		if err := tx.Model(&Visit{}).Where("id = ?", found.ID).Update("duration_ms", input.DurationMs).Error; err != nil {
			return fmt.Errorf("failed to end visit: %w", err)
		}
		found.DurationMs = input.DurationMs
		visit = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return visit, nil
}

// FindVisit resolves a visit of the session. With a public visit id the visit
// must belong to the session; without one the latest visit of the session is used.
func FindVisit(db *gorm.DB, sessionID, visitID string) (*Visit, error) {
	return resolveVisit(db, sessionID, visitID)
}

func resolveVisit(tx *gorm.DB, sessionID, visitID string) (*Visit, error) {
	var visit Visit
	query := tx.Where("session_id = ?", sessionID)
	if visitID != "" {
		query = query.Where("public_id = ?", visitID)
	} else {
		query = query.Order("started_at DESC").Order("id DESC")
	}

	if err := query.First(&visit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVisitNotFound
		}
		return nil, fmt.Errorf("failed to resolve visit: %w", err)
	}
	return &visit, nil
}

// NormalizePath strips the query string and fragment from a page path and
// ensures it is rooted.
func NormalizePath(raw string) (string, error) {
	path := strings.TrimSpace(raw)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "", fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > MaxPathLength {
		return "", fmt.Errorf("%w: path longer than %d", ErrInvalidInput, MaxPathLength)
	}
	return path, nil
}

func normalizeReferrer(raw string) string {
	referrer := strings.TrimSpace(raw)
	if len(referrer) > MaxPathLength {
		referrer = referrer[:MaxPathLength]
	}
	return referrer
}
