// Package sessions owns the anonymous browsing sessions that tracked visits hang off.
// A session is identified by an opaque token minted by the browser and expires on a
// sliding window that every tracked event extends.
package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"folio/internal/models"
	ua "folio/internal/pkg/user_agent"
)

// MaxIDLength bounds the client supplied token
const MaxIDLength = 128

var (
	// ErrSessionNotFound is returned when no session exists for a token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned for a known token whose sliding window has lapsed.
	// The client is expected to mint a new token.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidSessionID is returned for empty or malformed tokens.
	ErrInvalidSessionID = errors.New("invalid session id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Session is one anonymous browsing unit.
type Session struct {
	ID             string    `gorm:"primaryKey;size:128"`
	CreatedAt      time.Time `gorm:"index;not null"`
	LastActivityAt time.Time `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"index;not null"`
	Device         string    `gorm:"index;size:16;not null"`
	Browser        string    `gorm:"index;size:16;not null"`
}

// IsValidAt reports whether the session is still inside its window at now.
func (s *Session) IsValidAt(now time.Time) bool {
	return !now.After(s.ExpiresAt)
}

// extend slides the expiry forward from now; expiry always equals last activity plus window.
func (s *Session) extend(now time.Time, window time.Duration) {
	s.LastActivityAt = now
	s.ExpiresAt = now.Add(window)
}

// ValidateID checks the shape of a client supplied token.
func ValidateID(id string) error {
	if id == "" || len(id) > MaxIDLength || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// Find loads a session by token regardless of expiry.
func Find(db *gorm.DB, id string) (*Session, error) {
	var session Session
	if err := db.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Validate reports whether a session exists and is unexpired at now. It never
// mutates the session.
func Validate(db *gorm.DB, id string, now time.Time) (bool, error) {
	session, err := Find(db, id)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return session.IsValidAt(now), nil
}

// GetOrCreate extends an unexpired session, refuses an expired one with
// ErrSessionExpired, and creates a new one for an unknown token using the coarse
// device and browser classification of userAgent.
func GetOrCreate(logger *slog.Logger, db *gorm.DB, id, userAgent string, now time.Time, window time.Duration) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	now = now.UTC()

	var result *Session
	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		session, err := Find(tx, id)
		if errors.Is(err, ErrSessionNotFound) {
			parsed := ua.ParseUserAgent(userAgent)
			session = &Session{
				ID:      id,
				Device:  parsed.Device,
				Browser: parsed.Browser,
			}
			session.CreatedAt = now
			session.extend(now, window)

			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(session)
			if res.Error != nil {
				return fmt.Errorf("failed to create session: %w", res.Error)
			}
			if res.RowsAffected == 1 {
				result = session
				return nil
			}
			// Lost a creation race, fall through to the existing row
			session, err = Find(tx, id)
		}
		if err != nil {
			return err
		}

		if !session.IsValidAt(now) {
			return ErrSessionExpired
		}

		session.extend(now, window)
		if err := saveActivity(tx, session); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Touch extends an unexpired session. Unknown and expired tokens are reported
// with ErrSessionNotFound and ErrSessionExpired; nothing is created or revived.
func Touch(logger *slog.Logger, db *gorm.DB, id string, now time.Time, window time.Duration) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	now = now.UTC()

	var result *Session
	err := models.PerformWrite(logger, db, func(tx *gorm.DB) error {
		session, err := Find(tx, id)
		if err != nil {
			return err
		}
		if !session.IsValidAt(now) {
			return ErrSessionExpired
		}

		session.extend(now, window)
		if err := saveActivity(tx, session); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func saveActivity(tx *gorm.DB, session *Session) error {
	err := tx.Model(&Session{}).Where("id = ?", session.ID).Updates(map[string]interface{}{
		"last_activity_at": session.LastActivityAt,
		"expires_at":       session.ExpiresAt,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}
