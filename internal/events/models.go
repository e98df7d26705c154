package events

import (
	"time"

	"folio/internal/sessions"
)

// Visit is one page view inside a session. DurationMs stays 0 until the client
// reports the end of the visit.
type Visit struct {
	ID         uint              `gorm:"primaryKey;autoIncrement" json:"-"`
	PublicID   string            `gorm:"uniqueIndex;size:36;not null" json:"visitId"`
	SessionID  string            `gorm:"index;size:128;not null" json:"sessionId"`
	Session    *sessions.Session `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Path       string            `gorm:"index;size:2048;not null" json:"path"`
	Referrer   string            `gorm:"size:2048" json:"referrer,omitempty"`
	StartedAt  time.Time         `gorm:"index;not null" json:"startedAt"`
	DurationMs int64             `gorm:"not null;default:0" json:"durationMs"`
}

// ScrollEvent records that a visit reached a scroll milestone. There is at most
// one row per (visit, milestone).
type ScrollEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	VisitID    uint      `gorm:"uniqueIndex:idx_scroll_visit_milestone;not null"`
	Visit      *Visit    `gorm:"constraint:OnDelete:CASCADE"`
	Milestone  int       `gorm:"uniqueIndex:idx_scroll_visit_milestone;not null"`
	RecordedAt time.Time `gorm:"not null"`
}

// SectionEvent records time spent on a named section of a page.
type SectionEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	VisitID    uint      `gorm:"index;not null"`
	Visit      *Visit    `gorm:"constraint:OnDelete:CASCADE"`
	Section    string    `gorm:"index;size:100;not null"`
	DwellMs    int64     `gorm:"not null"`
	RecordedAt time.Time `gorm:"not null"`
}

// BasicPageView is the cookieless counter keyed by (date, path, device).
type BasicPageView struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Date      string    `gorm:"uniqueIndex:idx_basic_date_path_device;size:10;not null"`
	Path      string    `gorm:"uniqueIndex:idx_basic_date_path_device;size:2048;not null"`
	Device    string    `gorm:"uniqueIndex:idx_basic_date_path_device;size:16;not null"`
	Count     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}
