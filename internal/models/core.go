// Package models holds storage helpers shared by the domain packages.
package models

import (
	"log/slog"
	"strings"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// PerformWrite executes a write transaction with retry logic for SQLite busy errors.
// It delegates to cartridge's sqlite.PerformWrite and hands the error returned by f
// back untouched, so callers can match sentinel errors with errors.Is.
func PerformWrite(logger *slog.Logger, dbConn *gorm.DB, f func(tx *gorm.DB) error) error {
	var fnErr error
	err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		fnErr = f(tx)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

// IsMissingTable reports whether err comes from querying a table that has not
// been migrated yet.
func IsMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// IsDatabaseBusy reports whether err is SQLite refusing the statement because
// another connection holds the lock.
func IsDatabaseBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
