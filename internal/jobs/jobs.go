package jobs

import (
	"log/slog"

	"folio/internal/database"
)

// Jobs is an alias for Scheduler
type Jobs = Scheduler

// NewJobs creates the background scheduler backed by the application database
func NewJobs(dbManager *database.DBManager, logger *slog.Logger) (*Jobs, error) {
	return NewScheduler(dbManager, logger)
}
