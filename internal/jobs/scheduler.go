package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"

	"folio/internal/config"
)

// Scheduler runs the retention job once a day at a fixed UTC hour. It
// implements cartridge.BackgroundWorker.
type Scheduler struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.Config
	wg        sync.WaitGroup

	mu        sync.Mutex
	isRunning bool

	retentionJob *RetentionJob
	now          func() time.Time
}

func NewScheduler(dbManager cartridge.DBManager, logger *slog.Logger) (*Scheduler, error) {
	cfg := config.GetConfig()
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		dbManager:    dbManager,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		cfg:          cfg,
		retentionJob: NewRetentionJob(dbManager, logger, cfg),
		now:          time.Now,
	}, nil
}

// NextRunAt returns the first occurrence of hour:00 UTC strictly after now
func NextRunAt(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the daily loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}
	s.isRunning = true

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("Background jobs started",
		slog.Int("retention_hour_utc", s.cfg.RetentionRunHourUTC),
		slog.Duration("retry_backoff", s.cfg.RetentionRetryBackoff()))
	return nil
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	for {
		next := NextRunAt(s.now(), s.cfg.RetentionRunHourUTC)
		s.logger.Info("Next retention cycle scheduled", slog.Time("at", next))
		if !s.sleep(time.Until(next)) {
			s.logger.Info("Retention job stopped")
			return
		}

		// A cycle that could not run is retried after the backoff until it
		// does, then the daily schedule resumes.
		for {
			err := s.RunRetention()
			if err == nil {
				break
			}
			backoff := s.cfg.RetentionRetryBackoff()
			s.logger.Error("Retention cycle failed, retrying after backoff",
				slog.Any("error", err),
				slog.Duration("backoff", backoff))
			if !s.sleep(backoff) {
				s.logger.Info("Retention job stopped")
				return
			}
		}
	}
}

// sleep waits for d and reports false if the scheduler was stopped meanwhile
func (s *Scheduler) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// RunRetention executes one retention cycle now. Panics and cycle-level
// failures are returned as errors; failed steps only show up in the report,
// metrics and logs, and wait for the next scheduled cycle.
func (s *Scheduler) RunRetention() (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", "retention"),
				slog.Any("panic", r))
			err = fmt.Errorf("retention panic: %v", r)
		}
	}()

	report, err := s.retentionJob.Run(s.now())
	if err != nil {
		return err
	}
	if report.Failed() {
		s.logger.Warn("Retention cycle finished with failed steps",
			slog.String("status", report.Status()))
	}
	return nil
}

// Stop cancels the pending sleep and waits for the loop to exit.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether the daily loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
