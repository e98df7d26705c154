// main.go - Admin control tool for folio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"folio/internal"
	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/jobs"
	"folio/internal/seeder"
	"folio/internal/settings"
	"folio/internal/timeframe"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&AggregateCommand{},
	&AggregateWeekCommand{},
	&RetentionCommand{},
	&SeedCommand{},
	&HashPasswordCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	var app *internal.Application
	if needsApp(cmd) {
		var err error
		app, err = internal.NewApp()
		if err != nil {
			log.Fatalf("Failed to initialize app: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}()
	}

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// needsApp reports whether the command touches the database
func needsApp(cmd Command) bool {
	switch cmd.(type) {
	case *HashPasswordCommand, *HelpCommand:
		return false
	default:
		return true
	}
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// parseDateArg reads an optional YYYY-MM-DD argument, defaulting to yesterday
func parseDateArg(args []string) (time.Time, error) {
	if len(args) == 0 {
		return timeframe.DayStart(time.Now()).AddDate(0, 0, -1), nil
	}
	day, err := time.ParseInLocation(timeframe.DateLayout, args[0], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
	}
	return day, nil
}

func thresholds() analytics.Thresholds {
	cfg := config.GetConfig()
	return analytics.Thresholds{
		BounceMs:     int64(cfg.BounceThresholdMs),
		CompletionMs: int64(cfg.CompletionThresholdMs),
	}
}

// AggregateCommand rolls up one day
type AggregateCommand struct{}

func (c *AggregateCommand) Name() string { return "aggregate" }
func (c *AggregateCommand) Description() string {
	return "Stores the daily rollup for [YYYY-MM-DD] (default yesterday) if absent"
}

func (c *AggregateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	day, err := parseDateArg(args)
	if err != nil {
		return err
	}

	row, written, err := analytics.AggregateForDate(app.Logger, app.DBManager.GetConnection(), day, thresholds())
	if err != nil {
		return err
	}
	switch {
	case row == nil:
		fmt.Printf("No sessions on %s, nothing stored\n", day.Format(timeframe.DateLayout))
	case written:
		fmt.Printf("Stored %s: %d sessions, %d visits\n", row.Date, row.TotalSessions, row.TotalVisits)
	default:
		fmt.Printf("%s already aggregated at %s\n", row.Date, row.ComputedAt.Format(time.RFC3339))
	}
	return nil
}

// AggregateWeekCommand rolls up the ISO week containing a day
type AggregateWeekCommand struct{}

func (c *AggregateWeekCommand) Name() string { return "aggregate-week" }
func (c *AggregateWeekCommand) Description() string {
	return "Stores the weekly rollup for the ISO week containing [YYYY-MM-DD] if absent"
}

func (c *AggregateWeekCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	day, err := parseDateArg(args)
	if err != nil {
		return err
	}

	row, written, err := analytics.AggregateForWeek(app.Logger, app.DBManager.GetConnection(), day, thresholds())
	if err != nil {
		return err
	}
	switch {
	case row == nil:
		fmt.Println("No sessions in that week, nothing stored")
	case written:
		fmt.Printf("Stored %d-W%02d: %d sessions, %d visits\n", row.Year, row.Week, row.TotalSessions, row.TotalVisits)
	default:
		fmt.Printf("%d-W%02d already aggregated\n", row.Year, row.Week)
	}
	return nil
}

// RetentionCommand runs one retention cycle immediately
type RetentionCommand struct{}

func (c *RetentionCommand) Name() string        { return "retention" }
func (c *RetentionCommand) Description() string { return "Runs one retention cycle now" }

func (c *RetentionCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	job := jobs.NewRetentionJob(app.DBManager, app.Logger, config.GetConfig())
	report, err := job.Run(time.Now())
	if err != nil {
		return err
	}

	for _, step := range report.Steps {
		status := "ok"
		if step.Err != nil {
			status = step.Err.Error()
		}
		fmt.Printf("  %-18s %s", step.Name, status)
		for table, count := range step.Deleted {
			fmt.Printf(" %s=%d", table, count)
		}
		fmt.Println()
	}
	if report.Failed() {
		return fmt.Errorf("retention finished with status %s", report.Status())
	}
	return nil
}

// SeedCommand populates the DB with synthetic traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample sessions" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	flags := flag.NewFlagSet("seed", flag.ContinueOnError)
	sessionCount := flags.Int("sessions", 200, "number of sessions to generate")
	days := flags.Int("days", 14, "spread sessions over the last N days")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg := config.GetConfig()
	return seeder.NewSeeder(app.DBManager, app.Logger, *sessionCount, *days, cfg.SessionWindow()).Run(ctx)
}

// HashPasswordCommand prints a bcrypt hash for FOLIO_DASHBOARD_PASSWORD
type HashPasswordCommand struct{}

func (c *HashPasswordCommand) Name() string { return "hash-password" }
func (c *HashPasswordCommand) Description() string {
	return "Prompts for a dashboard password and prints its bcrypt hash"
}

func (c *HashPasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fmt.Print("Enter dashboard password: ")
	passBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm dashboard password: ")
	confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	password := strings.TrimSpace(string(passBytes))
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if password != strings.TrimSpace(string(confirmBytes)) {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	fmt.Printf("FOLIO_DASHBOARD_PASSWORD='%s'\n", hash)
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection()

	counts := []struct {
		label string
		table string
	}{
		{"Sessions", "sessions"},
		{"Visits", "visits"},
		{"Daily aggregates", "daily_aggregates"},
		{"Weekly aggregates", "weekly_aggregates"},
		{"Cookieless rows", "basic_page_views"},
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	for _, entry := range counts {
		var count int64
		if err := db.Table(entry.table).Count(&count).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		log.Printf("- %s: %d", entry.label, count)
	}

	all, err := settings.AllSettings(db)
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	for _, setting := range all {
		log.Printf("- %s: %q", setting.Key, setting.Value)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: folioctl [command] [args...]")
	fmt.Println("Available commands:")
	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
