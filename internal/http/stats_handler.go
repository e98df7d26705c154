package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/metrics"
	"folio/internal/timeframe"
)

func statsConfig(ctx *cartridge.Context) *config.Config {
	if cfg, ok := ctx.Config.(*config.Config); ok {
		return cfg
	}
	return config.GetConfig()
}

// StatsOptionsFromConfig maps configuration onto stats computation options
func StatsOptionsFromConfig(cfg *config.Config) analytics.StatsOptions {
	return analytics.StatsOptions{
		Thresholds: analytics.Thresholds{
			BounceMs:     int64(cfg.BounceThresholdMs),
			CompletionMs: int64(cfg.CompletionThresholdMs),
		},
		RecentVisits: cfg.StatsRecentVisits,
		Workers:      cfg.StatsWorkers,
	}
}

func parseFrame(ctx *cartridge.Context) (*timeframe.TimeFrame, error) {
	return timeframe.ParsePeriod(
		ctx.Query("period"),
		ctx.Query("startDate"),
		ctx.Query("endDate"),
		time.Now().UTC(),
	)
}

func invalidPeriod(ctx *cartridge.Context, err error) error {
	return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
		"code":  "INVALID_PERIOD",
	})
}

// StatsIndexAction handles GET /analytics/stats. The password is checked by
// middleware.DashboardPassword before this runs.
func StatsIndexAction(ctx *cartridge.Context) error {
	start := time.Now()
	defer metrics.ObserveStatsDuration(start)

	frame, err := parseFrame(ctx)
	if errors.Is(err, timeframe.ErrInvalidPeriod) {
		return invalidPeriod(ctx, err)
	}
	if err != nil {
		return err
	}

	stats, err := analytics.ComputeStats(ctx.UserContext(), ctx.DB(), ctx.Logger, frame, StatsOptionsFromConfig(statsConfig(ctx)))
	if err != nil {
		ctx.Logger.Error("Failed to compute stats", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
			"code":  "STATS_ERROR",
		})
	}

	return ctx.JSON(stats)
}

// AggregatesIndexAction handles GET /analytics/aggregates, listing the stored
// daily rollups inside the requested window.
func AggregatesIndexAction(ctx *cartridge.Context) error {
	frame, err := parseFrame(ctx)
	if errors.Is(err, timeframe.ErrInvalidPeriod) {
		return invalidPeriod(ctx, err)
	}
	if err != nil {
		return err
	}

	rows, err := analytics.DailyAggregates(ctx.DB(), frame.From, frame.To)
	if err != nil {
		ctx.Logger.Error("Failed to load aggregates", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load aggregates",
			"code":  "STATS_ERROR",
		})
	}

	return ctx.JSON(fiber.Map{
		"period":     frame.Label,
		"startDate":  frame.From.Format(timeframe.DateLayout),
		"endDate":    frame.To.AddDate(0, 0, -1).Format(timeframe.DateLayout),
		"aggregates": rows,
	})
}
