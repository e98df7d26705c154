package internal

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "folio/api/v1"
	"folio/internal/config"
	handlers "folio/internal/http"
	"folio/internal/http/middleware"
	"folio/internal/metrics"
)

// trackingCORSConfig allows the portfolio origins to post beacons
func trackingCORSConfig(cfg *config.Config) *cors.Config {
	return &cors.Config{
		AllowOrigins: cfg.AllowedOrigins(),
		AllowMethods: "POST,GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
	}
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()

	// Rate limiting would interfere with tests, so it only runs in production
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70/min per IP covers a visit plus its scroll, section and end beacons
	trackingRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Stats are password protected, keep guessing slow
	statsRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	corsConfig := trackingCORSConfig(cfg)

	// Beacons arrive cross-site from the portfolio pages
	trackingConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		WriteConcurrency:   false,
		CustomMiddleware:   []fiber.Handler{trackingRateLimiter},
		CORSConfig:         corsConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	statsConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: corsConfig,
		CustomMiddleware: []fiber.Handler{
			statsRateLimiter,
			middleware.DashboardPassword(cfg.DashboardPassword, logger),
		},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	probeConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	preflight := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(http.StatusNoContent)
	}

	srv.Get("/health", handlers.HealthIndexAction, probeConfig)
	srv.Head("/health", handlers.HealthIndexAction, probeConfig)

	// === TRACKING ===
	tracking := []struct {
		path    string
		handler func(*cartridge.Context) error
	}{
		{"/analytics/visit", v1.CreateVisitAction},
		{"/analytics/scroll", v1.CreateScrollAction},
		{"/analytics/section", v1.CreateSectionAction},
		{"/analytics/end", v1.CreateEndAction},
		{"/analytics/basic", v1.CreateBasicAction},
	}
	for _, route := range tracking {
		srv.Post(route.path, route.handler, trackingConfig)
		srv.Options(route.path, preflight, trackingConfig)
	}

	srv.Get("/analytics/session", v1.SessionStatusAction, trackingConfig)
	srv.Options("/analytics/session", preflight, trackingConfig)

	// === STATS ===
	srv.Get("/analytics/stats", handlers.StatsIndexAction, statsConfig)
	srv.Get("/analytics/aggregates", handlers.AggregatesIndexAction, statsConfig)
	srv.Options("/analytics/stats", preflight, statsConfig)

	if cfg.MetricsEnabled {
		metricsHandler := metrics.Handler()
		srv.Get("/metrics", func(ctx *cartridge.Context) error {
			return metricsHandler(ctx.Ctx)
		}, probeConfig)
	}
}
