package internal

import (
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/config"
)

func findRoute(routes []fiber.Route, method, path string) *fiber.Route {
	for idx := range routes {
		if routes[idx].Method == method && routes[idx].Path == path {
			return &routes[idx]
		}
	}
	return nil
}

func TestTrackingRoutesRateLimited(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	for _, path := range []string{"/analytics/visit", "/analytics/scroll", "/analytics/section", "/analytics/end", "/analytics/basic"} {
		route := findRoute(routes, fiber.MethodPost, path)
		require.NotNilf(t, route, "expected %s to be registered", path)

		// The limiter sits behind a wrapper that only applies it in production
		hasRateLimiter := false
		var handlerNames []string
		for _, handler := range route.Handlers {
			name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
			handlerNames = append(handlerNames, name)
			if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountAppRoutes.func") {
				hasRateLimiter = true
				break
			}
		}
		assert.Truef(t, hasRateLimiter, "expected rate limiter middleware for %s, handlers: %v", path, handlerNames)
	}
}

func TestAppRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	expected := []struct {
		method string
		path   string
	}{
		{fiber.MethodGet, "/health"},
		{fiber.MethodHead, "/health"},
		{fiber.MethodGet, "/analytics/session"},
		{fiber.MethodGet, "/analytics/stats"},
		{fiber.MethodGet, "/analytics/aggregates"},
		{fiber.MethodOptions, "/analytics/visit"},
		{fiber.MethodOptions, "/analytics/end"},
	}
	for _, route := range expected {
		assert.NotNilf(t, findRoute(routes, route.method, route.path), "expected %s %s", route.method, route.path)
	}
}

func TestMetricsRouteFollowsConfig(t *testing.T) {
	cfg := config.GetConfig()
	previous := cfg.MetricsEnabled
	t.Cleanup(func() { cfg.MetricsEnabled = previous })

	cfg.MetricsEnabled = false
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{RouteMountFunc: MountAppRoutes})
	assert.Nil(t, findRoute(srv.App.GetRoutes(true), fiber.MethodGet, "/metrics"))

	cfg.MetricsEnabled = true
	srv = testsupport.NewTestServer(t, testsupport.TestServerOptions{RouteMountFunc: MountAppRoutes})
	assert.NotNil(t, findRoute(srv.App.GetRoutes(true), fiber.MethodGet, "/metrics"))
}

func TestServerConfigServesNoStaticAssets(t *testing.T) {
	cfg := ServerConfig()
	assert.False(t, cfg.EnableStaticAssets)
	assert.False(t, cfg.EnableTemplates)
	assert.True(t, cfg.EnableRecover)
}
