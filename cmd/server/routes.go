package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spanquery/spanquery/internal/handler"
	"github.com/spanquery/spanquery/internal/middleware"
)

// registerRoutes registers all HTTP routes
func registerRoutes(app *fiber.App, deps *Dependencies) {
	deps.HealthHandler.RegisterRoutes(app)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	handler.NewDocsHandler().RegisterRoutes(app)

	v1 := app.Group("/v1")
	ws := v1.Group("/workspaces/:workspaceId",
		middleware.WorkspaceRateLimit(deps.RateCounter, deps.Config.Server.RateLimitPerMinute),
	)
	deps.SpansHandler.RegisterRoutes(ws)
}
