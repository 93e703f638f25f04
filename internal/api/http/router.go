package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/uplink-support/ticketd/internal/api/http/handlers"
	"github.com/uplink-support/ticketd/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/active/:userID", cfg.Tickets.GetActiveTicket)
	tickets.Get("/history/:userID", cfg.Tickets.ListHistory)
	tickets.Get("/by-channel/:channelID", cfg.Tickets.GetByChannel)
	tickets.Post("/by-channel/:channelID/reopen", cfg.Tickets.ReopenTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)

	admin := tickets.Group("", auth.RequireSupport())
	admin.Get("/stats", cfg.Admin.Stats)
	admin.Post("/:id/pause", cfg.Admin.PauseTicket)
	admin.Post("/:id/unpause", cfg.Admin.UnpauseTicket)
	admin.Post("/:id/force-close", cfg.Admin.ForceCloseTicket)
}
