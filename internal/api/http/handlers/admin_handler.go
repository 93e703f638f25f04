package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/uplink-support/ticketd/internal/api/dto"
	"github.com/uplink-support/ticketd/internal/auth"
	"github.com/uplink-support/ticketd/internal/domain"
	"github.com/uplink-support/ticketd/internal/service"
	"github.com/uplink-support/ticketd/internal/worker"
	apperrors "github.com/uplink-support/ticketd/pkg/util"
)

// AdminHandler exposes support-only operations: pause, unpause,
// force-close and aggregate status.
type AdminHandler struct {
	service   *service.TicketService
	keepalive *worker.KeepAlive
}

// NewAdminHandler constructs handler.
func NewAdminHandler(ticketService *service.TicketService, keepalive *worker.KeepAlive) *AdminHandler {
	return &AdminHandler{service: ticketService, keepalive: keepalive}
}

// PauseTicket POST /tickets/:id/pause.
func (h *AdminHandler) PauseTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.PauseTicket(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// UnpauseTicket POST /tickets/:id/unpause.
func (h *AdminHandler) UnpauseTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.UnpauseTicket(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// ForceCloseTicket POST /tickets/:id/force-close.
func (h *AdminHandler) ForceCloseTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.CloseTicket(c.UserContext(), c.Params("id"), actor, domain.CloseReasonForced)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Stats GET /tickets/stats.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	payload := fiber.Map{"data": stats}
	if h.keepalive != nil {
		payload["keepalive"] = h.keepalive.Stats()
	}
	return c.JSON(payload)
}
