package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/uplink-support/ticketd/internal/api/dto"
	"github.com/uplink-support/ticketd/internal/auth"
	"github.com/uplink-support/ticketd/internal/domain"
	"github.com/uplink-support/ticketd/internal/service"
	apperrors "github.com/uplink-support/ticketd/pkg/util"
)

// TicketsHandler exposes the lifecycle operations to the interaction
// layer.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	// Regular users open tickets for themselves; support can open on
	// behalf of another user.
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID && !actor.Support {
		return apperrors.NewForbidden("cannot open a ticket for another user")
	}
	userName := strings.TrimSpace(req.UserName)
	if userName == "" {
		userName = actor.Name
	}
	reason, ok := domain.ParseReason(strings.ToUpper(strings.TrimSpace(req.Reason)))
	if !ok {
		return apperrors.NewValidationError("unknown ticket reason", map[string]any{"reason": req.Reason})
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), service.TicketCreateInput{
		UserID:      userID,
		UserName:    userName,
		Reason:      reason,
		Description: req.Description,
	})
	if err != nil {
		// Provisioning failure still created the ticket; report
		// both the record and the degradation.
		if ticket != nil && apperrors.IsCode(err, apperrors.CodeProvisioning) {
			return c.Status(http.StatusCreated).JSON(fiber.Map{
				"data":    dto.FromTicket(ticket),
				"warning": apperrors.ToDomainError(err).Code,
			})
		}
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// ReopenTicket POST /tickets/by-channel/:channelID/reopen.
func (h *TicketsHandler) ReopenTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ReopenTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	reason, okReason := domain.ParseReason(strings.ToUpper(strings.TrimSpace(req.Reason)))
	if !okReason {
		return apperrors.NewValidationError("unknown ticket reason", map[string]any{"reason": req.Reason})
	}

	ticket, err := h.service.ReopenTicket(c.UserContext(), c.Params("channelID"), reason, req.Description, actor)
	if err != nil {
		if ticket != nil && apperrors.IsCode(err, apperrors.CodeProvisioning) {
			return c.Status(http.StatusCreated).JSON(fiber.Map{
				"data":    dto.FromTicket(ticket),
				"warning": apperrors.ToDomainError(err).Code,
			})
		}
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.CloseTicket(c.UserContext(), c.Params("id"), actor, domain.CloseReasonManual)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// GetActiveTicket GET /tickets/active/:userID.
func (h *TicketsHandler) GetActiveTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetActiveTicketForUser(c.UserContext(), c.Params("userID"))
	if err != nil {
		return err
	}
	if ticket == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// ListHistory GET /tickets/history/:userID.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	tickets, err := h.service.ListHistoryForUser(c.UserContext(), c.Params("userID"), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTickets(tickets)})
}

// GetByChannel GET /tickets/by-channel/:channelID.
func (h *TicketsHandler) GetByChannel(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicketByChannel(c.UserContext(), c.Params("channelID"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}
