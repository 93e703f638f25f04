package dto

import (
	"time"

	"github.com/uplink-support/ticketd/internal/domain"
)

// CreateTicketRequest is the payload for opening a ticket.
type CreateTicketRequest struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// ReopenTicketRequest is the payload for reopening via a closed
// ticket's channel.
type ReopenTicketRequest struct {
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// TicketResponse is the wire representation of a ticket.
type TicketResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	UserName    string     `json:"user_name"`
	ChannelID   string     `json:"channel_id"`
	Reason      string     `json:"reason"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	CloseReason *string    `json:"close_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	PausedBy    *string    `json:"paused_by,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// FromTicket maps the domain entity onto the wire shape.
func FromTicket(ticket *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:          ticket.ID,
		UserID:      ticket.UserID,
		UserName:    ticket.UserName,
		ChannelID:   ticket.ChannelID,
		Reason:      string(ticket.Reason),
		Description: ticket.Description,
		Status:      string(ticket.Status),
		CreatedAt:   ticket.CreatedAt,
		PausedAt:    ticket.PausedAt,
		PausedBy:    ticket.PausedBy,
		ClosedAt:    ticket.ClosedAt,
	}
	if ticket.CloseReason != nil {
		reason := string(*ticket.CloseReason)
		resp.CloseReason = &reason
	}
	return resp
}

// FromTickets maps a slice of tickets.
func FromTickets(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, FromTicket(&tickets[i]))
	}
	return out
}
