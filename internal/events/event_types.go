package events

import (
	"time"

	"github.com/uplink-support/ticketd/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket_created"
	EventTicketPaused   EventType = "ticket_paused"
	EventTicketUnpaused EventType = "ticket_unpaused"
	EventTicketClosed   EventType = "ticket_closed"
	EventTicketReopened EventType = "ticket_reopened"
)

// Event represents a lifecycle transition emitted by the ticket
// service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ChannelID string      `json:"channel_id"`
	ActorID   string      `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	UserID      string              `json:"user_id"`
	UserName    string              `json:"user_name"`
	Reason      domain.TicketReason `json:"reason"`
	Reopened    bool                `json:"reopened"`
	Provisioned bool                `json:"provisioned"`
}

// TicketPausedPayload payload.
type TicketPausedPayload struct {
	PausedBy string `json:"paused_by"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	CloseReason domain.CloseReason `json:"close_reason"`
}
