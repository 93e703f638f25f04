package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusPaused TicketStatus = "PAUSED"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// TicketReason enumerates the fixed set of request categories.
type TicketReason string

const (
	TicketReasonAccess   TicketReason = "ACCESS"
	TicketReasonHardware TicketReason = "HARDWARE"
	TicketReasonSoftware TicketReason = "SOFTWARE"
	TicketReasonNetwork  TicketReason = "NETWORK"
	TicketReasonOther    TicketReason = "OTHER"
)

// CloseReason records what triggered a close transition.
type CloseReason string

const (
	CloseReasonManual CloseReason = "manual"
	CloseReasonAuto   CloseReason = "auto"
	CloseReasonForced CloseReason = "forced"
)

// SystemActorID identifies transitions driven by the sweep scheduler
// rather than a user or admin.
const SystemActorID = "system"

// Ticket is the aggregate for a support conversation. A ticket is
// active while its status is OPEN or PAUSED; a user holds at most one
// active ticket at a time.
type Ticket struct {
	ID          string
	UserID      string
	UserName    string
	ChannelID   string
	Reason      TicketReason
	Description string
	Status      TicketStatus
	CloseReason *CloseReason
	CreatedAt   time.Time
	PausedAt    *time.Time
	PausedBy    *string
	ClosedAt    *time.Time
}

// Active reports whether the ticket counts toward the one-per-user
// invariant.
func (t *Ticket) Active() bool {
	return t.Status == TicketStatusOpen || t.Status == TicketStatusPaused
}

// ParseReason validates a request category.
func ParseReason(raw string) (TicketReason, bool) {
	switch TicketReason(raw) {
	case TicketReasonAccess, TicketReasonHardware, TicketReasonSoftware, TicketReasonNetwork, TicketReasonOther:
		return TicketReason(raw), true
	}
	return "", false
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:   {TicketStatusPaused, TicketStatusClosed},
	TicketStatusPaused: {TicketStatusOpen, TicketStatusClosed},
	TicketStatusClosed: {},
}

// CanTransition reports whether the status edge is part of the state
// machine. CLOSED is terminal.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
