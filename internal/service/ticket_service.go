package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uplink-support/ticketd/internal/config"
	"github.com/uplink-support/ticketd/internal/domain"
	"github.com/uplink-support/ticketd/internal/events"
	"github.com/uplink-support/ticketd/internal/provisioner"
	"github.com/uplink-support/ticketd/internal/repository"
	apperrors "github.com/uplink-support/ticketd/pkg/util"
)

// UserLocker serializes check-and-insert during ticket creation. The
// database partial unique index remains the hard guard; the lease just
// keeps racing requests from both reaching the insert.
type UserLocker interface {
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key string)
}

// StatsCache stores aggregate counts for a short TTL.
type StatsCache interface {
	CacheGet(ctx context.Context, key string) (string, bool)
	CacheSet(ctx context.Context, key, value string, ttl time.Duration)
}

// Actor identifies who is invoking a lifecycle operation. Support is
// the pre-validated authorization flag supplied by the external
// permission layer; this service never resolves role membership.
type Actor struct {
	ID      string
	Name    string
	Support bool
}

// SystemActor drives sweep-initiated transitions.
var SystemActor = Actor{ID: domain.SystemActorID, Name: "sweep", Support: true}

// TicketService is the single point of mutation for ticket status. All
// transitions, user or sweep initiated, route through it.
type TicketService struct {
	tickets    repository.TicketRepository
	channels   provisioner.ChannelProvisioner
	locks      UserLocker
	cache      StatsCache
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.TicketConfig

	now   func() time.Time
	newID func() string
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	Provisioner provisioner.ChannelProvisioner
	Locker      UserLocker
	Cache       StatsCache
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// TicketCreateInput describes a validated creation request.
type TicketCreateInput struct {
	UserID      string
	UserName    string
	Reason      domain.TicketReason
	Description string
}

// TicketStats aggregates counts by status.
type TicketStats struct {
	Total  int `json:"total"`
	Open   int `json:"open"`
	Paused int `json:"paused"`
	Closed int `json:"closed"`
}

const statsCacheKey = "ticketd:stats"

// NewTicketService constructs the service.
func NewTicketService(cfg config.TicketConfig, deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		channels:   deps.Provisioner,
		locks:      deps.Locker,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// CreateTicket opens a ticket for the user, provisioning its backing
// channel after the row is persisted. When provisioning fails the
// ticket is kept (rolling it back would let the user slip past the
// one-active-ticket invariant) and the error is returned alongside it.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.NewValidationError("user_id required", nil)
	}
	if _, ok := domain.ParseReason(string(input.Reason)); !ok {
		return nil, apperrors.NewValidationError("unknown ticket reason", map[string]any{"reason": input.Reason})
	}
	return s.create(ctx, input, false)
}

// ReopenTicket starts a fresh request in place of a closed ticket's
// conversation. The new ticket gets its own channel reference; channel
// ids are never reused.
func (s *TicketService) ReopenTicket(ctx context.Context, channelID string, reason domain.TicketReason, description string, actor Actor) (*domain.Ticket, error) {
	previous, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"channel_id": channelID})
		}
		return nil, apperrors.MapError(err)
	}
	if previous.Active() {
		return nil, apperrors.NewInvalidTransition("ticket is still active", map[string]any{"ticket_id": previous.ID})
	}
	if actor.ID != previous.UserID && !actor.Support {
		return nil, apperrors.NewForbidden("only the requester or support can reopen")
	}
	if _, ok := domain.ParseReason(string(reason)); !ok {
		return nil, apperrors.NewValidationError("unknown ticket reason", map[string]any{"reason": reason})
	}
	input := TicketCreateInput{
		UserID:      previous.UserID,
		UserName:    previous.UserName,
		Reason:      reason,
		Description: description,
	}
	return s.create(ctx, input, true)
}

func (s *TicketService) create(ctx context.Context, input TicketCreateInput, reopened bool) (*domain.Ticket, error) {
	if s.locks != nil {
		lockKey := "ticketd:create:" + input.UserID
		acquired, err := s.locks.AcquireLease(ctx, lockKey, s.cfg.CreateLockTTL())
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if !acquired {
			return nil, apperrors.NewConflict("ticket creation already in progress", map[string]any{"user_id": input.UserID})
		}
		defer s.locks.ReleaseLease(ctx, lockKey)
	}

	if existing, err := s.tickets.GetActiveByUser(ctx, input.UserID); err == nil && existing != nil {
		return nil, apperrors.NewConflict("user already has an active ticket", map[string]any{
			"user_id":   input.UserID,
			"ticket_id": existing.ID,
		})
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.Ticket{
		ID:          s.newID(),
		UserID:      input.UserID,
		UserName:    strings.TrimSpace(input.UserName),
		ChannelID:   s.newID(),
		Reason:      input.Reason,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		CreatedAt:   s.now(),
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicateActive) {
			return nil, apperrors.NewConflict("user already has an active ticket", map[string]any{"user_id": input.UserID})
		}
		return nil, apperrors.MapError(err)
	}

	// Row persisted; the channel is a side effect. A failure below
	// leaves a degraded ticket needing manual remediation, reported
	// but never rolled back.
	provisioned := true
	var provisionErr error
	if err := s.channels.CreateChannel(ctx, ticket); err != nil {
		provisioned = false
		provisionErr = apperrors.NewProvisioningError("channel provisioning failed", err)
		s.logger.Error("channel provisioning failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("channel_id", ticket.ChannelID),
			zap.Error(err))
	}

	eventType := events.EventTicketCreated
	if reopened {
		eventType = events.EventTicketReopened
	}
	s.publishEvent(ctx, events.Event{
		Type:      eventType,
		TicketID:  ticket.ID,
		ChannelID: ticket.ChannelID,
		ActorID:   input.UserID,
		Payload: events.TicketCreatedPayload{
			UserID:      ticket.UserID,
			UserName:    ticket.UserName,
			Reason:      ticket.Reason,
			Reopened:    reopened,
			Provisioned: provisioned,
		},
	})
	return ticket, provisionErr
}

// CloseTicket transitions a ticket to CLOSED. Closing an already
// closed ticket is a no-op returning the terminal record. Paused
// tickets close only through an explicit admin force-close; an auto
// close finding the ticket paused, even mid-flight, stands down
// without error.
func (s *TicketService) CloseTicket(ctx context.Context, ticketID string, actor Actor, reason domain.CloseReason) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	for {
		if ticket.Status == domain.TicketStatusClosed {
			return ticket, nil
		}
		if ticket.Status == domain.TicketStatusPaused && reason != domain.CloseReasonForced {
			// A pause beats the sweep: the ticket is exempt from
			// idle expiry, so an auto close simply stands down.
			if reason == domain.CloseReasonAuto {
				return ticket, nil
			}
			return nil, apperrors.NewInvalidTransition("paused tickets require force-close", map[string]any{"ticket_id": ticket.ID})
		}
		if reason == domain.CloseReasonForced && !actor.Support {
			return nil, apperrors.NewForbidden("force-close requires support authorization")
		}
		if reason == domain.CloseReasonManual && actor.ID != ticket.UserID && !actor.Support {
			return nil, apperrors.NewForbidden("only the requester or support can close")
		}

		expected := ticket.Status
		now := s.now()
		closeReason := reason
		ticket.Status = domain.TicketStatusClosed
		ticket.CloseReason = &closeReason
		ticket.ClosedAt = &now
		ticket.PausedAt = nil
		ticket.PausedBy = nil

		err := s.tickets.UpdateStatus(ctx, ticket, expected)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrStaleStatus) {
			// Raced another transition; re-read and re-evaluate.
			ticket, err = s.getTicket(ctx, ticketID)
			if err != nil {
				return nil, err
			}
			continue
		}
		return nil, apperrors.MapError(err)
	}

	s.archiveChannel(ctx, ticket)
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketClosed,
		TicketID:  ticket.ID,
		ChannelID: ticket.ChannelID,
		ActorID:   actor.ID,
		Payload:   events.TicketClosedPayload{CloseReason: reason},
	})
	return ticket, nil
}

// PauseTicket moves an open ticket to PAUSED, exempting it from the
// idle sweep.
func (s *TicketService) PauseTicket(ctx context.Context, ticketID string, actor Actor) (*domain.Ticket, error) {
	if !actor.Support {
		return nil, apperrors.NewForbidden("pause requires support authorization")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(ticket.Status, domain.TicketStatusPaused) {
		return nil, apperrors.NewInvalidTransition(
			fmt.Sprintf("cannot pause ticket in status %s", ticket.Status),
			map[string]any{"ticket_id": ticket.ID, "status": ticket.Status})
	}

	expected := ticket.Status
	now := s.now()
	pausedBy := actor.ID
	ticket.Status = domain.TicketStatusPaused
	ticket.PausedAt = &now
	ticket.PausedBy = &pausedBy

	if err := s.tickets.UpdateStatus(ctx, ticket, expected); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, apperrors.NewInvalidTransition("ticket changed concurrently", map[string]any{"ticket_id": ticket.ID})
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketPaused,
		TicketID:  ticket.ID,
		ChannelID: ticket.ChannelID,
		ActorID:   actor.ID,
		Payload:   events.TicketPausedPayload{PausedBy: actor.ID},
	})
	return ticket, nil
}

// UnpauseTicket returns a paused ticket to OPEN, clearing the pause
// marks.
func (s *TicketService) UnpauseTicket(ctx context.Context, ticketID string, actor Actor) (*domain.Ticket, error) {
	if !actor.Support {
		return nil, apperrors.NewForbidden("unpause requires support authorization")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusPaused {
		return nil, apperrors.NewInvalidTransition(
			fmt.Sprintf("cannot unpause ticket in status %s", ticket.Status),
			map[string]any{"ticket_id": ticket.ID, "status": ticket.Status})
	}

	expected := ticket.Status
	ticket.Status = domain.TicketStatusOpen
	ticket.PausedAt = nil
	ticket.PausedBy = nil

	if err := s.tickets.UpdateStatus(ctx, ticket, expected); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, apperrors.NewInvalidTransition("ticket changed concurrently", map[string]any{"ticket_id": ticket.ID})
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketUnpaused,
		TicketID:  ticket.ID,
		ChannelID: ticket.ChannelID,
		ActorID:   actor.ID,
	})
	return ticket, nil
}

// GetActiveTicketForUser returns the user's current OPEN or PAUSED
// ticket, or nil when the user holds none.
func (s *TicketService) GetActiveTicketForUser(ctx context.Context, userID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ListHistoryForUser returns all tickets for the user ordered by
// creation time.
func (s *TicketService) ListHistoryForUser(ctx context.Context, userID string, limit int) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicketByChannel resolves the ticket backing a chat channel.
func (s *TicketService) GetTicketByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"channel_id": channelID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Stats returns aggregate ticket counts, served from cache when fresh.
func (s *TicketService) Stats(ctx context.Context) (*TicketStats, error) {
	if s.cache != nil {
		if raw, ok := s.cache.CacheGet(ctx, statsCacheKey); ok {
			var cached TicketStats
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	counts, err := s.tickets.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	stats := &TicketStats{
		Open:   counts[domain.TicketStatusOpen],
		Paused: counts[domain.TicketStatusPaused],
		Closed: counts[domain.TicketStatusClosed],
	}
	stats.Total = stats.Open + stats.Paused + stats.Closed

	if s.cache != nil {
		if encoded, err := json.Marshal(stats); err == nil {
			s.cache.CacheSet(ctx, statsCacheKey, string(encoded), s.cfg.StatsCacheTTL())
		}
	}
	return stats, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// archiveChannel renames and locks the backing channel after a close.
// Best effort: the ticket is already terminal, channel cleanup failures
// only get logged.
func (s *TicketService) archiveChannel(ctx context.Context, ticket *domain.Ticket) {
	name := "closed-" + channelSlug(ticket.UserName)
	if err := s.channels.RenameChannel(ctx, ticket.ChannelID, name); err != nil {
		s.logger.Warn("rename closed channel failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("channel_id", ticket.ChannelID),
			zap.Error(err))
	}
	if err := s.channels.LockChannel(ctx, ticket.ChannelID); err != nil {
		s.logger.Warn("lock closed channel failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("channel_id", ticket.ChannelID),
			zap.Error(err))
	}
}

func channelSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		}
		return -1
	}, slug)
	if slug == "" {
		return "ticket"
	}
	return slug
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = s.newID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
