package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/uplink-support/ticketd/internal/events"
)

// Notifier mirrors lifecycle transitions into operator-facing logs and
// an optional webhook. It observes events; it never mutates tickets.
type Notifier struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	webhookURL string
}

// NewNotifier creates the notifier.
func NewNotifier(dispatcher events.Dispatcher, logger *zap.Logger, webhookURL string) *Notifier {
	return &Notifier{
		dispatcher: dispatcher,
		logger:     logger,
		webhookURL: webhookURL,
	}
}

// RegisterHandlers subscribes to lifecycle events.
func (n *Notifier) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleLifecycle)
	n.dispatcher.Subscribe(events.EventTicketReopened, n.handleLifecycle)
	n.dispatcher.Subscribe(events.EventTicketPaused, n.handleLifecycle)
	n.dispatcher.Subscribe(events.EventTicketUnpaused, n.handleLifecycle)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleLifecycle)
}

func (n *Notifier) handleLifecycle(ctx context.Context, event events.Event) error {
	n.logger.Info("ticket lifecycle event",
		zap.String("event", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("channel_id", event.ChannelID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	n.sendWebhookStub(ctx, event)
	return nil
}

func (n *Notifier) sendWebhookStub(ctx context.Context, event events.Event) {
	if n.webhookURL == "" {
		return
	}
	n.logger.Debug("webhook notification",
		zap.String("url", n.webhookURL),
		zap.String("event", string(event.Type)),
		zap.String("ticket_id", event.TicketID))
}
