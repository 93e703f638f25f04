// Package worker holds the background loops: the idle-ticket sweeper
// and the host keep-alive pinger. Each loop owns its lifecycle and is
// stopped through context cancellation, independent of request
// handling.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uplink-support/ticketd/internal/domain"
	"github.com/uplink-support/ticketd/internal/service"
)

// StaleTicketSource lists open tickets older than a cutoff. Satisfied
// by repository.TicketRepository; paused tickets are never returned.
type StaleTicketSource interface {
	ListStaleOpen(ctx context.Context, olderThan time.Time) ([]domain.Ticket, error)
}

// TicketCloser drives the close transition. Satisfied by
// service.TicketService; the sweeper never writes to the store itself.
type TicketCloser interface {
	CloseTicket(ctx context.Context, ticketID string, actor service.Actor, reason domain.CloseReason) (*domain.Ticket, error)
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	Selected int
	Closed   int
	Failed   int
	Err      error
}

// Sweeper periodically auto-closes open tickets that have exceeded the
// idle threshold.
type Sweeper struct {
	store    StaleTicketSource
	closer   TicketCloser
	logger   *zap.Logger
	interval time.Duration
	idleTTL  time.Duration

	now func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
	results chan SweepResult
}

// NewSweeper constructs a stopped sweeper.
func NewSweeper(store StaleTicketSource, closer TicketCloser, logger *zap.Logger, interval, idleTTL time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		closer:   closer,
		logger:   logger,
		interval: interval,
		idleTTL:  idleTTL,
		now:      time.Now,
		results:  make(chan SweepResult, 1),
	}
}

// Results exposes per-cycle summaries. The channel is best effort: a
// slow consumer drops summaries rather than blocking the sweep. Stop
// closes the channel, ending any range over it.
func (s *Sweeper) Results() <-chan SweepResult {
	return s.results
}

// Start launches the sweep loop. Calling Start on a running or stopped
// sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopped {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	s.logger.Info("sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("idle_ttl", s.idleTTL))
}

// Stop cancels the loop, waits for the current cycle to finish and
// closes the results channel. A stopped sweeper cannot be restarted.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.stopped = true
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	close(s.results)
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.report(s.SweepOnce(ctx))
		}
	}
}

// SweepOnce runs a single cycle: select stale open tickets and close
// each as the system actor. One ticket's failure never aborts the rest
// of the cycle; still-open tickets are re-selected next run.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	cutoff := s.now().Add(-s.idleTTL)
	stale, err := s.store.ListStaleOpen(ctx, cutoff)
	if err != nil {
		s.logger.Error("sweep selection failed", zap.Error(err))
		return SweepResult{Err: err}
	}

	result := SweepResult{Selected: len(stale)}
	for _, ticket := range stale {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}
		if _, err := s.closer.CloseTicket(ctx, ticket.ID, service.SystemActor, domain.CloseReasonAuto); err != nil {
			result.Failed++
			s.logger.Error("auto-close failed",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
			continue
		}
		result.Closed++
	}
	if result.Selected > 0 {
		s.logger.Info("sweep cycle finished",
			zap.Int("selected", result.Selected),
			zap.Int("closed", result.Closed),
			zap.Int("failed", result.Failed))
	}
	return result
}

func (s *Sweeper) report(result SweepResult) {
	select {
	case s.results <- result:
	default:
	}
}
