package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/uplink-support/ticketd/internal/config"
	"github.com/uplink-support/ticketd/internal/domain"
	"github.com/uplink-support/ticketd/internal/events"
	"github.com/uplink-support/ticketd/internal/repository"
	apperrors "github.com/uplink-support/ticketd/pkg/util"
)

// fakeTicketRepo is an in-memory TicketRepository enforcing the same
// uniqueness guarantees as the SQL schema.
type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	order   []string
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (f *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tickets {
		if existing.UserID == ticket.UserID && existing.Active() {
			return repository.ErrDuplicateActive
		}
		if existing.ChannelID == ticket.ChannelID {
			return repository.ErrDuplicateChannel
		}
	}
	clone := *ticket
	f.tickets[ticket.ID] = &clone
	f.order = append(f.order, ticket.ID)
	return nil
}

func (f *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *ticket
	return &clone, nil
}

func (f *fakeTicketRepo) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ticket := range f.tickets {
		if ticket.ChannelID == channelID {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTicketRepo) GetActiveByUser(ctx context.Context, userID string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ticket := range f.tickets {
		if ticket.UserID == userID && ticket.Active() {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTicketRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for _, id := range f.order {
		if ticket := f.tickets[id]; ticket.UserID == userID {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (f *fakeTicketRepo) ListStaleOpen(ctx context.Context, olderThan time.Time) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for _, id := range f.order {
		ticket := f.tickets[id]
		if ticket.Status == domain.TicketStatusOpen && ticket.CreatedAt.Before(olderThan) {
			out = append(out, *ticket)
		}
	}
	return out, nil
}

func (f *fakeTicketRepo) UpdateStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Status != expected {
		return repository.ErrStaleStatus
	}
	clone := *ticket
	f.tickets[ticket.ID] = &clone
	return nil
}

func (f *fakeTicketRepo) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[domain.TicketStatus]int)
	for _, ticket := range f.tickets {
		counts[ticket.Status]++
	}
	return counts, nil
}

type fakeProvisioner struct {
	mu        sync.Mutex
	createErr error
	created   []string
	locked    []string
	renamed   map[string]string
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{renamed: make(map[string]string)}
}

func (f *fakeProvisioner) CreateChannel(ctx context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, ticket.ChannelID)
	return nil
}

func (f *fakeProvisioner) LockChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = append(f.locked, channelID)
	return nil
}

func (f *fakeProvisioner) RenameChannel(ctx context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed[channelID] = name
	return nil
}

type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	deny   bool
	grants int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (f *fakeLocker) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny || f.held[key] {
		return false, nil
	}
	f.held[key] = true
	f.grants++
	return true, nil
}

func (f *fakeLocker) ReleaseLease(ctx context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
}

func testConfig() config.TicketConfig {
	return config.TicketConfig{
		IdleTTLHours:         12,
		SweepIntervalMinutes: 30,
		CreateLockTTLSeconds: 10,
		StatsCacheTTLSeconds: 60,
	}
}

func newTestService(repo *fakeTicketRepo, channels *fakeProvisioner) *TicketService {
	svc := NewTicketService(testConfig(), TicketDependencies{
		TicketRepo:  repo,
		Provisioner: channels,
		Locker:      newFakeLocker(),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      zap.NewNop(),
	})
	fixed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	counter := 0
	svc.newID = func() string {
		counter++
		return fmt.Sprintf("id-%04d", counter)
	}
	return svc
}

var (
	requester = Actor{ID: "user-a", Name: "Alice"}
	admin     = Actor{ID: "admin-1", Name: "Root", Support: true}
)

func createTicket(t *testing.T, svc *TicketService, userID string) *domain.Ticket {
	t.Helper()
	ticket, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		UserID:   userID,
		UserName: "Alice",
		Reason:   domain.TicketReasonHardware,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func TestCreateTicket(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, newFakeProvisioner())

	ticket, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		UserID:      "user-a",
		UserName:    " Alice ",
		Reason:      domain.TicketReasonHardware,
		Description: "screen is dark",
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Errorf("status = %s, want OPEN", ticket.Status)
	}
	if ticket.UserName != "Alice" {
		t.Errorf("user name not trimmed: %q", ticket.UserName)
	}
	if ticket.ID == "" || ticket.ChannelID == "" || ticket.ID == ticket.ChannelID {
		t.Errorf("expected distinct ids, got id=%q channel=%q", ticket.ID, ticket.ChannelID)
	}
	if ticket.ClosedAt != nil {
		t.Error("new ticket must not carry closed_at")
	}
}

func TestCreateTicketRejectsUnknownReason(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	_, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		UserID: "user-a",
		Reason: domain.TicketReason("BILLING"),
	})
	if !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateTicketConflictOnActive(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	createTicket(t, svc, "user-a")

	_, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		UserID: "user-a",
		Reason: domain.TicketReasonSoftware,
	})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateTicketConflictWhilePaused(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	ticket := createTicket(t, svc, "user-a")
	if _, err := svc.PauseTicket(context.Background(), ticket.ID, admin); err != nil {
		t.Fatalf("pause: %v", err)
	}

	_, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		UserID: "user-a",
		Reason: domain.TicketReasonOther,
	})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("paused ticket must still block creation, got %v", err)
	}
}

func TestCreateTicketKeepsRowOnProvisioningFailure(t *testing.T) {
	repo := newFakeTicketRepo()
	channels := newFakeProvisioner()
	channels.createErr = errors.New("platform down")
	svc := newTestService(repo, channels)

	ticket, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		UserID: "user-a",
		Reason: domain.TicketReasonNetwork,
	})
	if !apperrors.IsCode(err, apperrors.CodeProvisioning) {
		t.Fatalf("expected provisioning error, got %v", err)
	}
	if ticket == nil {
		t.Fatal("ticket must be returned despite provisioning failure")
	}
	stored, err := repo.GetByID(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("ticket row must survive provisioning failure: %v", err)
	}
	if stored.Status != domain.TicketStatusOpen {
		t.Errorf("degraded ticket status = %s, want OPEN", stored.Status)
	}

	// The persisted row still counts toward the invariant.
	_, err = svc.CreateTicket(context.Background(), TicketCreateInput{
		UserID: "user-a",
		Reason: domain.TicketReasonOther,
	})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("degraded ticket must block a second creation, got %v", err)
	}
}

func TestCreateTicketLockDenied(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	locker := newFakeLocker()
	locker.deny = true
	svc.locks = locker

	_, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		UserID: "user-a",
		Reason: domain.TicketReasonAccess,
	})
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict while lease is held, got %v", err)
	}
}

func TestCloseTicketIdempotent(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	ticket := createTicket(t, svc, "user-a")

	first, err := svc.CloseTicket(context.Background(), ticket.ID, requester, domain.CloseReasonManual)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if first.Status != domain.TicketStatusClosed {
		t.Fatalf("status = %s, want CLOSED", first.Status)
	}
	if first.ClosedAt == nil {
		t.Fatal("closed_at must be set on close")
	}

	second, err := svc.CloseTicket(context.Background(), ticket.ID, requester, domain.CloseReasonManual)
	if err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
	if second.Status != domain.TicketStatusClosed {
		t.Errorf("second close status = %s", second.Status)
	}
	if !second.ClosedAt.Equal(*first.ClosedAt) {
		t.Errorf("closed_at changed on repeat close: %v vs %v", second.ClosedAt, first.ClosedAt)
	}
}

func TestCloseTicketArchivesChannel(t *testing.T) {
	channels := newFakeProvisioner()
	svc := newTestService(newFakeTicketRepo(), channels)
	ticket := createTicket(t, svc, "user-a")

	if _, err := svc.CloseTicket(context.Background(), ticket.ID, requester, domain.CloseReasonManual); err != nil {
		t.Fatalf("close: %v", err)
	}
	if name := channels.renamed[ticket.ChannelID]; name != "closed-alice" {
		t.Errorf("channel rename = %q, want closed-alice", name)
	}
	if len(channels.locked) != 1 || channels.locked[0] != ticket.ChannelID {
		t.Errorf("channel not locked: %v", channels.locked)
	}
}

func TestCloseTicketByStranger(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	ticket := createTicket(t, svc, "user-a")

	stranger := Actor{ID: "user-b", Name: "Bob"}
	_, err := svc.CloseTicket(context.Background(), ticket.ID, stranger, domain.CloseReasonManual)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestManualCloseOfPausedRequiresForce(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	ticket := createTicket(t, svc, "user-a")
	if _, err := svc.PauseTicket(context.Background(), ticket.ID, admin); err != nil {
		t.Fatalf("pause: %v", err)
	}

	_, err := svc.CloseTicket(context.Background(), ticket.ID, admin, domain.CloseReasonManual)
	if !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	closed, err := svc.CloseTicket(context.Background(), ticket.ID, admin, domain.CloseReasonForced)
	if err != nil {
		t.Fatalf("force-close: %v", err)
	}
	if closed.Status != domain.TicketStatusClosed {
		t.Errorf("status = %s, want CLOSED", closed.Status)
	}
	if closed.CloseReason == nil || *closed.CloseReason != domain.CloseReasonForced {
		t.Errorf("close reason = %v, want forced", closed.CloseReason)
	}
	if closed.PausedAt != nil || closed.PausedBy != nil {
		t.Error("pause marks must be cleared on close")
	}
}

func TestAutoCloseOfPausedIsNoOp(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, newFakeProvisioner())
	ticket := createTicket(t, svc, "user-a")
	if _, err := svc.PauseTicket(context.Background(), ticket.ID, admin); err != nil {
		t.Fatalf("pause: %v", err)
	}

	got, err := svc.CloseTicket(context.Background(), ticket.ID, SystemActor, domain.CloseReasonAuto)
	if err != nil {
		t.Fatalf("auto close of paused ticket must be a no-op, got %v", err)
	}
	if got.Status != domain.TicketStatusPaused {
		t.Errorf("status = %s, want PAUSED", got.Status)
	}
	stored, err := repo.GetByID(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.Status != domain.TicketStatusPaused || stored.ClosedAt != nil {
		t.Errorf("stored ticket mutated: status=%s closed_at=%v", stored.Status, stored.ClosedAt)
	}
}

// pauseRacingRepo pauses the ticket underneath the first status write,
// forcing the stale re-read path.
type pauseRacingRepo struct {
	*fakeTicketRepo
	raced bool
}

func (r *pauseRacingRepo) UpdateStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	if !r.raced {
		r.raced = true
		r.mu.Lock()
		now := time.Now()
		by := admin.ID
		stored := r.tickets[ticket.ID]
		stored.Status = domain.TicketStatusPaused
		stored.PausedAt = &now
		stored.PausedBy = &by
		r.mu.Unlock()
		return repository.ErrStaleStatus
	}
	return r.fakeTicketRepo.UpdateStatus(ctx, ticket, expected)
}

func TestAutoCloseStandsDownWhenPauseWinsRace(t *testing.T) {
	repo := &pauseRacingRepo{fakeTicketRepo: newFakeTicketRepo()}
	svc := newTestService(repo.fakeTicketRepo, newFakeProvisioner())
	svc.tickets = repo
	ticket := createTicket(t, svc, "user-a")

	got, err := svc.CloseTicket(context.Background(), ticket.ID, SystemActor, domain.CloseReasonAuto)
	if err != nil {
		t.Fatalf("auto close racing a pause must be a no-op, got %v", err)
	}
	if got.Status != domain.TicketStatusPaused {
		t.Errorf("status = %s, want PAUSED", got.Status)
	}
	if !repo.raced {
		t.Fatal("race path not exercised")
	}
}

func TestForceCloseRequiresSupport(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	ticket := createTicket(t, svc, "user-a")

	_, err := svc.CloseTicket(context.Background(), ticket.ID, requester, domain.CloseReasonForced)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestPauseUnpauseRoundTrip(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	original := createTicket(t, svc, "user-a")

	paused, err := svc.PauseTicket(context.Background(), original.ID, admin)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != domain.TicketStatusPaused {
		t.Fatalf("status = %s, want PAUSED", paused.Status)
	}
	if paused.PausedAt == nil || paused.PausedBy == nil || *paused.PausedBy != admin.ID {
		t.Errorf("pause marks not set: at=%v by=%v", paused.PausedAt, paused.PausedBy)
	}

	restored, err := svc.UnpauseTicket(context.Background(), original.ID, admin)
	if err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if restored.Status != domain.TicketStatusOpen {
		t.Fatalf("status = %s, want OPEN", restored.Status)
	}
	if restored.PausedAt != nil || restored.PausedBy != nil {
		t.Error("pause marks must be cleared on unpause")
	}
	if restored.ID != original.ID ||
		!restored.CreatedAt.Equal(original.CreatedAt) ||
		restored.Reason != original.Reason ||
		restored.Description != original.Description {
		t.Errorf("round trip mutated identity fields: %+v vs %+v", restored, original)
	}
}

func TestPauseRequiresSupport(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	ticket := createTicket(t, svc, "user-a")

	if _, err := svc.PauseTicket(context.Background(), ticket.ID, requester); !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestInvalidPauseTransitions(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	ticket := createTicket(t, svc, "user-a")

	// Unpausing an open ticket.
	if _, err := svc.UnpauseTicket(context.Background(), ticket.ID, admin); !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("unpause open: expected invalid transition, got %v", err)
	}

	// Double pause.
	if _, err := svc.PauseTicket(context.Background(), ticket.ID, admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.PauseTicket(context.Background(), ticket.ID, admin); !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("double pause: expected invalid transition, got %v", err)
	}

	// Any toggle on a closed ticket.
	if _, err := svc.CloseTicket(context.Background(), ticket.ID, admin, domain.CloseReasonForced); err != nil {
		t.Fatalf("force-close: %v", err)
	}
	if _, err := svc.PauseTicket(context.Background(), ticket.ID, admin); !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("pause closed: expected invalid transition, got %v", err)
	}
	if _, err := svc.UnpauseTicket(context.Background(), ticket.ID, admin); !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("unpause closed: expected invalid transition, got %v", err)
	}
}

func TestGetActiveTicketForUser(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())

	active, err := svc.GetActiveTicketForUser(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("active lookup: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active ticket, got %+v", active)
	}

	ticket := createTicket(t, svc, "user-a")
	active, err = svc.GetActiveTicketForUser(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("active lookup: %v", err)
	}
	if active == nil || active.ID != ticket.ID {
		t.Fatalf("active = %+v, want ticket %s", active, ticket.ID)
	}

	if _, err := svc.CloseTicket(context.Background(), ticket.ID, requester, domain.CloseReasonManual); err != nil {
		t.Fatalf("close: %v", err)
	}
	active, err = svc.GetActiveTicketForUser(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("active lookup: %v", err)
	}
	if active != nil {
		t.Fatalf("closed ticket still reported active: %+v", active)
	}
}

func TestListHistoryForUser(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())

	first := createTicket(t, svc, "user-a")
	if _, err := svc.CloseTicket(context.Background(), first.ID, requester, domain.CloseReasonManual); err != nil {
		t.Fatalf("close: %v", err)
	}
	second := createTicket(t, svc, "user-a")
	createTicket(t, svc, "user-b")

	history, err := svc.ListHistoryForUser(context.Background(), "user-a", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].ID != first.ID || history[1].ID != second.ID {
		t.Errorf("history order wrong: %s, %s", history[0].ID, history[1].ID)
	}
}

func TestReopenTicket(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	original := createTicket(t, svc, "user-a")

	// Still active: reopen must be rejected.
	if _, err := svc.ReopenTicket(context.Background(), original.ChannelID, domain.TicketReasonSoftware, "again", requester); !apperrors.IsCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("reopen active: expected invalid transition, got %v", err)
	}

	if _, err := svc.CloseTicket(context.Background(), original.ID, requester, domain.CloseReasonManual); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := svc.ReopenTicket(context.Background(), original.ChannelID, domain.TicketReasonSoftware, "again", requester)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ID == original.ID {
		t.Error("reopen must mint a new ticket id")
	}
	if reopened.ChannelID == original.ChannelID {
		t.Error("channel ids are never reused")
	}
	if reopened.UserID != original.UserID {
		t.Errorf("reopened ticket user = %s, want %s", reopened.UserID, original.UserID)
	}

	// The terminal record is untouched.
	stored, err := svc.GetTicketByChannel(context.Background(), original.ChannelID)
	if err != nil {
		t.Fatalf("lookup original: %v", err)
	}
	if stored.Status != domain.TicketStatusClosed {
		t.Errorf("original status = %s, want CLOSED", stored.Status)
	}
}

func TestReopenConflictsWithActiveTicket(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	first := createTicket(t, svc, "user-a")
	if _, err := svc.CloseTicket(context.Background(), first.ID, requester, domain.CloseReasonManual); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The user opens a fresh ticket, then tries to reopen the old one.
	if _, err := svc.CreateTicket(context.Background(), TicketCreateInput{
		UserID:   "user-a",
		UserName: "Alice",
		Reason:   domain.TicketReasonHardware,
	}); err != nil {
		t.Fatalf("second create: %v", err)
	}

	if _, err := svc.ReopenTicket(context.Background(), first.ChannelID, domain.TicketReasonSoftware, "again", requester); !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("reopen with active ticket: expected conflict, got %v", err)
	}
}

func TestStats(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())

	a := createTicket(t, svc, "user-a")
	createTicket(t, svc, "user-b")
	c := createTicket(t, svc, "user-c")
	if _, err := svc.PauseTicket(context.Background(), a.ID, admin); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := svc.CloseTicket(context.Background(), c.ID, admin, domain.CloseReasonForced); err != nil {
		t.Fatalf("close: %v", err)
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := TicketStats{Total: 3, Open: 1, Paused: 1, Closed: 1}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
}

// Exercises the full lifecycle scenario: create, duplicate rejection,
// pause, force-close, recreate.
func TestLifecycleScenario(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), newFakeProvisioner())
	ctx := context.Background()

	ticket := createTicket(t, svc, "user-a")
	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("status = %s, want OPEN", ticket.Status)
	}

	if _, err := svc.CreateTicket(ctx, TicketCreateInput{UserID: "user-a", Reason: domain.TicketReasonHardware}); !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("second create: expected conflict, got %v", err)
	}

	if _, err := svc.PauseTicket(ctx, ticket.ID, admin); err != nil {
		t.Fatalf("pause: %v", err)
	}

	closed, err := svc.CloseTicket(ctx, ticket.ID, admin, domain.CloseReasonForced)
	if err != nil {
		t.Fatalf("force-close: %v", err)
	}
	if closed.ClosedAt == nil {
		t.Fatal("closed_at not set")
	}

	if _, err := svc.CreateTicket(ctx, TicketCreateInput{UserID: "user-a", Reason: domain.TicketReasonHardware}); err != nil {
		t.Fatalf("creation after close must succeed: %v", err)
	}
}
