package config

import (
	"testing"
	"time"

	"github.com/uplink-support/ticketd/internal/domain"
)

func validTicketConfig() TicketConfig {
	return TicketConfig{
		IdleTTLHours:         12,
		SweepIntervalMinutes: 30,
		CreateLockTTLSeconds: 10,
		StatsCacheTTLSeconds: 60,
		Reasons:              defaultReasons,
	}
}

func TestTicketConfigValidate(t *testing.T) {
	if err := validTicketConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := validTicketConfig()
	cfg.IdleTTLHours = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero idle TTL")
	}

	cfg = validTicketConfig()
	cfg.SweepIntervalMinutes = -5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative sweep interval")
	}

	cfg = validTicketConfig()
	cfg.Reasons = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty reason catalog")
	}

	cfg = validTicketConfig()
	cfg.Reasons = []ReasonOption{{Reason: domain.TicketReason("BILLING"), Label: "Billing"}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown reason in catalog")
	}

	cfg = validTicketConfig()
	cfg.Reasons = []ReasonOption{
		{Reason: domain.TicketReasonOther, Label: "Other"},
		{Reason: domain.TicketReasonOther, Label: "Other again"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate reason in catalog")
	}

	cfg = validTicketConfig()
	cfg.Reasons = []ReasonOption{{Reason: domain.TicketReasonOther, Label: "  "}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for blank label")
	}
}

func TestTicketConfigDurations(t *testing.T) {
	cfg := validTicketConfig()
	if got := cfg.IdleTTL(); got != 12*time.Hour {
		t.Errorf("IdleTTL = %v, want 12h", got)
	}
	if got := cfg.SweepInterval(); got != 30*time.Minute {
		t.Errorf("SweepInterval = %v, want 30m", got)
	}
	if got := cfg.CreateLockTTL(); got != 10*time.Second {
		t.Errorf("CreateLockTTL = %v, want 10s", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.App.Name == "" {
		t.Error("expected default app name")
	}
	if cfg.Ticket.IdleTTLHours <= 0 {
		t.Errorf("expected positive idle TTL default, got %d", cfg.Ticket.IdleTTLHours)
	}
	if len(cfg.Ticket.Reasons) == 0 {
		t.Error("expected default reason catalog")
	}
	if cfg.Provisioner.Timeout() <= 0 {
		t.Error("expected positive provisioner timeout")
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v, want nil", got)
	}
	got := splitList("https://a.example, https://b.example ,")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("splitList returned %v", got)
	}
}
