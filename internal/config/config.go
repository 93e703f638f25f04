package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/uplink-support/ticketd/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Ticket       TicketConfig
	Provisioner  ProvisionerConfig
	KeepAlive    KeepAliveConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token validation parameters. Tokens are issued by
// the external permission layer; this service only verifies them.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// ReasonOption describes one entry of the ticket reason catalog shown
// by the interaction layer.
type ReasonOption struct {
	Reason      domain.TicketReason
	Label       string
	Description string
	Emoji       string
}

// TicketConfig governs lifecycle and sweep behavior.
type TicketConfig struct {
	IdleTTLHours         int
	SweepIntervalMinutes int
	CreateLockTTLSeconds int
	StatsCacheTTLSeconds int
	Reasons              []ReasonOption
}

// ProvisionerConfig points at the chat-platform channel provisioner.
type ProvisionerConfig struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// KeepAliveConfig controls the host self-ping loop.
type KeepAliveConfig struct {
	Enabled         bool
	IntervalMinutes int
	URLs            []string
}

var defaultReasons = []ReasonOption{
	{Reason: domain.TicketReasonAccess, Label: "Access", Description: "Account and permission requests", Emoji: "🔑"},
	{Reason: domain.TicketReasonHardware, Label: "Hardware", Description: "Physical equipment problems", Emoji: "🖥️"},
	{Reason: domain.TicketReasonSoftware, Label: "Software", Description: "Application problems", Emoji: "📦"},
	{Reason: domain.TicketReasonNetwork, Label: "Network", Description: "Connectivity problems", Emoji: "🌐"},
	{Reason: domain.TicketReasonOther, Label: "Other", Description: "Anything else", Emoji: "❓"},
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticketd"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Ticket: TicketConfig{
			IdleTTLHours:         getEnvAsInt("TICKET_IDLE_TTL_HOURS", 12),
			SweepIntervalMinutes: getEnvAsInt("TICKET_SWEEP_INTERVAL_MINUTES", 30),
			CreateLockTTLSeconds: getEnvAsInt("TICKET_CREATE_LOCK_TTL_SECONDS", 10),
			StatsCacheTTLSeconds: getEnvAsInt("TICKET_STATS_CACHE_TTL_SECONDS", 60),
			Reasons:              defaultReasons,
		},
		Provisioner: ProvisionerConfig{
			BaseURL:        getEnv("PROVISIONER_BASE_URL", ""),
			Token:          os.Getenv("PROVISIONER_TOKEN"),
			TimeoutSeconds: getEnvAsInt("PROVISIONER_TIMEOUT_SECONDS", 10),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		KeepAlive: KeepAliveConfig{
			Enabled:         getEnvAsBool("KEEPALIVE_ENABLED", false),
			IntervalMinutes: getEnvAsInt("KEEPALIVE_INTERVAL_MINUTES", 30),
			URLs:            splitList(getEnv("KEEPALIVE_URLS", "")),
		},
	}

	if err := cfg.Ticket.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the ticket section for values that would break the
// lifecycle or the sweep at runtime.
func (t TicketConfig) Validate() error {
	if t.IdleTTLHours <= 0 {
		return fmt.Errorf("TICKET_IDLE_TTL_HOURS must be positive, got %d", t.IdleTTLHours)
	}
	if t.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("TICKET_SWEEP_INTERVAL_MINUTES must be positive, got %d", t.SweepIntervalMinutes)
	}
	if len(t.Reasons) == 0 {
		return fmt.Errorf("reason catalog is empty")
	}
	seen := make(map[domain.TicketReason]struct{}, len(t.Reasons))
	for _, opt := range t.Reasons {
		if _, ok := domain.ParseReason(string(opt.Reason)); !ok {
			return fmt.Errorf("unknown ticket reason %q in catalog", opt.Reason)
		}
		if _, dup := seen[opt.Reason]; dup {
			return fmt.Errorf("duplicate ticket reason %q in catalog", opt.Reason)
		}
		seen[opt.Reason] = struct{}{}
		if strings.TrimSpace(opt.Label) == "" {
			return fmt.Errorf("ticket reason %q has empty label", opt.Reason)
		}
	}
	return nil
}

// IdleTTL returns the idle threshold after which open tickets expire.
func (t TicketConfig) IdleTTL() time.Duration {
	return time.Duration(t.IdleTTLHours) * time.Hour
}

// SweepInterval returns the period between sweep cycles.
func (t TicketConfig) SweepInterval() time.Duration {
	return time.Duration(t.SweepIntervalMinutes) * time.Minute
}

// CreateLockTTL returns the lease duration for the per-user creation lock.
func (t TicketConfig) CreateLockTTL() time.Duration {
	return time.Duration(t.CreateLockTTLSeconds) * time.Second
}

// StatsCacheTTL returns how long aggregate counts may be served from cache.
func (t TicketConfig) StatsCacheTTL() time.Duration {
	return time.Duration(t.StatsCacheTTLSeconds) * time.Second
}

// Interval returns the keep-alive ping period.
func (k KeepAliveConfig) Interval() time.Duration {
	return time.Duration(k.IntervalMinutes) * time.Minute
}

// Timeout returns the bound on a single provisioner call.
func (p ProvisionerConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
