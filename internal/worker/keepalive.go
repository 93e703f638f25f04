package worker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uplink-support/ticketd/internal/config"
)

// KeepAlive pings external URLs on an interval so idle-shutdown hosts
// see outbound traffic. One successful ping per cycle is enough; there
// is deliberately no retry policy beyond trying the next URL.
type KeepAlive struct {
	urls     []string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu   sync.Mutex
	succeeded int
	failed    int
}

// KeepAliveStats is a snapshot of ping counters.
type KeepAliveStats struct {
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Running   bool `json:"running"`
}

// NewKeepAlive constructs a stopped pinger.
func NewKeepAlive(cfg config.KeepAliveConfig, logger *zap.Logger) *KeepAlive {
	return &KeepAlive{
		urls:     cfg.URLs,
		interval: cfg.Interval(),
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// Start launches the ping loop; no-op when already running or when no
// URLs are configured.
func (k *KeepAlive) Start(ctx context.Context) {
	if len(k.urls) == 0 {
		k.logger.Info("keep-alive disabled: no URLs configured")
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.done = make(chan struct{})

	go k.run(ctx)
	k.logger.Info("keep-alive started", zap.Duration("interval", k.interval))
}

// Stop cancels the loop.
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel = nil
	k.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	k.logger.Info("keep-alive stopped")
}

// Stats returns a snapshot of the ping counters.
func (k *KeepAlive) Stats() KeepAliveStats {
	k.mu.Lock()
	running := k.cancel != nil
	k.mu.Unlock()

	k.statsMu.Lock()
	defer k.statsMu.Unlock()
	return KeepAliveStats{Succeeded: k.succeeded, Failed: k.failed, Running: running}
}

func (k *KeepAlive) run(ctx context.Context) {
	defer close(k.done)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.PingOnce(ctx)
		}
	}
}

// PingOnce walks the URL list until one responds, recording the
// outcome.
func (k *KeepAlive) PingOnce(ctx context.Context) bool {
	for _, url := range k.urls {
		if ctx.Err() != nil {
			return false
		}
		if k.ping(ctx, url) {
			k.statsMu.Lock()
			k.succeeded++
			k.statsMu.Unlock()
			return true
		}
	}
	k.statsMu.Lock()
	k.failed++
	k.statsMu.Unlock()
	k.logger.Warn("keep-alive cycle failed: no URL reachable", zap.Int("urls", len(k.urls)))
	return false
}

func (k *KeepAlive) ping(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := k.client.Do(req)
	if err != nil {
		k.logger.Debug("keep-alive ping failed", zap.String("url", url), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
