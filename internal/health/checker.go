// Package health periodically re-verifies the ledger and reports whether the
// node should keep serving.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds integrity check configuration.
type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	FailThreshold int
}

// Verifier is satisfied by chain.Ledger.
type Verifier interface {
	Verify(ctx context.Context) error
}

// StatusFunc is called on every healthy/degraded transition.
type StatusFunc func(healthy bool)

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(success bool)

// Status is a point-in-time view of the checker.
type Status struct {
	Healthy     bool      `json:"healthy"`
	FailCount   int       `json:"fail_count"`
	LastChecked time.Time `json:"last_checked,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Checker runs Verify on a schedule. The node is reported degraded once
// FailThreshold consecutive checks fail and healthy again after the next
// success.
type Checker struct {
	verifier Verifier
	cfg      Config
	logger   *zap.Logger

	onStatus  StatusFunc
	onMetrics MetricsRecordFunc

	mu     sync.Mutex
	status Status
}

// New creates a Checker. It starts healthy.
func New(verifier Verifier, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = time.Minute
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
		status:   Status{Healthy: true},
	}
}

// SetStatusHook configures the transition callback.
func (h *Checker) SetStatusHook(fn StatusFunc) {
	h.onStatus = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one verification and returns whether the node is healthy
// afterwards.
func (h *Checker) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.CheckTimeout)
	defer cancel()

	err := h.verifier.Verify(ctx)
	if h.onMetrics != nil {
		h.onMetrics(err == nil)
	}

	h.mu.Lock()
	wasHealthy := h.status.Healthy
	h.status.LastChecked = time.Now().UTC()
	if err == nil {
		h.status.FailCount = 0
		h.status.LastError = ""
		h.status.Healthy = true
	} else {
		h.status.FailCount++
		h.status.LastError = err.Error()
		if h.status.FailCount >= h.cfg.FailThreshold {
			h.status.Healthy = false
		}
	}
	now := h.status
	h.mu.Unlock()

	switch {
	case wasHealthy && !now.Healthy:
		h.logger.Error("health: ledger integrity check failing",
			zap.Int("fail_count", now.FailCount),
			zap.Error(err),
		)
	case !wasHealthy && now.Healthy:
		h.logger.Info("health: ledger integrity recovered")
	case err != nil:
		h.logger.Warn("health: ledger integrity check failed",
			zap.Int("fail_count", now.FailCount),
			zap.Error(err),
		)
	}
	if wasHealthy != now.Healthy && h.onStatus != nil {
		h.onStatus(now.Healthy)
	}
	return now.Healthy
}

// Status returns the current status.
func (h *Checker) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}
