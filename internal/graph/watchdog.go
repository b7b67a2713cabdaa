package graph

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rxtd-audio/soundgraph/internal/logging"
)

// Watchdog tracks tick health for a single Engine, grounded on the
// teacher's AudioHealthMonitor (silence-duration tracking + threshold
// callback), re-purposed here for "has this engine actually produced a
// good tick recently" rather than per-source silence detection -- this
// engine has no audio-capture layer of its own to watch, only the
// Update call cadence the host drives it with.
type Watchdog struct {
	mu             sync.Mutex
	staleTimeout   time.Duration
	lastGoodTick   time.Time
	consecutiveBad int
	onUnhealthy    func(consecutiveBad int, staleness time.Duration)
	logger         *slog.Logger
}

// NewWatchdog builds a watchdog that considers the engine unhealthy once
// staleTimeout has elapsed since the last StatusOk Update call.
// onUnhealthy may be nil.
func NewWatchdog(staleTimeout time.Duration, onUnhealthy func(consecutiveBad int, staleness time.Duration)) *Watchdog {
	return &Watchdog{
		staleTimeout: staleTimeout,
		lastGoodTick: time.Now(),
		onUnhealthy:  onUnhealthy,
		logger:       logging.ForService("graph"),
	}
}

// Observe records the outcome of one Engine.Update call.
func (w *Watchdog) Observe(status Status) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if status == StatusOk {
		w.lastGoodTick = time.Now()
		w.consecutiveBad = 0
		return
	}

	w.consecutiveBad++
	staleness := time.Since(w.lastGoodTick)
	if staleness < w.staleTimeout {
		return
	}
	if w.logger != nil {
		w.logger.Warn("engine tick stream stale",
			"consecutive_bad", w.consecutiveBad, "staleness", staleness, "status", status.String())
	}
	if w.onUnhealthy != nil {
		w.onUnhealthy(w.consecutiveBad, staleness)
	}
}

// Healthy reports whether a good tick has happened within staleTimeout.
func (w *Watchdog) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Since(w.lastGoodTick) < w.staleTimeout
}
