// Package metrics exposes the engine's tick-loop health to Prometheus,
// grounded on the teacher's internal/audiocore.MetricsCollector: an
// optional, nil-safe collector wired into the Update path rather than a
// package-level singleton the DSP core reaches for itself. A nil
// *Collector is valid and every method on it is a no-op, the same
// contract GetMetrics() gives audiocore components that run with
// metrics disabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every Prometheus instrument the engine's tick loop
// reports through. Unlike the teacher's collector it has no global
// instance or Once-guarded init: a host constructs one per Engine (or
// shares one registry-backed instance across engines) and passes it in.
type Collector struct {
	tickDuration   *prometheus.HistogramVec
	handlerOverrun *prometheus.CounterVec
	droppedChunks  *prometheus.CounterVec
	groupsActive   *prometheus.GaugeVec
}

// NewCollector registers every instrument against reg and returns the
// collector. Pass a *prometheus.Registry for tests (so repeated test
// runs don't collide on the default global registry, the same pattern
// myaudio_test.go uses via NewMyAudioMetrics(registry)).
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soundgraph",
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock time spent driving one processing group through one channel's handler graph.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"group", "channel"}),
		handlerOverrun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soundgraph",
			Subsystem: "engine",
			Name:      "handler_overrun_total",
			Help:      "Number of Process calls that observed an already-passed kill deadline (spec.md §5).",
		}, []string{"group", "channel", "handler"}),
		droppedChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soundgraph",
			Subsystem: "engine",
			Name:      "dropped_chunks_total",
			Help:      "Number of handler Process calls that returned an error and produced no chunk this tick.",
		}, []string{"group", "channel", "handler"}),
		groupsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "soundgraph",
			Subsystem: "engine",
			Name:      "groups_active",
			Help:      "1 if a processing group is currently live after the last Reload, 0 if it was dropped.",
		}, []string{"group"}),
	}

	collectors := []prometheus.Collector{c.tickDuration, c.handlerOverrun, c.droppedChunks, c.groupsActive}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordTick reports how long one (group, channel) tick took.
func (c *Collector) RecordTick(group, channel string, d time.Duration) {
	if c == nil {
		return
	}
	c.tickDuration.WithLabelValues(group, channel).Observe(d.Seconds())
}

// RecordHandlerOverrun increments the overrun counter for one handler.
func (c *Collector) RecordHandlerOverrun(group, channel, handler string) {
	if c == nil {
		return
	}
	c.handlerOverrun.WithLabelValues(group, channel, handler).Inc()
}

// RecordDroppedChunk increments the dropped-chunk counter for one handler.
func (c *Collector) RecordDroppedChunk(group, channel, handler string) {
	if c == nil {
		return
	}
	c.droppedChunks.WithLabelValues(group, channel, handler).Inc()
}

// SetGroupActive reports a processing group's liveness after a Reload.
func (c *Collector) SetGroupActive(group string, active bool) {
	if c == nil {
		return
	}
	v := 0.0
	if active {
		v = 1.0
	}
	c.groupsActive.WithLabelValues(group).Set(v)
}
