package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsTickDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.RecordTick("Processing-1", "Left", 2*time.Millisecond)

	count := testutil.CollectAndCount(c.tickDuration)
	assert.Equal(t, 1, count)
}

func TestCollectorRecordsOverrunAndDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.RecordHandlerOverrun("Processing-1", "Left", "fft")
	c.RecordHandlerOverrun("Processing-1", "Left", "fft")
	c.RecordDroppedChunk("Processing-1", "Left", "fft")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.handlerOverrun.WithLabelValues("Processing-1", "Left", "fft")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.droppedChunks.WithLabelValues("Processing-1", "Left", "fft")))
}

func TestCollectorGroupActiveToggles(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.SetGroupActive("Processing-1", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.groupsActive.WithLabelValues("Processing-1")))

	c.SetGroupActive("Processing-1", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.groupsActive.WithLabelValues("Processing-1")))
}

func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTick("g", "Left", time.Millisecond)
		c.RecordHandlerOverrun("g", "Left", "h")
		c.RecordDroppedChunk("g", "Left", "h")
		c.SetGroupActive("g", true)
	})
}
