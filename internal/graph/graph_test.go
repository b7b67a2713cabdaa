package graph

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rxtd-audio/soundgraph/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func blockRmsConfig(raw string) GroupConfig {
	return GroupConfig{
		Name:         "g",
		Channels:     []string{"Mono"},
		HandlerOrder: []string{"r"},
		Handlers: map[string]HandlerConfig{
			"r": {
				Name:    "r",
				Type:    "BlockRms",
				Options: map[string]string{"block-size": "2"}, // 2ms @ 48kHz = 96 samples/block
				Raw:     raw,
			},
		},
	}
}

func TestBuildGroupTopologicalOrder(t *testing.T) {
	cfg := GroupConfig{
		Name:         "g",
		Channels:     []string{"Mono"},
		HandlerOrder: []string{"r", "t"},
		Handlers: map[string]HandlerConfig{
			"r": {Name: "r", Type: "BlockRms", Options: map[string]string{"block-size": "10"}, Raw: "v1"},
			"t": {Name: "t", Type: "SingleValueTransformer", Source: "r", Options: map[string]string{"source": "r", "transform": "db"}, Raw: "v1"},
		},
	}
	cache := NewHandlerCache()
	g, err := buildGroup(cache, nil, cfg, 48000)
	require.NoError(t, err)

	node, ok := g.Node(ChannelMono, "t")
	require.True(t, ok)
	assert.True(t, node.ok)
	assert.Equal(t, "r", node.sourceName)
}

func TestBuildGroupRejectsForwardReference(t *testing.T) {
	cfg := GroupConfig{
		Name:         "g",
		Channels:     []string{"Mono"},
		HandlerOrder: []string{"t", "r"}, // t declared before its source r
		Handlers: map[string]HandlerConfig{
			"t": {Name: "t", Type: "SingleValueTransformer", Source: "r", Options: map[string]string{"source": "r", "transform": "db"}, Raw: "v1"},
			"r": {Name: "r", Type: "BlockRms", Options: map[string]string{"block-size": "10"}, Raw: "v1"},
		},
	}
	cache := NewHandlerCache()
	g, err := buildGroup(cache, nil, cfg, 48000)
	require.NoError(t, err)

	_, ok := g.Node(ChannelMono, "t")
	assert.False(t, ok, "forward-referencing handler must be skipped, not built")

	rNode, ok := g.Node(ChannelMono, "r")
	require.True(t, ok)
	assert.True(t, rNode.ok)
}

func TestBuildGroupRejectsUnknownSource(t *testing.T) {
	cfg := GroupConfig{
		Name:         "g",
		Channels:     []string{"Mono"},
		HandlerOrder: []string{"t"},
		Handlers: map[string]HandlerConfig{
			"t": {Name: "t", Type: "SingleValueTransformer", Source: "ghost", Options: map[string]string{"source": "ghost", "transform": "db"}, Raw: "v1"},
		},
	}
	cache := NewHandlerCache()
	g, err := buildGroup(cache, nil, cfg, 48000)
	require.NoError(t, err)

	_, ok := g.Node(ChannelMono, "t")
	assert.False(t, ok)
}

func TestBuildGroupDuplicateHandlerNameInvalidatesGroup(t *testing.T) {
	cfg := GroupConfig{
		Name:         "g",
		Channels:     []string{"Mono"},
		HandlerOrder: []string{"r", "r"},
		Handlers: map[string]HandlerConfig{
			"r": {Name: "r", Type: "BlockRms", Options: map[string]string{"block-size": "10"}, Raw: "v1"},
		},
	}
	cache := NewHandlerCache()
	_, err := buildGroup(cache, nil, cfg, 48000)
	assert.Error(t, err)
}

func TestEngineReloadIdempotencePreservesHandlerState(t *testing.T) {
	e := NewEngine()
	tree := ConfigTree{
		GroupOrder: []string{"g"},
		Groups:     map[string]GroupConfig{"g": blockRmsConfig("v1")},
	}
	require.NoError(t, e.Reload(tree, 1, 48000))

	g := e.groups["g"]
	node1, ok := g.Node(ChannelMono, "r")
	require.True(t, ok)

	// Feed a partial block (60 of 96 samples) so internal state is
	// mid-accumulation, not freshly reset.
	wave := make([]float32, 60)
	for i := range wave {
		wave[i] = 0.5
	}
	g.Tick(ChannelMono, wave, 48000, time.Time{}, nil)

	// Reload with the identical raw description; the cache must not
	// reparse, and the same channel instance (and its mid-block state)
	// must be preserved rather than rebuilt from scratch.
	require.NoError(t, e.Reload(tree, 2, 48000))
	g2 := e.groups["g"]
	node2, ok := g2.Node(ChannelMono, "r")
	require.True(t, ok)

	assert.Same(t, node1.handler, node2.handler, "unchanged config must preserve the live handler instance")
}

func TestEngineReloadChangedConfigRebuildsHandler(t *testing.T) {
	e := NewEngine()
	tree1 := ConfigTree{
		GroupOrder: []string{"g"},
		Groups:     map[string]GroupConfig{"g": blockRmsConfig("v1")},
	}
	require.NoError(t, e.Reload(tree1, 1, 48000))
	g1 := e.groups["g"]
	node1, _ := g1.Node(ChannelMono, "r")

	tree2 := ConfigTree{
		GroupOrder: []string{"g"},
		Groups:     map[string]GroupConfig{"g": blockRmsConfig("v2")},
	}
	require.NoError(t, e.Reload(tree2, 2, 48000))
	g2 := e.groups["g"]
	node2, _ := g2.Node(ChannelMono, "r")

	assert.NotSame(t, node1.handler, node2.handler, "a changed raw description must force a fresh instance")
}

func TestEngineUpdateAndReadNumber(t *testing.T) {
	e := NewEngine()
	tree := ConfigTree{
		GroupOrder: []string{"g"},
		Groups:     map[string]GroupConfig{"g": blockRmsConfig("v1")},
	}
	require.NoError(t, e.Reload(tree, 1, 48000))

	_, ok := e.ReadNumber("g", ChannelMono, "r", 0)
	assert.False(t, ok, "no data before the first tick")

	frames := make([]float32, 200)
	for i := range frames {
		frames[i] = 1.0
	}
	status := e.Update(frames, []Channel{ChannelMono}, 48000, time.Time{})
	assert.Equal(t, StatusOk, status)

	v, ok := e.ReadNumber("g", ChannelMono, "r", 0)
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 0.05)
}

func TestEngineUpdateKillDeadlineStillYieldsLastData(t *testing.T) {
	e := NewEngine()
	tree := ConfigTree{
		GroupOrder: []string{"g"},
		Groups:     map[string]GroupConfig{"g": blockRmsConfig("v1")},
	}
	require.NoError(t, e.Reload(tree, 1, 48000))

	frames := make([]float32, 200)
	for i := range frames {
		frames[i] = 1.0
	}
	past := time.Now().Add(-time.Second)
	status := e.Update(frames, []Channel{ChannelMono}, 48000, past)
	assert.Equal(t, StatusOk, status)

	_, ok := e.ReadNumber("g", ChannelMono, "r", 0)
	assert.True(t, ok, "get_last_data must remain non-empty after a deadline-exceeded tick")
}

func TestEngineUpdateEmptyFramesIsFetchError(t *testing.T) {
	e := NewEngine()
	status := e.Update(nil, []Channel{ChannelMono}, 48000, time.Time{})
	assert.Equal(t, StatusFetchError, status)
}

// fftBandChainConfig wires FftAnalyzer -> BandResampler ->
// BandCascadeTransformer, the exact edge spec.md §4.3.5 requires:
// BandCascadeTransformer's source must resolve to a BandResampler, which
// in turn must resolve to an FftAnalyzer.
func fftBandChainConfig() GroupConfig {
	return GroupConfig{
		Name:         "g",
		Channels:     []string{"Mono"},
		HandlerOrder: []string{"fft", "br", "bc"},
		Handlers: map[string]HandlerConfig{
			"fft": {
				Name:    "fft",
				Type:    "FftAnalyzer",
				Options: map[string]string{"bin-width": "2000", "cascades": "2", "window": "hann"},
				Raw:     "v1",
			},
			"br": {
				Name:    "br",
				Type:    "BandResampler",
				Source:  "fft",
				Options: map[string]string{"source": "fft", "bands": "100,1000,10000"},
				Raw:     "v1",
			},
			"bc": {
				Name:    "bc",
				Type:    "BandCascadeTransformer",
				Source:  "br",
				Options: map[string]string{"source": "br"},
				Raw:     "v1",
			},
		},
	}
}

func TestFftBandResamplerBandCascadeTransformerChainProducesPerBandOutput(t *testing.T) {
	cache := NewHandlerCache()
	g, err := buildGroup(cache, nil, fftBandChainConfig(), 48000)
	require.NoError(t, err)

	fftNode, ok := g.Node(ChannelMono, "fft")
	require.True(t, ok)
	assert.True(t, fftNode.ok)
	brNode, ok := g.Node(ChannelMono, "br")
	require.True(t, ok)
	assert.True(t, brNode.ok, "BandResampler must bind to the FftAnalyzer source")
	assert.Greater(t, brNode.dataSize.LayersCount, 1, "BandResampler emits one layer per active cascade")
	bcNode, ok := g.Node(ChannelMono, "bc")
	require.True(t, ok)
	assert.True(t, bcNode.ok, "BandCascadeTransformer must bind to the BandResampler source")

	wave := make([]float32, 48000)
	for i := range wave {
		wave[i] = float32(0.8 * sineAt(1000, 48000, i))
	}
	for i := 0; i < 5; i++ {
		g.Tick(ChannelMono, wave, 48000, time.Time{}, nil)
	}

	out := bcNode.ring.LastValue(0)
	require.Len(t, out.Values, 2, "one value per band")
	for _, v := range out.Values {
		assert.False(t, v != v, "value must not be NaN") // NaN != NaN
	}
}

func TestBuildChannelGraphRejectsWrongSourceType(t *testing.T) {
	cfg := fftBandChainConfig()
	// Point bc straight at the FftAnalyzer instead of the BandResampler
	// -- spec.md §4.1's required-type check must reject this as
	// InvalidSource rather than silently misinterpreting fft's cascade
	// layers as BandResampler's band layers.
	bc := cfg.Handlers["bc"]
	bc.Source = "fft"
	bc.Options = map[string]string{"source": "fft"}
	cfg.Handlers["bc"] = bc

	cache := NewHandlerCache()
	g, err := buildGroup(cache, nil, cfg, 48000)
	require.NoError(t, err)

	_, ok := g.Node(ChannelMono, "bc")
	assert.False(t, ok, "a handler wired to the wrong concrete source type must not be built")
}

func TestEngineRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	e := NewEngine()
	e.SetMetrics(collector)

	tree := ConfigTree{
		GroupOrder: []string{"g"},
		Groups:     map[string]GroupConfig{"g": blockRmsConfig("v1")},
	}
	require.NoError(t, e.Reload(tree, 1, 48000))

	frames := make([]float32, 96)
	status := e.Update(frames, []Channel{ChannelMono}, 48000, time.Time{})
	assert.Equal(t, StatusOk, status)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	var sawTickDuration, sawGroupActive bool
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "soundgraph_engine_tick_duration_seconds":
			sawTickDuration = len(mf.GetMetric()) > 0
		case "soundgraph_engine_groups_active":
			sawGroupActive = mf.GetMetric()[0].GetGauge().GetValue() == 1
		}
	}
	assert.True(t, sawTickDuration, "expected a tick_duration_seconds observation after Update")
	assert.True(t, sawGroupActive, "expected groups_active to report the live group")
}
