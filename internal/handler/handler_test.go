package handler

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(n int, freq, sampleRate float64) Wave {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	return Wave{Samples: samples, SampleRate: sampleRate}
}

func silenceWave(n int, sampleRate float64) Wave {
	return Wave{Samples: make([]float32, n), SampleRate: sampleRate}
}

func TestBlockRmsSilenceProducesFloor(t *testing.T) {
	h := &BlockRms{}
	opts := NewConfigNode(map[string]string{"block-size": "10"})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	_, err = h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)

	wave := silenceWave(48000/100*2, 48000)
	var got []float64
	_ = h.Process(ProcessContext{Wave: wave}, nil, func(layer int, values []float64, eq int) {
		got = append(got, values[0])
	})
	require.NotEmpty(t, got)
	for _, v := range got {
		assert.InDelta(t, 0, v, 1e-9)
	}
}

func TestBlockRmsFullScaleSine(t *testing.T) {
	h := &BlockRms{}
	opts := NewConfigNode(map[string]string{"block-size": "100"})
	res, _ := h.Parse(opts)
	_, err := h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)

	wave := sineWave(48000, 1000, 48000)
	var got []float64
	_ = h.Process(ProcessContext{Wave: wave}, nil, func(layer int, values []float64, eq int) {
		got = append(got, values[0])
	})
	require.NotEmpty(t, got)
	// RMS of a full-scale sine is 1/sqrt(2)
	assert.InDelta(t, 1/math.Sqrt2, got[len(got)-1], 0.05)
}

func TestBlockPeakTracksAmplitude(t *testing.T) {
	h := &BlockPeak{}
	opts := NewConfigNode(map[string]string{"block-size": "100"})
	res, _ := h.Parse(opts)
	_, err := h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)

	wave := sineWave(4800, 1000, 48000)
	var got []float64
	_ = h.Process(ProcessContext{Wave: wave}, nil, func(layer int, values []float64, eq int) {
		got = append(got, values[0])
	})
	require.NotEmpty(t, got)
	assert.InDelta(t, 1.0, got[len(got)-1], 0.05)
}

func TestFftAnalyzerPeakBinTracksTone(t *testing.T) {
	h := &FftAnalyzer{}
	opts := NewConfigNode(map[string]string{"bin-width": "50", "cascades": "1", "window": "hann"})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	size, err := h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)
	require.Equal(t, 1, size.LayersCount)

	wave := sineWave(48000, 1000, 48000)
	var last []float64
	err = h.Process(ProcessContext{Wave: wave}, nil, func(layer int, values []float64, eq int) {
		last = append([]float64(nil), values...)
	})
	require.NoError(t, err)
	require.NotEmpty(t, last)

	peak := 0
	for i, v := range last {
		if v > last[peak] {
			peak = i
		}
	}
	binWidth := 48000.0 / float64(2*len(last))
	peakFreq := float64(peak) * binWidth
	assert.InDelta(t, 1000, peakFreq, binWidth*2)
}

// stubSource is a minimal SourceProvider for unit testing handlers that
// read from an upstream instead of the raw wave.
type stubSource struct {
	size       DataSize
	sampleRate float64
	chunks     [][]Chunk
	last       []Chunk
	weights    [][]float64 // per band, per cascade -- satisfies bandWeightsSource when set
}

func (s *stubSource) DataSize() DataSize  { return s.size }
func (s *stubSource) SampleRate() float64 { return s.sampleRate }
func (s *stubSource) Chunks(layer int) []Chunk {
	if layer < 0 || layer >= len(s.chunks) {
		return nil
	}
	return s.chunks[layer]
}
func (s *stubSource) LastValue(layer int) Chunk {
	if layer < 0 || layer >= len(s.last) {
		return Chunk{}
	}
	return s.last[layer]
}
func (s *stubSource) BandWeights(band int) []float64 {
	if band < 0 || band >= len(s.weights) {
		return nil
	}
	return s.weights[band]
}

func TestTimeResamplerRateInvariance(t *testing.T) {
	// A source emitting one chunk per 100 input samples, equivalent
	// wave size 100. TimeResampler at blockSize 480 should emit a chunk
	// every ~480 input samples regardless of how many source chunks
	// arrive per Process call.
	size := NewUniformDataSize(1, 1, 100)
	src := &stubSource{size: size, sampleRate: 48000, last: []Chunk{{Values: []float64{0}}}}

	h := &TimeResampler{}
	opts := NewConfigNode(map[string]string{"source": "src", "granularity": "10"})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	_, err = h.Configure(res.Params, src, 48000)
	require.NoError(t, err)

	pushCount := 0
	push := func(layer int, values []float64, eq int) { pushCount++ }

	// Feed 10 ticks of 100 samples each, one chunk of value 1.0 per
	// tick -- 1000 samples total at blockSize 480 should yield 2 pushes.
	for i := 0; i < 10; i++ {
		src.chunks = [][]Chunk{{{EquivalentWaveSize: 100, Values: []float64{1.0}}}}
		src.last = []Chunk{{EquivalentWaveSize: 100, Values: []float64{1.0}}}
		err = h.Process(ProcessContext{Wave: Wave{Samples: make([]float32, 100), SampleRate: 48000}}, src, push)
		require.NoError(t, err)
	}
	assert.Equal(t, 1000/480, pushCount)
}

func TestSpectrogramAccumulatesColumnsAndHandlesSilence(t *testing.T) {
	// A source emitting one chunk of 8 bands per 100-sample block,
	// equivalent wave size 100. At sample_rate=48000 and update-rate=480
	// Hz, blockSize = 100, so each fed chunk yields exactly one strip.
	size := NewUniformDataSize(1, 8, 100)
	src := &stubSource{size: size, sampleRate: 48000, last: []Chunk{{EquivalentWaveSize: 100, Values: make([]float64, 8)}}}

	h := &Spectrogram{}
	opts := NewConfigNode(map[string]string{"source": "src", "length": "4", "update-rate": "480", "silence-threshold": "-70"})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	_, err = h.Configure(res.Params, src, 48000)
	require.NoError(t, err)

	ctx := ProcessContext{Wave: Wave{Samples: make([]float32, 100), SampleRate: 48000}}

	src.chunks = [][]Chunk{{{EquivalentWaveSize: 100, Values: []float64{0, 1, 2, 3, 4, 5, 6, 7}}}}
	require.NoError(t, h.Process(ctx, src, func(int, []float64, int) {}))

	src.chunks = [][]Chunk{{{EquivalentWaveSize: 100, Values: nil}}}
	require.NoError(t, h.Process(ctx, src, func(int, []float64, int) {}))

	assert.Equal(t, 2, h.Image().Width())
	assert.Equal(t, 8, h.Image().Height())
}

func TestBandResamplerEmitsOneLayerPerActiveCascade(t *testing.T) {
	size := DataSize{LayersCount: 2, ValuesCount: []int{129, 129}, EqWaveSizes: []int{1, 2}}
	src := &stubSource{size: size, sampleRate: 48000}
	cascade0 := make([]float64, 129)
	for i := range cascade0 {
		cascade0[i] = float64(i)
	}
	src.chunks = [][]Chunk{
		{{EquivalentWaveSize: 1, Values: cascade0}},
		{{EquivalentWaveSize: 2, Values: make([]float64, 129)}},
	}

	h := &BandResampler{}
	opts := NewConfigNode(map[string]string{"source": "fft", "bands": "100,1000,10000"})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	size, err = h.Configure(res.Params, src, 48000)
	require.NoError(t, err)
	require.Equal(t, 2, size.LayersCount, "one layer per active cascade, not one merged layer")
	for _, vc := range size.ValuesCount {
		assert.Equal(t, 2, vc)
	}

	out := map[int][]float64{}
	err = h.Process(ProcessContext{}, src, func(layer int, values []float64, eq int) {
		out[layer] = append([]float64(nil), values...)
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, out[0], 2)
	assert.Len(t, out[1], 2)

	w0 := h.BandWeights(0)
	require.Len(t, w0, 2)
}

func TestBandResamplerMinMaxCascadeRestrictsActiveRange(t *testing.T) {
	size := DataSize{LayersCount: 4, ValuesCount: []int{129, 129, 129, 129}, EqWaveSizes: []int{1, 2, 4, 8}}
	src := &stubSource{size: size, sampleRate: 48000}

	h := &BandResampler{}
	opts := NewConfigNode(map[string]string{
		"source": "fft", "bands": "100,1000,10000", "min-cascade": "2", "max-cascade": "3",
	})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	out, err := h.Configure(res.Params, src, 48000)
	require.NoError(t, err)
	assert.Equal(t, 2, out.LayersCount)
}

// plainStubSource satisfies SourceProvider but not bandWeightsSource,
// standing in for wiring BandCascadeTransformer straight to something
// like an FftAnalyzer instead of a BandResampler.
type plainStubSource struct {
	size       DataSize
	sampleRate float64
}

func (s *plainStubSource) DataSize() DataSize      { return s.size }
func (s *plainStubSource) SampleRate() float64     { return s.sampleRate }
func (s *plainStubSource) Chunks(layer int) []Chunk { return nil }
func (s *plainStubSource) LastValue(layer int) Chunk { return Chunk{} }

func TestBandCascadeTransformerRequiresBandResamplerSource(t *testing.T) {
	h := &BandCascadeTransformer{}
	opts := NewConfigNode(map[string]string{"source": "fft"})
	res, err := h.Parse(opts)
	require.NoError(t, err)

	// A plain source with no BandWeights method is not a
	// bandWeightsSource, so Configure must fail here, not silently
	// misinterpret layer 0 as a cascade. (Inside a graph every Ring has
	// BandWeights; construct.go rejects a non-BandResampler source first.)
	size := DataSize{LayersCount: 2, ValuesCount: []int{129, 129}, EqWaveSizes: []int{1, 2}}
	plainSrc := &plainStubSource{size: size, sampleRate: 48000}
	_, err = h.Configure(res.Params, plainSrc, 48000)
	require.Error(t, err)
}

func TestBandCascadeTransformerMixesCascadesByWeight(t *testing.T) {
	// Two cascades, three bands. Cascade 0 is the finer one (bigger
	// weight) for band 0; cascade 1 picks up where cascade 0's weight
	// runs out.
	size := DataSize{LayersCount: 2, ValuesCount: []int{3, 3}, EqWaveSizes: []int{1, 2}}
	src := &stubSource{
		size:       size,
		sampleRate: 48000,
		weights: [][]float64{
			{2.0, 1.0},
			{3.0, 3.0},
			{3.0, 3.0},
		},
		last: []Chunk{
			{Values: []float64{10, 20, 30}},
			{Values: []float64{11, 21, 31}},
		},
	}

	h := &BandCascadeTransformer{}
	opts := NewConfigNode(map[string]string{"source": "resampler"})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	dataSize, err := h.Configure(res.Params, src, 48000)
	require.NoError(t, err)
	require.Equal(t, 1, dataSize.LayersCount)
	require.Equal(t, 3, dataSize.ValuesCount[0])

	var out []float64
	err = h.Process(ProcessContext{}, src, func(layer int, values []float64, eq int) {
		out = values
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.Greater(t, v, 0.0)
	}

	count, ok := h.GetProp("band-count")
	require.True(t, ok)
	assert.Equal(t, 3, count)
}

func TestUniformBlurRadiusAdaptsPerLayer(t *testing.T) {
	size := DataSize{LayersCount: 2, ValuesCount: []int{5, 5}, EqWaveSizes: []int{1, 1}}
	src := &stubSource{size: size, sampleRate: 48000}
	src.chunks = [][]Chunk{
		{{Values: []float64{0, 0, 10, 0, 0}}},
		{{Values: []float64{0, 0, 10, 0, 0}}},
	}

	h := &UniformBlur{}
	opts := NewConfigNode(map[string]string{"source": "src", "radius": "1", "radius-adaptation": "2"})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	_, err = h.Configure(res.Params, src, 48000)
	require.NoError(t, err)

	assert.Equal(t, 1, h.radiusForLayer(0))
	assert.Equal(t, 2, h.radiusForLayer(1))

	out := map[int][]float64{}
	err = h.Process(ProcessContext{}, src, func(layer int, values []float64, eq int) {
		out[layer] = values
	})
	require.NoError(t, err)

	// layer 1's wider kernel spreads the central spike further than
	// layer 0's, so its edge values pick up more energy.
	assert.Greater(t, out[1][0], out[0][0])
}

func TestKillDeadlineOverrunDuplicatesLastValue(t *testing.T) {
	h := &BlockRms{}
	opts := NewConfigNode(map[string]string{"block-size": "1000"})
	res, _ := h.Parse(opts)
	_, err := h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)

	past := time.Now().Add(-time.Second)
	var got []float64
	wave := sineWave(48000, 1000, 48000)
	err = h.Process(ProcessContext{Wave: wave, Deadline: past}, nil, func(layer int, values []float64, eq int) {
		got = append(got, values[0])
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestBlockRmsSilenceThroughTransformChainFloorsAtZero(t *testing.T) {
	// spec.md §8 scenario 1: 1s of silence at 48kHz, update-rate 60Hz,
	// transform "db -> map[-70:0 to 0:1] -> clamp[0,1]" floors every
	// emitted value at 0.0 once the first block has filled.
	h := &BlockRms{}
	opts := NewConfigNode(map[string]string{
		"update-rate": "60",
		"transform":   "db;map[-70,0,0,1];clamp[0,1]",
	})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	_, err = h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)

	wave := silenceWave(48000, 48000)
	var got []float64
	err = h.Process(ProcessContext{Wave: wave}, nil, func(layer int, values []float64, eq int) {
		got = append(got, values[0])
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, v := range got {
		assert.Equal(t, 0.0, v)
	}
}

func TestWaveFormAccumulatesImageAndValues(t *testing.T) {
	h := &WaveForm{}
	opts := NewConfigNode(map[string]string{
		"width": "4", "height": "8", "update-rate": "100",
	})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	_, err = h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)

	wave := sineWave(48000/100*4, 1000, 48000)
	var got [][]float64
	err = h.Process(ProcessContext{Wave: wave, OriginalWave: wave}, nil, func(layer int, values []float64, eq int) {
		got = append(got, values)
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, v := range got {
		require.Len(t, v, 2)
		assert.LessOrEqual(t, v[0], v[1])
	}
	assert.Equal(t, 8, h.Image().Height())
	assert.Equal(t, len(got), h.Image().Width())
}

func TestWaveFormSilenceBelowThresholdPushesEmptyStrips(t *testing.T) {
	h := &WaveForm{}
	opts := NewConfigNode(map[string]string{
		"width": "4", "height": "8", "update-rate": "100", "silence-threshold": "-60",
	})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	_, err = h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)

	wave := silenceWave(48000/100*4, 48000)
	err = h.Process(ProcessContext{Wave: wave, OriginalWave: wave}, nil, func(int, []float64, int) {})
	require.NoError(t, err)
	assert.Greater(t, h.Image().EmptyRunLength(), 0)
}

func TestLoudnessSilenceFloorsAtGatingDB(t *testing.T) {
	h := &Loudness{}
	opts := NewConfigNode(map[string]string{"update-rate": "60", "gating": "-60"})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	_, err = h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)

	wave := silenceWave(48000, 48000)
	var last float64
	err = h.Process(ProcessContext{Wave: wave}, nil, func(layer int, values []float64, eq int) {
		last = values[0]
	})
	require.NoError(t, err)
	assert.Equal(t, -60.0, last)
}

func TestLoudnessFullScaleSineExceedsGatingFloor(t *testing.T) {
	h := &Loudness{}
	opts := NewConfigNode(map[string]string{"update-rate": "30", "time-window": "200", "gating": "-70"})
	res, err := h.Parse(opts)
	require.NoError(t, err)
	_, err = h.Configure(res.Params, nil, 48000)
	require.NoError(t, err)

	wave := sineWave(48000, 1000, 48000)
	var last float64
	err = h.Process(ProcessContext{Wave: wave}, nil, func(layer int, values []float64, eq int) {
		last = values[0]
	})
	require.NoError(t, err)
	assert.Greater(t, last, -20.0)
}

func TestAllRegisteredTypesConstruct(t *testing.T) {
	for _, name := range KnownTypes() {
		h, ok := New(name)
		assert.True(t, ok)
		assert.NotNil(t, h)
	}
}
