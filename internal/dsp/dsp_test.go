package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFastSizeIsFiveSmooth(t *testing.T) {
	for n := 1; n < 2000; n++ {
		got := NextFastSize(n)
		assert.GreaterOrEqualf(t, got, n, "NextFastSize(%d) = %d should be >= n", n, got)
		assert.GreaterOrEqual(t, got, 16)
		assert.True(t, is5Smooth(got), "NextFastSize(%d) = %d is not 5-smooth", n, got)
	}
}

func TestNextFastSizeIdempotentOnFastSize(t *testing.T) {
	for _, n := range []int{16, 18, 20, 24, 30, 32, 36, 40, 48, 60, 64, 100, 128} {
		assert.Equal(t, n, NextFastSize(n))
	}
}

func FuzzNextFastSize(f *testing.F) {
	f.Add(0)
	f.Add(17)
	f.Add(1000)
	f.Fuzz(func(t *testing.T, n int) {
		if n < 0 || n > 1_000_000 {
			t.Skip()
		}
		got := NextFastSize(n)
		assert.True(t, is5Smooth(got))
		assert.GreaterOrEqual(t, got, 16)
	})
}

func TestFFTRoundTrip(t *testing.T) {
	data := make([]complex128, 64)
	for i := range data {
		data[i] = complex(math.Sin(float64(i)*0.3), 0)
	}
	original := append([]complex128(nil), data...)

	FFT(data)
	IFFT(data)

	for i := range data {
		assert.InDelta(t, real(original[i]), real(data[i]), 1e-9)
		assert.InDelta(t, imag(original[i]), imag(data[i]), 1e-9)
	}
}

func TestTransformNHandlesNonPowerOfTwo(t *testing.T) {
	n := 24 // 5-smooth, not a power of two
	data := make([]complex128, n)
	for i := range data {
		data[i] = complex(math.Cos(2*math.Pi*3*float64(i)/float64(n)), 0)
	}
	out := TransformN(data)
	require.Len(t, out, n)

	mags := make([]float64, n)
	for i, c := range out {
		mags[i] = math.Hypot(real(c), imag(c))
	}
	peakBin := 0
	for i, m := range mags {
		if m > mags[peakBin] {
			peakBin = i
		}
	}
	assert.Equal(t, 3, peakBin)
}

func TestRealSpectrumSineBinLocation(t *testing.T) {
	const n = 256
	const binIndex = 10
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * float64(binIndex) * float64(i) / float64(n))
	}
	spectrum := RealSpectrum(samples)
	mags := make([]float64, len(spectrum))
	Magnitude(spectrum, mags)

	peak := 0
	for i, m := range mags {
		if m > mags[peak] {
			peak = i
		}
	}
	assert.Equal(t, binIndex, peak)
}

func TestWindowsStayWithinUnitRange(t *testing.T) {
	windows := []WindowFunc{Rectangular, Hann, Hamming, Kaiser(6), Exponential(0.01), Chebyshev(60)}
	for _, w := range windows {
		dst := make([]float64, 32)
		w(dst)
		for _, v := range dst {
			assert.GreaterOrEqual(t, v, -1e-9)
			assert.LessOrEqual(t, v, 1+1e-9)
		}
	}
}

func TestHannEdgesNearZero(t *testing.T) {
	dst := make([]float64, 65)
	Hann(dst)
	assert.InDelta(t, 0, dst[0], 1e-9)
	assert.InDelta(t, 0, dst[len(dst)-1], 1e-9)
	assert.InDelta(t, 1, dst[32], 1e-9)
}

func TestLogarithmicIRFApproachesTarget(t *testing.T) {
	var irf LogarithmicIRF
	irf.SetParams(0.05, 0.2, 48000, 480)

	state := 0.0
	for i := 0; i < 500; i++ {
		state = irf.Apply(state, 1.0)
	}
	assert.InDelta(t, 1.0, state, 1e-3)
}

func TestLogarithmicIRFZeroTimeJumps(t *testing.T) {
	var irf LogarithmicIRF
	irf.SetParams(0, 0, 48000, 480)
	assert.Equal(t, 1.0, irf.Apply(0, 1.0))
}

func TestBiquadLowPassAttenuatesHighFrequency(t *testing.T) {
	const sr = 48000.0
	chain := NewLowPass(sr, 500, 0.707, 1)

	n := 4096
	low := make([]float64, n)
	high := make([]float64, n)
	for i := 0; i < n; i++ {
		low[i] = math.Sin(2 * math.Pi * 100 * float64(i) / sr)
		high[i] = math.Sin(2 * math.Pi * 8000 * float64(i) / sr)
	}
	chain.ApplyBatch(low)
	chain2 := NewLowPass(sr, 500, 0.707, 1)
	chain2.ApplyBatch(high)

	rms := func(xs []float64) float64 {
		sum := 0.0
		for _, x := range xs[n/2:] {
			sum += x * x
		}
		return math.Sqrt(sum / float64(len(xs[n/2:])))
	}

	assert.Greater(t, rms(low), rms(high))
}

func TestColorRGBHSVRoundTrip(t *testing.T) {
	cases := []RGBA{
		{R: 1, G: 0, B: 0, A: 1},
		{R: 0, G: 1, B: 0, A: 1},
		{R: 0.2, G: 0.4, B: 0.8, A: 0.5},
		{R: 1, G: 1, B: 1, A: 1},
		{R: 0, G: 0, B: 0, A: 1},
	}
	for _, c := range cases {
		h, s, v := c.ToHSV()
		back := HSVToRGB(h, s, v, c.A)
		assert.InDelta(t, c.R, back.R, 1e-6)
		assert.InDelta(t, c.G, back.G, 1e-6)
		assert.InDelta(t, c.B, back.B, 1e-6)
	}
}

func FuzzColorRGBHSVRoundTrip(f *testing.F) {
	f.Add(0.1, 0.2, 0.3)
	f.Fuzz(func(t *testing.T, r, g, b float64) {
		if math.IsNaN(r) || math.IsNaN(g) || math.IsNaN(b) {
			t.Skip()
		}
		c := RGBA{R: r, G: g, B: b, A: 1}.Clamp()
		h, s, v := c.ToHSV()
		back := HSVToRGB(h, s, v, 1)
		assert.InDelta(t, c.R, back.R, 1e-6)
		assert.InDelta(t, c.G, back.G, 1e-6)
		assert.InDelta(t, c.B, back.B, 1e-6)
	})
}

func TestStripedImageStationaryRingWraps(t *testing.T) {
	var img StripedImage
	img.SetParams(4, 2, IntColor{}, true)

	for i := 0; i < 6; i++ {
		col := []IntColor{{R: uint8(i)}, {R: uint8(i)}}
		img.PushStrip(col)
	}

	assert.Equal(t, 4, img.Width())
	pixels := img.Pixels()
	require.Len(t, pixels, 8)
	assert.Equal(t, uint8(2), pixels[0].R)
	assert.Equal(t, uint8(5), pixels[6].R)
}

func TestStripedImageGrowingBuffer(t *testing.T) {
	var img StripedImage
	img.SetParams(10, 1, IntColor{}, false)
	assert.True(t, img.IsEmpty())

	for i := 0; i < 5; i++ {
		img.PushStrip([]IntColor{{R: uint8(i + 1)}})
	}
	assert.False(t, img.IsEmpty())
	assert.Equal(t, 5, img.Width())
}

func TestChainDbMapClampParsesAndApplies(t *testing.T) {
	chain := ParseChain("db; map[-60,0,0,1]; clamp[0,1]")
	out := chain.Apply(1.0)
	assert.InDelta(t, 1.0, out, 1e-9)

	out = chain.Apply(0.001)
	assert.GreaterOrEqual(t, out, 0.0)
	assert.LessOrEqual(t, out, 1.0)
}

func TestChainEmptyOnParseFailureIsIdentity(t *testing.T) {
	chain := ParseChain("not-a-real-stage[1,2]")
	assert.Equal(t, 42.0, chain.Apply(42.0))
}

func TestChainEmptyDescriptorIsIdentity(t *testing.T) {
	chain := ParseChain("")
	assert.Equal(t, -5.0, chain.Apply(-5.0))
}

func TestGaussianKernelCacheNormalizes(t *testing.T) {
	cache := NewGaussianKernelCache()
	kernel := cache.ForRadius(5)
	sum := 0.0
	for _, v := range kernel {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	same := cache.ForRadius(5)
	assert.Same(t, &kernel[0], &same[0])
}

func TestLinearAndCubicAtBoundaries(t *testing.T) {
	ys := []float64{1, 2, 4, 8, 16}
	assert.Equal(t, ys[0], LinearAt(ys, -10))
	assert.Equal(t, ys[len(ys)-1], LinearAt(ys, 100))
	assert.Equal(t, ys[0], CubicAt(ys, -10))
	assert.Equal(t, ys[len(ys)-1], CubicAt(ys, 100))
}

func TestRunningPeakAndRMS(t *testing.T) {
	var peak RunningPeak
	peak.PushAll([]float32{0.1, -0.9, 0.3})
	assert.InDelta(t, 0.9, peak.Value(), 1e-6)

	var rms RunningRMS
	rms.PushAll([]float32{1, -1, 1, -1})
	assert.InDelta(t, 1.0, rms.Value(), 1e-6)
}
