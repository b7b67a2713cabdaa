package handler

import (
	"strconv"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

type fftParams struct {
	binWidth      float64
	cascadesCount int
	overlap       float64
	windowName    string
	windowParam   float64
}

// fftCascade is one octave level of the pyramid: it runs at half the
// sample rate of the cascade above it (built by box-car decimation of
// that cascade's raw samples), and uses the same FFT size as every other
// cascade (dsp.NextFastSize of the analyzer's input rate over the
// requested bin width), so its bin width is half that of the cascade
// above -- with the "eqWS doubling per cascade" bookkeeping
// FftAnalyzer.cpp's vConfigure describes.
type fftCascade struct {
	sampleRate         float64
	fftSize            int
	inputStride        int
	window             []float64
	windowSum          float64
	ring               []float64
	ringLen            int
	sincePush          int
	equivalentWaveSize int

	// decimation state feeding the next cascade down
	pendingOdd    float64
	hasPendingOdd bool
}

func buildCascade(sampleRate, binWidth, overlap float64, windowFn dsp.WindowFunc, waveStep int) fftCascade {
	fftSize := dsp.NextFastSize(int(sampleRate / binWidth))
	stride := int(float64(fftSize) * (1 - overlap))
	if stride < 16 {
		stride = 16
	}
	if stride > fftSize {
		stride = fftSize
	}
	window := make([]float64, fftSize)
	windowFn(window)
	var sum float64
	for _, w := range window {
		sum += w
	}
	return fftCascade{
		sampleRate:         sampleRate,
		fftSize:            fftSize,
		inputStride:        stride,
		window:             window,
		windowSum:          sum,
		ring:               make([]float64, fftSize),
		equivalentWaveSize: waveStep,
	}
}

// push appends one sample to the cascade's ring buffer and, once a full
// stride has accumulated, runs a windowed FFT and emits a magnitude
// chunk via push(layer, ...). It returns the decimated samples that
// should feed the next cascade down (box-car pairs), appended to out.
func (c *fftCascade) push(sample float64, layer int, emit PushFunc, out []float64) []float64 {
	if c.ringLen < c.fftSize {
		c.ring[c.ringLen] = sample
		c.ringLen++
	} else {
		copy(c.ring, c.ring[1:])
		c.ring[c.fftSize-1] = sample
	}

	if c.hasPendingOdd {
		avg := (c.pendingOdd + sample) / 2
		out = append(out, avg)
		c.hasPendingOdd = false
	} else {
		c.pendingOdd = sample
		c.hasPendingOdd = true
	}

	c.maybeEmit(layer, emit)
	return out
}

func (c *fftCascade) maybeEmit(layer int, emit PushFunc) {
	c.sincePush++
	if c.ringLen < c.fftSize || c.sincePush < c.inputStride {
		return
	}
	c.sincePush = 0

	windowed := make([]float64, c.fftSize)
	copy(windowed, c.ring)
	for i := range windowed {
		windowed[i] *= c.window[i]
	}
	// spec.md §4.3.3: fft_size/2 bins per chunk, DC included, Nyquist
	// excluded -- RealSpectrum's Hermitian half includes the Nyquist bin,
	// so it is dropped here rather than exposed. Magnitudes are one-sided
	// and window-normalised: sqrt(re^2+im^2) * 2/sum(window).
	spectrum := dsp.RealSpectrum(windowed)[:c.fftSize/2]
	mags := make([]float64, len(spectrum))
	dsp.Magnitude(spectrum, mags)
	norm := 2 / c.windowSum
	for i := range mags {
		mags[i] *= norm
	}
	emit(layer, mags, c.equivalentWaveSize*c.inputStride)
}

// FftAnalyzer runs a pyramid of FFT cascades, each at half the sample
// rate of the one above, so low cascades resolve fine time detail at
// coarse frequency resolution and high cascades resolve fine frequency
// detail at coarse time resolution -- this is the core mechanism
// BandCascadeTransformer draws its per-band cascade choice from, through
// BandResampler. One layer per cascade.
type FftAnalyzer struct {
	params   fftParams
	cascades []fftCascade
}

func (h *FftAnalyzer) Parse(opts ConfigNode) (ParseResult, error) {
	p := fftParams{binWidth: 40, cascadesCount: 5, overlap: 0.5, windowName: "hann"}
	if v, ok := opts.Get("bin-width"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			p.binWidth = f
		}
	}
	if v, ok := opts.Get("cascades"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			p.cascadesCount = n
		}
	}
	if p.cascadesCount < 1 {
		p.cascadesCount = 1
	}
	if p.cascadesCount > 20 {
		p.cascadesCount = 20
	}
	if v, ok := opts.Get("overlap"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.overlap = f
		}
	}
	if v, ok := opts.Get("window"); ok {
		p.windowName = v
	}
	if v, ok := opts.Get("window-param"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.windowParam = f
		}
	}
	return ParseResult{Params: p, Sources: nil}, nil
}

func (h *FftAnalyzer) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(fftParams)
	windowFn := dsp.ParseWindow(h.params.windowName, h.params.windowParam)

	h.cascades = make([]fftCascade, h.params.cascadesCount)
	rate := sampleRate
	waveStep := 1
	for i := 0; i < h.params.cascadesCount; i++ {
		h.cascades[i] = buildCascade(rate, h.params.binWidth/float64(waveStep), h.params.overlap, windowFn, waveStep)
		rate /= 2
		waveStep *= 2
	}

	size := DataSize{
		LayersCount: h.params.cascadesCount,
		ValuesCount: make([]int, h.params.cascadesCount),
		EqWaveSizes: make([]int, h.params.cascadesCount),
	}
	for i, c := range h.cascades {
		size.ValuesCount[i] = c.fftSize / 2
		size.EqWaveSizes[i] = c.equivalentWaveSize * c.inputStride
	}
	return size, nil
}

func (h *FftAnalyzer) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	feed := make([]float64, len(ctx.Wave.Samples))
	for i, s := range ctx.Wave.Samples {
		feed[i] = float64(s)
	}

	for cascadeIdx := range h.cascades {
		if ctx.Overrun() {
			return nil
		}
		next := make([]float64, 0, len(feed)/2+1)
		c := &h.cascades[cascadeIdx]
		for _, s := range feed {
			next = c.push(s, cascadeIdx, push, next)
		}
		feed = next
	}
	return nil
}

func (h *FftAnalyzer) GetProp(name string) (any, bool) {
	if name == "cascades" {
		return h.params.cascadesCount, true
	}
	return nil, false
}
