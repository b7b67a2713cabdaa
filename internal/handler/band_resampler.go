package handler

import (
	"math"
	"strconv"
	"strings"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

// band is one named frequency range this handler resamples FFT bins
// into, e.g. an octave or a mel band.
type band struct {
	low, high float64
}

type bandResamplerParams struct {
	bands              []band
	minCascade         int // 1-based inclusive; 0 means "start at the first cascade"
	maxCascade         int // 1-based inclusive; 0 (or out of range) means "through the last cascade"
	useCubicResampling bool
}

// parseFreqList accepts either an explicit comma list of edge
// frequencies ("20,40,80,160,...") or a "log:N:lowHz:highHz" /
// "linear:N:lowHz:highHz" generator, mirroring BandResampler.cpp's
// parseFreqListElement custom/linear/log cases.
func parseFreqList(spec string) []float64 {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	if strings.HasPrefix(spec, "log:") || strings.HasPrefix(spec, "linear:") {
		fields := strings.Split(spec, ":")
		if len(fields) != 4 {
			return nil
		}
		n, err1 := strconv.Atoi(fields[1])
		lo, err2 := strconv.ParseFloat(fields[2], 64)
		hi, err3 := strconv.ParseFloat(fields[3], 64)
		if err1 != nil || err2 != nil || err3 != nil || n < 2 {
			return nil
		}
		out := make([]float64, n)
		if strings.HasPrefix(spec, "log:") {
			logLo, logHi := math.Log(lo), math.Log(hi)
			for i := 0; i < n; i++ {
				t := float64(i) / float64(n-1)
				out[i] = math.Exp(logLo + t*(logHi-logLo))
			}
		} else {
			for i := 0; i < n; i++ {
				t := float64(i) / float64(n-1)
				out[i] = lo + t*(hi-lo)
			}
		}
		return out
	}

	fields := strings.Split(spec, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

// makeBandsFromFreqs sorts the edge list and drops near-duplicate
// thresholds, matching BandResampler.cpp's makeBandsFromFreqs.
func makeBandsFromFreqs(freqs []float64) []band {
	if len(freqs) < 2 {
		return nil
	}
	sorted := append([]float64(nil), freqs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	const minSeparation = 1e-6
	dedup := sorted[:1]
	for _, f := range sorted[1:] {
		if f-dedup[len(dedup)-1] > minSeparation {
			dedup = append(dedup, f)
		}
	}
	bands := make([]band, 0, len(dedup)-1)
	for i := 0; i+1 < len(dedup); i++ {
		bands = append(bands, band{low: dedup[i], high: dedup[i+1]})
	}
	return bands
}

// BandResampler resamples every cascade layer of an FftAnalyzer into a
// fixed set of named frequency bands, emitting one output layer per
// active cascade (spec.md §4.3.4): it never picks a single "best"
// cascade per band, it just re-expresses each cascade's bins in band
// space and leaves cascade selection/mixing to a downstream
// BandCascadeTransformer. BandWeights(band) exposes, per active cascade,
// the Hz overlap of that band with the cascade's usable range divided by
// the cascade's bin width, the reliability figure the original's
// BandResampler.cpp computes as computeCascadeWeights and
// BandCascadeTransformer.cpp reads back to decide which cascades to
// trust for a band.
type BandResampler struct {
	params       bandResamplerParams
	startCascade int         // first source layer index this resampler reads from
	binWidths    []float64   // per active cascade (local index), Hz per bin
	bandWeights  [][]float64 // per band, per active cascade (local index)
}

func (h *BandResampler) Parse(opts ConfigNode) (ParseResult, error) {
	p := bandResamplerParams{}
	freqSpec := opts.GetOr("bands", "log:10:20:20000")
	p.bands = makeBandsFromFreqs(parseFreqList(freqSpec))
	if v, ok := opts.Get("min-cascade"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			p.minCascade = n
		}
	}
	if v, ok := opts.Get("max-cascade"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			p.maxCascade = n
		}
	}
	if v, ok := opts.Get("cubic-resampling"); ok {
		p.useCubicResampling = v == "true" || v == "1"
	}
	sourceName, ok := opts.Get("source")
	if !ok || sourceName == "" {
		return ParseResult{}, NewInvalidOptionsError("BandResampler", "source is not found")
	}
	return ParseResult{Params: p, Sources: []string{sourceName}}, nil
}

// RequiredSourceType pins BandResampler to a real FftAnalyzer so a
// misconfigured graph edge is rejected at construction (spec.md §4.1)
// instead of silently resampling whatever chunk shape it's handed.
func (h *BandResampler) RequiredSourceType() string { return "FftAnalyzer" }

func (h *BandResampler) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(bandResamplerParams)
	if source == nil {
		return DataSize{}, NewInvalidSourceError("BandResampler", "fft")
	}
	size := source.DataSize()
	cascadesCount := size.LayersCount

	if h.params.minCascade > cascadesCount {
		return DataSize{}, NewConfigureFailedError("BandResampler",
			NewInvalidOptionsError("BandResampler", "min-cascade exceeds the source's cascade count"))
	}

	startCascade := 0
	endCascade := cascadesCount
	if h.params.minCascade > 0 {
		startCascade = h.params.minCascade - 1
	}
	if h.params.maxCascade >= h.params.minCascade && h.params.maxCascade > 0 && h.params.maxCascade <= cascadesCount {
		endCascade = h.params.maxCascade
	}
	if endCascade <= startCascade {
		endCascade = cascadesCount
	}
	h.startCascade = startCascade
	realCascadesCount := endCascade - startCascade

	h.binWidths = make([]float64, realCascadesCount)
	rate := source.SampleRate()
	for c := 0; c < startCascade; c++ {
		rate /= 2
	}
	for i := 0; i < realCascadesCount; i++ {
		bins := size.ValuesCount[startCascade+i]
		if bins < 1 {
			bins = 1
		}
		h.binWidths[i] = rate / 2 / float64(bins)
		rate /= 2
	}

	h.bandWeights = make([][]float64, len(h.params.bands))
	for bi, b := range h.params.bands {
		weights := make([]float64, realCascadesCount)
		for c := 0; c < realCascadesCount; c++ {
			bins := size.ValuesCount[startCascade+c]
			binWidth := h.binWidths[c]
			fftMin := -binWidth / 2
			fftMax := (float64(bins) - 0.5) * binWidth
			bandMin := math.Max(b.low, fftMin)
			bandMax := math.Min(b.high, fftMax)
			if bandMax > bandMin {
				weights[c] = (bandMax - bandMin) / binWidth
			}
		}
		h.bandWeights[bi] = weights
	}

	out := DataSize{
		LayersCount: realCascadesCount,
		ValuesCount: make([]int, realCascadesCount),
		EqWaveSizes: make([]int, realCascadesCount),
	}
	for i := range out.ValuesCount {
		out.ValuesCount[i] = len(h.params.bands)
		out.EqWaveSizes[i] = size.EqWaveSizes[startCascade+i]
	}
	return out, nil
}

// BandWeights returns, per active cascade (local index, matching the
// layer indices this handler's own Ring exposes), the reliability
// weight of one band as computed at Configure time (spec.md §4.3.4). The
// returned slice must not be modified.
func (h *BandResampler) BandWeights(band int) []float64 {
	if band < 0 || band >= len(h.bandWeights) {
		return nil
	}
	return h.bandWeights[band]
}

func (h *BandResampler) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	for i := range h.binWidths {
		if ctx.Overrun() {
			return nil
		}
		cascade := h.startCascade + i
		binWidth := h.binWidths[i]
		for _, chunk := range source.Chunks(cascade) {
			values := make([]float64, len(h.params.bands))
			for bi, b := range h.params.bands {
				loBin := b.low / binWidth
				hiBin := b.high / binWidth
				values[bi] = bandAverage(chunk.Values, loBin, hiBin, h.params.useCubicResampling)
			}
			push(i, values, chunk.EquivalentWaveSize)
		}
	}
	return nil
}

func bandAverage(values []float64, loBin, hiBin float64, cubic bool) float64 {
	if hiBin-loBin < 1 {
		mid := (loBin + hiBin) / 2
		if cubic {
			return dsp.CubicAt(values, mid)
		}
		return dsp.LinearAt(values, mid)
	}
	sum := 0.0
	count := 0
	lo := int(math.Ceil(loBin))
	hi := int(math.Floor(hiBin))
	for i := lo; i <= hi; i++ {
		if i < 0 || i >= len(values) {
			continue
		}
		sum += values[i]
		count++
	}
	if count == 0 {
		mid := (loBin + hiBin) / 2
		if cubic {
			return dsp.CubicAt(values, mid)
		}
		return dsp.LinearAt(values, mid)
	}
	return sum / float64(count)
}

func (h *BandResampler) GetProp(name string) (any, bool) {
	if name == "band-count" {
		return len(h.params.bands), true
	}
	return nil, false
}
