package handler

import (
	"math"
	"sort"
	"strconv"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

type loudnessParams struct {
	updateRateHz           float64
	timeWindowMs           float64
	gatingDB               float64
	gatingLimit            float64
	ignoreGatingForSilence bool
}

// Loudness reports a K-weighted (ITU-R BS.1770 style) gated loudness
// estimate, not a conformant implementation -- spec.md §4.3.2. A ring of
// per-block mean-square values feeds a gated mean: blocks whose energy
// falls below a threshold relative to the previous output are normally
// excluded, except that at least a (1 - gatingLimit) fraction of the
// loudest blocks is always kept, so the gate can never silence the meter
// entirely.
type Loudness struct {
	params    loudnessParams
	blockSize int
	remaining int
	filter    *dsp.FilterChain
	buf       []float64
	bufLen    int

	ring       []float64
	ringLen    int
	ringPos    int
	prevOutput float64
}

func (h *Loudness) Parse(opts ConfigNode) (ParseResult, error) {
	p := loudnessParams{
		updateRateHz: 10,
		timeWindowMs: 400,
		gatingDB:     -10,
		gatingLimit:  0.1,
	}
	if v, ok := opts.Get("update-rate"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.updateRateHz = clampF(f, 0.01, 60)
		}
	}
	if v, ok := opts.Get("time-window"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.timeWindowMs = clampF(f, 0.01, 10000)
		}
	}
	if v, ok := opts.Get("gating"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.gatingDB = clampF(f, -70, 0)
		}
	}
	if v, ok := opts.Get("gating-limit"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.gatingLimit = clampF(f, 0, 1)
		}
	}
	if v, ok := opts.Get("ignore-gating-for-silence"); ok {
		p.ignoreGatingForSilence = v == "true" || v == "1"
	}
	return ParseResult{Params: p}, nil
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (h *Loudness) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(loudnessParams)
	h.blockSize = int(math.Round(sampleRate / h.params.updateRateHz))
	if h.blockSize < 1 {
		h.blockSize = 1
	}
	blocksCount := int(math.Round(h.params.timeWindowMs / 1000 * h.params.updateRateHz))
	if blocksCount < 1 {
		blocksCount = 1
	}
	h.remaining = h.blockSize
	h.filter = dsp.NewKWeightingChain(sampleRate)
	h.buf = make([]float64, h.blockSize)
	h.bufLen = 0
	h.ring = make([]float64, blocksCount)
	h.ringLen = 0
	h.ringPos = 0
	h.prevOutput = 0
	return NewUniformDataSize(1, 1, h.blockSize), nil
}

func (h *Loudness) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	samples := ctx.Wave.Samples
	for len(samples) > 0 {
		if ctx.Overrun() {
			push(0, []float64{h.currentLKFS()}, h.blockSize)
			return nil
		}
		n := h.remaining
		if n > len(samples) {
			n = len(samples)
		}
		for i := 0; i < n; i++ {
			h.buf[h.bufLen] = float64(samples[i])
			h.bufLen++
		}
		samples = samples[n:]
		h.remaining -= n
		if h.remaining <= 0 {
			h.pushBlock()
			push(0, []float64{h.currentLKFS()}, h.blockSize)
			h.bufLen = 0
			h.remaining = h.blockSize
		}
	}
	return nil
}

// pushBlock K-weights the filled buffer and records its mean-square
// energy into the ring the gated mean draws from.
func (h *Loudness) pushBlock() {
	weighted := make([]float64, h.bufLen)
	copy(weighted, h.buf[:h.bufLen])
	h.filter.ApplyBatch(weighted)

	var sum float64
	for _, v := range weighted {
		sum += v * v
	}
	meanSquare := 0.0
	if h.bufLen > 0 {
		meanSquare = sum / float64(h.bufLen)
	}

	h.ring[h.ringPos] = meanSquare
	h.ringPos = (h.ringPos + 1) % len(h.ring)
	if h.ringLen < len(h.ring) {
		h.ringLen++
	}
}

// currentLKFS computes the gated mean over the ring: blocks below
// gatingValue (scaled off the previous output, spec.md §4.3.2) are
// dropped unless they rank among the guaranteed loudest (1 - gatingLimit)
// fraction, or unless ignoreGatingForSilence keeps true silence in the
// average instead of discarding it.
func (h *Loudness) currentLKFS() float64 {
	if h.ringLen == 0 {
		return h.params.gatingDB
	}
	vals := make([]float64, h.ringLen)
	copy(vals, h.ring[:h.ringLen])

	sorted := append([]float64(nil), vals...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	alwaysCount := int(math.Ceil(float64(h.ringLen) * (1 - h.params.gatingLimit)))
	if alwaysCount < 1 {
		alwaysCount = 1
	}
	if alwaysCount > h.ringLen {
		alwaysCount = h.ringLen
	}
	rankFloor := sorted[alwaysCount-1]

	gatingValue := h.prevOutput * math.Pow(10, h.params.gatingDB/10)

	var sum float64
	var count int
	for _, v := range vals {
		included := v >= gatingValue || v >= rankFloor
		if h.params.ignoreGatingForSilence && v <= 0 {
			included = true
		}
		if included {
			sum += v
			count++
		}
	}
	if count == 0 {
		return h.params.gatingDB
	}
	meanSquare := sum / float64(count)
	h.prevOutput = meanSquare
	if meanSquare <= 0 {
		return h.params.gatingDB
	}
	lkfs := -0.691 + 10*math.Log10(meanSquare)
	if lkfs < h.params.gatingDB {
		return h.params.gatingDB
	}
	return lkfs
}

func (h *Loudness) GetProp(name string) (any, bool) {
	if name == "current" {
		return h.currentLKFS(), true
	}
	return nil, false
}
