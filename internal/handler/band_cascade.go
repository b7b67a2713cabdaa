package handler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// epsilon floors weight-like parameters the same way
// BandCascadeTransformer.cpp's parseParams does (std::max(value,
// std::numeric_limits<float>::epsilon())) so a configured zero never
// divides a magnitude by exactly zero.
const bandCascadeEpsilon = 1.1920929e-7

type bandCascadeParams struct {
	minWeight      float64
	targetWeight   float64
	weightFallback float64 // already scaled: targetWeight * configured fallback fraction
	zeroLevel      float64
	zeroLevelHard  float64
	zeroWeight     float64
	mixProduct     bool // true: product/geometric-mean mixing; false: sum/arithmetic-mean
}

// bandWeightsSource is the narrow auxiliary-query interface a
// BandResampler satisfies so BandCascadeTransformer can read its
// per-band, per-cascade weight matrix without a concrete-type downcast
// (the same accessor-not-downcast pattern internal/graph's
// imageSnapshotter uses).
type bandWeightsSource interface {
	SourceProvider
	BandWeights(band int) []float64
}

// BandCascadeTransformer mixes a BandResampler's per-cascade band layers
// down into one value per band (spec.md §4.3.5), following
// BandCascadeTransformer.cpp's computeForBand: accumulate
// weight/magnitude pairs across ascending cascades, by product or by
// average depending on mixProduct, stopping early once zeroLevel or
// zeroLevelHard is hit; if the primary pass never reaches weightFallback
// total weight, a second pass over the cascades it skipped (those below
// minWeight but at or above zeroWeight) tops it up.
type BandCascadeTransformer struct {
	params         bandCascadeParams
	resampler      bandWeightsSource
	bandEndCascade []int // per band, exclusive cascade bound computed at Configure time
	analysis       string
	minCascadeUsed int
	maxCascadeUsed int
}

func (h *BandCascadeTransformer) Parse(opts ConfigNode) (ParseResult, error) {
	p := bandCascadeParams{
		minWeight:    0.1,
		targetWeight: 2.5,
		zeroWeight:   1.0,
	}
	if v, ok := opts.Get("min-weight"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.minWeight = f
		}
	}
	p.minWeight = math.Max(p.minWeight, bandCascadeEpsilon)

	if v, ok := opts.Get("target-weight"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.targetWeight = f
		}
	}
	p.targetWeight = math.Max(p.targetWeight, p.minWeight)

	fallbackFraction := 0.4
	if v, ok := opts.Get("weight-fallback"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			fallbackFraction = f
		}
	}
	fallbackFraction = math.Min(math.Max(fallbackFraction, 0), 1)
	p.weightFallback = fallbackFraction * p.targetWeight

	zeroLevelMultiplier := 1.0
	if v, ok := opts.Get("zero-level-multiplier"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			zeroLevelMultiplier = f
		}
	}
	zeroLevelMultiplier = math.Max(zeroLevelMultiplier, 0)
	p.zeroLevel = zeroLevelMultiplier * 0.66 * bandCascadeEpsilon

	zeroLevelHardMultiplier := 0.01
	if v, ok := opts.Get("zero-level-hard-multiplier"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			zeroLevelHardMultiplier = f
		}
	}
	zeroLevelHardMultiplier = math.Min(math.Max(zeroLevelHardMultiplier, 0), 1)
	p.zeroLevelHard = zeroLevelHardMultiplier * p.zeroLevel

	if v, ok := opts.Get("zero-weight-multiplier"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.zeroWeight = f
		}
	}
	p.zeroWeight = math.Max(p.zeroWeight, bandCascadeEpsilon)

	if v, ok := opts.Get("mix"); ok {
		p.mixProduct = strings.EqualFold(v, "product")
	} else {
		p.mixProduct = true
	}

	sourceName, ok := opts.Get("source")
	if !ok || sourceName == "" {
		return ParseResult{}, NewInvalidOptionsError("BandCascadeTransformer", "source is not found")
	}
	return ParseResult{Params: p, Sources: []string{sourceName}}, nil
}

// RequiredSourceType pins BandCascadeTransformer to a real BandResampler
// (spec.md §4.3.5), since it mixes cascades using BandResampler's
// exposed per-(cascade,band) weights, not an independent re-derivation
// of FFT bin math.
func (h *BandCascadeTransformer) RequiredSourceType() string { return "BandResampler" }

func (h *BandCascadeTransformer) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(bandCascadeParams)
	if source == nil {
		return DataSize{}, NewInvalidSourceError("BandCascadeTransformer", "resampler")
	}
	resampler, ok := source.(bandWeightsSource)
	if !ok {
		return DataSize{}, NewInvalidSourceError("BandCascadeTransformer", "resampler")
	}
	h.resampler = resampler

	size := source.DataSize()
	bandsCount := 0
	if size.LayersCount > 0 {
		bandsCount = size.ValuesCount[0]
	}

	// computeAnalysis: for every band, walk its cascades from the
	// finest (lowest index) upward, accumulating weight until
	// targetWeight is reached or cascades run out. A band with no
	// cascade clearing minWeight falls back to using every cascade it
	// has (handled per-band, by weight, in Process).
	h.bandEndCascade = make([]int, bandsCount)
	minUsed, maxUsed := size.LayersCount, 0
	var sb strings.Builder
	for band := 0; band < bandsCount; band++ {
		weight := 0.0
		endCascade := 0
		for cascade := 0; cascade < size.LayersCount; cascade++ {
			w := resampler.BandWeights(band)[cascade]
			if w < h.params.minWeight {
				continue
			}
			weight += w
			endCascade = cascade + 1
			if weight >= h.params.targetWeight {
				break
			}
		}
		if endCascade == 0 {
			endCascade = size.LayersCount
		}
		h.bandEndCascade[band] = endCascade
		if endCascade < minUsed {
			minUsed = endCascade
		}
		if endCascade > maxUsed {
			maxUsed = endCascade
		}
		fmt.Fprintf(&sb, "%d:%d ", band, endCascade)
	}
	h.analysis = strings.TrimSpace(sb.String())
	if bandsCount == 0 {
		minUsed = 0
	}
	h.minCascadeUsed = minUsed
	h.maxCascadeUsed = maxUsed

	return NewUniformDataSize(1, bandsCount, eqWaveSizeOf(size)), nil
}

func eqWaveSizeOf(size DataSize) int {
	if size.LayersCount == 0 {
		return 1
	}
	return size.EqWaveSizes[0]
}

func (h *BandCascadeTransformer) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	size := source.DataSize()
	out := make([]float64, len(h.bandEndCascade))
	for band := range out {
		bandEnd := h.bandEndCascade[band]
		if bandEnd > size.LayersCount {
			bandEnd = size.LayersCount
		}
		out[band] = h.computeForBand(band, bandEnd, source)
	}
	push(0, out, eqWaveSizeOf(size))
	return nil
}

// computeForBand mirrors BandCascadeTransformer.cpp's computeForBand: a
// primary pass over cascades at or above minWeight, then -- only if the
// primary pass didn't accumulate weightFallback total weight -- a second
// pass folding in the cascades it skipped that are still at or above
// zeroWeight. Both passes share the running value/weight/used state and
// stop as soon as a cascade's value drops below zeroLevelHard.
func (h *BandCascadeTransformer) computeForBand(band, bandEndCascade int, source SourceProvider) float64 {
	value := 0.0
	if h.params.mixProduct {
		value = 1.0
	}
	var weight float64
	used := 0

	accumulate := func(w, v float64) {
		if h.params.mixProduct {
			value *= v
		} else {
			value += v
		}
		weight += w
		used++
	}

	weights := h.resampler.BandWeights(band)

	for cascade := 0; cascade < bandEndCascade; cascade++ {
		w := weights[cascade]
		magnitude := source.LastValue(cascade).Values
		if band >= len(magnitude) {
			continue
		}
		v := magnitude[band] / w
		if v < h.params.zeroLevelHard {
			break
		}
		if w < h.params.minWeight {
			continue
		}
		accumulate(w, v)
		if v < h.params.zeroLevel {
			break
		}
	}

	if weight < h.params.weightFallback {
		for cascade := 0; cascade < bandEndCascade; cascade++ {
			w := weights[cascade]
			if w < h.params.zeroWeight || w >= h.params.minWeight {
				continue
			}
			magnitude := source.LastValue(cascade).Values
			if band >= len(magnitude) {
				continue
			}
			v := magnitude[band] / w
			if v < h.params.zeroLevelHard {
				break
			}
			accumulate(w, v)
			if v < h.params.zeroLevel || weight >= h.params.weightFallback {
				break
			}
		}
	}

	if used == 0 {
		return 0
	}
	if h.params.mixProduct {
		return math.Pow(value, 1/float64(used))
	}
	return value / float64(used)
}

func (h *BandCascadeTransformer) GetProp(name string) (any, bool) {
	switch name {
	case "band-count":
		return len(h.bandEndCascade), true
	case "cascade analysis":
		return h.analysis, true
	case "min cascade used":
		return h.minCascadeUsed, true
	case "max cascade used":
		return h.maxCascadeUsed, true
	}
	return nil, false
}
