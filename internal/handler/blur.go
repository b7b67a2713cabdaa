package handler

import (
	"math"
	"strconv"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

type uniformBlurParams struct {
	radius     float64
	adaptation float64
}

// UniformBlur smooths its source's value vector with a Gaussian-
// weighted moving average across adjacent values (e.g. across bands),
// reducing bin-to-bin jitter in a spectrum display. Per spec.md §4.3.6,
// layer k's kernel radius is round(radius * adaptation^k), so a source
// with multiple layers (e.g. an FftAnalyzer's cascades) gets a wider
// kernel on its coarser cascades when adaptation > 1.
type UniformBlur struct {
	params uniformBlurParams
	cache  *dsp.GaussianKernelCache
}

func (h *UniformBlur) Parse(opts ConfigNode) (ParseResult, error) {
	p := uniformBlurParams{radius: 1, adaptation: 1}
	if v, ok := opts.Get("radius"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			p.radius = f
		}
	}
	if v, ok := opts.Get("radius-adaptation"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			p.adaptation = f
		}
	}
	sourceName, ok := opts.Get("source")
	if !ok || sourceName == "" {
		return ParseResult{}, NewInvalidOptionsError("UniformBlur", "source is not found")
	}
	return ParseResult{Params: p, Sources: []string{sourceName}}, nil
}

func (h *UniformBlur) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(uniformBlurParams)
	h.cache = dsp.NewGaussianKernelCache()
	if source == nil {
		return DataSize{}, NewInvalidSourceError("UniformBlur", "values")
	}
	return source.DataSize(), nil
}

func (h *UniformBlur) radiusForLayer(layer int) int {
	r := h.params.radius * math.Pow(h.params.adaptation, float64(layer))
	return int(math.Round(r))
}

func (h *UniformBlur) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	size := source.DataSize()
	for layer := 0; layer < size.LayersCount; layer++ {
		radius := h.radiusForLayer(layer)
		for _, chunk := range source.Chunks(layer) {
			out := make([]float64, len(chunk.Values))
			dsp.ApplyWeighted1D(out, chunk.Values, h.cache, radius)
			push(layer, out, chunk.EquivalentWaveSize)
		}
	}
	return nil
}

func (h *UniformBlur) GetProp(name string) (any, bool) {
	if name == "radius" {
		return h.params.radius, true
	}
	return nil, false
}

// WeightedBlur is the deprecated predecessor of UniformBlur: the same
// cached-Gaussian-kernel smoothing, with one radius for every layer
// rather than a per-layer adapted one. Kept only for configs written against the old
// layout (spec.md keeps legacy handlers parseable without encouraging
// new use).
type WeightedBlur struct {
	radius int
	cache  *dsp.GaussianKernelCache
}

func (h *WeightedBlur) Parse(opts ConfigNode) (ParseResult, error) {
	radius := 1
	if v, ok := opts.Get("radius"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			radius = n
		}
	}
	sourceName, ok := opts.Get("source")
	if !ok || sourceName == "" {
		return ParseResult{}, NewInvalidOptionsError("WeightedBlur", "source is not found")
	}
	return ParseResult{Params: radius, Sources: []string{sourceName}}, nil
}

func (h *WeightedBlur) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.radius = params.(int)
	h.cache = dsp.NewGaussianKernelCache()
	if source == nil {
		return DataSize{}, NewInvalidSourceError("WeightedBlur", "values")
	}
	return source.DataSize(), nil
}

func (h *WeightedBlur) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	size := source.DataSize()
	for layer := 0; layer < size.LayersCount; layer++ {
		for _, chunk := range source.Chunks(layer) {
			out := make([]float64, len(chunk.Values))
			dsp.ApplyWeighted1D(out, chunk.Values, h.cache, h.radius)
			push(layer, out, chunk.EquivalentWaveSize)
		}
	}
	return nil
}

func (h *WeightedBlur) GetProp(name string) (any, bool) {
	if name == "radius" {
		return h.radius, true
	}
	return nil, false
}
