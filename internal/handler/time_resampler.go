package handler

import (
	"strconv"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

type timeResamplerParams struct {
	granularityMs float64
	attackMs      float64
	decayMs       float64
}

type timeResamplerLayer struct {
	values      []float64
	lowPass     dsp.LogarithmicIRF
	dataCounter int
	waveCounter int
}

// TimeResampler re-clocks an upstream handler's chunk stream to a fixed
// block size, smoothing with a LogarithmicIRF low-pass along the way.
// Ported close to the line from TimeResampler.cpp's processLayer: the
// "this ensures push speed is consistent regardless of input latency"
// trailing loop duplicates the last known value when the source falls
// behind the requested cadence, rather than letting output stall.
type TimeResampler struct {
	params    timeResamplerParams
	blockSize int
	layers    []timeResamplerLayer
}

func (h *TimeResampler) Parse(opts ConfigNode) (ParseResult, error) {
	sourceName, ok := opts.Get("source")
	if !ok || sourceName == "" {
		return ParseResult{}, NewInvalidOptionsError("TimeResampler", "source is not found")
	}
	p := timeResamplerParams{granularityMs: 1000.0 / 60.0}
	if v, ok := opts.Get("granularity"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.granularityMs = f
		}
	}
	if p.granularityMs < 0.01 {
		p.granularityMs = 0.01
	}
	attack := 0.0
	if v, ok := opts.Get("attack"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			attack = f
		}
	}
	decay := attack
	if v, ok := opts.Get("decay"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			decay = f
		}
	}
	if attack < 0 {
		attack = 0
	}
	if decay < 0 {
		decay = 0
	}
	p.attackMs = attack
	p.decayMs = decay

	return ParseResult{Params: p, Sources: []string{sourceName}}, nil
}

func (h *TimeResampler) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(timeResamplerParams)
	if source == nil {
		return DataSize{}, NewInvalidSourceError("TimeResampler", "values")
	}
	size := source.DataSize()
	h.blockSize = int(h.params.granularityMs * 0.001 * sampleRate)
	if h.blockSize < 1 {
		h.blockSize = 1
	}

	h.layers = make([]timeResamplerLayer, size.LayersCount)
	attackSec := h.params.attackMs * 0.001
	decaySec := h.params.decayMs * 0.001
	for i := range h.layers {
		h.layers[i].values = make([]float64, size.ValuesCount[i])
		stepSize := size.EqWaveSizes[i]
		if stepSize > h.blockSize {
			stepSize = h.blockSize
		}
		h.layers[i].lowPass.SetParams(attackSec, decaySec, sampleRate, stepSize)
	}

	out := DataSize{
		LayersCount: size.LayersCount,
		ValuesCount: append([]int(nil), size.ValuesCount...),
		EqWaveSizes: make([]int, size.LayersCount),
	}
	for i := range out.EqWaveSizes {
		out.EqWaveSizes[i] = h.blockSize
	}
	return out, nil
}

func (h *TimeResampler) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	waveSize := len(ctx.Wave.Samples)
	for layer := range h.layers {
		if ctx.Overrun() {
			h.pushCurrent(layer, push)
			continue
		}
		h.processLayer(waveSize, layer, source, push)
	}
	return nil
}

func (h *TimeResampler) pushCurrent(layer int, push PushFunc) {
	ld := &h.layers[layer]
	values := make([]float64, len(ld.values))
	copy(values, ld.values)
	push(layer, values, h.blockSize)
}

func (h *TimeResampler) processLayer(waveSize, layer int, source SourceProvider, push PushFunc) {
	ld := &h.layers[layer]
	ld.waveCounter += waveSize

	lastValue := source.LastValue(layer)
	equivalentWaveSize := source.DataSize().EqWaveSizes[layer]

	for _, chunk := range source.Chunks(layer) {
		ld.dataCounter += equivalentWaveSize
		lastValue = chunk

		if ld.dataCounter < h.blockSize {
			ld.lowPass.ArrayApply(ld.values, chunk.Values)
			continue
		}

		for ld.dataCounter >= h.blockSize && ld.waveCounter >= h.blockSize {
			ld.lowPass.ArrayApply(ld.values, chunk.Values)
			h.pushCurrent(layer, push)

			ld.dataCounter -= h.blockSize
			ld.waveCounter -= h.blockSize
		}
	}

	// ensures push speed is consistent regardless of input latency
	for ld.waveCounter >= h.blockSize {
		ld.lowPass.ArrayApply(ld.values, lastValue.Values)
		h.pushCurrent(layer, push)

		ld.waveCounter -= h.blockSize
		if ld.dataCounter >= h.blockSize {
			ld.dataCounter -= h.blockSize
		}
	}
}

func (h *TimeResampler) GetProp(name string) (any, bool) {
	if name == "block-size" {
		return h.blockSize, true
	}
	return nil, false
}
