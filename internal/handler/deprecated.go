package handler

import "github.com/rxtd-audio/soundgraph/internal/dsp"

// FiniteTimeFilter is deprecated in favor of TimeResampler + a transform
// chain's "filter" stage, but is kept parseable so old configurations
// still load without a host-visible error (spec.md's identity-on-
// unknown-option rule extends to whole deprecated handlers). It applies
// a single one-pole smoothing pass and otherwise passes values through.
type FiniteTimeFilter struct {
	irf    dsp.LogarithmicIRF
	state  []float64
}

func (h *FiniteTimeFilter) Parse(opts ConfigNode) (ParseResult, error) {
	sourceName := opts.GetOr("source", "")
	var sources []string
	if sourceName != "" {
		sources = []string{sourceName}
	}
	return ParseResult{Params: nil, Sources: sources}, nil
}

func (h *FiniteTimeFilter) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.irf.SetParams(0.05, 0.05, sampleRate, 1)
	if source == nil {
		return NewUniformDataSize(1, 1, 1), nil
	}
	size := source.DataSize()
	h.state = make([]float64, size.ValuesCount[0])
	return size, nil
}

func (h *FiniteTimeFilter) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	if source == nil {
		return nil
	}
	for _, chunk := range source.Chunks(0) {
		h.irf.ArrayApply(h.state, chunk.Values)
		out := make([]float64, len(h.state))
		copy(out, h.state)
		push(0, out, chunk.EquivalentWaveSize)
	}
	return nil
}

func (h *FiniteTimeFilter) GetProp(name string) (any, bool) { return nil, false }

// LogarithmicValueMapper is deprecated in favor of a transform chain's
// "db" + "map" stages, kept for the same backward-compatibility reason
// as FiniteTimeFilter.
type LogarithmicValueMapper struct {
	chain *dsp.Chain
}

func (h *LogarithmicValueMapper) Parse(opts ConfigNode) (ParseResult, error) {
	sourceName := opts.GetOr("source", "")
	var sources []string
	if sourceName != "" {
		sources = []string{sourceName}
	}
	return ParseResult{Params: nil, Sources: sources}, nil
}

func (h *LogarithmicValueMapper) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.chain = dsp.ParseChain("db")
	if source == nil {
		return NewUniformDataSize(1, 1, 1), nil
	}
	return source.DataSize(), nil
}

func (h *LogarithmicValueMapper) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	if source == nil {
		return nil
	}
	for _, chunk := range source.Chunks(0) {
		out := make([]float64, len(chunk.Values))
		for i, v := range chunk.Values {
			out[i] = h.chain.Apply(v)
		}
		push(0, out, chunk.EquivalentWaveSize)
	}
	return nil
}

func (h *LogarithmicValueMapper) GetProp(name string) (any, bool) { return nil, false }
