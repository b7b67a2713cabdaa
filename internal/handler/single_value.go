package handler

import (
	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

// SingleValueTransformer runs every value a single-layer, single-value
// source produces (e.g. BlockRms, Loudness) through a dsp.Chain (db /
// map / clamp stages), the handler a UI binds its "current level" bar
// to after converting raw RMS into a display-ready 0..1 range.
type SingleValueTransformer struct {
	chain *dsp.Chain
	last  float64
}

func (h *SingleValueTransformer) Parse(opts ConfigNode) (ParseResult, error) {
	sourceName, ok := opts.Get("source")
	if !ok || sourceName == "" {
		return ParseResult{}, NewInvalidOptionsError("SingleValueTransformer", "source is not found")
	}
	transform := opts.GetOr("transform", "")
	return ParseResult{Params: transform, Sources: []string{sourceName}}, nil
}

func (h *SingleValueTransformer) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.chain = dsp.ParseChain(params.(string))
	if source == nil {
		return DataSize{}, NewInvalidSourceError("SingleValueTransformer", "value")
	}
	return source.DataSize(), nil
}

func (h *SingleValueTransformer) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	for _, chunk := range source.Chunks(0) {
		out := make([]float64, len(chunk.Values))
		for i, v := range chunk.Values {
			out[i] = h.chain.Apply(v)
		}
		if len(out) > 0 {
			h.last = out[0]
		}
		push(0, out, chunk.EquivalentWaveSize)
	}
	return nil
}

func (h *SingleValueTransformer) GetProp(name string) (any, bool) {
	if name == "current" {
		return h.last, true
	}
	return nil, false
}
