package handler

import (
	"strconv"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

// blockParams covers both BlockRms and BlockPeak (spec.md §4.3.1): an
// update rate (clamped to [0.01, 500] Hz) deriving the block size,
// attack/decay times feeding the post-accumulation LogarithmicIRF, and
// a transform chain applied after that.
type blockParams struct {
	updateRateHz float64
	attackMs     float64
	decayMs      float64
	chain        string
}

func parseBlockParams(opts ConfigNode) blockParams {
	p := blockParams{updateRateHz: 20, attackMs: 0, decayMs: 0}
	if v, ok := opts.Get("update-rate"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.updateRateHz = f
		}
	} else if v, ok := opts.Get("block-size"); ok {
		// legacy alias: "block-size" was a millisecond window rather than
		// a rate; accepted unchanged for configs written against the
		// pre-spec parameter name.
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			p.updateRateHz = 1000.0 / f
		}
	}
	if p.updateRateHz < 0.01 {
		p.updateRateHz = 0.01
	}
	if p.updateRateHz > 500 {
		p.updateRateHz = 500
	}
	if v, ok := opts.Get("attack"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			p.attackMs = f
		}
	}
	if v, ok := opts.Get("decay"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			p.decayMs = f
		}
	}
	p.chain, _ = opts.Get("transform")
	return p
}

func blockSizeFor(updateRateHz, sampleRate float64) int {
	n := int(sampleRate/updateRateHz + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// BlockRms computes the root-mean-square level of the raw wave over
// fixed-size blocks, one value per block: handler.h's simplest example
// of a root handler with no upstream source, specialized here through
// an attack/decay follower and a transform chain (spec.md §4.3.1).
type BlockRms struct {
	params      blockParams
	blockSize   int
	remaining   int
	accumulator dsp.RunningRMS
	irf         dsp.LogarithmicIRF
	irfState    float64
	irfInit     bool
	chain       *dsp.Chain
	lastOut     float64
}

func (h *BlockRms) Parse(opts ConfigNode) (ParseResult, error) {
	return ParseResult{Params: parseBlockParams(opts)}, nil
}

func (h *BlockRms) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(blockParams)
	h.blockSize = blockSizeFor(h.params.updateRateHz, sampleRate)
	h.remaining = h.blockSize
	h.accumulator.Reset()
	h.irf.SetParams(h.params.attackMs/1000, h.params.decayMs/1000, sampleRate, h.blockSize)
	h.irfInit = false
	h.chain = dsp.ParseChain(h.params.chain)
	return NewUniformDataSize(1, 1, h.blockSize), nil
}

func (h *BlockRms) emit(push PushFunc, value float64) float64 {
	if !h.irfInit {
		h.irfState = value
		h.irfInit = true
	} else {
		h.irfState = h.irf.Apply(h.irfState, value)
	}
	out := h.chain.Apply(h.irfState)
	push(0, []float64{out}, h.blockSize)
	h.lastOut = out
	return out
}

func (h *BlockRms) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	samples := ctx.Wave.Samples
	for len(samples) > 0 {
		if ctx.Overrun() {
			// duplicate the previous chunk rather than emitting a partial block
			push(0, []float64{h.lastOut}, h.blockSize)
			return nil
		}
		n := h.remaining
		if n > len(samples) {
			n = len(samples)
		}
		h.accumulator.PushAll(samples[:n])
		samples = samples[n:]
		h.remaining -= n
		if h.remaining <= 0 {
			h.emit(push, h.accumulator.Value())
			h.accumulator.Reset()
			h.remaining = h.blockSize
		}
	}
	return nil
}

func (h *BlockRms) GetProp(name string) (any, bool) {
	if name == "current" {
		return h.accumulator.Value(), true
	}
	return nil, false
}

// BlockPeak computes the running peak absolute amplitude over fixed-size
// blocks: BlockRms above but with a max accumulator instead of RMS.
type BlockPeak struct {
	params      blockParams
	blockSize   int
	remaining   int
	accumulator dsp.RunningPeak
	irf         dsp.LogarithmicIRF
	irfState    float64
	irfInit     bool
	chain       *dsp.Chain
	lastOut     float64
}

func (h *BlockPeak) Parse(opts ConfigNode) (ParseResult, error) {
	return ParseResult{Params: parseBlockParams(opts)}, nil
}

func (h *BlockPeak) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(blockParams)
	h.blockSize = blockSizeFor(h.params.updateRateHz, sampleRate)
	h.remaining = h.blockSize
	h.accumulator.Reset()
	h.irf.SetParams(h.params.attackMs/1000, h.params.decayMs/1000, sampleRate, h.blockSize)
	h.irfInit = false
	h.chain = dsp.ParseChain(h.params.chain)
	return NewUniformDataSize(1, 1, h.blockSize), nil
}

func (h *BlockPeak) emit(push PushFunc, value float64) float64 {
	if !h.irfInit {
		h.irfState = value
		h.irfInit = true
	} else {
		h.irfState = h.irf.Apply(h.irfState, value)
	}
	out := h.chain.Apply(h.irfState)
	push(0, []float64{out}, h.blockSize)
	h.lastOut = out
	return out
}

func (h *BlockPeak) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	samples := ctx.Wave.Samples
	for len(samples) > 0 {
		if ctx.Overrun() {
			// duplicate the previous chunk rather than emitting a partial block
			push(0, []float64{h.lastOut}, h.blockSize)
			return nil
		}
		n := h.remaining
		if n > len(samples) {
			n = len(samples)
		}
		h.accumulator.PushAll(samples[:n])
		samples = samples[n:]
		h.remaining -= n
		if h.remaining <= 0 {
			h.emit(push, h.accumulator.Value())
			h.accumulator.Reset()
			h.remaining = h.blockSize
		}
	}
	return nil
}

func (h *BlockPeak) GetProp(name string) (any, bool) {
	if name == "current" {
		return h.accumulator.Value(), true
	}
	return nil, false
}
