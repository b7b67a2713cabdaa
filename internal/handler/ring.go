package handler

import "sync"

// valuePool recycles []float64 backing arrays across ticks, the same
// tiered-by-size idea as audiocore's bufferPoolImpl but specialized to
// the small, fixed-shape value vectors chunks carry (a handful of
// floats up to a few thousand for an FFT cascade's bin count) rather
// than byte buffers.
type valuePool struct {
	pools [len(poolTiers)]sync.Pool
}

var poolTiers = [...]int{64, 512, 4096, 65536}

func newValuePool() *valuePool {
	p := &valuePool{}
	for i, size := range poolTiers {
		sz := size
		p.pools[i].New = func() any {
			return make([]float64, 0, sz)
		}
	}
	return p
}

func (p *valuePool) get(n int) []float64 {
	for i, size := range poolTiers {
		if n <= size {
			buf := p.pools[i].Get().([]float64)
			if cap(buf) < n {
				buf = make([]float64, n)
			} else {
				buf = buf[:n]
			}
			return buf
		}
	}
	return make([]float64, n)
}

func (p *valuePool) put(buf []float64) {
	n := cap(buf)
	for i, size := range poolTiers {
		if n <= size {
			p.pools[i].Put(buf[:0]) //nolint:staticcheck // intentional reuse of slice header
			return
		}
	}
}

// Ring stores the chunks a handler emitted this tick, per output layer,
// plus the last value pushed to each layer (for downstream handlers
// like TimeResampler that need to keep smoothing even across ticks that
// produced no new chunk). It satisfies SourceProvider for whichever
// handler reads from it.
type Ring struct {
	mu         sync.Mutex
	dataSize   DataSize
	sampleRate float64
	layers     [][]Chunk
	lastValue  []Chunk
	pool       *valuePool
	handler    Handler
}

// NewRing allocates a ring sized for the given output shape, wrapping the
// handler instance it buffers output for.
func NewRing(size DataSize, sampleRate float64, h Handler) *Ring {
	r := &Ring{
		dataSize:   size,
		sampleRate: sampleRate,
		layers:     make([][]Chunk, size.LayersCount),
		lastValue:  make([]Chunk, size.LayersCount),
		pool:       newValuePool(),
		handler:    h,
	}
	for i := 0; i < size.LayersCount; i++ {
		vc := 0
		if i < len(size.ValuesCount) {
			vc = size.ValuesCount[i]
		}
		r.lastValue[i] = Chunk{Values: make([]float64, vc)}
	}
	return r
}

// BeginTick clears the per-tick chunk lists without touching lastValue,
// so a handler that emits nothing this tick still has a valid "last
// known value" to hand downstream.
func (r *Ring) BeginTick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.layers {
		for _, c := range r.layers[i] {
			r.pool.put(c.Values)
		}
		r.layers[i] = r.layers[i][:0]
	}
}

// Push implements PushFunc: it copies values into a pooled buffer (so
// the caller's slice can be reused immediately) and records it as both
// this tick's chunk and the new last-known value.
func (r *Ring) Push(layer int, values []float64, equivalentWaveSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if layer < 0 || layer >= len(r.layers) {
		return
	}
	buf := r.pool.get(len(values))
	copy(buf, values)
	chunk := Chunk{EquivalentWaveSize: equivalentWaveSize, Values: buf}
	r.layers[layer] = append(r.layers[layer], chunk)

	lastBuf := r.lastValue[layer].Values
	if cap(lastBuf) < len(values) {
		lastBuf = make([]float64, len(values))
	} else {
		lastBuf = lastBuf[:len(values)]
	}
	copy(lastBuf, values)
	r.lastValue[layer] = Chunk{EquivalentWaveSize: equivalentWaveSize, Values: lastBuf}
}

func (r *Ring) DataSize() DataSize  { return r.dataSize }
func (r *Ring) SampleRate() float64 { return r.sampleRate }

// Handler returns the handler instance this ring buffers output for -- the
// escape hatch a downstream consumer uses to reach a well-typed auxiliary
// accessor beyond SourceProvider's generic chunk view, the same
// accessor-not-downcast pattern internal/graph's imageSnapshotter uses.
func (r *Ring) Handler() Handler { return r.handler }

// BandWeights forwards to the wrapped handler's BandWeights if it has
// one (currently only BandResampler); nil otherwise.
func (r *Ring) BandWeights(band int) []float64 {
	bw, ok := r.handler.(interface{ BandWeights(int) []float64 })
	if !ok {
		return nil
	}
	return bw.BandWeights(band)
}

func (r *Ring) Chunks(layer int) []Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	if layer < 0 || layer >= len(r.layers) {
		return nil
	}
	out := make([]Chunk, len(r.layers[layer]))
	copy(out, r.layers[layer])
	return out
}

func (r *Ring) LastValue(layer int) Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	if layer < 0 || layer >= len(r.lastValue) {
		return Chunk{}
	}
	return r.lastValue[layer].Clone()
}

// PurgeCache drops every pooled buffer this ring holds. Nothing in this
// module calls it: a reconfigure that changes a handler's shape gets a
// new Ring from construct.go instead.
func (r *Ring) PurgeCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.layers {
		r.layers[i] = nil
	}
	r.pool = newValuePool()
}
