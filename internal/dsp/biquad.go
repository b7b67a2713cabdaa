package dsp

import "math"

// Biquad is a second-order section in direct-form-I with coefficients
// pre-normalized by a0, matching the field layout myaudio/equalizer's
// Filter type uses (b0a0, b1a0, b2a0, a1a0, a2a0 plus two-sample history).
type Biquad struct {
	b0a0, b1a0, b2a0 float64
	a1a0, a2a0       float64
	in1, in2         float64
	out1, out2       float64
}

// Apply filters one sample through the biquad section.
func (f *Biquad) Apply(x float64) float64 {
	y := f.b0a0*x + f.b1a0*f.in1 + f.b2a0*f.in2 - f.a1a0*f.out1 - f.a2a0*f.out2
	f.in2 = f.in1
	f.in1 = x
	f.out2 = f.out1
	f.out1 = y
	return y
}

// IsZero reports whether this section is an identity pass-through
// (used to skip allocating/ running no-op filters).
func (f *Biquad) IsZero() bool {
	return f.b0a0 == 1 && f.b1a0 == 0 && f.b2a0 == 0 && f.a1a0 == 0 && f.a2a0 == 0
}

// FilterChain cascades one or more biquad sections (the "passes"
// parameter in NewLowPass et al. cascades the same design N times for a
// steeper roll-off, same knob the equalizer package exposes).
type FilterChain struct {
	stages []*Biquad
}

// ApplyBatch filters dst in place through every stage in sequence.
func (c *FilterChain) ApplyBatch(dst []float64) {
	for _, stage := range c.stages {
		for i, v := range dst {
			dst[i] = stage.Apply(v)
		}
	}
}

// IsZero reports whether every stage in the chain is an identity filter.
func (c *FilterChain) IsZero() bool {
	for _, s := range c.stages {
		if !s.IsZero() {
			return false
		}
	}
	return true
}

func rbjLowPass(sampleRate, freq, q float64) *Biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	cosw0, sinw0 := math.Cos(w0), math.Sin(w0)
	alpha := sinw0 / (2 * q)

	b0 := (1 - cosw0) / 2
	b1 := 1 - cosw0
	b2 := (1 - cosw0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha

	return &Biquad{b0a0: b0 / a0, b1a0: b1 / a0, b2a0: b2 / a0, a1a0: a1 / a0, a2a0: a2 / a0}
}

func rbjHighPass(sampleRate, freq, q float64) *Biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	cosw0, sinw0 := math.Cos(w0), math.Sin(w0)
	alpha := sinw0 / (2 * q)

	b0 := (1 + cosw0) / 2
	b1 := -(1 + cosw0)
	b2 := (1 + cosw0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha

	return &Biquad{b0a0: b0 / a0, b1a0: b1 / a0, b2a0: b2 / a0, a1a0: a1 / a0, a2a0: a2 / a0}
}

func rbjBandPass(sampleRate, freq, q float64) *Biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	cosw0, sinw0 := math.Cos(w0), math.Sin(w0)
	alpha := sinw0 / (2 * q)

	b0 := alpha
	b1 := 0.0
	b2 := -alpha
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha

	return &Biquad{b0a0: b0 / a0, b1a0: b1 / a0, b2a0: b2 / a0, a1a0: a1 / a0, a2a0: a2 / a0}
}

func rbjPeaking(sampleRate, freq, q, gainDB float64) *Biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cosw0, sinw0 := math.Cos(w0), math.Sin(w0)
	alpha := sinw0 / (2 * q)

	b0 := 1 + alpha*a
	b1 := -2 * cosw0
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosw0
	a2 := 1 - alpha/a

	return &Biquad{b0a0: b0 / a0, b1a0: b1 / a0, b2a0: b2 / a0, a1a0: a1 / a0, a2a0: a2 / a0}
}

func buildChain(build func() *Biquad, passes int) *FilterChain {
	if passes < 1 {
		passes = 1
	}
	c := &FilterChain{stages: make([]*Biquad, passes)}
	for i := range c.stages {
		c.stages[i] = build()
	}
	return c
}

// NewLowPass builds an RBJ low-pass filter chain, repeated `passes` times.
func NewLowPass(sampleRate, freq, q float64, passes int) *FilterChain {
	return buildChain(func() *Biquad { return rbjLowPass(sampleRate, freq, q) }, passes)
}

// NewHighPass builds an RBJ high-pass filter chain, repeated `passes` times.
func NewHighPass(sampleRate, freq, q float64, passes int) *FilterChain {
	return buildChain(func() *Biquad { return rbjHighPass(sampleRate, freq, q) }, passes)
}

// NewBandPass builds an RBJ constant 0 dB peak gain band-pass chain.
func NewBandPass(sampleRate, freq, q float64, passes int) *FilterChain {
	return buildChain(func() *Biquad { return rbjBandPass(sampleRate, freq, q) }, passes)
}

// NewPeaking builds an RBJ peaking/parametric-EQ chain, gainDB in
// decibels (positive boosts, negative cuts), matching
// equalizer.NewPeaking's parameter order.
func NewPeaking(sampleRate, freq, q, gainDB float64, passes int) *FilterChain {
	return buildChain(func() *Biquad { return rbjPeaking(sampleRate, freq, q, gainDB) }, passes)
}

// NewKWeightingChain builds the two-stage pre-filter ITU-R BS.1770
// specifies for loudness measurement: a high shelf (here approximated
// with a peaking boost around 1.5kHz) cascaded with a high-pass at 38Hz.
func NewKWeightingChain(sampleRate float64) *FilterChain {
	shelf := rbjPeaking(sampleRate, 1500, 0.7, 4.0)
	highPass := rbjHighPass(sampleRate, 38, 0.5)
	return &FilterChain{stages: []*Biquad{shelf, highPass}}
}
