package dsp

import "math"

// LogarithmicIRF is a one-pole attack/decay smoother: it approaches a new
// input value exponentially, using a faster (or slower) time constant
// depending on whether the value is rising (attack) or falling (decay).
// Grounded on TimeResampler.cpp's use of a per-layer "lowPass" filter,
// reconfigured every vConfigure call with the block's equivalent wave
// size so its per-step coefficient tracks how often arrayApply is called.
type LogarithmicIRF struct {
	attackCoeff float64
	decayCoeff  float64
}

// SetParams configures the smoother. attackTime/decayTime are seconds;
// sampleRate is in Hz; stepSize is the number of samples represented by
// one call to Apply/ArrayApply (the chunk's equivalent wave size).
func (f *LogarithmicIRF) SetParams(attackTime, decayTime, sampleRate float64, stepSize int) {
	f.attackCoeff = computeCoefficient(attackTime, sampleRate, stepSize)
	f.decayCoeff = computeCoefficient(decayTime, sampleRate, stepSize)
}

func computeCoefficient(timeConst, sampleRate float64, stepSize int) float64 {
	if timeConst <= 0 || stepSize <= 0 {
		return 0 // coefficient 0 means "jump straight to the new value"
	}
	return math.Exp(-float64(stepSize) / (timeConst * sampleRate))
}

// Apply smooths a single scalar state value toward newValue.
func (f *LogarithmicIRF) Apply(state, newValue float64) float64 {
	var coeff float64
	if newValue > state {
		coeff = f.attackCoeff
	} else {
		coeff = f.decayCoeff
	}
	return state*coeff + newValue*(1-coeff)
}

// ArrayApply smooths dst in place toward src, element-wise, the pattern
// TimeResampler.processLayer uses once per incoming chunk.
func (f *LogarithmicIRF) ArrayApply(dst, src []float64) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] = f.Apply(dst[i], src[i])
	}
}

// Reset clears both coefficients so the next Apply jumps directly to the
// new value, used when a handler's source layout changes shape.
func (f *LogarithmicIRF) Reset() {
	f.attackCoeff = 0
	f.decayCoeff = 0
}
