package dsp

// LinearAt samples ys at fractional index pos using linear
// interpolation between the two nearest points. pos is clamped to the
// valid range.
func LinearAt(ys []float64, pos float64) float64 {
	n := len(ys)
	if n == 0 {
		return 0
	}
	if pos <= 0 {
		return ys[0]
	}
	if pos >= float64(n-1) {
		return ys[n-1]
	}
	i0 := int(pos)
	frac := pos - float64(i0)
	return ys[i0]*(1-frac) + ys[i0+1]*frac
}

// CubicAt samples ys at fractional index pos using Catmull-Rom cubic
// interpolation, the "cubic-resampling" option BandResampler exposes
// for smoother band-to-band value transitions than plain linear lookup.
func CubicAt(ys []float64, pos float64) float64 {
	n := len(ys)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return ys[0]
	}
	if pos <= 0 {
		return ys[0]
	}
	if pos >= float64(n-1) {
		return ys[n-1]
	}

	i1 := int(pos)
	t := pos - float64(i1)

	at := func(i int) float64 {
		if i < 0 {
			return ys[0]
		}
		if i >= n {
			return ys[n-1]
		}
		return ys[i]
	}

	p0, p1, p2, p3 := at(i1-1), at(i1), at(i1+1), at(i1+2)

	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}
