package dsp

import "math"

// WindowFunc fills dst (length = window size) with window coefficients.
// Grounded on audio-utils/WindowFunctionHelper.h's parse/create* family.
type WindowFunc func(dst []float64)

// Rectangular fills dst with 1.0 everywhere (no tapering).
func Rectangular(dst []float64) {
	for i := range dst {
		dst[i] = 1.0
	}
}

// cosineSum fills dst with a generalized cosine-sum window built from
// alternating-sign coefficients, the family Hann and Hamming both belong
// to (createCosineSum in the original).
func cosineSum(dst []float64, coeffs []float64) {
	n := len(dst)
	if n == 1 {
		dst[0] = 1.0
		return
	}
	denom := float64(n - 1)
	for i := 0; i < n; i++ {
		v := 0.0
		sign := 1.0
		for k, c := range coeffs {
			v += sign * c * math.Cos(2*math.Pi*float64(k)*float64(i)/denom)
			sign = -sign
		}
		dst[i] = v
	}
}

// Hann is the cosine-sum window with coefficients {0.5, 0.5}.
func Hann(dst []float64) {
	cosineSum(dst, []float64{0.5, 0.5})
}

// Hamming is the cosine-sum window with coefficients {0.54, 0.46}.
func Hamming(dst []float64) {
	cosineSum(dst, []float64{0.54, 0.46})
}

// besselI0 approximates the zeroth-order modified Bessel function of the
// first kind via its power series, enough terms to converge for the beta
// range used by audio Kaiser windows (roughly 0..20).
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	halfX := x / 2
	for k := 1; k < 40; k++ {
		term *= (halfX / float64(k))
		sum += term * term
		if term*term < 1e-16*sum {
			break
		}
	}
	return sum
}

// Kaiser returns a window function for a given beta shape parameter.
func Kaiser(beta float64) WindowFunc {
	return func(dst []float64) {
		n := len(dst)
		if n == 1 {
			dst[0] = 1.0
			return
		}
		denom := float64(n - 1)
		i0Beta := besselI0(beta)
		for i := 0; i < n; i++ {
			r := 2*float64(i)/denom - 1
			arg := beta * math.Sqrt(math.Max(0, 1-r*r))
			dst[i] = besselI0(arg) / i0Beta
		}
	}
}

// Exponential tapers from 1.0 at the center to targetEnd at both edges,
// matching createExponential's decay-to-endpoint-value behaviour.
func Exponential(targetEnd float64) WindowFunc {
	if targetEnd <= 0 {
		targetEnd = 1e-6
	}
	return func(dst []float64) {
		n := len(dst)
		if n == 1 {
			dst[0] = 1.0
			return
		}
		half := float64(n-1) / 2
		decay := -math.Log(targetEnd) / half
		for i := 0; i < n; i++ {
			dist := math.Abs(float64(i) - half)
			dst[i] = math.Exp(-decay * dist)
		}
	}
}

// chebyPoly evaluates the Chebyshev polynomial of order n at x, using the
// hyperbolic form outside [-1, 1] the way cheby_win.cpp's cheby_poly does.
func chebyPoly(n int, x float64) float64 {
	switch {
	case x > 1:
		return math.Cosh(float64(n) * math.Acosh(x))
	case x < -1:
		sign := 1.0
		if n%2 != 0 {
			sign = -1.0
		}
		return sign * math.Cosh(float64(n)*math.Acosh(-x))
	default:
		return math.Cos(float64(n) * math.Acos(x))
	}
}

// Chebyshev returns a Dolph-Chebyshev window function with the given
// stopband attenuation in dB, ported from cheby_win.cpp's cheby_win.
func Chebyshev(attenDB float64) WindowFunc {
	return func(dst []float64) {
		n := len(dst)
		if n < 2 {
			for i := range dst {
				dst[i] = 1.0
			}
			return
		}
		nm1 := n - 1
		tg := math.Pow(10, attenDB/20)
		x0 := math.Cosh((1 / float64(nm1)) * math.Acosh(tg))

		freq := make([]float64, n)
		maxVal := 0.0
		for i := 0; i < n; i++ {
			var sum float64
			for j := 0; j < n; j++ {
				arg := x0 * math.Cos(math.Pi*float64(j)/float64(n))
				sum += chebyPoly(nm1, arg) * math.Cos(2*math.Pi*(float64(i)-float64(nm1)/2)*float64(j)/float64(n))
			}
			freq[i] = sum
			if math.Abs(sum) > maxVal {
				maxVal = math.Abs(sum)
			}
		}
		if maxVal == 0 {
			maxVal = 1
		}
		for i := 0; i < n; i++ {
			dst[i] = freq[i] / maxVal
		}
	}
}

// ParseWindow resolves a window descriptor name (as it would appear in a
// handler's options) to a WindowFunc. Unknown names fall back to
// Rectangular, matching the original's identity-on-parse-failure rule
// (spec.md §9).
func ParseWindow(name string, param float64) WindowFunc {
	switch name {
	case "hann", "":
		return Hann
	case "hamming":
		return Hamming
	case "kaiser":
		if param <= 0 {
			param = 5.0
		}
		return Kaiser(param)
	case "exponential":
		if param <= 0 {
			param = 0.01
		}
		return Exponential(param)
	case "chebyshev":
		if param <= 0 {
			param = 80.0
		}
		return Chebyshev(param)
	case "rectangular":
		return Rectangular
	default:
		return Rectangular
	}
}
