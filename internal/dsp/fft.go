package dsp

import "math"

// FFT computes the radix-2 Cooley-Tukey transform of a complex sequence
// in place. len(data) must be a power of two.
func FFT(data []complex128) {
	n := len(data)
	if n <= 1 {
		return
	}
	bitReverse(data)
	for size := 2; size <= n; size *= 2 {
		half := size / 2
		angleStep := -2 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for i := 0; i < half; i++ {
				w := complex(math.Cos(angleStep*float64(i)), math.Sin(angleStep*float64(i)))
				even := data[start+i]
				odd := data[start+i+half] * w
				data[start+i] = even + odd
				data[start+i+half] = even - odd
			}
		}
	}
}

// IFFT computes the inverse transform in place, including the 1/n scale.
func IFFT(data []complex128) {
	n := len(data)
	if n <= 1 {
		return
	}
	for i := range data {
		data[i] = complex(real(data[i]), -imag(data[i]))
	}
	FFT(data)
	scale := 1 / float64(n)
	for i := range data {
		data[i] = complex(real(data[i])*scale, -imag(data[i])*scale)
	}
}

func bitReverse(data []complex128) {
	n := len(data)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			data[i], data[j] = data[j], data[i]
		}
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

// TransformN computes the forward DFT of an arbitrary-length complex
// sequence via Bluestein's chirp z-transform, falling back to the
// direct radix-2 path when n is already a power of two. This lets
// FftAnalyzer request 5-smooth cascade sizes from NextFastSize without
// requiring every size to be a power of two.
func TransformN(data []complex128) []complex128 {
	n := len(data)
	if isPowerOfTwo(n) {
		out := make([]complex128, n)
		copy(out, data)
		FFT(out)
		return out
	}
	return bluestein(data)
}

func bluestein(data []complex128) []complex128 {
	n := len(data)
	m := nextPowerOfTwo(2*n - 1)

	chirp := make([]complex128, n)
	for i := 0; i < n; i++ {
		// exp(-i*pi*k^2/n), k^2 reduced mod 2n to keep the angle stable
		k2 := float64((i * i) % (2 * n))
		angle := -math.Pi * k2 / float64(n)
		chirp[i] = complex(math.Cos(angle), math.Sin(angle))
	}

	a := make([]complex128, m)
	for i := 0; i < n; i++ {
		a[i] = data[i] * chirp[i]
	}
	b := make([]complex128, m)
	b[0] = conj(chirp[0])
	for i := 1; i < n; i++ {
		c := conj(chirp[i])
		b[i] = c
		b[m-i] = c
	}

	FFT(a)
	FFT(b)
	for i := range a {
		a[i] *= b[i]
	}
	IFFT(a)

	out := make([]complex128, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] * chirp[i]
	}
	return out
}

func conj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

// RealSpectrum returns the non-redundant half of the spectrum (bins
// [0, n/2]) of a real-valued windowed signal, the layout every cascade
// in FftAnalyzer works with (Hermitian symmetry means the rest carries
// no information).
func RealSpectrum(samples []float64) []complex128 {
	n := len(samples)
	complexIn := make([]complex128, n)
	for i, s := range samples {
		complexIn[i] = complex(s, 0)
	}
	full := TransformN(complexIn)
	return full[:n/2+1]
}

// Magnitude fills dst with |spectrum[i]| for each bin.
func Magnitude(spectrum []complex128, dst []float64) {
	for i, c := range spectrum {
		dst[i] = math.Hypot(real(c), imag(c))
	}
}

// PowerSpectrum fills dst with |spectrum[i]|^2 / n^2, so that a
// unit-amplitude sinusoid centred on a bin, with a rectangular window
// and an FFT of size n, produces a bin value of 0.25, i.e. (A/2)^2
// (coherent gain correction is left to the caller, since it depends on
// the chosen window).
func PowerSpectrum(spectrum []complex128, n int, dst []float64) {
	scale := 1.0 / float64(n*n)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		dst[i] = (re*re + im*im) * scale
	}
}
