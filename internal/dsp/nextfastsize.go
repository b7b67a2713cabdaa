package dsp

// NextFastSize returns the smallest 5-smooth integer (a product of only
// the primes 2, 3 and 5) that is >= n, with a floor of 16. FFT kernels in
// this engine only accept sizes of this shape, mirroring the original
// rxtd AudioAnalyzer's use of kiss_fft's calculateNextFastSize: cascades
// each pick their own FFT length from a requested bin width, and that
// length must stay fast to transform.
func NextFastSize(n int) int {
	const minSize = 16
	if n < minSize {
		n = minSize
	}
	for {
		if is5Smooth(n) {
			return n
		}
		n++
	}
}

func is5Smooth(n int) bool {
	for _, p := range [3]int{2, 3, 5} {
		for n%p == 0 {
			n /= p
		}
	}
	return n == 1
}
