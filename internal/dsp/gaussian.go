package dsp

import (
	"math"
	"sync"
)

// GaussianKernelCache memoizes normalized Gaussian blur kernels by radius,
// ported from audio-utils/GaussianCoefficientsManager.h: kernels are
// expensive-ish to regenerate and UniformBlur requests the same radius
// every tick, so a handler keeps one of these instances for its lifetime.
type GaussianKernelCache struct {
	mu    sync.Mutex
	cache map[int][]float64
}

// NewGaussianKernelCache returns an empty cache.
func NewGaussianKernelCache() *GaussianKernelCache {
	return &GaussianKernelCache{cache: make(map[int][]float64)}
}

// ForRadius returns the normalized kernel for the given radius, computing
// and storing it on first use. The kernel has length 2*radius+1.
func (c *GaussianKernelCache) ForRadius(radius int) []float64 {
	if radius <= 0 {
		return []float64{1.0}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.cache[radius]; ok {
		return k
	}
	k := generateGaussianKernel(radius)
	c.cache[radius] = k
	return k
}

func generateGaussianKernel(radius int) []float64 {
	size := 2*radius + 1
	kernel := make([]float64, size)
	// sigma chosen so the kernel's tails reach roughly 1/256 of the peak
	// at the radius edge, a standard rule of thumb for blur kernels.
	sigma := float64(radius) / math.Sqrt(2*math.Log(256))
	if sigma <= 0 {
		sigma = 1
	}
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// ApplyUniform1D convolves src with a uniform-weight box kernel of the
// given radius and writes into dst (both length n) -- a flat moving
// average rather than ApplyWeighted1D's Gaussian. Neither blur handler
// calls it.
func ApplyUniform1D(dst, src []float64, radius int) {
	n := len(src)
	if radius <= 0 {
		copy(dst, src)
		return
	}
	window := 2*radius + 1
	for i := 0; i < n; i++ {
		sum := 0.0
		count := 0
		for k := -radius; k <= radius; k++ {
			j := i + k
			if j < 0 || j >= n {
				continue
			}
			sum += src[j]
			count++
		}
		if count == 0 {
			count = 1
		}
		dst[i] = sum / float64(count)
	}
	_ = window
}

// ApplyWeighted1D convolves src with a Gaussian kernel of the given
// radius (from cache); both UniformBlur and WeightedBlur smooth with it.
func ApplyWeighted1D(dst, src []float64, cache *GaussianKernelCache, radius int) {
	n := len(src)
	kernel := cache.ForRadius(radius)
	for i := 0; i < n; i++ {
		sum := 0.0
		weight := 0.0
		for k := -radius; k <= radius; k++ {
			j := i + k
			if j < 0 || j >= n {
				continue
			}
			w := kernel[k+radius]
			sum += src[j] * w
			weight += w
		}
		if weight == 0 {
			weight = 1
		}
		dst[i] = sum / weight
	}
}
