// Package cpuspec reports informational CPU capabilities at startup. It
// never drives scheduling decisions -- the engine's tick loop is single
// threaded per processing group (spec.md §5) regardless of core count.
package cpuspec

import "github.com/klauspost/cpuid/v2"

// Spec is a snapshot of the host CPU's identity and relevant SIMD features.
type Spec struct {
	BrandName    string
	HasAVX2      bool
	HasAVX512    bool
	LogicalCores int
}

// Detect reads the current CPU's identity via cpuid.
func Detect() Spec {
	return Spec{
		BrandName:    cpuid.CPU.BrandName,
		HasAVX2:      cpuid.CPU.Supports(cpuid.AVX2),
		HasAVX512:    cpuid.CPU.Supports(cpuid.AVX512F),
		LogicalCores: cpuid.CPU.LogicalCores,
	}
}
