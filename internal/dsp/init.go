package dsp

import (
	"github.com/rxtd-audio/soundgraph/internal/cpuspec"
	"github.com/rxtd-audio/soundgraph/internal/logging"
)

// At package init we log (at Debug level) whether the host CPU offers
// AVX2, purely informational -- the FFT kernel in this package stays
// portable Go and never branches on it. Mirrors the teacher's
// internal/cpuspec feature-detection logging at startup.
func init() {
	spec := cpuspec.Detect()
	logger := logging.ForService("dsp")
	logger.Debug("cpu features detected",
		"brand", spec.BrandName,
		"avx2", spec.HasAVX2,
		"avx512f", spec.HasAVX512,
		"logical_cores", spec.LogicalCores,
	)
}
