package dsp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TransformStage is one link of a value transform chain: db conversion,
// linear remapping, clamping, or (for legacy compatibility) a one-pole
// filter. Every handler that exposes a "transform" option builds a
// Chain of these instead of hand-rolling the math itself.
type TransformStage interface {
	Apply(v float64) float64
}

// dbStage implements spec.md §4.3.9's db stage: v <= 0 maps to -Inf (so
// a following clamp stage decides the displayed floor), otherwise
// 10*log10(v). The stage applies this to whatever value arrives; it does
// not square its input, so an amplitude (an RMS level or an FFT
// magnitude) comes out at half its 20*log10 dB value.
type dbStage struct{ refLevel float64 }

func (s dbStage) Apply(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(v/s.refLevel)
}

type mapStage struct{ inMin, inMax, outMin, outMax float64 }

func (s mapStage) Apply(v float64) float64 {
	if s.inMax == s.inMin {
		return s.outMin
	}
	t := (v - s.inMin) / (s.inMax - s.inMin)
	return s.outMin + t*(s.outMax-s.outMin)
}

type clampStage struct{ lo, hi float64 }

func (s clampStage) Apply(v float64) float64 {
	if v < s.lo {
		return s.lo
	}
	if v > s.hi {
		return s.hi
	}
	return v
}

// filterStage is the deprecated FiniteTimeFilter behaviour: a one-pole
// smoother kept only for config compatibility with old layouts (spec.md
// explicitly keeps legacy handlers parseable but discourages new use).
type filterStage struct {
	irf   LogarithmicIRF
	state float64
	init  bool
}

func (s *filterStage) Apply(v float64) float64 {
	if !s.init {
		s.state = v
		s.init = true
		return v
	}
	s.state = s.irf.Apply(s.state, v)
	return s.state
}

// Chain applies a sequence of stages in order. An empty chain (or one
// built from an unparseable description) is the identity function.
type Chain struct {
	stages []TransformStage
}

// Apply runs v through every stage in order.
func (c *Chain) Apply(v float64) float64 {
	for _, s := range c.stages {
		v = s.Apply(v)
	}
	return v
}

// ApplyAll runs Apply over every element of dst in place.
func (c *Chain) ApplyAll(dst []float64) {
	for i, v := range dst {
		dst[i] = c.Apply(v)
	}
}

// ParseChain parses a semicolon-separated list of stage descriptors,
// e.g. "db; map[-60,0,0,1]; clamp[0,1]". On any parse failure the whole
// chain degrades to empty/identity rather than partially applying,
// matching the identity-on-parse-failure rule in spec.md §9.
func ParseChain(desc string) *Chain {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return &Chain{}
	}

	parts := strings.Split(desc, ";")
	stages := make([]TransformStage, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		stage, err := parseStage(part)
		if err != nil {
			return &Chain{}
		}
		stages = append(stages, stage)
	}
	return &Chain{stages: stages}
}

func parseStage(desc string) (TransformStage, error) {
	name, args, _ := strings.Cut(desc, "[")
	name = strings.TrimSpace(name)
	args = strings.TrimSuffix(args, "]")

	switch name {
	case "db":
		ref := 1.0
		if args != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(args), 64)
			if err != nil {
				return nil, err
			}
			ref = v
		}
		return dbStage{refLevel: ref}, nil

	case "map":
		nums, err := parseFourNums(args)
		if err != nil {
			return nil, err
		}
		return mapStage{inMin: nums[0], inMax: nums[1], outMin: nums[2], outMax: nums[3]}, nil

	case "clamp":
		nums, err := parseTwoNums(args)
		if err != nil {
			return nil, err
		}
		lo, hi := nums[0], nums[1]
		if lo > hi {
			lo, hi = hi, lo
		}
		return clampStage{lo: lo, hi: hi}, nil

	case "filter":
		attack, decay := 0.1, 0.1
		if args != "" {
			nums, err := parseTwoNums(args)
			if err == nil {
				attack, decay = nums[0], nums[1]
			}
		}
		fs := &filterStage{}
		fs.irf.SetParams(attack, decay, 1.0, 1)
		return fs, nil

	default:
		return nil, fmt.Errorf("unknown transform stage %q", name)
	}
}

func parseTwoNums(s string) ([2]float64, error) {
	fields := strings.Split(s, ",")
	var out [2]float64
	if len(fields) != 2 {
		return out, fmt.Errorf("expected 2 values, got %d", len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

func parseFourNums(s string) ([4]float64, error) {
	fields := strings.Split(s, ",")
	var out [4]float64
	if len(fields) != 4 {
		return out, fmt.Errorf("expected 4 values, got %d", len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}
