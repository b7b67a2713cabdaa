package graph

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
	"github.com/rxtd-audio/soundgraph/internal/errs"
	"github.com/rxtd-audio/soundgraph/internal/handler"
	"github.com/rxtd-audio/soundgraph/internal/metrics"
)

// Channel is the tagged channel-position enum spec.md §3 describes.
// Equality is structural (plain string comparison).
type Channel string

const (
	ChannelMono      Channel = "Mono"
	ChannelLeft      Channel = "Left"
	ChannelRight     Channel = "Right"
	ChannelCenter    Channel = "Center"
	ChannelLFE       Channel = "LFE"
	ChannelBackLeft  Channel = "BackLeft"
	ChannelBackRight Channel = "BackRight"
	ChannelSideLeft  Channel = "SideLeft"
	ChannelSideRight Channel = "SideRight"
	ChannelAuto      Channel = "Auto"
)

// batchFilter is the minimal surface this package needs from a wave
// pre-filter: apply every stage, in place, to a block of samples.
// dsp.FilterChain and multiChain (below) both satisfy it.
type batchFilter interface {
	ApplyBatch(dst []float64)
}

// channelState is one compiled, live (group, channel) graph: the
// topologically-ordered handler vector construct.go produced, plus the
// group-local wave filter chain state (each channel gets its own filter
// memory, since Biquad sections carry per-instance history).
type channelState struct {
	order  []*handlerNode
	filter batchFilter
}

// ProcessingGroup is one configured Processing-<N> entry, driving every
// channel it covers through its handler DAG once per Update call
// (spec.md §4.4).
type ProcessingGroup struct {
	name        string
	cfg         GroupConfig
	sampleRate  float64
	channels    map[Channel]*channelState
	logger      *slog.Logger
	lastTickErr error
}

// buildGroup parses filter + handler graph for every channel in cfg and
// returns a ready-to-tick group, or an error that should cause the whole
// group to be dropped (spec.md §7: malformed channel set or handler list
// invalidates the group, not just one handler).
func buildGroup(cache *HandlerCache, logger *slog.Logger, cfg GroupConfig, sampleRate float64) (*ProcessingGroup, error) {
	if len(cfg.Channels) == 0 {
		return nil, errs.Newf("group %q has no channels", cfg.Name).
			Component(cfg.Name).Category(errs.CategoryInvalidOptions).Build()
	}

	g := &ProcessingGroup{
		name:       cfg.Name,
		cfg:        cfg,
		sampleRate: sampleRate,
		channels:   make(map[Channel]*channelState, len(cfg.Channels)),
		logger:     logger,
	}

	rate := sampleRate
	if cfg.TargetRate > 0 {
		rate = float64(cfg.TargetRate)
	}

	for _, ch := range cfg.Channels {
		order, err := buildChannelGraph(cache, logger, cfg.Name, cfg, string(ch), rate)
		if err != nil {
			return nil, err
		}
		g.channels[Channel(ch)] = &channelState{
			order:  order,
			filter: parseFilterChain(cfg.Filter, rate),
		}
	}
	return g, nil
}

// parseFilterChain decodes the group's free-form biquad pre-filter
// descriptor: a semicolon-separated list of "kind:freq[:q[:passes]]"
// stages, plus the bare keyword "replaygain" selecting a fixed
// loudness-style shelf+highpass pair built from the same RBJ
// constructors Loudness uses for K-weighting. An empty or unparseable
// descriptor yields a nil chain (ApplyBatch no-ops), matching spec.md
// §9's identity-on-parse-failure rule for every other transform grammar
// in this engine.
func parseFilterChain(desc string, sampleRate float64) batchFilter {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return nil
	}
	if strings.EqualFold(desc, "replaygain") {
		return dsp.NewKWeightingChain(sampleRate)
	}

	var stages []*dsp.FilterChain
	for _, stage := range strings.Split(desc, ";") {
		stage = strings.TrimSpace(stage)
		if stage == "" {
			continue
		}
		fields := strings.Split(stage, ":")
		kind := strings.ToLower(strings.TrimSpace(fields[0]))
		freq, q, passes := 1000.0, 0.707, 1
		if len(fields) > 1 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64); err == nil {
				freq = v
			}
		}
		if len(fields) > 2 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64); err == nil {
				q = v
			}
		}
		// "peak" reuses field 4 as passes since field 3 is its gain; every
		// other kind leaves field 3 as passes.
		passesField := 3
		gainDB := 0.0
		if kind == "peak" {
			if len(fields) > 3 {
				if v, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64); err == nil {
					gainDB = v
				}
			}
			passesField = 4
		}
		if len(fields) > passesField {
			if v, err := strconv.Atoi(strings.TrimSpace(fields[passesField])); err == nil {
				passes = v
			}
		}
		switch kind {
		case "lowpass":
			stages = append(stages, dsp.NewLowPass(sampleRate, freq, q, passes))
		case "highpass":
			stages = append(stages, dsp.NewHighPass(sampleRate, freq, q, passes))
		case "bandpass":
			stages = append(stages, dsp.NewBandPass(sampleRate, freq, q, passes))
		case "peak":
			stages = append(stages, dsp.NewPeaking(sampleRate, freq, q, gainDB, passes))
		}
	}
	if len(stages) == 0 {
		return nil
	}
	if len(stages) == 1 {
		return stages[0]
	}
	return &multiChain{chains: stages}
}

// multiChain runs several independently-built FilterChains back to back;
// dsp.FilterChain keeps its stage slice unexported so a free-form
// group filter descriptor with more than one stage kind (e.g.
// "highpass:80;lowpass:12000") composes chains this way instead of
// splicing their internals.
type multiChain struct {
	chains []*dsp.FilterChain
}

func (m *multiChain) ApplyBatch(dst []float64) {
	for _, c := range m.chains {
		c.ApplyBatch(dst)
	}
}

// Tick drives one update for one channel, and does nothing if this group
// does not cover that channel. wave is this channel's raw samples for the
// tick; the group's filter chain (if any) is applied to a private copy
// before any handler sees it (spec.md §4.4 step 1), and every handler in
// topological order is then given that filtered wave (step 2).
// purge/BeginTick runs first (step 4 of the *previous* tick's cycle,
// applied here at the start of this one since there is no separate
// "commit" phase between ticks in this implementation). m may be nil
// (metrics disabled); every call against it is nil-safe.
func (g *ProcessingGroup) Tick(channel Channel, wave []float32, sampleRate float64, deadline time.Time, m *metrics.Collector) {
	cs, ok := g.channels[channel]
	if !ok {
		return
	}
	start := time.Now()
	defer func() {
		m.RecordTick(g.name, string(channel), time.Since(start))
	}()

	filtered := make([]float64, len(wave))
	for i, s := range wave {
		filtered[i] = float64(s)
	}
	if cs.filter != nil {
		cs.filter.ApplyBatch(filtered)
	}
	filteredWave := make([]float32, len(filtered))
	for i, v := range filtered {
		filteredWave[i] = float32(v)
	}

	ctx := handler.ProcessContext{
		Wave:         handler.Wave{Samples: filteredWave, SampleRate: sampleRate},
		OriginalWave: handler.Wave{Samples: wave, SampleRate: sampleRate},
		Deadline:     deadline,
	}

	for _, node := range cs.order {
		if !node.ok {
			continue
		}
		node.ring.BeginTick()
		if err := node.handler.Process(ctx, sourceOf(cs, node), node.ring.Push); err != nil {
			m.RecordDroppedChunk(g.name, string(channel), node.name)
			if g.logger != nil {
				g.logger.Warn("handler process error",
					"group", g.name, "channel", channel, "handler", node.name, "error", err)
			}
		}
		if ctx.Overrun() {
			m.RecordHandlerOverrun(g.name, string(channel), node.name)
		}
	}
}

func sourceOf(cs *channelState, node *handlerNode) handler.SourceProvider {
	if node.sourceName == "" {
		return nil
	}
	for _, n := range cs.order {
		if n.name == node.sourceName {
			return n.ring
		}
	}
	return nil
}

// Node looks up one channel's compiled handler by name, used by the
// engine facade's read_number/read_string/finish verbs.
func (g *ProcessingGroup) Node(channel Channel, name string) (*handlerNode, bool) {
	cs, ok := g.channels[channel]
	if !ok {
		return nil, false
	}
	for _, n := range cs.order {
		if n.name == name {
			return n, true
		}
	}
	return nil, false
}

// Channels reports every channel this group was configured for.
func (g *ProcessingGroup) Channels() []Channel {
	out := make([]Channel, 0, len(g.channels))
	for ch := range g.channels {
		out = append(out, ch)
	}
	return out
}
