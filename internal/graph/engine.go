package graph

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
	"github.com/rxtd-audio/soundgraph/internal/errs"
	"github.com/rxtd-audio/soundgraph/internal/logging"
	"github.com/rxtd-audio/soundgraph/internal/metrics"
)

// Status is the host-visible result of one Update call (spec.md §6).
type Status int

const (
	StatusOk Status = iota
	StatusFetchError
	StatusNoData
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusFetchError:
		return "FetchError"
	case StatusNoData:
		return "NoData"
	default:
		return "Unknown"
	}
}

// Engine is the facade a host drives: reload(config), update(wave),
// read_number/read_string/finish/command (spec.md §6). One Engine
// corresponds to one instance of the plugin in the original system.
type Engine struct {
	mu      sync.RWMutex
	cache   *HandlerCache
	groups  map[string]*ProcessingGroup
	order   []string
	version uint32

	sampleRate   float64
	hadFirstTick bool
	lastStatus   Status

	logger  *slog.Logger
	metrics *metrics.Collector
}

// SetMetrics attaches a Prometheus collector (internal/metrics) to this
// engine's Update/Reload path. Passing nil disables metrics again; every
// recording call is nil-safe so this is optional wiring, not a
// precondition (spec.md's external-collaborator Non-goals keep
// observability out of the DSP core's required surface).
func (e *Engine) SetMetrics(m *metrics.Collector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// NewEngine constructs an idle engine. Reload must be called at least
// once before Update produces anything but StatusNoData.
func NewEngine() *Engine {
	return &Engine{
		cache:      NewHandlerCache(),
		groups:     make(map[string]*ProcessingGroup),
		lastStatus: StatusNoData,
		logger:     logging.ForService("graph"),
	}
}

// Reload re-parses every group in tree, diffing handler descriptions
// against the cache so unchanged handlers keep their live state
// (spec.md §8's cache-idempotence property). A group that fails to
// parse (bad channel set, duplicate handler names) is dropped entirely
// and logged; other groups are unaffected.
func (e *Engine) Reload(tree ConfigTree, version uint32, sampleRate float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool, len(tree.GroupOrder))
	for _, name := range tree.GroupOrder {
		if seen[name] {
			return errs.Newf("duplicate processing group %q", name).
				Category(errs.CategoryInvalidOptions).Build()
		}
		seen[name] = true
	}

	e.sampleRate = sampleRate
	e.version = version

	newGroups := make(map[string]*ProcessingGroup, len(tree.GroupOrder))
	newOrder := make([]string, 0, len(tree.GroupOrder))
	liveGroups := make(map[string]map[string]bool, len(tree.GroupOrder))

	for _, name := range tree.GroupOrder {
		cfg, ok := tree.Groups[name]
		if !ok {
			continue
		}
		g, err := buildGroup(e.cache, e.logger, cfg, sampleRate)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("processing group invalidated", "group", name, "error", err)
			}
			e.cache.dropGroup(name)
			e.metrics.SetGroupActive(name, false)
			continue
		}
		newGroups[name] = g
		newOrder = append(newOrder, name)
		e.metrics.SetGroupActive(name, true)

		handlers := make(map[string]bool, len(cfg.HandlerOrder))
		for _, h := range cfg.HandlerOrder {
			handlers[h] = true
		}
		liveGroups[name] = handlers
	}

	e.cache.prune(liveGroups)
	e.groups = newGroups
	e.order = newOrder
	return nil
}

// Update de-interleaves frames by channelLayout and drives one tick of
// every configured group for every channel it covers that is present in
// this stream (or resolved from Auto to the first present channel).
func (e *Engine) Update(frames []float32, channelLayout []Channel, sampleRate uint32, deadline time.Time) Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(channelLayout) == 0 || len(frames) == 0 {
		e.lastStatus = StatusFetchError
		return e.lastStatus
	}

	numChannels := len(channelLayout)
	frameCount := len(frames) / numChannels
	present := make(map[Channel][]float32, numChannels)
	for idx, ch := range channelLayout {
		wave := make([]float32, frameCount)
		for f := 0; f < frameCount; f++ {
			wave[f] = frames[f*numChannels+idx]
		}
		present[ch] = wave
	}

	rate := float64(sampleRate)
	for _, name := range e.order {
		g := e.groups[name]
		for _, ch := range g.Channels() {
			wave, ok := present[ch]
			if !ok && ch == ChannelAuto && len(channelLayout) > 0 {
				wave = present[channelLayout[0]]
				ok = true
			}
			if !ok {
				continue
			}
			g.Tick(ch, wave, rate, deadline, e.metrics)
		}
	}

	e.hadFirstTick = true
	e.lastStatus = StatusOk
	return e.lastStatus
}

// ReadNumber fetches a single value from a handler's last chunk on
// layer 0 (spec.md §6). ok is false for any unknown (group, channel,
// handler) or out-of-range index, or before the first successful tick.
func (e *Engine) ReadNumber(group string, channel Channel, handlerName string, ix int) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hadFirstTick {
		return 0, false
	}
	g, ok := e.groups[group]
	if !ok {
		return 0, false
	}
	node, ok := g.Node(channel, handlerName)
	if !ok || !node.ok || node.ring == nil {
		return 0, false
	}
	last := node.ring.LastValue(0)
	if ix < 0 || ix >= len(last.Values) {
		return 0, false
	}
	return last.Values[ix], true
}

// ReadString calls the handler's GetProp for a host-visible string/value
// reading (spec.md §6).
func (e *Engine) ReadString(group string, channel Channel, handlerName, prop string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.groups[group]
	if !ok {
		return "", false
	}
	node, ok := g.Node(channel, handlerName)
	if !ok || !node.ok {
		return "", false
	}
	v, ok := node.handler.GetProp(prop)
	if !ok {
		return "", false
	}
	return formatProp(v), true
}

func formatProp(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// imageSnapshotter is implemented by every image-producing handler
// (Spectrogram, WaveForm). Finish type-asserts to this rather than
// exposing a generic "any" snapshot, so the cmd/ host gets a concrete
// *dsp.StripedImage to hand internal/imagesink.
type imageSnapshotter interface {
	Image() *dsp.StripedImage
}

// inflatedSnapshotter is the subset of image handlers that also expose a
// border+fade-finished buffer (spec.md §4.3.11/§4.3.12's "second buffer
// ... materialised when fading != 0 or border != 0"). Not every
// imageSnapshotter implements this.
type inflatedSnapshotter interface {
	Inflated() []dsp.IntColor
}

// Finish instructs an image handler to materialise its current snapshot;
// actual BMP encoding lives in internal/imagesink, kept out of the engine
// core per spec.md's external-sink Non-goal. ok is false for an unknown
// handler or one that doesn't produce an image.
func (e *Engine) Finish(group string, channel Channel, handlerName string) (*dsp.StripedImage, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.groups[group]
	if !ok {
		return nil, false
	}
	node, ok := g.Node(channel, handlerName)
	if !ok || !node.ok {
		return nil, false
	}
	snap, ok := node.handler.(imageSnapshotter)
	if !ok {
		return nil, false
	}
	return snap.Image(), true
}

// FinishPixels is Finish's counterpart for the border+fade-inflated
// buffer: when the handler implements inflatedSnapshotter, width/height
// reflect the inflated (wider, bordered) dimensions; otherwise it falls
// back to the plain snapshot's own pixels and size.
func (e *Engine) FinishPixels(group string, channel Channel, handlerName string) (pixels []dsp.IntColor, width, height int, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.groups[group]
	if !ok {
		return nil, 0, 0, false
	}
	node, ok := g.Node(channel, handlerName)
	if !ok || !node.ok {
		return nil, 0, 0, false
	}
	snap, ok := node.handler.(imageSnapshotter)
	if !ok {
		return nil, 0, 0, false
	}
	img := snap.Image()
	if inf, ok := node.handler.(inflatedSnapshotter); ok {
		pixels = inf.Inflated()
		width = len(pixels) / max(img.Height(), 1)
		return pixels, width, img.Height(), true
	}
	return img.Pixels(), img.Width(), img.Height(), true
}

// Command accepts an opaque bang (spec.md §6). The DSP core has no
// commands of its own: "stop" and "resume" are accepted and return nil
// without changing any engine state; every other bang returns an
// InvalidOptions error.
func (e *Engine) Command(bang string) error {
	switch bang {
	case "stop", "resume":
		return nil
	default:
		return errs.Newf("unrecognized command %q", bang).
			Category(errs.CategoryInvalidOptions).Build()
	}
}

// Version returns the configuration version last supplied to Reload.
func (e *Engine) Version() uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}
