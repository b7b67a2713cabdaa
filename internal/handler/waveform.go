package handler

import (
	"math"
	"strconv"
	"strings"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

// lineDrawingPolicy controls when WaveForm draws its centre line
// (spec.md §4.3.12): never, only where the wave bar doesn't already
// cover that row, or unconditionally on top of the wave bar.
type lineDrawingPolicy int

const (
	lineNever lineDrawingPolicy = iota
	lineBelowWave
	lineAlways
)

func parseLineDrawingPolicy(s string) lineDrawingPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "always":
		return lineAlways
	case "never":
		return lineNever
	default:
		return lineBelowWave
	}
}

type waveFormParams struct {
	width, height int

	resolutionMs float64

	background, wave, line, border dsp.RGBA

	lineDrawingPolicy  lineDrawingPolicy
	lineThickness      int
	stationary         bool
	connected          bool
	borderSize         int
	fading             float64
	silenceThresholdDB float64
	chain              string
}

func parseColorOpt(opts ConfigNode, key string, fallback dsp.RGBA) dsp.RGBA {
	v, ok := opts.Get(key)
	if !ok {
		return fallback
	}
	fields := strings.Split(v, ",")
	if len(fields) != 4 {
		return fallback
	}
	var nums [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return fallback
		}
		nums[i] = n
	}
	return dsp.RGBA{R: nums[0], G: nums[1], B: nums[2], A: nums[3]}
}

// WaveForm accumulates one (min, max) pixel pair per fixed-size block of
// raw samples into a dsp.StripedImage (spec.md §4.3.12): values[0] is
// the min, values[1] the max, so a downstream consumer that only wants
// the numeric pair still sees the same two-value layout the original
// minimal implementation exposed, while Image() hands the rendered
// bitmap to internal/imagesink the same way Spectrogram does.
type WaveForm struct {
	params    waveFormParams
	blockSize int
	remaining int

	minMax      dsp.MinMaxCounter
	origPeak    dsp.RunningPeak
	chain       *dsp.Chain
	image       dsp.StripedImage
	hasPrev     bool
	prevMinPx   int
	prevMaxPx   int
}

func (h *WaveForm) Parse(opts ConfigNode) (ParseResult, error) {
	p := waveFormParams{
		width: 400, height: 100,
		resolutionMs:       10,
		background:         dsp.RGBA{R: 0, G: 0, B: 0, A: 1},
		wave:               dsp.RGBA{R: 1, G: 1, B: 1, A: 1},
		line:               dsp.RGBA{R: 0.5, G: 0.5, B: 0.5, A: 1},
		border:             dsp.RGBA{R: 0, G: 0, B: 0, A: 1},
		lineDrawingPolicy:  lineBelowWave,
		lineThickness:      1,
		silenceThresholdDB: -70,
	}
	if v, ok := opts.Get("width"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			p.width = n
		}
	}
	if v, ok := opts.Get("height"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			p.height = n
		}
	}
	if v, ok := opts.Get("update-rate"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			p.resolutionMs = 1000.0 / f
		}
	} else if v, ok := opts.Get("resolution"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			p.resolutionMs = f
		}
	}
	p.background = parseColorOpt(opts, "background", p.background)
	p.wave = parseColorOpt(opts, "wave-color", p.wave)
	p.line = parseColorOpt(opts, "line-color", p.line)
	p.border = parseColorOpt(opts, "border-color", p.border)
	if v, ok := opts.Get("line-drawing-policy"); ok {
		p.lineDrawingPolicy = parseLineDrawingPolicy(v)
	}
	if v, ok := opts.Get("line-thickness"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.lineThickness = n
		}
	}
	if v, ok := opts.Get("stationary"); ok {
		p.stationary = v == "true" || v == "1"
	}
	if v, ok := opts.Get("connected"); ok {
		p.connected = v == "true" || v == "1"
	}
	if v, ok := opts.Get("border-size"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.borderSize = n
		}
	}
	if v, ok := opts.Get("fading"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			p.fading = f
		}
	}
	if v, ok := opts.Get("silence-threshold"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.silenceThresholdDB = f
		}
	}
	p.chain, _ = opts.Get("transform")
	return ParseResult{Params: p}, nil
}

func (h *WaveForm) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(waveFormParams)
	if h.params.borderSize > h.params.width/2 {
		h.params.borderSize = h.params.width / 2
	}
	h.blockSize = int(h.params.resolutionMs * 0.001 * sampleRate)
	if h.blockSize < 1 {
		h.blockSize = 1
	}
	h.remaining = h.blockSize
	h.resetBlock()
	h.chain = dsp.ParseChain(h.params.chain)
	h.image.SetParams(h.params.width, h.params.height, dsp.FromRGBA(h.params.background), h.params.stationary)
	h.hasPrev = false
	return NewUniformDataSize(1, 2, h.blockSize), nil
}

func (h *WaveForm) resetBlock() {
	h.minMax.Reset()
	h.origPeak.Reset()
}

func (h *WaveForm) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	samples := ctx.Wave.Samples
	original := ctx.OriginalWave.Samples
	for len(samples) > 0 {
		if ctx.Overrun() {
			h.emit(push)
			return nil
		}
		n := h.remaining
		if n > len(samples) {
			n = len(samples)
		}
		h.minMax.PushAll(samples[:n])
		if n <= len(original) {
			h.origPeak.PushAll(original[:n])
			original = original[n:]
		}
		samples = samples[n:]
		h.remaining -= n
		if h.remaining <= 0 {
			h.emit(push)
			h.resetBlock()
			h.remaining = h.blockSize
		}
	}
	return nil
}

// emit pushes the (min, max) value pair and renders one image strip.
// Per spec.md §9's open question, silenceThreshold is evaluated against
// the *original*, pre-filter wave even though the rendered min/max come
// from the (possibly filtered) wave -- treated as intentional.
func (h *WaveForm) emit(push PushFunc) {
	minV, maxV := h.minMax.Min(), h.minMax.Max()
	push(0, []float64{minV, maxV}, h.blockSize)

	if silenceDB(h.origPeak.Value()) < h.params.silenceThresholdDB {
		h.image.PushEmptyStrip()
		h.hasPrev = false
		return
	}

	tMin := signedTransform(h.chain, minV)
	tMax := signedTransform(h.chain, maxV)
	minPx := h.amplitudeToPixel(tMin)
	maxPx := h.amplitudeToPixel(tMax)
	if minPx > maxPx {
		minPx, maxPx = maxPx, minPx
	}
	if h.params.connected && h.hasPrev {
		if h.prevMinPx < minPx {
			minPx = h.prevMinPx
		}
		if h.prevMaxPx > maxPx {
			maxPx = h.prevMaxPx
		}
	}
	h.image.PushStrip(h.renderColumn(minPx, maxPx))
	h.prevMinPx, h.prevMaxPx = minPx, maxPx
	h.hasPrev = true
}

func silenceDB(peak float64) float64 {
	if peak <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(peak)
}

// signedTransform applies the transform chain to the magnitude of v,
// restoring v's sign afterward (spec.md §4.3.12: "transform chain
// applied to min and max magnitudes, preserving sign").
func signedTransform(chain *dsp.Chain, v float64) float64 {
	mag := math.Abs(v)
	t := chain.Apply(mag)
	if math.IsInf(t, -1) {
		t = 0
	}
	return math.Copysign(t, v)
}

// amplitudeToPixel maps a transformed amplitude in [-1, 1] to a row
// index, row 0 at the top, centred at height/2.
func (h *WaveForm) amplitudeToPixel(v float64) int {
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	center := float64(h.params.height-1) / 2
	px := center - v*center
	row := int(math.Round(px))
	if row < 0 {
		row = 0
	}
	if row >= h.params.height {
		row = h.params.height - 1
	}
	return row
}

func (h *WaveForm) renderColumn(minPx, maxPx int) []dsp.IntColor {
	n := h.params.height
	column := make([]dsp.IntColor, n)
	bg := dsp.FromRGBA(h.params.background)
	wv := dsp.FromRGBA(h.params.wave)
	ln := dsp.FromRGBA(h.params.line)
	center := n / 2

	for row := 0; row < n; row++ {
		column[row] = bg
	}
	for row := minPx; row <= maxPx && row < n; row++ {
		if row < 0 {
			continue
		}
		column[row] = wv
	}

	switch h.params.lineDrawingPolicy {
	case lineAlways:
		drawLineRows(column, center, h.params.lineThickness, ln)
	case lineBelowWave:
		if center < minPx || center > maxPx {
			drawLineRows(column, center, h.params.lineThickness, ln)
		}
	case lineNever:
	}
	return column
}

func drawLineRows(column []dsp.IntColor, center, thickness int, color dsp.IntColor) {
	half := thickness / 2
	for row := center - half; row <= center+half; row++ {
		if row >= 0 && row < len(column) {
			column[row] = color
		}
	}
}

// Image exposes the accumulated waveform bitmap for internal/imagesink
// to encode, without border or fade; Inflated applies those through
// dsp.FadeHelper.Inflate per spec.md §4.3.12.
func (h *WaveForm) Image() *dsp.StripedImage {
	return &h.image
}

// Inflated returns the border+fade-finished pixel buffer, the second
// buffer spec.md §4.3.12 describes as materialised only "when fading !=
// 0 or border != 0".
func (h *WaveForm) Inflated() []dsp.IntColor {
	if h.params.borderSize == 0 && h.params.fading == 0 {
		return h.image.Pixels()
	}
	fadeWidth := int(h.params.fading * float64(h.params.width))
	fh := dsp.FadeHelper{
		Background: dsp.FromRGBA(h.params.background),
		Border:     dsp.FromRGBA(h.params.border),
		BorderSize: h.params.borderSize,
		FadeWidth:  fadeWidth,
	}
	return fh.Inflate(&h.image)
}

func (h *WaveForm) GetProp(name string) (any, bool) {
	switch name {
	case "min":
		return h.minMax.Min(), true
	case "max":
		return h.minMax.Max(), true
	default:
		return nil, false
	}
}
