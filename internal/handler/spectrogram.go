package handler

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rxtd-audio/soundgraph/internal/dsp"
)

type mixMode int

const (
	mixSRGB mixMode = iota
	mixLinearRGB
	mixHSV
	mixHSL
	mixYCbCr
)

func parseMixMode(s string) mixMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linearrgb":
		return mixLinearRGB
	case "hsv":
		return mixHSV
	case "hsl":
		return mixHSL
	case "ycbcr":
		return mixYCbCr
	default:
		return mixSRGB
	}
}

// colorStop is one entry of a spec.md §4.3.11 "colors" descriptor: value
// maps to color, stops sorted ascending, the band value clamped to the
// stop list's endpoints outside its range.
type colorStop struct {
	value float64
	color dsp.RGBA
}

// parseColorStops parses "v0:r,g,b,a;v1:r,g,b,a;...", sorts ascending by
// value, and drops stops within 1024*epsilon of the previous one (spec.md
// §4.3.11's duplicate-rejection rule).
func parseColorStops(desc string) []colorStop {
	parts := strings.Split(desc, ";")
	stops := make([]colorStop, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		valStr, colorStr, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(valStr), 64)
		if err != nil {
			continue
		}
		fields := strings.Split(colorStr, ",")
		if len(fields) != 4 {
			continue
		}
		var nums [4]float64
		bad := false
		for i, f := range fields {
			n, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				bad = true
				break
			}
			nums[i] = n
		}
		if bad {
			continue
		}
		stops = append(stops, colorStop{value: v, color: dsp.RGBA{R: nums[0], G: nums[1], B: nums[2], A: nums[3]}})
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].value < stops[j].value })

	const minSeparation = 1024 * 2.220446049250313e-16
	dedup := stops[:0]
	for _, s := range stops {
		if len(dedup) > 0 && s.value-dedup[len(dedup)-1].value <= minSeparation {
			continue
		}
		dedup = append(dedup, s)
	}
	return dedup
}

func defaultColorStops() []colorStop {
	return []colorStop{
		{value: 0, color: dsp.RGBA{R: 0, G: 0, B: 0, A: 1}},
		{value: 1, color: dsp.RGBA{R: 1, G: 1, B: 1, A: 1}},
	}
}

// mixColors interpolates between two endpoints of the enclosing colour
// interval in the requested colour space (spec.md §4.3.11).
func mixColors(a, b dsp.RGBA, t float64, mode mixMode) dsp.RGBA {
	switch mode {
	case mixHSV:
		h1, s1, v1 := a.ToHSV()
		h2, s2, v2 := b.ToHSV()
		return dsp.HSVToRGB(lerp(h1, h2, t), lerp(s1, s2, t), lerp(v1, v2, t), lerp(a.A, b.A, t))
	case mixHSL:
		h1, s1, v1 := a.ToHSV()
		h1, sl1, l1 := dsp.HSVToHSL(h1, s1, v1)
		h2, s2, v2 := b.ToHSV()
		h2, sl2, l2 := dsp.HSVToHSL(h2, s2, v2)
		h, s, v := dsp.HSLToHSV(lerp(h1, h2, t), lerp(sl1, sl2, t), lerp(l1, l2, t))
		return dsp.HSVToRGB(h, s, v, lerp(a.A, b.A, t))
	case mixYCbCr:
		y1, cb1, cr1 := a.ToYCbCr()
		y2, cb2, cr2 := b.ToYCbCr()
		return dsp.YCbCrToRGB(lerp(y1, y2, t), lerp(cb1, cb2, t), lerp(cr1, cr2, t), lerp(a.A, b.A, t))
	default:
		// sRGB and linearRGB both interpolate component-wise here -- this
		// engine keeps no separate linear-light buffer, so linearRGB
		// degrades to the same lerp as sRGB (see DESIGN.md).
		return dsp.RGBA{
			R: lerp(a.R, b.R, t),
			G: lerp(a.G, b.G, t),
			B: lerp(a.B, b.B, t),
			A: lerp(a.A, b.A, t),
		}
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

// colorFor maps a band value through the sorted stop list, clamping to
// the endpoints outside the list's range.
func colorFor(stops []colorStop, v float64, mode mixMode) dsp.RGBA {
	if len(stops) == 0 {
		return dsp.RGBA{A: 1}
	}
	if v <= stops[0].value {
		return stops[0].color
	}
	last := len(stops) - 1
	if v >= stops[last].value {
		return stops[last].color
	}
	for i := 0; i < last; i++ {
		lo, hi := stops[i], stops[i+1]
		if v >= lo.value && v <= hi.value {
			t := (v - lo.value) / (hi.value - lo.value)
			return mixColors(lo.color, hi.color, t, mode)
		}
	}
	return stops[last].color
}

type spectrogramParams struct {
	length             int
	updateRateHz       float64
	borderSize         int
	borderColor        dsp.RGBA
	backgroundColor    dsp.RGBA
	colors             []colorStop
	mixMode            mixMode
	stationary         bool
	fading             float64
	silenceThresholdDB float64
}

// Spectrogram accumulates a band-providing source's value vectors into a
// dsp.StripedImage, one strip per block_size = sample_rate/update_rate
// samples of wave-equivalent time, mapping each band value through a
// sorted value:color stop list (spec.md §4.3.11). The resulting pixels
// are handed to internal/imagesink for BMP encoding -- this handler
// owns the striping/colour logic, not file I/O.
type Spectrogram struct {
	params    spectrogramParams
	image     dsp.StripedImage
	blockSize int

	waveCounter int
	dataCounter int
	lastValue   Chunk
	haveValue   bool
}

func (h *Spectrogram) Parse(opts ConfigNode) (ParseResult, error) {
	sourceName, ok := opts.Get("source")
	if !ok || sourceName == "" {
		return ParseResult{}, NewInvalidOptionsError("Spectrogram", "source is not found")
	}
	p := spectrogramParams{
		length:             200,
		updateRateHz:       33,
		borderColor:        dsp.RGBA{R: 0, G: 0, B: 0, A: 1},
		backgroundColor:    dsp.RGBA{R: 0, G: 0, B: 0, A: 1},
		colors:             defaultColorStops(),
		silenceThresholdDB: -70,
	}
	if v, ok := opts.Get("length"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			p.length = n
		}
	}
	if v, ok := opts.Get("update-rate"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 && f <= 20000 {
			p.updateRateHz = f
		}
	}
	if v, ok := opts.Get("border-size"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.borderSize = n
		}
	}
	p.borderColor = parseColorOpt(opts, "border-color", p.borderColor)
	p.backgroundColor = parseColorOpt(opts, "background-color", p.backgroundColor)
	if v, ok := opts.Get("colors"); ok {
		if stops := parseColorStops(v); len(stops) >= 2 {
			p.colors = stops
		}
	}
	if v, ok := opts.Get("mix-mode"); ok {
		p.mixMode = parseMixMode(v)
	}
	if v, ok := opts.Get("stationary"); ok {
		p.stationary = v == "true" || v == "1"
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
	return ParseResult{Params: p, Sources: []string{sourceName}}, nil
}

func (h *Spectrogram) Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error) {
	h.params = params.(spectrogramParams)
	if h.params.borderSize > h.params.length/2 {
		h.params.borderSize = h.params.length / 2
	}
	if source == nil {
		return DataSize{}, NewInvalidSourceError("Spectrogram", "values")
	}
	size := source.DataSize()
	bands := 1
	if size.LayersCount > 0 {
		bands = size.ValuesCount[0]
	}
	h.blockSize = int(sampleRate / h.params.updateRateHz)
	if h.blockSize < 1 {
		h.blockSize = 1
	}
	h.image.SetParams(h.params.length, bands, dsp.FromRGBA(h.params.backgroundColor), h.params.stationary)
	h.waveCounter, h.dataCounter, h.haveValue = 0, 0, false
	return NewUniformDataSize(1, 1, h.blockSize), nil
}

func (h *Spectrogram) Process(ctx ProcessContext, source SourceProvider, push PushFunc) error {
	waveSize := len(ctx.Wave.Samples)
	h.waveCounter += waveSize
	eqWaveSize := source.DataSize().EqWaveSizes[0]

	for _, chunk := range source.Chunks(0) {
		h.dataCounter += eqWaveSize
		h.lastValue = chunk
		h.haveValue = true

		for h.dataCounter >= h.blockSize && h.waveCounter >= h.blockSize {
			h.emit(push, chunk)
			h.dataCounter -= h.blockSize
			h.waveCounter -= h.blockSize
		}
	}

	for h.haveValue && h.waveCounter >= h.blockSize {
		h.emit(push, h.lastValue)
		h.waveCounter -= h.blockSize
		if h.dataCounter >= h.blockSize {
			h.dataCounter -= h.blockSize
		}
	}
	return nil
}

func (h *Spectrogram) emit(push PushFunc, chunk Chunk) {
	if len(chunk.Values) == 0 || magnitudeDB(chunk.Values) < h.params.silenceThresholdDB {
		h.image.PushEmptyStrip()
		push(0, []float64{0}, h.blockSize)
		return
	}
	column := make([]dsp.IntColor, len(chunk.Values))
	for i, v := range chunk.Values {
		c := colorFor(h.params.colors, v, h.params.mixMode)
		column[i] = dsp.FromRGBA(c)
	}
	h.image.PushStrip(column)
	push(0, []float64{1}, h.blockSize)
}

func magnitudeDB(values []float64) float64 {
	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(peak)
}

// Image exposes the accumulated image for internal/imagesink to encode.
func (h *Spectrogram) Image() *dsp.StripedImage {
	return &h.image
}

// Inflated returns the border+fade-finished pixel buffer, materialised
// only when fading != 0 or border != 0 (spec.md §4.3.11).
func (h *Spectrogram) Inflated() []dsp.IntColor {
	if h.params.borderSize == 0 && h.params.fading == 0 {
		return h.image.Pixels()
	}
	fadeWidth := int(h.params.fading * float64(h.params.length))
	fh := dsp.FadeHelper{
		Background: dsp.FromRGBA(h.params.backgroundColor),
		Border:     dsp.FromRGBA(h.params.borderColor),
		BorderSize: h.params.borderSize,
		FadeWidth:  fadeWidth,
	}
	return fh.Inflate(&h.image)
}

func (h *Spectrogram) GetProp(name string) (any, bool) {
	switch name {
	case "width":
		return h.image.Width(), true
	case "height":
		return h.image.Height(), true
	default:
		return nil, false
	}
}
