package handler

// Factory constructs a fresh, unconfigured Handler instance of one kind.
type Factory func() Handler

var registry = map[string]Factory{
	"BlockRms":               func() Handler { return &BlockRms{} },
	"BlockPeak":              func() Handler { return &BlockPeak{} },
	"Loudness":               func() Handler { return &Loudness{} },
	"WaveForm":               func() Handler { return &WaveForm{} },
	"FftAnalyzer":            func() Handler { return &FftAnalyzer{} },
	"BandResampler":          func() Handler { return &BandResampler{} },
	"BandCascadeTransformer": func() Handler { return &BandCascadeTransformer{} },
	"UniformBlur":            func() Handler { return &UniformBlur{} },
	"WeightedBlur":           func() Handler { return &WeightedBlur{} },
	"TimeResampler":          func() Handler { return &TimeResampler{} },
	"SingleValueTransformer": func() Handler { return &SingleValueTransformer{} },
	"Spectrogram":            func() Handler { return &Spectrogram{} },
	"FiniteTimeFilter":       func() Handler { return &FiniteTimeFilter{} },
	"LogarithmicValueMapper": func() Handler { return &LogarithmicValueMapper{} },
}

// aliases maps the lower-case handler type spellings from spec.md §6's
// configuration schema onto this package's concrete Go type names.
var aliases = map[string]string{
	"rms":              "BlockRms",
	"peak":             "BlockPeak",
	"fft":              "FftAnalyzer",
	"spectrogram":      "Spectrogram",
	"waveform":         "WaveForm",
	"loudness":         "Loudness",
	"ValueTransformer": "SingleValueTransformer",
}

// New looks up a handler kind by its configured type name. ok is false
// for an unrecognized type, which construction reports as
// CategoryInvalidOptions.
func New(typeName string) (Handler, bool) {
	typeName = CanonicalTypeName(typeName)
	f, ok := registry[typeName]
	if !ok {
		return nil, false
	}
	return f(), true
}

// CanonicalTypeName resolves a possibly-aliased handler type spelling to
// the registry's canonical Go type name, used by construct.go's
// required-source-type check since a handler's configured type and its
// source's configured type may each be written either way.
func CanonicalTypeName(name string) string {
	if canon, ok := aliases[name]; ok {
		return canon
	}
	return name
}

// KnownTypes returns every registered handler type name, used by tests
// asserting full coverage.
func KnownTypes() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
