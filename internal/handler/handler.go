package handler

import (
	"github.com/rxtd-audio/soundgraph/internal/errs"
)

// Handler is the contract every DSP node in a processing group
// satisfies, mirroring the original SoundHandler lifecycle documented in
// sound-handlers/SoundHandler.h: parseParams -> (patchMe/link sources)
// -> Configure -> repeated Process -> Snapshot reads before the next
// Configure.
type Handler interface {
	// Parse decodes this handler's own option subtree. It must not
	// touch any other handler's configuration. Returning an error here
	// is reported to the host as CategoryInvalidOptions.
	Parse(opts ConfigNode) (ParseResult, error)

	// Configure is called once the upstream source (if any) has been
	// resolved and its DataSize is known. source is nil for a handler
	// that reads the raw Wave directly rather than another handler's
	// output (BlockRms, BlockPeak, Loudness, WaveForm, FftAnalyzer).
	// It returns this handler's own DataSize so downstream handlers can
	// configure themselves in turn. A configuration failure is reported
	// as CategoryConfigureFailed.
	Configure(params any, source SourceProvider, sampleRate float64) (DataSize, error)

	// Process consumes one tick's input (either the raw Wave, for a
	// root handler with no source, or the upstream's emitted chunks
	// via source) and pushes zero or more output chunks via push.
	Process(ctx ProcessContext, source SourceProvider, push PushFunc) error

	// GetProp exposes a named scalar or string reading for the host's
	// read_number/read_string verbs (spec.md §7). ok is false for
	// unknown names.
	GetProp(name string) (value any, ok bool)
}

// Linker is the interface for handlers that need a second pass after
// every handler in the group has configured, to resolve a sibling by name
// that isn't their direct SourceProvider. No handler in this package
// implements it; BandCascadeTransformer reaches its BandResampler's
// weights through its source in Configure.
type Linker interface {
	FinishLinking(lookup func(name string) (Handler, bool)) error
}

// Finisher is the interface for handlers that must run an end-of-tick
// pass once all Process calls in dependency order have completed. No
// handler in this package implements it.
type Finisher interface {
	Finish()
}

// RequiredSource is implemented by a handler kind whose upstream source
// must resolve to one particular concrete handler kind rather than any
// SourceProvider -- BandCascadeTransformer requires a BandResampler,
// BandResampler requires an FftAnalyzer. RequiredSourceType names the
// registry's canonical type (see registry.go's CanonicalTypeName); a
// handler that accepts any upstream kind simply doesn't implement this.
type RequiredSource interface {
	RequiredSourceType() string
}

// NewInvalidOptionsError builds a standard "bad option" error for Parse
// implementations.
func NewInvalidOptionsError(component, message string) error {
	return errs.Newf("%s", message).Component(component).Category(errs.CategoryInvalidOptions).Build()
}

// NewInvalidSourceError builds a standard "missing/invalid upstream
// source" error.
func NewInvalidSourceError(component, sourceName string) error {
	return errs.Newf("source %q not found", sourceName).
		Component(component).
		Category(errs.CategoryInvalidSource).
		Context("source", sourceName).
		Build()
}

// NewConfigureFailedError wraps a configuration-time failure.
func NewConfigureFailedError(component string, cause error) error {
	return errs.New(cause).Component(component).Category(errs.CategoryConfigureFailed).Build()
}

// NewInvalidSourceTypeError builds the CategoryInvalidSource error for a
// source that resolved to a handler of the wrong concrete kind (spec.md
// §4.1: "If the source is not a required type, binding fails with
// InvalidSource").
func NewInvalidSourceTypeError(component, sourceName, want, got string) error {
	return errs.Newf("source %q is a %s, not the required %s", sourceName, got, want).
		Component(component).
		Category(errs.CategoryInvalidSource).
		Context("source", sourceName).
		Context("want", want).
		Context("got", got).
		Build()
}
