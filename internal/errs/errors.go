// Package errs provides a structured error type used across the engine so
// that handler and graph failures always carry a component, a category and
// enough context to act on without parsing message strings.
package errs

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies the failure kinds this engine can report back
// to a host (spec.md §7).
type ErrorCategory string

const (
	CategoryInvalidOptions   ErrorCategory = "invalid_options"
	CategoryInvalidSource    ErrorCategory = "invalid_source"
	CategoryConfigureFailed  ErrorCategory = "configure_failed"
	CategoryFetchError       ErrorCategory = "fetch_error"
	CategoryGraph            ErrorCategory = "graph"
	CategoryDSP              ErrorCategory = "dsp"
	CategoryImage            ErrorCategory = "image"
	CategoryGeneric          ErrorCategory = "generic"
)

// EnhancedError wraps an underlying error with component/category/context
// metadata. It satisfies the standard error interface and unwraps to the
// original cause.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
}

func (e *EnhancedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s/%s]", e.Component, e.Category)
	}
	if e.Component == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("[%s/%s] %s", e.Component, e.Category, e.Err.Error())
}

func (e *EnhancedError) Unwrap() error {
	return e.Err
}

// ErrorBuilder accumulates metadata before producing an *EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder wrapping an existing error (may be nil).
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder with a freshly formatted error message.
func Newf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: fmt.Errorf(format, args...)}
}

func (b *ErrorBuilder) Component(name string) *ErrorBuilder {
	b.component = name
	return b
}

func (b *ErrorBuilder) Category(c ErrorCategory) *ErrorBuilder {
	b.category = c
	return b
}

// Context attaches a single key/value pair; call repeatedly to add more.
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any, 4)
	}
	b.context[key] = value
	return b
}

func (b *ErrorBuilder) Build() *EnhancedError {
	if b.category == "" {
		b.category = CategoryGeneric
	}
	return &EnhancedError{
		Err:       b.err,
		Component: b.component,
		Category:  b.category,
		Context:   b.context,
	}
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// Join returns an error that wraps the given errors.
func Join(errList ...error) error { return errors.Join(errList...) }

// Unwrap returns the result of calling Unwrap on err, if any.
func Unwrap(err error) error { return errors.Unwrap(err) }

// IsCategory reports whether err is (or wraps) an *EnhancedError with the
// given category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}
