// Package errors provides categorized errors carrying a component name and
// structured context.
//
// Errors are built fluently:
//
//	return errors.Newf("rule %d has no query", id).
//		Component("alerting").
//		Category(errors.CategoryConfiguration).
//		Context("rule_id", id).
//		Build()
//
// The standard library helpers are re-exported so callers import a single
// errors package.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
)

// Category groups errors by their nature. Reporters use it to decide what to
// forward to telemetry.
type Category string

const (
	CategoryGeneric       Category = "generic"
	CategoryValidation    Category = "validation"
	CategoryConfiguration Category = "configuration"
	CategoryDatabase      Category = "database"
	CategoryQuery         Category = "query"
	CategoryNotFound      Category = "not-found"
	CategoryState         Category = "state"
	CategoryNetwork       Category = "network"
)

// EnhancedError wraps an underlying error with a component, a category and
// key/value context.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

func (e *EnhancedError) Error() string {
	return e.Err.Error()
}

func (e *EnhancedError) Unwrap() error {
	return e.Err
}

// GetComponent returns the component that produced the error.
func (e *EnhancedError) GetComponent() string {
	return e.component
}

// GetCategory returns the error category.
func (e *EnhancedError) GetCategory() Category {
	return e.category
}

// GetContext returns a copy of the error context.
func (e *EnhancedError) GetContext() map[string]any {
	return maps.Clone(e.context)
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// New starts a builder around an existing error.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err, category: CategoryGeneric}
}

// Newf starts a builder around a formatted error. %w verbs are honoured.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (b *ErrorBuilder) Component(component string) *ErrorBuilder {
	b.component = component
	return b
}

func (b *ErrorBuilder) Category(category Category) *ErrorBuilder {
	b.category = category
	return b
}

func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalizes the error and hands it to the registered reporter.
// A builder around a nil error builds nil.
func (b *ErrorBuilder) Build() error {
	if b.err == nil {
		return nil
	}
	ee := &EnhancedError{
		Err:       b.err,
		component: b.component,
		category:  b.category,
		context:   b.context,
	}
	report(ee)
	return ee
}

// Reporter receives every built error.
type Reporter func(*EnhancedError)

var (
	reporterMu sync.RWMutex
	reporter   Reporter
)

// SetReporter installs the process-wide reporter. Passing nil removes it.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	reporter = r
	reporterMu.Unlock()
}

func report(ee *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil {
		r(ee)
	}
}

// CategoryOf returns the category of the first EnhancedError in err's chain,
// or CategoryGeneric.
func CategoryOf(err error) Category {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.category
	}
	return CategoryGeneric
}

// NewStd creates a plain error, for package level sentinels.
func NewStd(text string) error {
	return stderrors.New(text)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
