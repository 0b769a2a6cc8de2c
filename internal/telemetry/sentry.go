// Package telemetry forwards operational errors to Sentry.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/faultwatch/faultwatch/internal/conf"
	"github.com/faultwatch/faultwatch/internal/errors"
)

// reportedCategories are forwarded; configuration and validation errors are
// operator mistakes and stay in the logs.
var reportedCategories = map[errors.Category]bool{
	errors.CategoryDatabase: true,
	errors.CategoryQuery:    true,
	errors.CategoryState:    true,
}

var enabled atomic.Bool

// Init configures the Sentry client and installs the errors reporter. It
// does nothing when no DSN is configured.
func Init(s conf.TelemetrySettings, release string) error {
	if s.SentryDSN == "" {
		return nil
	}
	return initWith(sentry.ClientOptions{
		Dsn:              s.SentryDSN,
		Environment:      s.Environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

func initWith(opts sentry.ClientOptions) error {
	if err := sentry.Init(opts); err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}
	enabled.Store(true)
	errors.SetReporter(capture)
	return nil
}

// Enabled reports whether Init configured a client.
func Enabled() bool {
	return enabled.Load()
}

func capture(ee *errors.EnhancedError) {
	if !reportedCategories[ee.GetCategory()] {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.GetCategory()))
		if ctx := ee.GetContext(); len(ctx) > 0 {
			scope.SetContext("error", sentry.Context(ctx))
		}
		sentry.CaptureException(ee)
	})
}

// Flush waits up to timeout for buffered events and removes the reporter.
func Flush(timeout time.Duration) bool {
	if !enabled.Swap(false) {
		return true
	}
	errors.SetReporter(nil)
	return sentry.Flush(timeout)
}
