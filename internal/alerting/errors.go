package alerting

import (
	"github.com/faultwatch/faultwatch/internal/errors"
)

var (
	// ErrRuleCompile is returned when a rule has neither usable SQL nor a
	// valid builder document.
	ErrRuleCompile = errors.NewStd("alert rule cannot be compiled")
	// ErrMacroExpansion is wrapped by every macro failure.
	ErrMacroExpansion = errors.NewStd("macro expansion failed")
	ErrMacroCycle     = errors.NewStd("macro references itself")
	ErrUnknownMacro   = errors.NewStd("unknown macro")
	ErrMacroDepth     = errors.NewStd("macro nesting too deep")
	// ErrQueryFailed means the rule query errored. It is distinct from a
	// query that matched nothing.
	ErrQueryFailed = errors.NewStd("alert rule query failed")
	// ErrPersist wraps failures to store an alert transition.
	ErrPersist = errors.NewStd("failed to persist alert transition")
)
