// Package alerting evaluates alert rules against devices and records how
// each (device, rule) alert moves between states.
package alerting

import "time"

// Status is the operator-facing outcome of evaluating one rule.
type Status string

const (
	// StatusAlert is reported when a new alert is opened.
	StatusAlert Status = "ALERT"
	// StatusNoChange is reported when nothing was persisted, or a faulting
	// alert was re-logged without any row change.
	StatusNoChange Status = "NOCHG"
	// StatusOK is reported when a faulting alert recovers.
	StatusOK      Status = "OK"
	StatusWorse   Status = "WORSE"
	StatusBetter  Status = "BETTER"
	StatusChanged Status = "CHANGED"
	// StatusStale is reported when a live alert was deleted because its
	// rule no longer applies or it has no history.
	StatusStale Status = "STALE"
	// StatusError is reported when a rule could not be evaluated or its
	// outcome could not be stored.
	StatusError Status = "ERROR"
)

// Eventlog type used for every entry written by alerting.
const eventlogTypeAlert = "alert"

// componentName tags errors built in this package.
const componentName = "alerting"

const (
	// eventlogTimeout is the context deadline for one eventlog insert.
	eventlogTimeout = 3 * time.Second
	// cleanupTimeout is the context deadline for the periodic log deletion.
	cleanupTimeout = 30 * time.Second
	// cleanupInterval is how often the log cleanup goroutine runs.
	cleanupInterval = 1 * time.Hour
	// maxMacroPasses bounds macro substitution.
	maxMacroPasses = 30
)
