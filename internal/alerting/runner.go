package alerting

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/errors"
	"github.com/faultwatch/faultwatch/internal/faults"
	"github.com/faultwatch/faultwatch/internal/logger"
	"github.com/faultwatch/faultwatch/internal/observability/metrics"
)

// Reasons a device run stops before evaluating rules.
const (
	SkipMaintenance   = "maintenance"
	SkipDisableNotify = "disable_notify"
)

// RuleExecutor returns the fault rows of a rule for one device.
type RuleExecutor interface {
	Execute(ctx context.Context, rule *entities.AlertRule, deviceID uint) (faults.Set, error)
}

// RuleResult is the outcome of one rule within a device run.
type RuleResult struct {
	RuleID   uint                `json:"rule_id"`
	RuleName string              `json:"rule_name"`
	Status   Status              `json:"status"`
	State    entities.AlertState `json:"state"`
	Error    string              `json:"error,omitempty"`
}

// RunSummary reports what a device run did.
type RunSummary struct {
	RunID    string         `json:"run_id"`
	DeviceID uint           `json:"device_id"`
	Skipped  string         `json:"skipped,omitempty"`
	Statuses map[Status]int `json:"statuses"`
	Results  []RuleResult   `json:"results"`
	Errors   []error        `json:"-"`
	Duration time.Duration  `json:"duration"`
}

// Err joins the per-rule errors of the run.
func (s *RunSummary) Err() error {
	return errors.Join(s.Errors...)
}

// Dependencies are the collaborators of a Runner.
type Dependencies struct {
	Rules    RuleSelector
	Alerts   repository.AlertRepository
	Devices  repository.DeviceRepository
	Executor RuleExecutor
	Machine  *StateMachine
	Cache    *RuleCache
	// Metrics may be nil.
	Metrics *metrics.AlertingMetrics
}

// Runner evaluates every applicable rule for devices and drives their
// alerts through the state machine.
type Runner struct {
	rules       RuleSelector
	alerts      repository.AlertRepository
	devices     repository.DeviceRepository
	executor    RuleExecutor
	machine     *StateMachine
	cache       *RuleCache
	metrics     *metrics.AlertingMetrics
	log         logger.Logger
	concurrency int
	now         func() time.Time

	// deviceLocks holds a one-slot semaphore per device id so runs of the
	// same device never overlap.
	deviceLocks sync.Map

	// Log cleanup
	mu           sync.Mutex
	cleanupStop  chan struct{}
	cleanupWG    sync.WaitGroup
	cleanupEvery time.Duration
}

// NewRunner creates a Runner evaluating at most concurrency devices at once.
func NewRunner(deps Dependencies, concurrency int, log logger.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		rules:        deps.Rules,
		alerts:       deps.Alerts,
		devices:      deps.Devices,
		executor:     deps.Executor,
		machine:      deps.Machine,
		cache:        deps.Cache,
		metrics:      deps.Metrics,
		log:          log,
		concurrency:  concurrency,
		now:          func() time.Time { return time.Now().UTC() },
		cleanupEvery: cleanupInterval,
	}
}

// Cache returns the rule validity cache owned by the runner.
func (r *Runner) Cache() *RuleCache {
	return r.cache
}

// RunRules evaluates every rule applying to deviceID. Rule level failures
// are collected in the summary; the returned error is set only when the
// run could not proceed at all. Runs of the same device are serialized, and
// the summary is nil when ctx ends while waiting for another run.
func (r *Runner) RunRules(ctx context.Context, deviceID uint) (*RunSummary, error) {
	unlock, err := r.lockDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	sum := &RunSummary{
		RunID:    uuid.NewString(),
		DeviceID: deviceID,
		Statuses: make(map[Status]int),
	}
	log := r.log.With(logger.String("run_id", sum.RunID), logger.Uint64("device_id", uint64(deviceID)))
	defer func() {
		sum.Duration = time.Since(start)
		r.metrics.ObserveRun(sum.Duration)
	}()

	maintenance, err := r.devices.MaintenanceStatus(ctx, deviceID, r.now())
	if err != nil {
		return sum, runError(deviceID, err)
	}
	if maintenance == entities.MaintenanceSkipAlerts {
		log.Info("device under maintenance, skipping alert rules")
		sum.Skipped = SkipMaintenance
		r.metrics.RecordSkippedRun(SkipMaintenance)
		return sum, nil
	}

	disabled, err := r.devices.HasDisableNotify(ctx, deviceID)
	if err != nil {
		return sum, runError(deviceID, err)
	}
	if disabled {
		cleared, err := r.alerts.ClearDeviceAlerts(ctx, deviceID)
		if err != nil {
			return sum, runError(deviceID, err)
		}
		log.Info("alerting disabled for device, cleared alerts", logger.Int64("cleared", cleared))
		sum.Skipped = SkipDisableNotify
		r.metrics.RecordSkippedRun(SkipDisableNotify)
		return sum, nil
	}

	rules, err := r.rules.GetRulesForDevice(ctx, deviceID)
	if err != nil {
		return sum, runError(deviceID, err)
	}
	r.cache.Prime(deviceID, rules)

	for i := range rules {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		r.evaluate(ctx, log, &rules[i], deviceID, sum)
	}
	r.sweepStale(ctx, log, deviceID, sum)

	log.Info("alert rules evaluated",
		logger.Int("rules", len(rules)),
		logger.Int("errors", len(sum.Errors)),
		logger.Duration("duration", time.Since(start)))
	return sum, nil
}

func (r *Runner) evaluate(ctx context.Context, log logger.Logger, rule *entities.AlertRule, deviceID uint, sum *RunSummary) {
	rows, err := r.executor.Execute(ctx, rule, deviceID)
	if err != nil {
		r.metrics.RecordQueryError()
		r.record(sum, rule, StatusError, entities.StateClear, err)
		return
	}

	alert, err := r.alerts.GetAlert(ctx, deviceID, rule.ID)
	switch {
	case errors.Is(err, repository.ErrAlertNotFound):
		alert = nil
	case err != nil:
		r.record(sum, rule, StatusError, entities.StateClear, err)
		return
	}

	var out Outcome
	if alert == nil {
		if !Qualifies(rule, rows) {
			r.record(sum, rule, StatusNoChange, entities.StateClear, nil)
			return
		}
		out, err = r.machine.Open(ctx, rule, deviceID, rows)
	} else {
		entry, logErr := r.alerts.LatestLog(ctx, deviceID, rule.ID)
		if errors.Is(logErr, repository.ErrAlertLogNotFound) {
			r.deleteStale(ctx, log, alert, rule.Name, sum)
			return
		}
		if logErr != nil {
			r.record(sum, rule, StatusError, alert.State, logErr)
			return
		}
		details, decodeErr := entities.DecodeDetails(entry.Details)
		if decodeErr != nil {
			log.Warn("unreadable alert details, diffing against no rows",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.Error(decodeErr))
			details = &entities.AlertDetails{}
		}
		out, err = r.machine.Transition(ctx, PriorAlert{Alert: alert, Rule: rule, Details: details}, rows)
	}
	if err != nil {
		r.metrics.RecordPersistFailure()
		log.Error("failed to store alert transition",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
		r.record(sum, rule, StatusError, out.Previous, err)
		return
	}

	if out.Persisted {
		r.metrics.RecordTransition(out.State.String())
	}
	r.record(sum, rule, out.Status, out.State, nil)
	log.Info("alert rule evaluated",
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.String("rule_name", rule.Name),
		logger.String("status", string(out.Status)),
		logger.String("state", out.State.String()),
		logger.String("previous", out.Previous.String()),
		logger.Int("rows", len(rows)),
		logger.Int("added", len(out.Added)),
		logger.Int("resolved", len(out.Resolved)))
}

// sweepStale deletes live alerts of the device whose rule is no longer
// enabled and applicable.
func (r *Runner) sweepStale(ctx context.Context, log logger.Logger, deviceID uint, sum *RunSummary) {
	alerts, err := r.alerts.ListDeviceAlerts(ctx, deviceID)
	if err != nil {
		sum.Errors = append(sum.Errors, err)
		log.Error("failed to list device alerts", logger.Error(err))
		return
	}
	for i := range alerts {
		valid, err := r.cache.IsRuleValid(ctx, deviceID, alerts[i].RuleID)
		if err != nil {
			sum.Errors = append(sum.Errors, err)
			log.Error("failed to check alert rule validity",
				logger.Uint64("rule_id", uint64(alerts[i].RuleID)),
				logger.Error(err))
			return
		}
		if !valid {
			r.deleteStale(ctx, log, &alerts[i], "", sum)
		}
	}
}

func (r *Runner) deleteStale(ctx context.Context, log logger.Logger, alert *entities.Alert, ruleName string, sum *RunSummary) {
	rule := &entities.AlertRule{ID: alert.RuleID, Name: ruleName}
	if err := r.alerts.DeleteAlert(ctx, alert.DeviceID, alert.RuleID); err != nil {
		r.record(sum, rule, StatusError, alert.State, err)
		return
	}
	r.metrics.RecordStale()
	r.record(sum, rule, StatusStale, alert.State, nil)
	log.Info("deleted stale alert", logger.Uint64("rule_id", uint64(alert.RuleID)))
}

func (r *Runner) record(sum *RunSummary, rule *entities.AlertRule, status Status, state entities.AlertState, err error) {
	res := RuleResult{RuleID: rule.ID, RuleName: rule.Name, Status: status, State: state}
	if err != nil {
		res.Error = err.Error()
		sum.Errors = append(sum.Errors, err)
	}
	sum.Statuses[status]++
	sum.Results = append(sum.Results, res)
	r.metrics.RecordEvaluation(string(status))
}

// lockDevice waits until no other run holds deviceID. It fails only when
// ctx ends first.
func (r *Runner) lockDevice(ctx context.Context, deviceID uint) (func(), error) {
	v, _ := r.deviceLocks.LoadOrStore(deviceID, make(chan struct{}, 1))
	sem := v.(chan struct{})
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunDevices evaluates each distinct device once, running up to the
// configured number of devices concurrently. Summaries keep input order.
func (r *Runner) RunDevices(ctx context.Context, deviceIDs []uint) ([]*RunSummary, error) {
	var ids []uint
	for _, id := range deviceIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	summaries := make([]*RunSummary, len(ids))
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			sum, err := r.RunRules(ctx, id)
			summaries[i] = sum
			if err != nil {
				errs[i] = fmt.Errorf("device %d: %w", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	summaries = slices.DeleteFunc(summaries, func(s *RunSummary) bool { return s == nil })
	return summaries, errors.Join(errs...)
}

// RunAll evaluates every enabled device.
func (r *Runner) RunAll(ctx context.Context) ([]*RunSummary, error) {
	ids, err := r.devices.ListDeviceIDs(ctx)
	if err != nil {
		return nil, err
	}
	return r.RunDevices(ctx, ids)
}

// CleanupLogs deletes alert log entries older than retentionDays, keeping
// the newest entry of every (device, rule) pair.
func (r *Runner) CleanupLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -retentionDays)
	deleted, err := r.alerts.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.metrics.RecordPurged(deleted)
	return deleted, nil
}

// StartLogCleanup starts a background goroutine that periodically purges
// old alert log entries and expired rule cache entries. A value of 0
// disables cleanup.
func (r *Runner) StartLogCleanup(retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	r.stopCleanup()
	r.mu.Lock()
	r.cleanupStop = make(chan struct{})
	stopCh := r.cleanupStop
	every := r.cleanupEvery
	r.mu.Unlock()

	r.cleanupWG.Add(1)
	go func() {
		defer r.cleanupWG.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cleanupTimeout)
				deleted, err := r.CleanupLogs(cleanupCtx, retentionDays)
				cleanupCancel()
				if err != nil {
					r.log.Error("alert log cleanup failed", logger.Error(err))
				} else if deleted > 0 {
					r.log.Info("alert log cleanup completed",
						logger.Int64("deleted", deleted),
						logger.Int("retention_days", retentionDays))
				}
				r.cache.Prune()
			case <-stopCh:
				return
			}
		}
	}()
}

// stopCleanup closes the stop channel under mu so concurrent Stop and
// StartLogCleanup calls cannot close it twice.
func (r *Runner) stopCleanup() {
	r.mu.Lock()
	ch := r.cleanupStop
	r.cleanupStop = nil
	r.mu.Unlock()
	if ch != nil {
		close(ch)
	}
	r.cleanupWG.Wait()
}

// Stop shuts down the log cleanup goroutine and waits for it to exit.
func (r *Runner) Stop() {
	r.stopCleanup()
}

func runError(deviceID uint, err error) error {
	return errors.Newf("alert run for device %d failed: %w", deviceID, err).
		Component(componentName).
		Category(errors.CategoryDatabase).
		Context("device_id", deviceID).
		Build()
}
