package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/errors"
	"github.com/faultwatch/faultwatch/internal/faults"
	"github.com/faultwatch/faultwatch/internal/logger"
)

// PriorAlert is a live alert together with what was last logged for it.
type PriorAlert struct {
	Alert *entities.Alert
	Rule  *entities.AlertRule
	// Details of the latest log entry. Nil is treated as no rows.
	Details *entities.AlertDetails
}

// Outcome describes what one evaluation did to an alert.
type Outcome struct {
	State    entities.AlertState
	Previous entities.AlertState
	Status   Status
	Added    faults.Set
	Resolved faults.Set
	// Persisted is false when nothing was written.
	Persisted bool
}

// StateMachine decides alert transitions and persists them.
type StateMachine struct {
	alerts   repository.AlertRepository
	contacts ContactSource
	events   EventLogger
	log      logger.Logger
	now      func() time.Time
}

// NewStateMachine creates a StateMachine.
func NewStateMachine(alerts repository.AlertRepository, contacts ContactSource, events EventLogger, log logger.Logger) *StateMachine {
	return &StateMachine{
		alerts:   alerts,
		contacts: contacts,
		events:   events,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Qualifies reports whether rows put rule in a faulting condition: rows for
// a normal rule, no rows for an inverted one.
func Qualifies(rule *entities.AlertRule, rows faults.Set) bool {
	return (len(rows) > 0) != rule.Invert()
}

// Open creates the alert for a (device, rule) pair that has none yet.
func (m *StateMachine) Open(ctx context.Context, rule *entities.AlertRule, deviceID uint, rows faults.Set) (Outcome, error) {
	contacts := m.resolveContacts(ctx, rule, deviceID, rows)
	blob, err := entities.EncodeDetails(&entities.AlertDetails{Contacts: contacts, Rule: nonNil(rows)})
	if err != nil {
		return Outcome{}, persistError(rule.ID, deviceID, err)
	}

	now := m.now()
	alert := &entities.Alert{
		DeviceID:  deviceID,
		RuleID:    rule.ID,
		State:     entities.StateActive,
		Open:      true,
		Timestamp: now,
	}
	entry := &entities.AlertLog{
		DeviceID:   deviceID,
		RuleID:     rule.ID,
		State:      entities.StateActive,
		Details:    blob,
		TimeLogged: now,
	}
	if err := m.alerts.OpenAlert(ctx, alert, entry); err != nil {
		return Outcome{}, persistError(rule.ID, deviceID, err)
	}
	return Outcome{
		State:     entities.StateActive,
		Previous:  entities.StateClear,
		Status:    StatusAlert,
		Added:     rows,
		Persisted: true,
	}, nil
}

// Transition moves an existing alert according to the rows just returned
// by its rule.
func (m *StateMachine) Transition(ctx context.Context, prior PriorAlert, rows faults.Set) (Outcome, error) {
	rule, alert := prior.Rule, prior.Alert
	details := &entities.AlertDetails{}
	if prior.Details != nil {
		copied := *prior.Details
		details = &copied
	}
	previousRows := details.Rule

	out := Outcome{Previous: alert.State}
	out.Added, out.Resolved = faults.Diff(previousRows, rows)

	// Nothing moved: a faulting alert keeps its state.
	state := alert.State
	out.Status = StatusNoChange
	if !state.IsFaulting() {
		state = entities.StateActive
	}
	switch {
	case len(out.Added) > 0 && len(out.Resolved) > 0:
		state, out.Status = entities.StateChanged, StatusChanged
		details.Diff = &entities.FaultDiff{Added: out.Added, Resolved: out.Resolved}
	case len(out.Added) > 0:
		state, out.Status = entities.StateWorse, StatusWorse
		details.Diff = &entities.FaultDiff{Added: out.Added}
	case len(out.Resolved) > 0:
		state, out.Status = entities.StateBetter, StatusBetter
		details.Diff = &entities.FaultDiff{Resolved: out.Resolved}
	case len(rows) > len(previousRows):
		state, out.Status = entities.StateWorse, StatusWorse
		m.warnNoIdentity(rule, alert.DeviceID, "worse", rows)
	case len(rows) < len(previousRows):
		state, out.Status = entities.StateBetter, StatusBetter
		m.warnNoIdentity(rule, alert.DeviceID, "better", previousRows)
	}

	inverted := rule.Invert()
	switch {
	case len(rows) == 0 && !inverted, len(rows) > 0 && inverted:
		state = entities.StateClear
	case len(rows) == 0 && inverted:
		state = entities.StateActive
	}

	if state.IsFaulting() {
		return m.persistFaulting(ctx, prior, details, state, rows, out)
	}
	return m.persistClear(ctx, prior, rows, out)
}

func (m *StateMachine) persistFaulting(ctx context.Context, prior PriorAlert, details *entities.AlertDetails,
	state entities.AlertState, rows faults.Set, out Outcome) (Outcome, error) {
	rule, alert := prior.Rule, prior.Alert
	if alert.State == entities.StateAcknowledged && alert.UntilClear() {
		state = entities.StateAcknowledged
	}

	details.Contacts = m.resolveContacts(ctx, rule, alert.DeviceID, rows)
	details.Rule = nonNil(rows)
	blob, err := entities.EncodeDetails(details)
	if err != nil {
		return out, persistError(rule.ID, alert.DeviceID, err)
	}

	now := m.now()
	alerted := true
	err = m.alerts.RecordTransition(ctx,
		&entities.AlertLog{
			DeviceID:   alert.DeviceID,
			RuleID:     rule.ID,
			State:      state,
			Details:    blob,
			TimeLogged: now,
		},
		repository.AlertUpdate{State: state, Open: true, Alerted: &alerted, Timestamp: &now})
	if err != nil {
		return out, persistError(rule.ID, alert.DeviceID, err)
	}

	out.State = state
	out.Persisted = true
	if out.Previous == entities.StateClear {
		out.Status = StatusAlert
	}
	return out, nil
}

func (m *StateMachine) persistClear(ctx context.Context, prior PriorAlert, rows faults.Set, out Outcome) (Outcome, error) {
	rule, alert := prior.Rule, prior.Alert
	out.State = entities.StateClear
	if alert.State == entities.StateClear {
		out.Status = StatusNoChange
		return out, nil
	}

	blob, err := entities.EncodeDetails(&entities.AlertDetails{Rule: nonNil(rows)})
	if err != nil {
		return out, persistError(rule.ID, alert.DeviceID, err)
	}
	now := m.now()
	note := ""
	err = m.alerts.RecordTransition(ctx,
		&entities.AlertLog{
			DeviceID:   alert.DeviceID,
			RuleID:     rule.ID,
			State:      entities.StateClear,
			Details:    blob,
			TimeLogged: now,
		},
		repository.AlertUpdate{State: entities.StateClear, Open: true, Note: &note, Timestamp: &now})
	if err != nil {
		return out, persistError(rule.ID, alert.DeviceID, err)
	}
	out.Persisted = true
	out.Status = StatusOK
	return out, nil
}

// resolveContacts never fails the transition; a lookup error leaves the
// entry without contacts.
func (m *StateMachine) resolveContacts(ctx context.Context, rule *entities.AlertRule, deviceID uint, rows faults.Set) entities.Contacts {
	contacts, err := m.contacts.Resolve(ctx, rows)
	if err != nil {
		m.log.Warn("failed to resolve alert contacts",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Uint64("device_id", uint64(deviceID)),
			logger.Error(err))
		return entities.Contacts{}
	}
	return contacts
}

// warnNoIdentity reports a count change the diff could not explain. sample
// holds rows whose columns are logged to show what identity is missing.
func (m *StateMachine) warnNoIdentity(rule *entities.AlertRule, deviceID uint, direction string, sample faults.Set) {
	msg := fmt.Sprintf("Alert got %s but the diff was not, ensure that a \"id\" or \"_id\" field is available for rule %s",
		direction, rule.Name)
	fields := []logger.Field{
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.Uint64("device_id", uint64(deviceID)),
		logger.String("direction", direction),
	}
	if len(sample) > 0 {
		fields = append(fields,
			logger.Any("columns", sample[0].Names()),
			logger.Any("identity_columns", faults.IdentityFields(sample[0])))
	}
	m.log.Warn("row count changed without identity diff", fields...)
	m.events.Log(deviceID, msg, entities.SeverityLevelWarning)
}

func persistError(ruleID, deviceID uint, err error) error {
	return errors.Newf("%w: %w", ErrPersist, err).
		Component(componentName).
		Category(errors.CategoryDatabase).
		Context("rule_id", ruleID).
		Context("device_id", deviceID).
		Build()
}

func nonNil(rows faults.Set) faults.Set {
	if rows == nil {
		return faults.Set{}
	}
	return rows
}
