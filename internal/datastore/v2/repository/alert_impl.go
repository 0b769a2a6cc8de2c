package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/errors"
)

var (
	// ErrNotAcknowledged is returned when unacknowledging an alert that is
	// not in the ACKNOWLEDGED state.
	ErrNotAcknowledged = errors.NewStd("alert is not acknowledged")
	// ErrNotFaulting is returned when acknowledging a CLEAR alert.
	ErrNotFaulting = errors.NewStd("alert is not faulting")
)

// pruneLogSQL deletes old log rows except the newest per (device, rule).
// The derived table lets MySQL read alert_log while deleting from it.
const pruneLogSQL = `DELETE FROM alert_log WHERE time_logged < ? AND id NOT IN (
	SELECT keep_id FROM (SELECT MAX(id) AS keep_id FROM alert_log GROUP BY device_id, rule_id) latest
)`

// alertRepository implements AlertRepository.
type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) GetAlert(ctx context.Context, deviceID, ruleID uint) (*entities.Alert, error) {
	var alert entities.Alert
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND rule_id = ?", deviceID, ruleID).
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert for device %d rule %d: %w", deviceID, ruleID, err)
	}
	return &alert, nil
}

func (r *alertRepository) GetAlertByID(ctx context.Context, id uint) (*entities.Alert, error) {
	var alert entities.Alert
	if err := r.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return &alert, nil
}

// ListAlerts returns alerts matching the filter with the total match count.
func (r *alertRepository) ListAlerts(ctx context.Context, filter AlertFilter) ([]entities.Alert, int64, error) {
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.DeviceID > 0 {
			q = q.Where("device_id = ?", filter.DeviceID)
		}
		if filter.RuleID > 0 {
			q = q.Where("rule_id = ?", filter.RuleID)
		}
		if filter.State != nil {
			q = q.Where("state = ?", *filter.State)
		}
		if filter.Open != nil {
			q = q.Where("open = ?", *filter.Open)
		}
		return q
	}

	var total int64
	if err := scope(r.db.WithContext(ctx).Model(&entities.Alert{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	var alerts []entities.Alert
	query := scope(r.db.WithContext(ctx)).Order("timestamp DESC, id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&alerts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, total, nil
}

func (r *alertRepository) ListDeviceAlerts(ctx context.Context, deviceID uint) ([]entities.Alert, error) {
	var alerts []entities.Alert
	if err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("rule_id ASC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts for device %d: %w", deviceID, err)
	}
	return alerts, nil
}

func (r *alertRepository) LatestLog(ctx context.Context, deviceID, ruleID uint) (*entities.AlertLog, error) {
	return latestLog(r.db.WithContext(ctx), deviceID, ruleID)
}

func latestLog(db *gorm.DB, deviceID, ruleID uint) (*entities.AlertLog, error) {
	var entry entities.AlertLog
	err := db.Where("device_id = ? AND rule_id = ?", deviceID, ruleID).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertLogNotFound
		}
		return nil, fmt.Errorf("failed to load latest alert log: %w", err)
	}
	return &entry, nil
}

// ListLogs returns log entries newest first with the total match count.
func (r *alertRepository) ListLogs(ctx context.Context, filter AlertLogFilter) ([]entities.AlertLog, int64, error) {
	scope := func(q *gorm.DB) *gorm.DB {
		if filter.DeviceID > 0 {
			q = q.Where("device_id = ?", filter.DeviceID)
		}
		if filter.RuleID > 0 {
			q = q.Where("rule_id = ?", filter.RuleID)
		}
		if !filter.Since.IsZero() {
			q = q.Where("time_logged >= ?", filter.Since)
		}
		return q
	}

	var total int64
	if err := scope(r.db.WithContext(ctx).Model(&entities.AlertLog{})).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alert log: %w", err)
	}

	var entries []entities.AlertLog
	query := scope(r.db.WithContext(ctx)).Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alert log: %w", err)
	}
	return entries, total, nil
}

func (r *alertRepository) OpenAlert(ctx context.Context, alert *entities.Alert, entry *entities.AlertLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to insert alert log: %w", err)
		}
		if err := tx.Create(alert).Error; err != nil {
			return fmt.Errorf("failed to create alert: %w", err)
		}
		return nil
	})
}

func (r *alertRepository) RecordTransition(ctx context.Context, entry *entities.AlertLog, update AlertUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to insert alert log: %w", err)
		}

		columns := map[string]any{
			"state": update.State,
			"open":  update.Open,
		}
		if update.Alerted != nil {
			columns["alerted"] = *update.Alerted
		}
		if update.Note != nil {
			columns["note"] = *update.Note
		}
		if update.Timestamp != nil {
			columns["timestamp"] = *update.Timestamp
		}
		if update.Info != nil {
			columns["info"] = *update.Info
		}

		result := tx.Model(&entities.Alert{}).
			Where("device_id = ? AND rule_id = ?", entry.DeviceID, entry.RuleID).
			Updates(columns)
		if result.Error != nil {
			return fmt.Errorf("failed to update alert: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlertNotFound
		}
		return nil
	})
}

func (r *alertRepository) Acknowledge(ctx context.Context, id uint, ack Acknowledgement) (*entities.Alert, error) {
	var alert entities.Alert
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alert, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAlertNotFound
			}
			return fmt.Errorf("failed to load alert %d: %w", id, err)
		}
		if !alert.State.IsFaulting() {
			return ErrNotFaulting
		}

		info := alert.Infos()
		info.UntilClear = ack.UntilClear
		info.AcknowledgedBy = ack.By
		infoJSON, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("failed to encode alert info: %w", err)
		}

		alert.State = entities.StateAcknowledged
		alert.Open = true
		alert.Note = ack.Note
		alert.Info = string(infoJSON)
		return r.logAndSave(tx, &alert)
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepository) Unacknowledge(ctx context.Context, id uint) (*entities.Alert, error) {
	var alert entities.Alert
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&alert, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAlertNotFound
			}
			return fmt.Errorf("failed to load alert %d: %w", id, err)
		}
		if alert.State != entities.StateAcknowledged {
			return ErrNotAcknowledged
		}

		info := alert.Infos()
		info.UntilClear = false
		info.AcknowledgedBy = ""
		infoJSON, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("failed to encode alert info: %w", err)
		}

		state, err := stateBeforeAcknowledge(tx, alert.DeviceID, alert.RuleID)
		if err != nil {
			return err
		}
		alert.State = state
		alert.Open = true
		alert.Info = string(infoJSON)
		return r.logAndSave(tx, &alert)
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// stateBeforeAcknowledge returns the state of the newest log entry that is
// not an acknowledgement, or ACTIVE when that entry is missing or CLEAR.
func stateBeforeAcknowledge(tx *gorm.DB, deviceID, ruleID uint) (entities.AlertState, error) {
	var entry entities.AlertLog
	err := tx.Select("id", "state").
		Where("device_id = ? AND rule_id = ? AND state <> ?", deviceID, ruleID, entities.StateAcknowledged).
		Order("id DESC").
		First(&entry).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return entities.StateActive, nil
	case err != nil:
		return entities.StateClear, fmt.Errorf("failed to read state before acknowledgement: %w", err)
	case !entry.State.IsFaulting():
		return entities.StateActive, nil
	default:
		return entry.State, nil
	}
}

// logAndSave appends a log entry for alert's new state, carrying forward the
// details of the previous entry, then saves alert.
func (r *alertRepository) logAndSave(tx *gorm.DB, alert *entities.Alert) error {
	var details []byte
	prev, err := latestLog(tx, alert.DeviceID, alert.RuleID)
	switch {
	case err == nil:
		details = prev.Details
	case !errors.Is(err, ErrAlertLogNotFound):
		return err
	}

	entry := &entities.AlertLog{
		RuleID:     alert.RuleID,
		DeviceID:   alert.DeviceID,
		State:      alert.State,
		Details:    details,
		TimeLogged: time.Now().UTC(),
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to insert alert log: %w", err)
	}
	if err := tx.Save(alert).Error; err != nil {
		return fmt.Errorf("failed to save alert %d: %w", alert.ID, err)
	}
	return nil
}

func (r *alertRepository) DeleteAlert(ctx context.Context, deviceID, ruleID uint) error {
	result := r.db.WithContext(ctx).
		Where("device_id = ? AND rule_id = ?", deviceID, ruleID).
		Delete(&entities.Alert{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete alert for device %d rule %d: %w", deviceID, ruleID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (r *alertRepository) ClearDeviceAlerts(ctx context.Context, deviceID uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entities.Alert{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{
			"state":   entities.StateClear,
			"alerted": false,
			"open":    false,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear alerts for device %d: %w", deviceID, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *alertRepository) DeleteLogsBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Exec(pruneLogSQL, before)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete alert log before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}
