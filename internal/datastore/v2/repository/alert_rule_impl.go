package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/errors"
)

// rulesForDeviceSQL selects the rules applicable to @device across the
// device, group and location mapping dimensions. Each dimension honours the
// rule's invert_map flag on its own; rules without any mapping always apply.
const rulesForDeviceSQL = `SELECT DISTINCT a.* FROM alert_rules a
LEFT JOIN alert_device_map d ON a.id = d.rule_id AND (a.invert_map = 0 OR (a.invert_map = 1 AND d.device_id = @device))
LEFT JOIN alert_group_map g ON a.id = g.rule_id AND (a.invert_map = 0 OR (a.invert_map = 1 AND g.group_id IN (SELECT DISTINCT device_group_id FROM device_group_device WHERE device_id = @device)))
LEFT JOIN alert_location_map l ON a.id = l.rule_id AND (a.invert_map = 0 OR (a.invert_map = 1 AND l.location_id IN (SELECT DISTINCT location_id FROM devices WHERE device_id = @device)))
LEFT JOIN devices ld ON l.location_id = ld.location_id AND ld.device_id = @device
LEFT JOIN device_group_device dg ON g.group_id = dg.device_group_id AND dg.device_id = @device
WHERE a.disabled = 0 AND (
	(d.device_id IS NULL AND g.group_id IS NULL AND l.location_id IS NULL)
	OR (a.invert_map = 0 AND (d.device_id = @device OR dg.device_id = @device OR ld.device_id = @device))
	OR (a.invert_map = 1 AND (d.device_id != @device OR d.device_id IS NULL)
		AND (dg.device_id != @device OR dg.device_id IS NULL)
		AND (ld.device_id != @device OR ld.device_id IS NULL))
)
ORDER BY a.id ASC`

// alertRuleRepository implements AlertRuleRepository.
type alertRuleRepository struct {
	db *gorm.DB
}

// NewAlertRuleRepository creates a new AlertRuleRepository.
func NewAlertRuleRepository(db *gorm.DB) AlertRuleRepository {
	return &alertRuleRepository{db: db}
}

func (r *alertRuleRepository) withMaps(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("DeviceMaps").Preload("GroupMaps").Preload("LocationMaps")
}

// ListRules returns alert rules matching the given filter.
func (r *alertRuleRepository) ListRules(ctx context.Context, filter AlertRuleFilter) ([]entities.AlertRule, error) {
	var rules []entities.AlertRule
	query := r.withMaps(ctx)

	if filter.Disabled != nil {
		query = query.Where("disabled = ?", *filter.Disabled)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Name != "" {
		query = query.Where("name = ?", filter.Name)
	}

	if err := query.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	return rules, nil
}

// GetRule returns a single alert rule by ID with its scope mappings.
// Returns ErrAlertRuleNotFound if the rule does not exist.
func (r *alertRuleRepository) GetRule(ctx context.Context, id uint) (*entities.AlertRule, error) {
	var rule entities.AlertRule
	if err := r.withMaps(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertRuleNotFound
		}
		return nil, fmt.Errorf("failed to get alert rule %d: %w", id, err)
	}
	return &rule, nil
}

// GetRulesForDevice runs the rule selection join for one device.
func (r *alertRuleRepository) GetRulesForDevice(ctx context.Context, deviceID uint) ([]entities.AlertRule, error) {
	var rules []entities.AlertRule
	err := r.db.WithContext(ctx).
		Raw(rulesForDeviceSQL, map[string]any{"device": deviceID}).
		Scan(&rules).Error
	if err != nil {
		return nil, errors.Newf("failed to select rules for device: %w", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("device_id", deviceID).
			Build()
	}
	return rules, nil
}
