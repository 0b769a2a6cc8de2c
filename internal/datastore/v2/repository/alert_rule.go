package repository

import (
	"context"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
)

// AlertRuleRepository reads alert rules. Rules are administered elsewhere.
type AlertRuleRepository interface {
	ListRules(ctx context.Context, filter AlertRuleFilter) ([]entities.AlertRule, error)
	GetRule(ctx context.Context, id uint) (*entities.AlertRule, error)

	// GetRulesForDevice returns the enabled rules that apply to a device,
	// ordered by rule id. A rule applies when it has no device, group or
	// location mapping at all, or when its mappings select the device
	// (or exclude it, for rules with InvertMap set).
	GetRulesForDevice(ctx context.Context, deviceID uint) ([]entities.AlertRule, error)
}

// AlertRuleFilter controls rule listing queries.
type AlertRuleFilter struct {
	Disabled *bool
	Severity string
	Name     string
}
