package entities

import (
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
)

// Rule severities.
const (
	SeverityOK       = "ok"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AlertRule is an operator-defined fault condition. Query holds raw SQL
// taking the device id as its single parameter; when empty, Builder holds
// the query-builder JSON it is compiled from.
type AlertRule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Severity  string    `gorm:"size:16;not null;default:'critical'" json:"severity"`
	Disabled  bool      `gorm:"not null;default:false;index" json:"disabled"`
	InvertMap bool      `gorm:"not null;default:false" json:"invert_map"`
	Query     string    `gorm:"type:text" json:"query"`
	Builder   string    `gorm:"type:text" json:"builder"`
	Extra     string    `gorm:"type:text" json:"extra"`
	Proc      string    `gorm:"size:80;default:''" json:"proc"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	DeviceMaps   []AlertDeviceMap   `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"devices,omitempty"`
	GroupMaps    []AlertGroupMap    `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"groups,omitempty"`
	LocationMaps []AlertLocationMap `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"locations,omitempty"`
}

// TableName returns the table name for GORM.
func (AlertRule) TableName() string {
	return "alert_rules"
}

// RuleExtra is the decoded form of AlertRule.Extra. Count, Delay and
// Interval are zero when absent or unparseable.
type RuleExtra struct {
	Invert   bool  `json:"invert"`
	Mute     bool  `json:"mute"`
	Count    int   `json:"count"`
	Delay    int   `json:"delay"`
	Interval int   `json:"interval"`
	Recovery *bool `json:"recovery,omitempty"`
}

// Extras decodes Extra one key at a time, so a key of an unexpected type
// does not hide the others. Booleans accept true, 1 and "1"; integers may
// be numbers or numeric strings.
func (r *AlertRule) Extras() RuleExtra {
	var extra RuleExtra
	obj, err := jason.NewObjectFromBytes([]byte(r.Extra))
	if err != nil {
		return extra
	}
	extra.Invert, _ = extraBool(obj, "invert")
	extra.Mute, _ = extraBool(obj, "mute")
	extra.Count = extraInt(obj, "count")
	extra.Delay = extraInt(obj, "delay")
	extra.Interval = extraInt(obj, "interval")
	if b, ok := extraBool(obj, "recovery"); ok {
		extra.Recovery = &b
	}
	return extra
}

// Invert reports whether the rule faults when its query returns no rows.
func (r *AlertRule) Invert() bool {
	return r.Extras().Invert
}

func extraBool(obj *jason.Object, key string) (bool, bool) {
	v, err := obj.GetValue(key)
	if err != nil {
		return false, false
	}
	if b, err := v.Boolean(); err == nil {
		return b, true
	}
	if n, err := v.Number(); err == nil {
		f, err := n.Float64()
		return err == nil && f != 0, err == nil
	}
	if s, err := v.String(); err == nil {
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		return b, err == nil
	}
	return false, false
}

func extraInt(obj *jason.Object, key string) int {
	v, err := obj.GetValue(key)
	if err != nil {
		return 0
	}
	if n, err := v.Int64(); err == nil {
		return int(n)
	}
	if s, err := v.String(); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return 0
}

// AlertDeviceMap scopes a rule to an explicit device.
type AlertDeviceMap struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	RuleID   uint `gorm:"not null;uniqueIndex:idx_alert_device_map,priority:1" json:"rule_id"`
	DeviceID uint `gorm:"not null;uniqueIndex:idx_alert_device_map,priority:2;index" json:"device_id"`
}

func (AlertDeviceMap) TableName() string {
	return "alert_device_map"
}

// AlertGroupMap scopes a rule to the members of a device group.
type AlertGroupMap struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	RuleID  uint `gorm:"not null;uniqueIndex:idx_alert_group_map,priority:1" json:"rule_id"`
	GroupID uint `gorm:"not null;uniqueIndex:idx_alert_group_map,priority:2;index" json:"group_id"`
}

func (AlertGroupMap) TableName() string {
	return "alert_group_map"
}

// AlertLocationMap scopes a rule to devices at a location.
type AlertLocationMap struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	RuleID     uint `gorm:"not null;uniqueIndex:idx_alert_location_map,priority:1" json:"rule_id"`
	LocationID uint `gorm:"not null;uniqueIndex:idx_alert_location_map,priority:2;index" json:"location_id"`
}

func (AlertLocationMap) TableName() string {
	return "alert_location_map"
}
