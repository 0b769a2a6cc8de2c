package entities

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AlertState is the lifecycle state of a (device, rule) alert. Values are
// ordered: every state above StateClear is faulting.
type AlertState int

const (
	StateClear AlertState = iota
	StateActive
	StateAcknowledged
	StateBetter
	StateWorse
	StateChanged
)

var alertStateNames = [...]string{"clear", "active", "acknowledged", "better", "worse", "changed"}

// IsFaulting reports whether the state represents an open fault.
func (s AlertState) IsFaulting() bool {
	return s > StateClear
}

func (s AlertState) String() string {
	if s < 0 || int(s) >= len(alertStateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return alertStateNames[s]
}

// ParseAlertState accepts a state name or its numeric value.
func ParseAlertState(s string) (AlertState, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range alertStateNames {
		if s == name || s == fmt.Sprint(i) {
			return AlertState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown alert state %q", s)
}

func (s AlertState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *AlertState) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*s = AlertState(n)
		return nil
	}
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParseAlertState(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Alert is the live record for one (device, rule) pair.
type Alert struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	DeviceID  uint       `gorm:"not null;uniqueIndex:idx_alerts_device_rule,priority:1" json:"device_id"`
	RuleID    uint       `gorm:"not null;uniqueIndex:idx_alerts_device_rule,priority:2;index" json:"rule_id"`
	State     AlertState `gorm:"not null;default:0;index" json:"state"`
	Alerted   bool       `gorm:"not null;default:false" json:"alerted"`
	Open      bool       `gorm:"not null;default:false" json:"open"`
	Note      string     `gorm:"type:text" json:"note"`
	Timestamp time.Time  `gorm:"not null" json:"timestamp"`
	Info      string     `gorm:"type:text" json:"info"`
}

// TableName returns the table name for GORM.
func (Alert) TableName() string {
	return "alerts"
}

// AlertInfo is the decoded form of Alert.Info.
type AlertInfo struct {
	UntilClear     bool   `json:"until_clear"`
	AcknowledgedBy string `json:"acknowledged_by,omitempty"`
}

// Infos decodes Info. Empty or malformed metadata yields the zero value.
func (a *Alert) Infos() AlertInfo {
	var info AlertInfo
	if a.Info == "" {
		return info
	}
	if err := json.Unmarshal([]byte(a.Info), &info); err != nil {
		return AlertInfo{}
	}
	return info
}

// UntilClear reports whether an acknowledgement holds until the alert clears.
func (a *Alert) UntilClear() bool {
	return a.Infos().UntilClear
}
