package repository

import (
	"gorm.io/gorm"

	"github.com/faultwatch/faultwatch/internal/errors"
)

var (
	// ErrAlertRuleNotFound is returned when a rule id does not exist.
	ErrAlertRuleNotFound = errors.NewStd("alert rule not found")
	// ErrAlertNotFound is returned when no live alert matches.
	ErrAlertNotFound = errors.NewStd("alert not found")
	// ErrAlertLogNotFound is returned when an alert has no log history.
	ErrAlertLogNotFound = errors.NewStd("alert log entry not found")
	// ErrDeviceNotFound is returned when a device id does not exist.
	ErrDeviceNotFound = errors.NewStd("device not found")
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
