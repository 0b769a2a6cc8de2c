package entities

import "time"

// MaintenanceStatus is how an active maintenance window treats alerting.
type MaintenanceStatus int

const (
	MaintenanceNone MaintenanceStatus = iota
	MaintenanceSkipAlerts
	MaintenanceMuteAlerts
	MaintenanceRunAlerts
)

func (m MaintenanceStatus) String() string {
	switch m {
	case MaintenanceSkipAlerts:
		return "skip_alerts"
	case MaintenanceMuteAlerts:
		return "mute_alerts"
	case MaintenanceRunAlerts:
		return "run_alerts"
	default:
		return "none"
	}
}

// Schedulable target types.
const (
	SchedulableDevice      = "device"
	SchedulableDeviceGroup = "device_group"
	SchedulableLocation    = "location"
)

// AlertSchedule is a maintenance window.
type AlertSchedule struct {
	ID       uint              `gorm:"primaryKey;column:schedule_id" json:"schedule_id"`
	Title    string            `gorm:"size:255;not null" json:"title"`
	Notes    string            `gorm:"type:text" json:"notes"`
	Start    time.Time         `gorm:"not null;index" json:"start"`
	End      time.Time         `gorm:"not null;index" json:"end"`
	Behavior MaintenanceStatus `gorm:"not null;default:1" json:"behavior"`

	Items []AlertSchedulable `gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (AlertSchedule) TableName() string {
	return "alert_schedule"
}

// AlertSchedulable attaches a device, device group or location to a window.
type AlertSchedulable struct {
	ID              uint   `gorm:"primaryKey;column:item_id" json:"item_id"`
	ScheduleID      uint   `gorm:"not null;index" json:"schedule_id"`
	SchedulableID   uint   `gorm:"column:alert_schedulable_id;not null" json:"alert_schedulable_id"`
	SchedulableType string `gorm:"column:alert_schedulable_type;size:32;not null" json:"alert_schedulable_type"`
}

func (AlertSchedulable) TableName() string {
	return "alert_schedulables"
}
