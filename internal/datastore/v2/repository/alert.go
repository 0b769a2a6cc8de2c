package repository

import (
	"context"
	"time"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
)

// AlertRepository manages live alerts and their append-only log. Every
// method that writes both tables does so in a single transaction.
type AlertRepository interface {
	GetAlert(ctx context.Context, deviceID, ruleID uint) (*entities.Alert, error)
	GetAlertByID(ctx context.Context, id uint) (*entities.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]entities.Alert, int64, error)
	ListDeviceAlerts(ctx context.Context, deviceID uint) ([]entities.Alert, error)

	// LatestLog returns the most recent log entry for a (device, rule) pair.
	LatestLog(ctx context.Context, deviceID, ruleID uint) (*entities.AlertLog, error)
	ListLogs(ctx context.Context, filter AlertLogFilter) ([]entities.AlertLog, int64, error)

	// OpenAlert inserts entry and then creates alert. Nothing is written if
	// either insert fails.
	OpenAlert(ctx context.Context, alert *entities.Alert, entry *entities.AlertLog) error
	// RecordTransition inserts entry and then applies update to the live
	// alert of the same (device, rule). Nothing is written if either step
	// fails or no live alert exists.
	RecordTransition(ctx context.Context, entry *entities.AlertLog, update AlertUpdate) error
	// Acknowledge moves a faulting alert to ACKNOWLEDGED, logging the
	// transition with the details of its latest log entry. CLEAR alerts
	// return ErrNotFaulting.
	Acknowledge(ctx context.Context, id uint, ack Acknowledgement) (*entities.Alert, error)
	// Unacknowledge returns an acknowledged alert to the faulting state it
	// had before acknowledgement.
	Unacknowledge(ctx context.Context, id uint) (*entities.Alert, error)

	DeleteAlert(ctx context.Context, deviceID, ruleID uint) error
	// ClearDeviceAlerts forces every alert of a device to CLEAR with the
	// open and alerted flags reset.
	ClearDeviceAlerts(ctx context.Context, deviceID uint) (int64, error)
	// DeleteLogsBefore removes log entries older than before, always
	// keeping the newest entry of each (device, rule) pair.
	DeleteLogsBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertUpdate is applied to a live alert after its log entry is written.
// Nil pointers leave the column untouched.
type AlertUpdate struct {
	State     entities.AlertState
	Open      bool
	Alerted   *bool
	Note      *string
	Timestamp *time.Time
	Info      *string
}

// Acknowledgement describes an operator acknowledging an alert.
type Acknowledgement struct {
	Note       string
	UntilClear bool
	By         string
}

// AlertFilter controls alert listing queries.
type AlertFilter struct {
	DeviceID uint
	RuleID   uint
	State    *entities.AlertState
	Open     *bool
	Limit    int
	Offset   int
}

// AlertLogFilter controls log listing queries.
type AlertLogFilter struct {
	DeviceID uint
	RuleID   uint
	Since    time.Time
	Limit    int
	Offset   int
}
