package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/faultwatch/faultwatch/internal/faults"
)

// AlertLog is an append-only record of one alert state transition.
type AlertLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	RuleID     uint       `gorm:"not null;index:idx_alert_log_rule_device,priority:1" json:"rule_id"`
	DeviceID   uint       `gorm:"not null;index:idx_alert_log_rule_device,priority:2" json:"device_id"`
	State      AlertState `gorm:"not null" json:"state"`
	Details    []byte     `gorm:"type:blob" json:"-"`
	TimeLogged time.Time  `gorm:"not null;index" json:"time_logged"`
}

// TableName returns the table name for GORM.
func (AlertLog) TableName() string {
	return "alert_log"
}

// Contacts maps an email address to a display name.
type Contacts map[string]string

// FaultDiff records which rows appeared and disappeared in a transition.
type FaultDiff struct {
	Added    faults.Set `json:"added"`
	Resolved faults.Set `json:"resolved"`
}

// AlertDetails is the payload stored in AlertLog.Details. Rule is the full
// fault row set that produced the logged state.
type AlertDetails struct {
	Contacts Contacts   `json:"contacts"`
	Rule     faults.Set `json:"rule"`
	Diff     *FaultDiff `json:"diff,omitempty"`
}

// EncodeDetails serializes details as zlib-compressed JSON.
func EncodeDetails(d *AlertDetails) ([]byte, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert details: %w", err)
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress alert details: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress alert details: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDetails parses a details blob. Both zlib-compressed and plain JSON
// blobs are accepted; an empty blob yields empty details.
func DecodeDetails(blob []byte) (*AlertDetails, error) {
	d := &AlertDetails{}
	if len(bytes.TrimSpace(blob)) == 0 {
		return d, nil
	}

	payload := blob
	if first := bytes.TrimSpace(blob)[0]; first != '{' && first != '[' {
		zr, err := zlib.NewReader(bytes.NewReader(blob))
		if err != nil {
			return nil, fmt.Errorf("failed to open alert details: %w", err)
		}
		defer func() { _ = zr.Close() }()
		if payload, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("failed to decompress alert details: %w", err)
		}
	}

	if err := json.Unmarshal(payload, d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert details: %w", err)
	}
	return d, nil
}

// Eventlog severities.
const (
	SeverityLevelOK      = 1
	SeverityLevelInfo    = 2
	SeverityLevelNotice  = 3
	SeverityLevelWarning = 4
	SeverityLevelError   = 5
)

// Eventlog is an operator-visible event attached to a device.
type Eventlog struct {
	ID        uint      `gorm:"primaryKey;column:event_id" json:"event_id"`
	DeviceID  uint      `gorm:"index" json:"device_id"`
	Datetime  time.Time `gorm:"not null;index" json:"datetime"`
	Message   string    `gorm:"type:text" json:"message"`
	Type      string    `gorm:"size:64;index" json:"type"`
	Reference string    `gorm:"size:64" json:"reference"`
	Severity  int       `gorm:"not null;default:2" json:"severity"`
}

func (Eventlog) TableName() string {
	return "eventlog"
}
