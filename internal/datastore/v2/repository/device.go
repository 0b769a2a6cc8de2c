package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
)

// DeviceRepository answers the device questions alert evaluation asks.
type DeviceRepository interface {
	GetDevice(ctx context.Context, deviceID uint) (*entities.Device, error)
	// ListDeviceIDs returns enabled, non-ignored devices in id order.
	ListDeviceIDs(ctx context.Context) ([]uint, error)
	// HasDisableNotify reports whether alerting is switched off for the
	// device. Unknown devices report false.
	HasDisableNotify(ctx context.Context, deviceID uint) (bool, error)
	// MaintenanceStatus returns the most restrictive behaviour among the
	// maintenance windows covering the device at the given time.
	MaintenanceStatus(ctx context.Context, deviceID uint, at time.Time) (entities.MaintenanceStatus, error)
	// GetAttrib returns a devices_attribs value and whether it is set.
	GetAttrib(ctx context.Context, deviceID uint, attribType string) (string, bool, error)
}

type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) GetDevice(ctx context.Context, deviceID uint) (*entities.Device, error) {
	var device entities.Device
	if err := r.db.WithContext(ctx).First(&device, deviceID).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device %d: %w", deviceID, err)
	}
	return &device, nil
}

func (r *deviceRepository) ListDeviceIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&entities.Device{}).
		Where("disabled = ? AND `ignore` = ?", false, false).
		Order("device_id ASC").
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return ids, nil
}

func (r *deviceRepository) HasDisableNotify(ctx context.Context, deviceID uint) (bool, error) {
	var flags []bool
	err := r.db.WithContext(ctx).Model(&entities.Device{}).
		Where("device_id = ?", deviceID).
		Pluck("disable_notify", &flags).Error
	if err != nil {
		return false, fmt.Errorf("failed to read disable_notify for device %d: %w", deviceID, err)
	}
	return len(flags) > 0 && flags[0], nil
}

func (r *deviceRepository) MaintenanceStatus(ctx context.Context, deviceID uint, at time.Time) (entities.MaintenanceStatus, error) {
	groups := r.db.Model(&entities.DeviceGroupDevice{}).Select("device_group_id").Where("device_id = ?", deviceID)
	locations := r.db.Model(&entities.Device{}).Select("location_id").Where("device_id = ? AND location_id IS NOT NULL", deviceID)

	covers := r.db.
		Where("s.alert_schedulable_type = ? AND s.alert_schedulable_id = ?", entities.SchedulableDevice, deviceID).
		Or("s.alert_schedulable_type = ? AND s.alert_schedulable_id IN (?)", entities.SchedulableDeviceGroup, groups).
		Or("s.alert_schedulable_type = ? AND s.alert_schedulable_id IN (?)", entities.SchedulableLocation, locations)

	var behaviors []entities.MaintenanceStatus
	err := r.db.WithContext(ctx).Model(&entities.AlertSchedule{}).
		Joins("JOIN alert_schedulables s ON s.schedule_id = alert_schedule.schedule_id").
		Where("alert_schedule.`start` <= ? AND alert_schedule.`end` > ?", at, at).
		Where(covers).
		Distinct().
		Pluck("alert_schedule.behavior", &behaviors).Error
	if err != nil {
		return entities.MaintenanceNone, fmt.Errorf("failed to read maintenance for device %d: %w", deviceID, err)
	}

	status := entities.MaintenanceNone
	for _, b := range behaviors {
		if maintenanceRank(b) > maintenanceRank(status) {
			status = b
		}
	}
	return status, nil
}

// maintenanceRank orders behaviours from least to most restrictive.
func maintenanceRank(m entities.MaintenanceStatus) int {
	switch m {
	case entities.MaintenanceSkipAlerts:
		return 3
	case entities.MaintenanceMuteAlerts:
		return 2
	case entities.MaintenanceRunAlerts:
		return 1
	default:
		return 0
	}
}

func (r *deviceRepository) GetAttrib(ctx context.Context, deviceID uint, attribType string) (string, bool, error) {
	var attrib entities.DeviceAttrib
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND attrib_type = ?", deviceID, attribType).
		First(&attrib).Error
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get attrib %s for device %d: %w", attribType, deviceID, err)
	}
	return attrib.AttribValue, true, nil
}
