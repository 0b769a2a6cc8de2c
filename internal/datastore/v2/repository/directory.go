package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
)

// Owned identifies objects whose owners should be contacted.
type Owned struct {
	DeviceIDs []uint
	PortIDs   []uint
	BillIDs   []uint
}

// Empty reports whether nothing is referenced.
func (o Owned) Empty() bool {
	return len(o.DeviceIDs) == 0 && len(o.PortIDs) == 0 && len(o.BillIDs) == 0
}

// DirectoryRepository answers contact lookups.
type DirectoryRepository interface {
	// SysContact returns the device's contact string, honouring the
	// override_sysContact attributes.
	SysContact(ctx context.Context, deviceID uint) (string, error)
	// Owners returns users with an email who own any referenced object.
	Owners(ctx context.Context, owned Owned) ([]entities.User, error)
	// UsersWithRoles returns users with an email holding any of roles.
	UsersWithRoles(ctx context.Context, roles ...string) ([]entities.User, error)
}

type directoryRepository struct {
	db      *gorm.DB
	devices DeviceRepository
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(db *gorm.DB) DirectoryRepository {
	return &directoryRepository{db: db, devices: NewDeviceRepository(db)}
}

func (r *directoryRepository) SysContact(ctx context.Context, deviceID uint) (string, error) {
	device, err := r.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return "", err
	}

	override, _, err := r.devices.GetAttrib(ctx, deviceID, entities.AttribOverrideSysContactBool)
	if err != nil {
		return "", err
	}
	if !truthy(override) {
		return device.SysContact, nil
	}
	contact, _, err := r.devices.GetAttrib(ctx, deviceID, entities.AttribOverrideSysContactString)
	if err != nil {
		return "", err
	}
	return contact, nil
}

func (r *directoryRepository) Owners(ctx context.Context, owned Owned) ([]entities.User, error) {
	if owned.Empty() {
		return nil, nil
	}

	var conds []*gorm.DB
	if len(owned.DeviceIDs) > 0 {
		conds = append(conds, r.db.Where("user_id IN (?)",
			r.db.Model(&entities.DevicePerm{}).Select("user_id").Where("device_id IN ?", owned.DeviceIDs)))
	}
	if len(owned.PortIDs) > 0 {
		conds = append(conds, r.db.Where("user_id IN (?)",
			r.db.Model(&entities.PortPerm{}).Select("user_id").Where("port_id IN ?", owned.PortIDs)))
	}
	if len(owned.BillIDs) > 0 {
		conds = append(conds, r.db.Where("user_id IN (?)",
			r.db.Model(&entities.BillPerm{}).Select("user_id").Where("bill_id IN ?", owned.BillIDs)))
	}
	anyOwned := conds[0]
	for _, c := range conds[1:] {
		anyOwned = anyOwned.Or(c)
	}

	var users []entities.User
	err := r.db.WithContext(ctx).
		Where("email <> ''").
		Where(anyOwned).
		Order("user_id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load owners: %w", err)
	}
	return users, nil
}

func (r *directoryRepository) UsersWithRoles(ctx context.Context, roles ...string) ([]entities.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var users []entities.User
	err := r.db.WithContext(ctx).
		Where("email <> ''").
		Where("user_id IN (?)", r.db.Model(&entities.UserRole{}).Select("user_id").Where("role IN ?", roles)).
		Order("user_id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load users with roles %v: %w", roles, err)
	}
	return users, nil
}

func truthy(s string) bool {
	switch s {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}
