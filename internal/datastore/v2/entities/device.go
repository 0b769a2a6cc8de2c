package entities

import "time"

// Device is a monitored device. Only the columns alerting reads are mapped;
// rule queries may reference any others present in the schema.
type Device struct {
	DeviceID      uint   `gorm:"primaryKey;column:device_id" json:"device_id"`
	Hostname      string `gorm:"size:128;not null" json:"hostname"`
	SysName       string `gorm:"size:128;column:sysName" json:"sysName"`
	SysContact    string `gorm:"type:text;column:sysContact" json:"sysContact"`
	LocationID    *uint  `gorm:"column:location_id;index" json:"location_id"`
	Status        bool   `gorm:"not null;default:true" json:"status"`
	Disabled      bool   `gorm:"not null;default:false" json:"disabled"`
	Ignore        bool   `gorm:"not null;default:false" json:"ignore"`
	DisableNotify bool   `gorm:"column:disable_notify;not null;default:false" json:"disable_notify"`
}

func (Device) TableName() string {
	return "devices"
}

// Device attribute keys read by alerting.
const (
	AttribOverrideSysContactBool   = "override_sysContact_bool"
	AttribOverrideSysContactString = "override_sysContact_string"
)

// DeviceAttrib is a free-form per-device setting.
type DeviceAttrib struct {
	ID          uint      `gorm:"primaryKey;column:attrib_id" json:"attrib_id"`
	DeviceID    uint      `gorm:"not null;uniqueIndex:idx_devices_attribs,priority:1" json:"device_id"`
	AttribType  string    `gorm:"size:32;not null;uniqueIndex:idx_devices_attribs,priority:2" json:"attrib_type"`
	AttribValue string    `gorm:"type:text" json:"attrib_value"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated"`
}

func (DeviceAttrib) TableName() string {
	return "devices_attribs"
}

// DeviceGroupDevice records device group membership.
type DeviceGroupDevice struct {
	DeviceGroupID uint `gorm:"primaryKey;autoIncrement:false" json:"device_group_id"`
	DeviceID      uint `gorm:"primaryKey;autoIncrement:false;index" json:"device_id"`
}

func (DeviceGroupDevice) TableName() string {
	return "device_group_device"
}

// Port is a device interface. Mapped so builder rules have a join target.
type Port struct {
	PortID        uint   `gorm:"primaryKey;column:port_id" json:"port_id"`
	DeviceID      uint   `gorm:"not null;index" json:"device_id"`
	IfName        string `gorm:"size:64;column:ifName" json:"ifName"`
	IfAlias       string `gorm:"type:text;column:ifAlias" json:"ifAlias"`
	IfOperStatus  string `gorm:"size:16;column:ifOperStatus" json:"ifOperStatus"`
	IfAdminStatus string `gorm:"size:16;column:ifAdminStatus" json:"ifAdminStatus"`
}

func (Port) TableName() string {
	return "ports"
}
