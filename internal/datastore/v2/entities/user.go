package entities

// Role names used by the contact policy.
const (
	RoleAdmin      = "admin"
	RoleGlobalRead = "global-read"
)

// User is an operator account.
type User struct {
	UserID   uint   `gorm:"primaryKey;column:user_id" json:"user_id"`
	Username string `gorm:"size:255;not null;uniqueIndex" json:"username"`
	Realname string `gorm:"size:64" json:"realname"`
	Email    string `gorm:"size:128" json:"email"`
}

func (User) TableName() string {
	return "users"
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID uint   `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Role   string `gorm:"primaryKey;size:32;index" json:"role"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

// DevicePerm grants a user ownership of a device.
type DevicePerm struct {
	UserID   uint `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	DeviceID uint `gorm:"primaryKey;autoIncrement:false;index" json:"device_id"`
}

func (DevicePerm) TableName() string {
	return "devices_perms"
}

// PortPerm grants a user ownership of a port.
type PortPerm struct {
	UserID uint `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PortID uint `gorm:"primaryKey;autoIncrement:false;index" json:"port_id"`
}

func (PortPerm) TableName() string {
	return "ports_perms"
}

// BillPerm grants a user ownership of a bill.
type BillPerm struct {
	UserID uint `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	BillID uint `gorm:"primaryKey;autoIncrement:false;index" json:"bill_id"`
}

func (BillPerm) TableName() string {
	return "bill_perms"
}
