package entities

// All returns every entity managed by migrations, in dependency order.
func All() []any {
	return []any{
		&Device{},
		&DeviceAttrib{},
		&DeviceGroupDevice{},
		&Port{},
		&User{},
		&UserRole{},
		&DevicePerm{},
		&PortPerm{},
		&BillPerm{},
		&AlertRule{},
		&AlertDeviceMap{},
		&AlertGroupMap{},
		&AlertLocationMap{},
		&Alert{},
		&AlertLog{},
		&AlertSchedule{},
		&AlertSchedulable{},
		&Eventlog{},
	}
}
