package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/faults"
	"github.com/faultwatch/faultwatch/internal/testutil"
)

func TestRuleQueryRunner_RunRuleQuery(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	require.NoError(t, db.Create(&entities.Device{DeviceID: 1, Hostname: "core1", SysName: "core1.example.net"}).Error)
	require.NoError(t, db.Create(&[]entities.Port{
		{PortID: 11, DeviceID: 1, IfName: "eth0", IfOperStatus: "down", IfAdminStatus: "up"},
		{PortID: 12, DeviceID: 1, IfName: "eth1", IfOperStatus: "up", IfAdminStatus: "up"},
		{PortID: 13, DeviceID: 1, IfName: "eth2", IfOperStatus: "down", IfAdminStatus: "up"},
	}).Error)
	runner := NewRuleQueryRunner(db)
	ctx := t.Context()

	t.Run("rows keep column order", func(t *testing.T) {
		set, err := runner.RunRuleQuery(ctx,
			"SELECT ports.port_id, ports.device_id, ports.ifName FROM ports WHERE ports.device_id = ? AND ports.ifOperStatus = ? ORDER BY ports.port_id",
			1, "down")
		require.NoError(t, err)
		require.Len(t, set, 2)
		assert.Equal(t, []string{"port_id", "device_id", "ifName"}, set[0].Names())

		id, ok := set[1].Int64("port_id")
		require.True(t, ok)
		assert.Equal(t, int64(13), id)
		name, _ := set[0].Get("ifName")
		assert.Equal(t, "eth0", name.String())
	})

	t.Run("duplicate columns keep the last value", func(t *testing.T) {
		set, err := runner.RunRuleQuery(ctx,
			"SELECT devices.device_id, devices.hostname AS label, ports.ifName AS label FROM devices, ports WHERE devices.device_id = ports.device_id AND ports.port_id = ?",
			12)
		require.NoError(t, err)
		require.Len(t, set, 1)
		assert.Equal(t, []string{"device_id", "label"}, set[0].Names())
		label, _ := set[0].Get("label")
		assert.Equal(t, "eth1", label.String())
	})

	t.Run("null values", func(t *testing.T) {
		set, err := runner.RunRuleQuery(ctx, "SELECT devices.device_id, devices.location_id FROM devices WHERE devices.device_id = ?", 1)
		require.NoError(t, err)
		require.Len(t, set, 1)
		loc, ok := set[0].Get("location_id")
		require.True(t, ok)
		assert.True(t, loc.IsNull())
	})

	t.Run("no match yields empty set", func(t *testing.T) {
		set, err := runner.RunRuleQuery(ctx, "SELECT * FROM ports WHERE ports.device_id = ?", 99)
		require.NoError(t, err)
		assert.NotNil(t, set)
		assert.Empty(t, set)
	})

	t.Run("broken sql", func(t *testing.T) {
		_, err := runner.RunRuleQuery(ctx, "SELECT * FROM no_such_table")
		require.Error(t, err)
	})

	t.Run("identity keys from result", func(t *testing.T) {
		set, err := runner.RunRuleQuery(ctx, "SELECT * FROM ports WHERE ports.port_id = ?", 11)
		require.NoError(t, err)
		require.Len(t, set, 1)
		assert.Equal(t, "11|1", faults.IdentityKey(set[0]))
	})
}

func TestEventlogRepository(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewEventlogRepository(db)
	ctx := t.Context()

	require.NoError(t, repo.Log(ctx, &entities.Eventlog{DeviceID: 1, Type: "alert", Message: "first", Severity: entities.SeverityLevelError}))
	require.NoError(t, repo.Log(ctx, &entities.Eventlog{DeviceID: 1, Type: "system", Message: "other"}))
	require.NoError(t, repo.Log(ctx, &entities.Eventlog{DeviceID: 2, Type: "alert", Message: "second"}))

	entries, err := repo.List(ctx, EventlogFilter{Type: "alert"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Message, "newest first")
	assert.False(t, entries[1].Datetime.IsZero())

	entries, err = repo.List(ctx, EventlogFilter{DeviceID: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "other", entries[0].Message)
}
