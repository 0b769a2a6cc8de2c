//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/testutil/containers"
)

// MySQL test container shared across all tests in this package
var mysqlContainer *containers.MySQLContainer

// TestMain sets up the MySQL container for all tests in this package
func TestMain(m *testing.M) {
	var err error
	mysqlContainer, err = containers.NewMySQLContainer(context.Background(), nil)
	if err != nil {
		panic("failed to create MySQL container: " + err.Error())
	}

	code := m.Run()

	if err := mysqlContainer.Terminate(context.Background()); err != nil {
		panic("failed to terminate MySQL container: " + err.Error())
	}
	os.Exit(code)
}

// resetDatabase gives each test empty tables.
func resetDatabase(t *testing.T) {
	t.Helper()
	require.NoError(t, mysqlContainer.Reset(t.Context()), "failed to reset database")
}

func uintPtr(v uint) *uint { return &v }

func TestMySQL_HealthCheck(t *testing.T) {
	require.NoError(t, mysqlContainer.HealthCheck(t.Context()))
}

func TestMySQL_GetRulesForDevice(t *testing.T) {
	resetDatabase(t)
	db := mysqlContainer.DB()
	ctx := t.Context()

	require.NoError(t, db.Create(&[]entities.Device{
		{DeviceID: 1, Hostname: "core1", LocationID: uintPtr(100)},
		{DeviceID: 2, Hostname: "edge1"},
	}).Error)
	require.NoError(t, db.Create(&entities.DeviceGroupDevice{DeviceGroupID: 10, DeviceID: 1}).Error)

	rules := repository.NewAlertRuleRepository(db)
	global := &entities.AlertRule{Name: "global", Severity: entities.SeverityCritical, Query: "SELECT 1"}
	group := &entities.AlertRule{Name: "group", Severity: entities.SeverityCritical, Query: "SELECT 1",
		GroupMaps: []entities.AlertGroupMap{{GroupID: 10}}}
	notLocation := &entities.AlertRule{Name: "not location", Severity: entities.SeverityCritical, Query: "SELECT 1",
		InvertMap: true, LocationMaps: []entities.AlertLocationMap{{LocationID: 100}}}
	for _, r := range []*entities.AlertRule{global, group, notLocation} {
		require.NoError(t, db.Create(r).Error)
	}

	got, err := rules.GetRulesForDevice(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, global.ID, got[0].ID)
	assert.Equal(t, group.ID, got[1].ID)

	got, err = rules.GetRulesForDevice(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, global.ID, got[0].ID)
	assert.Equal(t, notLocation.ID, got[1].ID)
}

func TestMySQL_RecordTransitionRollback(t *testing.T) {
	resetDatabase(t)
	db := mysqlContainer.DB()
	alerts := repository.NewAlertRepository(db)

	err := alerts.RecordTransition(t.Context(),
		&entities.AlertLog{DeviceID: 1, RuleID: 1, State: entities.StateWorse, TimeLogged: time.Now().UTC()},
		repository.AlertUpdate{State: entities.StateWorse, Open: true})
	require.ErrorIs(t, err, repository.ErrAlertNotFound)

	var count int64
	require.NoError(t, db.Model(&entities.AlertLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMySQL_DeleteLogsBefore(t *testing.T) {
	resetDatabase(t)
	db := mysqlContainer.DB()
	alerts := repository.NewAlertRepository(db)

	old := time.Now().UTC().AddDate(0, 0, -60).Truncate(time.Second)
	for i := range 3 {
		require.NoError(t, db.Create(&entities.AlertLog{
			DeviceID: 1, RuleID: 1, State: entities.StateActive, TimeLogged: old.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	deleted, err := alerts.DeleteLogsBefore(t.Context(), time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	latest, err := alerts.LatestLog(t.Context(), 1, 1)
	require.NoError(t, err)
	assert.True(t, latest.TimeLogged.Equal(old.Add(2*time.Minute)))
}

func TestMySQL_MaintenanceStatus(t *testing.T) {
	resetDatabase(t)
	db := mysqlContainer.DB()
	require.NoError(t, db.Create(&entities.Device{DeviceID: 1, Hostname: "core1", LocationID: uintPtr(100)}).Error)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.Create(&entities.AlertSchedule{
		Title: "location window", Start: now.Add(-time.Hour), End: now.Add(time.Hour),
		Behavior: entities.MaintenanceMuteAlerts,
		Items:    []entities.AlertSchedulable{{SchedulableID: 100, SchedulableType: entities.SchedulableLocation}},
	}).Error)

	status, err := repository.NewDeviceRepository(db).MaintenanceStatus(t.Context(), 1, now)
	require.NoError(t, err)
	assert.Equal(t, entities.MaintenanceMuteAlerts, status)
}

func TestMySQL_RunRuleQuery(t *testing.T) {
	resetDatabase(t)
	db := mysqlContainer.DB()
	require.NoError(t, db.Create(&entities.Device{DeviceID: 1, Hostname: "core1"}).Error)
	require.NoError(t, db.Model(&entities.Device{}).Where("device_id = ?", 1).Update("status", false).Error)

	set, err := repository.NewRuleQueryRunner(db).RunRuleQuery(t.Context(),
		"SELECT * FROM devices WHERE (devices.device_id = ?) AND devices.status = 0", 1)
	require.NoError(t, err)
	require.Len(t, set, 1)
	id, ok := set[0].Int64("device_id")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestMySQL_ConcurrentOpenAlerts(t *testing.T) {
	resetDatabase(t)
	db := mysqlContainer.DB()
	alerts := repository.NewAlertRepository(db)

	devices := []uint{1, 2, 3, 4}
	g, ctx := errgroup.WithContext(t.Context())
	for _, id := range devices {
		g.Go(func() error {
			return alerts.OpenAlert(ctx,
				&entities.Alert{DeviceID: id, RuleID: 7, State: entities.StateActive, Open: true},
				&entities.AlertLog{DeviceID: id, RuleID: 7, State: entities.StateActive, TimeLogged: time.Now().UTC()})
		})
	}
	require.NoError(t, g.Wait())

	var alertCount, logCount int64
	require.NoError(t, db.Model(&entities.Alert{}).Count(&alertCount).Error)
	require.NoError(t, db.Model(&entities.AlertLog{}).Count(&logCount).Error)
	assert.Equal(t, int64(len(devices)), alertCount)
	assert.Equal(t, int64(len(devices)), logCount)
}
