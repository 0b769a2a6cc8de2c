package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/errors"
	"github.com/faultwatch/faultwatch/internal/faults"
)

func newTestExecutor(runner *fakeQueryRunner, events *fakeEvents, macros map[string]string) *QueryExecutor {
	return NewQueryExecutor(runner, NewMacroExpander(macros), events, testLogger(), time.Second)
}

func TestQueryExecutor_RawQueryBindsEveryPlaceholder(t *testing.T) {
	runner := &fakeQueryRunner{rows: faults.Set{}}
	exec := newTestExecutor(runner, &fakeEvents{}, map[string]string{"up": "devices.status = 1"})

	rule := &entities.AlertRule{ID: 1, Name: "raw", Query: "SELECT * FROM devices WHERE device_id = ? AND %macros.up AND hostname != '?' AND sysName NOT LIKE \"a?\" AND ? > 0"}
	rows, err := exec.Execute(t.Context(), rule, 42)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	require.Len(t, runner.calls, 1)
	assert.Equal(t,
		"SELECT * FROM devices WHERE device_id = ? AND (devices.status = 1) AND hostname != '?' AND sysName NOT LIKE \"a?\" AND ? > 0",
		runner.calls[0].SQL)
	assert.Equal(t, []any{uint(42), uint(42)}, runner.calls[0].Args)
}

func TestQueryExecutor_BuilderRule(t *testing.T) {
	runner := &fakeQueryRunner{rows: faults.Set{faults.RowOf("device_id", 9, "port_id", 3)}}
	exec := newTestExecutor(runner, &fakeEvents{}, map[string]string{"port_down": "ports.ifOperStatus = 'down'"})

	rule := &entities.AlertRule{ID: 2, Name: "builder", Builder: `{"condition":"AND","rules":[
		{"field":"macros.port_down","operator":"equal","value":1},
		{"field":"ports.ifAlias","operator":"contains","value":"uplink"}
	]}`}
	rows, err := exec.Execute(t.Context(), rule, 9)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.Len(t, runner.calls, 1)
	assert.Equal(t,
		"SELECT * FROM devices,ports WHERE (devices.device_id = ? AND devices.device_id = ports.device_id)"+
			" AND ((ports.ifOperStatus = 'down') = 1 AND ports.ifAlias LIKE ? ESCAPE '!')",
		runner.calls[0].SQL)
	assert.Equal(t, []any{uint(9), "%uplink%"}, runner.calls[0].Args)
}

func TestQueryExecutor_CompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		rule   entities.AlertRule
		macros map[string]string
		want   error
	}{
		{"no query or builder", entities.AlertRule{ID: 3, Name: "empty"}, nil, ErrRuleCompile},
		{"invalid builder", entities.AlertRule{ID: 4, Name: "bad", Builder: `{"rules":[]}`}, nil, ErrRuleCompile},
		{"unknown macro", entities.AlertRule{ID: 5, Name: "macro", Query: "SELECT %macros.nope"}, nil, ErrMacroExpansion},
		{"macro adds placeholder", entities.AlertRule{ID: 6, Name: "mark",
			Builder: `{"rules":[{"field":"macros.m","operator":"equal","value":1}]}`},
			map[string]string{"m": "devices.device_id = ?"}, ErrRuleCompile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeQueryRunner{}
			events := &fakeEvents{}
			exec := newTestExecutor(runner, events, tt.macros)

			_, err := exec.Execute(t.Context(), &tt.rule, 1)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
			assert.Empty(t, runner.calls, "nothing is executed")
			require.Len(t, events.all(), 1)
			assert.Equal(t, entities.SeverityLevelError, events.all()[0].Severity)
		})
	}
}

func TestQueryExecutor_QueryFailure(t *testing.T) {
	runner := &fakeQueryRunner{err: errors.NewStd("no such table: sensors")}
	events := &fakeEvents{}
	exec := newTestExecutor(runner, events, nil)

	rule := &entities.AlertRule{ID: 7, Name: "Sensor over limit", Query: "SELECT * FROM sensors WHERE device_id = ?"}
	rows, err := exec.Execute(t.Context(), rule, 11)
	require.ErrorIs(t, err, ErrQueryFailed)
	assert.Nil(t, rows)
	assert.Equal(t, errors.CategoryQuery, errors.CategoryOf(err))

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, uint(11), got[0].DeviceID)
	assert.Equal(t, entities.SeverityLevelError, got[0].Severity)
	assert.Contains(t, got[0].Message, "Error in alert rule Sensor over limit (7): ")
	assert.Contains(t, got[0].Message, "no such table: sensors")
}

func TestQueryExecutor_Timeout(t *testing.T) {
	runner := &blockingRunner{}
	exec := NewQueryExecutor(runner, NewMacroExpander(nil), &fakeEvents{}, testLogger(), 10*time.Millisecond)

	_, err := exec.Execute(t.Context(), &entities.AlertRule{ID: 8, Query: "SELECT 1"}, 1)
	require.ErrorIs(t, err, ErrQueryFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingRunner struct{}

func (blockingRunner) RunRuleQuery(ctx context.Context, _ string, _ ...any) (faults.Set, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestQueryExecutor_NormalizesIPColumn(t *testing.T) {
	runner := &fakeQueryRunner{rows: faults.Set{
		faults.RowOf("id", 1, "ip", []byte{192, 0, 2, 10}),
		faults.RowOf("id", 2, "ip", []byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}),
		faults.RowOf("id", 3, "ip", "10.1.1.1"),
		faults.RowOf("id", 4, "ip", "1::2"),
		faults.RowOf("id", 5, "ip", nil),
		faults.RowOf("id", 6, "address", []byte{192, 0, 2, 10}),
	}}
	exec := newTestExecutor(runner, &fakeEvents{}, nil)

	rows, err := exec.Execute(t.Context(), &entities.AlertRule{ID: 9, Query: "SELECT * FROM ipv4_addresses"}, 1)
	require.NoError(t, err)

	ip := func(i int, column string) string {
		v, ok := rows[i].Get(column)
		require.True(t, ok)
		return v.String()
	}
	assert.Equal(t, "192.0.2.10", ip(0, "ip"))
	assert.Equal(t, "2001:db8::1", ip(1, "ip"))
	assert.Equal(t, "10.1.1.1", ip(2, "ip"))
	assert.Equal(t, "1::2", ip(3, "ip"))
	assert.Empty(t, ip(4, "ip"))
	assert.Equal(t, string([]byte{192, 0, 2, 10}), ip(5, "address"), "only the ip column is rewritten")
}

func TestCountPlaceholders(t *testing.T) {
	tests := []struct {
		sql  string
		want int
	}{
		{"SELECT 1", 0},
		{"a = ? AND b = ?", 2},
		{"a = '?' AND b = ?", 1},
		{`a = 'it''s ?' AND b = ?`, 1},
		{`a = 'x\'?' AND b = ?`, 1},
		{"`we?ird` = ?", 1},
		{`a = "?"`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, countPlaceholders(tt.sql))
		})
	}
}
