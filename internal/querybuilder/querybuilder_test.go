package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, doc string) Query {
	t.Helper()
	b, err := Parse([]byte(doc))
	require.NoError(t, err)
	return b.ToSQL()
}

func TestToSQL_SingleTable(t *testing.T) {
	q := compile(t, `{"condition":"AND","rules":[
		{"field":"devices.status","operator":"equal","value":0},
		{"field":"devices.hostname","operator":"begins_with","value":"core_"}
	]}`)

	assert.Equal(t,
		"SELECT * FROM devices WHERE (devices.device_id = ?) AND (devices.status = ? AND devices.hostname LIKE ? ESCAPE '!')",
		q.SQL)
	assert.Equal(t, []any{DeviceID, int64(0), "core!_%"}, q.Args)
	assert.Equal(t, []any{uint(7), int64(0), "core!_%"}, q.Bind(7))
}

func TestToSQL_JoinsReferencedTables(t *testing.T) {
	q := compile(t, `{"condition":"AND","rules":[
		{"field":"ports.ifOperStatus","operator":"equal","value":"down"},
		{"field":"ports.ifAdminStatus","operator":"equal","value":"up"},
		{"field":"sensors.sensor_current","operator":"greater","value":80.5}
	]}`)

	assert.Equal(t,
		"SELECT * FROM devices,ports,sensors WHERE (devices.device_id = ? AND devices.device_id = ports.device_id AND devices.device_id = sensors.device_id)"+
			" AND (ports.ifOperStatus = ? AND ports.ifAdminStatus = ? AND sensors.sensor_current > ?)",
		q.SQL)
	assert.Equal(t, []any{DeviceID, "down", "up", 80.5}, q.Args)
}

func TestToSQL_NestedGroups(t *testing.T) {
	q := compile(t, `{"condition":"OR","rules":[
		{"field":"devices.status","operator":"equal","value":0},
		{"condition":"AND","not":true,"rules":[
			{"field":"devices.os","operator":"in","value":["ios","iosxe"]},
			{"field":"devices.uptime","operator":"between","value":[0, 300]}
		]}
	]}`)

	assert.Equal(t,
		"SELECT * FROM devices WHERE (devices.device_id = ?) AND (devices.status = ? OR NOT (devices.os IN (?,?) AND devices.uptime BETWEEN ? AND ?))",
		q.SQL)
	assert.Equal(t, []any{DeviceID, int64(0), "ios", "iosxe", int64(0), int64(300)}, q.Args)
}

func TestToSQL_Macros(t *testing.T) {
	b, err := Parse([]byte(`{"condition":"AND","rules":[
		{"field":"macros.device_down","operator":"equal","value":1},
		{"field":"macros.device_up","operator":"equal","value":false},
		{"field":"macros.device_down","operator":"not_equal","value":"1"}
	]}`))
	require.NoError(t, err)

	q := b.ToSQL()
	assert.Equal(t,
		"SELECT * FROM devices WHERE (devices.device_id = ?) AND (%macros.device_down = 1 AND %macros.device_up = 0 AND %macros.device_down != 1)",
		q.SQL)
	assert.Equal(t, []any{DeviceID}, q.Args)
	assert.Equal(t, []string{"devices"}, b.Tables())
}

func TestToSQL_Operators(t *testing.T) {
	tests := []struct {
		operator string
		value    string
		wantSQL  string
		wantArgs []any
	}{
		{"not_equal", `"x"`, "devices.f != ?", []any{"x"}},
		{"less", `5`, "devices.f < ?", []any{int64(5)}},
		{"less_or_equal", `5`, "devices.f <= ?", []any{int64(5)}},
		{"greater_or_equal", `5`, "devices.f >= ?", []any{int64(5)}},
		{"not_in", `[1,2,3]`, "devices.f NOT IN (?,?,?)", []any{int64(1), int64(2), int64(3)}},
		{"in", `"solo"`, "devices.f IN (?)", []any{"solo"}},
		{"not_between", `[1,9]`, "devices.f NOT BETWEEN ? AND ?", []any{int64(1), int64(9)}},
		{"not_begins_with", `"a"`, "devices.f NOT LIKE ? ESCAPE '!'", []any{"a%"}},
		{"contains", `"50%"`, "devices.f LIKE ? ESCAPE '!'", []any{"%50!%%"}},
		{"not_contains", `"x!"`, "devices.f NOT LIKE ? ESCAPE '!'", []any{"%x!!%"}},
		{"ends_with", `".net"`, "devices.f LIKE ? ESCAPE '!'", []any{"%.net"}},
		{"not_ends_with", `".net"`, "devices.f NOT LIKE ? ESCAPE '!'", []any{"%.net"}},
		{"is_empty", `null`, "devices.f = ''", nil},
		{"is_not_empty", `null`, "devices.f != ''", nil},
		{"is_null", `null`, "devices.f IS NULL", nil},
		{"is_not_null", `null`, "devices.f IS NOT NULL", nil},
		{"regex", `"^sw[0-9]+"`, "devices.f REGEXP ?", []any{"^sw[0-9]+"}},
		{"not_regex", `"^sw"`, "devices.f NOT REGEXP ?", []any{"^sw"}},
		{"equal", `true`, "devices.f = ?", []any{int64(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			q := compile(t, `{"rules":[{"field":"devices.f","operator":"`+tt.operator+`","value":`+tt.value+`}]}`)
			assert.Equal(t, "SELECT * FROM devices WHERE (devices.device_id = ?) AND ("+tt.wantSQL+")", q.SQL)
			assert.Equal(t, append([]any{DeviceID}, tt.wantArgs...), q.Args)
		})
	}
}

func TestToSQL_EmptyGroupsAreSkipped(t *testing.T) {
	q := compile(t, `{"condition":"AND","rules":[
		{"condition":"OR","rules":[]},
		{"field":"devices.status","operator":"equal","value":0}
	]}`)
	assert.Equal(t, "SELECT * FROM devices WHERE (devices.device_id = ?) AND (devices.status = ?)", q.SQL)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed json", `{"rules":[`},
		{"not an object", `[1,2]`},
		{"no rules", `{"condition":"AND","rules":[]}`},
		{"unknown condition", `{"condition":"XOR","rules":[{"field":"devices.a","operator":"equal","value":1}]}`},
		{"unknown operator", `{"rules":[{"field":"devices.a","operator":"near","value":1}]}`},
		{"field without table", `{"rules":[{"field":"status","operator":"equal","value":1}]}`},
		{"injected field", `{"rules":[{"field":"devices.a;DROP TABLE x","operator":"equal","value":1}]}`},
		{"injected table", `{"rules":[{"field":"devices d, users.a","operator":"equal","value":1}]}`},
		{"missing value", `{"rules":[{"field":"devices.a","operator":"equal"}]}`},
		{"between needs two", `{"rules":[{"field":"devices.a","operator":"between","value":[1]}]}`},
		{"empty in", `{"rules":[{"field":"devices.a","operator":"in","value":[]}]}`},
		{"object value", `{"rules":[{"field":"devices.a","operator":"equal","value":{"x":1}}]}`},
		{"macro comparison", `{"rules":[{"field":"macros.load","operator":"greater","value":1}]}`},
		{"rules not array", `{"rules":"devices.a = 1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.ErrorIs(t, err, ErrInvalidBuilder)
		})
	}
}
