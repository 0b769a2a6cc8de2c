package alerting

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacroExpander_Expand(t *testing.T) {
	m := NewMacroExpander(map[string]string{
		"device":        "devices.device_id",
		"device_up":     "devices.status = 1 AND %macros.device_usable",
		"device_usable": "devices.disabled = 0 AND devices.ignore = 0",
		"bad name":      "never used",
		"now":           "NOW()",
	})

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"no macros", "SELECT 1", "SELECT 1"},
		{"single", "SELECT * FROM devices WHERE %macros.now > 0", "SELECT * FROM devices WHERE (NOW()) > 0"},
		{"longest name first", "%macros.device_up = 1 AND %macros.device = ?",
			"(devices.status = 1 AND (devices.disabled = 0 AND devices.ignore = 0)) = 1 AND (devices.device_id) = ?"},
		{"repeated", "%macros.now, %macros.now", "(NOW()), (NOW())"},
		{"prefix of inserted name", "%macros.device_up", "(devices.status = 1 AND (devices.disabled = 0 AND devices.ignore = 0))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Expand(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMacroExpander_IgnoresNamesWithSpaces(t *testing.T) {
	m := NewMacroExpander(map[string]string{"bad name": "1"})
	_, err := m.Expand("SELECT %macros.bad name")
	require.ErrorIs(t, err, ErrUnknownMacro)
	require.ErrorIs(t, err, ErrMacroExpansion)
}

func TestMacroExpander_Cycle(t *testing.T) {
	m := NewMacroExpander(map[string]string{
		"a":    "%macros.b + 1",
		"b":    "%macros.c",
		"c":    "%macros.a",
		"safe": "1",
	})

	_, err := m.Expand("SELECT %macros.a")
	require.ErrorIs(t, err, ErrMacroCycle)
	require.ErrorIs(t, err, ErrMacroExpansion)
	assert.Contains(t, err.Error(), "a -> b -> c -> a")

	// A cycle the query never reaches does not matter.
	got, err := m.Expand("SELECT %macros.safe")
	require.NoError(t, err)
	assert.Equal(t, "SELECT (1)", got)
}

func TestMacroExpander_SelfReference(t *testing.T) {
	m := NewMacroExpander(map[string]string{"loop": "%macros.loop"})
	_, err := m.Expand("%macros.loop")
	require.ErrorIs(t, err, ErrMacroCycle)
}

func TestMacroExpander_Unknown(t *testing.T) {
	m := NewMacroExpander(map[string]string{"known": "%macros.missing_one"})
	_, err := m.Expand("SELECT %macros.known")
	require.ErrorIs(t, err, ErrUnknownMacro)
	assert.Contains(t, err.Error(), "%macros.missing_one")
}

func TestMacroExpander_Depth(t *testing.T) {
	const levels = maxMacroPasses + 5
	macros := make(map[string]string, levels)
	for i := 1; i < levels; i++ {
		macros[fmt.Sprintf("m%02d", i)] = fmt.Sprintf("%%macros.m%02d", i+1)
	}
	macros[fmt.Sprintf("m%02d", levels)] = "1"
	m := NewMacroExpander(macros)

	_, err := m.Expand("SELECT %macros.m01")
	require.ErrorIs(t, err, ErrMacroDepth)
	require.ErrorIs(t, err, ErrMacroExpansion)

	got, err := m.Expand(fmt.Sprintf("SELECT %%macros.m%02d", levels-3))
	require.NoError(t, err)
	assert.Equal(t, "SELECT ((((1))))", got)
}
