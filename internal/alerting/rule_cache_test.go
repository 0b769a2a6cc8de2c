package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
)

// countingSelector serves fixed rule sets and counts lookups per device.
type countingSelector struct {
	mu    sync.Mutex
	rules map[uint][]entities.AlertRule
	err   error
	calls map[uint]int
}

func newCountingSelector(rules map[uint][]entities.AlertRule) *countingSelector {
	return &countingSelector{rules: rules, calls: make(map[uint]int)}
}

func (s *countingSelector) GetRulesForDevice(_ context.Context, deviceID uint) ([]entities.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[deviceID]++
	if s.err != nil {
		return nil, s.err
	}
	return s.rules[deviceID], nil
}

func (s *countingSelector) callCount(deviceID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[deviceID]
}

func TestRuleCache_IsRuleValid(t *testing.T) {
	sel := newCountingSelector(map[uint][]entities.AlertRule{
		1: {{ID: 10}, {ID: 11}},
		2: {{ID: 10}},
	})
	c := NewRuleCache(sel, 0)
	ctx := t.Context()

	tests := []struct {
		device, rule uint
		want         bool
	}{
		{1, 10, true},
		{1, 11, true},
		{1, 12, false},
		{2, 10, true},
		{2, 11, false},
		{3, 10, false},
	}
	for _, tt := range tests {
		got, err := c.IsRuleValid(ctx, tt.device, tt.rule)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "device %d rule %d", tt.device, tt.rule)
	}

	assert.Equal(t, 1, sel.callCount(1), "rule set is selected once per device")
	assert.Equal(t, 1, sel.callCount(2))
	assert.Equal(t, 1, sel.callCount(3))
	assert.Equal(t, 3, c.Len())
}

func TestRuleCache_Prime(t *testing.T) {
	sel := newCountingSelector(nil)
	c := NewRuleCache(sel, 0)

	ids := c.Prime(7, []entities.AlertRule{{ID: 3}, {ID: 4}})
	assert.Len(t, ids, 2)

	ok, err := c.IsRuleValid(t.Context(), 7, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, sel.callCount(7))
}

func TestRuleCache_InvalidateAndFlush(t *testing.T) {
	sel := newCountingSelector(map[uint][]entities.AlertRule{1: {{ID: 1}}, 2: {{ID: 2}}})
	c := NewRuleCache(sel, 0)
	ctx := t.Context()

	for _, id := range []uint{1, 2} {
		_, err := c.IsRuleValid(ctx, id, id)
		require.NoError(t, err)
	}

	c.Invalidate(1)
	assert.Equal(t, 1, c.Len())
	_, err := c.IsRuleValid(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, sel.callCount(1))
	assert.Equal(t, 1, sel.callCount(2))

	c.Flush()
	assert.Zero(t, c.Len())
	_, err = c.IsRuleValid(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sel.callCount(2))
}

func TestRuleCache_Expiry(t *testing.T) {
	sel := newCountingSelector(map[uint][]entities.AlertRule{1: {{ID: 1}}})
	c := NewRuleCache(sel, 20*time.Millisecond)
	ctx := t.Context()

	_, err := c.IsRuleValid(ctx, 1, 1)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, 1, c.Len(), "expired entries stay counted until pruned")
	c.Prune()
	assert.Zero(t, c.Len())

	_, err = c.IsRuleValid(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, sel.callCount(1))
}

func TestRuleCache_SelectorError(t *testing.T) {
	sel := newCountingSelector(nil)
	sel.err = errors.New("database is locked")
	c := NewRuleCache(sel, 0)

	ok, err := c.IsRuleValid(t.Context(), 1, 1)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "failures are not cached")
}
