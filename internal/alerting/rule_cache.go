package alerting

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
)

// RuleSelector returns the enabled rules applying to a device.
type RuleSelector interface {
	GetRulesForDevice(ctx context.Context, deviceID uint) ([]entities.AlertRule, error)
}

// RuleCache memoizes the set of rule ids valid for each device.
type RuleCache struct {
	rules RuleSelector
	cache *cache.Cache
}

// NewRuleCache creates a RuleCache whose entries live for ttl. A ttl of
// zero or less keeps entries until invalidated.
func NewRuleCache(rules RuleSelector, ttl time.Duration) *RuleCache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	// No janitor goroutine; expired entries are dropped by Prune.
	return &RuleCache{rules: rules, cache: cache.New(ttl, 0)}
}

func cacheKey(deviceID uint) string {
	return strconv.FormatUint(uint64(deviceID), 10)
}

// IsRuleValid reports whether ruleID is enabled and applies to deviceID.
// The device's rule set is selected once and reused until it expires.
func (c *RuleCache) IsRuleValid(ctx context.Context, deviceID, ruleID uint) (bool, error) {
	ids, err := c.ruleIDs(ctx, deviceID)
	if err != nil {
		return false, err
	}
	_, ok := ids[ruleID]
	return ok, nil
}

func (c *RuleCache) ruleIDs(ctx context.Context, deviceID uint) (map[uint]struct{}, error) {
	if v, ok := c.cache.Get(cacheKey(deviceID)); ok {
		return v.(map[uint]struct{}), nil
	}
	rules, err := c.rules.GetRulesForDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return c.Prime(deviceID, rules), nil
}

// Prime stores an already selected rule set for deviceID.
func (c *RuleCache) Prime(deviceID uint, rules []entities.AlertRule) map[uint]struct{} {
	ids := make(map[uint]struct{}, len(rules))
	for i := range rules {
		ids[rules[i].ID] = struct{}{}
	}
	c.cache.SetDefault(cacheKey(deviceID), ids)
	return ids
}

// Invalidate drops the cached rule set of deviceID.
func (c *RuleCache) Invalidate(deviceID uint) {
	c.cache.Delete(cacheKey(deviceID))
}

// Flush drops every cached rule set, e.g. after rules were edited.
func (c *RuleCache) Flush() {
	c.cache.Flush()
}

// Prune removes expired entries.
func (c *RuleCache) Prune() {
	c.cache.DeleteExpired()
}

// Len returns the number of cached devices, including expired entries not
// yet pruned.
func (c *RuleCache) Len() int {
	return c.cache.ItemCount()
}
