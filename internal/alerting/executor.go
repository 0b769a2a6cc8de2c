package alerting

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/errors"
	"github.com/faultwatch/faultwatch/internal/faults"
	"github.com/faultwatch/faultwatch/internal/logger"
	"github.com/faultwatch/faultwatch/internal/querybuilder"
)

// ipColumn holds addresses that queries may return in packed binary form.
const ipColumn = "ip"

// QueryExecutor compiles a rule for one device and returns its fault rows.
type QueryExecutor struct {
	runner  repository.RuleQueryRunner
	macros  *MacroExpander
	events  EventLogger
	log     logger.Logger
	timeout time.Duration
}

// NewQueryExecutor creates a QueryExecutor. A zero timeout leaves queries
// bounded only by the caller's context.
func NewQueryExecutor(runner repository.RuleQueryRunner, macros *MacroExpander, events EventLogger, log logger.Logger, timeout time.Duration) *QueryExecutor {
	return &QueryExecutor{
		runner:  runner,
		macros:  macros,
		events:  events,
		log:     log,
		timeout: timeout,
	}
}

// Compile returns the executable SQL of rule and its arguments for deviceID.
// Raw rule SQL receives the device id at every placeholder.
func (e *QueryExecutor) Compile(rule *entities.AlertRule, deviceID uint) (string, []any, error) {
	var sql string
	var args []any
	if strings.TrimSpace(rule.Query) != "" {
		sql = rule.Query
	} else {
		if strings.TrimSpace(rule.Builder) == "" {
			return "", nil, compileError(rule, "rule has neither query nor builder")
		}
		b, err := querybuilder.Parse([]byte(rule.Builder))
		if err != nil {
			return "", nil, compileError(rule, "%v", err)
		}
		q := b.ToSQL()
		sql, args = q.SQL, q.Bind(deviceID)
	}

	expanded, err := e.macros.Expand(sql)
	if err != nil {
		return "", nil, err
	}

	marks := countPlaceholders(expanded)
	if args == nil {
		args = make([]any, marks)
		for i := range args {
			args[i] = deviceID
		}
	} else if marks != len(args) {
		return "", nil, compileError(rule, "macros introduced %d extra placeholder(s)", marks-len(args))
	}
	return expanded, args, nil
}

// Execute runs rule against deviceID. A query that matches nothing returns
// an empty set and no error.
func (e *QueryExecutor) Execute(ctx context.Context, rule *entities.AlertRule, deviceID uint) (faults.Set, error) {
	sql, args, err := e.Compile(rule, deviceID)
	if err != nil {
		e.reportFailure(rule, deviceID, err)
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	rows, err := e.runner.RunRuleQuery(ctx, sql, args...)
	if err != nil {
		err = errors.Newf("%w: %w", ErrQueryFailed, err).
			Component(componentName).
			Category(errors.CategoryQuery).
			Context("rule_id", rule.ID).
			Context("device_id", deviceID).
			Build()
		e.reportFailure(rule, deviceID, err)
		return nil, err
	}

	for _, row := range rows {
		normalizeIP(row)
	}
	return rows, nil
}

func (e *QueryExecutor) reportFailure(rule *entities.AlertRule, deviceID uint, err error) {
	e.log.Error("alert rule evaluation failed",
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.String("rule_name", rule.Name),
		logger.Uint64("device_id", uint64(deviceID)),
		logger.Error(err))
	e.events.Log(deviceID,
		fmt.Sprintf("Error in alert rule %s (%d): %v", rule.Name, rule.ID, err),
		entities.SeverityLevelError)
}

func compileError(rule *entities.AlertRule, format string, args ...any) error {
	return errors.Newf("%w: %s", ErrRuleCompile, fmt.Sprintf(format, args...)).
		Component(componentName).
		Category(errors.CategoryConfiguration).
		Context("rule_id", rule.ID).
		Build()
}

// countPlaceholders counts ? marks outside quoted literals and identifiers.
func countPlaceholders(sql string) int {
	count := 0
	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			if c == '\\' && quote != '`' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '?':
			count++
		}
	}
	return count
}

// normalizeIP rewrites a packed IPv4 or IPv6 address in the ip column to
// its textual form.
func normalizeIP(row faults.Row) {
	v, ok := row.Get(ipColumn)
	if !ok || v.Kind() != faults.KindString {
		return
	}
	raw := v.Bytes()
	if len(raw) != 4 && len(raw) != 16 {
		return
	}
	if _, err := netip.ParseAddr(string(raw)); err == nil {
		return
	}
	addr, ok := netip.AddrFromSlice(raw)
	if !ok {
		return
	}
	row.Set(ipColumn, faults.String(addr.String()))
}
