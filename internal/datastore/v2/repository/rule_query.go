package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/faultwatch/faultwatch/internal/faults"
)

// RuleQueryRunner executes compiled rule SQL and returns the fault rows.
type RuleQueryRunner interface {
	// RunRuleQuery runs query with args bound to its ? placeholders. A query
	// that matches nothing returns an empty, non-nil set.
	RunRuleQuery(ctx context.Context, query string, args ...any) (faults.Set, error)
}

type ruleQueryRunner struct {
	db *gorm.DB
}

// NewRuleQueryRunner creates a RuleQueryRunner on db.
func NewRuleQueryRunner(db *gorm.DB) RuleQueryRunner {
	return &ruleQueryRunner{db: db}
}

func (r *ruleQueryRunner) RunRuleQuery(ctx context.Context, query string, args ...any) (faults.Set, error) {
	// The driver binds args, so ? inside quoted literals is left alone.
	rows, err := r.db.WithContext(ctx).Statement.ConnPool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read rule query columns: %w", err)
	}

	set := faults.Set{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan rule query row: %w", err)
		}

		row := make(faults.Row, 0, len(columns))
		for i, name := range columns {
			// SELECT * over joins repeats column names; the last value wins.
			row = row.Set(name, faults.ValueOf(values[i]))
		}
		set = append(set, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return set, nil
}
