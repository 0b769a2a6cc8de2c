// Package querybuilder compiles the rule-builder JSON stored with an alert
// rule into the SQL the alerting engine executes.
//
// The JSON is the jQuery QueryBuilder rule format:
//
//	{"condition": "AND", "not": false, "rules": [
//	    {"field": "ports.ifOperStatus", "operator": "equal", "value": "down"},
//	    {"field": "macros.port_up", "operator": "equal", "value": 1},
//	    {"condition": "OR", "rules": [...]}
//	]}
//
// Compiled SQL selects from devices joined with every other referenced
// table on device_id. The first placeholder is always the device id.
package querybuilder

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/faultwatch/faultwatch/internal/errors"
)

// ErrInvalidBuilder is wrapped by every parse and compile failure.
var ErrInvalidBuilder = errors.NewStd("invalid query builder")

const (
	deviceTable = "devices"
	macroTable  = "macros"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type deviceParam struct{}

// DeviceID marks the argument slots that receive the evaluated device id.
var DeviceID = deviceParam{}

// Query is compiled SQL with its positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// Bind returns Args with every DeviceID slot replaced by deviceID.
func (q Query) Bind(deviceID uint) []any {
	args := make([]any, len(q.Args))
	for i, a := range q.Args {
		if _, ok := a.(deviceParam); ok {
			args[i] = deviceID
			continue
		}
		args[i] = a
	}
	return args
}

// Builder is a parsed rule-builder document.
type Builder struct {
	root group
}

type node interface {
	walk(fn func(r *rule))
}

type group struct {
	condition string
	not       bool
	nodes     []node
}

type rule struct {
	table    string
	column   string
	operator string
	values   []any
}

func (g *group) walk(fn func(r *rule)) {
	for _, n := range g.nodes {
		n.walk(fn)
	}
}

func (r *rule) walk(fn func(r *rule)) { fn(r) }

func (r *rule) field() string {
	return r.table + "." + r.column
}

func invalid(format string, args ...any) error {
	return errors.Newf("%w: %s", ErrInvalidBuilder, fmt.Sprintf(format, args...)).
		Component("querybuilder").
		Category(errors.CategoryConfiguration).
		Build()
}

// Parse reads a builder document. A document without any rule is invalid.
func Parse(data []byte) (*Builder, error) {
	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return nil, invalid("malformed json: %v", err)
	}
	root, err := parseGroup(obj, 0)
	if err != nil {
		return nil, err
	}
	b := &Builder{root: *root}
	count := 0
	b.root.walk(func(*rule) { count++ })
	if count == 0 {
		return nil, invalid("no rules")
	}
	return b, nil
}

// maxDepth bounds group nesting.
const maxDepth = 16

func parseGroup(obj *jason.Object, depth int) (*group, error) {
	if depth > maxDepth {
		return nil, invalid("groups nested deeper than %d", maxDepth)
	}
	fields := obj.Map()

	g := &group{condition: "AND"}
	if v, ok := fields["condition"]; ok {
		cond, err := v.String()
		if err != nil {
			return nil, invalid("condition is not a string")
		}
		switch strings.ToUpper(cond) {
		case "AND", "OR":
			g.condition = strings.ToUpper(cond)
		default:
			return nil, invalid("unknown condition %q", cond)
		}
	}
	if v, ok := fields["not"]; ok {
		not, err := v.Boolean()
		if err != nil {
			return nil, invalid("not is not a boolean")
		}
		g.not = not
	}

	if _, ok := fields["rules"]; !ok {
		return g, nil
	}
	children, err := obj.GetObjectArray("rules")
	if err != nil {
		return nil, invalid("rules is not an array of objects")
	}
	for _, child := range children {
		if _, nested := child.Map()["rules"]; nested {
			sub, err := parseGroup(child, depth+1)
			if err != nil {
				return nil, err
			}
			g.nodes = append(g.nodes, sub)
			continue
		}
		r, err := parseRule(child)
		if err != nil {
			return nil, err
		}
		g.nodes = append(g.nodes, r)
	}
	return g, nil
}

func parseRule(obj *jason.Object) (*rule, error) {
	field, err := obj.GetString("field")
	if err != nil {
		return nil, invalid("rule without field")
	}
	table, column, ok := strings.Cut(field, ".")
	if !ok || !identifierRe.MatchString(table) || !identifierRe.MatchString(column) {
		return nil, invalid("field %q is not table.column", field)
	}
	operator, err := obj.GetString("operator")
	if err != nil {
		return nil, invalid("rule %s without operator", field)
	}
	op, known := operators[operator]
	if !known {
		return nil, invalid("unknown operator %q", operator)
	}

	r := &rule{table: table, column: column, operator: operator}
	if raw, ok := obj.Map()["value"]; ok {
		r.values, err = flattenValue(raw)
		if err != nil {
			return nil, invalid("rule %s: %v", field, err)
		}
	}
	if op.arity >= 0 && len(r.values) < op.arity {
		return nil, invalid("operator %s needs %d value(s), got %d", operator, op.arity, len(r.values))
	}
	if op.arity == arityList && len(r.values) == 0 {
		return nil, invalid("operator %s needs at least one value", operator)
	}
	if table == macroTable && operator != "equal" && operator != "not_equal" {
		return nil, invalid("macro %s only supports equal and not_equal", column)
	}
	return r, nil
}

// flattenValue turns a scalar or array value into SQL arguments. Numbers
// keep their integer or float form.
func flattenValue(v *jason.Value) ([]any, error) {
	if arr, err := v.Array(); err == nil {
		out := make([]any, 0, len(arr))
		for _, item := range arr {
			scalar, err := scalarValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, scalar)
		}
		return out, nil
	}
	if v.Null() == nil {
		return nil, nil
	}
	scalar, err := scalarValue(v)
	if err != nil {
		return nil, err
	}
	return []any{scalar}, nil
}

func scalarValue(v *jason.Value) (any, error) {
	if s, err := v.String(); err == nil {
		return s, nil
	}
	if n, err := v.Number(); err == nil {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad number %s", n)
		}
		return f, nil
	}
	if b, err := v.Boolean(); err == nil {
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("value must be a string, number or boolean")
}

// Tables returns the referenced tables, devices first, in order of first use.
// Macro references are not tables.
func (b *Builder) Tables() []string {
	tables := []string{deviceTable}
	b.root.walk(func(r *rule) {
		if r.table != macroTable && !slices.Contains(tables, r.table) {
			tables = append(tables, r.table)
		}
	})
	return tables
}

// ToSQL compiles the builder. Macro references are left as %macros.<name>
// placeholders for later expansion.
func (b *Builder) ToSQL() Query {
	tables := b.Tables()

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(strings.Join(tables, ","))
	sb.WriteString(" WHERE (devices.device_id = ?")
	for _, t := range tables[1:] {
		fmt.Fprintf(&sb, " AND devices.device_id = %s.device_id", t)
	}
	sb.WriteString(")")

	args := []any{DeviceID}
	where, whereArgs := compileGroup(&b.root)
	if where != "" {
		sb.WriteString(" AND ")
		sb.WriteString(where)
		args = append(args, whereArgs...)
	}
	return Query{SQL: sb.String(), Args: args}
}

func compileGroup(g *group) (string, []any) {
	var parts []string
	var args []any
	for _, n := range g.nodes {
		var sql string
		var nodeArgs []any
		switch t := n.(type) {
		case *group:
			sql, nodeArgs = compileGroup(t)
		case *rule:
			sql, nodeArgs = compileRule(t)
		}
		if sql == "" {
			continue
		}
		parts = append(parts, sql)
		args = append(args, nodeArgs...)
	}
	if len(parts) == 0 {
		return "", nil
	}
	sql := "(" + strings.Join(parts, " "+g.condition+" ") + ")"
	if g.not {
		sql = "NOT " + sql
	}
	return sql, args
}

func compileRule(r *rule) (string, []any) {
	if r.table == macroTable {
		want := "1"
		if len(r.values) > 0 && !truthy(r.values[0]) {
			want = "0"
		}
		cmp := "="
		if r.operator == "not_equal" {
			cmp = "!="
		}
		return fmt.Sprintf("%%macros.%s %s %s", r.column, cmp, want), nil
	}
	return operators[r.operator].compile(r.field(), r.values)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(t)
		if err == nil {
			return b
		}
		n, err := strconv.ParseFloat(t, 64)
		return err == nil && n != 0
	default:
		return false
	}
}
