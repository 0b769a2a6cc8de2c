package querybuilder

import (
	"fmt"
	"strings"
)

// arityList marks operators taking one or more values.
const arityList = -1

// likeEscape is the LIKE escape character. A backslash would need different
// quoting in MySQL and SQLite.
const likeEscape = "!"

type operator struct {
	arity   int
	compile func(field string, values []any) (string, []any)
}

func comparison(sqlOp string) operator {
	return operator{arity: 1, compile: func(field string, v []any) (string, []any) {
		return fmt.Sprintf("%s %s ?", field, sqlOp), v[:1]
	}}
}

func constant(sqlTail string) operator {
	return operator{arity: 0, compile: func(field string, _ []any) (string, []any) {
		return field + " " + sqlTail, nil
	}}
}

func list(sqlOp string) operator {
	return operator{arity: arityList, compile: func(field string, v []any) (string, []any) {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(v)), ",")
		return fmt.Sprintf("%s %s (%s)", field, sqlOp, marks), v
	}}
}

func between(sqlOp string) operator {
	return operator{arity: 2, compile: func(field string, v []any) (string, []any) {
		return fmt.Sprintf("%s %s ? AND ?", field, sqlOp), v[:2]
	}}
}

func like(sqlOp, prefix, suffix string) operator {
	return operator{arity: 1, compile: func(field string, v []any) (string, []any) {
		pattern := prefix + escapeLike(fmt.Sprint(v[0])) + suffix
		return fmt.Sprintf("%s %s ? ESCAPE '%s'", field, sqlOp, likeEscape), []any{pattern}
	}}
}

var likeEscaper = strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var operators = map[string]operator{
	"equal":            comparison("="),
	"not_equal":        comparison("!="),
	"less":             comparison("<"),
	"less_or_equal":    comparison("<="),
	"greater":          comparison(">"),
	"greater_or_equal": comparison(">="),
	"regex":            comparison("REGEXP"),
	"not_regex":        comparison("NOT REGEXP"),
	"in":               list("IN"),
	"not_in":           list("NOT IN"),
	"between":          between("BETWEEN"),
	"not_between":      between("NOT BETWEEN"),
	"begins_with":      like("LIKE", "", "%"),
	"not_begins_with":  like("NOT LIKE", "", "%"),
	"contains":         like("LIKE", "%", "%"),
	"not_contains":     like("NOT LIKE", "%", "%"),
	"ends_with":        like("LIKE", "%", ""),
	"not_ends_with":    like("NOT LIKE", "%", ""),
	"is_empty":         constant("= ''"),
	"is_not_empty":     constant("!= ''"),
	"is_null":          constant("IS NULL"),
	"is_not_null":      constant("IS NOT NULL"),
}
