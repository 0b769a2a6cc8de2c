package alerting

import (
	"fmt"
	"slices"
	"strings"

	"github.com/faultwatch/faultwatch/internal/errors"
)

// macroPrefix introduces a macro reference inside rule SQL.
const macroPrefix = "%macros."

// MacroExpander substitutes %macros.<name> references with their SQL
// fragments. Values may reference other macros.
type MacroExpander struct {
	// names in reverse lexical order, so device_up matches before device.
	names  []string
	values map[string]string
}

// NewMacroExpander builds an expander. Names containing a space are ignored.
func NewMacroExpander(macros map[string]string) *MacroExpander {
	m := &MacroExpander{values: make(map[string]string, len(macros))}
	for name, value := range macros {
		if name == "" || strings.Contains(name, " ") {
			continue
		}
		m.names = append(m.names, name)
		m.values[name] = value
	}
	slices.Sort(m.names)
	slices.Reverse(m.names)
	return m
}

// Expand returns query with every macro reference replaced by its
// parenthesised value.
func (m *MacroExpander) Expand(query string) (string, error) {
	if !strings.Contains(query, macroPrefix) {
		return query, nil
	}
	if err := m.checkCycles(query); err != nil {
		return "", err
	}

	for range maxMacroPasses {
		next := m.pass(query)
		if !strings.Contains(next, macroPrefix) {
			return next, nil
		}
		if next == query {
			return "", macroError(ErrUnknownMacro, "no definition for %s", leftoverMacro(next))
		}
		query = next
	}
	return "", macroError(ErrMacroDepth, "still unresolved after %d passes", maxMacroPasses)
}

// pass substitutes every reference present in text once. Text inserted by
// a substitution is left for the next pass.
func (m *MacroExpander) pass(text string) string {
	var sb strings.Builder
	for {
		i := strings.Index(text, macroPrefix)
		if i < 0 {
			sb.WriteString(text)
			return sb.String()
		}
		sb.WriteString(text[:i])
		text = text[i+len(macroPrefix):]
		name, ok := m.match(text)
		if !ok {
			sb.WriteString(macroPrefix)
			continue
		}
		sb.WriteString("(" + m.values[name] + ")")
		text = text[len(name):]
	}
}

// match returns the longest macro name s starts with.
func (m *MacroExpander) match(s string) (string, bool) {
	for _, name := range m.names {
		if strings.HasPrefix(s, name) {
			return name, true
		}
	}
	return "", false
}

// references lists the macros text refers to.
func (m *MacroExpander) references(text string) []string {
	var refs []string
	for rest := text; ; {
		i := strings.Index(rest, macroPrefix)
		if i < 0 {
			return refs
		}
		rest = rest[i+len(macroPrefix):]
		if name, ok := m.match(rest); ok && !slices.Contains(refs, name) {
			refs = append(refs, name)
		}
	}
}

func (m *MacroExpander) checkCycles(query string) error {
	const (
		visiting = 1
		done     = 2
	)
	marks := make(map[string]int)
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case visiting:
			start := slices.Index(path, name)
			return macroError(ErrMacroCycle, "%s", strings.Join(append(path[start:], name), " -> "))
		case done:
			return nil
		}
		marks[name] = visiting
		path = append(path, name)
		for _, dep := range m.references(m.values[name]) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		marks[name] = done
		return nil
	}

	for _, name := range m.references(query) {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func leftoverMacro(text string) string {
	i := strings.Index(text, macroPrefix)
	rest := text[i:]
	end := strings.IndexFunc(rest[len(macroPrefix):], func(r rune) bool {
		return !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		return rest
	}
	return rest[:len(macroPrefix)+end]
}

func macroError(kind error, format string, args ...any) error {
	return errors.Newf("%w: %w: %s", ErrMacroExpansion, kind, fmt.Sprintf(format, args...)).
		Component(componentName).
		Category(errors.CategoryConfiguration).
		Build()
}
