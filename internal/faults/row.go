// Package faults models the rows a rule query returns and computes how one
// set of faulting rows differs from the next.
package faults

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Field is a named column of a Row.
type Field struct {
	Name  string
	Value Value
}

// Row is one fault row: the columns of a query result in select order.
type Row []Field

// RowOf builds a Row from alternating name/value arguments.
//
//	faults.RowOf("device_id", 1, "port_id", 12, "ifOperStatus", "down")
func RowOf(kv ...any) Row {
	if len(kv)%2 != 0 {
		panic("faults.RowOf: odd number of arguments")
	}
	row := make(Row, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("faults.RowOf: field name %v is not a string", kv[i]))
		}
		row = row.Set(name, ValueOf(kv[i+1]))
	}
	return row
}

// Get returns the value of the named column.
func (r Row) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Null(), false
}

// Int64 returns the named column as an integer. Missing, null or
// non-numeric values yield ok=false.
func (r Row) Int64(name string) (int64, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	switch v.Kind() {
	case KindInt:
		return v.Int64(), true
	case KindFloat:
		return int64(v.Float()), true
	case KindString:
		if n, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Set replaces the named column in place or appends it, returning the row.
func (r Row) Set(name string, v Value) Row {
	for i := range r {
		if r[i].Name == name {
			r[i].Value = v
			return r
		}
	}
	return append(r, Field{Name: name, Value: v})
}

// Names returns the column names in order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// MarshalJSON writes the row as an object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping its key order.
func (r *Row) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fault row must be a JSON object, got %v", tok)
	}

	row := Row{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected fault row key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		row = row.Set(name, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = row
	return nil
}

// Set is an ordered collection of fault rows.
type Set []Row

// DeviceIDs returns the distinct device_id values in first-seen order.
func (s Set) DeviceIDs() []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, row := range s {
		id, ok := row.Int64("device_id")
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
