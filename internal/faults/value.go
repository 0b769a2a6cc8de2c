package faults

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind identifies the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
)

// sqlTimeLayout matches how MySQL renders DATETIME columns.
const sqlTimeLayout = "2006-01-02 15:04:05"

// Value is a single column value of a fault row.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
}

func Null() Value              { return Value{} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func Int(i int64) Value        { return Value{kind: KindInt, i: i} }
func Float(f float64) Value    { return Value{kind: KindFloat, f: f} }
func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Int64() int64   { return v.i }
func (v Value) Float() float64 { return v.f }

// ValueOf converts a value scanned from a database driver.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Int(int64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case bool:
		if t {
			return Int(1)
		}
		return Int(0)
	case time.Time:
		return String(t.Format(sqlTimeLayout))
	default:
		return String(fmt.Sprint(t))
	}
}

// Bytes returns the raw bytes of a string value.
func (v Value) Bytes() []byte {
	if v.kind != KindString {
		return nil
	}
	return []byte(v.s)
}

// String renders the value as text. Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	default:
		return ""
	}
}

// Interface returns the value as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*v = Null()
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = String(s)
	case bytes.Equal(b, []byte("true")):
		*v = Int(1)
	case bytes.Equal(b, []byte("false")):
		*v = Int(0)
	case b[0] == '{' || b[0] == '[':
		// Nested documents are kept verbatim.
		*v = String(string(b))
	default:
		if i, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			*v = Int(i)
			return nil
		}
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("invalid fault value %q: %w", b, err)
		}
		*v = Float(f)
	}
	return nil
}
