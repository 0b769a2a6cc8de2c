package logger

import (
	"time"

	"github.com/rs/zerolog"
)

type fieldKind uint8

const (
	kindAny fieldKind = iota
	kindString
	kindInt64
	kindUint64
	kindFloat64
	kindBool
	kindDuration
	kindTime
	kindError
)

// Field is a typed key/value pair attached to a log entry.
type Field struct {
	Key   string
	kind  fieldKind
	str   string
	i64   int64
	u64   uint64
	f64   float64
	b     bool
	dur   time.Duration
	t     time.Time
	err   error
	value any
}

func String(key, value string) Field {
	return Field{Key: key, kind: kindString, str: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, kind: kindInt64, i64: int64(value)}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, kind: kindInt64, i64: value}
}

func Uint(key string, value uint) Field {
	return Field{Key: key, kind: kindUint64, u64: uint64(value)}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, kind: kindUint64, u64: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, kind: kindFloat64, f64: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, kind: kindBool, b: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, kind: kindDuration, dur: value}
}

func Time(key string, value time.Time) Field {
	return Field{Key: key, kind: kindTime, t: value}
}

// Error attaches err under the "error" key. A nil error is logged as null.
func Error(err error) Field {
	return Field{Key: zerolog.ErrorFieldName, kind: kindError, err: err}
}

// Any attaches an arbitrary value, serialized by the backend.
func Any(key string, value any) Field {
	return Field{Key: key, kind: kindAny, value: value}
}

func (f Field) applyEvent(ev *zerolog.Event) *zerolog.Event {
	switch f.kind {
	case kindString:
		return ev.Str(f.Key, f.str)
	case kindInt64:
		return ev.Int64(f.Key, f.i64)
	case kindUint64:
		return ev.Uint64(f.Key, f.u64)
	case kindFloat64:
		return ev.Float64(f.Key, f.f64)
	case kindBool:
		return ev.Bool(f.Key, f.b)
	case kindDuration:
		return ev.Dur(f.Key, f.dur)
	case kindTime:
		return ev.Time(f.Key, f.t)
	case kindError:
		return ev.AnErr(f.Key, f.err)
	default:
		return ev.Interface(f.Key, f.value)
	}
}

func (f Field) applyContext(ctx zerolog.Context) zerolog.Context {
	switch f.kind {
	case kindString:
		return ctx.Str(f.Key, f.str)
	case kindInt64:
		return ctx.Int64(f.Key, f.i64)
	case kindUint64:
		return ctx.Uint64(f.Key, f.u64)
	case kindFloat64:
		return ctx.Float64(f.Key, f.f64)
	case kindBool:
		return ctx.Bool(f.Key, f.b)
	case kindDuration:
		return ctx.Dur(f.Key, f.dur)
	case kindTime:
		return ctx.Time(f.Key, f.t)
	case kindError:
		return ctx.AnErr(f.Key, f.err)
	default:
		return ctx.Interface(f.Key, f.value)
	}
}
