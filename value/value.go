// Package value implements the backend-neutral discriminated value union
// that crosses every layer of godm: the serializer, the query AST, and
// every adapter exchange values of this type rather than raw Go interfaces.
package value

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which variant a Value currently holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindUuid
	KindDateTimeUtc
	KindDateTimeWithOffset
	KindArray
	KindObject
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt64:
		return "Int64"
	case KindFloat64:
		return "Float64"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindUuid:
		return "Uuid"
	case KindDateTimeUtc:
		return "DateTimeUtc"
	case KindDateTimeWithOffset:
		return "DateTimeWithOffset"
	case KindArray:
		return "Array"
	case KindObject:
		return "Object"
	case KindJSON:
		return "Json"
	default:
		return "Unknown"
	}
}

// Value is a closed discriminated union. Only the field(s) matching Kind
// are meaningful; callers should go through the typed constructors and
// accessors below rather than touching fields directly.
type Value struct {
	Kind Kind

	boolV    bool
	intV     int64
	floatV   float64
	stringV  string
	bytesV   []byte
	uuidV    uuid.UUID
	timeV    time.Time
	offsetV  string // "+HH:MM" / "-HH:MM", only meaningful for KindDateTimeWithOffset
	arrayV   []Value
	objectV  map[string]Value
	jsonV    any
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBool, boolV: b} }
func Int64(i int64) Value          { return Value{Kind: KindInt64, intV: i} }
func Float64(f float64) Value      { return Value{Kind: KindFloat64, floatV: f} }
func String(s string) Value        { return Value{Kind: KindString, stringV: s} }
func Bytes(b []byte) Value         { return Value{Kind: KindBytes, bytesV: b} }
func Uuid(u uuid.UUID) Value       { return Value{Kind: KindUuid, uuidV: u} }
func DateTimeUtc(t time.Time) Value {
	return Value{Kind: KindDateTimeUtc, timeV: t.UTC()}
}

// DateTimeWithOffset stores an instant together with a fixed zone offset,
// formatted "+HH:MM"/"-HH:MM". "+00:00" means UTC, per spec.
func DateTimeWithOffset(t time.Time, offset string) Value {
	return Value{Kind: KindDateTimeWithOffset, timeV: t, offsetV: offset}
}

func Array(vs []Value) Value            { return Value{Kind: KindArray, arrayV: vs} }
func Object(m map[string]Value) Value   { return Value{Kind: KindObject, objectV: m} }
func JSON(v any) Value                  { return Value{Kind: KindJSON, jsonV: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) AsBool() (bool, bool)       { return v.boolV, v.Kind == KindBool }
func (v Value) AsInt64() (int64, bool)     { return v.intV, v.Kind == KindInt64 }
func (v Value) AsFloat64() (float64, bool) { return v.floatV, v.Kind == KindFloat64 }
func (v Value) AsString() (string, bool)   { return v.stringV, v.Kind == KindString }
func (v Value) AsBytes() ([]byte, bool)    { return v.bytesV, v.Kind == KindBytes }
func (v Value) AsUuid() (uuid.UUID, bool)  { return v.uuidV, v.Kind == KindUuid }

func (v Value) AsTime() (time.Time, bool) {
	return v.timeV, v.Kind == KindDateTimeUtc || v.Kind == KindDateTimeWithOffset
}

func (v Value) Offset() string { return v.offsetV }

func (v Value) AsArray() ([]Value, bool)          { return v.arrayV, v.Kind == KindArray }
func (v Value) AsObject() (map[string]Value, bool) { return v.objectV, v.Kind == KindObject }
func (v Value) AsJSON() (any, bool)                { return v.jsonV, v.Kind == KindJSON }

// Equal reports deep equality between two Values, comparing only the
// fields relevant to their Kind.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolV == b.boolV
	case KindInt64:
		return a.intV == b.intV
	case KindFloat64:
		return a.floatV == b.floatV
	case KindString:
		return a.stringV == b.stringV
	case KindBytes:
		return string(a.bytesV) == string(b.bytesV)
	case KindUuid:
		return a.uuidV == b.uuidV
	case KindDateTimeUtc:
		return a.timeV.Equal(b.timeV)
	case KindDateTimeWithOffset:
		return a.timeV.Equal(b.timeV) && a.offsetV == b.offsetV
	case KindArray:
		if len(a.arrayV) != len(b.arrayV) {
			return false
		}
		for i := range a.arrayV {
			if !Equal(a.arrayV[i], b.arrayV[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.objectV) != len(b.objectV) {
			return false
		}
		for k, av := range a.objectV {
			bv, ok := b.objectV[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindJSON:
		return jsonDeepEqual(a.jsonV, b.jsonV)
	default:
		return false
	}
}

func jsonDeepEqual(a, b any) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok && bok {
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !jsonDeepEqual(av, bv) {
				return false
			}
		}
		return true
	}
	as, aok2 := a.([]any)
	bs, bok2 := b.([]any)
	if aok2 && bok2 {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !jsonDeepEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
