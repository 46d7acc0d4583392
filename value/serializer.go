package value

import (
	"encoding/base64"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnrepresentable is returned when a Value cannot be represented in the
// requested encoding (e.g. a non-finite float).
var ErrUnrepresentable = errors.New("value: unrepresentable value")

// MarshalPyO3 encodes a Value using the PyO3-compatible tagged form
// {"<TypeName>": <payload>}, recursively for arrays and objects, including
// null payloads so optional typed fields survive a round trip.
func MarshalPyO3(v Value) ([]byte, error) {
	payload, err := pyo3Payload(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{v.Kind.String(): payload})
}

func pyo3Payload(v Value) (any, error) {
	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.boolV, nil
	case KindInt64:
		return v.intV, nil
	case KindFloat64:
		return v.floatV, nil
	case KindString:
		return v.stringV, nil
	case KindBytes:
		return v.bytesV, nil
	case KindUuid:
		return v.uuidV.String(), nil
	case KindDateTimeUtc:
		return v.timeV.UTC().Format(time.RFC3339Nano), nil
	case KindDateTimeWithOffset:
		return map[string]any{
			"datetime": v.timeV.Format(time.RFC3339Nano),
			"offset":   v.offsetV,
		}, nil
	case KindArray:
		out := make([]any, len(v.arrayV))
		for i, elem := range v.arrayV {
			tagged, err := MarshalPyO3(elem)
			if err != nil {
				return nil, err
			}
			var decoded any
			if err := json.Unmarshal(tagged, &decoded); err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	case KindObject:
		out := make(map[string]any, len(v.objectV))
		for k, elem := range v.objectV {
			tagged, err := MarshalPyO3(elem)
			if err != nil {
				return nil, err
			}
			var decoded any
			if err := json.Unmarshal(tagged, &decoded); err != nil {
				return nil, err
			}
			out[k] = decoded
		}
		return out, nil
	case KindJSON:
		return v.jsonV, nil
	default:
		return nil, errors.Wrapf(ErrUnrepresentable, "unknown kind %v", v.Kind)
	}
}

// UnmarshalPyO3 reverses MarshalPyO3.
func UnmarshalPyO3(data []byte) (Value, error) {
	var tagged map[string]any
	if err := json.Unmarshal(data, &tagged); err != nil {
		return Value{}, errors.Wrap(err, "value: invalid pyo3 envelope")
	}
	if len(tagged) != 1 {
		return Value{}, errors.Newf("value: pyo3 envelope must have exactly one key, got %d", len(tagged))
	}
	for kind, payload := range tagged {
		return fromPyO3Payload(kind, payload)
	}
	return Value{}, errors.New("value: unreachable")
}

func fromPyO3Payload(kind string, payload any) (Value, error) {
	switch kind {
	case "Null":
		return Null(), nil
	case "Bool":
		if payload == nil {
			return Null(), nil
		}
		return Bool(payload.(bool)), nil
	case "Int64":
		if payload == nil {
			return Null(), nil
		}
		i, err := cast.ToInt64E(payload)
		if err != nil {
			return Value{}, errors.Wrap(err, "value: Int64 payload")
		}
		return Int64(i), nil
	case "Float64":
		if payload == nil {
			return Null(), nil
		}
		f, err := cast.ToFloat64E(payload)
		if err != nil {
			return Value{}, errors.Wrap(err, "value: Float64 payload")
		}
		return Float64(f), nil
	case "String":
		if payload == nil {
			return Null(), nil
		}
		return String(payload.(string)), nil
	case "Bytes":
		if payload == nil {
			return Null(), nil
		}
		switch p := payload.(type) {
		case string:
			b, err := base64.StdEncoding.DecodeString(p)
			if err != nil {
				return Value{}, errors.Wrap(err, "value: invalid Bytes payload")
			}
			return Bytes(b), nil
		case []byte:
			return Bytes(p), nil
		default:
			return Value{}, errors.Newf("value: unsupported Bytes payload %T", payload)
		}
	case "Uuid":
		if payload == nil {
			return Null(), nil
		}
		u, err := uuid.Parse(payload.(string))
		if err != nil {
			return Value{}, errors.Wrap(err, "value: invalid Uuid payload")
		}
		return Uuid(u), nil
	case "DateTimeUtc":
		if payload == nil {
			return Null(), nil
		}
		t, err := time.Parse(time.RFC3339Nano, payload.(string))
		if err != nil {
			return Value{}, errors.Wrap(err, "value: invalid DateTimeUtc payload")
		}
		return DateTimeUtc(t), nil
	case "DateTimeWithOffset":
		if payload == nil {
			return Null(), nil
		}
		m, ok := payload.(map[string]any)
		if !ok {
			return Value{}, errors.New("value: invalid DateTimeWithOffset payload")
		}
		t, err := time.Parse(time.RFC3339Nano, cast.ToString(m["datetime"]))
		if err != nil {
			return Value{}, errors.Wrap(err, "value: invalid DateTimeWithOffset payload")
		}
		return DateTimeWithOffset(t, cast.ToString(m["offset"])), nil
	case "Array":
		if payload == nil {
			return Null(), nil
		}
		raw, ok := payload.([]any)
		if !ok {
			return Value{}, errors.New("value: invalid Array payload")
		}
		out := make([]Value, len(raw))
		for i, elem := range raw {
			reencoded, err := json.Marshal(elem)
			if err != nil {
				return Value{}, err
			}
			v, err := UnmarshalPyO3(reencoded)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return Array(out), nil
	case "Object":
		if payload == nil {
			return Null(), nil
		}
		raw, ok := payload.(map[string]any)
		if !ok {
			return Value{}, errors.New("value: invalid Object payload")
		}
		out := make(map[string]Value, len(raw))
		for k, elem := range raw {
			reencoded, err := json.Marshal(elem)
			if err != nil {
				return Value{}, err
			}
			v, err := UnmarshalPyO3(reencoded)
			if err != nil {
				return Value{}, err
			}
			out[k] = v
		}
		return Object(out), nil
	case "Json":
		return JSON(payload), nil
	default:
		return Value{}, errors.Newf("value: unknown pyo3 type tag %q", kind)
	}
}

// MarshalCompact encodes a Value using natural JSON types, losing variant
// information (Uuid/DateTime collapse to strings, Bytes to base64 string).
func MarshalCompact(v Value) ([]byte, error) {
	return json.Marshal(toNative(v))
}

// UnmarshalJSONText decodes raw JSON text into an untyped `any` (the shape
// encoding/json itself produces: map[string]any/[]any/float64/string/bool/
// nil), for callers that then run it through InferFromLexical. Used by SQL
// adapters to decode a JSON-text column back into a Value.
func UnmarshalJSONText(raw string, out *any) error {
	return json.Unmarshal([]byte(raw), out)
}

func toNative(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolV
	case KindInt64:
		return v.intV
	case KindFloat64:
		return v.floatV
	case KindString:
		return v.stringV
	case KindBytes:
		return v.bytesV
	case KindUuid:
		return v.uuidV.String()
	case KindDateTimeUtc:
		return v.timeV.UTC().Format(time.RFC3339Nano)
	case KindDateTimeWithOffset:
		return v.timeV.Format(time.RFC3339Nano)
	case KindArray:
		out := make([]any, len(v.arrayV))
		for i, e := range v.arrayV {
			out[i] = toNative(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.objectV))
		for k, e := range v.objectV {
			out[k] = toNative(e)
		}
		return out
	case KindJSON:
		return v.jsonV
	default:
		return nil
	}
}

// InferFromLexical builds a Value from an untyped decoded-JSON payload
// (string/float64/bool/nil/map/slice as produced by encoding/json) when no
// schema is available to guide coercion. This is the "lexical type
// inference" fallback spec.md §4.1 calls for.
func InferFromLexical(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(v)
	case string:
		if u, err := uuid.Parse(v); err == nil {
			return Uuid(u)
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return DateTimeUtc(t)
		}
		return String(v)
	case float64:
		if v == float64(int64(v)) {
			return Int64(int64(v))
		}
		return Float64(v)
	case []any:
		out := make([]Value, len(v))
		for i, e := range v {
			out[i] = InferFromLexical(e)
		}
		return Array(out)
	case map[string]any:
		out := make(map[string]Value, len(v))
		for k, e := range v {
			out[k] = InferFromLexical(e)
		}
		return Object(out)
	default:
		return JSON(raw)
	}
}
