package sqlutil

import (
	"time"

	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/value"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// FromColumn converts a scanned driver value back to value.Value using ft
// to guide coercion (spec.md §4.1: "using the schema when present to
// coerce"). native is whatever database/sql handed back via Scan into an
// `any` (typically int64, float64, []byte/string, bool, or nil).
func FromColumn(native any, ft metadata.FieldType) (value.Value, error) {
	if native == nil {
		return value.Null(), nil
	}

	switch ft.Kind {
	case metadata.FieldString:
		return value.String(cast.ToString(native)), nil
	case metadata.FieldInteger:
		i, err := cast.ToInt64E(native)
		if err != nil {
			return value.Value{}, err
		}
		return value.Int64(i), nil
	case metadata.FieldFloat:
		f, err := cast.ToFloat64E(native)
		if err != nil {
			return value.Value{}, err
		}
		return value.Float64(f), nil
	case metadata.FieldBoolean:
		return value.Bool(cast.ToBool(native)), nil
	case metadata.FieldUuid:
		s := cast.ToString(native)
		if u, err := uuid.Parse(s); err == nil {
			return value.Uuid(u), nil
		}
		return value.String(s), nil // not parseable as a uuid; return the raw text rather than fail the read
	case metadata.FieldDateTime:
		s := cast.ToString(native)
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return value.Value{}, err
		}
		if ft.TZOffset != "" && ft.TZOffset != "+00:00" {
			return value.DateTimeWithOffset(t, ft.TZOffset), nil
		}
		return value.DateTimeUtc(t), nil
	case metadata.FieldJSON, metadata.FieldArray:
		s := cast.ToString(native)
		var decoded any
		if err := value.UnmarshalJSONText(s, &decoded); err != nil {
			return value.Value{}, err
		}
		return value.InferFromLexical(decoded), nil
	default:
		return value.InferFromLexical(native), nil
	}
}
