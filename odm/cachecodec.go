package odm

import (
	"encoding/json"
	"strconv"

	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
)

// Cached payloads are built from fragments value.MarshalPyO3 already
// produces per field, so the only thing left to do here is wrap them in
// an envelope array/object; encoding/json is just RawMessage plumbing
// around already-serialized bytes, not a second serialization pass.

func encodeRecords(recs []map[string]value.Value) ([]byte, error) {
	envelopes := make([]map[string]json.RawMessage, len(recs))
	for i, rec := range recs {
		env, err := encodeRecord(rec)
		if err != nil {
			return nil, err
		}
		envelopes[i] = env
	}
	return json.Marshal(envelopes)
}

func decodeRecords(data []byte) ([]map[string]value.Value, error) {
	var envelopes []map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, err
	}
	out := make([]map[string]value.Value, len(envelopes))
	for i, env := range envelopes {
		rec, err := decodeRecord(env)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

func encodeRecord(rec map[string]value.Value) (map[string]json.RawMessage, error) {
	env := make(map[string]json.RawMessage, len(rec))
	for k, v := range rec {
		b, err := value.MarshalPyO3(v)
		if err != nil {
			return nil, err
		}
		env[k] = b
	}
	return env, nil
}

func decodeRecord(env map[string]json.RawMessage) (map[string]value.Value, error) {
	rec := make(map[string]value.Value, len(env))
	for k, b := range env {
		v, err := value.UnmarshalPyO3(b)
		if err != nil {
			return nil, err
		}
		rec[k] = v
	}
	return rec, nil
}

func encodeCount(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func decodeCount(data []byte) (int64, error) {
	return strconv.ParseInt(string(data), 10, 64)
}

// canonicalQuery renders a condition group + options pair into the stable
// string cache.Key.Canonical needs, delegating to query.Canonicalize so
// the AST-level definition of "stable form" (sorted fields, normalized
// numeric literals) lives in one place.
func canonicalQuery(cond *query.ConditionGroup, opts *query.Options) string {
	return query.Canonicalize(cond, opts)
}
