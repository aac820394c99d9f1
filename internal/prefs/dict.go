// Package prefs holds the persisted user preferences: a nested dictionary of
// strings, numbers, booleans, arrays and sub-dictionaries, plus the volatile
// registration domain of factory defaults layered beneath it.
package prefs

import (
	"bytes"
	"encoding/json"
	"math"
)

// VersionKey is the top-level key holding the preferences format version.
const VersionKey = "PreferencesVersion"

// Dict is one level of the preferences tree.
type Dict map[string]any

// AsDict converts v to a Dict when it is a dictionary of any supported
// shape. YAML and JSON decoders both produce map[string]any.
func AsDict(v any) (Dict, bool) {
	switch m := v.(type) {
	case Dict:
		return m, true
	case map[string]any:
		return Dict(m), true
	default:
		return nil, false
	}
}

// Clone copies d and everything below it.
func (d Dict) Clone() Dict {
	if d == nil {
		return nil
	}
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a preference value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case Dict:
		return t.Clone()
	case map[string]any:
		return map[string]any(Dict(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []Dict:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = map[string]any(e.Clone())
		}
		return out
	default:
		return v
	}
}

// Sub returns the sub-dictionary under key. The result aliases d.
func (d Dict) Sub(key string) (Dict, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	return AsDict(v)
}

func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Int reads a whole number stored as any numeric type.
func (d Dict) Int(key string) (int, bool) {
	return ToInt(d[key])
}

func (d Dict) Float(key string) (float64, bool) {
	return ToFloat(d[key])
}

func (d Dict) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

func (d Dict) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case float32:
		if float64(n) == math.Trunc(float64(n)) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Records returns the array under key as dictionaries, skipping entries that
// are not dictionaries. The dictionaries alias d.
func (d Dict) Records(key string) []Dict {
	var raw []any
	switch t := d[key].(type) {
	case []any:
		raw = t
	case []Dict:
		return t
	case []map[string]any:
		out := make([]Dict, 0, len(t))
		for _, m := range t {
			out = append(out, Dict(m))
		}
		return out
	default:
		return nil
	}
	out := make([]Dict, 0, len(raw))
	for _, e := range raw {
		if m, ok := AsDict(e); ok {
			out = append(out, m)
		}
	}
	return out
}

// SetRecords stores records under key in the array shape decoders produce.
func (d Dict) SetRecords(key string, records []Dict) {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = map[string]any(r)
	}
	d[key] = out
}

// Equal compares two preference values by content. Numbers compare by value
// whatever decoder produced them.
func Equal(a, b any) bool {
	ra, errA := canonical(a)
	rb, errB := canonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}

// canonical encodes v as JSON with sorted keys; numbers are normalised to
// float64 first.
func canonical(v any) ([]byte, error) {
	return json.Marshal(normalize(v))
}

func normalize(v any) any {
	if d, ok := AsDict(v); ok {
		out := make(map[string]any, len(d))
		for k, e := range d {
			out[k] = normalize(e)
		}
		return out
	}
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []Dict:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case bool, string, nil:
		return t
	}
	if f, ok := ToFloat(v); ok {
		return f
	}
	return v
}

// DeepMerge returns strong layered over weak: sub-dictionaries present in both
// are merged recursively, every other strong value replaces the weak one.
// Neither argument is modified.
func DeepMerge(strong, weak Dict) Dict {
	out := weak.Clone()
	if out == nil {
		out = Dict{}
	}
	for k, sv := range strong {
		sd, sIsDict := AsDict(sv)
		wd, wIsDict := AsDict(out[k])
		if sIsDict && wIsDict {
			out[k] = map[string]any(DeepMerge(sd, wd))
			continue
		}
		out[k] = CloneValue(sv)
	}
	return out
}
