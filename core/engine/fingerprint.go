package engine

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Reserved wire-payload keys. Everything else in a callback payload is
// treated as fingerprint data.
const (
	// KeyContext holds the embedded context object inside a button payload.
	KeyContext = "_"
	// KeyNextField marks the dialog field awaited next.
	KeyNextField = ">"
	// KeyRedirect stores the redirect target state id in the landing session.
	KeyRedirect = "@"
	// KeyShortID carries the compact state identifier used to keep callback
	// payloads within the platform size limit.
	KeyShortID = "#"
)

// Fingerprint is a flat set of scalar key/value requirements. States declare
// one to describe the inputs they accept; envelopes carry one extracted from
// the inbound payload. Values are normalized so that structural equality
// works across JSON round trips (all integral numbers compare as int64).
type Fingerprint map[string]any

// NewFingerprint returns an empty fingerprint.
func NewFingerprint() Fingerprint {
	return Fingerprint{}
}

// ParseFingerprint decodes a JSON object into a fingerprint. Nested objects
// are rejected except under the reserved context key, which callers strip
// via SplitContext before matching.
func ParseFingerprint(data []byte) (Fingerprint, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}
	fp := make(Fingerprint, len(raw))
	for k, v := range raw {
		fp[k] = normalizeScalar(v)
	}
	return fp, nil
}

// With returns a copy of the fingerprint extended with the given key/value.
func (f Fingerprint) With(key string, value any) Fingerprint {
	out := f.Clone()
	out[key] = normalizeScalar(value)
	return out
}

// Clone returns a shallow copy. Values are scalars, so a shallow copy is a
// full copy for every key except the reserved context key.
func (f Fingerprint) Clone() Fingerprint {
	out := make(Fingerprint, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Get returns the normalized value stored under key, or nil.
func (f Fingerprint) Get(key string) any {
	return normalizeScalar(f[key])
}

// GetString returns the value under key rendered as a string, or "".
func (f Fingerprint) GetString(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(normalizeScalar(v))
}

// Has reports whether key is present.
func (f Fingerprint) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// IsEmpty reports whether the fingerprint carries no keys.
func (f Fingerprint) IsEmpty() bool {
	return len(f) == 0
}

// Equal reports structural equality over normalized values.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		ov, ok := other[k]
		if !ok || !scalarEqual(v, ov) {
			return false
		}
	}
	return true
}

// ContainsAll reports whether every key/value pair of required is present in
// f with an equal value.
func (f Fingerprint) ContainsAll(required Fingerprint) bool {
	for k, v := range required {
		got, ok := f[k]
		if !ok || !scalarEqual(got, v) {
			return false
		}
	}
	return true
}

// Merge produces the wire payload for a button click: the receiver's pairs
// with the context object attached under the reserved context key. An empty
// context is omitted so that payloads stay compact and transitions that
// deliberately clear context produce none.
func (f Fingerprint) Merge(context Fingerprint) ([]byte, error) {
	out := make(map[string]any, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	if len(context) > 0 {
		ctx := make(map[string]any, len(context))
		for k, v := range context {
			ctx[k] = v
		}
		out[KeyContext] = ctx
	}
	return json.Marshal(out)
}

// SplitContext separates a parsed callback payload into the matching
// fingerprint and the opaque context carried under the reserved context key.
// A context value that is not an object is dropped.
func SplitContext(payload map[string]any) (Fingerprint, Fingerprint) {
	state := make(Fingerprint, len(payload))
	context := NewFingerprint()
	for k, v := range payload {
		if k == KeyContext {
			if sub, ok := v.(map[string]any); ok {
				for ck, cv := range sub {
					context[ck] = normalizeScalar(cv)
				}
			}
			continue
		}
		state[k] = normalizeScalar(v)
	}
	return state, context
}

// Keys returns the sorted key set, used for deterministic logging.
func (f Fingerprint) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the fingerprint as canonical JSON for logs and errors.
func (f Fingerprint) String() string {
	data, err := json.Marshal(map[string]any(f))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(f))
	}
	return string(data)
}

// normalizeScalar folds the numeric types produced by Go literals and by
// encoding/json into a single comparable representation.
func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float32:
		return normalizeScalar(float64(n))
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if fl, err := n.Float64(); err == nil {
			return fl
		}
		return n.String()
	default:
		return v
	}
}

func scalarEqual(a, b any) bool {
	na, nb := normalizeScalar(a), normalizeScalar(b)
	switch na.(type) {
	case nil, string, bool, int64, float64:
		return na == nb
	}
	// Non-scalar payload values (arrays, objects outside the context key)
	// fall back to a textual comparison rather than panicking.
	return fmt.Sprint(na) == fmt.Sprint(nb)
}
