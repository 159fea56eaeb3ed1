// Package payload implements a tagged-union value type for the dynamic
// shape every source driver produces before it is merged into the
// evidence store. It replaces ad-hoc untyped JSON-blob access with typed
// extractors that live next to each driver.
package payload

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind discriminates a Value's underlying representation.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a Null | Bool | Number | String | Array | Object tagged union.
// It is built from encoding/json's natural decode target (map[string]any,
// []any, float64, string, bool, nil) and converts back to it with ToAny;
// arrays and objects are held internally as []Value and map[string]Value.
type Value struct {
	kind Kind
	raw  any
}

// Null is the zero Value.
var Null = Value{kind: KindNull}

func FromBool(b bool) Value     { return Value{kind: KindBool, raw: b} }
func FromNumber(n float64) Value { return Value{kind: KindNumber, raw: n} }
func FromString(s string) Value { return Value{kind: KindString, raw: s} }

// FromArray wraps a slice of Values.
func FromArray(items []Value) Value { return Value{kind: KindArray, raw: items} }

// FromObject wraps a map of Values, keyed by field name.
func FromObject(fields map[string]Value) Value { return Value{kind: KindObject, raw: fields} }

// Parse decodes arbitrary JSON bytes into a Value tree.
func Parse(data []byte) (Value, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return Null, fmt.Errorf("payload: parse: %w", err)
	}
	return fromAny(decoded), nil
}

func fromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case bool:
		return FromBool(t)
	case float64:
		return FromNumber(t)
	case string:
		return FromString(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = fromAny(e)
		}
		return FromArray(items)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[k] = fromAny(e)
		}
		return FromObject(fields)
	default:
		return Null
	}
}

// Kind reports the Value's discriminant.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean value and whether v is actually a bool.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok
}

// Number returns the numeric value and whether v is actually numeric.
func (v Value) Number() (float64, bool) {
	n, ok := v.raw.(float64)
	return n, ok
}

// String returns the string value and whether v is actually a string.
func (v Value) String() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok
}

// Array returns the element slice and whether v is actually an array.
func (v Value) Array() ([]Value, bool) {
	a, ok := v.raw.([]Value)
	return a, ok
}

// Object returns the field map and whether v is actually an object.
func (v Value) Object() (map[string]Value, bool) {
	o, ok := v.raw.(map[string]Value)
	return o, ok
}

// Get looks up a field on an object Value; returns Null if v is not an
// object or the key is absent.
func (v Value) Get(key string) Value {
	if o, ok := v.Object(); ok {
		if f, ok := o[key]; ok {
			return f
		}
	}
	return Null
}

// Len returns the element/field count for an array or object, else 0.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		a, _ := v.Array()
		return len(a)
	case KindObject:
		o, _ := v.Object()
		return len(o)
	default:
		return 0
	}
}

// Canonical returns a deterministic string form, used by the merger's
// array set-union to dedup elements regardless of key order.
func (v Value) Canonical() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		b, _ := v.Bool()
		return strconv.FormatBool(b)
	case KindNumber:
		n, _ := v.Number()
		return strconv.FormatFloat(n, 'g', -1, 64)
	case KindString:
		s, _ := v.String()
		return s
	case KindArray:
		a, _ := v.Array()
		parts := make([]string, len(a))
		for i, e := range a {
			parts[i] = e.Canonical()
		}
		return "[" + joinComma(parts) + "]"
	case KindObject:
		o, _ := v.Object()
		keys := make([]string, 0, len(o))
		for k := range o {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + o[k].Canonical()
		}
		return "{" + joinComma(parts) + "}"
	default:
		return ""
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// ToAny converts back to the plain any tree encoding/json expects, for
// storage as JSONB or re-serialization.
func (v Value) ToAny() any {
	switch v.kind {
	case KindArray:
		a, _ := v.Array()
		out := make([]any, len(a))
		for i, e := range a {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		o, _ := v.Object()
		out := make(map[string]any, len(o))
		for k, e := range o {
			out[k] = e.ToAny()
		}
		return out
	case KindNull:
		return nil
	default:
		return v.raw
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
