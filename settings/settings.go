// Package settings implements the free-form per-session key/value store.
// Values are tagged variants (string, number, boolean, list, map) so the
// store stays serializable and type-safe while accepting arbitrary shapes
// from application handlers.
package settings

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota // zero Value; serializes as JSON null
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged variant holding one settings value. The zero Value has
// KindInvalid and serializes as JSON null. Values are immutable once built;
// accessors for container kinds return copies.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

// String builds a string Value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number builds a numeric Value. All numbers are carried as float64, matching
// their JSON representation.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// Int builds a numeric Value from an int.
func Int(n int) Value {
	return Number(float64(n))
}

// Bool builds a boolean Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// List builds a list Value. The items are copied.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Map builds a map Value. The entries are copied.
func Map(entries map[string]Value) Value {
	cp := make(map[string]Value, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// Kind returns the variant tag of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsValid reports whether the value holds any variant at all.
func (v Value) IsValid() bool {
	return v.kind != KindInvalid
}

// Str returns the string content. It returns "" when the value is not a string.
func (v Value) Str() string {
	return v.str
}

// Num returns the numeric content. It returns 0 when the value is not a number.
func (v Value) Num() float64 {
	return v.num
}

// Bool returns the boolean content. It returns false when the value is not a boolean.
func (v Value) Bool() bool {
	return v.b
}

// List returns a copy of the list content, or nil when the value is not a list.
func (v Value) List() []Value {
	if v.kind != KindList {
		return nil
	}

	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp
}

// Map returns a copy of the map content, or nil when the value is not a map.
func (v Value) Map() map[string]Value {
	if v.kind != KindMap {
		return nil
	}

	cp := make(map[string]Value, len(v.m))
	for k, item := range v.m {
		cp[k] = item
	}

	return cp
}

// Clone returns a deep copy of the value. Nested lists and maps are copied
// recursively so the clone shares no mutable state with the original.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		cp := make([]Value, len(v.list))
		for i, item := range v.list {
			cp[i] = item.Clone()
		}

		return Value{kind: KindList, list: cp}
	case KindMap:
		cp := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			cp[k] = item.Clone()
		}

		return Value{kind: KindMap, m: cp}
	default:
		return v
	}
}

// Equal reports whether two values hold the same variant with equal content.
// Lists compare element-wise in order; maps compare key-wise.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindInvalid:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, item := range v.m {
			other, ok := o.m[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Interface returns the native Go representation of the value: string,
// float64, bool, []any, map[string]any, or nil for the zero Value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler. Each variant marshals to its natural
// JSON form; the zero Value marshals to null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}

	*v = parsed
	return nil
}

// FromAny converts a native Go value into a Value. Supported inputs are
// strings, booleans, numeric types, nil, []any, map[string]any, and values
// that are already of type Value (or containers of them).
//
// Parameters:
//   - x: The native value to convert
//
// Returns:
//   - The converted Value
//   - An error if the dynamic type is not representable
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t.Clone(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case []any:
		items := make([]Value, len(t))
		for i, raw := range t {
			item, err := FromAny(raw)
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return Value{kind: KindList, list: items}, nil
	case []Value:
		return List(t...), nil
	case map[string]any:
		entries := make(map[string]Value, len(t))
		for k, raw := range t {
			item, err := FromAny(raw)
			if err != nil {
				return Value{}, err
			}
			entries[k] = item
		}
		return Value{kind: KindMap, m: entries}, nil
	case map[string]Value:
		return Map(t), nil
	default:
		return Value{}, fmt.Errorf("settings: unsupported value type %T", x)
	}
}

// Store is the per-session settings mapping. A nil Store behaves like an
// empty one for reads; writers must allocate with make or NewStore first.
type Store map[string]Value

// NewStore returns an empty settings store.
func NewStore() Store {
	return make(Store)
}

// Clone returns a deep copy of the store. Mutating the clone never affects
// the original, including through nested lists and maps.
func (s Store) Clone() Store {
	cp := make(Store, len(s))
	for k, v := range s {
		cp[k] = v.Clone()
	}

	return cp
}

// Merge deep-copies every entry of other into the store, overwriting
// existing keys.
func (s Store) Merge(other Store) {
	for k, v := range other {
		s[k] = v.Clone()
	}
}
