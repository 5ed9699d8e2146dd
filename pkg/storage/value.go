// Package storage - Value type system for graph properties.
//
// Properties on nodes and edges are tagged variants rather than raw `any`
// values. A closed set of kinds keeps query-time comparisons well defined
// and makes the JSON form of a result set predictable:
//
//	Null    -> null
//	Bool    -> true / false
//	Int     -> JSON number (no fraction)
//	Float   -> JSON number
//	String  -> JSON string
//	List    -> JSON array
//	Map     -> JSON object
//
// Values are structural: a List or Map nests other Values, never node or
// edge references, so a Value can never form a cycle.
package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ValueKind identifies which variant a Value holds.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// String returns the kind name used in error messages.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOLEAN"
	case KindInt:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "STRING"
	case KindList:
		return "LIST"
	case KindMap:
		return "MAP"
	default:
		return fmt.Sprintf("KIND(%d)", int(k))
	}
}

// Value is an immutable property value.
//
// The zero Value is Null. Construct values with the NewXxx helpers or
// FromAny; read them with the typed accessors. Values are compared with
// Equal and ordered with Compare.
//
// Example:
//
//	props := map[string]storage.Value{
//		"name":     storage.NewString("Alice"),
//		"age":      storage.NewInt(30),
//		"verified": storage.NewBool(true),
//	}
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

// NewNull returns the null Value.
func NewNull() Value { return Value{kind: KindNull} }

// NewBool returns a boolean Value.
func NewBool(b bool) Value { return Value{kind: KindBool, b: b} }

// NewInt returns an integer Value.
func NewInt(i int64) Value { return Value{kind: KindInt, i: i} }

// NewFloat returns a float Value.
func NewFloat(f float64) Value { return Value{kind: KindFloat, f: f} }

// NewString returns a text Value.
func NewString(s string) Value { return Value{kind: KindString, s: s} }

// NewList returns an ordered list Value. The slice is copied.
func NewList(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// NewMap returns a map Value. The map is copied.
func NewMap(entries map[string]Value) Value {
	cp := make(map[string]Value, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// Kind reports which variant this Value holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the Value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload. Valid only when Kind() == KindBool.
func (v Value) Bool() bool { return v.b }

// Int returns the integer payload. Valid only when Kind() == KindInt.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload. Valid only when Kind() == KindFloat.
func (v Value) Float() float64 { return v.f }

// Str returns the string payload. Valid only when Kind() == KindString.
func (v Value) Str() string { return v.s }

// List returns a copy of the list payload.
func (v Value) List() []Value {
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp
}

// Map returns a copy of the map payload.
func (v Value) Map() map[string]Value {
	cp := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		cp[k] = e
	}
	return cp
}

// numeric reports whether the Value is Int or Float, and its float form.
func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Equal reports deep equality. Int and Float compare numerically, so
// NewInt(1).Equal(NewFloat(1.0)) is true; all other cross-kind pairs
// are unequal.
func (v Value) Equal(o Value) bool {
	if vf, ok := v.numeric(); ok {
		if of, ok2 := o.numeric(); ok2 {
			return vf == of
		}
		return false
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
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
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// ErrIncomparable is returned by Compare for value pairs with no defined
// ordering (different kinds other than Int/Float, or list/map operands).
var ErrIncomparable = fmt.Errorf("values are not comparable")

// Compare orders two Values: -1, 0 or +1. Defined for Bool (false < true),
// numeric pairs, and String. Null orders before everything and equal to
// itself (used by ORDER BY; predicates treat null separately).
func (v Value) Compare(o Value) (int, error) {
	if v.kind == KindNull || o.kind == KindNull {
		switch {
		case v.kind == o.kind:
			return 0, nil
		case v.kind == KindNull:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if vf, ok := v.numeric(); ok {
		if of, ok2 := o.numeric(); ok2 {
			switch {
			case vf < of:
				return -1, nil
			case vf > of:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, fmt.Errorf("%w: %s vs %s", ErrIncomparable, v.kind, o.kind)
	}
	if v.kind != o.kind {
		return 0, fmt.Errorf("%w: %s vs %s", ErrIncomparable, v.kind, o.kind)
	}
	switch v.kind {
	case KindBool:
		switch {
		case v.b == o.b:
			return 0, nil
		case !v.b:
			return -1, nil
		default:
			return 1, nil
		}
	case KindString:
		return strings.Compare(v.s, o.s), nil
	default:
		return 0, fmt.Errorf("%w: %s vs %s", ErrIncomparable, v.kind, o.kind)
	}
}

// FromAny converts a plain Go value (as produced by encoding/json or
// handed in through the public API) into a Value.
//
// Supported inputs: nil, bool, all int/uint widths, float32/64, string,
// []any, map[string]any, []Value, map[string]Value and Value itself.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NewNull(), nil
	case Value:
		return t, nil
	case bool:
		return NewBool(t), nil
	case int:
		return NewInt(int64(t)), nil
	case int8:
		return NewInt(int64(t)), nil
	case int16:
		return NewInt(int64(t)), nil
	case int32:
		return NewInt(int64(t)), nil
	case int64:
		return NewInt(t), nil
	case uint:
		return NewInt(int64(t)), nil
	case uint8:
		return NewInt(int64(t)), nil
	case uint16:
		return NewInt(int64(t)), nil
	case uint32:
		return NewInt(int64(t)), nil
	case uint64:
		return NewInt(int64(t)), nil
	case float32:
		return NewFloat(float64(t)), nil
	case float64:
		// JSON numbers decode as float64; keep whole numbers integral.
		if t == math.Trunc(t) && !math.IsInf(t, 0) && math.Abs(t) < 1<<53 {
			return NewInt(int64(t)), nil
		}
		return NewFloat(t), nil
	case string:
		return NewString(t), nil
	case []Value:
		return NewList(t), nil
	case map[string]Value:
		return NewMap(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return NewNull(), err
			}
			items[i] = v
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		entries := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return NewNull(), err
			}
			entries[k] = v
		}
		return Value{kind: KindMap, m: entries}, nil
	default:
		return NewNull(), fmt.Errorf("%w: unsupported property type %T", ErrInvalidData, x)
	}
}

// ToAny converts the Value back into plain Go data (bool, int64, float64,
// string, []any, map[string]any or nil).
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.ToAny()
		}
		return out
	}
	return nil
}

// String renders the Value in GQL literal form, for logs and the CLI.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, v.m[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "?"
}

// MarshalJSON encodes the Value as its plain JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON decodes a plain JSON value into a Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// CopyProperties deep-copies a property map. A nil input yields an empty
// map so stored records always have a non-nil property mapping.
func CopyProperties(props map[string]Value) map[string]Value {
	cp := make(map[string]Value, len(props))
	for k, v := range props {
		cp[k] = v
	}
	return cp
}
