// Package document provides the recursive value type content payloads are
// stored and compared as: a tagged union of null, bool, number, string,
// array, and object. Keeping the shape explicit lets diffing and hashing walk
// structures without reflection.
package document

import (
	"fmt"
	"sort"
	"strings"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one node of a content document. The zero value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

func Null() Value {
	return Value{kind: KindNull}
}

func Bool(v bool) Value {
	return Value{kind: KindBool, b: v}
}

func Number(v float64) Value {
	return Value{kind: KindNumber, n: v}
}

func String(v string) Value {
	return Value{kind: KindString, s: v}
}

func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arr: arr}
}

func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

// FromAny converts a decoded-JSON style value (nil, bool, float64, string,
// []any, map[string]any) into a Value.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case string:
		return String(t), nil
	case []any:
		arr := make([]Value, len(t))
		for i, item := range t {
			converted, err := FromAny(item)
			if err != nil {
				return Null(), err
			}
			arr[i] = converted
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, item := range t {
			converted, err := FromAny(item)
			if err != nil {
				return Null(), err
			}
			obj[k] = converted
		}
		return Value{kind: KindObject, obj: obj}, nil
	default:
		return Null(), fmt.Errorf("document: unsupported value type %T", v)
	}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// AsBool returns the boolean payload; false for any other kind.
func (v Value) AsBool() bool {
	if v.kind != KindBool {
		return false
	}
	return v.b
}

// AsNumber returns the numeric payload; 0 for any other kind.
func (v Value) AsNumber() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.n
}

// AsString returns the string payload; "" for any other kind.
func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Items returns the array elements. The slice must not be modified.
func (v Value) Items() []Value {
	return v.arr
}

// Len returns the element count for arrays and the field count for objects.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Field returns the named object field.
func (v Value) Field(key string) (Value, bool) {
	val, ok := v.obj[key]
	return val, ok
}

// Keys returns the object's field names in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep structural equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, val := range v.obj {
			other, ok := o.obj[k]
			if !ok || !val.Equal(other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy safe to mutate.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i := range v.arr {
			arr[i] = v.arr[i].Clone()
		}
		return Value{kind: KindArray, arr: arr}
	case KindObject:
		obj := make(map[string]Value, len(v.obj))
		for k, val := range v.obj {
			obj[k] = val.Clone()
		}
		return Value{kind: KindObject, obj: obj}
	default:
		return v
	}
}

// WordCount returns the whitespace-separated word total across every string
// leaf of the document.
func WordCount(v Value) int {
	switch v.kind {
	case KindString:
		return len(strings.Fields(v.s))
	case KindArray:
		total := 0
		for i := range v.arr {
			total += WordCount(v.arr[i])
		}
		return total
	case KindObject:
		total := 0
		for _, val := range v.obj {
			total += WordCount(val)
		}
		return total
	default:
		return 0
	}
}
