package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is the closed set of JSON-like values a compiled statement is
// encoded to: Null, Str, Int, Bool, List and Object. There is no float
// value; float constants are encoded as their literal text so that
// fingerprints never depend on float formatting.
type Value interface {
	value()
}

// Null is JSON null. It is accepted by MarshalJSON but rejected by
// MarshalCanonical.
type Null struct{}

func (Null) value() {}

func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Str is a string value.
type Str string

func (Str) value() {}

// Int is an integer value.
type Int int64

func (Int) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// List is an ordered list of values.
type List []Value

func (List) value() {}

// Object maps keys to values. Iterate with SortedKeys.
type Object map[string]Value

func (Object) value() {}

// Field is one key/value pair for Obj.
type Field struct {
	Key   string
	Value Value
}

// F builds a Field.
func F(key string, v Value) Field { return Field{Key: key, Value: v} }

// Obj builds an Object from fields, skipping fields whose value is nil.
func Obj(fields ...Field) Object {
	obj := make(Object, len(fields))
	for _, f := range fields {
		if f.Value != nil {
			obj[f.Key] = f.Value
		}
	}
	return obj
}

// StrList builds a List of strings.
func StrList(ss ...string) List {
	out := make(List, len(ss))
	for i, s := range ss {
		out[i] = Str(s)
	}
	return out
}

// SortedKeys returns the keys ordered by UTF-16 code units, the order
// canonical JSON requires. It differs from byte order for characters
// outside the basic multilingual plane.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// MarshalJSON writes the object with sorted keys. Unlike MarshalCanonical
// it tolerates Null and applies the usual HTML escaping.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalValue encodes v as plain JSON.
func MarshalValue(v Value) ([]byte, error) {
	switch v := v.(type) {
	case Null:
		return []byte("null"), nil
	case Str:
		return json.Marshal(string(v))
	case Int:
		return json.Marshal(int64(v))
	case Bool:
		return json.Marshal(bool(v))
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, el := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalValue(el)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Object:
		return v.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type %T", v)
	}
}

// MarshalIndent encodes v as indented JSON for display.
func MarshalIndent(v Value) ([]byte, error) {
	raw, err := MarshalValue(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
