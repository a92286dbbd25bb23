// Package detail models the schema-free part of a medical record: an ordered
// mapping from string keys to tagged values. Insertion order is kept for
// display; hashing goes through canonical JSON, which sorts keys.
package detail

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is one node of a detail tree. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  json.Number
	b    bool
	m    *Map
	list []Value
}

func Null() Value                { return Value{} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }
func Int(n int64) Value          { return Number(json.Number(strconv.FormatInt(n, 10))) }
func Object(m *Map) Value        { return Value{kind: KindMap, m: m} }
func List(items ...Value) Value  { return Value{kind: KindList, list: items} }

func (v Value) Kind() Kind { return v.kind }

// AsString returns the string payload; ok is false for other kinds.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsNumber() (json.Number, bool) { return v.num, v.kind == KindNumber }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsMap() (*Map, bool) { return v.m, v.kind == KindMap }

func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return v.m.MarshalJSON()
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler, preserving object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Map is an insertion-ordered string-keyed mapping.
type Map struct {
	keys   []string
	values map[string]Value
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

// Set stores v under key. Replacing an existing key keeps its position.
func (m *Map) Set(key string, v Value) *Map {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
	return m
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// MarshalJSON writes keys in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if m != nil {
		for i, k := range m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := m.values[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order. Duplicate keys are
// rejected.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	parsed, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("detail: expected object, got %s", v.Kind())
	}
	*m = *parsed
	return nil
}

var errDuplicateKey = errors.New("detail: duplicate key")

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, _ := keyTok.(string)
				if _, dup := m.values[key]; dup {
					return Value{}, fmt.Errorf("%w %q", errDuplicateKey, key)
				}
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Object(m), nil
		case '[':
			items := []Value{}
			for dec.More() {
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, child)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(items...), nil
		}
	}
	return Value{}, fmt.Errorf("detail: unexpected token %v", tok)
}

// Limits bounds the shape of a tree accepted from clients.
type Limits struct {
	MaxDepth   int
	MaxEntries int
}

// Check walks the tree and fails when it is deeper or larger than allowed.
func (m *Map) Check(l Limits) error {
	count := 0
	return checkMap(m, 1, l, &count)
}

func checkMap(m *Map, depth int, l Limits, count *int) error {
	if l.MaxDepth > 0 && depth > l.MaxDepth {
		return fmt.Errorf("details nested deeper than %d levels", l.MaxDepth)
	}
	for _, k := range m.keys {
		if err := checkValue(m.values[k], depth, l, count); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(v Value, depth int, l Limits, count *int) error {
	*count++
	if l.MaxEntries > 0 && *count > l.MaxEntries {
		return fmt.Errorf("details contain more than %d values", l.MaxEntries)
	}
	switch v.kind {
	case KindMap:
		if v.m != nil {
			return checkMap(v.m, depth+1, l, count)
		}
	case KindList:
		if l.MaxDepth > 0 && depth+1 > l.MaxDepth {
			return fmt.Errorf("details nested deeper than %d levels", l.MaxDepth)
		}
		for _, item := range v.list {
			if err := checkValue(item, depth+1, l, count); err != nil {
				return err
			}
		}
	}
	return nil
}
