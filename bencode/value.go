package bencode

import (
	"bytes"
	"fmt"
	"sort"
)

// --------------------------------------------------------------------------------------------- //

/*
Value is a decoded bencode value. It is one of Integer, String, List or Dict;
the unexported marker method keeps the set closed.
*/
type Value interface {
	Kind() Kind
	isValue()
}

type Kind uint8

const (
	KindInteger Kind = iota
	KindString
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindString:
		return "byte string"
	case KindList:
		return "list"
	case KindDict:
		return "dictionary"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Integer is a signed bencode integer (i<digits>e).
type Integer int64

// String is a raw byte string. It is not assumed to be valid UTF-8.
type String []byte

// List keeps its elements in wire order.
type List []Value

// Dict maps raw key bytes to values. Go strings hold arbitrary bytes, so
// keys that are not valid text survive untouched.
type Dict map[string]Value

func (Integer) Kind() Kind { return KindInteger }
func (String) Kind() Kind  { return KindString }
func (List) Kind() Kind    { return KindList }
func (Dict) Kind() Kind    { return KindDict }

func (Integer) isValue() {}
func (String) isValue()  {}
func (List) isValue()    {}
func (Dict) isValue()    {}

// --------------------------------------------------------------------------------------------- //

// Keys returns the dictionary keys in canonical (raw byte) order.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

func (d Dict) Lookup(key string) (Value, bool) {
	v, ok := d[key]
	return v, ok
}

/*
Bytes returns the byte string stored under key.

Returns:
  - []byte: The raw bytes.
  - error: ErrMissingKey if absent, ErrMalformed if the value is another kind.
*/
func (d Dict) Bytes(key string) ([]byte, error) {
	v, ok := d[key]
	if !ok {
		return nil, missingKey(key)
	}

	s, ok := v.(String)
	if !ok {
		return nil, wrongKind(key, KindString, v)
	}

	return []byte(s), nil
}

func (d Dict) Int(key string) (int64, error) {
	v, ok := d[key]
	if !ok {
		return 0, missingKey(key)
	}

	i, ok := v.(Integer)
	if !ok {
		return 0, wrongKind(key, KindInteger, v)
	}

	return int64(i), nil
}

func (d Dict) List(key string) (List, error) {
	v, ok := d[key]
	if !ok {
		return nil, missingKey(key)
	}

	l, ok := v.(List)
	if !ok {
		return nil, wrongKind(key, KindList, v)
	}

	return l, nil
}

func (d Dict) Dict(key string) (Dict, error) {
	v, ok := d[key]
	if !ok {
		return nil, missingKey(key)
	}

	sub, ok := v.(Dict)
	if !ok {
		return nil, wrongKind(key, KindDict, v)
	}

	return sub, nil
}

// --------------------------------------------------------------------------------------------- //

// Equal reports whether a and b hold the same bencode value.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Integer:
		bv, ok := b.(Integer)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && bytes.Equal(av, bv)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}

		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}

		return true
	case Dict:
		bv, ok := b.(Dict)
		if !ok || len(av) != len(bv) {
			return false
		}

		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}

		return true
	case nil:
		return b == nil
	default:
		return false
	}
}

/*
Interface converts v into plain Go values: int64, string, []any and
map[string]any. Byte strings become Go strings byte for byte, which is what
encoding/json expects when rendering decoded values for humans.
*/
func Interface(v Value) any {
	switch val := v.(type) {
	case Integer:
		return int64(val)
	case String:
		return string(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Interface(elem)
		}

		return out
	case Dict:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Interface(elem)
		}

		return out
	default:
		return nil
	}
}

// --------------------------------------------------------------------------------------------- //
