// Package bencode implements the Bencode codec used throughout bitleech: a
// tagged Value type plus a cursor-based decoder. DecodeDictWithSpans returns
// the raw byte range of each value of a top-level dictionary so callers can
// recover exact sub-slices (needed for the info-hash); byte ranges of values
// nested deeper than that are not exposed.
package bencode

import "github.com/pkg/errors"

// ErrMalformed is the sentinel cause wrapped by every decode/encode failure
// that stems from invalid input, per the spec's MalformedInput taxonomy.
var ErrMalformed = errors.New("malformed bencode input")

// Kind tags which of the four Bencode variants a Value holds.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindList
	KindDict
)

// Value is a sum type over the four Bencode variants. Exactly one of the
// accessor methods below is meaningful for a given Value, selected by Kind().
type Value struct {
	kind Kind
	str  []byte
	num  int64
	list []Value
	dict *Dict
}

func String(b []byte) Value { return Value{kind: KindString, str: b} }
func Int(n int64) Value     { return Value{kind: KindInt, num: n} }
func List(v []Value) Value  { return Value{kind: KindList, list: v} }
func DictOf(d *Dict) Value  { return Value{kind: KindDict, dict: d} }

func (v Value) Kind() Kind { return v.kind }

// Bytes returns the raw byte-string payload, failing with ErrMalformed if v
// is not a string.
func (v Value) Bytes() ([]byte, error) {
	if v.kind != KindString {
		return nil, errors.Wrapf(ErrMalformed, "expected bencode string, got kind %d", v.kind)
	}
	return v.str, nil
}

// Str is Bytes as a string, for the common case of text keys/values.
func (v Value) Str() (string, error) {
	b, err := v.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (v Value) Int() (int64, error) {
	if v.kind != KindInt {
		return 0, errors.Wrapf(ErrMalformed, "expected bencode integer, got kind %d", v.kind)
	}
	return v.num, nil
}

func (v Value) List() ([]Value, error) {
	if v.kind != KindList {
		return nil, errors.Wrapf(ErrMalformed, "expected bencode list, got kind %d", v.kind)
	}
	return v.list, nil
}

func (v Value) Dict() (*Dict, error) {
	if v.kind != KindDict {
		return nil, errors.Wrapf(ErrMalformed, "expected bencode dict, got kind %d", v.kind)
	}
	return v.dict, nil
}

// Dict is an order-preserving string-keyed map: Bencode dictionary keys are
// byte strings with no implied runtime ordering requirement on decode, but we
// keep insertion order for Keys and MarshalJSON. Encode ignores it and always
// emits keys in sorted order.
type Dict struct {
	keys   []string
	values map[string]Value
}

func NewDict() *Dict {
	return &Dict{values: make(map[string]Value)}
}

func (d *Dict) Set(key string, v Value) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// GetStr fetches a required string field, wrapping absence/type mismatch as
// ErrMalformed.
func (d *Dict) GetStr(key string) (string, error) {
	v, ok := d.values[key]
	if !ok {
		return "", errors.Wrapf(ErrMalformed, "missing key %q", key)
	}
	return v.Str()
}

func (d *Dict) GetInt(key string) (int64, error) {
	v, ok := d.values[key]
	if !ok {
		return 0, errors.Wrapf(ErrMalformed, "missing key %q", key)
	}
	return v.Int()
}

// Keys returns keys in insertion order.
func (d *Dict) Keys() []string { return d.keys }

func (d *Dict) Len() int { return len(d.keys) }
