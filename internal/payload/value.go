package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over decoded document nodes.
// Only Null, String, Number, Bool, Array, and Object implement it.
type Value interface {
	payloadValue() // Sealed
}

// Null is an explicit JSON null or an empty XML element.
type Null struct{}

func (Null) payloadValue() {}

// String is a text leaf.
type String string

func (String) payloadValue() {}

// Number keeps the decimal text exactly as it appeared in the document.
// Use Rat for numeric comparison.
type Number string

func (Number) payloadValue() {}

// maxExponent bounds the decimal exponent Rat will expand.
const maxExponent = 4096

// Float parses the number. ok is false for text that is not a finite number.
func (n Number) Float() (f float64, ok bool) {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Rat returns the exact value of a JSON number. ok is false for any other
// text and for exponents beyond maxExponent.
func (n Number) Rat() (r *big.Rat, ok bool) {
	s := string(n)
	if s == "" || (s[0] != '-' && (s[0] < '0' || s[0] > '9')) || !json.Valid([]byte(s)) {
		return nil, false
	}
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(strings.TrimPrefix(s[i+1:], "+"))
		if err != nil || exp > maxExponent || exp < -maxExponent {
			return nil, false
		}
	}
	r, ok = new(big.Rat).SetString(s)
	return r, ok
}

// Canonical returns an exact normalized spelling so that 1, 1.0 and 1e0
// agree while distinct values never collide.
func (n Number) Canonical() string {
	r, ok := n.Rat()
	if !ok {
		return string(n)
	}
	if r.IsInt() {
		return r.Num().String()
	}
	prec := 0
	scaled := new(big.Rat).Set(r)
	ten := big.NewRat(10, 1)
	for !scaled.IsInt() {
		scaled.Mul(scaled, ten)
		prec++
	}
	return r.FloatString(prec)
}

// Bool is a boolean leaf.
type Bool bool

func (Bool) payloadValue() {}

// Array is an ordered sequence. Comparison treats it as a multiset.
type Array []Value

func (Array) payloadValue() {}

// Object maps keys to values. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) payloadValue() {}

// Kind names the node type, used in type-change reports.
func Kind(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// compareKeys orders strings by UTF-16 code units.
// Go's native string order is UTF-8 and differs outside the BMP.
func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Size counts the nodes in a tree: 1 for a leaf, 1 plus children for containers.
func Size(v Value) int {
	switch val := v.(type) {
	case Array:
		n := 1
		for _, elem := range val {
			n += Size(elem)
		}
		return n
	case Object:
		n := 1
		for _, elem := range val {
			n += Size(elem)
		}
		return n
	default:
		return 1
	}
}

// MarshalJSON renders an object with sorted keys.
// This is display output; use MarshalCanonical for hashing.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON renders an array in its stored order.
func (arr Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON writes the number text unquoted when it is valid JSON.
func (n Number) MarshalJSON() ([]byte, error) {
	if _, ok := n.Float(); ok && json.Valid([]byte(n)) {
		return []byte(n), nil
	}
	return json.Marshal(string(n))
}

// MarshalValue marshals any Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return val.MarshalJSON()
	case String:
		return json.Marshal(string(val))
	case Number:
		return val.MarshalJSON()
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown payload value type: %T", v)
	}
}
