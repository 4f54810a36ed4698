package payload

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored hashes.
const (
	DomainValue   = "telephone/value/v1"
	DomainPayload = "telephone/payload/v1"
)

// MarshalCanonical produces RFC 8785 style canonical JSON:
// keys sorted by UTF-16 code units, strings NFC normalized, no HTML escaping,
// numbers in normalized spelling. Array order is preserved.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		b, err := marshalCanonicalString(string(val))
		if err != nil {
			return err
		}
		buf.Write(b)
	case Number:
		if _, ok := val.Rat(); !ok {
			return fmt.Errorf("invalid number %q", string(val))
		}
		buf.WriteString(val.Canonical())
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalCanonicalString(k)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// marshalCanonicalString encodes s without HTML escaping after NFC
// normalization. U+2028 and U+2029 are written literally.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators turns escaped U+2028 and U+2029 back into literal
// characters unless the backslash itself is escaped.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+6 <= len(data) && data[i] == '\\' && string(data[i+1:i+5]) == "u202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns an order-insensitive content hash: two values hash equally
// exactly when they are structurally identical with every array treated as
// a multiset.
func Hash(v Value) string {
	return hashWithDomain(DomainValue, []byte(structuralKey(v)))
}

// PayloadHash identifies verbatim payload bytes.
func PayloadHash(body []byte) string {
	return hashWithDomain(DomainPayload, body)
}

func structuralKey(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "n"
	case String:
		return "s" + strings.ReplaceAll(norm.NFC.String(string(val)), "\x00", "\x00\x00") + "\x00"
	case Number:
		return "d" + val.Canonical() + "\x00"
	case Bool:
		if val {
			return "t"
		}
		return "f"
	case Array:
		keys := make([]string, len(val))
		for i, elem := range val {
			keys[i] = Hash(elem)
		}
		slices.Sort(keys)
		return "[" + strings.Join(keys, ",") + "]"
	case Object:
		var b strings.Builder
		b.WriteByte('{')
		for _, k := range val.SortedKeys() {
			ks, _ := marshalCanonicalString(k)
			b.Write(ks)
			b.WriteByte(':')
			b.WriteString(Hash(val[k]))
			b.WriteByte(',')
		}
		b.WriteByte('}')
		return b.String()
	default:
		return fmt.Sprintf("?%T", v)
	}
}
