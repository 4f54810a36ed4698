package payload

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultRecordType is the clinical sub-record extracted from an envelope.
const DefaultRecordType = "Patient"

// ContainerType is the resource type of a multi-resource envelope.
const ContainerType = "Bundle"

var (
	// ErrNoClinicalRecord indicates an envelope holds no sub-record of the
	// requested type.
	ErrNoClinicalRecord = errors.New("envelope holds no clinical record")

	// ErrAmbiguousRecord indicates an envelope holds more than one sub-record
	// of the requested type.
	ErrAmbiguousRecord = errors.New("envelope holds more than one clinical record")
)

// IsContainer reports whether v is a decoded envelope.
// JSON envelopes carry resourceType "Bundle"; XML envelopes decode to a
// single "Bundle" root key.
func IsContainer(v Value) bool {
	obj, ok := v.(Object)
	if !ok {
		return false
	}
	if rt, ok := obj["resourceType"].(String); ok {
		return string(rt) == ContainerType
	}
	if len(obj) == 1 {
		_, ok := obj[ContainerType]
		return ok
	}
	return false
}

// Unwrap narrows an envelope to its single clinical sub-record of type
// record. Values that are not envelopes are returned unchanged.
//
// The result has the same shape a target system returns when the record is
// retrieved on its own: the resource object for JSON, {record: {...}} for XML.
func Unwrap(v Value, record string) (Value, error) {
	if record == "" {
		record = DefaultRecordType
	}
	if !IsContainer(v) {
		return v, nil
	}

	obj := v.(Object)
	var matches []Value
	if _, ok := obj["resourceType"]; ok {
		for _, entry := range entries(obj["entry"]) {
			res, ok := entry["resource"].(Object)
			if !ok {
				continue
			}
			if rt, ok := res["resourceType"].(String); ok && string(rt) == record {
				matches = append(matches, res)
			}
		}
	} else {
		bundle, _ := obj[ContainerType].(Object)
		for _, entry := range entries(bundle["entry"]) {
			res, ok := entry["resource"].(Object)
			if !ok {
				continue
			}
			if inner, ok := res[record]; ok {
				matches = append(matches, Object{record: inner})
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: type %s", ErrNoClinicalRecord, record)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %d records of type %s", ErrAmbiguousRecord, len(matches), record)
	}
}

// entries accepts a single entry object or an array of them; XML decoding
// produces the former when a bundle has one entry.
func entries(v Value) []Object {
	switch val := v.(type) {
	case Object:
		return []Object{val}
	case Array:
		out := make([]Object, 0, len(val))
		for _, elem := range val {
			if obj, ok := elem.(Object); ok {
				out = append(out, obj)
			}
		}
		return out
	default:
		return nil
	}
}

// Extract returns the verbatim bytes of the clinical sub-record inside an
// envelope, suitable for sending to a target system. Documents that are not
// envelopes are returned unchanged.
func Extract(format Format, body []byte, record string) ([]byte, error) {
	if record == "" {
		record = DefaultRecordType
	}
	switch format {
	case FormatJSON:
		return extractJSON(body, record)
	case FormatXML:
		return extractXML(body, record)
	default:
		return nil, fmt.Errorf("extract: unknown format %q", format)
	}
}

func extractJSON(body []byte, record string) ([]byte, error) {
	var bundle struct {
		ResourceType string `json:"resourceType"`
		Entry        []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &bundle); err != nil {
		// Arrays and other shapes are not envelopes.
		var probe any
		if json.Unmarshal(body, &probe) == nil {
			return body, nil
		}
		return nil, fmt.Errorf("%w: json: %v", ErrMalformed, err)
	}
	if bundle.ResourceType != ContainerType {
		return body, nil
	}

	var matches []json.RawMessage
	for _, e := range bundle.Entry {
		var head struct {
			ResourceType string `json:"resourceType"`
		}
		if len(e.Resource) == 0 || json.Unmarshal(e.Resource, &head) != nil {
			continue
		}
		if head.ResourceType == record {
			matches = append(matches, e.Resource)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: type %s", ErrNoClinicalRecord, record)
	case 1:
		return []byte(matches[0]), nil
	default:
		return nil, fmt.Errorf("%w: %d records of type %s", ErrAmbiguousRecord, len(matches), record)
	}
}

// extractXML slices the <record> element found at Bundle/entry/resource out
// of the source text. A default namespace declared on an ancestor is copied
// onto the extracted element so it stays valid on its own.
func extractXML(body []byte, record string) ([]byte, error) {
	text := Unquote(string(body))
	dec := xml.NewDecoder(strings.NewReader(text))

	var path []string
	var defaultNS string
	var matches []string
	start := int64(-1)
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: xml: %v", ErrMalformed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			path = append(path, t.Name.Local)
			if len(path) == 1 {
				if t.Name.Local != ContainerType {
					return []byte(text), nil
				}
				defaultNS = t.Name.Space
			}
			if start < 0 && len(path) == 4 && path[1] == "entry" && path[2] == "resource" && path[3] == record {
				start = offset
			}
		case xml.EndElement:
			if start >= 0 && len(path) == 4 {
				end := dec.InputOffset()
				matches = append(matches, withNamespace(text[start:end], defaultNS))
				start = -1
			}
			path = path[:len(path)-1]
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: type %s", ErrNoClinicalRecord, record)
	case 1:
		return []byte(matches[0]), nil
	default:
		return nil, fmt.Errorf("%w: %d records of type %s", ErrAmbiguousRecord, len(matches), record)
	}
}

func withNamespace(element, ns string) string {
	if ns == "" {
		return element
	}
	end := strings.IndexAny(element, " \t\r\n/>")
	if end < 0 {
		return element
	}
	tag := element[:strings.Index(element, ">")+1]
	if strings.Contains(tag, "xmlns=") {
		return element
	}
	return element[:end] + ` xmlns="` + ns + `"` + element[end:]
}
