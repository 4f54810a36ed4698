package payload

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed wraps every decoding failure.
var ErrMalformed = errors.New("malformed payload")

// Decode parses body according to format.
func Decode(format Format, body []byte) (Value, error) {
	switch format {
	case FormatJSON:
		return DecodeJSON(body)
	case FormatXML:
		return DecodeXML(body)
	default:
		return nil, fmt.Errorf("decode: unknown format %q", format)
	}
}

// DecodeJSON parses a single JSON document. Numbers keep their source text.
func DecodeJSON(body []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: json: trailing data after document", ErrMalformed)
	}
	return fromJSON(raw)
}

func fromJSON(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return Number(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			pv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = pv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			pv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = pv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported json type: %T", v)
	}
}

// xmlElement is the intermediate tree built while tokenizing.
type xmlElement struct {
	name     string
	attrs    []xml.Attr
	children []*xmlElement
	text     strings.Builder
}

// DecodeXML converts tag-structured text to the nested-map form:
//
//	<Patient><id value="1"/><name>Ann</name></Patient>
//
// becomes
//
//	{"Patient": {"id": {"@value": "1"}, "name": "Ann"}}
//
// Namespace declarations are dropped and element names lose their prefix.
// A quoted document (an XML string stored as JSON text) is unquoted first.
func DecodeXML(body []byte) (Value, error) {
	text := Unquote(string(body))
	dec := xml.NewDecoder(strings.NewReader(text))

	var root *xmlElement
	var stack []*xmlElement
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: xml: %v", ErrMalformed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &xmlElement{name: t.Name.Local, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: xml: multiple root elements", ErrMalformed)
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			} else if strings.TrimSpace(string(t)) != "" {
				return nil, fmt.Errorf("%w: xml: text outside root element", ErrMalformed)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: xml: no root element", ErrMalformed)
	}
	return Object{root.name: root.value()}, nil
}

func (el *xmlElement) value() Value {
	obj := Object{}
	for _, a := range el.attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		obj["@"+a.Name.Local] = String(a.Value)
	}

	// Group children by name, keeping first-appearance order for arrays.
	var order []string
	groups := map[string][]Value{}
	for _, child := range el.children {
		if _, seen := groups[child.name]; !seen {
			order = append(order, child.name)
		}
		groups[child.name] = append(groups[child.name], child.value())
	}
	for _, name := range order {
		vals := groups[name]
		if len(vals) == 1 {
			obj[name] = vals[0]
		} else {
			obj[name] = Array(vals)
		}
	}

	text := strings.TrimSpace(el.text.String())
	if len(obj) == 0 {
		if text == "" {
			return Null{}
		}
		return String(text)
	}
	if text != "" {
		obj["#text"] = String(text)
	}
	return obj
}
