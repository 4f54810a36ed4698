package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Format is the declared structured-text format of a document.
type Format string

const (
	// FormatJSON is object/array-leading text.
	FormatJSON Format = "json"

	// FormatXML is tag-leading text.
	FormatXML Format = "xml"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatXML}

// ErrFormatMismatch indicates a payload does not start the way its declared
// format requires.
var ErrFormatMismatch = errors.New("payload does not match declared format")

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatXML:
		return FormatXML, nil
	default:
		return "", fmt.Errorf("unknown format %q: must be one of %v", s, Formats)
	}
}

// String implements fmt.Stringer.
func (f Format) String() string {
	return string(f)
}

// CheckLeading verifies the first significant character of body matches the
// format: '{' or '[' for json, '<' for xml. One wrapping layer of quotes is
// ignored, since XML documents are sometimes stored as JSON strings.
func CheckLeading(format Format, body []byte) error {
	text := strings.TrimSpace(string(body))
	if format == FormatXML {
		text = strings.TrimSpace(Unquote(text))
	}
	if text == "" {
		return fmt.Errorf("%w: empty payload for %s", ErrFormatMismatch, format)
	}

	switch format {
	case FormatJSON:
		if text[0] == '{' || text[0] == '[' {
			return nil
		}
	case FormatXML:
		if text[0] == '<' {
			return nil
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return fmt.Errorf("%w: %s payload starts with %q", ErrFormatMismatch, format, preview(text))
}

// Unquote strips one layer of wrapping double quotes and the escaping that
// came with it. Text that is not quoted is returned unchanged.
func Unquote(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '"' || trimmed[len(trimmed)-1] != '"' {
		return text
	}

	var s string
	if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
		return s
	}

	// Not a valid JSON string: undo the common escapes by hand.
	inner := trimmed[1 : len(trimmed)-1]
	return strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\/`, "/", `\\`, `\`).Replace(inner)
}

func preview(s string) string {
	const limit = 16
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
