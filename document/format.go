package document

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a serialization format.
type Format int

// Supported formats.
const (
	YAML Format = iota + 1
	XML
)

func (f Format) String() string {
	switch f {
	case YAML:
		return "yaml"
	case XML:
		return "xml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat accepts "yaml", "yml" or "xml" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "yaml", "yml":
		return YAML, nil
	case "xml":
		return XML, nil
	default:
		return 0, fmt.Errorf("document: unknown format %q", s)
	}
}

// FormatOf guesses the format from a file extension.
func FormatOf(path string) (Format, bool) {
	f, err := ParseFormat(filepath.Ext(path))

	return f, err == nil
}

// Parse decodes text in the given format.
func Parse(text string, f Format) (Document, error) {
	switch f {
	case YAML:
		return ParseYAML(text)
	case XML:
		return ParseXML(text)
	default:
		return Document{}, fmt.Errorf("document: unknown format %v", f)
	}
}

// Serialize encodes d in the given format. Parsing the output yields a
// document equal to d whenever d was itself produced by parsing that format.
func Serialize(d Document, f Format) (string, error) {
	switch f {
	case YAML:
		return serializeYAML(d)
	case XML:
		return serializeXML(d)
	default:
		return "", fmt.Errorf("document: unknown format %v", f)
	}
}
