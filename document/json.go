package document

import (
	"bytes"
	"math"

	json "github.com/goccy/go-json"
)

// MarshalJSON renders d as JSON with mapping order preserved. XML
// attributes appear as "@name" keys. Non-finite floats become the strings
// "NaN", "+Inf" and "-Inf".
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, d); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, d Document) error {
	if len(d.attrs) > 0 {
		d = projectAttrs(d)
	}

	switch d.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool, KindInt:
		buf.WriteString(d.Text())
	case KindFloat:
		if math.IsNaN(d.f) || math.IsInf(d.f, 0) {
			return writeJSONString(buf, formatFloat(d.f))
		}

		b, err := json.Marshal(d.f)
		if err != nil {
			return err
		}

		buf.Write(b)
	case KindString:
		return writeJSONString(buf, d.s)
	case KindSequence:
		buf.WriteByte('[')

		for i, item := range d.items {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}

		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')

		for i, e := range d.entries {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := writeJSONString(buf, e.Key); err != nil {
				return err
			}

			buf.WriteByte(':')

			if err := writeJSON(buf, e.Value); err != nil {
				return err
			}
		}

		buf.WriteByte('}')
	}

	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}

	buf.Write(b)

	return nil
}
