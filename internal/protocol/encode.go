package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Serialize writes msg to w using the wire grammar.
func (m *Message) Serialize(w io.Writer) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Marshal renders msg as magic plus root object. Names containing ':',
// strings containing '"' and a first name starting with '}' have no
// representation and are rejected.
func (m *Message) Marshal() ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnencodable)
	}
	var buf bytes.Buffer
	buf.WriteString(Magic)
	if err := writeObject(&buf, m.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeObject(buf *bytes.Buffer, o *Object) error {
	buf.WriteByte('{')
	if o != nil {
		for i, p := range o.props {
			if i > 0 {
				buf.WriteByte(',')
			}
			if strings.IndexByte(p.Name, ':') >= 0 {
				return fmt.Errorf("%w: property name %q contains ':'", ErrUnencodable, p.Name)
			}
			// "{}" would read back as an empty object.
			if i == 0 && strings.HasPrefix(p.Name, "}") {
				return fmt.Errorf("%w: first property name %q starts with '}'", ErrUnencodable, p.Name)
			}
			buf.WriteString(p.Name)
			buf.WriteByte(':')
			if err := writeValue(buf, p.Name, p.Value); err != nil {
				return err
			}
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, name string, v Value) error {
	switch val := v.(type) {
	case String:
		if strings.IndexByte(string(val), '"') >= 0 {
			return fmt.Errorf("%w: value of %q contains '\"'", ErrUnencodable, name)
		}
		buf.WriteByte('"')
		buf.WriteString(string(val))
		buf.WriteByte('"')
		return nil
	case *Object:
		return writeObject(buf, val)
	default:
		return fmt.Errorf("%w: property %q has no value", ErrUnencodable, name)
	}
}
