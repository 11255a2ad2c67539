package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxDepth bounds object nesting accepted by the decoder.
const MaxDepth = 64

// Unmarshal parses one message from b. Bytes after the root object are ignored.
func Unmarshal(b []byte) (*Message, error) {
	return Deserialize(bytes.NewReader(b))
}

// Deserialize reads one message from r. It stops after the root object's
// closing brace; anything after it is left to the caller.
func Deserialize(r io.Reader) (*Message, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	d := &decoder{r: br}

	magic := make([]byte, len(Magic))
	for i := range magic {
		c, err := d.next()
		if err != nil {
			return nil, err
		}
		magic[i] = c
	}
	if string(magic) != Magic {
		return nil, &SyntaxError{Offset: 0, Err: ErrInvalidMagic}
	}

	c, err := d.next()
	if err != nil {
		return nil, err
	}
	if c != '{' {
		return nil, d.unexpected(c, "'{'")
	}
	body, err := d.object(1)
	if err != nil {
		return nil, err
	}
	return &Message{Body: body}, nil
}

type decoder struct {
	r      io.ByteReader
	off    int
	peeked bool
	last   byte
}

func (d *decoder) next() (byte, error) {
	if d.peeked {
		d.peeked = false
		d.off++
		return d.last, nil
	}
	c, err := d.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, &SyntaxError{Offset: d.off, Err: ErrTruncated}
		}
		return 0, err
	}
	d.last = c
	d.off++
	return c, nil
}

func (d *decoder) peek() (byte, error) {
	if d.peeked {
		return d.last, nil
	}
	c, err := d.next()
	if err != nil {
		return 0, err
	}
	d.peeked = true
	d.off--
	return c, nil
}

func (d *decoder) unexpected(c byte, want string) error {
	return &SyntaxError{
		Offset: d.off - 1,
		Err:    fmt.Errorf("%w %q, want %s", ErrUnexpectedByte, c, want),
	}
}

// object parses pairs after an opening '{' up to and including '}'.
func (d *decoder) object(depth int) (*Object, error) {
	if depth > MaxDepth {
		return nil, &SyntaxError{Offset: d.off, Err: ErrTooDeep}
	}
	o := &Object{}
	c, err := d.peek()
	if err != nil {
		return nil, err
	}
	if c == '}' {
		_, _ = d.next()
		return o, nil
	}

	seen := make(map[string]struct{})
	for {
		start := d.off
		name, err := d.until(':')
		if err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			return nil, &SyntaxError{
				Offset: start,
				Err:    fmt.Errorf("%w %q", ErrDuplicateProperty, name),
			}
		}
		seen[name] = struct{}{}

		v, err := d.value(depth)
		if err != nil {
			return nil, err
		}
		o.props = append(o.props, Property{Name: name, Value: v})

		c, err := d.next()
		if err != nil {
			return nil, err
		}
		switch c {
		case ',':
			continue
		case '}':
			return o, nil
		default:
			return nil, d.unexpected(c, "',' or '}'")
		}
	}
}

func (d *decoder) value(depth int) (Value, error) {
	c, err := d.next()
	if err != nil {
		return nil, err
	}
	switch c {
	case '"':
		s, err := d.until('"')
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case '{':
		return d.object(depth + 1)
	default:
		return nil, d.unexpected(c, "'\"' or '{'")
	}
}

// until consumes bytes up to and including stop, returning those before it.
func (d *decoder) until(stop byte) (string, error) {
	var buf []byte
	for {
		c, err := d.next()
		if err != nil {
			return "", err
		}
		if c == stop {
			return string(buf), nil
		}
		buf = append(buf, c)
	}
}
