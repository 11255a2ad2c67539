package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed           = errors.New("protocol: malformed message")
	ErrInvalidMagic        = errors.New("protocol: invalid magic")
	ErrTruncated           = errors.New("protocol: truncated data")
	ErrUnexpectedByte      = errors.New("protocol: unexpected byte")
	ErrDuplicateProperty   = errors.New("protocol: duplicate property name")
	ErrTooDeep             = errors.New("protocol: objects nested too deeply")
	ErrUnencodable         = errors.New("protocol: value cannot be encoded")
	ErrMessageTypeMismatch = errors.New("protocol: message type mismatch")
)

// SyntaxError locates a grammar violation. It matches ErrMalformed and its cause.
type SyntaxError struct {
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
}

func (e *SyntaxError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// MissingPropertyError indicates a required property was not present.
type MissingPropertyError struct {
	Type string
	Name string
}

func (e MissingPropertyError) Error() string {
	return fmt.Sprintf("protocol: %s message missing required property %q", e.Type, e.Name)
}
