// Package report classifies runtime failures and queues them for display
// on the consumer goroutine.
package report

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	SocketError Kind = iota + 1
	FileError
	ProtocolError
	ArgumentError
)

var (
	ErrSocket   = errors.New("socket error")
	ErrFile     = errors.New("file error")
	ErrProtocol = errors.New("protocol error")
	ErrArgument = errors.New("argument error")
)

func (k Kind) String() string {
	switch k {
	case SocketError:
		return "socket"
	case FileError:
		return "file"
	case ProtocolError:
		return "protocol"
	case ArgumentError:
		return "argument"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case SocketError:
		return ErrSocket
	case FileError:
		return ErrFile
	case ProtocolError:
		return ErrProtocol
	case ArgumentError:
		return ErrArgument
	default:
		return nil
	}
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Socket(op string, err error) *Error   { return New(SocketError, op, err) }
func File(op string, err error) *Error     { return New(FileError, op, err) }
func Protocol(op string, err error) *Error { return New(ProtocolError, op, err) }
func Argument(op string, err error) *Error { return New(ArgumentError, op, err) }

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String() + " error"
	case e.Err == nil:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	case e.Op == "":
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel so callers can test errors.Is(err, ErrSocket).
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Classify returns err as an *Error, wrapping it with kind when it carries
// no classification of its own.
func Classify(kind Kind, op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(kind, op, err)
}
