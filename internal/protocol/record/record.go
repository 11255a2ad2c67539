// Package record is the flat binary record exchanged through the mailbox.
//
// Header layout (8 bytes):
//
//	[0]   kind
//	[1]   reserved, zero
//	[2:4] total record length including header, host byte order
//	[4:8] IPv4 address, network byte order
//
// A RESPONSE record carries a NUL-terminated display name after the header.
package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
)

const HeaderLen = 8

// MaxLen is the largest total length the header can describe.
const MaxLen = int(^uint16(0))

type Kind uint8

const (
	KindResponse   Kind = 0x00
	KindConnection Kind = 0x01
)

var (
	ErrShortHeader    = errors.New("record: short header")
	ErrLengthTooSmall = errors.New("record: length smaller than header")
	ErrLengthMismatch = errors.New("record: length does not match data")
	ErrTooLarge       = errors.New("record: record too large")
	ErrUnknownKind    = errors.New("record: unknown kind")
	ErrAddress        = errors.New("record: address is not IPv4")
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindConnection:
		return "connection"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// Record is one mailbox entry.
type Record struct {
	Kind    Kind
	Address netip.Addr
	Trailer []byte
}

// Response tells the foreground app about a discovered peer.
func Response(name string, addr netip.Addr) Record {
	trailer := make([]byte, len(name)+1)
	copy(trailer, name)
	return Record{Kind: KindResponse, Address: addr, Trailer: trailer}
}

// Connection asks the daemon to start a receiver for addr.
func Connection(addr netip.Addr) Record {
	return Record{Kind: KindConnection, Address: addr}
}

// Name returns the trailer up to its first NUL.
func (r Record) Name() string {
	if i := bytes.IndexByte(r.Trailer, 0); i >= 0 {
		return string(r.Trailer[:i])
	}
	return string(r.Trailer)
}

func (r Record) Len() int {
	return HeaderLen + len(r.Trailer)
}

func Encode(r Record) ([]byte, error) {
	if !r.Address.Is4() {
		return nil, ErrAddress
	}
	if r.Kind != KindResponse && r.Kind != KindConnection {
		return nil, ErrUnknownKind
	}
	total := r.Len()
	if total > MaxLen {
		return nil, ErrTooLarge
	}
	buf := make([]byte, total)
	buf[0] = byte(r.Kind)
	binary.NativeEndian.PutUint16(buf[2:4], uint16(total))
	ip := r.Address.As4()
	copy(buf[4:8], ip[:])
	copy(buf[HeaderLen:], r.Trailer)
	return buf, nil
}

// PeekLength returns the total length announced by a header.
func PeekLength(header []byte) (int, error) {
	if len(header) < HeaderLen {
		return 0, ErrShortHeader
	}
	n := int(binary.NativeEndian.Uint16(header[2:4]))
	if n < HeaderLen {
		return 0, ErrLengthTooSmall
	}
	return n, nil
}

// Decode parses exactly one record occupying all of b.
func Decode(b []byte) (Record, error) {
	n, err := PeekLength(b)
	if err != nil {
		return Record{}, err
	}
	if n != len(b) {
		return Record{}, ErrLengthMismatch
	}
	kind := Kind(b[0])
	if kind != KindResponse && kind != KindConnection {
		return Record{}, ErrUnknownKind
	}
	var trailer []byte
	if n > HeaderLen {
		trailer = make([]byte, n-HeaderLen)
		copy(trailer, b[HeaderLen:])
	}
	return Record{
		Kind:    kind,
		Address: netip.AddrFrom4([4]byte(b[4:8])),
		Trailer: trailer,
	}, nil
}

// ReadRecord reads a header, then the rest of the record it describes.
func ReadRecord(r io.Reader) (Record, error) {
	var head [HeaderLen]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, ErrShortHeader
		}
		return Record{}, err
	}
	n, err := PeekLength(head[:])
	if err != nil {
		return Record{}, err
	}
	buf := make([]byte, n)
	copy(buf, head[:])
	if _, err := io.ReadFull(r, buf[HeaderLen:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, ErrLengthMismatch
		}
		return Record{}, err
	}
	return Decode(buf)
}

func WriteRecord(w io.Writer, r Record) error {
	b, err := Encode(r)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
