// Package transport wraps the two socket roles squirrel needs: a broadcast
// capable datagram socket for discovery and a stream socket for transfers.
//
// Every socket moves whole protocol messages. Failures come back as
// *report.Error with kind SocketError, or ProtocolError when bytes arrived
// but did not parse.
package transport

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/danmuck/squirrel/internal/protocol"
)

const (
	// DefaultBufferSize is the datagram receive buffer and stream read chunk.
	DefaultBufferSize     = 512
	DefaultConnectTimeout = 5 * time.Second
	DefaultIOTimeout      = 15 * time.Second
)

var (
	ErrNotCreated     = errors.New("transport: socket not created")
	ErrAlreadyCreated = errors.New("transport: socket already created")
	ErrAlreadyBound   = errors.New("transport: socket already bound")
	ErrNotBound       = errors.New("transport: socket not bound")
	ErrNotListening   = errors.New("transport: socket not listening")
	ErrNotConnected   = errors.New("transport: socket not connected")
	ErrShortWrite     = errors.New("transport: short write")
	ErrInvalidAddress = errors.New("transport: invalid address")
)

// DatagramSocket is the discovery socket: broadcast permitted, address reuse on.
type DatagramSocket interface {
	Create() error
	Bind(addr string, port int) error
	Send(msg *protocol.Message, addr string, port int) error
	// Receive blocks for one datagram. Datagrams longer than the buffer are
	// truncated before parsing.
	Receive() (*protocol.Message, net.Addr, error)
	LocalAddr() net.Addr
	Destroy() error
}

// StreamSocket is the transfer socket. After Accept it carries the accepted
// connection and the listener is gone.
type StreamSocket interface {
	Create() error
	Bind(addr string, port int) error
	Connect(addr string, port int) error
	Listen() error
	Accept() error
	Send(msg *protocol.Message) error
	// Receive reads until the peer closes, then parses what arrived.
	Receive() (*protocol.Message, error)
	LocalAddr() net.Addr
	Destroy() error
}

type Options struct {
	BufferSize     int
	ConnectTimeout time.Duration
	// IOTimeout bounds each stream read once connected. Zero disables it.
	IOTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		BufferSize:     DefaultBufferSize,
		ConnectTimeout: DefaultConnectTimeout,
		IOTimeout:      DefaultIOTimeout,
	}
}

func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.IOTimeout < 0 {
		o.IOTimeout = 0
	}
	return o
}

func hostPort(addr string, port int) (string, error) {
	if net.ParseIP(addr) == nil || port < 0 || port > 65535 {
		return "", ErrInvalidAddress
	}
	return net.JoinHostPort(addr, strconv.Itoa(port)), nil
}

// frame renders msg with the trailing NUL every sender appends.
func frame(msg *protocol.Message) ([]byte, error) {
	b, err := msg.Marshal()
	if err != nil {
		return nil, err
	}
	return append(b, 0), nil
}
