package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/squirrel/internal/logging"
	"github.com/danmuck/squirrel/internal/protocol"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/rs/zerolog"
)

type streamSocket struct {
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	created   bool
	destroyed bool
	bindAddr  string
	ln        net.Listener
	conn      net.Conn
}

func NewStreamSocket(opts Options) StreamSocket {
	return &streamSocket{
		opts: opts.WithDefaults(),
		log:  logging.Logger("transport.stream"),
	}
}

func (s *streamSocket) Create() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created && !s.destroyed {
		return report.Socket("create", ErrAlreadyCreated)
	}
	s.created = true
	s.destroyed = false
	s.bindAddr = ""
	return nil
}

func (s *streamSocket) live() bool {
	return s.created && !s.destroyed
}

// Bind records the local address; the listener is opened by Listen.
func (s *streamSocket) Bind(addr string, port int) error {
	hp, err := hostPort(addr, port)
	if err != nil {
		return report.Socket("bind", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live() {
		return report.Socket("bind", ErrNotCreated)
	}
	s.bindAddr = hp
	return nil
}

func (s *streamSocket) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live() {
		return report.Socket("listen", ErrNotCreated)
	}
	if s.bindAddr == "" {
		return report.Socket("listen", ErrNotBound)
	}
	lc := net.ListenConfig{Control: streamControl}
	ln, err := lc.Listen(context.Background(), "tcp4", s.bindAddr)
	if err != nil {
		return report.Socket("listen", err)
	}
	s.ln = ln
	s.log.Debug().Str("addr", ln.Addr().String()).Msg("transport.streamSocket.Listen listening")
	return nil
}

// Accept waits for one peer and replaces the listener with its connection.
func (s *streamSocket) Accept() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return report.Socket("accept", ErrNotListening)
	}

	conn, err := ln.Accept()
	_ = ln.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == ln {
		s.ln = nil
	}
	if err != nil {
		return report.Socket("accept", err)
	}
	if !s.live() {
		_ = conn.Close()
		return report.Socket("accept", net.ErrClosed)
	}
	s.conn = conn
	s.log.Debug().Str("peer", conn.RemoteAddr().String()).Msg("transport.streamSocket.Accept accepted")
	return nil
}

func (s *streamSocket) Connect(addr string, port int) error {
	hp, err := hostPort(addr, port)
	if err != nil {
		return report.Socket("connect", err)
	}
	s.mu.Lock()
	if !s.live() {
		s.mu.Unlock()
		return report.Socket("connect", ErrNotCreated)
	}
	d := net.Dialer{Timeout: s.opts.ConnectTimeout, Control: streamControl}
	if s.bindAddr != "" {
		local, err := net.ResolveTCPAddr("tcp4", s.bindAddr)
		if err == nil {
			d.LocalAddr = local
		}
	}
	s.mu.Unlock()

	conn, err := d.Dial("tcp4", hp)
	if err != nil {
		return report.Socket("connect", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live() {
		_ = conn.Close()
		return report.Socket("connect", net.ErrClosed)
	}
	s.conn = conn
	return nil
}

func (s *streamSocket) connected() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live() {
		return nil, ErrNotCreated
	}
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

func (s *streamSocket) Send(msg *protocol.Message) error {
	conn, err := s.connected()
	if err != nil {
		return report.Socket("send", err)
	}
	b, err := frame(msg)
	if err != nil {
		return report.Protocol("send", err)
	}
	n, err := conn.Write(b)
	if err != nil {
		return report.Socket("send", err)
	}
	if n != len(b) {
		return report.Socket("send", ErrShortWrite)
	}
	return nil
}

func (s *streamSocket) Receive() (*protocol.Message, error) {
	conn, err := s.connected()
	if err != nil {
		return nil, report.Socket("receive", err)
	}

	var data bytes.Buffer
	chunk := make([]byte, s.opts.BufferSize)
	var readErr error
	for {
		if s.opts.IOTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.IOTimeout))
		}
		n, err := conn.Read(chunk)
		data.Write(chunk[:n])
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}

	if data.Len() == 0 {
		if readErr != nil {
			return nil, report.Socket("receive", readErr)
		}
		return nil, report.Protocol("receive", io.ErrUnexpectedEOF)
	}
	msg, err := protocol.Deserialize(&data)
	if err != nil {
		if readErr != nil {
			return nil, report.Socket("receive", readErr)
		}
		return nil, report.Protocol("receive", err)
	}
	return msg, nil
}

func (s *streamSocket) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.conn != nil:
		return s.conn.LocalAddr()
	case s.ln != nil:
		return s.ln.Addr()
	default:
		return nil
	}
}

// Destroy shuts down the write side, then releases the socket. A peer that
// already went away is not an error.
func (s *streamSocket) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live() {
		return nil
	}
	s.destroyed = true

	var errs []error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		s.ln = nil
	}
	if s.conn != nil {
		if tc, ok := s.conn.(*net.TCPConn); ok {
			if err := tc.CloseWrite(); err != nil && !notConnected(err) {
				errs = append(errs, err)
			}
		}
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		s.conn = nil
	}
	if err := errors.Join(errs...); err != nil {
		return report.Socket("destroy", err)
	}
	return nil
}

func notConnected(err error) bool {
	return errors.Is(err, syscall.ENOTCONN) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed)
}
