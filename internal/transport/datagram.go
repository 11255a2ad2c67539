package transport

import (
	"bytes"
	"context"
	"net"
	"sync"

	"github.com/danmuck/squirrel/internal/logging"
	"github.com/danmuck/squirrel/internal/protocol"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
)

type datagramSocket struct {
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	lc        *net.ListenConfig
	conn      net.PacketConn
	pconn     *ipv4.PacketConn
	destroyed bool
}

func NewDatagramSocket(opts Options) DatagramSocket {
	return &datagramSocket{
		opts: opts.WithDefaults(),
		log:  logging.Logger("transport.datagram"),
	}
}

// Create prepares broadcast and address-reuse options. The OS socket is
// opened and configured in Bind.
func (s *datagramSocket) Create() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lc != nil {
		return report.Socket("create", ErrAlreadyCreated)
	}
	s.lc = &net.ListenConfig{Control: datagramControl}
	s.destroyed = false
	return nil
}

func (s *datagramSocket) Bind(addr string, port int) error {
	hp, err := hostPort(addr, port)
	if err != nil {
		return report.Socket("bind", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lc == nil || s.destroyed {
		return report.Socket("bind", ErrNotCreated)
	}
	if s.conn != nil {
		return report.Socket("bind", ErrAlreadyBound)
	}
	conn, err := s.lc.ListenPacket(context.Background(), "udp4", hp)
	if err != nil {
		return report.Socket("bind", err)
	}
	s.conn = conn
	s.pconn = ipv4.NewPacketConn(conn)
	if err := s.pconn.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
		s.log.Debug().Err(err).Msg("transport.datagramSocket.Bind control messages unavailable")
	}
	s.log.Debug().Str("addr", conn.LocalAddr().String()).Msg("transport.datagramSocket.Bind bound")
	return nil
}

func (s *datagramSocket) current() (*ipv4.PacketConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lc == nil || s.destroyed {
		return nil, ErrNotCreated
	}
	if s.pconn == nil {
		return nil, ErrNotBound
	}
	return s.pconn, nil
}

func (s *datagramSocket) Send(msg *protocol.Message, addr string, port int) error {
	pc, err := s.current()
	if err != nil {
		return report.Socket("send", err)
	}
	b, err := frame(msg)
	if err != nil {
		return report.Protocol("send", err)
	}
	hp, err := hostPort(addr, port)
	if err != nil {
		return report.Socket("send", err)
	}
	dst, err := net.ResolveUDPAddr("udp4", hp)
	if err != nil {
		return report.Socket("send", err)
	}
	n, err := pc.WriteTo(b, nil, dst)
	if err != nil {
		return report.Socket("send", err)
	}
	if n != len(b) {
		return report.Socket("send", ErrShortWrite)
	}
	return nil
}

func (s *datagramSocket) Receive() (*protocol.Message, net.Addr, error) {
	pc, err := s.current()
	if err != nil {
		return nil, nil, report.Socket("receive", err)
	}
	buf := make([]byte, s.opts.BufferSize)
	n, cm, src, err := pc.ReadFrom(buf)
	if err != nil {
		return nil, nil, report.Socket("receive", err)
	}
	if cm != nil {
		s.log.Trace().Str("src", src.String()).Str("dst", cm.Dst.String()).Int("if", cm.IfIndex).Int("bytes", n).
			Msg("transport.datagramSocket.Receive")
	}
	msg, err := protocol.Deserialize(bytes.NewReader(buf[:n]))
	if err != nil {
		return nil, src, report.Protocol("receive", err)
	}
	return msg, src, nil
}

func (s *datagramSocket) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Destroy closes the socket, unblocking any Receive. Repeated calls and
// calls on a socket never created are no-ops.
func (s *datagramSocket) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lc == nil || s.destroyed {
		return nil
	}
	s.destroyed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.pconn = nil
	if err != nil {
		return report.Socket("destroy", err)
	}
	return nil
}
