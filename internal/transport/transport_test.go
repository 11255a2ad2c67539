package transport

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/squirrel/internal/protocol"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/danmuck/squirrel/internal/testutil/testlog"
)

func boundDatagram(t *testing.T, opts Options) (DatagramSocket, int) {
	t.Helper()
	s := NewDatagramSocket(opts)
	if err := s.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	t.Cleanup(func() { _ = s.Destroy() })
	return s, s.LocalAddr().(*net.UDPAddr).Port
}

func TestDatagramSendReceive(t *testing.T) {
	testlog.Start(t)
	a, _ := boundDatagram(t, DefaultOptions())
	b, portB := boundDatagram(t, DefaultOptions())

	want := protocol.NewBroadcast("alice", "127.0.0.1")
	if err := a.Send(want, "127.0.0.1", portB); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, src, err := b.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("message mismatch")
	}
	if src.(*net.UDPAddr).Port != a.LocalAddr().(*net.UDPAddr).Port {
		t.Fatalf("source: got %v", src)
	}
}

func TestDatagramTruncatesOversizedPacket(t *testing.T) {
	testlog.Start(t)
	b, portB := boundDatagram(t, DefaultOptions())

	raw, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(portB)))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer raw.Close()

	big, err := protocol.NewTransfer("a", "127.0.0.1", "f", strings.Repeat("A", 2*DefaultBufferSize)).Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := raw.Write(big); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err = b.Receive()
	if !errors.Is(err, report.ErrProtocol) || !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected truncated protocol error, got %v", err)
	}

	// A larger buffer takes the same datagram whole.
	wide, portW := boundDatagram(t, Options{BufferSize: 4 * DefaultBufferSize})
	raw2, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(portW)))
	if err != nil {
		t.Fatalf("dial wide: %v", err)
	}
	defer raw2.Close()
	if _, err := raw2.Write(big); err != nil {
		t.Fatalf("write wide: %v", err)
	}
	if _, _, err := wide.Receive(); err != nil {
		t.Fatalf("receive wide: %v", err)
	}
}

func TestDatagramLifecycleErrors(t *testing.T) {
	testlog.Start(t)
	s := NewDatagramSocket(DefaultOptions())
	if err := s.Destroy(); err != nil {
		t.Fatalf("destroy before create: %v", err)
	}
	if err := s.Bind("127.0.0.1", 0); !errors.Is(err, ErrNotCreated) || !errors.Is(err, report.ErrSocket) {
		t.Fatalf("bind before create: %v", err)
	}
	if err := s.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(); !errors.Is(err, ErrAlreadyCreated) {
		t.Fatalf("double create: %v", err)
	}
	if _, _, err := s.Receive(); !errors.Is(err, ErrNotBound) {
		t.Fatalf("receive before bind: %v", err)
	}
	if err := s.Bind("not-an-ip", 1); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("bad bind address: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
}

func TestDatagramPortIsExclusive(t *testing.T) {
	testlog.Start(t)
	_, port := boundDatagram(t, DefaultOptions())

	s := NewDatagramSocket(DefaultOptions())
	if err := s.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	defer s.Destroy()
	if err := s.Bind("127.0.0.1", port); !errors.Is(err, report.ErrSocket) {
		t.Fatalf("second bind of port %d: expected socket error, got %v", port, err)
	}
}

func TestDatagramDestroyUnblocksReceive(t *testing.T) {
	testlog.Start(t)
	s, _ := boundDatagram(t, DefaultOptions())
	done := make(chan error, 1)
	go func() {
		_, _, err := s.Receive()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := s.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, report.ErrSocket) {
			t.Fatalf("expected socket error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receive did not unblock")
	}
}

func listeningStream(t *testing.T) (StreamSocket, int) {
	t.Helper()
	s := NewStreamSocket(DefaultOptions())
	if err := s.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Bind("127.0.0.1", 0); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = s.Destroy() })
	return s, s.LocalAddr().(*net.TCPAddr).Port
}

func TestStreamTransferLargeMessage(t *testing.T) {
	testlog.Start(t)
	server, port := listeningStream(t)

	want := protocol.NewTransfer("alice", "127.0.0.1", "big.bin", strings.Repeat("QUJD", 5000))
	sendErr := make(chan error, 1)
	go func() {
		c := NewStreamSocket(DefaultOptions())
		if err := c.Create(); err != nil {
			sendErr <- err
			return
		}
		if err := c.Connect("127.0.0.1", port); err != nil {
			sendErr <- err
			return
		}
		err := c.Send(want)
		if derr := c.Destroy(); err == nil {
			err = derr
		}
		sendErr <- err
	}()

	if err := server.Accept(); err != nil {
		t.Fatalf("accept: %v", err)
	}
	got, err := server.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("message mismatch")
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("sender: %v", err)
	}
}

func TestStreamEmptyPeerIsProtocolError(t *testing.T) {
	testlog.Start(t)
	server, port := listeningStream(t)
	go func() {
		conn, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			_ = conn.Close()
		}
	}()
	if err := server.Accept(); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := server.Receive(); !errors.Is(err, report.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestStreamLifecycleErrors(t *testing.T) {
	testlog.Start(t)
	s := NewStreamSocket(DefaultOptions())
	if err := s.Destroy(); err != nil {
		t.Fatalf("destroy before create: %v", err)
	}
	if err := s.Create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Listen(); !errors.Is(err, ErrNotBound) {
		t.Fatalf("listen before bind: %v", err)
	}
	if err := s.Accept(); !errors.Is(err, ErrNotListening) {
		t.Fatalf("accept before listen: %v", err)
	}
	if err := s.Send(protocol.NewAvailable("a", "1.2.3.4")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send before connect: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
}

func TestStreamDestroyUnblocksAccept(t *testing.T) {
	testlog.Start(t)
	s, _ := listeningStream(t)
	done := make(chan error, 1)
	go func() { done <- s.Accept() }()
	time.Sleep(20 * time.Millisecond)
	if err := s.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, report.ErrSocket) {
			t.Fatalf("expected socket error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("accept did not unblock")
	}
}

func TestSendRejectsUnencodableMessage(t *testing.T) {
	testlog.Start(t)
	a, port := boundDatagram(t, DefaultOptions())
	bad := protocol.NewAvailable(`quote"name`, "127.0.0.1")
	if err := a.Send(bad, "127.0.0.1", port); !errors.Is(err, report.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}
