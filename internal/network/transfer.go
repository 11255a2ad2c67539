package network

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/squirrel/internal/observability"
	"github.com/danmuck/squirrel/internal/protocol"
	"github.com/danmuck/squirrel/internal/protocol/base64"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/danmuck/squirrel/internal/transport"
)

// BeginTransfer ends discovery, then sends the file at path to peer.
// onSent runs on the executor after the whole message was written.
func (d *Driver) BeginTransfer(path string, peer Peer, onSent func(Peer)) (*Worker, error) {
	d.StopDiscovery()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, report.Socket("transfer", ErrClosed)
	}
	w := startWorker("transfer.send", func() { d.sendFile(path, peer, onSent) })
	d.track(w)
	return w, nil
}

func (d *Driver) sendFile(path string, peer Peer, onSent func(Peer)) {
	log := d.log.With().Str("peer", peer.String()).Str("path", path).Logger()

	data, err := os.ReadFile(path)
	if err != nil {
		observability.RecordTransfer("send", false, 0)
		d.reports.Report(report.File("transfer read", err))
		return
	}
	msg := protocol.NewTransfer(d.ident.Name, d.ident.Address, filepath.Base(path), base64.Encode(data))

	sock := transport.NewStreamSocket(d.cfg.socketOptions())
	err = sock.Create()
	if err == nil {
		err = sock.Connect(peer.Address, d.cfg.TransferPort)
	}
	if err == nil {
		err = sock.Send(msg)
	}
	if derr := sock.Destroy(); err == nil {
		err = derr
	}
	if err != nil {
		observability.RecordTransfer("send", false, 0)
		d.reports.Report(report.Classify(report.SocketError, "transfer send", err))
		return
	}

	observability.RecordTransfer("send", true, len(data))
	log.Info().Int("bytes", len(data)).Msg("network.Driver.BeginTransfer sent")
	if onSent != nil {
		d.exec.Push(func() { onSent(peer) })
	}
}

// BeginReceive listens on the transfer port for one transfer from ip.
// While a receive is in progress further calls return ErrReceiveActive.
// The listening socket is up when BeginReceive returns.
func (d *Driver) BeginReceive(ip string, onReceive func(File)) (*Worker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, report.Socket("receive", ErrClosed)
	}
	if d.receive != nil && !d.receive.worker.finished() {
		d.log.Debug().Str("ip", ip).Msg("network.Driver.BeginReceive already receiving")
		return d.receive.worker, ErrReceiveActive
	}
	if d.ident.Address == "" {
		return nil, d.fail(report.Socket("receive bind", ErrNoLocalAddress))
	}

	sock := transport.NewStreamSocket(d.cfg.socketOptions())
	err := sock.Create()
	if err == nil {
		err = sock.Bind(d.ident.Address, d.cfg.TransferPort)
	}
	if err == nil {
		err = sock.Listen()
	}
	if err != nil {
		_ = sock.Destroy()
		return nil, d.fail(report.Classify(report.SocketError, "receive listen", err))
	}

	rs := newReceiveSession(sock, ip)
	rs.worker = startWorker("transfer.receive", func() {
		defer func() { _ = sock.Destroy() }()
		d.receiveFile(rs, onReceive)
	})
	w := rs.worker
	d.receive = rs
	d.track(w)
	d.log.Info().Str("expect", ip).Int("port", d.cfg.TransferPort).Msg("network.Driver.BeginReceive listening")
	return w, nil
}

// armReceive makes sure a receive session takes transfers from ip. It
// reports whether that sender may be told to connect: false while another
// sender's transfer is already being read.
func (d *Driver) armReceive(ip string, onReceive func(File)) bool {
	_, err := d.BeginReceive(ip, onReceive)
	switch {
	case err == nil:
		return true
	case !errors.Is(err, ErrReceiveActive):
		d.log.Debug().Err(err).Str("ip", ip).Msg("network.Driver.BeginListen receive not started")
		return false
	}

	d.mu.Lock()
	rs := d.receive
	d.mu.Unlock()
	if rs == nil || rs.worker.finished() || !rs.expect(ip) {
		d.log.Debug().Str("ip", ip).Msg("network.Driver.BeginListen busy, not answering")
		return false
	}
	d.log.Debug().Str("ip", ip).Msg("network.Driver.BeginListen sender added to receive")
	return true
}

func (d *Driver) receiveFile(rs *receiveSession, onReceive func(File)) {
	sock := rs.sock
	failed := func(err *report.Error) {
		observability.RecordTransfer("recv", false, 0)
		if d.isClosed() {
			return
		}
		d.reports.Report(err)
	}

	if err := sock.Accept(); err != nil {
		failed(report.Classify(report.SocketError, "receive accept", err))
		return
	}
	rs.accept()
	msg, err := sock.Receive()
	if err != nil {
		failed(report.Classify(report.SocketError, "receive", err))
		return
	}
	if err := protocol.Validate(msg, protocol.TypeTransfer); err != nil {
		failed(report.Protocol("receive", err))
		return
	}
	name, _ := msg.String(protocol.PropName)
	ip, _ := msg.String(protocol.PropIP)
	file, _ := msg.String(protocol.PropFile)
	data, _ := msg.String(protocol.PropData)
	if !rs.expects(ip) {
		failed(report.Protocol("receive", fmt.Errorf("%w: got %s, want %s", ErrUnexpectedPeer, ip, rs.want())))
		return
	}

	f := File{Name: file, Data: base64.Decode(data), From: Peer{Name: name, Address: ip}}
	observability.RecordTransfer("recv", true, len(f.Data))
	d.log.Info().Str("peer", f.From.String()).Str("file", f.Name).Int("bytes", len(f.Data)).
		Msg("network.Driver.BeginReceive received")
	if onReceive != nil {
		d.exec.Push(func() { onReceive(f) })
	}
}
