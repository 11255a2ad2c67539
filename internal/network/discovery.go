package network

import (
	"errors"
	"time"

	"github.com/danmuck/squirrel/internal/observability"
	"github.com/danmuck/squirrel/internal/protocol"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/danmuck/squirrel/internal/transport"
)

const (
	modeBroadcast = "broadcast"
	modeListen    = "listen"
)

// openDiscovery binds the shared discovery socket for mode.
func (d *Driver) openDiscovery(mode string) (*discoverySession, error) {
	if d.closed {
		return nil, report.Socket(mode, ErrClosed)
	}
	if d.discovery != nil {
		return nil, report.Socket(mode, ErrDiscoveryActive)
	}
	sock := transport.NewDatagramSocket(d.cfg.socketOptions())
	if err := sock.Create(); err != nil {
		return nil, d.fail(report.Classify(report.SocketError, mode+" create", err))
	}
	if err := sock.Bind(d.cfg.ListenAddress, d.cfg.DiscoveryPort); err != nil {
		_ = sock.Destroy()
		return nil, d.fail(report.Classify(report.SocketError, mode+" bind", err))
	}
	s := &discoverySession{mode: mode, sock: sock, stop: make(chan struct{})}
	d.discovery = s
	return s, nil
}

func (d *Driver) broadcastTarget() string {
	if d.cfg.BroadcastAddress != "" {
		return d.cfg.BroadcastAddress
	}
	return BroadcastAddress(d.ident.Address)
}

// BeginBroadcast announces this host until StopDiscovery or BeginTransfer.
// Each distinct peer that answers is handed to onPeer on the executor.
func (d *Driver) BeginBroadcast(onPeer func(Peer)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.openDiscovery(modeBroadcast)
	if err != nil {
		return err
	}
	d.peers.Reset()
	s.workers = []*Worker{
		startWorker("broadcast.send", func() { d.broadcastLoop(s) }),
		startWorker("broadcast.receive", func() { d.availableLoop(s, onPeer) }),
	}
	d.track(s.workers...)
	d.log.Info().
		Str("name", d.ident.Name).
		Str("ip", d.ident.Address).
		Str("target", d.broadcastTarget()).
		Int("port", d.cfg.DiscoveryPort).
		Msg("network.Driver.BeginBroadcast started")
	return nil
}

func (d *Driver) broadcastLoop(s *discoverySession) {
	target := d.broadcastTarget()
	msg := protocol.NewBroadcast(d.ident.Name, d.ident.Address)
	ticker := time.NewTicker(d.cfg.BroadcastInterval)
	defer ticker.Stop()

	failed := false
	for {
		err := s.sock.Send(msg, target, d.cfg.DiscoveryPort)
		switch {
		case err != nil && s.stopped():
			return
		case err != nil:
			// Report the first failure of a streak only.
			if !failed {
				d.reports.Report(report.Classify(report.SocketError, "broadcast send", err))
				failed = true
			}
		default:
			failed = false
			observability.RecordDatagram("send", protocol.TypeBroadcast)
		}

		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// receiveDiscovery returns the next well-formed datagram of msgType. It
// returns nil when the session ends or the socket fails.
func (d *Driver) receiveDiscovery(s *discoverySession, msgType string) *protocol.Message {
	for {
		msg, src, err := s.sock.Receive()
		if err != nil {
			if s.stopped() {
				return nil
			}
			if errors.Is(err, report.ErrProtocol) {
				observability.RecordDatagram("recv", "malformed")
				d.log.Debug().Err(err).Stringer("src", src).Msg("network.Driver discovery datagram dropped")
				continue
			}
			d.reports.Report(report.Classify(report.SocketError, s.mode+" receive", err))
			return nil
		}
		observability.RecordDatagram("recv", msg.Type())
		if msg.Type() != msgType {
			continue
		}
		if err := protocol.Validate(msg, msgType); err != nil {
			d.log.Debug().Err(err).Stringer("src", src).Msg("network.Driver discovery message incomplete")
			continue
		}
		return msg
	}
}

func (d *Driver) availableLoop(s *discoverySession, onPeer func(Peer)) {
	for {
		msg := d.receiveDiscovery(s, protocol.TypeAvailable)
		if msg == nil {
			return
		}
		name, _ := msg.String(protocol.PropName)
		ip, _ := msg.String(protocol.PropIP)
		p := Peer{Name: name, Address: ip}
		if !d.peers.Add(p) {
			continue
		}
		observability.RecordPeer()
		d.log.Info().Str("peer", p.String()).Msg("network.Driver.BeginBroadcast peer")
		if onPeer != nil {
			d.exec.Push(func() { onPeer(p) })
		}
	}
}

// BeginAnnounce answers broadcasts with an "available" reply. Before
// replying it calls onBroadcast with the sender on the listener goroutine;
// the reply is only sent when onBroadcast returns true. A nil onBroadcast
// answers everyone.
func (d *Driver) BeginAnnounce(onBroadcast func(Peer) bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.openDiscovery(modeListen)
	if err != nil {
		return err
	}
	s.advert = d.advertise()
	s.workers = []*Worker{
		startWorker("listen.receive", func() { d.listenLoop(s, onBroadcast) }),
	}
	d.track(s.workers...)
	d.log.Info().
		Str("name", d.ident.Name).
		Str("ip", d.ident.Address).
		Int("port", d.cfg.DiscoveryPort).
		Msg("network.Driver.BeginAnnounce started")
	return nil
}

// BeginListen answers broadcasts and receives the file each sender then
// transfers. A sender is only answered once the receive session accepts
// its address. Received files are handed to onReceive on the executor.
func (d *Driver) BeginListen(onReceive func(File)) error {
	return d.BeginAnnounce(func(p Peer) bool {
		return d.armReceive(p.Address, onReceive)
	})
}

func (d *Driver) listenLoop(s *discoverySession, onBroadcast func(Peer) bool) {
	reply := protocol.NewAvailable(d.ident.Name, d.ident.Address)
	for {
		msg := d.receiveDiscovery(s, protocol.TypeBroadcast)
		if msg == nil {
			return
		}
		name, _ := msg.String(protocol.PropName)
		ip, _ := msg.String(protocol.PropIP)
		p := Peer{Name: name, Address: ip}
		if p.Address == d.ident.Address && p.Name == d.ident.Name {
			continue
		}
		if onBroadcast != nil && !onBroadcast(p) {
			continue
		}
		if err := s.sock.Send(reply, p.Address, d.cfg.DiscoveryPort); err != nil {
			if s.stopped() {
				return
			}
			d.reports.Report(report.Classify(report.SocketError, "listen reply", err))
			continue
		}
		observability.RecordDatagram("send", protocol.TypeAvailable)
	}
}
