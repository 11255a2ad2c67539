// Package network discovers peers over UDP broadcast and moves single files
// over TCP.
//
// A sender broadcasts its identity every BroadcastInterval and collects
// "available" answers; a receiver answers broadcasts and accepts one
// transfer at a time. Every operation runs on its own goroutine; results
// and errors travel back to the consumer through a handoff.Executor and a
// report.Queue.
package network

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/squirrel/internal/handoff"
	"github.com/danmuck/squirrel/internal/logging"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/danmuck/squirrel/internal/transport"
	"github.com/rs/zerolog"
)

var (
	ErrClosed          = errors.New("network: driver closed")
	ErrDiscoveryActive = errors.New("network: discovery already running")
	ErrReceiveActive   = errors.New("network: receive already in progress")
	ErrUnexpectedPeer  = errors.New("network: transfer from unexpected address")
)

type Option func(*Driver)

func WithLogger(log zerolog.Logger) Option {
	return func(d *Driver) { d.log = log }
}

type Driver struct {
	cfg     Config
	ident   Identity
	exec    *handoff.Executor
	reports *report.Queue
	log     zerolog.Logger
	peers   *Registry

	mu        sync.Mutex
	closed    bool
	discovery *discoverySession
	receive   *receiveSession
	workers   []*Worker
}

type discoverySession struct {
	mode    string
	sock    transport.DatagramSocket
	stop    chan struct{}
	advert  *advertiser
	workers []*Worker
}

func (s *discoverySession) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// receiveSession is one armed transfer listener. Until a connection is
// accepted, further answered broadcasters may be added to expected.
type receiveSession struct {
	sock   transport.StreamSocket
	worker *Worker

	mu       sync.Mutex
	expected map[string]struct{}
	accepted bool
}

func newReceiveSession(sock transport.StreamSocket, ip string) *receiveSession {
	return &receiveSession{sock: sock, expected: map[string]struct{}{ip: {}}}
}

// expect adds ip to the senders this session takes. It fails once a
// connection has been accepted.
func (s *receiveSession) expect(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accepted {
		return false
	}
	s.expected[ip] = struct{}{}
	return true
}

func (s *receiveSession) accept() {
	s.mu.Lock()
	s.accepted = true
	s.mu.Unlock()
}

func (s *receiveSession) expects(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.expected[ip]
	return ok
}

func (s *receiveSession) want() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.expected))
	for ip := range s.expected {
		out = append(out, ip)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func New(cfg Config, ident Identity, exec *handoff.Executor, reports *report.Queue, opts ...Option) *Driver {
	if exec == nil {
		exec = handoff.NewExecutor()
	}
	d := &Driver{
		cfg:     cfg.WithDefaults(),
		ident:   ident,
		exec:    exec,
		reports: reports,
		log:     logging.Logger("network"),
		peers:   NewRegistry(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Identity() Identity {
	return d.ident
}

func (d *Driver) Config() Config {
	return d.cfg
}

func (d *Driver) Executor() *handoff.Executor {
	return d.exec
}

// Peers lists the peers surfaced by the current or last broadcast session.
func (d *Driver) Peers() []Peer {
	return d.peers.Peers()
}

func (d *Driver) fail(err *report.Error) error {
	d.reports.Report(err)
	return err
}

// track records w for Close and forgets workers that already returned.
func (d *Driver) track(ws ...*Worker) {
	live := d.workers[:0]
	for _, w := range d.workers {
		if !w.finished() {
			live = append(live, w)
		}
	}
	d.workers = append(live, ws...)
}

// StopDiscovery destroys the broadcast or listen socket and joins its
// workers. It must not be called from a discovery hook.
func (d *Driver) StopDiscovery() {
	d.mu.Lock()
	s := d.discovery
	d.discovery = nil
	d.mu.Unlock()
	if s == nil {
		return
	}
	close(s.stop)
	s.advert.Shutdown()
	if err := s.sock.Destroy(); err != nil {
		d.log.Debug().Err(err).Str("mode", s.mode).Msg("network.Driver.StopDiscovery destroy")
	}
	for _, w := range s.workers {
		w.Wait()
	}
	d.log.Debug().Str("mode", s.mode).Msg("network.Driver.StopDiscovery stopped")
}

func (d *Driver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close stops every session and waits for all workers.
func (d *Driver) Close() {
	d.StopDiscovery()

	d.mu.Lock()
	d.closed = true
	rs := d.receive
	workers := append([]*Worker(nil), d.workers...)
	d.mu.Unlock()

	if rs != nil {
		_ = rs.sock.Destroy()
	}
	for _, w := range workers {
		w.Wait()
	}
}
