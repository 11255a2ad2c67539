// Package service runs squirrel's background mode: a daemon that answers
// discovery and brokers receivers through the mailbox, and the foreground
// app that reads what the daemon found.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/danmuck/squirrel/internal/logging"
	"github.com/danmuck/squirrel/internal/mailbox"
	"github.com/danmuck/squirrel/internal/network"
	"github.com/danmuck/squirrel/internal/protocol/record"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultRelayTTL     = 30 * time.Second
	DefaultRelaySize    = 256
	DefaultSpawnTimeout = 15 * time.Second
)

var (
	ErrBadAddress   = errors.New("service: peer address is not IPv4")
	ErrSpawnTimeout = errors.New("service: receiver not ready")
)

type DaemonConfig struct {
	// RelayTTL is how long a relayed peer is kept off the application
	// channel before it is relayed again.
	RelayTTL  time.Duration
	RelaySize int
	// SpawnTimeout bounds how long a broadcaster waits for its receiver
	// before it goes unanswered.
	SpawnTimeout time.Duration
}

func (c DaemonConfig) WithDefaults() DaemonConfig {
	if c.RelayTTL <= 0 {
		c.RelayTTL = DefaultRelayTTL
	}
	if c.RelaySize <= 0 {
		c.RelaySize = DefaultRelaySize
	}
	if c.SpawnTimeout <= 0 {
		c.SpawnTimeout = DefaultSpawnTimeout
	}
	return c
}

// Daemon answers broadcasts and, for every peer it answers, tells the app
// (RESPONSE on the application channel) and itself (CONNECTION on the
// service channel). Each CONNECTION it reads back spawns a receiver, and
// the broadcaster is only answered once that receiver listens.
type Daemon struct {
	cfg     DaemonConfig
	driver  *network.Driver
	box     *mailbox.Mailbox
	spawner Spawner
	reports *report.Queue
	relayed *expirable.LRU[network.Peer, struct{}]
	log     zerolog.Logger

	// pending holds the relays waiting on a spawn, by peer address.
	pending *xsync.MapOf[string, chan error]
	// live holds running receivers, by peer address.
	live *xsync.MapOf[string, <-chan struct{}]
	// stopped closes when the current Serve returns.
	stopped chan struct{}
}

func NewDaemon(cfg DaemonConfig, driver *network.Driver, box *mailbox.Mailbox, spawner Spawner, reports *report.Queue) *Daemon {
	cfg = cfg.WithDefaults()
	return &Daemon{
		cfg:     cfg,
		driver:  driver,
		box:     box,
		spawner: spawner,
		reports: reports,
		relayed: expirable.NewLRU[network.Peer, struct{}](cfg.RelaySize, nil, cfg.RelayTTL),
		log:     logging.Logger("service"),
		pending: xsync.NewMapOf[string, chan error](),
		live:    xsync.NewMapOf[string, <-chan struct{}](),
	}
}

// Serve runs until ctx ends. It implements suture.Service.
func (d *Daemon) Serve(ctx context.Context) error {
	for _, ch := range []mailbox.Channel{mailbox.Service, mailbox.Application} {
		if err := d.box.Clear(ch); err != nil {
			d.reports.Report(report.Classify(report.FileError, "daemon clear", err))
		}
	}
	d.relayed.Purge()
	d.stopped = make(chan struct{})

	if err := d.driver.BeginAnnounce(d.relay); err != nil {
		return fmt.Errorf("service: announce: %w", err)
	}
	defer d.driver.StopDiscovery()
	// Runs first so a relay waiting on a spawn lets StopDiscovery join.
	defer close(d.stopped)
	d.log.Info().Str("mailbox", d.box.Dir()).Msg("service.Daemon.Serve started")

	for {
		rec, err := d.box.ReadContext(ctx, mailbox.Service)
		if err != nil {
			if ctx.Err() != nil {
				d.log.Info().Msg("service.Daemon.Serve stopped")
				return ctx.Err()
			}
			if errors.Is(err, mailbox.ErrClosed) {
				return err
			}
			d.reports.Report(report.Classify(report.FileError, "daemon read", err))
			continue
		}
		d.handle(rec)
	}
}

func (d *Daemon) handle(rec record.Record) {
	if rec.Kind != record.KindConnection {
		d.log.Debug().Str("kind", rec.Kind.String()).Msg("service.Daemon.Serve ignored record")
		return
	}
	ip := rec.Address.String()
	exited, err := d.spawner.SpawnReceiver(ip)
	if err != nil {
		d.reports.Report(report.File("spawn receiver "+ip, err))
	} else {
		d.live.Store(ip, exited)
	}
	if wait, ok := d.pending.LoadAndDelete(ip); ok {
		wait <- err
	}
}

// receiving reports whether a spawned receiver for ip is still running.
func (d *Daemon) receiving(ip string) bool {
	exited, ok := d.live.Load(ip)
	if !ok {
		return false
	}
	select {
	case <-exited:
		d.live.Delete(ip)
		return false
	default:
		return true
	}
}

// relay runs on the announce goroutine and decides whether p is answered.
// It returns true only once a receiver for p listens.
func (d *Daemon) relay(p network.Peer) bool {
	addr, err := netip.ParseAddr(p.Address)
	if err != nil || !addr.Is4() {
		d.reports.Report(report.Protocol("daemon relay", fmt.Errorf("%w: %q", ErrBadAddress, p.Address)))
		return false
	}
	if !d.relayed.Contains(p) {
		d.relayed.Add(p, struct{}{})
		d.log.Info().Str("peer", p.String()).Msg("service.Daemon.relay")
		if err := d.box.Write(mailbox.Application, record.Response(p.Name, addr)); err != nil {
			d.reports.Report(report.Classify(report.FileError, "daemon relay", err))
		}
	}
	if d.receiving(p.Address) {
		return true
	}

	wait := make(chan error, 1)
	d.pending.Store(p.Address, wait)
	defer d.pending.Delete(p.Address)
	if err := d.box.Write(mailbox.Service, record.Connection(addr)); err != nil {
		d.reports.Report(report.Classify(report.FileError, "daemon relay", err))
		return false
	}
	select {
	case err := <-wait:
		return err == nil
	case <-time.After(d.cfg.SpawnTimeout):
		d.reports.Report(report.File("daemon relay", fmt.Errorf("%w: %s", ErrSpawnTimeout, p)))
		return false
	case <-d.stopped:
		return false
	}
}

func (d *Daemon) String() string {
	return "squirrel-daemon"
}
