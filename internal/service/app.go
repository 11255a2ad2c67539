package service

import (
	"context"
	"errors"

	"github.com/danmuck/squirrel/internal/handoff"
	"github.com/danmuck/squirrel/internal/logging"
	"github.com/danmuck/squirrel/internal/mailbox"
	"github.com/danmuck/squirrel/internal/network"
	"github.com/danmuck/squirrel/internal/protocol/record"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/rs/zerolog"
)

// App is the foreground side of service mode. It turns each RESPONSE the
// daemon relays into an onPeer continuation.
type App struct {
	box     *mailbox.Mailbox
	exec    *handoff.Executor
	reports *report.Queue
	onPeer  func(network.Peer)
	log     zerolog.Logger
}

func NewApp(box *mailbox.Mailbox, exec *handoff.Executor, reports *report.Queue, onPeer func(network.Peer)) *App {
	return &App{
		box:     box,
		exec:    exec,
		reports: reports,
		onPeer:  onPeer,
		log:     logging.Logger("service"),
	}
}

// Serve reads the application channel until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	a.log.Info().Str("mailbox", a.box.Dir()).Msg("service.App.Serve started")
	for {
		rec, err := a.box.ReadContext(ctx, mailbox.Application)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, mailbox.ErrClosed) {
				return err
			}
			a.reports.Report(report.Classify(report.FileError, "app read", err))
			continue
		}
		if rec.Kind != record.KindResponse {
			a.log.Debug().Str("kind", rec.Kind.String()).Msg("service.App.Serve ignored record")
			continue
		}
		p := network.Peer{Name: rec.Name(), Address: rec.Address.String()}
		a.log.Info().Str("peer", p.String()).Msg("service.App.Serve peer")
		if a.onPeer != nil {
			a.exec.Push(func() { a.onPeer(p) })
		}
	}
}

func (a *App) String() string {
	return "squirrel-app"
}
