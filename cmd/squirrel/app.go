package main

import (
	"context"
	"errors"
	"io"

	"github.com/danmuck/squirrel/internal/config"
	"github.com/danmuck/squirrel/internal/handoff"
	"github.com/danmuck/squirrel/internal/logging"
	"github.com/danmuck/squirrel/internal/mailbox"
	"github.com/danmuck/squirrel/internal/network"
	"github.com/danmuck/squirrel/internal/observability"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/danmuck/squirrel/internal/service"
)

// app holds what every mode needs. The consumer goroutine is the one that
// calls run; everything it hands to the executor runs there too.
type app struct {
	opts    cli
	cfg     config.Config
	cfgPath string
	driver  *network.Driver
	exec    *handoff.Executor
	reports *report.Queue
	con     *console
	stdout  io.Writer
	stderr  io.Writer
}

func (a *app) run(ctx context.Context) error {
	switch a.opts.mode() {
	case modeSend:
		return a.runSend(ctx)
	case modeReceive:
		return a.runReceive(ctx)
	case modeService:
		return a.runService(ctx)
	case modeAttach:
		return a.runAttach(ctx)
	default:
		return a.runListen(ctx)
	}
}

// consume runs continuations until ctx ends.
func (a *app) consume(ctx context.Context) error {
	if err := a.exec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// finishWith cancels the consumer once w returns. The cancel is queued
// behind whatever w pushed, so its results are shown first.
func (a *app) finishWith(w *network.Worker, cancel context.CancelFunc) {
	go func() {
		<-w.Done()
		a.exec.Push(cancel)
	}()
}

func (a *app) sink() network.Sink {
	return network.DirSink{Dir: a.cfg.SaveDir}
}

// sendToFirst returns an onPeer continuation that starts one transfer of
// path to the first picked peer and ends the run when it completes.
func (a *app) sendToFirst(path string, cancel context.CancelFunc) func(network.Peer) {
	started := false
	return func(p network.Peer) {
		a.con.ShowPeer(p)
		if started || !a.con.Pick(p) {
			return
		}
		started = true
		w, err := a.driver.BeginTransfer(path, p, func(p network.Peer) { a.con.ShowSent(p, path) })
		if err != nil {
			cancel()
			return
		}
		a.finishWith(w, cancel)
	}
}

func (a *app) runSend(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.driver.BeginBroadcast(a.sendToFirst(a.opts.Path, cancel)); err != nil {
		return err
	}
	return a.consume(ctx)
}

func (a *app) runListen(ctx context.Context) error {
	if err := a.driver.BeginListen(network.SaveTo(a.sink(), a.reports, a.con.ShowSaved)); err != nil {
		return err
	}
	return a.consume(ctx)
}

func (a *app) runReceive(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := a.driver.BeginReceive(a.opts.Receive, network.SaveTo(a.sink(), a.reports, a.con.ShowSaved))
	if err != nil {
		return err
	}
	a.con.ShowReceiving(a.opts.Receive, a.driver.Identity().Address, a.driver.Config().TransferPort)
	a.finishWith(w, cancel)
	return a.consume(ctx)
}

// executorService drains the executor under the supervisor in daemon mode.
type executorService struct {
	exec *handoff.Executor
}

func (s executorService) Serve(ctx context.Context) error {
	return s.exec.Run(ctx)
}

func (s executorService) String() string {
	return "executor"
}

func (a *app) runService(ctx context.Context) error {
	box, err := mailbox.Open(a.cfg.MailboxDir)
	if err != nil {
		return err
	}
	defer box.Close()

	var args []string
	if a.cfgPath != "" {
		args = []string{"--config", a.cfgPath}
	}
	spawner := service.ExecSpawner{
		Args:   args,
		Stdout: a.stdout,
		Stderr: a.stderr,
		Log:    logging.Logger("spawner"),
	}

	sup := service.NewSupervisor("squirrel")
	sup.Add(executorService{exec: a.exec})
	sup.Add(service.NewDaemon(service.DaemonConfig{}, a.driver, box, spawner, a.reports))
	if a.cfg.MetricsAddr != "" {
		sup.Add(observability.NewMetricsServer(a.cfg.MetricsAddr))
	}
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runAttach prints the senders a running daemon answered until ctx ends.
func (a *app) runAttach(ctx context.Context) error {
	box, err := mailbox.Open(a.cfg.MailboxDir)
	if err != nil {
		return err
	}
	defer box.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = service.NewApp(box, a.exec, a.reports, a.con.ShowPeer).Serve(ctx)
	}()
	err = a.consume(ctx)
	cancel()
	<-done
	return err
}
