// Command squirrel finds peers on the local network and sends them a file.
//
//	squirrel FILE            broadcast, then send FILE to the first peer
//	squirrel                 answer broadcasts and save incoming files
//	squirrel --receive IP    receive one file from IP
//	squirrel --service       daemon mode, see internal/service
//	squirrel --attach        show the senders the daemon answered
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/squirrel/internal/config"
	"github.com/danmuck/squirrel/internal/handoff"
	"github.com/danmuck/squirrel/internal/logging"
	"github.com/danmuck/squirrel/internal/network"
	"github.com/danmuck/squirrel/internal/observability"
	"github.com/danmuck/squirrel/internal/report"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logging.ConfigureRuntime()

	opts, err := parseArgs(args, stdout, stderr, os.Exit)
	if err != nil {
		fmt.Fprintf(stderr, "squirrel: %v\n", err)
		return exitUsage
	}
	if opts.InitConfig != "" {
		if err := config.WriteTemplate(opts.InitConfig, false); err != nil {
			fmt.Fprintf(stderr, "squirrel: %v\n", err)
			return exitFail
		}
		fmt.Fprintf(stdout, "wrote %s\n", opts.InitConfig)
		return exitOK
	}

	cfg, cfgPath, err := loadConfig(opts.Config)
	if err != nil {
		fmt.Fprintf(stderr, "squirrel: %v\n", err)
		return exitFail
	}
	if cfg.LogLevel != "" && os.Getenv(logging.EnvLogLevel) == "" {
		logging.SetLevel(cfg.LogLevel)
	}
	observability.RegisterMetrics()
	log := logging.Logger("squirrel")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := handoff.NewExecutor()
	con := newConsole(stdout, stderr, opts.To)
	reports := report.NewQueue(func(e *report.Error) {
		exec.Push(func() { con.ShowError(e) })
	})

	netCfg := cfg.Network()
	ident := network.ResolveIdentity(netCfg, reports)
	driver := network.New(netCfg, ident, exec, reports)
	defer driver.Close()

	a := &app{
		opts:    opts,
		cfg:     cfg,
		cfgPath: cfgPath,
		driver:  driver,
		exec:    exec,
		reports: reports,
		con:     con,
		stdout:  stdout,
		stderr:  stderr,
	}
	log.Info().Str("mode", opts.mode().String()).Str("name", ident.Name).Str("ip", ident.Address).
		Str("config", cfgPath).Msg("squirrel.run start")

	if err := a.run(ctx); err != nil {
		exec.Drain()
		fmt.Fprintf(stderr, "squirrel: %v\n", err)
		return exitFail
	}
	exec.Drain()
	if con.failed && opts.mode() != modeListen && opts.mode() != modeService {
		return exitFail
	}
	return exitOK
}
