package service

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

const DefaultReadyTimeout = 10 * time.Second

var (
	ErrReceiverExited = errors.New("service: receiver exited before listening")
	ErrReceiverSlow   = errors.New("service: receiver not listening in time")
)

// Spawner starts a receiver for a peer that is about to be answered.
// SpawnReceiver returns once the receiver listens on the transfer port;
// the returned channel closes when the receiver is gone.
type Spawner interface {
	SpawnReceiver(ip string) (<-chan struct{}, error)
}

// ExecSpawner re-runs a squirrel binary as `<Path> <Args...> --receive ip`.
// The child announces that it listens by writing its first line to stdout.
// Later output is copied to Stdout and the child is reaped in the
// background.
type ExecSpawner struct {
	// Path defaults to the running executable.
	Path         string
	Args         []string
	Stdout       io.Writer
	Stderr       io.Writer
	ReadyTimeout time.Duration
	Log          zerolog.Logger
}

func (s ExecSpawner) SpawnReceiver(ip string) (<-chan struct{}, error) {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}
		path = exe
	}
	timeout := s.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	stdout := s.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	args := append(append([]string(nil), s.Args...), "--receive", ip)
	cmd := exec.Command(path, args...)
	cmd.Stderr = s.Stderr
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pid := cmd.Process.Pid
	log := s.Log.With().Str("ip", ip).Int("pid", pid).Logger()
	log.Info().Msg("service.ExecSpawner.SpawnReceiver started")

	ready := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		out := bufio.NewReader(pipe)
		line, rerr := out.ReadString('\n')
		if line == "" {
			ready <- fmt.Errorf("%w: %v", ErrReceiverExited, rerr)
		} else {
			ready <- nil
			_, _ = io.WriteString(stdout, line)
		}
		// Wait closes the pipe, so every read must finish first.
		_, _ = io.Copy(stdout, out)
		s.reap(cmd, log)
	}()

	select {
	case err := <-ready:
		if err != nil {
			<-done
			return nil, err
		}
	case <-time.After(timeout):
		_ = cmd.Process.Kill()
		<-done
		return nil, fmt.Errorf("%w: %s", ErrReceiverSlow, timeout)
	}
	log.Debug().Msg("service.ExecSpawner.SpawnReceiver listening")
	return done, nil
}

func (s ExecSpawner) reap(cmd *exec.Cmd, log zerolog.Logger) {
	err := cmd.Wait()
	if err == nil {
		log.Debug().Msg("service.ExecSpawner.SpawnReceiver exited")
		return
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	log.Warn().Err(err).Int("exit_code", code).Msg("service.ExecSpawner.SpawnReceiver failed")
}
