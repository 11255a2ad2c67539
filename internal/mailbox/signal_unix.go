//go:build !windows

package mailbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultDir holds the mailbox files shared by every local process.
func DefaultDir() string {
	return "/var/tmp"
}

// fifoSignal counts units as bytes buffered in a named pipe. Opening the
// pipe read-write keeps it from reaching EOF and makes the fd pollable, so
// deadlines work for cancellation.
type fifoSignal struct {
	f *os.File
}

func openSignal(dir, name string) (signal, error) {
	path := filepath.Join(dir, name)
	if err := unix.Mkfifo(path, 0o666); err != nil && !errors.Is(err, unix.EEXIST) {
		return nil, &os.PathError{Op: "mkfifo", Path: path, Err: err}
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &fifoSignal{f: f}, nil
}

func (s *fifoSignal) Post() error {
	_, err := s.f.Write([]byte{1})
	return err
}

func (s *fifoSignal) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.f.SetReadDeadline(time.Time{}); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.f.SetReadDeadline(time.Now())
	})
	defer stop()

	var b [1]byte
	for {
		n, err := s.f.Read(b[:])
		if n == 1 {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
	}
}

func (s *fifoSignal) TryWait() (bool, error) {
	if err := s.f.SetReadDeadline(time.Now()); err != nil {
		return false, err
	}
	defer func() { _ = s.f.SetReadDeadline(time.Time{}) }()

	var b [1]byte
	n, err := s.f.Read(b[:])
	if n == 1 {
		return true, nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false, nil
	}
	return false, err
}

func (s *fifoSignal) Close() error {
	return s.f.Close()
}
