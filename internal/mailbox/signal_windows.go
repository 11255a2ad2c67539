//go:build windows

package mailbox

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	semaphoreMax = 1<<31 - 1
	waitStep     = 100 * time.Millisecond
)

var (
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procCreateSemaphoreW = kernel32.NewProc("CreateSemaphoreW")
	procReleaseSemaphore = kernel32.NewProc("ReleaseSemaphore")
)

func DefaultDir() string {
	return os.TempDir()
}

// semSignal is a named kernel semaphore. The name is scoped by the
// mailbox directory so separate directories never share a count.
type semSignal struct {
	h windows.Handle
}

func openSignal(dir, name string) (signal, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(abs))
	full := `Local\` + name + "_" + strconv.FormatUint(uint64(h.Sum32()), 16)

	ptr, err := windows.UTF16PtrFromString(full)
	if err != nil {
		return nil, err
	}
	r, _, callErr := procCreateSemaphoreW.Call(0, 0, semaphoreMax, uintptr(unsafe.Pointer(ptr)))
	if r == 0 {
		return nil, os.NewSyscallError("CreateSemaphoreW", callErr)
	}
	return &semSignal{h: windows.Handle(r)}, nil
}

func (s *semSignal) Post() error {
	r, _, callErr := procReleaseSemaphore.Call(uintptr(s.h), 1, 0)
	if r == 0 {
		return os.NewSyscallError("ReleaseSemaphore", callErr)
	}
	return nil
}

func (s *semSignal) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := windows.WaitForSingleObject(s.h, uint32(waitStep/time.Millisecond))
		if err != nil {
			return err
		}
		switch ev {
		case windows.WAIT_OBJECT_0:
			return nil
		case uint32(windows.WAIT_TIMEOUT):
			continue
		default:
			return os.NewSyscallError("WaitForSingleObject", windows.Errno(ev))
		}
	}
}

func (s *semSignal) TryWait() (bool, error) {
	ev, err := windows.WaitForSingleObject(s.h, 0)
	if err != nil {
		return false, err
	}
	return ev == windows.WAIT_OBJECT_0, nil
}

func (s *semSignal) Close() error {
	return windows.CloseHandle(s.h)
}
