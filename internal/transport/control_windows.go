//go:build windows

package transport

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// datagramControl leaves SO_REUSEADDR off so a second process on the
// discovery port fails to bind instead of splitting its unicast answers.
func datagramControl(_, _ string, c syscall.RawConn) error {
	return setOptions(c, windows.SO_BROADCAST)
}

func streamControl(_, _ string, c syscall.RawConn) error {
	return setOptions(c, windows.SO_REUSEADDR)
}

func setOptions(c syscall.RawConn, opts ...int) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		for _, opt := range opts {
			if opErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, opt, 1); opErr != nil {
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return opErr
}
