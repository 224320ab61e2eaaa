//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package app

import (
	"syscall"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

func reusePort(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	return multierr.Append(err, opErr)
}
