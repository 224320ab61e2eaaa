//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package app

import (
	"errors"
	"syscall"
)

func reusePort(_, _ string, _ syscall.RawConn) error {
	return errors.New("app: SO_REUSEPORT is not supported on this platform")
}
