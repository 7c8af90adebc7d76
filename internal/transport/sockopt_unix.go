//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package transport

import (
	"errors"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/muurk/ocfstack/internal/logging"
)

// socketControl applies pre-bind options. IPv6 sockets are v6-only.
// Multicast sockets need SO_REUSEADDR; SO_REUSEPORT is applied where the
// kernel has it and its absence is only logged.
func socketControl(role Role) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if role.IPv6 {
				if opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); opErr != nil {
					return
				}
			}
			if !role.Multicast {
				return
			}
			if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
				return
			}
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
				logging.Debug("SO_REUSEPORT not applied", zap.Stringer("socket", role), zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

// isAlreadyMember reports the kernel's answer to a duplicate group join
func isAlreadyMember(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}
