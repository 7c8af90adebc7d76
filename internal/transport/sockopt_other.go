//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package transport

import "syscall"

// socketControl is a no-op on platforms without BSD socket options.
// Go already binds udp6 sockets v6-only.
func socketControl(Role) func(network, address string, c syscall.RawConn) error {
	return nil
}

func isAlreadyMember(error) bool {
	return false
}
