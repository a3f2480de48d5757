//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package discovery

import "syscall"

// controlSocket is a no-op here; the runtime already enables broadcast on UDP sockets
func controlSocket(network, address string, c syscall.RawConn) error {
	return nil
}
