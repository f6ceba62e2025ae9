//go:build linux

package pipeline

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenUDP binds the listening socket, optionally with SO_REUSEPORT
// (SPEC_FULL.md §3's second use of golang.org/x/sys) so multiple relay
// processes can share one listen address for zero-downtime restarts.
func listenUDP(addr *net.UDPAddr, reusePort bool) (*net.UDPConn, error) {
	if !reusePort {
		return net.ListenUDP("udp", addr)
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", addr.String())
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
