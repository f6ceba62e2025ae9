//go:build !linux

package pipeline

import "net"

// listenUDP binds the listening socket. SO_REUSEPORT is a Linux-specific
// extension; on other platforms the reusePort flag is accepted but
// ignored, matching spec.md §6's framing of socket options as an
// external, platform-dependent concern.
func listenUDP(addr *net.UDPAddr, reusePort bool) (*net.UDPConn, error) {
	return net.ListenUDP("udp", addr)
}
