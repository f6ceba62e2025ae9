package pipeline

import (
	"time"

	"github.com/haruue-net/wgveil/internal/session"
)

// poller is the pluggable socket-multiplexing primitive behind ingress's
// "iterate over all peer entries' upstream sockets (or equivalently a
// readiness set)" step (spec.md §4.3). spec.md §1 explicitly places the
// choice of multiplexing primitive out of the core's scope; this
// interface is the hook point, with one concrete Linux epoll
// implementation (poller_linux.go) and a portable fallback
// (poller_other.go) satisfying it.
type poller interface {
	// Add registers entry's upstream socket for readiness notification.
	Add(entry *session.Entry) error
	// Remove unregisters entry's upstream socket. Called by the reaper
	// before the socket is closed.
	Remove(entry *session.Entry)
	// Wait blocks up to timeout and returns the entries whose upstream
	// socket has a datagram ready.
	Wait(timeout time.Duration) []*session.Entry
	// Take delivers one ready datagram for entry into buf, returning its
	// length. Must be called exactly once per entry returned from the
	// preceding Wait, before the next Wait call for that entry.
	Take(entry *session.Entry, buf []byte) (int, error)
	// Close releases the poller's own resources (e.g. the epoll fd).
	Close() error
}
