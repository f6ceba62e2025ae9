//go:build !linux

package pipeline

import (
	"sync"
	"time"

	"github.com/haruue-net/wgveil/internal/session"
)

// fallbackPoller is the portable multiplexing primitive used on
// platforms without epoll: it round-robins every registered socket with
// a short read deadline. spec.md §1 places the choice of multiplexing
// primitive out of the core's scope; this is the fallback half of that
// hook point, the epoll-based one (poller_linux.go) being the primary
// implementation.
//
// Because a UDP read only returns once and truncates to the caller's
// buffer, Wait must perform the real, full-size read as soon as it finds
// a ready socket — there is no non-destructive "peek" available without
// a platform-specific syscall, which is exactly the portability gap this
// fallback exists to paper over. The datagram is stashed until the
// caller's matching Take.
type fallbackPoller struct {
	mu      sync.Mutex
	entries map[*session.Entry]struct{}
	stash   map[*session.Entry]stashedDatagram
}

type stashedDatagram struct {
	data []byte
	n    int
}

func newPoller() poller {
	return newFallbackPoller()
}

func newFallbackPoller() poller {
	return &fallbackPoller{
		entries: make(map[*session.Entry]struct{}),
		stash:   make(map[*session.Entry]stashedDatagram),
	}
}

func (p *fallbackPoller) Add(entry *session.Entry) error {
	p.mu.Lock()
	p.entries[entry] = struct{}{}
	p.mu.Unlock()
	return nil
}

func (p *fallbackPoller) Remove(entry *session.Entry) {
	p.mu.Lock()
	delete(p.entries, entry)
	delete(p.stash, entry)
	p.mu.Unlock()
}

func (p *fallbackPoller) Wait(timeout time.Duration) []*session.Entry {
	p.mu.Lock()
	snapshot := make([]*session.Entry, 0, len(p.entries))
	for e := range p.entries {
		snapshot = append(snapshot, e)
	}
	p.mu.Unlock()

	if len(snapshot) == 0 {
		time.Sleep(timeout)
		return nil
	}

	perSocket := timeout / time.Duration(len(snapshot))
	if perSocket < time.Microsecond {
		perSocket = time.Microsecond
	}

	var ready []*session.Entry
	for _, e := range snapshot {
		_ = e.ServerSock.SetReadDeadline(time.Now().Add(perSocket))
		buf := make([]byte, MaxPacketSize)
		n, err := e.ServerSock.Read(buf)
		if err == nil && n > 0 {
			p.mu.Lock()
			p.stash[e] = stashedDatagram{data: buf, n: n}
			p.mu.Unlock()
			ready = append(ready, e)
		}
	}
	return ready
}

// Take delivers the datagram Wait already read for entry.
func (p *fallbackPoller) Take(entry *session.Entry, buf []byte) (int, error) {
	p.mu.Lock()
	d, ok := p.stash[entry]
	delete(p.stash, entry)
	p.mu.Unlock()

	if !ok {
		return 0, nil
	}
	n := copy(buf, d.data[:d.n])
	return n, nil
}

func (p *fallbackPoller) Close() error { return nil }
