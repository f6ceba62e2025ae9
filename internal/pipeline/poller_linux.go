//go:build linux

package pipeline

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/haruue-net/wgveil/internal/session"
	"github.com/haruue-net/wgveil/internal/wglog"
)

// epollPoller multiplexes peer upstream sockets with Linux epoll,
// wired via golang.org/x/sys/unix per SPEC_FULL.md §3. It lets the
// server-side ingress goroutine block on a single epoll_wait across an
// arbitrary number of peer sockets instead of round-robin polling each
// one, while still satisfying spec.md §4.3's single-writer-per-queue
// invariant: one goroutine owns this poller and is the only producer
// into the server queue.
type epollPoller struct {
	epfd int

	mu      sync.Mutex
	byFD    map[int32]*session.Entry
	entryFD map[*session.Entry]int32

	events []unix.EpollEvent
}

func newPoller() poller {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		wglog.Error("epoll_create1 failed, falling back to portable poller: %s", err)
		return newFallbackPoller()
	}
	return &epollPoller{
		epfd:    epfd,
		byFD:    make(map[int32]*session.Entry),
		entryFD: make(map[*session.Entry]int32),
		events:  make([]unix.EpollEvent, 256),
	}
}

func (p *epollPoller) Add(entry *session.Entry) error {
	rc, err := entry.ServerSock.SyscallConn()
	if err != nil {
		return err
	}

	var fd int
	var ctlErr error
	err = rc.Control(func(rawFD uintptr) {
		fd = int(rawFD)
		ctlErr = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		})
	})
	if err != nil {
		return err
	}
	if ctlErr != nil {
		return ctlErr
	}

	p.mu.Lock()
	p.byFD[int32(fd)] = entry
	p.entryFD[entry] = int32(fd)
	p.mu.Unlock()
	return nil
}

func (p *epollPoller) Remove(entry *session.Entry) {
	p.mu.Lock()
	fd, ok := p.entryFD[entry]
	if ok {
		delete(p.entryFD, entry)
		delete(p.byFD, fd)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

func (p *epollPoller) Wait(timeout time.Duration) []*session.Entry {
	n, err := unix.EpollWait(p.epfd, p.events, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		wglog.Error("epoll_wait: %s", err)
		return nil
	}

	ready := make([]*session.Entry, 0, n)
	p.mu.Lock()
	for i := 0; i < n; i++ {
		if entry, ok := p.byFD[p.events[i].Fd]; ok {
			ready = append(ready, entry)
		}
	}
	p.mu.Unlock()
	return ready
}

// Take performs the actual read once epoll has reported entry's socket
// readable. Because nothing has consumed the datagram yet, a plain Read
// on the connected socket returns it intact.
func (p *epollPoller) Take(entry *session.Entry, buf []byte) (int, error) {
	return entry.ServerSock.Read(buf)
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
