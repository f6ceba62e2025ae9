package pipeline

import (
	"net"
	"time"

	"github.com/haruue-net/wgveil/internal/wglog"
)

// ingressPollTimeout bounds how long a single ingress iteration blocks on
// a socket read or poller wait before re-checking the shutdown signal.
const ingressPollTimeout = 50 * time.Millisecond

// runClientIngress is spec.md §4.3's single reader of the listening
// socket: it is the sole producer into the client queue, reserving a slot
// per arrival and publishing it for the client-side worker. Only used in
// ModeDual; ModeSingle's inline loop reads the same socket itself.
func (e *Engine) runClientIngress() {
	buf := make([]byte, MaxPacketSize)
	for {
		select {
		case <-e.shutdownCh:
			e.clientQueue.Shutdown()
			return
		default:
		}

		_ = e.listenConn.SetReadDeadline(time.Now().Add(ingressPollTimeout))
		n, addr, err := e.listenConn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			wglog.Warn("client ingress: %s", err)
			continue
		}

		job := e.clientQueue.Reserve()
		if job == nil {
			continue // queue full; drop, matching UDP's own delivery guarantees
		}
		job.Length = copy(job.Buffer[:], buf[:n])
		job.Addr = addr
		job.FromClient = true
		job.Timestamp = time.Now()
		e.clientQueue.Publish()
	}
}

// runServerIngress is the poller-driven half of spec.md §4.3: it waits on
// every peer's upstream socket via the pluggable poller and enqueues
// arrivals into the server queue, tagging each job with the owning entry
// so the server-side worker never has to look it up again. Only used in
// ModeDual.
func (e *Engine) runServerIngress() {
	buf := make([]byte, MaxPacketSize)
	for {
		select {
		case <-e.shutdownCh:
			e.serverQueue.Shutdown()
			return
		default:
		}

		ready := e.poller.Wait(ingressPollTimeout)
		for _, entry := range ready {
			n, err := e.poller.Take(entry, buf)
			if err != nil || n == 0 {
				continue
			}
			job := e.serverQueue.Reserve()
			if job == nil {
				continue
			}
			job.Length = copy(job.Buffer[:], buf[:n])
			job.Addr = entry.ClientAddr
			job.FromClient = false
			job.Peer = entry
			job.Timestamp = time.Now()
			e.serverQueue.Publish()
		}
	}
}
