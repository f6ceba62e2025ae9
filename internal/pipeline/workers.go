package pipeline

import (
	"time"

	"github.com/haruue-net/wgveil/internal/obfuscate"
)

// workerIdleSleep is the backoff applied once a worker has spun through
// several empty Peek calls in a row, trading a little latency for not
// pegging a core while the queue is empty (spec.md §4.4 "idle backoff").
const workerIdleSleep = time.Millisecond

// idleSpinBudget is how many consecutive empty Peek calls a worker makes
// before it starts sleeping between polls.
const idleSpinBudget = 64

// runClientWorker is the single consumer of the client queue (spec.md
// §4.4): one worker-local Codec lives for the goroutine's whole lifetime,
// holding the per-worker mask cache and RNG state the original kept in
// thread-local scratch. Only used in ModeDual.
func (e *Engine) runClientWorker() {
	codec := obfuscate.NewCodec()
	idle := 0
	for {
		job := e.clientQueue.Peek()
		if job == nil {
			if e.clientQueue.ShuttingDown() {
				return
			}
			idle++
			if idle > idleSpinBudget {
				time.Sleep(workerIdleSleep)
			}
			continue
		}
		idle = 0
		touchNext(e.clientQueue.PeekNext())
		e.processClientJob(codec, job)
		e.clientQueue.Consume()
	}
}

// runServerWorker mirrors runClientWorker for the server queue. Replies
// toward clients go through e.egress (batch.go) instead of an immediate
// per-packet send; an empty Peek is also the signal to flush whatever the
// batch has accumulated so a quiet moment doesn't leave a reply sitting
// unsent.
func (e *Engine) runServerWorker() {
	codec := obfuscate.NewCodec()
	idle := 0
	for {
		job := e.serverQueue.Peek()
		if job == nil {
			e.egress.Flush()
			if e.serverQueue.ShuttingDown() {
				return
			}
			idle++
			if idle > idleSpinBudget {
				time.Sleep(workerIdleSleep)
			}
			continue
		}
		idle = 0
		touchNext(e.serverQueue.PeekNext())
		e.processServerJob(codec, job)
		e.serverQueue.Consume()
	}
}

// touchNext reads the one-slot-ahead job's leading bytes, the Go stand-in
// for the original's explicit cache-prefetch instruction on the next
// queue slot (spec.md §4.4 step 2): there is no portable prefetch
// intrinsic in Go, so the best a worker can do is touch the memory before
// it is needed, nudging it into cache ahead of the next loop iteration.
// next is nil when nothing has been published past the current job yet.
func touchNext(next *Job) {
	if next == nil || next.Length == 0 {
		return
	}
	_ = next.Buffer[0]
}

// runInline is spec.md §5's single-core collapse: one goroutine reads
// both the listening socket and every peer's upstream socket (via the
// same poller the dual-worker pipeline uses for the latter) and processes
// every packet itself on the spot, with no queues and a single Codec.
func (e *Engine) runInline() {
	codec := obfuscate.NewCodec()
	buf := make([]byte, MaxPacketSize)
	reapTick := time.NewTicker(reapInterval)
	defer reapTick.Stop()

	for {
		select {
		case <-e.shutdownCh:
			return
		case <-reapTick.C:
			e.reapIdle()
		default:
		}

		_ = e.listenConn.SetReadDeadline(time.Now().Add(ingressPollTimeout))
		if n, addr, err := e.listenConn.ReadFromUDP(buf); err == nil {
			var job Job
			job.Length = copy(job.Buffer[:], buf[:n])
			job.Addr = addr
			job.FromClient = true
			e.processClientJob(codec, &job)
		}

		for _, entry := range e.poller.Wait(ingressPollTimeout) {
			n, err := e.poller.Take(entry, buf)
			if err != nil || n == 0 {
				continue
			}
			var job Job
			job.Length = copy(job.Buffer[:], buf[:n])
			job.Peer = entry
			e.processServerJob(codec, &job)
		}
		e.egress.Flush()
	}
}
