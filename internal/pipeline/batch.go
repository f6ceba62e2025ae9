package pipeline

import (
	"net"

	"golang.org/x/net/ipv4"

	"github.com/haruue-net/wgveil/internal/wglog"
)

// sendBatchSize caps how many replies accumulate before a flush,
// mirroring threading.c's worker_thread_server_func SEND_BATCH loop
// (SPEC_FULL.md §4 item 3). The shared listening socket is the one place
// in the pipeline where many small sends share a single file descriptor
// but target different destinations each time, which is exactly the
// shape a gather-send syscall amortizes.
const sendBatchSize = 16

// egressBatch accumulates replies bound for distinct client addresses on
// the listening socket and flushes them with one ipv4.PacketConn.WriteBatch
// call. WriteBatch is golang.org/x/net's portable wrapper over sendmmsg(2)
// on Linux, falling back to a plain per-message send loop elsewhere — it
// is used here instead of hand-built golang.org/x/sys/unix.Mmsghdr/Iovec
// structs specifically to avoid a second, architecture-sensitive socket
// primitive alongside the epoll poller.
type egressBatch struct {
	pc   *ipv4.PacketConn
	msgs []ipv4.Message
}

func newEgressBatch(conn *net.UDPConn) *egressBatch {
	return &egressBatch{
		pc:   ipv4.NewPacketConn(conn),
		msgs: make([]ipv4.Message, 0, sendBatchSize),
	}
}

// Add queues a reply to addr. data is copied because the caller's job
// buffer is reused the instant its queue slot is Consume()d, which can
// happen before Flush ever runs. The batch flushes itself once it
// reaches sendBatchSize.
func (b *egressBatch) Add(addr *net.UDPAddr, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	b.msgs = append(b.msgs, ipv4.Message{Buffers: [][]byte{cp}, Addr: addr})
	if len(b.msgs) >= sendBatchSize {
		b.Flush()
	}
}

// Flush sends every queued reply in one batch. A short write is
// best-effort: WriteBatch reports how many leading messages went out, and
// anything beyond that is simply dropped, matching UDP's own delivery
// guarantees rather than retried.
func (b *egressBatch) Flush() {
	if len(b.msgs) == 0 {
		return
	}
	if _, err := b.pc.WriteBatch(b.msgs, 0); err != nil {
		wglog.Warn("batched egress to clients: %s", err)
	}
	b.msgs = b.msgs[:0]
}
