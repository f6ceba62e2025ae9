// Package pipeline implements the packet-processing pipeline of spec.md
// §4.3/§4.4/§4.7: a main ingress that reads the listening socket and
// every peer's upstream socket and enqueues jobs, and a pair of
// single-consumer worker loops backed by fixed-capacity SPSC ring
// buffers that decode, re-encode, and batch-send.
package pipeline

import (
	"net"
	"time"

	"github.com/haruue-net/wgveil/internal/session"
)

// MaxPacketSize bounds every job buffer: MTU headroom plus the maximum
// possible dummy padding the codec can add, concretely 2048 bytes per
// spec.md §3.
const MaxPacketSize = 2048

// Job is spec.md §3's "Packet job": a fixed-size buffer, its populated
// length, the sender address, a direction flag, an optional back-reference
// to the owning peer entry (set only for server-side arrivals, where
// ingress already knows which peer's socket produced the datagram), and
// an arrival timestamp.
type Job struct {
	Buffer     [MaxPacketSize]byte
	Length     int
	Addr       *net.UDPAddr
	FromClient bool
	Peer       *session.Entry
	Timestamp  time.Time
}

// reset clears a job slot's per-packet fields before it is reused by a
// later Reserve call; Buffer itself is overwritten by the next read and
// does not need zeroing.
func (j *Job) reset() {
	j.Length = 0
	j.Addr = nil
	j.FromClient = false
	j.Peer = nil
}
