// Package session implements the per-peer session table and handshake
// state machine of spec.md §3/§4.2: one PeerEntry per distinct client
// address, tracking handshake direction, obfuscation sides, negotiated
// version, and a small pending-send ring for the peer's dedicated
// upstream socket.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/haruue-net/wgveil/internal/masking"
	"github.com/haruue-net/wgveil/internal/obfuscate"
	"github.com/haruue-net/wgveil/internal/wgerr"
)

// Direction is the most recently observed handshake Initiation direction
// for a peer entry.
type Direction int

const (
	DirNone Direction = iota
	DirClientToServer
	DirServerToClient
)

// PendingSendSize bounds the per-peer deferred-send ring (spec.md §3/§9:
// "deliberately small and per-entry"; full ring drops the newest arrival).
const PendingSendSize = 32

type pendingPacket struct {
	data   []byte
	length int
}

// Entry is one end-to-end WireGuard session being relayed, spec.md §3's
// "Peer entry". Fields mutated by the packet handlers are guarded by mu;
// ClientAddr, ForwardAddr, and ServerSock are set once at creation and
// read without locking thereafter (ServerSock's own file descriptor is
// the synchronization point for I/O, per spec.md §5).
//
// Unlike the original's intrusive linked list with hand-rolled hazard
// windows, Entry instances are ordinary heap values kept alive by Go's
// garbage collector for as long as any goroutine holds a *Entry — the
// Table's eviction simply removes the map slot; a goroutine mid-flight
// with a reference from before eviction keeps working safely until it
// drops the reference, which satisfies spec.md §5's grace-window
// requirement without extra bookkeeping. See DESIGN.md.
type Entry struct {
	ClientAddr  *net.UDPAddr
	ForwardAddr *net.UDPAddr
	ServerSock  *net.UDPConn

	mu sync.Mutex

	handshaked         bool
	handshakeDirection Direction
	lastHandshakeReqMs int64
	lastHandshakeMs    int64
	lastActivityMs     int64
	clientObfuscated   bool
	serverObfuscated   bool
	version            uint8

	MaskingHandler masking.Handler

	pendingSends [PendingSendSize]pendingPacket
	pendingHead  int
	pendingTail  int
}

// NewEntry creates a peer entry for a freshly observed client address,
// with its own dedicated, connected upstream socket toward forwardAddr.
// processClientJob calls it (through Table.GetOrCreate) for the first
// datagram of at least 4 bytes from a previously unseen client address,
// before the packet is classified: creation is not limited to
// Initiations.
func NewEntry(clientAddr, forwardAddr *net.UDPAddr) (*Entry, error) {
	sock, err := net.DialUDP("udp", nil, forwardAddr)
	if err != nil {
		return nil, wgerr.ErrSessionCreate{Addr: clientAddr.String(), Cause: err}
	}
	return &Entry{
		ClientAddr:  clientAddr,
		ForwardAddr: forwardAddr,
		ServerSock:  sock,
		version:     obfuscate.Version,
	}, nil
}

// Close releases the entry's upstream socket. Called exactly once, by
// the reaper, after the entry has been removed from the Table.
func (e *Entry) Close() error {
	return e.ServerSock.Close()
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Touch stamps last-activity to now. Called at the end of every
// successful client-side or server-side handler pass.
func (e *Entry) Touch() {
	e.mu.Lock()
	e.lastActivityMs = nowMillis()
	e.mu.Unlock()
}

// IdleFor reports how long it has been since the entry last saw traffic.
func (e *Entry) IdleFor() time.Duration {
	e.mu.Lock()
	last := e.lastActivityMs
	e.mu.Unlock()
	return time.Since(time.UnixMilli(last))
}

// Version returns the entry's current negotiated obfuscation version.
func (e *Entry) Version() uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Obfuscation returns which sides the relay currently believes are
// obfuscated, and whether a handshake has completed.
func (e *Entry) Obfuscation() (clientObfuscated, serverObfuscated, handshaked bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientObfuscated, e.serverObfuscated, e.handshaked
}

// PushPending enqueues a deferred send for the entry's upstream socket
// after it returned a would-block. When full, the new packet is dropped
// (drop-new policy, spec.md §9 — do not change without a compatibility
// note: WireGuard's own retransmission depends on this being lossy, not
// head-of-line blocking).
func (e *Entry) PushPending(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingHead-e.pendingTail >= PendingSendSize {
		return
	}
	slot := &e.pendingSends[e.pendingHead%PendingSendSize]
	if cap(slot.data) < len(data) {
		slot.data = make([]byte, len(data))
	} else {
		slot.data = slot.data[:len(data)]
	}
	copy(slot.data, data)
	slot.length = len(data)
	e.pendingHead++
}

// DrainPending calls send for every queued pending packet in FIFO order,
// stopping at the first one send reports as not sent (a would-block).
// send returns true if the packet was sent.
func (e *Entry) DrainPending(send func(data []byte) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.pendingHead != e.pendingTail {
		slot := &e.pendingSends[e.pendingTail%PendingSendSize]
		if !send(slot.data[:slot.length]) {
			return
		}
		e.pendingTail++
	}
}
