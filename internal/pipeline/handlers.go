package pipeline

import (
	"net"
	"time"

	"github.com/haruue-net/wgveil/internal/obfuscate"
	"github.com/haruue-net/wgveil/internal/session"
	"github.com/haruue-net/wgveil/internal/wglog"
)

// processClientJob implements spec.md §4.5: a datagram arrived on the
// listening socket from a client address. It classifies the packet,
// creates a session entry on first contact, runs the handshake/version
// state machine, and forwards the result toward the peer's upstream
// socket.
//
// Whether an arriving packet is obfuscated is read straight off the raw
// bytes (obfuscate.IsObfuscated), never cached per-entry state: a side's
// obfuscation is a property of what it actually sent. The encode decision
// follows directly from that same observation — a packet that arrived
// unobfuscated is always encoded before it goes out the other side, full
// stop, matching the original's "if (!obfuscated) encode(...)".
func (e *Engine) processClientJob(codec *obfuscate.Codec, job *Job) {
	length := job.Length
	if length < 4 {
		return
	}
	buffer := job.Buffer[:]
	peerAddr := job.Addr

	entry, err := e.table.GetOrCreate(peerAddr, func() (*session.Entry, error) {
		ne, err := session.NewEntry(peerAddr, e.forwardAddr)
		if err != nil {
			return nil, err
		}
		ne.MaskingHandler = e.defaultMaskingHandler()
		if err := e.poller.Add(ne); err != nil {
			wglog.Warn("client: registering upstream socket for %s: %s", peerAddr, err)
		}
		return ne, nil
	})
	if err != nil {
		wglog.Warn("client: %s", err)
		return
	}

	rawObfuscated := obfuscate.IsObfuscated(buffer[:length])
	if rawObfuscated {
		length = entry.MaskingHandler.UnwrapFromClient(buffer, length, peerAddr, e.forwardAddr)
		if length < 4 {
			return
		}
		originalLength := length
		version := entry.Version()
		length = codec.Decode(buffer, length, e.params, &version)
		entry.DowngradeVersion(version)
		if length < 4 || length > originalLength {
			return
		}
	}

	now := time.Now()
	switch obfuscate.PacketType(buffer[:length]) {
	case obfuscate.TypeInitiation:
		entry.OnInitiation(session.SideClient, now)
		if !rawObfuscated {
			entry.MaskingHandler.OnHandshakeReqFromClient(peerAddr, e.forwardAddr)
		}
	case obfuscate.TypeResponse:
		if !entry.OnResponse(session.SideClient, now, e.handshakeTimeout, rawObfuscated) {
			return
		}
	default:
		if !entry.RequireHandshaked() {
			return
		}
	}

	if !rawObfuscated {
		length = codec.Encode(buffer, length, e.params, entry.Version())
	}
	length = entry.MaskingHandler.DataWrapToServer(buffer, length, peerAddr, e.forwardAddr)
	if length <= 0 {
		return
	}

	entry.Touch()
	e.sendToUpstream(entry, buffer[:length])
}

// processServerJob mirrors processClientJob for a datagram arriving on a
// peer's dedicated upstream socket (spec.md §4.6). ingress already
// resolved which entry owns the socket, so no table lookup is needed
// here.
func (e *Engine) processServerJob(codec *obfuscate.Codec, job *Job) {
	entry := job.Peer
	if entry == nil {
		return
	}
	length := job.Length
	if length < 4 {
		return
	}
	buffer := job.Buffer[:]
	peerAddr := entry.ClientAddr

	rawObfuscated := obfuscate.IsObfuscated(buffer[:length])
	if rawObfuscated {
		length = entry.MaskingHandler.UnwrapFromServer(buffer, length, peerAddr, e.forwardAddr)
		if length < 4 {
			return
		}
		originalLength := length
		version := entry.Version()
		length = codec.Decode(buffer, length, e.params, &version)
		entry.DowngradeVersion(version)
		if length < 4 || length > originalLength {
			return
		}
	}

	now := time.Now()
	switch obfuscate.PacketType(buffer[:length]) {
	case obfuscate.TypeInitiation:
		entry.OnInitiation(session.SideServer, now)
		if !rawObfuscated {
			entry.MaskingHandler.OnHandshakeReqFromServer(peerAddr, e.forwardAddr)
		}
	case obfuscate.TypeResponse:
		if !entry.OnResponse(session.SideServer, now, e.handshakeTimeout, rawObfuscated) {
			return
		}
	default:
		if !entry.RequireHandshaked() {
			return
		}
	}

	if !rawObfuscated {
		length = codec.Encode(buffer, length, e.params, entry.Version())
	}
	length = entry.MaskingHandler.DataWrapToClient(buffer, length, peerAddr, e.forwardAddr)
	if length <= 0 {
		return
	}

	entry.Touch()
	e.sendToClient(peerAddr, buffer[:length])
}

// sendToUpstream writes toward a peer's dedicated upstream socket without
// blocking (spec.md §5's "non-blocking send"), using a one-millisecond
// write deadline the way the teacher's client.go emulates O_NONBLOCK on a
// connected socket: a write that cannot complete within it counts as a
// would-block. A would-block result queues the packet on the
// entry's pending ring instead of dropping it outright; anything already
// queued is drained first so ordering is preserved.
func (e *Engine) sendToUpstream(entry *session.Entry, buf []byte) {
	entry.DrainPending(func(data []byte) bool {
		return writeNonBlocking(entry.ServerSock, data)
	})
	if !writeNonBlocking(entry.ServerSock, buf) {
		entry.PushPending(buf)
	}
}

// sendToClient queues a reply for the shared listening socket's batched
// egress (batch.go). There is no per-peer pending ring on this path —
// entry.go's ring is documented as belonging to the dedicated upstream
// socket specifically — a short batch write is simply dropped, matching
// UDP's own delivery guarantees.
func (e *Engine) sendToClient(clientAddr *net.UDPAddr, buf []byte) {
	e.egress.Add(clientAddr, buf)
}

func writeNonBlocking(conn *net.UDPConn, buf []byte) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Millisecond))
	_, err := conn.Write(buf)
	if err == nil {
		return true
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false
	}
	wglog.Warn("send to upstream: %s", err)
	return true // hard error: drop rather than retry forever
}
