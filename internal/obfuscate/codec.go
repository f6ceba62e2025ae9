package obfuscate

import (
	"encoding/binary"

	"github.com/haruue-net/wgveil/internal/wgwire"
)

// Version is the obfuscation protocol version this codec implements.
// A peer's negotiated version is monotonically non-increasing over its
// session lifetime; see internal/session.
const Version = 1

// WireGuard message type identifiers, read from the first byte of any
// datagram's little-endian packet_type header. Pinned to wgwire's
// golang.zx2c4.com/wireguard-backed constants so the classifier can never
// silently drift from upstream WireGuard's own type numbering.
const (
	TypeInitiation = wgwire.MessageInitiationType
	TypeResponse   = wgwire.MessageResponseType
	TypeCookie     = wgwire.MessageCookieReplyType
	TypeData       = wgwire.MessageTransportType
)

// Dummy-padding caps, shared by every peer regardless of per-peer config.
const (
	MaxDummyLengthTotal     = 1400
	MaxDummyLengthHandshake = 256
)

// Params is the static, per-relay-instance obfuscation configuration:
// the pre-shared XOR key and the data-packet padding cap. It carries no
// mutable state and is safe to share across every goroutine.
type Params struct {
	Key                []byte
	MaxDummyLengthData int
}

// PacketType reads buffer[0:4] as a little-endian uint32, the WireGuard
// message type discriminator. Callers must ensure len(buffer) >= 4.
func PacketType(buffer []byte) uint32 {
	return binary.LittleEndian.Uint32(buffer[0:4])
}

// IsObfuscated reports whether buffer looks like something other than a
// plain WireGuard header: false iff buffer[0] is in {1,2,3,4} and
// buffer[1], buffer[2], buffer[3] are all zero. Callers must ensure
// len(buffer) >= 4.
func IsObfuscated(buffer []byte) bool {
	t := buffer[0]
	return !(t >= 1 && t <= 4 && buffer[1] == 0 && buffer[2] == 0 && buffer[3] == 0)
}

// Codec holds the per-worker scratch (mask cache, RNG) the encode/decode
// hot path needs. One Codec is owned by each worker goroutine; it is
// never shared or locked, mirroring the original's thread-local scratch.
type Codec struct {
	rng   *rng
	masks *maskCache
}

// NewCodec builds a worker-local codec instance. Call one per worker
// goroutine, never share the result across goroutines.
func NewCodec() *Codec {
	r := newRNG()
	return &Codec{rng: r, masks: newMaskCache(r)}
}

// Encode rewrites buffer[:length]'s header and appends random dummy
// padding (version >= 1 only), then XORs the whole result with the keyed
// CRC-8 keystream. It returns the new length, which may exceed length by
// up to the applicable dummy-length cap. buffer must be the full
// underlying packet buffer (len(buffer) >= length + MaxDummyLengthTotal),
// not a slice truncated to length — the padding is written past the
// original length before the length is extended to cover it.
func (c *Codec) Encode(buffer []byte, length int, params *Params, version uint8) int {
	if version >= 1 {
		packetType := PacketType(buffer)
		rnd := c.rng.byteIn1to255()
		buffer[0] ^= rnd
		buffer[1] = rnd

		if length < MaxDummyLengthTotal {
			var dummyLength uint16
			maxDummy := uint16(MaxDummyLengthTotal - length)
			switch packetType {
			case TypeInitiation, TypeResponse:
				dummyLength = c.rng.uintnLess(minUint16(maxDummy, MaxDummyLengthHandshake))
			case TypeCookie, TypeData:
				if params.MaxDummyLengthData > 0 {
					dummyLength = c.rng.uintnLess(minUint16(maxDummy, uint16(params.MaxDummyLengthData)))
				}
			}
			buffer[2] = byte(dummyLength)
			buffer[3] = byte(dummyLength >> 8)
			if dummyLength > 0 {
				pad := buffer[length : length+int(dummyLength)]
				for i := range pad {
					pad[i] = 0xFF
				}
				length += int(dummyLength)
			}
		}
	}

	c.masks.apply(buffer, length, params.Key)
	return length
}

// Decode undoes the keystream, then — if the result still doesn't look
// like WireGuard — undoes the header rewrite and strips the dummy
// padding. versionOut receives 0 when the packet turns out to have been
// unobfuscated all along (decode is then a no-op beyond the keystream
// XOR, which is self-inverting against nothing since an unobfuscated
// packet was never encoded — see the caller contract below).
//
// Decode is best-effort: it never panics on malformed input. Callers
// must additionally check the returned length against 4 and against the
// pre-decode length, per the relay's drop rules; Decode does not enforce
// those itself so that callers can log/count drops precisely.
func (c *Codec) Decode(buffer []byte, length int, params *Params, versionOut *uint8) int {
	c.masks.apply(buffer, length, params.Key)

	if !IsObfuscated(buffer) {
		*versionOut = 0
		return length
	}

	buffer[0] ^= buffer[1]
	dummyLength := int(buffer[2]) | int(buffer[3])<<8
	buffer[1] = 0
	buffer[2] = 0
	buffer[3] = 0
	return length - dummyLength
}

func minUint16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}
