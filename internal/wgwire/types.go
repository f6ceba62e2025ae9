// Package wgwire pins the WireGuard wire-format constants the relay's
// classifier and padding-cap logic depend on to golang.zx2c4.com/wireguard's
// own device package, the same dependency the relay's lineage (mwgp) uses
// for the identical purpose in its obfuscator.
package wgwire

import "golang.zx2c4.com/wireguard/device"

// Message type discriminators, read from a datagram's first
// little-endian uint32. internal/obfuscate defines its Type* constants
// from these, so the relay's notion of "Initiation" etc. cannot drift
// from upstream WireGuard's.
const (
	MessageInitiationType  = device.MessageInitiationType
	MessageResponseType    = device.MessageResponseType
	MessageCookieReplyType = device.MessageCookieReplyType
	MessageTransportType   = device.MessageTransportType
)

// Fixed handshake message sizes, re-exported from the device package.
// The relay does not check decoded packets against them; it reads only
// a datagram's first four bytes.
const (
	MessageInitiationSize  = device.MessageInitiationSize
	MessageResponseSize    = device.MessageResponseSize
	MessageCookieReplySize = device.MessageCookieReplySize
	MinMessageSize         = device.MessageTransportHeaderSize
)
