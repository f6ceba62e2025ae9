package obfuscate

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2s"
)

// KeyFingerprint returns a short, non-reversible hex fingerprint of an XOR
// key for diagnostics logging. The obfuscation codec itself has no use
// for a cryptographic primitive — it is explicitly not cryptography — but
// operators comparing two relay instances' configuration need a way to
// confirm they share a key without either log line ever containing it.
func KeyFingerprint(key []byte) string {
	sum := blake2s.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
