package obfuscate

import (
	"bytes"
	"testing"
)

func TestRoundTrip_S1(t *testing.T) {
	// S1: key="abc", buffer = {0x01,0x00,0x00,0x00,0xDE,0xAD}, no data
	// padding, RNG state seeded to 0x42 so the header rewrite's random
	// byte and the handshake padding length are reproducible.
	key := []byte("abc")
	orig := []byte{0x01, 0x00, 0x00, 0x00, 0xDE, 0xAD}

	buf := make([]byte, len(orig)+MaxDummyLengthTotal)
	copy(buf, orig)

	params := &Params{Key: key, MaxDummyLengthData: 0}
	enc := NewCodec()
	enc.rng.state = 0x42 // next() draw determines the randomization byte deterministically enough for this check
	encLen := enc.Encode(buf, len(orig), params, 1)

	if buf[1] == 0 {
		t.Fatalf("expected encoded buffer[1] (randomization byte after the keystream XOR) to be nonzero, got 0")
	}
	if !IsObfuscated(buf[:encLen]) {
		t.Fatalf("encoded packet should be flagged obfuscated")
	}

	dec := NewCodec()
	var versionOut uint8
	decLen := dec.Decode(buf, encLen, params, &versionOut)

	if decLen != len(orig) {
		t.Fatalf("decoded length = %d, want %d", decLen, len(orig))
	}
	if !bytes.Equal(buf[:decLen], orig) {
		t.Fatalf("decoded bytes = %x, want %x", buf[:decLen], orig)
	}
}

func TestCodecLaw1_EncodeThenDecodeRecoversOriginal(t *testing.T) {
	key := []byte("correct horse battery staple")
	cases := [][]byte{
		{0x01, 0x00, 0x00, 0x00, 1, 2, 3, 4},
		{0x02, 0x00, 0x00, 0x00, 9, 9, 9, 9, 9, 9},
		{0x04, 0x00, 0x00, 0x00, 0xAA, 0xBB, 0xCC},
	}

	for _, orig := range cases {
		buf := make([]byte, len(orig)+MaxDummyLengthTotal)
		copy(buf, orig)

		params := &Params{Key: key, MaxDummyLengthData: 32}
		enc := NewCodec()
		newLen := enc.Encode(buf, len(orig), params, Version)

		if newLen < len(orig) || newLen > MaxDummyLengthTotal {
			t.Fatalf("encoded length %d out of expected bounds", newLen)
		}

		dec := NewCodec()
		var versionOut uint8
		decLen := dec.Decode(buf, newLen, params, &versionOut)

		if decLen != len(orig) {
			t.Fatalf("decode length = %d, want %d", decLen, len(orig))
		}
		if !bytes.Equal(buf[:decLen], orig) {
			t.Fatalf("decode mismatch: got %x want %x", buf[:decLen], orig)
		}
	}
}

func TestCodecLaw2_XorStreamIsSelfInverse(t *testing.T) {
	key := []byte("k")
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	buf := make([]byte, len(data))
	copy(buf, data)

	xorStreamScalar(buf, key)
	xorStreamScalar(buf, key)

	if !bytes.Equal(buf, data) {
		t.Fatalf("double xorStreamScalar did not return original: got %x want %x", buf, data)
	}
}

func TestCodecLaw3_IsObfuscatedMatchesDefinition(t *testing.T) {
	cases := []struct {
		buf  []byte
		want bool
	}{
		{[]byte{1, 0, 0, 0}, false},
		{[]byte{4, 0, 0, 0}, false},
		{[]byte{5, 0, 0, 0}, true},
		{[]byte{0, 0, 0, 0}, true},
		{[]byte{1, 1, 0, 0}, true},
		{[]byte{1, 0, 1, 0}, true},
		{[]byte{1, 0, 0, 1}, true},
	}
	for _, tc := range cases {
		got := IsObfuscated(tc.buf)
		if got != tc.want {
			t.Errorf("IsObfuscated(%v) = %v, want %v", tc.buf, got, tc.want)
		}
	}
}

func TestCodecLaw4_ValidHeaderRarelyPassesDetection(t *testing.T) {
	key := []byte("abc")
	params := &Params{Key: key}
	const trials = 2000
	falsePositives := 0 // encoded packets that still look "plain"

	for i := 0; i < trials; i++ {
		orig := []byte{0x01, 0x00, 0x00, 0x00, 0xAB, 0xCD}
		buf := make([]byte, len(orig)+MaxDummyLengthTotal)
		copy(buf, orig)

		enc := NewCodec()
		newLen := enc.Encode(buf, len(orig), params, Version)
		if !IsObfuscated(buf[:newLen]) {
			falsePositives++
		}
	}

	// Bounded by the 1-in-256 chance rnd could coincidentally reproduce a
	// valid-looking header; allow generous slack for test stability.
	if falsePositives > trials/64 {
		t.Fatalf("too many encoded packets passed as unobfuscated: %d/%d", falsePositives, trials)
	}
}

func TestDecode_MalformedPacketSignalsViaLength(t *testing.T) {
	// A garbled obfuscated packet may decode to a length < 4 or > original;
	// callers are responsible for dropping on that signal. This test just
	// confirms Decode does not panic and returns *some* length for
	// adversarial input.
	key := []byte("z")
	params := &Params{Key: key}
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00}
	var versionOut uint8
	dec := NewCodec()
	_ = dec.Decode(buf, len(buf), params, &versionOut)
}

func TestKeyFingerprint_DoesNotLeakKey(t *testing.T) {
	key := []byte("super-secret-psk")
	fp := KeyFingerprint(key)
	if bytes.Contains([]byte(fp), key) {
		t.Fatalf("fingerprint leaked raw key material")
	}
	if len(fp) != 16 {
		t.Fatalf("fingerprint length = %d, want 16 hex chars", len(fp))
	}
}
