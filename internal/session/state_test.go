package session

import (
	"net"
	"testing"
	"time"
)

func testEntry(t *testing.T) *Entry {
	t.Helper()
	client := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 51820}
	forward := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 51821}
	e, err := NewEntry(client, forward)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// Property 5: Initiation-then-Response in the same direction within the
// handshake window leaves handshaked=true and exactly one side obfuscated.
func TestHandshakeCompletion_Property5(t *testing.T) {
	e := testEntry(t)
	start := time.Now()

	// Client handler sees an Initiation that arrived from the client,
	// which (per §4.5) is recorded as handshake_direction = client→server.
	e.OnInitiation(SideClient, start)

	// The matching Response must arrive at the server-side handler (it
	// came back from the server), within the window, to complete.
	ok := e.OnResponse(SideServer, start.Add(10*time.Millisecond), 5*time.Second, true)
	if !ok {
		t.Fatalf("expected handshake completion, got drop")
	}

	clientObf, serverObf, handshaked := e.Obfuscation()
	if !handshaked {
		t.Fatalf("expected handshaked = true")
	}
	if clientObf == serverObf {
		t.Fatalf("expected exactly one side obfuscated, got client=%v server=%v", clientObf, serverObf)
	}
}

// Property 6: version is monotonically non-increasing.
func TestVersionMonotonicity_Property6(t *testing.T) {
	e := testEntry(t)
	if e.Version() == 0 {
		t.Fatalf("expected a nonzero starting version")
	}
	e.DowngradeVersion(0)
	if e.Version() != 0 {
		t.Fatalf("expected version downgraded to 0")
	}
	e.DowngradeVersion(5) // attempting to raise must be a no-op
	if e.Version() != 0 {
		t.Fatalf("version must never increase, got %d", e.Version())
	}
}

// Property 7: a non-handshake packet before handshaked=true is dropped.
func TestDataBeforeHandshake_Property7(t *testing.T) {
	e := testEntry(t)
	if e.RequireHandshaked() {
		t.Fatalf("fresh entry must not be handshaked")
	}
}

// S4: a Response arriving after the handshake window is dropped and
// handshaked remains false.
func TestHandshakeTimeout_S4(t *testing.T) {
	e := testEntry(t)
	start := time.Now()
	handshakeTimeout := 100 * time.Millisecond

	e.OnInitiation(SideClient, start)
	ok := e.OnResponse(SideServer, start.Add(handshakeTimeout+time.Millisecond), handshakeTimeout, true)
	if ok {
		t.Fatalf("expected out-of-window response to be dropped")
	}
	if _, _, handshaked := e.Obfuscation(); handshaked {
		t.Fatalf("handshaked must remain false after a dropped response")
	}
}

func TestHandshakeWrongDirection_Dropped(t *testing.T) {
	e := testEntry(t)
	start := time.Now()
	e.OnInitiation(SideClient, start)
	// A Response observed on the same side as the Initiation is the wrong
	// direction (same-side echo, not a genuine reply) and must be dropped.
	ok := e.OnResponse(SideClient, start.Add(time.Millisecond), 5*time.Second, true)
	if ok {
		t.Fatalf("expected wrong-direction response to be dropped")
	}
}

func TestPendingSendRing_DropsOldestPolicyIsDropNewest(t *testing.T) {
	e := testEntry(t)
	for i := 0; i < PendingSendSize+5; i++ {
		e.PushPending([]byte{byte(i)})
	}
	count := 0
	e.DrainPending(func(data []byte) bool {
		if data[0] != byte(count) {
			t.Fatalf("drained packet %d = %d, want %d (oldest kept, newest dropped)", count, data[0], count)
		}
		count++
		return true
	})
	if count != PendingSendSize {
		t.Fatalf("expected ring to cap at %d entries, got %d", PendingSendSize, count)
	}
}
