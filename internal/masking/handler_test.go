package masking

import "testing"

func TestNew_UnregisteredNameFallsBackToPassthrough(t *testing.T) {
	h := New("does-not-exist")
	if _, ok := h.(Passthrough); !ok {
		t.Fatalf("New(unregistered) = %T, want Passthrough", h)
	}
}

func TestNew_EmptyNameIsPassthrough(t *testing.T) {
	h := New("")
	if _, ok := h.(Passthrough); !ok {
		t.Fatalf("New(\"\") = %T, want Passthrough", h)
	}
}

func TestPassthrough_WrapHooksAreIdentity(t *testing.T) {
	var h Passthrough
	buf := []byte{1, 2, 3, 4}
	if n := h.UnwrapFromClient(buf, len(buf), nil, nil); n != len(buf) {
		t.Fatalf("UnwrapFromClient length = %d, want %d", n, len(buf))
	}
	if n := h.DataWrapToServer(buf, len(buf), nil, nil); n != len(buf) {
		t.Fatalf("DataWrapToServer length = %d, want %d", n, len(buf))
	}
	if n := h.DataWrapToClient(buf, len(buf), nil, nil); n != len(buf) {
		t.Fatalf("DataWrapToClient length = %d, want %d", n, len(buf))
	}
}

func TestRegister_MakesSchemeSelectable(t *testing.T) {
	called := false
	Register("test-echo", func() Handler {
		called = true
		return Passthrough{}
	})
	defer delete(registry, "test-echo")

	h := New("test-echo")
	if !called {
		t.Fatalf("expected the registered factory to run")
	}
	if _, ok := h.(Passthrough); !ok {
		t.Fatalf("New(test-echo) = %T, want Passthrough", h)
	}
}
