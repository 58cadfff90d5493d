package commbuffer

import (
	"testing"

	"github.com/google/uuid"
)

func TestRegisterNewSessionNotEvicted(t *testing.T) {
	r := NewSessionRegistry()
	if evicted := r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0}); evicted {
		t.Error("first REGISTER for an address should not report an eviction")
	}
	if got := len(r.All()); got != 1 {
		t.Fatalf("All() len = %d, want 1", got)
	}
}

func TestRegisterSameAddrNewUUIDEvictsPrior(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0})
	if evicted := r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0}); !evicted {
		t.Error("re-REGISTER with a new UUID at the same (ip, port) should evict the prior session")
	}
	if got := len(r.All()); got != 1 {
		t.Fatalf("All() len = %d, want 1 (replaced, not appended)", got)
	}
}

func TestRegisterSameUUIDNotEvicted(t *testing.T) {
	r := NewSessionRegistry()
	id := uuid.New()
	r.Register("10.0.0.1", 5112, id, [3]byte{1, 0, 0})
	if evicted := r.Register("10.0.0.1", 5112, id, [3]byte{1, 0, 0}); evicted {
		t.Error("re-REGISTER with the same UUID should not report an eviction")
	}
}

func TestTouchUpdatesLastSeen(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0})
	before := r.All()[0].LastSeen
	r.Touch("10.0.0.1", 5112)
	after := r.All()[0].LastSeen
	if after.Before(before) {
		t.Error("Touch should not move LastSeen backward")
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0})
	r.Disconnect("10.0.0.1", 5112)
	if got := len(r.All()); got != 0 {
		t.Fatalf("All() len = %d after Disconnect, want 0", got)
	}
}

func TestDisconnectUnknownSessionIsNoop(t *testing.T) {
	r := NewSessionRegistry()
	r.Disconnect("10.0.0.1", 5112)
	if got := len(r.All()); got != 0 {
		t.Fatalf("All() len = %d, want 0", got)
	}
}
