package commbuffer

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// setupMiniRedis mirrors the teacher's cache package test helper: a real
// redis.Client pointed at an in-process miniredis server.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisSessionRegistry) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	reg := &RedisSessionRegistry{
		client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		ttl:    5 * time.Minute,
	}
	return mr, reg
}

func TestRedisSessionRegistryRegisterNewSessionNotEvicted(t *testing.T) {
	_, r := setupMiniRedis(t)
	if evicted := r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0}); evicted {
		t.Error("first REGISTER for an address should not report an eviction")
	}
	if got := len(r.All()); got != 1 {
		t.Fatalf("All() len = %d, want 1", got)
	}
}

func TestRedisSessionRegistrySameAddrNewUUIDEvictsPrior(t *testing.T) {
	_, r := setupMiniRedis(t)
	r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0})
	if evicted := r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0}); !evicted {
		t.Error("re-REGISTER with a new UUID at the same (ip, port) should evict the prior session")
	}
	if got := len(r.All()); got != 1 {
		t.Fatalf("All() len = %d, want 1 (replaced, not appended)", got)
	}
}

func TestRedisSessionRegistrySameUUIDNotEvicted(t *testing.T) {
	_, r := setupMiniRedis(t)
	id := uuid.New()
	r.Register("10.0.0.1", 5112, id, [3]byte{1, 0, 0})
	if evicted := r.Register("10.0.0.1", 5112, id, [3]byte{1, 0, 0}); evicted {
		t.Error("re-REGISTER with the same UUID should not report an eviction")
	}
}

func TestRedisSessionRegistryTouchUpdatesLastSeen(t *testing.T) {
	_, r := setupMiniRedis(t)
	id := uuid.New()
	r.Register("10.0.0.1", 5112, id, [3]byte{1, 0, 0})

	before := r.All()[0].LastSeen
	time.Sleep(time.Millisecond)
	r.Touch("10.0.0.1", 5112)

	sessions := r.All()
	if len(sessions) != 1 {
		t.Fatalf("All() len = %d, want 1", len(sessions))
	}
	if !sessions[0].LastSeen.After(before) {
		t.Error("Touch should advance LastSeen")
	}
}

func TestRedisSessionRegistryDisconnectRemoves(t *testing.T) {
	_, r := setupMiniRedis(t)
	r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0})
	r.Disconnect("10.0.0.1", 5112)
	if got := len(r.All()); got != 0 {
		t.Fatalf("All() len = %d, want 0 after Disconnect", got)
	}
}

func TestRedisSessionRegistryExpiresAfterTTL(t *testing.T) {
	mr, r := setupMiniRedis(t)
	r.ttl = 100 * time.Millisecond
	r.Register("10.0.0.1", 5112, uuid.New(), [3]byte{1, 0, 0})

	mr.FastForward(200 * time.Millisecond)

	if got := len(r.All()); got != 0 {
		t.Fatalf("All() len = %d, want 0 once the session's Redis key TTL has elapsed", got)
	}
}

func TestRedisSessionRegistryImplementsSessionBackend(t *testing.T) {
	var _ SessionBackend = (*RedisSessionRegistry)(nil)
}
