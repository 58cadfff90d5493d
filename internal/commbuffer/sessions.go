package commbuffer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pytrain/pytrain/internal/metrics"
)

// SessionBackend is the client-session table's storage contract: an
// in-process SessionRegistry by default, or a RedisSessionRegistry when
// the server is configured with a Redis address (spec §4.4's keep-alive
// window becomes the Redis key TTL, and the registry is shared across
// every pytrain-server process pointed at the same Redis instance).
type SessionBackend interface {
	Register(ip string, port int, id uuid.UUID, version [3]byte) (evicted bool)
	Touch(ip string, port int)
	Disconnect(ip string, port int)
	All() []ClientSession
}

// ClientSession is one TCP-connected client, tracked by the server's
// control plane (spec §4.4).
type ClientSession struct {
	IP       string
	Port     int
	UUID     uuid.UUID
	Version  [3]byte // major, minor, patch
	LastSeen time.Time
}

// SessionRegistry tracks live client sessions keyed by (ip, port).
// Registering a new UUID for an already-known (ip, port) evicts the
// prior session (spec §4.4, ClientEvicted in §7).
type SessionRegistry struct {
	mu       sync.Mutex
	byAddr   map[string]*ClientSession
}

var _ SessionBackend = (*SessionRegistry)(nil)

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byAddr: make(map[string]*ClientSession)}
}

func addrKey(ip string, port int) string {
	return fmt.Sprintf("%s:%d", ip, port)
}

// Register records a REGISTER from (ip, port, id). It reports whether an
// existing session for that (ip, port) was evicted.
func (r *SessionRegistry) Register(ip string, port int, id uuid.UUID, version [3]byte) (evicted bool) {
	key := addrKey(ip, port)
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byAddr[key]; ok && prev.UUID != id {
		evicted = true
		metrics.ClientEvictionsTotal.Inc()
	}
	r.byAddr[key] = &ClientSession{IP: ip, Port: port, UUID: id, Version: version, LastSeen: time.Now()}
	metrics.ClientsConnectedGauge.Set(float64(len(r.byAddr)))
	return evicted
}

// Touch refreshes the last-seen timestamp for an existing session on a
// KEEP_ALIVE.
func (r *SessionRegistry) Touch(ip string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byAddr[addrKey(ip, port)]; ok {
		s.LastSeen = time.Now()
	}
}

// Disconnect removes the session for (ip, port).
func (r *SessionRegistry) Disconnect(ip string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byAddr, addrKey(ip, port))
	metrics.ClientsConnectedGauge.Set(float64(len(r.byAddr)))
}

// All returns every currently registered session.
func (r *SessionRegistry) All() []ClientSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ClientSession, 0, len(r.byAddr))
	for _, s := range r.byAddr {
		out = append(out, *s)
	}
	return out
}
