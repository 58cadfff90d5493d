package commbuffer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pytrain/pytrain/internal/metrics"
)

const sessionKeyPrefix = "pytrain:session:"

// redisSessionRecord is the JSON shape stored in Redis for one client
// session; UUID round-trips as text rather than go-redis's raw bytes.
type redisSessionRecord struct {
	IP       string    `json:"ip"`
	Port     int       `json:"port"`
	UUID     string    `json:"uuid"`
	Version  [3]byte   `json:"version"`
	LastSeen time.Time `json:"last_seen"`
}

// RedisSessionRegistry is a Redis-backed SessionBackend, grounded on the
// teacher's internal/cache.RedisCache: same connect-and-Ping constructor,
// same per-call context.WithTimeout discipline, same "JSON-encode the
// value, let Redis own expiry" shape. Every session key carries a TTL
// equal to the configured keep-alive window (spec §4.4), so a client that
// stops sending KEEP_ALIVE ages out of the registry without an explicit
// DISCONNECT, and multiple pytrain-server processes pointed at the same
// Redis instance share one client table.
type RedisSessionRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SessionBackend = (*RedisSessionRegistry)(nil)

// NewRedisSessionRegistry connects to the Redis server at addr and
// verifies it's reachable with a PING, matching cache.NewRedisCache's
// fail-fast-on-construct behavior.
func NewRedisSessionRegistry(addr string, ttl time.Duration) (*RedisSessionRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisSessionRegistry{client: client, ttl: ttl}, nil
}

func sessionKey(ip string, port int) string {
	return sessionKeyPrefix + addrKey(ip, port)
}

// Register mirrors SessionRegistry.Register, persisting the session as a
// TTL'd Redis key instead of an in-process map entry.
func (r *RedisSessionRegistry) Register(ip string, port int, id uuid.UUID, version [3]byte) (evicted bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := sessionKey(ip, port)
	if raw, err := r.client.Get(ctx, key).Result(); err == nil {
		var prev redisSessionRecord
		if json.Unmarshal([]byte(raw), &prev) == nil && prev.UUID != id.String() {
			evicted = true
			metrics.ClientEvictionsTotal.Inc()
		}
	}

	rec := redisSessionRecord{IP: ip, Port: port, UUID: id.String(), Version: version, LastSeen: time.Now()}
	if data, err := json.Marshal(rec); err == nil {
		_ = r.client.Set(ctx, key, data, r.ttl).Err()
	}
	r.updateGauge(ctx)
	return evicted
}

// Touch refreshes a session's last-seen timestamp and TTL on KEEP_ALIVE.
func (r *RedisSessionRegistry) Touch(ip string, port int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := sessionKey(ip, port)
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return
	}
	var rec redisSessionRecord
	if json.Unmarshal([]byte(raw), &rec) != nil {
		return
	}
	rec.LastSeen = time.Now()
	if data, err := json.Marshal(rec); err == nil {
		_ = r.client.Set(ctx, key, data, r.ttl).Err()
	}
}

// Disconnect removes the session for (ip, port) from Redis.
func (r *RedisSessionRegistry) Disconnect(ip string, port int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.client.Del(ctx, sessionKey(ip, port)).Err()
	r.updateGauge(ctx)
}

// All returns every currently registered, not-yet-expired session.
func (r *RedisSessionRegistry) All() []ClientSession {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	keys, err := r.client.Keys(ctx, sessionKeyPrefix+"*").Result()
	if err != nil {
		return nil
	}
	out := make([]ClientSession, 0, len(keys))
	for _, k := range keys {
		raw, err := r.client.Get(ctx, k).Result()
		if err != nil {
			continue
		}
		var rec redisSessionRecord
		if json.Unmarshal([]byte(raw), &rec) != nil {
			continue
		}
		id, err := uuid.Parse(rec.UUID)
		if err != nil {
			continue
		}
		out = append(out, ClientSession{IP: rec.IP, Port: rec.Port, UUID: id, Version: rec.Version, LastSeen: rec.LastSeen})
	}
	return out
}

func (r *RedisSessionRegistry) updateGauge(ctx context.Context) {
	if keys, err := r.client.Keys(ctx, sessionKeyPrefix+"*").Result(); err == nil {
		metrics.ClientsConnectedGauge.Set(float64(len(keys)))
	}
}

// Close releases the underlying Redis connection.
func (r *RedisSessionRegistry) Close() error {
	return r.client.Close()
}
