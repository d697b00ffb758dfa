package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionCache stores one login session per persona serial. Only the worker handling
// a persona writes its entry.
type SessionCache interface {
	Get(ctx context.Context, serial string) (Session, bool, error)
	Set(ctx context.Context, serial string, s Session) error
	Delete(ctx context.Context, serial string) error
}

// MemorySessionCache keeps sessions in process
type MemorySessionCache struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemorySessionCache creates an empty in-process cache
func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{sessions: make(map[string]Session)}
}

// Get implements SessionCache
func (m *MemorySessionCache) Get(_ context.Context, serial string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[serial]
	return s, ok, nil
}

// Set implements SessionCache
func (m *MemorySessionCache) Set(_ context.Context, serial string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[serial] = s
	return nil
}

// Delete implements SessionCache
func (m *MemorySessionCache) Delete(_ context.Context, serial string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, serial)
	return nil
}

const (
	defaultSessionPrefix = "autoposter:session:"
	redisOpTimeout       = 500 * time.Millisecond
)

// RedisSessionCache shares sessions across processes through redis
type RedisSessionCache struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisSessionCache connects to redis at addr and verifies the connection
func NewRedisSessionCache(ctx context.Context, addr, password string, db int) (*RedisSessionCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisSessionCacheWithClient(rdb), nil
}

// NewRedisSessionCacheWithClient wraps an existing client
func NewRedisSessionCacheWithClient(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client, prefix: defaultSessionPrefix, now: time.Now}
}

func (r *RedisSessionCache) key(serial string) string {
	return r.prefix + serial
}

// Get implements SessionCache
func (r *RedisSessionCache) Get(ctx context.Context, serial string) (Session, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, r.key(serial)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("redis get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return s, true, nil
}

// Set implements SessionCache. The entry expires with the session.
func (r *RedisSessionCache) Set(ctx context.Context, serial string, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = s.ExpiresAt.Sub(r.now()).Round(time.Second)
		if ttl <= 0 {
			return r.Delete(ctx, serial)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := r.client.Set(ctx, r.key(serial), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Delete implements SessionCache
func (r *RedisSessionCache) Delete(ctx context.Context, serial string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := r.client.Del(ctx, r.key(serial)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// Close releases the redis connection pool
func (r *RedisSessionCache) Close() error {
	return r.client.Close()
}

// NewSessionCache returns a redis-backed cache when addr is set, otherwise an in-process one
func NewSessionCache(ctx context.Context, addr, password string, db int) (SessionCache, error) {
	if addr == "" {
		return NewMemorySessionCache(), nil
	}
	return NewRedisSessionCache(ctx, addr, password, db)
}
