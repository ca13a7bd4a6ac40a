// Package lock serializes pipeline runs per document. A lock is held from
// the moment a run is scheduled until the run finishes, and expires after a
// TTL so a crashed worker cannot block a document forever.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker hands out owner tokens for keys. Release only succeeds for the
// token that acquired the key.
type Locker interface {
	// Acquire reports ok=false when key is already held by someone else.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Claim turns the scheduling token into a token for one run. It
	// succeeds when key is still held by token, or is no longer held at
	// all, and fails while any other token owns key. A job delivered twice
	// therefore claims at most once while its first run is active.
	Claim(ctx context.Context, key, token string, ttl time.Duration) (runToken string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Key returns the lock key of a document.
func Key(documentID string) string {
	return "ingest:lock:" + documentID
}

// RedisClient is the subset of pkg/redis.Client the Redis locker needs.
type RedisClient interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
	SwapIfEquals(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error)
}

// Redis is a Locker shared by every replica of the service.
type Redis struct {
	client RedisClient
}

func NewRedis(client RedisClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl)
	if err != nil {
		return "", false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *Redis) Claim(ctx context.Context, key, token string, ttl time.Duration) (string, bool, error) {
	run := uuid.NewString()
	ok, err := r.client.SwapIfEquals(ctx, key, token, run, ttl)
	if err != nil {
		return "", false, fmt.Errorf("claiming lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return run, true, nil
}

// Release is a no-op when the lock expired or was taken over.
func (r *Redis) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	if _, err := r.client.DelIfEquals(ctx, key, token); err != nil {
		return fmt.Errorf("releasing lock %s: %w", key, err)
	}
	return nil
}

type entry struct {
	token   string
	expires time.Time
}

// Memory is a process-local Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]entry
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]entry), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.held[key]; ok && (e.expires.IsZero() || now.Before(e.expires)) {
		return "", false, nil
	}
	e := entry{token: uuid.NewString()}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.held[key] = e
	return e.token, true, nil
}

func (m *Memory) Claim(_ context.Context, key, token string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.held[key]; ok && e.token != token && (e.expires.IsZero() || now.Before(e.expires)) {
		return "", false, nil
	}
	e := entry{token: uuid.NewString()}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.held[key] = e
	return e.token, true, nil
}

func (m *Memory) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.held[key]; ok && e.token == token {
		delete(m.held, key)
	}
	return nil
}

var (
	_ Locker = (*Redis)(nil)
	_ Locker = (*Memory)(nil)
)
