// internal/signer/nonce.go
package signer

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const noncePrefix = "solunex:nonce:"

// NonceStore reserves single-use tokens. Reserve returns true exactly
// once per nonce within its TTL; the reservation itself must be atomic
// under concurrent callers presenting the same nonce.
type NonceStore interface {
	Reserve(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// MemoryNonceStore is the process-local store. It is also the fallback
// when the shared cache is unreachable, which narrows replay
// protection to a single instance.
type MemoryNonceStore struct {
	mtx    sync.Mutex
	nonces map[string]time.Time // nonce -> expiry
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[string]time.Time)}
}

func (s *MemoryNonceStore) Reserve(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	now := time.Now()

	// Lazy purge of lapsed entries
	for n, expiry := range s.nonces {
		if !expiry.After(now) {
			delete(s.nonces, n)
		}
	}

	if _, used := s.nonces[nonce]; used {
		return false, nil
	}

	s.nonces[nonce] = now.Add(ttl)
	return true, nil
}

// RedisNonceStore reserves nonces across instances with SETNX + TTL,
// which supplies first-writer-wins atomicity on the server side.
type RedisNonceStore struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisNonceStore(client *redis.Client, timeout time.Duration) *RedisNonceStore {
	return &RedisNonceStore{client: client, timeout: timeout}
}

func (s *RedisNonceStore) Reserve(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.SetNX(ctx, noncePrefix+nonce, 1, ttl).Result()
}

// FallbackNonceStore prefers the shared store and degrades to the
// local one when it errors. The degraded mode trades cross-instance
// replay protection for availability; every fallback is logged so the
// weakening is visible, never silent.
type FallbackNonceStore struct {
	shared NonceStore
	local  NonceStore
}

func NewFallbackNonceStore(shared, local NonceStore) *FallbackNonceStore {
	return &FallbackNonceStore{shared: shared, local: local}
}

func (s *FallbackNonceStore) Reserve(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	if s.shared != nil {
		ok, err := s.shared.Reserve(ctx, nonce, ttl)
		if err == nil {
			return ok, nil
		}
		logrus.WithError(err).Warn("Shared nonce store unreachable, falling back to process-local replay protection")
	}
	return s.local.Reserve(ctx, nonce, ttl)
}

// ConnectRedis initializes the shared cache client from a redis:// URL
// or a bare host:port.
func ConnectRedis(redisURL string, dialTimeout time.Duration) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	opt.DialTimeout = dialTimeout
	return redis.NewClient(opt), nil
}
