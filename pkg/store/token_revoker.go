package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevoker tracks revoked tokens until expiry.
type TokenRevoker interface {
	Revoke(token string, ttl time.Duration) error
	IsRevoked(token string) (bool, error)
}

// UserTokenRevoker is an optional capability that revokes every token issued
// for an identity at or before a cutoff time.
type UserTokenRevoker interface {
	RevokeUser(identityID string, since time.Time) error
	RevokedAfter(identityID string) (time.Time, error)
}

// MemoryTokenRevoker keeps revoked tokens in-memory (single instance only).
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	tokens  map[string]time.Time
	cutoffs map[string]time.Time
}

// NewMemoryTokenRevoker builds an in-memory revoker.
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{
		tokens:  make(map[string]time.Time),
		cutoffs: make(map[string]time.Time),
	}
}

// Revoke marks a token as revoked until its expiry.
func (r *MemoryTokenRevoker) Revoke(token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	r.tokens[token] = time.Now().Add(ttl)
	r.mu.Unlock()
	return nil
}

// IsRevoked checks if the token is revoked.
func (r *MemoryTokenRevoker) IsRevoked(token string) (bool, error) {
	r.mu.Lock()
	expiry, ok := r.tokens[token]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(r.tokens, token)
		r.mu.Unlock()
		return false, nil
	}
	r.mu.Unlock()
	return true, nil
}

// RevokeUser records a revocation cutoff for an identity. Cutoffs only move
// forward.
func (r *MemoryTokenRevoker) RevokeUser(identityID string, since time.Time) error {
	since = since.UTC()
	r.mu.Lock()
	if existing, ok := r.cutoffs[identityID]; !ok || since.After(existing) {
		r.cutoffs[identityID] = since
	}
	r.mu.Unlock()
	return nil
}

// RevokedAfter returns the cutoff for an identity, zero when none is set.
func (r *MemoryTokenRevoker) RevokedAfter(identityID string) (time.Time, error) {
	r.mu.Lock()
	cutoff := r.cutoffs[identityID]
	r.mu.Unlock()
	return cutoff, nil
}

// RedisTokenRevoker stores revoked tokens in Redis with TTL.
type RedisTokenRevoker struct {
	client *redis.Client
}

// NewRedisTokenRevoker builds a Redis-backed revoker.
func NewRedisTokenRevoker(addr, password string) *RedisTokenRevoker {
	return &RedisTokenRevoker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// NewRedisTokenRevokerFromClient wraps an existing client, used by tests.
func NewRedisTokenRevokerFromClient(client *redis.Client) *RedisTokenRevoker {
	return &RedisTokenRevoker{client: client}
}

// Revoke marks a token as revoked until expiry.
func (r *RedisTokenRevoker) Revoke(token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, revocationKey(token), "1", ttl).Err()
}

// IsRevoked checks if the token is revoked.
func (r *RedisTokenRevoker) IsRevoked(token string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := r.client.Exists(ctx, revocationKey(token)).Result()
	if err != nil {
		return false, err
	}
	return res > 0, nil
}

// userCutoffTTL bounds how long a per-identity cutoff is kept. It must
// exceed the longest session TTL in use.
const userCutoffTTL = 31 * 24 * time.Hour

// RevokeUser records a revocation cutoff for an identity. Cutoffs only move
// forward.
func (r *RedisTokenRevoker) RevokeUser(identityID string, since time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	key := userCutoffKey(identityID)
	existing, err := r.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if err == nil {
		if prev, parseErr := strconv.ParseInt(existing, 10, 64); parseErr == nil && prev >= since.UTC().UnixNano() {
			return nil
		}
	}
	return r.client.Set(ctx, key, strconv.FormatInt(since.UTC().UnixNano(), 10), userCutoffTTL).Err()
}

// RevokedAfter returns the cutoff for an identity, zero when none is set.
func (r *RedisTokenRevoker) RevokedAfter(identityID string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	raw, err := r.client.Get(ctx, userCutoffKey(identityID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}

func revocationKey(token string) string {
	return "tgtz:revoked:" + token
}

func userCutoffKey(identityID string) string {
	return "tgtz:revoked_user:" + identityID
}
