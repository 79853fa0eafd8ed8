package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another instance already holds the lock.
var ErrLockHeld = errors.New("lock held by another instance")

// Lock is a Redis-backed exclusive lock. One process acquires the lock
// per resource and renews it at half TTL until released.
type Lock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration

	stopRenew chan struct{}
}

// NewLock creates a lock on the given key. The value is unique per
// holder so a stale instance cannot release a lock it lost.
func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client:    client,
		key:       key,
		value:     lockValue(),
		ttl:       ttl,
		stopRenew: make(chan struct{}),
	}
}

func lockValue() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Acquire takes the lock or fails with ErrLockHeld. On success a renewal
// goroutine keeps the lock alive until Release is called.
func (l *Lock) Acquire(ctx context.Context) error {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		return ErrLockHeld
	}

	go l.renew()
	return nil
}

// releaseScript deletes the key only when this instance still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Release stops renewal and deletes the lock if still held by this
// instance.
func (l *Lock) Release(ctx context.Context) error {
	close(l.stopRenew)

	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if result == 0 {
		return fmt.Errorf("lock %s was not held by this instance", l.key)
	}
	return nil
}

func (l *Lock) renew() {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			current, err := l.client.Get(ctx, l.key).Result()
			if err == nil && current == l.value {
				l.client.Expire(ctx, l.key, l.ttl)
			}
			cancel()
			if err != nil || current != l.value {
				return
			}
		case <-l.stopRenew:
			return
		}
	}
}
