package distlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Both scripts act only when the key still holds the caller's token.
var (
	unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("DEL", KEYS[1])`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])`)
)

// RedisLock is a SET NX lock with a TTL. Each instance has its own owner
// token, so a holder whose lock expired cannot release the next holder's.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates an unacquired lock on "lock:"+key.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    "lock:" + key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Key is the Redis key holding the lock.
func (l *RedisLock) Key() string { return l.key }

// Acquire sets the key if it is free.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("distlock: acquiring %s: %w", l.key, err)
	}
	return ok, nil
}

// Release deletes the key if this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	return l.owned(unlockScript.Run(ctx, l.client, []string{l.key}, l.token), "releasing")
}

// Refresh resets the TTL to its full length. Bulk runs call it while they
// work through long contact lists.
func (l *RedisLock) Refresh(ctx context.Context) error {
	return l.owned(refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()), "refreshing")
}

func (l *RedisLock) owned(cmd *redis.Cmd, op string) error {
	n, err := cmd.Int64()
	if err != nil {
		return fmt.Errorf("distlock: %s %s: %w", op, l.key, err)
	}
	if n == 0 {
		return ErrNotOwned
	}
	return nil
}
