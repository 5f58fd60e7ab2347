// Package lock provides a Redis-backed run lock so only one replica runs the
// projection at a time.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/warp/recurring-engine/recurring"
)

// DefaultKey is the Redis key holding the run lock.
const DefaultKey = "recurring:projection:lock"

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisLocker returns a locker holding key for at most ttl. The TTL bounds
// how long a crashed holder blocks other replicas.
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	if key == "" {
		key = DefaultKey
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, log: log}
}

// Connect creates a client for addr and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", l.key).Msg("failed to release run lock")
		}
	}
	return unlock, true, nil
}

var _ recurring.RunLocker = (*RedisLocker)(nil)
