package keylock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process using the same Redis.
//
// A lock expires after TTL even if never released, so TTL must exceed the
// longest critical section.
type Redis struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
	Retry  time.Duration
}

var _ Locker = (*Redis)(nil)

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		Client: client,
		Prefix: "resultledger:lock:",
		TTL:    30 * time.Second,
		Retry:  25 * time.Millisecond,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	name := r.Prefix + key
	wait := r.Retry
	if wait <= 0 {
		wait = 25 * time.Millisecond
	}

	for {
		ok, err := r.Client.SetNX(ctx, name, token, r.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("keylock: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait < time.Second {
			wait *= 2
		}
	}

	return func() {
		// Release must run even if the caller's context is already done.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, r.Client, []string{name}, token).Err()
	}, nil
}
