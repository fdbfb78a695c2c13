package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still carries the caller's
// owner token, so a late release cannot drop a newer hold.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGate shares the cooldown across instances with SET NX PX.
type RedisGate struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisGate {
	return &RedisGate{client: client}
}

func (g *RedisGate) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire alert cooldown: %w", err)
	}
	return ok, nil
}

func (g *RedisGate) Release(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, g.client, []string{key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release alert cooldown: %w", err)
	}
	return nil
}
