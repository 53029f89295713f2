package keylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/kataras/golog"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// ErrLockTimeout is returned when a key stays held past the wait budget.
var ErrLockTimeout = errors.New("keylock: timed out waiting for lock")

// Redis locks keys across processes with SET NX PX and a token-checked release.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
	log    *golog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *golog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if logger == nil {
		logger = golog.Default
	}
	return &Redis{
		client: client,
		prefix: "lock:",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		wait:   ttl,
		log:    logger,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	name := r.prefix + key
	deadline := time.Now().Add(r.wait)

	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	return func() {
		// Released with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{name}, token).Err(); err != nil {
			r.log.Warnf("keylock: release %s: %v (held until ttl %s expires)", name, err, r.ttl)
		}
	}, nil
}
