package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	KeyPrefix      string
	AcquireTimeout time.Duration
	RetryInterval  time.Duration
}

type redisLocker struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedisLocker builds a Locker backed by Redis SET NX PX leases.
func NewRedisLocker(client *redis.Client, cfg RedisConfig) Locker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "bridge:lock"
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 250 * time.Millisecond
	}
	return &redisLocker{client: client, cfg: cfg}
}

func (l *redisLocker) Acquire(ctx context.Context, key, sortKey string, lease time.Duration) (Guard, error) {
	redisKey := fmt.Sprintf("%s:%s:%s", l.cfg.KeyPrefix, key, sortKey)
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generating lock token: %w", err)
	}

	deadline := time.Now().Add(l.cfg.AcquireTimeout)
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", redisKey, err)
		}
		if ok {
			slog.DebugContext(ctx, "lock acquired", "key", redisKey, "lease", lease)
			return &redisGuard{client: l.client, key: redisKey, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: %w", redisKey, ErrContended)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

type redisGuard struct {
	client *redis.Client
	key    string
	token  string
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lease taken over by another holder is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (g *redisGuard) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, g.client, []string{g.key}, g.token).Err(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", g.key, err)
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
