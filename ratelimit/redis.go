package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter keeps the counters in Redis so every instance of the service shares them.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	policy Policy
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, policy Policy) *RedisLimiter {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{client: client, prefix: prefix, policy: policy}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.client == nil {
		return Decision{}, errors.New("ratelimit: redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}

	windowMS := l.policy.Window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1000
	}
	raw, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + ":" + key}, windowMS).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(raw) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", raw)
	}
	return decide(l.policy, raw[0], time.Duration(raw[1])*time.Millisecond), nil
}
