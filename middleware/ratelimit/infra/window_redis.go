package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"guard-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript faz prune-count-insert numa única ida ao Redis.
// KEYS[1] = chave do sorted set
// ARGV = now(ms), window(ms), limit, member
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	redis.call('PEXPIRE', key, window)
	return {0, count}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1}
`)

// RedisWindowStore implementa domain.WindowStore sobre um sorted set por chave.
type RedisWindowStore struct {
	rdb     redis.Scripter
	timeout time.Duration
}

type RedisWindowOption func(*RedisWindowStore)

// WithWindowTimeout limita o tempo de cada ida ao Redis (0 = sem limite extra).
func WithWindowTimeout(d time.Duration) RedisWindowOption {
	return func(s *RedisWindowStore) { s.timeout = d }
}

func NewRedisWindowStore(rdb redis.Scripter, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:     rdb,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) Hit(ctx context.Context, key domain.Key, rule domain.Rule, now time.Time) (domain.WindowResult, error) {
	if !rule.Enabled() {
		return domain.WindowResult{Allowed: true}, nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	nowMs := now.UnixMilli()
	// member precisa ser único: duas requisições no mesmo milissegundo contam duas vezes.
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, s.rdb, []string{key.String()},
		nowMs, rule.Window.Milliseconds(), rule.Limit, member).Int64Slice()
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("sliding window %s: %w", key, err)
	}
	if len(res) != 2 {
		return domain.WindowResult{}, fmt.Errorf("sliding window %s: unexpected reply of %d values", key, len(res))
	}
	return domain.WindowResult{Allowed: res[0] == 1, Count: int(res[1])}, nil
}
