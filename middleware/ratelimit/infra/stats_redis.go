package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"guard-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava as decisões em hashes:
//
//	<prefix>:total             allowed|denied|degraded (cumulativo, sem TTL)
//	<prefix>:tier              <tier> => negações (cumulativo)
//	<prefix>:route             "<METHOD> <path>:allowed|denied"
//	<prefix>:minute:<yyyymmddHHMM> allowed|denied|denied:<tier> (TTL)
//	<prefix>:identity:<id>     allowed|denied (TTL, só com trackIdentities)
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix          string
	ttl             time.Duration
	bucket          string // "minute" (padrão) ou "none"
	trackIdentities bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackIdentities(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackIdentities = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type hashIncr struct {
	key    string
	field  string
	expire bool
}

// increments lista os HINCRBY de um evento; separado de Record para ser testável sem Redis.
func (s *RedisStatsStore) increments(ev domain.StatsEvent) []hashIncr {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}

	total := s.prefix + ":total"
	out := []hashIncr{{key: total, field: outcome}}
	if ev.Degraded {
		out = append(out, hashIncr{key: total, field: "degraded"})
	}
	if !ev.Allowed && ev.Tier != "" {
		out = append(out, hashIncr{key: s.prefix + ":tier", field: ev.Tier})
	}
	if route := strings.TrimSpace(strings.ToUpper(ev.Method) + " " + ev.Path); route != "" {
		out = append(out, hashIncr{key: s.prefix + ":route", field: route + ":" + outcome})
	}
	if s.bucket == "minute" {
		minute := s.prefix + ":minute:" + at.UTC().Format("200601021504")
		out = append(out, hashIncr{key: minute, field: outcome, expire: true})
		if !ev.Allowed && ev.Tier != "" {
			out = append(out, hashIncr{key: minute, field: "denied:" + ev.Tier, expire: true})
		}
	}
	if id := strings.TrimSpace(ev.Identity); s.trackIdentities && id != "" {
		out = append(out, hashIncr{key: s.prefix + ":identity:" + id, field: outcome, expire: true})
	}
	return out
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	pipe := s.rdb.Pipeline()
	expired := map[string]bool{}
	for _, inc := range s.increments(ev) {
		pipe.HIncrBy(ctx, inc.key, inc.field, 1)
		if inc.expire && s.ttl > 0 && !expired[inc.key] {
			expired[inc.key] = true
			pipe.Expire(ctx, inc.key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Summary lê os hashes cumulativos (total e tier).
func (s *RedisStatsStore) Summary(ctx context.Context) (domain.StatsSummary, error) {
	pipe := s.rdb.Pipeline()
	totalCmd := pipe.HGetAll(ctx, s.prefix+":total")
	tierCmd := pipe.HGetAll(ctx, s.prefix+":tier")
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.StatsSummary{}, fmt.Errorf("read rate limit stats: %w", err)
	}

	total := totalCmd.Val()
	sum := domain.StatsSummary{
		Allowed:      parseCount(total["allowed"]),
		Denied:       parseCount(total["denied"]),
		Degraded:     parseCount(total["degraded"]),
		DeniedByTier: make(map[string]int64, len(tierCmd.Val())),
	}
	for tier, v := range tierCmd.Val() {
		sum.DeniedByTier[tier] = parseCount(v)
	}
	return sum, nil
}

func parseCount(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
