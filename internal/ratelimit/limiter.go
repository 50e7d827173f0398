// Distributed token-bucket rate limiter shared by every Paddock process.
// The bucket lives in Redis and the whole acquire step is one Lua script,
// so two processes can never both observe "enough tokens" and double-spend.

package ratelimit

import (
	"Paddock/internal/metrics"
	"Paddock/pkg/db"
	"Paddock/pkg/log"
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// acquireScript refills the bucket based on elapsed time, then either
// deducts the cost or computes how long the caller has to wait until
// enough tokens would accrue. Executed atomically by Redis.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local elapsed = now - last
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
local wait = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait = math.ceil((cost - tokens) / rate)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(now))
redis.call('PEXPIRE', key, ttl)
return {allowed, wait}
`)

// Config holds the token-bucket parameters of one limiter key.
type Config struct {
	// Capacity is the burst size C.
	Capacity float64
	// RefillPerMs is the refill rate R in tokens per millisecond.
	RefillPerMs float64
	// Cost is the token cost K of one guarded call.
	Cost float64
	// TTL reclaims idle bucket keys automatically.
	TTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Cost == 0 {
		c.Cost = 1
	}
	if c.TTL == 0 {
		c.TTL = time.Minute
	}
	return c
}

// Limiter guards every outbound call to one third-party API.
type Limiter struct {
	db     *db.RedisDB
	key    string
	name   string
	cfg    Config
	logger log.Logger
}

// NewLimiter returns a limiter for the given key. All Paddock processes
// using the same key share one bucket.
func NewLimiter(dbwrp *db.RedisDB, name string, cfg Config, logger log.Logger) *Limiter {
	return &Limiter{
		db:     dbwrp,
		key:    "ratelimit:" + name,
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Acquire runs the atomic bucket script once. When denied, wait is the
// finite delay until enough tokens would accrue.
func (l *Limiter) Acquire(ctx context.Context) (allowed bool, wait time.Duration, err error) {
	now := time.Now().UnixMilli()
	res, scerr := acquireScript.Run(ctx, l.db.Client(), []string{l.key},
		l.cfg.Capacity, l.cfg.RefillPerMs, l.cfg.Cost, now, l.cfg.TTL.Milliseconds()).Int64Slice()
	if scerr != nil {
		l.logger.WithCtx(ctx).Error().Err(scerr).Msg("Error occured during execution of the bucket script in ratelimit.Acquire")
		return false, 0, scerr
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("bucket script returned %d values, expected 2", len(res))
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}

// Do executes fn as soon as the bucket allows it. Denial is not an error,
// the caller sleeps the returned wait time and retries the acquisition.
// Retries are unbounded: a permanently exhausted quota keeps retrying at
// measured intervals instead of failing fast.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for {
		allowed, wait, aqerr := l.Acquire(ctx)
		if aqerr != nil {
			return aqerr
		}
		if allowed {
			return fn(ctx)
		}

		metrics.RateLimitWaits.WithLabelValues(l.name).Inc()
		l.logger.WithCtx(ctx).Debug().Msg(fmt.Sprintf("Rate limit hit on %s, retrying in %s", l.name, wait))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
