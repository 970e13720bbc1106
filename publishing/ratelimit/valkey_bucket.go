package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/AzielCF/az-publisher/infrastructure/valkey"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/sirupsen/logrus"
)

// tokenBucketScript refills by elapsed time, then takes one token if available.
// KEYS[1] bucket hash; ARGV: tokens per ms, burst, now ms, ttl ms. Returns 1 when admitted.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = burst
  ts = now
end
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) * rate)
  ts = now
end
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(ts))
redis.call("PEXPIRE", KEYS[1], ttl)
return allowed
`

// ValkeyBucket shares one platform's token state across processes. When Valkey is
// unreachable it admits through a process-local bucket with the same limit.
type ValkeyBucket struct {
	client   *valkey.Client
	key      string
	limit    Limit
	fallback Bucket
}

// ValkeyBuckets returns a BucketFactory backed by the given client.
func ValkeyBuckets(client *valkey.Client) BucketFactory {
	return func(p platform.Platform, limit Limit) Bucket {
		return &ValkeyBucket{
			client:   client,
			key:      client.Key("ratelimit", string(p)),
			limit:    limit,
			fallback: newLocalBucket(limit),
		}
	}
}

func (b *ValkeyBucket) Allow(ctx context.Context, now time.Time) bool {
	perMs := b.limit.RequestsPerMinute / 60000
	ttl := time.Minute
	if perMs > 0 {
		refill := time.Duration(math.Ceil(float64(b.limit.Burst)/perMs)) * time.Millisecond
		if refill*2 > ttl {
			ttl = refill * 2
		}
	}

	inner := b.client.Inner()
	cmd := inner.B().Eval().Script(tokenBucketScript).Numkeys(1).Key(b.key).Arg(
		strconv.FormatFloat(perMs, 'f', -1, 64),
		strconv.Itoa(b.limit.Burst),
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	).Build()

	allowed, err := inner.Do(ctx, cmd).AsInt64()
	if err != nil {
		logrus.WithError(err).Warnf("[RATELIMIT] shared bucket %s unavailable, using local bucket", b.key)
		return b.fallback.Allow(ctx, now)
	}
	return allowed == 1
}
