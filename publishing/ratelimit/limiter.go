package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// Limit is the admission policy for one platform.
type Limit struct {
	RequestsPerMinute float64
	Burst             int
	BaseDelay         time.Duration
	BackoffMultiplier float64
}

var fallbackLimit = Limit{RequestsPerMinute: 60, Burst: 5, BaseDelay: time.Second, BackoffMultiplier: 2}

// DefaultLimits follows the published API quotas of each platform.
func DefaultLimits() map[platform.Platform]Limit {
	return map[platform.Platform]Limit{
		platform.LinkedIn: {RequestsPerMinute: 30, Burst: 5, BaseDelay: time.Second, BackoffMultiplier: 2},
		platform.X:        {RequestsPerMinute: 300, Burst: 10, BaseDelay: time.Second, BackoffMultiplier: 2},
	}
}

// merge fills zero fields of an override from the base limit.
func merge(base, override Limit) Limit {
	if override.RequestsPerMinute > 0 {
		base.RequestsPerMinute = override.RequestsPerMinute
	}
	if override.Burst > 0 {
		base.Burst = override.Burst
	}
	if override.BaseDelay > 0 {
		base.BaseDelay = override.BaseDelay
	}
	if override.BackoffMultiplier >= 1 {
		base.BackoffMultiplier = override.BackoffMultiplier
	}
	return base
}

// Bucket holds the token state of a single platform.
type Bucket interface {
	Allow(ctx context.Context, now time.Time) bool
}

// BucketFactory builds the bucket for a platform the first time it is used.
type BucketFactory func(p platform.Platform, limit Limit) Bucket

type localBucket struct {
	limiter *rate.Limiter
}

// newLocalBucket refills continuously, keeping fractional tokens, so the
// sustained rate matches a whole-token-per-minute refill.
func newLocalBucket(limit Limit) *localBucket {
	return &localBucket{limiter: rate.NewLimiter(rate.Limit(limit.RequestsPerMinute/60), limit.Burst)}
}

func (b *localBucket) Allow(_ context.Context, now time.Time) bool {
	return b.limiter.AllowN(now, 1)
}

// LocalBuckets keeps token state in process memory.
func LocalBuckets(_ platform.Platform, limit Limit) Bucket {
	return newLocalBucket(limit)
}

type Option func(*RateLimiter)

func WithBucketFactory(f BucketFactory) Option {
	return func(l *RateLimiter) {
		if f != nil {
			l.factory = f
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *RateLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// RateLimiter admits publish attempts per platform with a token bucket and computes
// the backoff delay to wait when a bucket is empty.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[platform.Platform]Limit
	buckets map[platform.Platform]Bucket
	factory BucketFactory
	now     func() time.Time
}

// New builds a limiter from the default limits, overridden field by field.
func New(overrides map[platform.Platform]Limit, opts ...Option) *RateLimiter {
	limits := DefaultLimits()
	for p, o := range overrides {
		base, ok := limits[p]
		if !ok {
			base = fallbackLimit
		}
		limits[p] = merge(base, o)
	}

	l := &RateLimiter{
		limits:  limits,
		buckets: make(map[platform.Platform]Bucket),
		factory: LocalBuckets,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the effective policy for a platform.
func (l *RateLimiter) Limit(p platform.Platform) Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitLocked(p)
}

func (l *RateLimiter) limitLocked(p platform.Platform) Limit {
	if limit, ok := l.limits[p]; ok {
		return limit
	}
	return fallbackLimit
}

func (l *RateLimiter) bucket(p platform.Platform) Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[p]
	if !ok {
		b = l.factory(p, l.limitLocked(p))
		l.buckets[p] = b
	}
	return b
}

// TryAcquire consumes one token for the platform if one is available.
func (l *RateLimiter) TryAcquire(ctx context.Context, p platform.Platform) bool {
	return l.bucket(p).Allow(ctx, l.now())
}

// WaitForSlot returns min(baseDelay * multiplier^attempt, baseDelay*10).
func (l *RateLimiter) WaitForSlot(p platform.Platform, attempt int) time.Duration {
	return backoffDelay(l.Limit(p), attempt)
}

func backoffDelay(limit Limit, attempt int) time.Duration {
	if limit.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	multiplier := limit.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     limit.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          multiplier,
		MaxInterval:         limit.BaseDelay * 10,
	}
	b.Reset()

	delay := b.NextBackOff()
	for i := 0; i < attempt && delay < b.MaxInterval; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// IsRateLimitError recognizes a rate-limit rejection from a status code or error text.
func IsRateLimitError(statusCode int, err error) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if err == nil {
		return false
	}
	var pe *platform.PublishError
	if errors.As(err, &pe) && pe.Kind == platform.KindRateLimited {
		return true
	}
	return IsRateLimitText(err.Error())
}

func IsRateLimitText(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "ratelimit") ||
		strings.Contains(s, "rate-limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "throttle")
}
