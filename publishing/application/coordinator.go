package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/content"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/AzielCF/az-publisher/publishing/ratelimit"
	"github.com/sirupsen/logrus"
)

// Outcome is what a single Process call did with an entry.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
	// OutcomeRequeued means no rate-limit slot was free; retryCount is unchanged.
	OutcomeRequeued Outcome = "requeued"
	// OutcomeSkipped means the entry was not claimable or another worker claimed it first.
	OutcomeSkipped Outcome = "skipped"
)

type ProcessResult struct {
	Entry   scheduledpost.ScheduledPost
	Outcome Outcome
	// Err is the publish error behind a retry or failure.
	Err error
}

const persistTimeout = 10 * time.Second

type CoordinatorOption func(*PublishCoordinator)

func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *PublishCoordinator) { c.now = now }
}

// WithSleep replaces the wait used between two rate-limit admissions.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) CoordinatorOption {
	return func(c *PublishCoordinator) { c.sleep = sleep }
}

func WithPostStore(posts content.PostStore) CoordinatorOption {
	return func(c *PublishCoordinator) { c.posts = posts }
}

func WithStageAdvancer(advancer content.ProjectStageAdvancer) CoordinatorOption {
	return func(c *PublishCoordinator) { c.advancer = advancer }
}

func WithMetrics(m *PublishMetrics) CoordinatorOption {
	return func(c *PublishCoordinator) { c.metrics = m }
}

// PublishCoordinator drives one scheduled entry through claim, rate limiting,
// publish and classification of the result.
type PublishCoordinator struct {
	store    scheduledpost.IScheduleStore
	registry *PublisherRegistry
	limiter  *ratelimit.RateLimiter
	tokens   content.AccessTokenProvider
	posts    content.PostStore
	advancer content.ProjectStageAdvancer
	metrics  *PublishMetrics
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPublishCoordinator(
	store scheduledpost.IScheduleStore,
	registry *PublisherRegistry,
	limiter *ratelimit.RateLimiter,
	tokens content.AccessTokenProvider,
	opts ...CoordinatorOption,
) *PublishCoordinator {
	c := &PublishCoordinator{
		store:    store,
		registry: registry,
		limiter:  limiter,
		tokens:   tokens,
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Process attempts to publish one entry. The returned error is reserved for
// persistence failures; publish failures are reported through the result.
func (c *PublishCoordinator) Process(ctx context.Context, entry scheduledpost.ScheduledPost) (ProcessResult, error) {
	if !entry.Status.IsClaimable() {
		return ProcessResult{Entry: entry, Outcome: OutcomeSkipped}, nil
	}

	claimed, ok, err := c.store.Claim(ctx, entry.ID, c.now())
	if err != nil {
		return ProcessResult{Entry: entry}, fmt.Errorf("claim %s: %w", entry.ID, err)
	}
	if !ok {
		logrus.Debugf("[PUBLISHER] entry %s already claimed by another worker", entry.ID)
		return ProcessResult{Entry: entry, Outcome: OutcomeSkipped}, nil
	}
	entry = claimed

	// A previous attempt reached the platform but crashed before recording success.
	if entry.ExternalPostID != "" {
		logrus.Warnf("[PUBLISHER] entry %s already has external id %s, marking published", entry.ID, entry.ExternalPostID)
		return c.succeed(ctx, entry, platform.PublishResult{ExternalID: entry.ExternalPostID, URL: entry.PublicURL})
	}

	if !c.acquireSlot(ctx, entry) {
		return c.requeue(ctx, entry)
	}

	publisher, ok := c.registry.Get(entry.Platform)
	if !ok {
		return c.fail(ctx, entry, platform.NewError(platform.KindPermanentRejection, entry.Platform, "no publisher registered for platform"))
	}

	token, err := c.tokens.GetToken(ctx, entry.UserID, entry.Platform)
	if err != nil {
		return c.fail(ctx, entry, err)
	}

	start := time.Now()
	res, err := publisher.Publish(ctx, platform.PublishRequest{
		Content:        entry.Content,
		Token:          token,
		IdempotencyKey: entry.ID,
	})
	c.metrics.recordDuration(ctx, entry.Platform, time.Since(start))
	if err != nil {
		return c.fail(ctx, entry, err)
	}
	return c.succeed(ctx, entry, res)
}

// acquireSlot takes a token, waiting once for the backoff delay when the bucket is empty.
func (c *PublishCoordinator) acquireSlot(ctx context.Context, entry scheduledpost.ScheduledPost) bool {
	if c.limiter == nil || c.limiter.TryAcquire(ctx, entry.Platform) {
		return true
	}
	delay := c.limiter.WaitForSlot(entry.Platform, entry.RetryCount)
	logrus.Debugf("[PUBLISHER] %s bucket empty, waiting %s for entry %s", entry.Platform, delay, entry.ID)
	if err := c.sleep(ctx, delay); err != nil {
		return false
	}
	return c.limiter.TryAcquire(ctx, entry.Platform)
}

func (c *PublishCoordinator) requeue(ctx context.Context, entry scheduledpost.ScheduledPost) (ProcessResult, error) {
	reason := fmt.Sprintf("no %s rate limit slot available, requeued", entry.Platform)
	updated, err := c.complete(ctx, entry, scheduledpost.Outcome{
		Status:       scheduledpost.StatusRetry,
		RetryCount:   entry.RetryCount,
		ErrorMessage: scheduledpost.AppendError(entry.ErrorMessage, entry.AttemptNumber(), reason),
	})
	if err != nil {
		return ProcessResult{Entry: entry}, err
	}
	c.metrics.recordAttempt(ctx, entry.Platform, OutcomeRequeued)
	logrus.Infof("[PUBLISHER] entry %s requeued: %s", entry.ID, reason)
	return ProcessResult{Entry: updated, Outcome: OutcomeRequeued}, nil
}

func (c *PublishCoordinator) succeed(ctx context.Context, entry scheduledpost.ScheduledPost, res platform.PublishResult) (ProcessResult, error) {
	publishedAt := c.now().UTC()
	if entry.PublishedAt != nil {
		publishedAt = *entry.PublishedAt
	}
	updated, err := c.complete(ctx, entry, scheduledpost.Outcome{
		Status:         scheduledpost.StatusPublished,
		RetryCount:     entry.RetryCount,
		ErrorMessage:   entry.ErrorMessage,
		ExternalPostID: res.ExternalID,
		PublicURL:      res.URL,
		PublishedAt:    &publishedAt,
	})
	if err != nil {
		return ProcessResult{Entry: entry}, err
	}
	c.metrics.recordAttempt(ctx, entry.Platform, OutcomePublished)
	logrus.Infof("[PUBLISHER] post %s published to %s as %s", entry.PostID, entry.Platform, res.ExternalID)

	pctx, cancel := c.persistContext(ctx)
	defer cancel()
	if c.posts != nil {
		if err := c.posts.MarkPublished(pctx, entry.PostID); err != nil {
			logPostStoreError(entry, "published", err)
		}
	}
	c.advanceProject(pctx, updated)

	return ProcessResult{Entry: updated, Outcome: OutcomePublished}, nil
}

func (c *PublishCoordinator) fail(ctx context.Context, entry scheduledpost.ScheduledPost, cause error) (ProcessResult, error) {
	kind := platform.KindOf(cause)
	outcome := scheduledpost.Outcome{
		Status:       scheduledpost.StatusFailed,
		RetryCount:   entry.RetryCount,
		ErrorMessage: scheduledpost.AppendError(entry.ErrorMessage, entry.AttemptNumber(), cause.Error()),
	}
	if kind.Retryable() {
		outcome.RetryCount = entry.RetryCount + 1
		if outcome.RetryCount <= entry.MaxRetries {
			outcome.Status = scheduledpost.StatusRetry
		}
	}

	updated, err := c.complete(ctx, entry, outcome)
	if err != nil {
		return ProcessResult{Entry: entry, Err: cause}, err
	}

	result := ProcessResult{Entry: updated, Outcome: OutcomeRetry, Err: cause}
	if outcome.Status == scheduledpost.StatusFailed {
		result.Outcome = OutcomeFailed
		logrus.WithError(cause).Warnf("[PUBLISHER] post %s failed on %s (%s), giving up after %d retries",
			entry.PostID, entry.Platform, kind, outcome.RetryCount)

		pctx, cancel := c.persistContext(ctx)
		defer cancel()
		if c.posts != nil {
			if err := c.posts.MarkFailed(pctx, entry.PostID, cause.Error()); err != nil {
				logPostStoreError(entry, "failed", err)
			}
		}
	} else {
		logrus.WithError(cause).Infof("[PUBLISHER] post %s on %s will be retried (%d/%d)",
			entry.PostID, entry.Platform, outcome.RetryCount, entry.MaxRetries)
	}
	c.metrics.recordAttempt(ctx, entry.Platform, result.Outcome)
	return result, nil
}

// complete persists the outcome on a context that survives shutdown, so an attempt
// that already hit the platform is always recorded.
func (c *PublishCoordinator) complete(ctx context.Context, entry scheduledpost.ScheduledPost, outcome scheduledpost.Outcome) (scheduledpost.ScheduledPost, error) {
	pctx, cancel := c.persistContext(ctx)
	defer cancel()
	updated, err := c.store.Complete(pctx, entry.ID, outcome, c.now())
	if err != nil {
		return entry, fmt.Errorf("record %s outcome for %s: %w", outcome.Status, entry.ID, err)
	}
	return updated, nil
}

func (c *PublishCoordinator) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (c *PublishCoordinator) advanceProject(ctx context.Context, entry scheduledpost.ScheduledPost) {
	if c.advancer == nil || entry.ProjectID == "" {
		return
	}
	remaining, err := c.store.CountActiveForProject(ctx, entry.ProjectID)
	if err != nil {
		logrus.WithError(err).Errorf("[PUBLISHER] failed to count active entries of project %s", entry.ProjectID)
		return
	}
	if remaining > 0 {
		return
	}
	if err := c.advancer.OnAllPostsPublished(ctx, entry.ProjectID); err != nil {
		if errors.Is(err, content.ErrProjectNotFound) {
			logrus.Warnf("[PUBLISHER] project %s vanished before its stage could advance", entry.ProjectID)
			return
		}
		logrus.WithError(err).Errorf("[PUBLISHER] failed to advance stage of project %s", entry.ProjectID)
	}
}

func logPostStoreError(entry scheduledpost.ScheduledPost, status string, err error) {
	if errors.Is(err, content.ErrPostNotFound) {
		logrus.Warnf("[PUBLISHER] post %s vanished, could not mark it %s (entry %s)", entry.PostID, status, entry.ID)
		return
	}
	logrus.WithError(err).Errorf("[PUBLISHER] failed to mark post %s %s", entry.PostID, status)
}

// ReleaseStale settles Processing entries whose attempt outlived staleAfter, counting
// the abandoned attempt as a transient failure.
func (c *PublishCoordinator) ReleaseStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	cutoff := c.now().Add(-staleAfter)
	stale, err := c.store.ListStale(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale entries: %w", err)
	}

	released := 0
	for _, entry := range stale {
		cause := platform.NewError(platform.KindTransientNetwork, entry.Platform,
			fmt.Sprintf("attempt abandoned, still processing after %s", staleAfter))
		if _, err := c.fail(ctx, entry, cause); err != nil {
			if errors.Is(err, scheduledpost.ErrInvalidTransition) {
				continue
			}
			return released, err
		}
		released++
	}
	if released > 0 {
		logrus.Warnf("[PUBLISHER] released %d stale entries", released)
	}
	return released, nil
}
