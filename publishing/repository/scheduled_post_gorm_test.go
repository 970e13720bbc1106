package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertActiveIsIdempotentPerPostAndPlatform(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()

	first, created, err := repo.UpsertActive(ctx, newEntry("P1", platform.LinkedIn, baseTime.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, created)

	again := newEntry("P1", platform.LinkedIn, baseTime.Add(2*time.Hour))
	again.Content = "updated text"
	second, created, err := repo.UpsertActive(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "updated text", second.Content)
	assert.True(t, second.ScheduledTime.Equal(baseTime.Add(2*time.Hour)))

	all, err := repo.ListByPost(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, created, err = repo.UpsertActive(ctx, newEntry("P1", platform.X, baseTime))
	require.NoError(t, err)
	assert.True(t, created, "a different platform gets its own entry")
}

func TestUpsertActiveRejectsEntryInFlight(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()

	entry, _, err := repo.UpsertActive(ctx, newEntry("P1", platform.X, baseTime))
	require.NoError(t, err)
	_, ok, err := repo.Claim(ctx, entry.ID, baseTime)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = repo.UpsertActive(ctx, newEntry("P1", platform.X, baseTime.Add(time.Hour)))
	assert.ErrorIs(t, err, scheduledpost.ErrEntryInFlight)
}

func TestUpsertActiveResetsRetryState(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()

	entry, _, err := repo.UpsertActive(ctx, newEntry("P1", platform.X, baseTime))
	require.NoError(t, err)
	_, _, err = repo.Claim(ctx, entry.ID, baseTime)
	require.NoError(t, err)
	_, err = repo.Complete(ctx, entry.ID, scheduledpost.Outcome{
		Status:       scheduledpost.StatusRetry,
		RetryCount:   2,
		ErrorMessage: "attempt 2: timeout",
	}, baseTime)
	require.NoError(t, err)

	updated, created, err := repo.UpsertActive(ctx, newEntry("P1", platform.X, baseTime.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, scheduledpost.StatusPending, updated.Status)
	assert.Zero(t, updated.RetryCount)
	assert.Empty(t, updated.ErrorMessage)
}

func TestTerminalEntryFreesActiveSlot(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()

	entry, _, err := repo.UpsertActive(ctx, newEntry("P1", platform.LinkedIn, baseTime))
	require.NoError(t, err)
	_, err = repo.Cancel(ctx, entry.ID, baseTime)
	require.NoError(t, err)

	_, err = repo.FindActive(ctx, "P1", platform.LinkedIn)
	assert.ErrorIs(t, err, scheduledpost.ErrNotFound)

	fresh, created, err := repo.UpsertActive(ctx, newEntry("P1", platform.LinkedIn, baseTime.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, entry.ID, fresh.ID)

	all, err := repo.ListByPost(ctx, "P1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFindDueOrdersByScheduledTimeAndHonorsLimit(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()
	now := baseTime

	late, _, _ := repo.UpsertActive(ctx, newEntry("late", platform.X, now.Add(-time.Minute)))
	early, _, _ := repo.UpsertActive(ctx, newEntry("early", platform.X, now.Add(-time.Hour)))
	middle, _, _ := repo.UpsertActive(ctx, newEntry("middle", platform.LinkedIn, now.Add(-10*time.Minute)))
	_, _, _ = repo.UpsertActive(ctx, newEntry("future", platform.X, now.Add(time.Minute)))
	cancelled, _, _ := repo.UpsertActive(ctx, newEntry("cancelled", platform.X, now.Add(-2*time.Hour)))
	_, err := repo.Cancel(ctx, cancelled.ID, now)
	require.NoError(t, err)

	due, err := repo.FindDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, []string{early.ID, middle.ID, late.ID}, []string{due[0].ID, due[1].ID, due[2].ID})

	due, err = repo.FindDue(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestFindDueIncludesRetryAndExcludesProcessing(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()

	retry, _, _ := repo.UpsertActive(ctx, newEntry("retry", platform.X, baseTime.Add(-time.Hour)))
	_, _, _ = repo.Claim(ctx, retry.ID, baseTime)
	_, err := repo.Complete(ctx, retry.ID, scheduledpost.Outcome{Status: scheduledpost.StatusRetry, RetryCount: 1}, baseTime)
	require.NoError(t, err)

	inFlight, _, _ := repo.UpsertActive(ctx, newEntry("inflight", platform.X, baseTime.Add(-time.Hour)))
	_, _, _ = repo.Claim(ctx, inFlight.ID, baseTime)

	due, err := repo.FindDue(ctx, baseTime, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, retry.ID, due[0].ID)
	assert.Equal(t, scheduledpost.StatusRetry, due[0].Status)
}

func TestClaimIsExclusiveUnderConcurrency(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()
	entry, _, err := repo.UpsertActive(ctx, newEntry("P1", platform.X, baseTime))
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Claim(ctx, entry.ID, baseTime)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduledpost.StatusProcessing, got.Status)
	require.NotNil(t, got.LastAttemptAt)
}

func TestCompleteRequiresProcessing(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()
	entry, _, _ := repo.UpsertActive(ctx, newEntry("P1", platform.X, baseTime))

	_, err := repo.Complete(ctx, entry.ID, scheduledpost.Outcome{Status: scheduledpost.StatusPublished}, baseTime)
	assert.ErrorIs(t, err, scheduledpost.ErrInvalidTransition)

	_, err = repo.Complete(ctx, entry.ID, scheduledpost.Outcome{Status: scheduledpost.StatusCancelled}, baseTime)
	assert.ErrorIs(t, err, scheduledpost.ErrInvalidTransition)

	_, ok, err := repo.Claim(ctx, entry.ID, baseTime)
	require.NoError(t, err)
	require.True(t, ok)

	publishedAt := baseTime.Add(time.Second)
	done, err := repo.Complete(ctx, entry.ID, scheduledpost.Outcome{
		Status:         scheduledpost.StatusPublished,
		ExternalPostID: "1790",
		PublicURL:      "https://x.com/i/web/status/1790",
		PublishedAt:    &publishedAt,
	}, publishedAt)
	require.NoError(t, err)
	assert.Equal(t, scheduledpost.StatusPublished, done.Status)
	assert.Equal(t, "1790", done.ExternalPostID)
	require.NotNil(t, done.PublishedAt)
	assert.True(t, done.PublishedAt.Equal(publishedAt))

	_, err = repo.Complete(ctx, entry.ID, scheduledpost.Outcome{Status: scheduledpost.StatusFailed}, baseTime)
	assert.ErrorIs(t, err, scheduledpost.ErrInvalidTransition)
}

func TestCancelAndRescheduleGuards(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()

	_, err := repo.Cancel(ctx, "missing", baseTime)
	assert.ErrorIs(t, err, scheduledpost.ErrNotFound)

	entry, _, _ := repo.UpsertActive(ctx, newEntry("P1", platform.X, baseTime))
	moved, err := repo.Reschedule(ctx, entry.ID, baseTime.Add(3*time.Hour), baseTime)
	require.NoError(t, err)
	assert.True(t, moved.ScheduledTime.Equal(baseTime.Add(3*time.Hour)))

	_, _, _ = repo.Claim(ctx, entry.ID, baseTime)
	_, err = repo.Cancel(ctx, entry.ID, baseTime)
	assert.ErrorIs(t, err, scheduledpost.ErrEntryInFlight)
	_, err = repo.Reschedule(ctx, entry.ID, baseTime, baseTime)
	assert.ErrorIs(t, err, scheduledpost.ErrEntryInFlight)

	_, err = repo.Complete(ctx, entry.ID, scheduledpost.Outcome{Status: scheduledpost.StatusFailed, ErrorMessage: "attempt 1: revoked"}, baseTime)
	require.NoError(t, err)
	_, err = repo.Cancel(ctx, entry.ID, baseTime)
	assert.ErrorIs(t, err, scheduledpost.ErrInvalidTransition)
	_, err = repo.Reschedule(ctx, entry.ID, baseTime, baseTime)
	assert.ErrorIs(t, err, scheduledpost.ErrInvalidTransition)
}

func TestListStaleAndCountActive(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()

	old, _, _ := repo.UpsertActive(ctx, newEntry("old", platform.X, baseTime))
	recent, _, _ := repo.UpsertActive(ctx, newEntry("recent", platform.X, baseTime))
	_, _, _ = repo.Claim(ctx, old.ID, baseTime.Add(-time.Hour))
	_, _, _ = repo.Claim(ctx, recent.ID, baseTime)

	stale, err := repo.ListStale(ctx, baseTime.Add(-15*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)

	n, err := repo.CountActiveForProject(ctx, "project-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.CountActiveForProject(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueStatus(t *testing.T) {
	repo := newScheduleRepo(t)
	ctx := context.Background()

	_, _, _ = repo.UpsertActive(ctx, newEntry("a", platform.X, baseTime.Add(time.Hour)))
	_, _, _ = repo.UpsertActive(ctx, newEntry("b", platform.X, baseTime.Add(30*time.Minute)))
	c, _, _ := repo.UpsertActive(ctx, newEntry("c", platform.LinkedIn, baseTime))
	_, _ = repo.Cancel(ctx, c.ID, baseTime)

	status, err := repo.QueueStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, status.PendingCount)
	assert.EqualValues(t, 1, status.CancelledCount)
	assert.EqualValues(t, 2, status.PerPlatformCounts[platform.X][scheduledpost.StatusPending])
	assert.EqualValues(t, 1, status.PerPlatformCounts[platform.LinkedIn][scheduledpost.StatusCancelled])
	require.NotNil(t, status.NextScheduledTime)
	assert.True(t, status.NextScheduledTime.Equal(baseTime.Add(30*time.Minute)))
}
