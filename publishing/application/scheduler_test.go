package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/AzielCF/az-publisher/publishing/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLiveLoop(t *testing.T, store scheduledpost.IScheduleStore, pub *fakePublisher, cfg SchedulerConfig, opts ...SchedulerOption) *SchedulerLoop {
	t.Helper()
	limiter := ratelimit.New(map[platform.Platform]ratelimit.Limit{
		platform.X: {RequestsPerMinute: 6000, Burst: 100},
	})
	coord := NewPublishCoordinator(store, NewPublisherRegistry(pub), limiter, fakeTokens{}, WithSleep(noSleep))
	return NewSchedulerLoop(cfg, NewDuePostScanner(store, cfg.BatchSize), coord, opts...)
}

func TestSchedulerStartStopAreIdempotent(t *testing.T) {
	store := newStore(t)
	pub := newFakePublisher(platform.X, nil)
	schedule(t, store, "P1", platform.X, time.Now().Add(-time.Minute))

	loop := newLiveLoop(t, store, pub, SchedulerConfig{Enabled: true, Interval: time.Hour, Concurrency: 2})
	ctx := context.Background()

	loop.Start(ctx)
	loop.Start(ctx)
	assert.True(t, loop.Running())

	require.Eventually(t, func() bool { return pub.Total() == 1 }, 5*time.Second, 10*time.Millisecond,
		"first tick runs immediately on start")

	loop.Stop()
	loop.Stop()
	assert.False(t, loop.Running())
	assert.Equal(t, 1, pub.Total())
}

func TestSchedulerDisabledNeverStarts(t *testing.T) {
	store := newStore(t)
	pub := newFakePublisher(platform.X, nil)
	schedule(t, store, "P1", platform.X, time.Now().Add(-time.Minute))

	loop := newLiveLoop(t, store, pub, SchedulerConfig{Enabled: false, Interval: 10 * time.Millisecond})
	loop.Start(context.Background())
	defer loop.Stop()

	assert.False(t, loop.Running())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, pub.Total())
}

func TestSchedulerWakeTriggersExtraTick(t *testing.T) {
	store := newStore(t)
	pub := newFakePublisher(platform.X, nil)
	loop := newLiveLoop(t, store, pub, SchedulerConfig{Enabled: true, Interval: time.Hour})

	loop.Start(context.Background())
	defer loop.Stop()

	schedule(t, store, "P1", platform.X, time.Now().Add(-time.Second))
	require.Eventually(t, func() bool {
		loop.Wake()
		return pub.Total() == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestTickIsolatesPanickingEntry(t *testing.T) {
	store := newStore(t)
	boom := schedule(t, store, "boom", platform.X, time.Now().Add(-2*time.Minute))
	ok := schedule(t, store, "ok", platform.X, time.Now().Add(-time.Minute))

	pub := newFakePublisher(platform.X, func(_ int, req platform.PublishRequest) (platform.PublishResult, error) {
		if req.IdempotencyKey == boom.ID {
			panic("adapter bug")
		}
		return platform.PublishResult{ExternalID: "ext-" + req.IdempotencyKey}, nil
	})
	loop := newLiveLoop(t, store, pub, SchedulerConfig{Concurrency: 2})

	report, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Due)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Errors)

	got, err := store.Get(context.Background(), ok.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduledpost.StatusPublished, got.Status)
}

func TestConcurrentTicksPublishEachEntryOnce(t *testing.T) {
	store := newStore(t)
	var ids []string
	for i := 0; i < 20; i++ {
		e := schedule(t, store, fmt.Sprintf("P%d", i), platform.X, time.Now().Add(-time.Minute))
		ids = append(ids, e.ID)
	}

	pub := newFakePublisher(platform.X, nil)
	cfg := SchedulerConfig{BatchSize: 50, Concurrency: 4}
	a := newLiveLoop(t, store, pub, cfg)
	b := newLiveLoop(t, store, pub, cfg)

	var wg sync.WaitGroup
	for _, loop := range []*SchedulerLoop{a, b} {
		wg.Add(1)
		go func(l *SchedulerLoop) {
			defer wg.Done()
			_, err := l.Tick(context.Background())
			assert.NoError(t, err)
		}(loop)
	}
	wg.Wait()

	assert.Equal(t, 20, pub.Total())
	for _, id := range ids {
		assert.Equal(t, 1, pub.CallsFor(id), "entry %s", id)
	}
}

func TestTickReleasesStaleEntries(t *testing.T) {
	store := newStore(t)
	pub := newFakePublisher(platform.X, nil)
	entry := schedule(t, store, "P1", platform.X, time.Now().Add(-2*time.Hour))
	_, claimed, err := store.Claim(context.Background(), entry.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)

	loop := newLiveLoop(t, store, pub, SchedulerConfig{StaleAfter: 15 * time.Minute})
	report, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Released)
	assert.Equal(t, 1, report.Published)

	got, err := store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduledpost.StatusPublished, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}
