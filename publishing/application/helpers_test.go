package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/AzielCF/az-publisher/publishing/ratelimit"
	"github.com/AzielCF/az-publisher/publishing/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func noSleep(context.Context, time.Duration) error { return nil }

func newStore(t *testing.T) *repository.ScheduleGormRepository {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := repository.NewScheduleGormRepository(db)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func schedule(t *testing.T, store scheduledpost.IScheduleStore, postID string, p platform.Platform, at time.Time, mutate ...func(*scheduledpost.ScheduledPost)) scheduledpost.ScheduledPost {
	t.Helper()
	entry := scheduledpost.ScheduledPost{
		ID:            uuid.NewString(),
		PostID:        postID,
		ProjectID:     "project-1",
		UserID:        "user-1",
		Platform:      p,
		Content:       "content of " + postID,
		ScheduledTime: at,
		Status:        scheduledpost.StatusPending,
		MaxRetries:    scheduledpost.DefaultMaxRetries,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
	for _, m := range mutate {
		m(&entry)
	}
	saved, _, err := store.UpsertActive(context.Background(), entry)
	if err != nil {
		t.Fatalf("schedule %s: %v", postID, err)
	}
	return saved
}

type fakePublisher struct {
	platform platform.Platform
	fn       func(call int, req platform.PublishRequest) (platform.PublishResult, error)

	mu    sync.Mutex
	total int
	calls map[string]int
}

func newFakePublisher(p platform.Platform, fn func(call int, req platform.PublishRequest) (platform.PublishResult, error)) *fakePublisher {
	return &fakePublisher{platform: p, fn: fn, calls: map[string]int{}}
}

func (f *fakePublisher) Platform() platform.Platform { return f.platform }

func (f *fakePublisher) Publish(_ context.Context, req platform.PublishRequest) (platform.PublishResult, error) {
	f.mu.Lock()
	f.total++
	n := f.total
	f.calls[req.IdempotencyKey]++
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(n, req)
	}
	return platform.PublishResult{ExternalID: "ext-" + req.IdempotencyKey, URL: "https://example.test/" + req.IdempotencyKey}, nil
}

func (f *fakePublisher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func (f *fakePublisher) CallsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeTokens struct {
	err error
}

func (f fakeTokens) GetToken(_ context.Context, userID string, p platform.Platform) (platform.AccessToken, error) {
	if f.err != nil {
		return platform.AccessToken{}, f.err
	}
	return platform.AccessToken{Value: "token-" + userID + "-" + string(p)}, nil
}

type mockAdvancer struct {
	mock.Mock
}

func (m *mockAdvancer) OnAllPostsPublished(ctx context.Context, projectID string) error {
	args := m.Called(ctx, projectID)
	return args.Error(0)
}

type mockPostStore struct {
	mock.Mock
}

func (m *mockPostStore) MarkPublished(ctx context.Context, postID string) error {
	args := m.Called(ctx, postID)
	return args.Error(0)
}

func (m *mockPostStore) MarkFailed(ctx context.Context, postID string, reason string) error {
	args := m.Called(ctx, postID, reason)
	return args.Error(0)
}

func newLimiter(now func() time.Time, overrides map[platform.Platform]ratelimit.Limit) *ratelimit.RateLimiter {
	return ratelimit.New(overrides, ratelimit.WithClock(now))
}
