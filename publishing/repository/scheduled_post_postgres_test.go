//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "publisher"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s user=postgres password=secret dbname=publisher port=%s sslmode=disable TimeZone=UTC", host, port.Port())

	// The port may accept connections before postgres finishes its init restart.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		return err == nil && sqlDB.PingContext(ctx) == nil
	}, 30*time.Second, 500*time.Millisecond)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestPostgresScheduleStore(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	repo := NewScheduleGormRepository(db)
	require.NoError(t, repo.Init(ctx))

	t.Run("one active entry per post and platform", func(t *testing.T) {
		first, created, err := repo.UpsertActive(ctx, newEntry("PG1", platform.LinkedIn, baseTime))
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := repo.UpsertActive(ctx, newEntry("PG1", platform.LinkedIn, baseTime.Add(time.Hour)))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.True(t, second.ScheduledTime.Equal(baseTime.Add(time.Hour)))
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		entry, _, err := repo.UpsertActive(ctx, newEntry("PG2", platform.X, baseTime))
		require.NoError(t, err)

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok, err := repo.Claim(ctx, entry.ID, baseTime); err == nil && ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins)
	})

	t.Run("concurrent upserts race on the active key", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := repo.UpsertActive(ctx, newEntry("PG3", platform.X, baseTime))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				assert.True(t, errors.Is(err, scheduledpost.ErrDuplicateActive), "unexpected error: %v", err)
			}
		}

		entries, err := repo.ListByPost(ctx, "PG3")
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("published entry frees the slot", func(t *testing.T) {
		entry, _, err := repo.UpsertActive(ctx, newEntry("PG4", platform.X, baseTime))
		require.NoError(t, err)
		_, ok, err := repo.Claim(ctx, entry.ID, baseTime)
		require.NoError(t, err)
		require.True(t, ok)
		published := baseTime.Add(time.Minute)
		_, err = repo.Complete(ctx, entry.ID, scheduledpost.Outcome{
			Status:         scheduledpost.StatusPublished,
			ExternalPostID: "1790",
			PublishedAt:    &published,
		}, published)
		require.NoError(t, err)

		next, created, err := repo.UpsertActive(ctx, newEntry("PG4", platform.X, baseTime.Add(24*time.Hour)))
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, entry.ID, next.ID)
	})
}
