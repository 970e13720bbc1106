package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
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
	return db
}

func newScheduleRepo(t *testing.T) *ScheduleGormRepository {
	t.Helper()
	repo := NewScheduleGormRepository(newTestDB(t))
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return repo
}

func newEntry(postID string, p platform.Platform, at time.Time) scheduledpost.ScheduledPost {
	return scheduledpost.ScheduledPost{
		ID:            uuid.NewString(),
		PostID:        postID,
		ProjectID:     "project-1",
		UserID:        "user-1",
		Platform:      p,
		Content:       "hello " + postID,
		ScheduledTime: at,
		Status:        scheduledpost.StatusPending,
		MaxRetries:    scheduledpost.DefaultMaxRetries,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
}
