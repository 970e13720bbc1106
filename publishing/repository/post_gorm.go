package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/content"
	"gorm.io/gorm"
)

// postModel maps the columns of the content layer's posts table that publishing touches.
type postModel struct {
	ID            string         `gorm:"primaryKey;column:id"`
	ProjectID     sql.NullString `gorm:"column:project_id;index"`
	Status        string         `gorm:"column:status;not null"`
	PublishedAt   *time.Time     `gorm:"column:published_at"`
	FailureReason sql.NullString `gorm:"column:failure_reason;type:text"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (postModel) TableName() string { return "posts" }

const (
	postStatusPublished = "published"
	postStatusFailed    = "failed"
)

type PostGormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostGormRepository(db *gorm.DB) *PostGormRepository {
	return &PostGormRepository{db: db, now: time.Now}
}

var _ content.PostStore = (*PostGormRepository)(nil)

// Init creates the posts table when this service runs against its own database.
func (r *PostGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&postModel{})
}

func (r *PostGormRepository) MarkPublished(ctx context.Context, postID string) error {
	now := normalizeTime(r.now())
	return r.update(ctx, postID, map[string]any{
		"status":         postStatusPublished,
		"published_at":   now,
		"failure_reason": nil,
		"updated_at":     now,
	})
}

func (r *PostGormRepository) MarkFailed(ctx context.Context, postID string, reason string) error {
	return r.update(ctx, postID, map[string]any{
		"status":         postStatusFailed,
		"failure_reason": nullString(reason),
		"updated_at":     normalizeTime(r.now()),
	})
}

func (r *PostGormRepository) update(ctx context.Context, postID string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&postModel{}).Where("id = ?", postID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", content.ErrPostNotFound, postID)
	}
	return nil
}
