package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"gorm.io/gorm"
)

// scheduledPostModel is the GORM model for scheduled_posts. active_key holds
// "postId|platform" while the entry is active and NULL once it is terminal, so the
// unique index allows exactly one active entry per (post, platform).
type scheduledPostModel struct {
	ID             string         `gorm:"primaryKey;column:id"`
	PostID         string         `gorm:"column:post_id;not null;index"`
	ProjectID      sql.NullString `gorm:"column:project_id;index"`
	UserID         string         `gorm:"column:user_id;not null"`
	Platform       string         `gorm:"column:platform;not null"`
	Content        string         `gorm:"column:content;type:text;not null"`
	ScheduledTime  time.Time      `gorm:"column:scheduled_time;not null;index:idx_scheduled_posts_due,priority:2"`
	Status         string         `gorm:"column:status;not null;index:idx_scheduled_posts_due,priority:1"`
	ActiveKey      *string        `gorm:"column:active_key;uniqueIndex"`
	RetryCount     int            `gorm:"column:retry_count;not null"`
	MaxRetries     int            `gorm:"column:max_retries;not null"`
	LastAttemptAt  *time.Time     `gorm:"column:last_attempt_at"`
	PublishedAt    *time.Time     `gorm:"column:published_at"`
	ExternalPostID sql.NullString `gorm:"column:external_post_id"`
	PublicURL      sql.NullString `gorm:"column:public_url"`
	ErrorMessage   sql.NullString `gorm:"column:error_message;type:text"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (scheduledPostModel) TableName() string { return "scheduled_posts" }

type ScheduleGormRepository struct {
	db *gorm.DB
}

func NewScheduleGormRepository(db *gorm.DB) *ScheduleGormRepository {
	return &ScheduleGormRepository{db: db}
}

var _ scheduledpost.IScheduleStore = (*ScheduleGormRepository)(nil)

func (r *ScheduleGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&scheduledPostModel{})
}

func (r *ScheduleGormRepository) UpsertActive(ctx context.Context, post scheduledpost.ScheduledPost) (scheduledpost.ScheduledPost, bool, error) {
	key := scheduledpost.ActiveKey(post.PostID, post.Platform)
	var (
		saved   scheduledPostModel
		created bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing scheduledPostModel
		err := tx.Where("active_key = ?", key).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m := toScheduledPostModel(post)
			m.ActiveKey = &key
			if err := tx.Create(&m).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return scheduledpost.ErrDuplicateActive
				}
				return err
			}
			saved = m
			created = true
			return nil
		}
		if err != nil {
			return err
		}
		if existing.Status == string(scheduledpost.StatusProcessing) {
			return scheduledpost.ErrEntryInFlight
		}

		now := normalizeTime(post.UpdatedAt)
		res := tx.Model(&scheduledPostModel{}).
			Where("id = ? AND status IN ?", existing.ID, claimableStatuses()).
			Updates(map[string]any{
				"content":        post.Content,
				"scheduled_time": normalizeTime(post.ScheduledTime),
				"user_id":        post.UserID,
				"project_id":     nullString(post.ProjectID),
				"max_retries":    post.MaxRetries,
				"status":         string(scheduledpost.StatusPending),
				"retry_count":    0,
				"error_message":  nil,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return scheduledpost.ErrEntryInFlight
		}
		return tx.Where("id = ?", existing.ID).Take(&saved).Error
	})
	if err != nil {
		return scheduledpost.ScheduledPost{}, false, err
	}
	return fromScheduledPostModel(saved), created, nil
}

func (r *ScheduleGormRepository) Get(ctx context.Context, id string) (scheduledpost.ScheduledPost, error) {
	var m scheduledPostModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return scheduledpost.ScheduledPost{}, fmt.Errorf("%w: %s", scheduledpost.ErrNotFound, id)
		}
		return scheduledpost.ScheduledPost{}, err
	}
	return fromScheduledPostModel(m), nil
}

func (r *ScheduleGormRepository) FindActive(ctx context.Context, postID string, p platform.Platform) (scheduledpost.ScheduledPost, error) {
	var m scheduledPostModel
	err := r.db.WithContext(ctx).Where("active_key = ?", scheduledpost.ActiveKey(postID, p)).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return scheduledpost.ScheduledPost{}, fmt.Errorf("%w: no active entry for post %s on %s", scheduledpost.ErrNotFound, postID, p)
		}
		return scheduledpost.ScheduledPost{}, err
	}
	return fromScheduledPostModel(m), nil
}

func (r *ScheduleGormRepository) ListByPost(ctx context.Context, postID string) ([]scheduledpost.ScheduledPost, error) {
	var models []scheduledPostModel
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromScheduledPostModels(models), nil
}

func (r *ScheduleGormRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]scheduledpost.ScheduledPost, error) {
	var models []scheduledPostModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND scheduled_time <= ?", claimableStatuses(), normalizeTime(now)).
		Order("scheduled_time ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromScheduledPostModels(models), nil
}

func (r *ScheduleGormRepository) Claim(ctx context.Context, id string, now time.Time) (scheduledpost.ScheduledPost, bool, error) {
	now = normalizeTime(now)
	res := r.db.WithContext(ctx).Model(&scheduledPostModel{}).
		Where("id = ? AND status IN ?", id, claimableStatuses()).
		Updates(map[string]any{
			"status":          string(scheduledpost.StatusProcessing),
			"last_attempt_at": now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return scheduledpost.ScheduledPost{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return scheduledpost.ScheduledPost{}, false, nil
	}
	claimed, err := r.Get(ctx, id)
	if err != nil {
		return scheduledpost.ScheduledPost{}, false, err
	}
	return claimed, true, nil
}

func (r *ScheduleGormRepository) Complete(ctx context.Context, id string, outcome scheduledpost.Outcome, now time.Time) (scheduledpost.ScheduledPost, error) {
	if !scheduledpost.CanTransition(scheduledpost.StatusProcessing, outcome.Status) {
		return scheduledpost.ScheduledPost{}, fmt.Errorf("%w: processing -> %s", scheduledpost.ErrInvalidTransition, outcome.Status)
	}

	updates := map[string]any{
		"status":        string(outcome.Status),
		"retry_count":   outcome.RetryCount,
		"error_message": nullString(outcome.ErrorMessage),
		"updated_at":    normalizeTime(now),
	}
	if outcome.Status.IsTerminal() {
		updates["active_key"] = nil
	}
	if outcome.ExternalPostID != "" {
		updates["external_post_id"] = outcome.ExternalPostID
	}
	if outcome.PublicURL != "" {
		updates["public_url"] = outcome.PublicURL
	}
	if outcome.PublishedAt != nil {
		updates["published_at"] = normalizeTime(*outcome.PublishedAt)
	}

	res := r.db.WithContext(ctx).Model(&scheduledPostModel{}).
		Where("id = ? AND status = ?", id, string(scheduledpost.StatusProcessing)).
		Updates(updates)
	if res.Error != nil {
		return scheduledpost.ScheduledPost{}, res.Error
	}
	if res.RowsAffected == 0 {
		return scheduledpost.ScheduledPost{}, r.explainMiss(ctx, id, "complete")
	}
	return r.Get(ctx, id)
}

func (r *ScheduleGormRepository) Reschedule(ctx context.Context, id string, at time.Time, now time.Time) (scheduledpost.ScheduledPost, error) {
	res := r.db.WithContext(ctx).Model(&scheduledPostModel{}).
		Where("id = ? AND status IN ?", id, claimableStatuses()).
		Updates(map[string]any{
			"scheduled_time": normalizeTime(at),
			"updated_at":     normalizeTime(now),
		})
	if res.Error != nil {
		return scheduledpost.ScheduledPost{}, res.Error
	}
	if res.RowsAffected == 0 {
		return scheduledpost.ScheduledPost{}, r.explainMiss(ctx, id, "reschedule")
	}
	return r.Get(ctx, id)
}

func (r *ScheduleGormRepository) Cancel(ctx context.Context, id string, now time.Time) (scheduledpost.ScheduledPost, error) {
	res := r.db.WithContext(ctx).Model(&scheduledPostModel{}).
		Where("id = ? AND status IN ?", id, claimableStatuses()).
		Updates(map[string]any{
			"status":     string(scheduledpost.StatusCancelled),
			"active_key": nil,
			"updated_at": normalizeTime(now),
		})
	if res.Error != nil {
		return scheduledpost.ScheduledPost{}, res.Error
	}
	if res.RowsAffected == 0 {
		return scheduledpost.ScheduledPost{}, r.explainMiss(ctx, id, "cancel")
	}
	return r.Get(ctx, id)
}

// explainMiss turns a conditional update that matched no row into the right error.
func (r *ScheduleGormRepository) explainMiss(ctx context.Context, id, op string) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == scheduledpost.StatusProcessing && op != "complete" {
		return fmt.Errorf("%w: cannot %s %s", scheduledpost.ErrEntryInFlight, op, id)
	}
	return fmt.Errorf("%w: cannot %s entry in status %s", scheduledpost.ErrInvalidTransition, op, current.Status)
}

func (r *ScheduleGormRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]scheduledpost.ScheduledPost, error) {
	var models []scheduledPostModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_attempt_at < ?", string(scheduledpost.StatusProcessing), normalizeTime(cutoff)).
		Order("last_attempt_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromScheduledPostModels(models), nil
}

func (r *ScheduleGormRepository) CountActiveForProject(ctx context.Context, projectID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&scheduledPostModel{}).
		Where("project_id = ? AND status IN ?", projectID, activeStatuses()).
		Count(&n).Error
	return n, err
}

func (r *ScheduleGormRepository) QueueStatus(ctx context.Context) (scheduledpost.QueueStatus, error) {
	var rows []struct {
		Platform string
		Status   string
		Total    int64
	}
	err := r.db.WithContext(ctx).Model(&scheduledPostModel{}).
		Select("platform, status, COUNT(*) AS total").
		Group("platform, status").
		Scan(&rows).Error
	if err != nil {
		return scheduledpost.QueueStatus{}, err
	}

	status := scheduledpost.QueueStatus{PerPlatformCounts: map[platform.Platform]scheduledpost.StatusCounts{}}
	for _, row := range rows {
		status.Add(platform.Platform(row.Platform), scheduledpost.Status(row.Status), row.Total)
	}

	var next scheduledPostModel
	err = r.db.WithContext(ctx).
		Where("status IN ?", claimableStatuses()).
		Order("scheduled_time ASC").
		Take(&next).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return scheduledpost.QueueStatus{}, err
	}
	if err == nil {
		t := next.ScheduledTime.UTC()
		status.NextScheduledTime = &t
	}
	return status, nil
}

func claimableStatuses() []string {
	return statusStrings(scheduledpost.ClaimableStatuses())
}

func activeStatuses() []string {
	return statusStrings(scheduledpost.ActiveStatuses())
}

func statusStrings(in []scheduledpost.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// normalizeTime stores every timestamp in UTC at microsecond precision, which both
// sqlite and postgres round-trip exactly.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func normalizeTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := normalizeTime(*t)
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toScheduledPostModel(p scheduledpost.ScheduledPost) scheduledPostModel {
	return scheduledPostModel{
		ID:             p.ID,
		PostID:         p.PostID,
		ProjectID:      nullString(p.ProjectID),
		UserID:         p.UserID,
		Platform:       string(p.Platform),
		Content:        p.Content,
		ScheduledTime:  normalizeTime(p.ScheduledTime),
		Status:         string(p.Status),
		RetryCount:     p.RetryCount,
		MaxRetries:     p.MaxRetries,
		LastAttemptAt:  normalizeTimePtr(p.LastAttemptAt),
		PublishedAt:    normalizeTimePtr(p.PublishedAt),
		ExternalPostID: nullString(p.ExternalPostID),
		PublicURL:      nullString(p.PublicURL),
		ErrorMessage:   nullString(p.ErrorMessage),
		CreatedAt:      normalizeTime(p.CreatedAt),
		UpdatedAt:      normalizeTime(p.UpdatedAt),
	}
}

func fromScheduledPostModel(m scheduledPostModel) scheduledpost.ScheduledPost {
	return scheduledpost.ScheduledPost{
		ID:             m.ID,
		PostID:         m.PostID,
		ProjectID:      m.ProjectID.String,
		UserID:         m.UserID,
		Platform:       platform.Platform(m.Platform),
		Content:        m.Content,
		ScheduledTime:  m.ScheduledTime.UTC(),
		Status:         scheduledpost.Status(m.Status),
		RetryCount:     m.RetryCount,
		MaxRetries:     m.MaxRetries,
		LastAttemptAt:  utcPtr(m.LastAttemptAt),
		PublishedAt:    utcPtr(m.PublishedAt),
		ExternalPostID: m.ExternalPostID.String,
		PublicURL:      m.PublicURL.String,
		ErrorMessage:   m.ErrorMessage.String,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

func fromScheduledPostModels(models []scheduledPostModel) []scheduledpost.ScheduledPost {
	out := make([]scheduledpost.ScheduledPost, 0, len(models))
	for _, m := range models {
		out = append(out, fromScheduledPostModel(m))
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
