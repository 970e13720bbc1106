package scheduledpost

import (
	"context"
	"time"
)

type ScheduleRequest struct {
	PostID        string    `json:"post_id"`
	ProjectID     string    `json:"project_id,omitempty"`
	UserID        string    `json:"user_id"`
	Platform      string    `json:"platform"`
	Content       string    `json:"content"`
	ScheduledTime time.Time `json:"scheduled_time"`
	MaxRetries    *int      `json:"max_retries,omitempty"`
}

type RescheduleRequest struct {
	ID               string    `json:"id"`
	NewScheduledTime time.Time `json:"scheduled_time"`
}

// PublishNowRequest publishes a post's active entry immediately. When no active entry
// exists, UserID, Content and Platform are used to create one due now.
type PublishNowRequest struct {
	PostID    string `json:"post_id"`
	Platform  string `json:"platform"`
	ProjectID string `json:"project_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type PublishNowResult struct {
	Entry          ScheduledPost `json:"entry"`
	Outcome        string        `json:"outcome"`
	Published      bool          `json:"published"`
	ExternalPostID string        `json:"external_post_id,omitempty"`
	PublicURL      string        `json:"public_url,omitempty"`
	Error          string        `json:"error,omitempty"`
}

type IPublishingUsecase interface {
	Schedule(ctx context.Context, req ScheduleRequest) (ScheduledPost, error)
	Reschedule(ctx context.Context, req RescheduleRequest) (ScheduledPost, error)
	Cancel(ctx context.Context, id string) (ScheduledPost, error)
	PublishNow(ctx context.Context, req PublishNowRequest) (PublishNowResult, error)
	GetQueueStatus(ctx context.Context) (QueueStatus, error)
	Get(ctx context.Context, id string) (ScheduledPost, error)
	ListByPost(ctx context.Context, postID string) ([]ScheduledPost, error)
}
