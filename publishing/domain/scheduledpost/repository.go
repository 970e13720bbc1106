package scheduledpost

import (
	"context"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
)

// IScheduleStore persists scheduled entries. Every status change goes through a
// conditional update so concurrent ticks cannot claim or complete the same entry twice.
type IScheduleStore interface {
	Init(ctx context.Context) error

	// UpsertActive creates the active entry for (PostID, Platform) or updates the
	// existing one in place. It reports whether a new row was created.
	UpsertActive(ctx context.Context, post ScheduledPost) (ScheduledPost, bool, error)
	Get(ctx context.Context, id string) (ScheduledPost, error)
	FindActive(ctx context.Context, postID string, p platform.Platform) (ScheduledPost, error)
	ListByPost(ctx context.Context, postID string) ([]ScheduledPost, error)

	// FindDue returns claimable entries with scheduledTime <= now, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]ScheduledPost, error)
	// Claim moves a Pending/Retry entry to Processing. ok is false when another worker won.
	Claim(ctx context.Context, id string, now time.Time) (ScheduledPost, bool, error)
	// Complete applies an attempt outcome to a Processing entry.
	Complete(ctx context.Context, id string, outcome Outcome, now time.Time) (ScheduledPost, error)
	Reschedule(ctx context.Context, id string, at time.Time, now time.Time) (ScheduledPost, error)
	Cancel(ctx context.Context, id string, now time.Time) (ScheduledPost, error)

	// ListStale returns Processing entries whose last attempt started before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]ScheduledPost, error)
	CountActiveForProject(ctx context.Context, projectID string) (int64, error)
	QueueStatus(ctx context.Context) (QueueStatus, error)
}
