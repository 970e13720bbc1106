package scheduledpost

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRetry      Status = "retry"
)

const (
	DefaultMaxRetries = 3
	MaxAllowedRetries = 10
	maxErrorHistory   = 4096
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusRetry:      {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPublished, StatusRetry, StatusFailed},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
// Processing to Retry covers both the failure path and a rate-limit requeue.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusFailed || s == StatusCancelled
}

// IsActive is true while the entry still occupies its (postId, platform) slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusProcessing || s == StatusRetry
}

// IsClaimable is true for statuses a scheduler tick may pick up.
func (s Status) IsClaimable() bool {
	return s == StatusPending || s == StatusRetry
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPublished, StatusFailed, StatusCancelled, StatusRetry:
		return true
	}
	return false
}

func ClaimableStatuses() []Status {
	return []Status{StatusPending, StatusRetry}
}

func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusProcessing, StatusRetry}
}

// ScheduledPost is one (post, platform, time) publication job.
type ScheduledPost struct {
	ID             string            `json:"id"`
	PostID         string            `json:"post_id"`
	ProjectID      string            `json:"project_id,omitempty"`
	UserID         string            `json:"user_id"`
	Platform       platform.Platform `json:"platform"`
	Content        string            `json:"content"`
	ScheduledTime  time.Time         `json:"scheduled_time"`
	Status         Status            `json:"status"`
	RetryCount     int               `json:"retry_count"`
	MaxRetries     int               `json:"max_retries"`
	LastAttemptAt  *time.Time        `json:"last_attempt_at,omitempty"`
	PublishedAt    *time.Time        `json:"published_at,omitempty"`
	ExternalPostID string            `json:"external_post_id,omitempty"`
	PublicURL      string            `json:"public_url,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// IsDue reports whether a tick at now should pick the entry up.
func (p ScheduledPost) IsDue(now time.Time) bool {
	return p.Status.IsClaimable() && !p.ScheduledTime.After(now)
}

// AttemptNumber is the 1-based number of the attempt about to run.
func (p ScheduledPost) AttemptNumber() int {
	return p.RetryCount + 1
}

// ActiveKey identifies the (postId, platform) slot at most one active entry may hold.
func ActiveKey(postID string, p platform.Platform) string {
	return postID + "|" + string(p)
}

// AppendError adds an "attempt N: reason" line to the history, keeping the newest
// lines when the history outgrows its cap.
func AppendError(history string, attempt int, reason string) string {
	line := fmt.Sprintf("attempt %d: %s", attempt, strings.ToValidUTF8(strings.TrimSpace(reason), "\uFFFD"))
	if history == "" {
		history = line
	} else {
		history = history + "\n" + line
	}
	if len(history) <= maxErrorHistory {
		return history
	}
	cut := len(history) - maxErrorHistory
	for cut < len(history) && !utf8.RuneStart(history[cut]) {
		cut++
	}
	history = history[cut:]
	if i := strings.IndexByte(history, '\n'); i >= 0 && i < len(history)-1 {
		history = history[i+1:]
	}
	return history
}

// LastError returns the newest line of the error history.
func LastError(history string) string {
	if i := strings.LastIndexByte(history, '\n'); i >= 0 {
		return history[i+1:]
	}
	return history
}

// Outcome is the state an attempt leaves a Processing entry in.
type Outcome struct {
	Status         Status
	RetryCount     int
	ErrorMessage   string
	ExternalPostID string
	PublicURL      string
	PublishedAt    *time.Time
}

type StatusCounts map[Status]int64

// QueueStatus summarizes the queue for dashboards.
type QueueStatus struct {
	PendingCount      int64                              `json:"pending_count"`
	ProcessingCount   int64                              `json:"processing_count"`
	RetryCount        int64                              `json:"retry_count"`
	PublishedCount    int64                              `json:"published_count"`
	FailedCount       int64                              `json:"failed_count"`
	CancelledCount    int64                              `json:"cancelled_count"`
	PerPlatformCounts map[platform.Platform]StatusCounts `json:"per_platform_counts"`
	NextScheduledTime *time.Time                         `json:"next_scheduled_time,omitempty"`
}

// Add folds one grouped count into the totals.
func (q *QueueStatus) Add(p platform.Platform, s Status, n int64) {
	if q.PerPlatformCounts == nil {
		q.PerPlatformCounts = map[platform.Platform]StatusCounts{}
	}
	if q.PerPlatformCounts[p] == nil {
		q.PerPlatformCounts[p] = StatusCounts{}
	}
	q.PerPlatformCounts[p][s] += n
	switch s {
	case StatusPending:
		q.PendingCount += n
	case StatusProcessing:
		q.ProcessingCount += n
	case StatusRetry:
		q.RetryCount += n
	case StatusPublished:
		q.PublishedCount += n
	case StatusFailed:
		q.FailedCount += n
	case StatusCancelled:
		q.CancelledCount += n
	}
}
