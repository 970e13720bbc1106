package application

import (
	"context"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
)

const (
	DefaultBatchSize = 50
	maxBatchSize     = 500
)

// DuePostScanner selects the entries a tick should attempt.
type DuePostScanner struct {
	store     scheduledpost.IScheduleStore
	batchSize int
}

func NewDuePostScanner(store scheduledpost.IScheduleStore, batchSize int) *DuePostScanner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	return &DuePostScanner{store: store, batchSize: batchSize}
}

// FindDue returns up to limit Pending/Retry entries due at now, oldest first.
// A non-positive limit uses the scanner's batch size.
func (s *DuePostScanner) FindDue(ctx context.Context, now time.Time, limit int) ([]scheduledpost.ScheduledPost, error) {
	if limit <= 0 || limit > maxBatchSize {
		limit = s.batchSize
	}
	return s.store.FindDue(ctx, now, limit)
}
