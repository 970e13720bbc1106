package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-publisher/publishing/application"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/AzielCF/az-publisher/validations"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type PublishingUsecase struct {
	store             scheduledpost.IScheduleStore
	coordinator       *application.PublishCoordinator
	signal            application.WakeSignal
	defaultMaxRetries int
	now               func() time.Time
}

type Option func(*PublishingUsecase)

func WithWakeSignal(signal application.WakeSignal) Option {
	return func(u *PublishingUsecase) { u.signal = signal }
}

func WithDefaultMaxRetries(n int) Option {
	return func(u *PublishingUsecase) {
		if n >= 0 {
			u.defaultMaxRetries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(u *PublishingUsecase) { u.now = now }
}

func NewPublishingUsecase(store scheduledpost.IScheduleStore, coordinator *application.PublishCoordinator, opts ...Option) *PublishingUsecase {
	u := &PublishingUsecase{
		store:             store,
		coordinator:       coordinator,
		defaultMaxRetries: scheduledpost.DefaultMaxRetries,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

var _ scheduledpost.IPublishingUsecase = (*PublishingUsecase)(nil)

// Schedule creates the active entry for (post, platform) or updates it in place.
func (u *PublishingUsecase) Schedule(ctx context.Context, req scheduledpost.ScheduleRequest) (scheduledpost.ScheduledPost, error) {
	return u.schedule(ctx, req, true)
}

// schedule saves the entry and, when wake is set and the entry is already due,
// signals the scheduler.
func (u *PublishingUsecase) schedule(ctx context.Context, req scheduledpost.ScheduleRequest, wake bool) (scheduledpost.ScheduledPost, error) {
	if err := validations.ValidateSchedule(ctx, req); err != nil {
		return scheduledpost.ScheduledPost{}, err
	}
	p, _ := platform.Parse(req.Platform)

	maxRetries := u.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	now := u.now().UTC()
	entry := scheduledpost.ScheduledPost{
		ID:            uuid.NewString(),
		PostID:        req.PostID,
		ProjectID:     req.ProjectID,
		UserID:        req.UserID,
		Platform:      p,
		Content:       req.Content,
		ScheduledTime: req.ScheduledTime.UTC(),
		Status:        scheduledpost.StatusPending,
		MaxRetries:    maxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	saved, created, err := u.store.UpsertActive(ctx, entry)
	if errors.Is(err, scheduledpost.ErrDuplicateActive) {
		// Another request inserted the slot between our lookup and insert; update it instead.
		saved, created, err = u.store.UpsertActive(ctx, entry)
	}
	if err != nil {
		return scheduledpost.ScheduledPost{}, err
	}

	if created {
		logrus.Infof("[PUBLISHING] scheduled post %s on %s for %s", saved.PostID, saved.Platform, saved.ScheduledTime.Format(time.RFC3339))
	} else {
		logrus.Infof("[PUBLISHING] updated schedule %s of post %s on %s", saved.ID, saved.PostID, saved.Platform)
	}
	if wake {
		u.wakeIfDue(ctx, saved)
	}
	return saved, nil
}

func (u *PublishingUsecase) Reschedule(ctx context.Context, req scheduledpost.RescheduleRequest) (scheduledpost.ScheduledPost, error) {
	if err := validations.ValidateReschedule(ctx, req); err != nil {
		return scheduledpost.ScheduledPost{}, err
	}
	entry, err := u.store.Reschedule(ctx, req.ID, req.NewScheduledTime.UTC(), u.now())
	if err != nil {
		return scheduledpost.ScheduledPost{}, err
	}
	logrus.Infof("[PUBLISHING] rescheduled %s to %s", entry.ID, entry.ScheduledTime.Format(time.RFC3339))
	u.wakeIfDue(ctx, entry)
	return entry, nil
}

func (u *PublishingUsecase) Cancel(ctx context.Context, id string) (scheduledpost.ScheduledPost, error) {
	entry, err := u.store.Cancel(ctx, id, u.now())
	if err != nil {
		return scheduledpost.ScheduledPost{}, err
	}
	logrus.Infof("[PUBLISHING] cancelled %s (post %s on %s)", entry.ID, entry.PostID, entry.Platform)
	return entry, nil
}

// PublishNow runs the active entry of (post, platform) through the coordinator
// right away, creating an entry due now when none exists.
func (u *PublishingUsecase) PublishNow(ctx context.Context, req scheduledpost.PublishNowRequest) (scheduledpost.PublishNowResult, error) {
	if err := validations.ValidatePublishNow(ctx, req, false); err != nil {
		return scheduledpost.PublishNowResult{}, err
	}
	p, _ := platform.Parse(req.Platform)

	entry, err := u.store.FindActive(ctx, req.PostID, p)
	switch {
	case errors.Is(err, scheduledpost.ErrNotFound):
		if err := validations.ValidatePublishNow(ctx, req, true); err != nil {
			return scheduledpost.PublishNowResult{}, fmt.Errorf("%w; no active entry exists for post %s on %s", err, req.PostID, p)
		}
		// No wake: the entry is due now and a woken tick would race the claim below.
		entry, err = u.schedule(ctx, scheduledpost.ScheduleRequest{
			PostID:        req.PostID,
			ProjectID:     req.ProjectID,
			UserID:        req.UserID,
			Platform:      string(p),
			Content:       req.Content,
			ScheduledTime: u.now(),
		}, false)
		if err != nil {
			return scheduledpost.PublishNowResult{}, err
		}
	case err != nil:
		return scheduledpost.PublishNowResult{}, err
	}

	if entry.Status == scheduledpost.StatusProcessing {
		return scheduledpost.PublishNowResult{}, fmt.Errorf("%w: %s", scheduledpost.ErrEntryInFlight, entry.ID)
	}

	res, err := u.coordinator.Process(ctx, entry)
	if err != nil {
		return scheduledpost.PublishNowResult{}, err
	}

	out := scheduledpost.PublishNowResult{
		Entry:          res.Entry,
		Outcome:        string(res.Outcome),
		Published:      res.Outcome == application.OutcomePublished,
		ExternalPostID: res.Entry.ExternalPostID,
		PublicURL:      res.Entry.PublicURL,
	}
	switch {
	case res.Err != nil:
		out.Error = res.Err.Error()
	case res.Outcome == application.OutcomeSkipped:
		out.Error = "entry was claimed by the scheduler"
	case res.Outcome == application.OutcomeRequeued:
		out.Error = scheduledpost.LastError(res.Entry.ErrorMessage)
	}
	return out, nil
}

func (u *PublishingUsecase) GetQueueStatus(ctx context.Context) (scheduledpost.QueueStatus, error) {
	return u.store.QueueStatus(ctx)
}

func (u *PublishingUsecase) Get(ctx context.Context, id string) (scheduledpost.ScheduledPost, error) {
	return u.store.Get(ctx, id)
}

func (u *PublishingUsecase) ListByPost(ctx context.Context, postID string) ([]scheduledpost.ScheduledPost, error) {
	return u.store.ListByPost(ctx, postID)
}

func (u *PublishingUsecase) wakeIfDue(ctx context.Context, entry scheduledpost.ScheduledPost) {
	if u.signal == nil || !entry.IsDue(u.now()) {
		return
	}
	if err := u.signal.Publish(ctx); err != nil {
		logrus.WithError(err).Warn("[PUBLISHING] failed to wake scheduler; entry will run on the next tick")
	}
}
