package validations

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	pkgError "github.com/AzielCF/az-publisher/pkg/error"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func validPlatform(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := platform.Parse(s); err != nil {
		return errors.New("must be one of linkedin, x")
	}
	return nil
}

// contentFits checks the post text against the target platform's limit.
func contentFits(p string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		parsed, err := platform.Parse(p)
		if err != nil {
			return nil
		}
		if limit := parsed.MaxContentLength(); limit > 0 && utf8.RuneCountInString(s) > limit {
			return fmt.Errorf("exceeds the %d character limit of %s", limit, parsed)
		}
		return nil
	}
}

func ValidateSchedule(ctx context.Context, request scheduledpost.ScheduleRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.PostID, validation.Required),
		validation.Field(&request.UserID, validation.Required),
		validation.Field(&request.Platform, validation.Required, validation.By(validPlatform)),
		validation.Field(&request.Content, validation.Required, validation.By(contentFits(request.Platform))),
		validation.Field(&request.ScheduledTime, validation.Required),
		validation.Field(&request.MaxRetries, validation.Min(0), validation.Max(scheduledpost.MaxAllowedRetries)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateReschedule(ctx context.Context, request scheduledpost.RescheduleRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ID, validation.Required),
		validation.Field(&request.NewScheduledTime, validation.Required, validation.By(func(value any) error {
			t, _ := value.(time.Time)
			if t.Year() < 2000 {
				return errors.New("is not a plausible time")
			}
			return nil
		})),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

// ValidatePublishNow requires content and user only when a new entry has to be created.
func ValidatePublishNow(ctx context.Context, request scheduledpost.PublishNowRequest, creating bool) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.PostID, validation.Required),
		validation.Field(&request.Platform, validation.Required, validation.By(validPlatform)),
		validation.Field(&request.UserID, validation.When(creating, validation.Required)),
		validation.Field(&request.Content, validation.When(creating, validation.Required), validation.By(contentFits(request.Platform))),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
