package scheduledpost

import "errors"

var (
	ErrNotFound          = errors.New("scheduled post not found")
	ErrInvalidTransition = errors.New("scheduled post status does not allow this operation")
	// ErrEntryInFlight is returned when an operation targets an entry a publish attempt currently holds.
	ErrEntryInFlight = errors.New("scheduled post is being published")
	// ErrDuplicateActive signals a lost race on the (postId, platform) active slot.
	ErrDuplicateActive = errors.New("an active scheduled post already exists for this post and platform")
)
