package platform

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a publish failure. The coordinator decides between retry and
// terminal failure from the kind alone.
type ErrorKind string

const (
	KindUnauthorized       ErrorKind = "unauthorized"
	KindRateLimited        ErrorKind = "rate_limited"
	KindTransientNetwork   ErrorKind = "transient_network"
	KindPermanentRejection ErrorKind = "permanent_rejection"
	// KindNotFound means the target of the call (member, account, post) no longer exists.
	KindNotFound ErrorKind = "not_found"
)

// Retryable reports whether another attempt may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransientNetwork
}

type PublishError struct {
	Kind       ErrorKind
	Platform   Platform
	StatusCode int
	Message    string
	Err        error
}

func (e *PublishError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Platform, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Platform, e.Kind, msg)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, p Platform, msg string) *PublishError {
	return &PublishError{Kind: kind, Platform: p, Message: msg}
}

func Wrap(kind ErrorKind, p Platform, err error) *PublishError {
	return &PublishError{Kind: kind, Platform: p, Err: err}
}

// KindOf classifies any error returned along the publish path. Errors that carry
// no classification are treated as transient so they get another attempt.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransientNetwork
}

func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
