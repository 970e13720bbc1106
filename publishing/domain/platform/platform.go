package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Platform identifies a social network a post can be published to.
type Platform string

const (
	LinkedIn Platform = "linkedin"
	X        Platform = "x"
)

var supported = []Platform{LinkedIn, X}

var ErrUnknownPlatform = errors.New("unsupported platform")

// All returns every supported platform in a stable order.
func All() []Platform {
	out := make([]Platform, len(supported))
	copy(out, supported)
	return out
}

// Parse normalizes user input into a Platform. "twitter" is accepted as an alias of X.
func Parse(raw string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "linkedin":
		return LinkedIn, nil
	case "x", "twitter":
		return X, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, raw)
	}
}

func (p Platform) Valid() bool {
	for _, s := range supported {
		if s == p {
			return true
		}
	}
	return false
}

// MaxContentLength is the platform's hard limit on post text, in runes.
func (p Platform) MaxContentLength() int {
	switch p {
	case LinkedIn:
		return 3000
	case X:
		return 280
	default:
		return 0
	}
}

func (p Platform) String() string {
	return string(p)
}

// AccessToken is a user's OAuth credential for one platform.
type AccessToken struct {
	Value string
	// AccountID is the platform-side identity (LinkedIn member id, X user id) when known.
	AccountID string
	ExpiresAt *time.Time
}

func (t AccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

type PublishRequest struct {
	Content string
	Token   AccessToken
	// IdempotencyKey is the scheduled entry id; adapters may forward it when the API supports it.
	IdempotencyKey string
}

type PublishResult struct {
	ExternalID string
	URL        string
}

// Publisher is the uniform contract every platform adapter implements.
type Publisher interface {
	Platform() Platform
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
}
