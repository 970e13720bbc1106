// Package content holds the ports the publishing context needs from the content
// layer that owns posts, projects and OAuth credentials.
package content

import (
	"context"
	"errors"

	"github.com/AzielCF/az-publisher/publishing/domain/platform"
)

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrProjectNotFound = errors.New("project not found")
)

// AccessTokenProvider returns a valid token for (user, platform). Missing or expired
// credentials are reported as a *platform.PublishError of KindUnauthorized.
type AccessTokenProvider interface {
	GetToken(ctx context.Context, userID string, p platform.Platform) (platform.AccessToken, error)
}

// PostStore flags the parent post once a publication settles.
type PostStore interface {
	MarkPublished(ctx context.Context, postID string) error
	MarkFailed(ctx context.Context, postID string, reason string) error
}

// ProjectStageAdvancer is told when a project has no active scheduled entries left.
// Implementations must tolerate duplicate calls.
type ProjectStageAdvancer interface {
	OnAllPostsPublished(ctx context.Context, projectID string) error
}
