// Package events delivers publishing lifecycle events to external systems.
package events

import (
	"context"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/content"
)

const TypeProjectPostsPublished = "project.posts_published"

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

type Sink interface {
	Send(ctx context.Context, evt Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Send(context.Context, Event) error { return nil }
func (Noop) Close() error                      { return nil }

// StageNotifier tells downstream systems that a project has nothing left to publish.
type StageNotifier struct {
	sink  Sink
	newID func() string
	now   func() time.Time
}

func NewStageNotifier(sink Sink, newID func() string) *StageNotifier {
	return &StageNotifier{sink: sink, newID: newID, now: time.Now}
}

var _ content.ProjectStageAdvancer = (*StageNotifier)(nil)

func (n *StageNotifier) OnAllPostsPublished(ctx context.Context, projectID string) error {
	return n.sink.Send(ctx, Event{
		ID:         n.newID(),
		Type:       TypeProjectPostsPublished,
		ProjectID:  projectID,
		OccurredAt: n.now().UTC(),
	})
}
