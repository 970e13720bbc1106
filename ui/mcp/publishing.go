package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type PublishingHandler struct {
	service scheduledpost.IPublishingUsecase
}

func InitMcpPublishing(service scheduledpost.IPublishingUsecase) *PublishingHandler {
	return &PublishingHandler{service: service}
}

func (h *PublishingHandler) AddPublishingTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolSchedule(), h.handleSchedule)
	mcpServer.AddTool(h.toolReschedule(), h.handleReschedule)
	mcpServer.AddTool(h.toolCancel(), h.handleCancel)
	mcpServer.AddTool(h.toolPublishNow(), h.handlePublishNow)
	mcpServer.AddTool(h.toolQueueStatus(), h.handleQueueStatus)
}

func (h *PublishingHandler) toolSchedule() mcp.Tool {
	return mcp.NewTool(
		"schedule_post",
		mcp.WithDescription("Schedule a post for publication on LinkedIn or X. Scheduling the same post and platform again replaces the pending entry."),
		mcp.WithTitleAnnotation("Schedule Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("post_id", mcp.Description("Identifier of the post to publish."), mcp.Required()),
		mcp.WithString("user_id", mcp.Description("Owner whose platform credentials are used."), mcp.Required()),
		mcp.WithString("platform", mcp.Description("Target platform."), mcp.Enum("linkedin", "x"), mcp.Required()),
		mcp.WithString("content", mcp.Description("Text to publish."), mcp.Required()),
		mcp.WithString("scheduled_time", mcp.Description("RFC3339 publication time, e.g. 2026-05-04T09:00:00Z."), mcp.Required()),
		mcp.WithString("project_id", mcp.Description("Optional project the post belongs to.")),
		mcp.WithNumber("max_retries", mcp.Description("Retry budget for transient failures (0-10)."), mcp.Min(0), mcp.Max(10)),
	)
}

func (h *PublishingHandler) handleSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := scheduledpost.ScheduleRequest{}
	var err error
	if req.PostID, err = request.RequireString("post_id"); err != nil {
		return nil, err
	}
	if req.UserID, err = request.RequireString("user_id"); err != nil {
		return nil, err
	}
	if req.Platform, err = request.RequireString("platform"); err != nil {
		return nil, err
	}
	if req.Content, err = request.RequireString("content"); err != nil {
		return nil, err
	}
	if req.ScheduledTime, err = requireTime(request, "scheduled_time"); err != nil {
		return nil, err
	}
	req.ProjectID = request.GetString("project_id", "")
	if _, ok := request.GetArguments()["max_retries"]; ok {
		n := request.GetInt("max_retries", scheduledpost.DefaultMaxRetries)
		req.MaxRetries = &n
	}

	entry, err := h.service.Schedule(ctx, req)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Post %s scheduled on %s for %s (entry %s)",
		entry.PostID, entry.Platform, entry.ScheduledTime.Format(time.RFC3339), entry.ID)
	return mcp.NewToolResultStructured(entry, fallback), nil
}

func (h *PublishingHandler) toolReschedule() mcp.Tool {
	return mcp.NewTool(
		"reschedule_post",
		mcp.WithDescription("Move a pending or retrying scheduled post to a new publication time."),
		mcp.WithTitleAnnotation("Reschedule Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("id", mcp.Description("Scheduled post entry ID."), mcp.Required()),
		mcp.WithString("scheduled_time", mcp.Description("New RFC3339 publication time."), mcp.Required()),
	)
}

func (h *PublishingHandler) handleReschedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return nil, err
	}
	at, err := requireTime(request, "scheduled_time")
	if err != nil {
		return nil, err
	}

	entry, err := h.service.Reschedule(ctx, scheduledpost.RescheduleRequest{ID: id, NewScheduledTime: at})
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Entry %s now scheduled for %s", entry.ID, entry.ScheduledTime.Format(time.RFC3339))
	return mcp.NewToolResultStructured(entry, fallback), nil
}

func (h *PublishingHandler) toolCancel() mcp.Tool {
	return mcp.NewTool(
		"cancel_scheduled_post",
		mcp.WithDescription("Cancel a scheduled post that has not been published yet."),
		mcp.WithTitleAnnotation("Cancel Scheduled Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("id", mcp.Description("Scheduled post entry ID."), mcp.Required()),
	)
}

func (h *PublishingHandler) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return nil, err
	}

	entry, err := h.service.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultStructured(entry, fmt.Sprintf("Entry %s cancelled", entry.ID)), nil
}

func (h *PublishingHandler) toolPublishNow() mcp.Tool {
	return mcp.NewTool(
		"publish_post_now",
		mcp.WithDescription("Publish a post on a platform immediately instead of waiting for its scheduled time."),
		mcp.WithTitleAnnotation("Publish Post Now"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("post_id", mcp.Description("Identifier of the post to publish."), mcp.Required()),
		mcp.WithString("platform", mcp.Description("Target platform."), mcp.Enum("linkedin", "x"), mcp.Required()),
		mcp.WithString("user_id", mcp.Description("Owner, required when the post has no scheduled entry yet.")),
		mcp.WithString("content", mcp.Description("Text, required when the post has no scheduled entry yet.")),
		mcp.WithString("project_id", mcp.Description("Optional project the post belongs to.")),
	)
}

func (h *PublishingHandler) handlePublishNow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID, err := request.RequireString("post_id")
	if err != nil {
		return nil, err
	}
	p, err := request.RequireString("platform")
	if err != nil {
		return nil, err
	}

	result, err := h.service.PublishNow(ctx, scheduledpost.PublishNowRequest{
		PostID:    postID,
		Platform:  p,
		UserID:    request.GetString("user_id", ""),
		Content:   request.GetString("content", ""),
		ProjectID: request.GetString("project_id", ""),
	})
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Post %s on %s: %s", postID, p, result.Outcome)
	switch {
	case result.Published && result.PublicURL != "":
		fallback += " at " + result.PublicURL
	case result.Error != "":
		fallback += " (" + result.Error + ")"
	}
	return mcp.NewToolResultStructured(result, fallback), nil
}

func (h *PublishingHandler) toolQueueStatus() mcp.Tool {
	return mcp.NewTool(
		"queue_status",
		mcp.WithDescription("Summarize the publishing queue: counts per status and platform and the next scheduled time."),
		mcp.WithTitleAnnotation("Queue Status"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (h *PublishingHandler) handleQueueStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_ = request
	status, err := h.service.GetQueueStatus(ctx)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("%d pending, %d retrying, %d processing, %d published, %d failed",
		status.PendingCount, status.RetryCount, status.ProcessingCount, status.PublishedCount, status.FailedCount)
	if status.NextScheduledTime != nil {
		fallback += ", next at " + status.NextScheduledTime.Format(time.RFC3339)
	}
	return mcp.NewToolResultStructured(status, fallback), nil
}

func requireTime(request mcp.CallToolRequest, key string) (time.Time, error) {
	raw, err := request.RequireString(key)
	if err != nil {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC3339 timestamp: %w", key, err)
	}
	return at.UTC(), nil
}
