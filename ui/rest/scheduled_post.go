package rest

import (
	"fmt"
	"strings"

	pkgError "github.com/AzielCF/az-publisher/pkg/error"
	"github.com/AzielCF/az-publisher/pkg/utils"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/gofiber/fiber/v2"
)

type ScheduledPost struct {
	Service scheduledpost.IPublishingUsecase
}

func InitRestScheduledPost(app fiber.Router, service scheduledpost.IPublishingUsecase) ScheduledPost {
	rest := ScheduledPost{Service: service}

	app.Post("/scheduled-posts", rest.Schedule)
	app.Get("/scheduled-posts/:id", rest.Get)
	app.Patch("/scheduled-posts/:id/reschedule", rest.Reschedule)
	app.Post("/scheduled-posts/:id/cancel", rest.Cancel)
	app.Get("/posts/:postId/scheduled-posts", rest.ListByPost)
	app.Post("/posts/:postId/publish-now", rest.PublishNow)
	app.Get("/queue/status", rest.QueueStatus)

	return rest
}

func (handler *ScheduledPost) Schedule(c *fiber.Ctx) error {
	var request scheduledpost.ScheduleRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(fmt.Sprintf("invalid request body: %v", err)))
	}

	entry, err := handler.Service.Schedule(c.UserContext(), request)
	utils.PanicIfNeeded(restError(err))

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  fiber.StatusCreated,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Post %s scheduled on %s", entry.PostID, entry.Platform),
		Results: entry,
	})
}

func (handler *ScheduledPost) Get(c *fiber.Ctx) error {
	entry, err := handler.Service.Get(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled post retrieved",
		Results: entry,
	})
}

func (handler *ScheduledPost) ListByPost(c *fiber.Ctx) error {
	entries, err := handler.Service.ListByPost(c.UserContext(), c.Params("postId"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: fmt.Sprintf("Found %d scheduled posts", len(entries)),
		Results: entries,
	})
}

func (handler *ScheduledPost) Reschedule(c *fiber.Ctx) error {
	var request scheduledpost.RescheduleRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(fmt.Sprintf("invalid request body: %v", err)))
	}
	request.ID = c.Params("id")

	entry, err := handler.Service.Reschedule(c.UserContext(), request)
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled post rescheduled",
		Results: entry,
	})
}

func (handler *ScheduledPost) Cancel(c *fiber.Ctx) error {
	entry, err := handler.Service.Cancel(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled post cancelled",
		Results: entry,
	})
}

func (handler *ScheduledPost) PublishNow(c *fiber.Ctx) error {
	var request scheduledpost.PublishNowRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			utils.PanicIfNeeded(pkgError.ValidationError(fmt.Sprintf("invalid request body: %v", err)))
		}
	}
	request.PostID = c.Params("postId")
	if request.Platform == "" {
		request.Platform = c.Query("platform")
	}

	result, err := handler.Service.PublishNow(c.UserContext(), request)
	utils.PanicIfNeeded(restError(err))

	code, message := "SUCCESS", "Post published"
	if !result.Published {
		code = "PUBLISH_" + strings.ToUpper(result.Outcome)
		message = result.Error
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    code,
		Message: message,
		Results: result,
	})
}

func (handler *ScheduledPost) QueueStatus(c *fiber.Ctx) error {
	status, err := handler.Service.GetQueueStatus(c.UserContext())
	utils.PanicIfNeeded(restError(err))

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Queue status retrieved",
		Results: status,
	})
}
