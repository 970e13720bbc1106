package rest

import (
	"context"
	"sort"
	"time"

	"github.com/AzielCF/az-publisher/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HealthComponent struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type HealthReport struct {
	ServerID         string            `json:"server_id"`
	Version          string            `json:"version"`
	SchedulerRunning bool              `json:"scheduler_running"`
	Components       []HealthComponent `json:"components"`
}

type Health struct {
	ServerID  string
	Version   string
	Checks    map[string]HealthCheck
	Scheduler func() bool
}

func InitRestHealth(app fiber.Router, health Health) Health {
	app.Get("/health", health.GetStatus)
	return health
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	report := HealthReport{ServerID: h.ServerID, Version: h.Version}
	if h.Scheduler != nil {
		report.SchedulerRunning = h.Scheduler()
	}

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	for _, name := range names {
		component := HealthComponent{Name: name, Healthy: true}
		if err := h.Checks[name](ctx); err != nil {
			component.Healthy = false
			component.Error = err.Error()
			healthy = false
		}
		report.Components = append(report.Components, component)
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "UNHEALTHY",
			Message: "One or more dependencies are unreachable",
			Results: report,
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Health status retrieved",
		Results: report,
	})
}
