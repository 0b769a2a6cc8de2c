// Package api implements the v2 operator API: alert and rule inspection,
// acknowledgement and on-demand rule evaluation.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/faultwatch/faultwatch/internal/alerting"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/errors"
	"github.com/faultwatch/faultwatch/internal/logger"
)

// Evaluator runs the alert rules of a device on demand.
type Evaluator interface {
	RunRules(ctx context.Context, deviceID uint) (*alerting.RunSummary, error)
	Cache() *alerting.RuleCache
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Controller serves /api/v2.
type Controller struct {
	Group     *echo.Group
	alerts    repository.AlertRepository
	rules     repository.AlertRuleRepository
	devices   repository.DeviceRepository
	evaluator Evaluator
	health    HealthCheck
	logger    logger.Logger
}

// Options are the collaborators of a Controller. Evaluator and Health may
// be nil, which disables evaluation and reports healthy unconditionally.
type Options struct {
	Alerts    repository.AlertRepository
	Rules     repository.AlertRuleRepository
	Devices   repository.DeviceRepository
	Evaluator Evaluator
	Health    HealthCheck
	Logger    logger.Logger
}

// New registers the v2 routes on e and returns the controller.
func New(e *echo.Echo, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	c := &Controller{
		Group:     e.Group("/api/v2"),
		alerts:    opts.Alerts,
		rules:     opts.Rules,
		devices:   opts.Devices,
		evaluator: opts.Evaluator,
		health:    opts.Health,
		logger:    log.Module("api"),
	}
	c.Group.GET("/health", c.Health)
	c.initAlertRoutes()
	c.initRuleRoutes()
	c.initEvaluationRoutes()
	return c
}

// Health reports service status.
func (c *Controller) Health(ctx echo.Context) error {
	if c.health != nil {
		if err := c.health(ctx.Request().Context()); err != nil {
			c.logger.Warn("health check failed", logger.Error(err))
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleError logs err and answers with message. Not found errors map to
// 404 regardless of code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if errors.CategoryOf(err) == errors.CategoryNotFound {
		code = http.StatusNotFound
	}
	if code >= http.StatusInternalServerError {
		c.logger.Error(message,
			logger.String("path", ctx.Path()),
			logger.Error(err))
	}
	return ctx.JSON(code, map[string]string{"error": message})
}

func badRequest(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusBadRequest, map[string]string{"error": message})
}

func notFound(ctx echo.Context, message string) error {
	return ctx.JSON(http.StatusNotFound, map[string]string{"error": message})
}

// parseUintParam parses a uint route parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

// parseUintQuery parses an optional uint query parameter; absent is 0.
func parseUintQuery(ctx echo.Context, name string) (uint, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

// pagination reads limit and offset, bounding limit to maxLimit.
func pagination(ctx echo.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && v > 0 {
		limit = min(v, maxLimit)
	}
	if v, err := strconv.Atoi(ctx.QueryParam("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
