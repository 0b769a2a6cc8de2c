package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/errors"
	"github.com/faultwatch/faultwatch/internal/logger"
)

// initEvaluationRoutes registers on-demand evaluation endpoints. They are
// absent when the controller has no evaluator.
func (c *Controller) initEvaluationRoutes() {
	if c.evaluator == nil {
		return
	}
	c.Group.POST("/devices/:id/evaluate", c.EvaluateDevice)
	c.Group.POST("/rules/cache/flush", c.FlushRuleCache)
}

// EvaluateDevice runs every rule of a device now and returns the run
// summary. Rule failures are reported in the summary, not as an error.
func (c *Controller) EvaluateDevice(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid device ID")
	}
	reqCtx := ctx.Request().Context()
	if _, err := c.devices.GetDevice(reqCtx, id); err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return notFound(ctx, "Device not found")
		}
		return c.HandleError(ctx, err, "Failed to get device", http.StatusInternalServerError)
	}

	sum, err := c.evaluator.RunRules(reqCtx, id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to evaluate device", http.StatusInternalServerError)
	}
	c.logger.Info("device evaluated on request",
		logger.Uint64("device_id", uint64(id)),
		logger.String("run_id", sum.RunID),
		logger.Int("rules", len(sum.Results)))
	return ctx.JSON(http.StatusOK, sum)
}

// FlushRuleCache forgets memoized device rule sets, e.g. after rules or
// their mappings were edited. With device_id only that device is
// forgotten.
func (c *Controller) FlushRuleCache(ctx echo.Context) error {
	deviceID, err := parseUintQuery(ctx, "device_id")
	if err != nil {
		return badRequest(ctx, "Invalid device_id")
	}
	cache := c.evaluator.Cache()
	before := cache.Len()
	if deviceID > 0 {
		cache.Invalidate(deviceID)
	} else {
		cache.Flush()
	}
	return ctx.JSON(http.StatusOK, map[string]int{"flushed": before - cache.Len()})
}
