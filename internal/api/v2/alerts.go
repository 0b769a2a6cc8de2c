package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/errors"
	"github.com/faultwatch/faultwatch/internal/logger"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
	maxLogLimit       = 200
)

// initAlertRoutes registers alert endpoints.
func (c *Controller) initAlertRoutes() {
	alerts := c.Group.Group("/alerts")
	alerts.GET("", c.ListAlerts)
	alerts.GET("/:id", c.GetAlert)
	alerts.GET("/:id/log", c.ListAlertLog)
	alerts.PUT("/:id/ack", c.AcknowledgeAlert)
	alerts.PUT("/:id/unack", c.UnacknowledgeAlert)
}

// ListAlerts returns live alerts, optionally filtered by device, rule,
// state and open flag.
func (c *Controller) ListAlerts(ctx echo.Context) error {
	filter := repository.AlertFilter{}
	var err error
	if filter.DeviceID, err = parseUintQuery(ctx, "device_id"); err != nil {
		return badRequest(ctx, "Invalid device_id")
	}
	if filter.RuleID, err = parseUintQuery(ctx, "rule_id"); err != nil {
		return badRequest(ctx, "Invalid rule_id")
	}
	if raw := ctx.QueryParam("state"); raw != "" {
		state, err := entities.ParseAlertState(raw)
		if err != nil {
			return badRequest(ctx, "Invalid state")
		}
		filter.State = &state
	}
	if raw := ctx.QueryParam("open"); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(ctx, "Invalid open")
		}
		filter.Open = &open
	}
	filter.Limit, filter.Offset = pagination(ctx, defaultAlertLimit, maxAlertLimit)

	items, total, err := c.alerts.ListAlerts(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alerts", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"alerts": items,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetAlert returns one alert by id.
func (c *Controller) GetAlert(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid alert ID")
	}
	alert, err := c.alerts.GetAlertByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return notFound(ctx, "Alert not found")
		}
		return c.HandleError(ctx, err, "Failed to get alert", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// logEntryResponse is an alert log entry with its details decoded.
type logEntryResponse struct {
	entities.AlertLog
	Details *entities.AlertDetails `json:"details"`
}

// ListAlertLog returns the transition history of an alert, newest first.
func (c *Controller) ListAlertLog(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid alert ID")
	}
	reqCtx := ctx.Request().Context()
	alert, err := c.alerts.GetAlertByID(reqCtx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return notFound(ctx, "Alert not found")
		}
		return c.HandleError(ctx, err, "Failed to get alert", http.StatusInternalServerError)
	}

	filter := repository.AlertLogFilter{DeviceID: alert.DeviceID, RuleID: alert.RuleID}
	filter.Limit, filter.Offset = pagination(ctx, defaultAlertLimit, maxLogLimit)
	entries, total, err := c.alerts.ListLogs(reqCtx, filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alert log", http.StatusInternalServerError)
	}

	out := make([]logEntryResponse, 0, len(entries))
	for i := range entries {
		details, err := entities.DecodeDetails(entries[i].Details)
		if err != nil {
			c.logger.Warn("unreadable alert log details",
				logger.Uint64("log_id", uint64(entries[i].ID)),
				logger.Error(err))
			details = nil
		}
		out = append(out, logEntryResponse{AlertLog: entries[i], Details: details})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"log":    out,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

type ackRequest struct {
	Note       string `json:"note"`
	UntilClear bool   `json:"until_clear"`
	By         string `json:"by"`
}

// AcknowledgeAlert acknowledges an alert. With until_clear the alert stays
// acknowledged through later changes until it clears.
func (c *Controller) AcknowledgeAlert(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid alert ID")
	}
	var body ackRequest
	if err := ctx.Bind(&body); err != nil {
		return badRequest(ctx, "Invalid request body")
	}

	alert, err := c.alerts.Acknowledge(ctx.Request().Context(), id, repository.Acknowledgement{
		Note:       body.Note,
		UntilClear: body.UntilClear,
		By:         body.By,
	})
	switch {
	case errors.Is(err, repository.ErrAlertNotFound):
		return notFound(ctx, "Alert not found")
	case errors.Is(err, repository.ErrNotFaulting):
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "Alert is not faulting"})
	case err != nil:
		return c.HandleError(ctx, err, "Failed to acknowledge alert", http.StatusInternalServerError)
	}

	c.logger.Info("alert acknowledged",
		logger.Uint64("alert_id", uint64(alert.ID)),
		logger.Bool("until_clear", body.UntilClear),
		logger.String("by", body.By))
	return ctx.JSON(http.StatusOK, alert)
}

// UnacknowledgeAlert returns an acknowledged alert to its faulting state.
func (c *Controller) UnacknowledgeAlert(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid alert ID")
	}
	alert, err := c.alerts.Unacknowledge(ctx.Request().Context(), id)
	switch {
	case errors.Is(err, repository.ErrAlertNotFound):
		return notFound(ctx, "Alert not found")
	case errors.Is(err, repository.ErrNotAcknowledged):
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "Alert is not acknowledged"})
	case err != nil:
		return c.HandleError(ctx, err, "Failed to unacknowledge alert", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, alert)
}
