package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/errors"
)

// initRuleRoutes registers read-only rule endpoints.
func (c *Controller) initRuleRoutes() {
	rules := c.Group.Group("/rules")
	rules.GET("", c.ListRules)
	rules.GET("/:id", c.GetRule)
}

// ruleResponse is a rule with its extra metadata decoded.
type ruleResponse struct {
	entities.AlertRule
	Extras entities.RuleExtra `json:"extras"`
}

func newRuleResponse(rule *entities.AlertRule) ruleResponse {
	return ruleResponse{AlertRule: *rule, Extras: rule.Extras()}
}

// ListRules returns alert rules, optionally filtered by disabled flag,
// severity and name.
func (c *Controller) ListRules(ctx echo.Context) error {
	filter := repository.AlertRuleFilter{
		Severity: ctx.QueryParam("severity"),
		Name:     ctx.QueryParam("name"),
	}
	if raw := ctx.QueryParam("disabled"); raw != "" {
		disabled, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(ctx, "Invalid disabled")
		}
		filter.Disabled = &disabled
	}

	rules, err := c.rules.ListRules(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list rules", http.StatusInternalServerError)
	}
	out := make([]ruleResponse, 0, len(rules))
	for i := range rules {
		out = append(out, newRuleResponse(&rules[i]))
	}
	return ctx.JSON(http.StatusOK, map[string]any{"rules": out, "total": len(out)})
}

// GetRule returns one rule with its scope mappings.
func (c *Controller) GetRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return badRequest(ctx, "Invalid rule ID")
	}
	rule, err := c.rules.GetRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertRuleNotFound) {
			return notFound(ctx, "Rule not found")
		}
		return c.HandleError(ctx, err, "Failed to get rule", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, newRuleResponse(rule))
}
