package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Eiffelllll/Activiti/internal/model"
	echo "github.com/labstack/echo/v4"
)

// CatchPoints is the command surface exposed over HTTP.
type CatchPoints interface {
	Enter(ctx context.Context, executionID string) error
	MessageEventReceived(ctx context.Context, messageName, executionID string, vars map[string]any) error
	Correlate(ctx context.Context, messageName string, key *string, vars map[string]any) (int, error)
	CancelByEventGateway(ctx context.Context, executionID string) error
	Subscriptions(ctx context.Context, executionID string) ([]model.EventSubscription, error)
}

type deliverReq struct {
	Variables map[string]any `json:"variables"`
}

type correlateReq struct {
	CorrelationKey *string        `json:"correlation_key"`
	Variables      map[string]any `json:"variables"`
}

func enterHandler(svc CatchPoints) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Param("id"))
		if err := svc.Enter(c.Request().Context(), id); err != nil {
			return errorResponse(c, err)
		}
		subs, err := svc.Subscriptions(c.Request().Context(), id)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"execution_id":  id,
			"waiting":       true,
			"subscriptions": subs,
		})
	}
}

func deliverHandler(svc CatchPoints) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req deliverReq
		if err := bindOptional(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		id := strings.TrimSpace(c.Param("id"))
		name := strings.TrimSpace(c.Param("name"))

		if err := svc.MessageEventReceived(c.Request().Context(), name, id, req.Variables); err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"execution_id": id,
			"message_name": name,
			"triggered":    true,
		})
	}
}

func correlateHandler(svc CatchPoints) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req correlateReq
		if err := bindOptional(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		name := strings.TrimSpace(c.Param("name"))

		n, err := svc.Correlate(c.Request().Context(), name, req.CorrelationKey, req.Variables)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"message_name":    name,
			"correlation_key": req.CorrelationKey,
			"triggered":       n,
		})
	}
}

func gatewayCancelHandler(svc CatchPoints) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Param("id"))
		if err := svc.CancelByEventGateway(c.Request().Context(), id); err != nil {
			return errorResponse(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func subscriptionsHandler(svc CatchPoints) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Param("id"))
		subs, err := svc.Subscriptions(c.Request().Context(), id)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"execution_id": id,
			"count":        len(subs),
			"results":      subs,
		})
	}
}

// bindOptional binds a JSON body when there is one; an empty body is fine.
func bindOptional(c echo.Context, dst any) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	return c.Bind(dst)
}

func errorResponse(c echo.Context, err error) error {
	var evalErr *model.EvaluationError
	switch {
	case errors.Is(err, model.ErrExecutionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "execution_not_found"})
	case errors.Is(err, model.ErrUnknownCatchPoint):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown_catch_point", "description": err.Error()})
	case errors.Is(err, model.ErrAlreadyWaiting):
		return c.JSON(http.StatusConflict, map[string]string{"error": "already_waiting"})
	case errors.Is(err, model.ErrNoMessageSubscription):
		return c.JSON(http.StatusConflict, map[string]string{"error": "no_message_subscription", "description": err.Error()})
	case errors.As(err, &evalErr):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"error":       "evaluation_failed",
			"expression":  evalErr.Expression,
			"description": evalErr.Err.Error(),
		})
	}
	c.Logger().Errorf("catch point command failed: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
