package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"
)

// NotificationSwitch turns message-waiting notifications on and off at runtime.
type NotificationSwitch interface {
	Enabled() bool
	SetEnabled(bool)
}

type notificationsReq struct {
	Enabled *bool `json:"enabled"`
}

func getNotificationsHandler(sw NotificationSwitch) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"enabled": sw.Enabled()})
	}
}

func putNotificationsHandler(sw NotificationSwitch) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req notificationsReq
		if err := c.Bind(&req); err != nil || req.Enabled == nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		sw.SetEnabled(*req.Enabled)
		return c.JSON(http.StatusOK, map[string]bool{"enabled": sw.Enabled()})
	}
}
