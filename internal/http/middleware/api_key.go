package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

const ctxClient = "client"

// ClientFromCtx returns the client name set by APIKeyMiddleware.
func ClientFromCtx(c echo.Context) (string, bool) {
	v, ok := c.Get(ctxClient).(string)
	return v, ok && v != ""
}

// APIKeyMiddleware authenticates requests using the X-API-Key header against
// the configured client keys (client name -> key).
func APIKeyMiddleware(keys map[string]string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			client, ok := lookup(keys, key)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set(ctxClient, client)
			return next(c)
		}
	}
}

func lookup(keys map[string]string, key string) (string, bool) {
	for client, k := range keys {
		if k != "" && subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return client, true
		}
	}
	return "", false
}
