package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/ping", func(c echo.Context) error {
		client, _ := ClientFromCtx(c)
		return c.String(http.StatusOK, client)
	}, mw...)
	return e
}

func get(e *echo.Echo, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyMiddleware(t *testing.T) {
	e := newEcho(APIKeyMiddleware(map[string]string{"billing": "k-billing", "crm": "k-crm"}))

	assert.Equal(t, http.StatusUnauthorized, get(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "nope").Code)

	rec := get(e, "k-crm")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "crm", rec.Body.String())
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rds.Close() })

	now := time.Unix(1_700_000_000, 0)
	e := newEcho(
		APIKeyMiddleware(map[string]string{"a": "ka", "b": "kb"}),
		RateLimitMiddleware(RateLimitConfig{
			Redis:          rds,
			RPS:            2,
			Window:         time.Second,
			RetryAfterHint: true,
			Now:            func() time.Time { return now },
		}),
	)

	assert.Equal(t, http.StatusOK, get(e, "ka").Code)
	assert.Equal(t, http.StatusOK, get(e, "ka").Code)
	rec := get(e, "ka")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// separate budget per client
	assert.Equal(t, http.StatusOK, get(e, "kb").Code)

	// next window
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, get(e, "ka").Code)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rds.Close() })
	mr.Close()

	e := newEcho(
		APIKeyMiddleware(map[string]string{"a": "ka"}),
		RateLimitMiddleware(RateLimitConfig{Redis: rds, RPS: 1}),
	)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, get(e, "ka").Code)
	}
}
