package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Eiffelllll/Activiti/internal/repository"
	echo "github.com/labstack/echo/v4"
)

func listWaitingHandler(chRepo repository.CHWaitingRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		rows, err := chRepo.List(
			c.Request().Context(),
			strings.TrimSpace(c.QueryParam("process_instance_id")),
			strings.TrimSpace(c.QueryParam("message_name")),
			limit,
			offset,
		)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
