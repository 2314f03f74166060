package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trc-ai/riskgraph/internal/server/middleware"
)

// GetStatisticsHandler returns the graph summary.
func GetStatisticsHandler(c echo.Context) error {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	storage := c.(*middleware.AppContext).App.Store
	return c.JSON(http.StatusOK, storage.Statistics())
}
