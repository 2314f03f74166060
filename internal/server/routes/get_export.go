package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trc-ai/riskgraph/internal/server/middleware"
	"github.com/trc-ai/riskgraph/pkg/common"
)

// GetExportHandler dumps the full graph as JSON.
func GetExportHandler(c echo.Context) error {
	type exportResponse struct {
		Entities      []common.Entity       `json:"entities"`
		Relationships []common.Relationship `json:"relationships"`
		Statistics    common.Statistics     `json:"statistics"`
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	storage := c.(*middleware.AppContext).App.Store
	return c.JSON(http.StatusOK, exportResponse{
		Entities:      storage.Entities(),
		Relationships: storage.Relationships(),
		Statistics:    storage.Statistics(),
	})
}
