package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trc-ai/riskgraph/internal/server/middleware"
)

// GetDocumentsHandler lists the documents currently loaded into the engine.
func GetDocumentsHandler(c echo.Context) error {
	type documentInfo struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		TextLength int    `json:"text_length"`
		Structured bool   `json:"structured"`
	}

	type getDocumentsResponse struct {
		Count     int            `json:"count"`
		Documents []documentInfo `json:"documents"`
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	registry := c.(*middleware.AppContext).App.Registry
	all := registry.All()
	infos := make([]documentInfo, 0, len(all))
	for _, doc := range all {
		infos = append(infos, documentInfo{
			ID:         doc.ID,
			Name:       doc.Name,
			TextLength: len(doc.Text),
			Structured: doc.Structured != nil,
		})
	}

	return c.JSON(http.StatusOK, getDocumentsResponse{
		Count:     len(infos),
		Documents: infos,
	})
}
