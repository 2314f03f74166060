package server

import (
	"github.com/labstack/echo/v4"

	"github.com/trc-ai/riskgraph/internal/server/middleware"
	"github.com/trc-ai/riskgraph/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Document routes
	apiRoutes.GET("/documents", routes.GetDocumentsHandler)
	apiRoutes.POST("/documents", routes.PostDocumentsHandler)
	apiRoutes.DELETE("/documents/:id", routes.DeleteDocumentHandler, middleware.RequireRole("admin"))

	// Query routes
	apiRoutes.POST("/query", routes.PostQueryHandler)

	// Graph routes
	apiRoutes.GET("/statistics", routes.GetStatisticsHandler)
	apiRoutes.GET("/export", routes.GetExportHandler)
}
