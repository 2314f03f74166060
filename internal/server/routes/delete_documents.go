package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trc-ai/riskgraph/internal/queue"
	"github.com/trc-ai/riskgraph/internal/server/middleware"
	"github.com/trc-ai/riskgraph/pkg/docs"
	"github.com/trc-ai/riskgraph/pkg/logger"
)

// DeleteDocumentHandler unregisters a document and queues removal of its
// file and indexed passages. Graph content derived from the document remains
// until the next build batch rebuilds the graph.
func DeleteDocumentHandler(c echo.Context) error {
	type deleteDocumentParams struct {
		DocumentID string `param:"id" validate:"required"`
	}

	type deleteDocumentResponse struct {
		Message    string `json:"message"`
		DocumentID string `json:"document_id,omitempty"`
	}

	params := new(deleteDocumentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteDocumentResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteDocumentResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	doc, ok := app.Registry.Get(params.DocumentID)
	if !ok {
		return c.JSON(http.StatusNotFound, deleteDocumentResponse{
			Message: "Document not found",
		})
	}
	app.Registry.Remove(params.DocumentID)

	// The stored key carries the original extension, so resolve it by prefix.
	keys, err := docs.ListFileKeys(ctx, app.S3, "documents/"+params.DocumentID+".")
	if err != nil || len(keys) == 0 {
		logger.Error("Failed to resolve document key", "document_id", params.DocumentID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteDocumentResponse{
			Message: "Internal server error",
		})
	}

	job := queue.DeleteJobMsg{Document: queue.DocumentRef{
		DocumentID: doc.ID,
		Key:        keys[0],
		Name:       doc.Name,
	}}
	body, err := json.Marshal(job)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, deleteDocumentResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.DeleteQueue, body); err != nil {
		logger.Error("Failed to publish delete job", "err", err)
		return c.JSON(http.StatusInternalServerError, deleteDocumentResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, deleteDocumentResponse{
		Message:    "Document removal queued",
		DocumentID: doc.ID,
	})
}
