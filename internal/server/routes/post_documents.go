package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/trc-ai/riskgraph/internal/queue"
	"github.com/trc-ai/riskgraph/internal/server/middleware"
	"github.com/trc-ai/riskgraph/pkg/docs"
	"github.com/trc-ai/riskgraph/pkg/logger"
)

// PostDocumentsHandler accepts a multipart batch of documents, stores the
// files, and queues an asynchronous graph build. The response is returned
// before the build runs.
func PostDocumentsHandler(c echo.Context) error {
	type postDocumentsResponse struct {
		Message   string              `json:"message"`
		BatchID   string              `json:"batch_id,omitempty"`
		Documents []queue.DocumentRef `json:"documents,omitempty"`
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, postDocumentsResponse{
			Message: "Invalid request body",
		})
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		return c.JSON(http.StatusBadRequest, postDocumentsResponse{
			Message: "No files provided",
		})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	refs := make([]queue.DocumentRef, 0, len(uploads))
	for _, file := range uploads {
		src, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, postDocumentsResponse{
				Message: "Could not open file",
			})
		}
		defer src.Close()

		docID, err := gonanoid.New()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, postDocumentsResponse{
				Message: "Internal server error",
			})
		}
		key, err := docs.PutFile(ctx, app.S3, file.Filename, docID, src)
		if err != nil {
			logger.Error("Failed to upload file", "err", err)
			return c.JSON(http.StatusInternalServerError, postDocumentsResponse{
				Message: "Internal server error",
			})
		}
		refs = append(refs, queue.DocumentRef{
			DocumentID: docID,
			Key:        key,
			Name:       file.Filename,
		})
	}

	batchID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, postDocumentsResponse{
			Message: "Internal server error",
		})
	}

	job := queue.BuildJobMsg{BatchID: batchID, Documents: refs}
	body, err := json.Marshal(job)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, postDocumentsResponse{
			Message: "Internal server error",
		})
	}
	if err := queue.PublishFIFO(app.Queue, queue.BuildQueue, body); err != nil {
		logger.Error("Failed to publish build job", "err", err)
		return c.JSON(http.StatusInternalServerError, postDocumentsResponse{
			Message: "Internal server error",
		})
	}

	// Embedding jobs only matter when an external index is configured.
	if app.External != nil {
		for _, ref := range refs {
			indexBody, err := json.Marshal(queue.IndexJobMsg{Document: ref})
			if err != nil {
				continue
			}
			if err := queue.PublishFIFO(app.Queue, queue.IndexQueue, indexBody); err != nil {
				logger.Error("Failed to publish index job", "document_id", ref.DocumentID, "err", err)
			}
		}
	}

	return c.JSON(http.StatusAccepted, postDocumentsResponse{
		Message:   "Documents queued for graph build",
		BatchID:   batchID,
		Documents: refs,
	})
}
