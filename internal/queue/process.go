package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/trc-ai/riskgraph/pkg/common"
	"github.com/trc-ai/riskgraph/pkg/docs"
	"github.com/trc-ai/riskgraph/pkg/graph"
	"github.com/trc-ai/riskgraph/pkg/logger"
	searchpgx "github.com/trc-ai/riskgraph/pkg/search/pgx"
	"github.com/trc-ai/riskgraph/pkg/store"
)

// ProcessBuildMessage loads every document of a build job from S3, registers
// it, and merges the batch into the graph. Runs inside the API server so the
// in-memory graph it writes is the one queries read.
func ProcessBuildMessage(
	ctx context.Context,
	s3Client *s3.Client,
	registry *docs.Registry,
	builder *graph.Builder,
	storage store.GraphStorage,
	body []byte,
) error {
	var job BuildJobMsg
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("invalid build job: %w", err)
	}

	batch := make([]common.Document, 0, len(job.Documents))
	for _, ref := range job.Documents {
		data, err := docs.GetFile(ctx, s3Client, ref.Key)
		if err != nil {
			return fmt.Errorf("failed to load document %s: %w", ref.DocumentID, err)
		}
		doc, err := docs.Parse(ref.DocumentID, ref.Name, data)
		if err != nil {
			logger.Warn("[Queue] Skipping unreadable document",
				"batch", job.BatchID, "document_id", ref.DocumentID, "err", err)
			continue
		}
		registry.Add(doc)
		batch = append(batch, doc)
	}

	result, err := builder.Build(ctx, batch, storage)
	if err != nil {
		return fmt.Errorf("build of batch %s failed: %w", job.BatchID, err)
	}

	logger.Info("[Queue] Build batch merged",
		"batch", job.BatchID,
		"documents", result.Documents,
		"entities", result.Entities,
		"relationships", result.Relationships)
	return nil
}

// ProcessIndexMessage embeds one document into the external vector index.
// Runs in the worker.
func ProcessIndexMessage(
	ctx context.Context,
	s3Client *s3.Client,
	index *searchpgx.VectorIndex,
	body []byte,
) error {
	var job IndexJobMsg
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("invalid index job: %w", err)
	}

	data, err := docs.GetFile(ctx, s3Client, job.Document.Key)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", job.Document.DocumentID, err)
	}
	doc, err := docs.Parse(job.Document.DocumentID, job.Document.Name, data)
	if err != nil {
		return fmt.Errorf("failed to parse document %s: %w", job.Document.DocumentID, err)
	}

	if err := index.IndexDocument(ctx, doc); err != nil {
		return err
	}
	logger.Info("[Queue] Document indexed", "document_id", doc.ID, "name", doc.Name)
	return nil
}

// ProcessDeleteMessage removes a document's file from S3 and its passages
// from the external index. Runs in the worker.
func ProcessDeleteMessage(
	ctx context.Context,
	s3Client *s3.Client,
	index *searchpgx.VectorIndex,
	body []byte,
) error {
	var job DeleteJobMsg
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("invalid delete job: %w", err)
	}

	if err := docs.DeleteFile(ctx, s3Client, job.Document.Key); err != nil {
		return err
	}
	if index != nil {
		if err := index.RemoveDocument(ctx, job.Document.DocumentID); err != nil {
			return err
		}
	}
	logger.Info("[Queue] Document deleted", "document_id", job.Document.DocumentID)
	return nil
}
