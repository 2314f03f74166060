package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/common"
	"github.com/trc-ai/riskgraph/pkg/logger"
	"github.com/trc-ai/riskgraph/pkg/store"
)

// Builder turns a batch of documents into graph content. Documents are
// extracted in parallel; merging into the store is serialized through a
// single mutex so the store only ever sees one writer.
type Builder struct {
	extractor    *Extractor
	detector     *Detector
	parallelDocs int
}

// BuildResult summarizes one build run.
type BuildResult struct {
	Documents        int `json:"documents"`
	SkippedDocuments int `json:"skipped_documents"`
	Entities         int `json:"entities"`
	Relationships    int `json:"relationships"`
	DroppedEdges     int `json:"dropped_edges"`
}

// NewBuilder creates a Builder. parallelDocs <= 0 reads the limit from the
// BUILD_PARALLEL_DOCS environment variable, defaulting to 4.
func NewBuilder(parallelDocs int) *Builder {
	if parallelDocs <= 0 {
		parallelDocs = int(util.GetEnvNumeric("BUILD_PARALLEL_DOCS", 4))
	}
	return &Builder{
		extractor:    NewExtractor(),
		detector:     NewDetector(),
		parallelDocs: parallelDocs,
	}
}

// Extractor exposes the builder's extractor so the retriever can run the
// same matchers against query text.
func (b *Builder) Extractor() *Extractor {
	return b.extractor
}

// Build extracts entities and relationships from every document and merges
// them into storage. A document whose content cannot be processed is logged
// and skipped; a relationship with a missing endpoint is logged and dropped.
// Neither aborts the build.
func (b *Builder) Build(ctx context.Context, documents []common.Document, storage store.GraphStorage) (BuildResult, error) {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.parallelDocs)
	mutex := sync.Mutex{}

	logger.Info("[Build] Processing", "total_documents", len(documents))

	result := BuildResult{Documents: len(documents)}
	for _, document := range documents {
		doc := document
		eg.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			candidates, err := b.extractor.ExtractDocument(doc)
			if err != nil {
				var extractionErr *ExtractionError
				if errors.As(err, &extractionErr) {
					logger.Warn("[Build] Skipping document", "document_id", doc.ID, "error", err)
					mutex.Lock()
					result.SkippedDocuments++
					mutex.Unlock()
					return nil
				}
				return err
			}
			relationships := b.detector.Detect(candidates, doc.Text, doc.ID)

			mutex.Lock()
			defer mutex.Unlock()

			for _, candidate := range candidates {
				if _, err := storage.UpsertEntity(candidate.Entity); err != nil {
					return fmt.Errorf("failed to upsert entity %s: %w", candidate.Entity.ID, err)
				}
				result.Entities++
			}
			for _, relationship := range relationships {
				err := storage.AddRelationship(relationship)
				if errors.Is(err, store.ErrGraphInconsistency) {
					logger.Warn("[Build] Dropping edge with unknown endpoint",
						"source", relationship.SourceEntityID,
						"target", relationship.TargetEntityID,
						"document_id", doc.ID)
					result.DroppedEdges++
					continue
				}
				if err != nil {
					return fmt.Errorf("failed to add relationship: %w", err)
				}
				result.Relationships++
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return result, fmt.Errorf("failed to build graph:\n%w", err)
	}

	logger.Info("[Build] Completed",
		"entities", result.Entities,
		"relationships", result.Relationships,
		"skipped_documents", result.SkippedDocuments,
		"dropped_edges", result.DroppedEdges)
	return result, nil
}
