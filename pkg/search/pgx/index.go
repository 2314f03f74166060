// Package pgx implements the external search index on PostgreSQL with
// pgvector. Document passages are embedded once at indexing time and ranked
// by cosine distance at query time.
package pgx

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/common"
	"github.com/trc-ai/riskgraph/pkg/search"
)

// passageSize is the character length of one indexed passage. Passages are
// cut on whitespace near the boundary so snippets stay readable.
const passageSize = 1000

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// Embedder turns text into a fixed-width vector. ai.ReasoningClient
// implementations satisfy it.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
}

// VectorIndex is a search.DocumentSearcher backed by a pgvector table.
type VectorIndex struct {
	conn     pgxIConn
	embedder Embedder
	dbLock   sync.Mutex
}

// NewVectorIndex wires an index to an existing connection or pool. Call
// EnsureSchema once before indexing.
func NewVectorIndex(conn pgxIConn, embedder Embedder) *VectorIndex {
	return &VectorIndex{conn: conn, embedder: embedder}
}

// EnsureSchema creates the pgvector extension and the passage table. The
// vector width follows AI_EMBED_DIM and must match the embedder's output.
func (x *VectorIndex) EnsureSchema(ctx context.Context) error {
	dim := util.GetEnvNumeric[int]("AI_EMBED_DIM", 4096)

	if _, err := x.conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	_, err := x.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS document_passages (
			id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			document_id   TEXT NOT NULL,
			document_name TEXT NOT NULL,
			passage       TEXT NOT NULL,
			embedding     vector(%d) NOT NULL
		)`, dim))
	if err != nil {
		return fmt.Errorf("failed to create passage table: %w", err)
	}
	return nil
}

// IndexDocument splits a document into passages, embeds each, and stores
// them. Re-indexing a document replaces its previous passages.
func (x *VectorIndex) IndexDocument(ctx context.Context, doc common.Document) error {
	passages := splitPassages(doc.Text)
	if len(passages) == 0 {
		return nil
	}

	embeddings := make([]pgvector.Vector, 0, len(passages))
	for _, passage := range passages {
		embedding, err := x.embedder.GenerateEmbedding(ctx, []byte(passage))
		if err != nil {
			return fmt.Errorf("failed to embed passage of document %s: %w", doc.ID, err)
		}
		embeddings = append(embeddings, pgvector.NewVector(embedding))
	}

	x.dbLock.Lock()
	defer x.dbLock.Unlock()

	if _, err := x.conn.Exec(ctx,
		`DELETE FROM document_passages WHERE document_id = $1`, doc.ID,
	); err != nil {
		return fmt.Errorf("failed to clear old passages of document %s: %w", doc.ID, err)
	}
	for i, passage := range passages {
		if _, err := x.conn.Exec(ctx, `
			INSERT INTO document_passages (document_id, document_name, passage, embedding)
			VALUES ($1, $2, $3, $4)`,
			doc.ID, doc.Name, passage, embeddings[i],
		); err != nil {
			return fmt.Errorf("failed to store passage of document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// RemoveDocument drops every indexed passage of a document.
func (x *VectorIndex) RemoveDocument(ctx context.Context, documentID string) error {
	x.dbLock.Lock()
	defer x.dbLock.Unlock()

	if _, err := x.conn.Exec(ctx,
		`DELETE FROM document_passages WHERE document_id = $1`, documentID,
	); err != nil {
		return fmt.Errorf("failed to remove passages of document %s: %w", documentID, err)
	}
	return nil
}

// Search embeds the query and returns the nearest passages by cosine
// distance, scored as 1 - distance.
func (x *VectorIndex) Search(ctx context.Context, query string, topK int) ([]search.Match, error) {
	if topK <= 0 {
		topK = 10
	}

	embedding, err := x.embedder.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := x.conn.Query(ctx, `
		SELECT document_id, document_name, passage, embedding <=> $1 AS distance
		FROM document_passages
		ORDER BY distance
		LIMIT $2`,
		pgvector.NewVector(embedding), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var matches []search.Match
	for rows.Next() {
		var m search.Match
		var distance float64
		if err := rows.Scan(&m.DocumentID, &m.DocumentName, &m.Snippet, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan passage row: %w", err)
		}
		m.Score = 1 - distance
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// splitPassages cuts text into roughly passageSize chunks on whitespace.
// When no space falls near the boundary the hard cut is moved back to the
// nearest rune start so passages stay valid UTF-8.
func splitPassages(text string) []string {
	text = util.NormalizeSpace(text)
	if text == "" {
		return nil
	}

	var passages []string
	for len(text) > passageSize {
		cut := passageSize
		for cut > passageSize/2 && text[cut] != ' ' {
			cut--
		}
		if text[cut] != ' ' {
			cut = passageSize
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		passages = append(passages, text[:cut])
		text = text[cut:]
		for len(text) > 0 && text[0] == ' ' {
			text = text[1:]
		}
	}
	if text != "" {
		passages = append(passages, text)
	}
	return passages
}
