// Package search finds supporting text passages for a query, either in the
// uploaded document corpus or in an external vector index.
package search

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/common"
)

// Match is one ranked passage returned by a search.
type Match struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Snippet      string  `json:"snippet"`
	Score        float64 `json:"score"`
}

// DocumentSearcher returns ranked text snippets for a query. Implementations
// must be safe for concurrent use.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]Match, error)
}

const snippetWidth = 120

var keywordRe = regexp.MustCompile(`\b\w{3,}\b`)

// CorpusSearcher scans the uploaded documents directly, scoring by keyword
// overlap. It is the default searcher when no vector index is configured.
type CorpusSearcher struct {
	documents []common.Document
}

func NewCorpusSearcher(documents []common.Document) *CorpusSearcher {
	return &CorpusSearcher{documents: documents}
}

// Search scores every document by the fraction of query keywords it contains
// and returns a snippet around the first keyword hit. No hit in any document
// returns an empty slice, not an error.
func (s *CorpusSearcher) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keywords := keywordRe.FindAllString(strings.ToLower(query), -1)
	if len(keywords) == 0 {
		return nil, nil
	}

	var matches []Match
	for _, doc := range s.documents {
		lower := strings.ToLower(doc.Text)
		hits := 0
		firstHit := -1
		for _, keyword := range keywords {
			idx := strings.Index(lower, keyword)
			if idx < 0 {
				continue
			}
			hits++
			if firstHit < 0 || idx < firstHit {
				firstHit = idx
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, Match{
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			Snippet:      util.Snippet(doc.Text, firstHit, firstHit, snippetWidth),
			Score:        float64(hits) / float64(len(keywords)),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
