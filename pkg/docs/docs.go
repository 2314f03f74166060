package docs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/trc-ai/riskgraph/pkg/common"
)

// Parse turns raw file bytes into a Document. Files with a .json extension
// (or whose content parses as a JSON object/array) additionally carry the
// decoded value in Structured so the extractor can walk it.
func Parse(id, name string, data []byte) (common.Document, error) {
	if !utf8.Valid(data) {
		return common.Document{}, fmt.Errorf("document %s is not valid UTF-8 text", name)
	}

	doc := common.Document{
		ID:   id,
		Name: name,
		Text: string(data),
	}

	if looksStructured(name, data) {
		// A file that does not parse as JSON is still usable as text.
		var value any
		if err := json.Unmarshal(data, &value); err == nil {
			doc.Structured = value
		}
	}

	return doc, nil
}

func looksStructured(name string, data []byte) bool {
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		return true
	}
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// Registry holds the documents currently loaded into the engine. It backs
// both the snippet searcher and graph rebuilds, and is safe for concurrent
// use.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]common.Document
}

func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]common.Document)}
}

// Add registers or replaces a document under its ID.
func (r *Registry) Add(doc common.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
}

// Remove drops a document. It reports whether the document was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.docs[id]
	delete(r.docs, id)
	return ok
}

// Get returns the document with the given ID.
func (r *Registry) Get(id string) (common.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	return doc, ok
}

// All returns every registered document, ordered by ID.
func (r *Registry) All() []common.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]common.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		all = append(all, doc)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Len returns the number of registered documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}
