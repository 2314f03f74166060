package memory

import (
	"fmt"
	"regexp"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/trc-ai/riskgraph/pkg/common"
	"github.com/trc-ai/riskgraph/pkg/store"
)

// GraphStore is the in-memory store.GraphStorage implementation. Entities
// live in an append-only arena indexed by canonical id; adjacency is kept as
// forward and backward edge-index lists per entity, so traversal never chases
// pointers and reads need no copying beyond the returned values.
type GraphStore struct {
	mu sync.RWMutex

	entities []common.Entity
	byID     map[string]int

	relationships []common.Relationship
	outgoing      map[int][]int
	incoming      map[int][]int
}

// NewGraphStore creates an empty graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		byID:     make(map[string]int),
		outgoing: make(map[int][]int),
		incoming: make(map[int][]int),
	}
}

// UpsertEntity inserts e or merges it into the existing node with the same
// (type, normalized value). Sources are unioned by (document, location) and
// the higher confidence wins. Returns the canonical entity id.
func (g *GraphStore) UpsertEntity(e common.Entity) (string, error) {
	if !e.Type.Valid() {
		return "", fmt.Errorf("upsert entity: unknown entity type %q", e.Type)
	}
	if e.NormalizedValue == "" {
		return "", fmt.Errorf("upsert entity: empty normalized value")
	}
	id := common.EntityID(e.Type, e.NormalizedValue)

	g.mu.Lock()
	defer g.mu.Unlock()

	idx, exists := g.byID[id]
	if !exists {
		e.ID = id
		g.byID[id] = len(g.entities)
		g.entities = append(g.entities, e)
		return id, nil
	}

	existing := &g.entities[idx]
	for _, src := range e.Sources {
		if !hasSource(existing.Sources, src) {
			existing.Sources = append(existing.Sources, src)
		}
	}
	if e.Confidence > existing.Confidence {
		existing.Confidence = e.Confidence
	}
	return id, nil
}

func hasSource(sources []common.Source, src common.Source) bool {
	for _, s := range sources {
		if s.DocumentID == src.DocumentID && s.Location == src.Location {
			return true
		}
	}
	return false
}

// AddRelationship appends r as a new edge. Both endpoints must already be in
// the store; otherwise store.ErrGraphInconsistency is returned. Parallel
// edges between the same pair are kept.
func (g *GraphStore) AddRelationship(r common.Relationship) error {
	if !r.Type.Valid() {
		return fmt.Errorf("add relationship: unknown relationship type %q", r.Type)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	srcIdx, srcOK := g.byID[r.SourceEntityID]
	tgtIdx, tgtOK := g.byID[r.TargetEntityID]
	if !srcOK || !tgtOK {
		return fmt.Errorf("add relationship %s -> %s: %w", r.SourceEntityID, r.TargetEntityID, store.ErrGraphInconsistency)
	}

	if r.ID == "" {
		r.ID = gonanoid.Must()
	}
	edgeIdx := len(g.relationships)
	g.relationships = append(g.relationships, r)
	g.outgoing[srcIdx] = append(g.outgoing[srcIdx], edgeIdx)
	g.incoming[tgtIdx] = append(g.incoming[tgtIdx], edgeIdx)
	return nil
}

// GetEntity looks up an entity by its canonical id.
func (g *GraphStore) GetEntity(id string) (common.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.byID[id]
	if !ok {
		return common.Entity{}, false
	}
	return g.entities[idx], true
}

// QueryEntities filters entities by type and by a case-insensitive regular
// expression matched against the normalized and raw values. Empty filters
// match everything; no match returns an empty slice.
func (g *GraphStore) QueryEntities(typeFilter common.EntityType, valuePattern string) ([]common.Entity, error) {
	var re *regexp.Regexp
	if valuePattern != "" {
		var err error
		re, err = regexp.Compile("(?i)" + valuePattern)
		if err != nil {
			return nil, fmt.Errorf("query entities: invalid value pattern: %w", err)
		}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	results := []common.Entity{}
	for _, e := range g.entities {
		if typeFilter != "" && e.Type != typeFilter {
			continue
		}
		if re != nil && !re.MatchString(e.NormalizedValue) && !re.MatchString(e.RawValue) {
			continue
		}
		results = append(results, e)
	}
	return results, nil
}

// RelationshipsOf returns all edges where entityID is the source and all
// edges where it is the target.
func (g *GraphStore) RelationshipsOf(entityID string) (outgoing, incoming []common.Relationship) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.byID[entityID]
	if !ok {
		return nil, nil
	}
	for _, edgeIdx := range g.outgoing[idx] {
		outgoing = append(outgoing, g.relationships[edgeIdx])
	}
	for _, edgeIdx := range g.incoming[idx] {
		incoming = append(incoming, g.relationships[edgeIdx])
	}
	return outgoing, incoming
}

// Entities returns a copy of all entities in insertion order.
func (g *GraphStore) Entities() []common.Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]common.Entity, len(g.entities))
	copy(out, g.entities)
	return out
}

// Relationships returns a copy of all edges in insertion order.
func (g *GraphStore) Relationships() []common.Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]common.Relationship, len(g.relationships))
	copy(out, g.relationships)
	return out
}

// Statistics counts entities and relationships per type and computes the
// directed graph density and the number of weakly-connected components.
func (g *GraphStore) Statistics() common.Statistics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := common.Statistics{
		EntityCount:              len(g.entities),
		RelationshipCount:        len(g.relationships),
		EntityCountsByType:       make(map[common.EntityType]int),
		RelationshipCountsByType: make(map[common.RelationType]int),
	}
	for _, e := range g.entities {
		stats.EntityCountsByType[e.Type]++
	}
	for _, r := range g.relationships {
		stats.RelationshipCountsByType[r.Type]++
	}

	n := len(g.entities)
	if n > 1 {
		stats.Density = float64(len(g.relationships)) / float64(n*(n-1))
	}
	stats.ConnectedComponents = g.countComponents()
	return stats
}

// countComponents counts weakly-connected components via union-find over the
// edge list. Caller must hold at least a read lock.
func (g *GraphStore) countComponents() int {
	n := len(g.entities)
	if n == 0 {
		return 0
	}
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	components := n
	for _, r := range g.relationships {
		a := find(g.byID[r.SourceEntityID])
		b := find(g.byID[r.TargetEntityID])
		if a != b {
			parent[a] = b
			components--
		}
	}
	return components
}
