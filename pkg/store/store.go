package store

import (
	"errors"

	"github.com/trc-ai/riskgraph/pkg/common"
)

// ErrGraphInconsistency is returned when a relationship references an entity
// id that is not present in the store. The build drops such edges instead of
// aborting.
var ErrGraphInconsistency = errors.New("relationship references unknown entity")

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirectionOut  Direction = "outgoing"
	DirectionIn   Direction = "incoming"
	DirectionBoth Direction = "both"
)

// Related describes one entity reached during traversal, along with the edge
// that first led to it and the node path from the start entity.
type Related struct {
	Entity       common.Entity       `json:"entity"`
	Depth        int                 `json:"depth"`
	RelationType common.RelationType `json:"relation_type"`
	Direction    Direction           `json:"direction"`
	Confidence   float64             `json:"confidence"`
	Path         []string            `json:"path"`
}

// GraphStorage defines the interface for holding and querying a knowledge
// graph. The build phase writes through UpsertEntity/AddRelationship under a
// single-writer discipline; afterwards the store is read-mostly and all read
// methods are safe for concurrent use.
type GraphStorage interface {
	// UpsertEntity inserts e or, when an entity with the same
	// (type, normalized value) already exists, unions the sources and keeps
	// the higher confidence. Returns the canonical entity id.
	UpsertEntity(e common.Entity) (string, error)

	// AddRelationship appends r. Both endpoints must already exist;
	// otherwise ErrGraphInconsistency is returned and nothing is stored.
	// Duplicate edges between the same ordered pair are permitted.
	AddRelationship(r common.Relationship) error

	// GetEntity looks up an entity by its canonical id.
	GetEntity(id string) (common.Entity, bool)

	// QueryEntities returns entities matching the optional type filter and
	// the optional case-insensitive value pattern (a regular expression
	// matched against the normalized and raw values). No match returns an
	// empty slice, not an error.
	QueryEntities(typeFilter common.EntityType, valuePattern string) ([]common.Entity, error)

	// GetRelated expands breadth-first from entityID up to maxDepth hops,
	// following edges per direction. Each entity is reported once, at the
	// depth it was first reached. maxDepth <= 0 returns an empty slice.
	// maxNodes bounds the number of explored nodes; 0 means the default cap.
	GetRelated(entityID string, maxDepth int, direction Direction, maxNodes int) []Related

	// RelationshipsOf returns all edges where entityID is the source
	// (outgoing) and where it is the target (incoming).
	RelationshipsOf(entityID string) (outgoing, incoming []common.Relationship)

	// Entities returns all entities in insertion order.
	Entities() []common.Entity

	// Relationships returns all edges in insertion order.
	Relationships() []common.Relationship

	// FindPath searches for a shortest path between two entities within
	// maxDepth hops, treating edges as undirected. It returns the path as
	// ordered steps and false when no path exists within the bound.
	FindPath(fromID, toID string, maxDepth int) ([]PathStep, bool)

	// Statistics summarizes the graph: counts per type, density, and
	// weakly-connected component count.
	Statistics() common.Statistics
}

// PathStep is one hop of a relationship path: the edge taken and the entities
// on both ends, ordered from the start entity towards the goal.
type PathStep struct {
	From     common.Entity       `json:"from"`
	Relation common.Relationship `json:"relation"`
	To       common.Entity       `json:"to"`
}
