package common

import (
	"fmt"
	"strings"
)

// EntityType classifies a node in the knowledge graph. The set is sealed:
// extraction dispatches over a table keyed by these values, so adding a type
// means adding its pattern table as well.
type EntityType string

const (
	EntityControl     EntityType = "CONTROL"
	EntityRisk        EntityType = "RISK"
	EntityAsset       EntityType = "ASSET"
	EntityRequirement EntityType = "REQUIREMENT"
	EntityPolicy      EntityType = "POLICY"
	EntityPerson      EntityType = "PERSON"
	EntityStandard    EntityType = "STANDARD"
)

// EntityTypes lists all known entity types in extraction order.
var EntityTypes = []EntityType{
	EntityControl,
	EntityRisk,
	EntityAsset,
	EntityRequirement,
	EntityPolicy,
	EntityPerson,
	EntityStandard,
}

// Valid reports whether t is one of the sealed entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityControl, EntityRisk, EntityAsset, EntityRequirement,
		EntityPolicy, EntityPerson, EntityStandard:
		return true
	}
	return false
}

// RelationType classifies a directed edge between two entities.
type RelationType string

const (
	RelImplements RelationType = "IMPLEMENTS"
	RelMitigates  RelationType = "MITIGATES"
	RelRequires   RelationType = "REQUIRES"
	RelOwns       RelationType = "OWNS"
	RelAppliesTo  RelationType = "APPLIES_TO"
	RelRelatesTo  RelationType = "RELATES_TO"
)

// RelationTypes lists all known relationship types.
var RelationTypes = []RelationType{
	RelImplements,
	RelMitigates,
	RelRequires,
	RelOwns,
	RelAppliesTo,
	RelRelatesTo,
}

// Valid reports whether t is one of the sealed relationship types.
func (t RelationType) Valid() bool {
	switch t {
	case RelImplements, RelMitigates, RelRequires, RelOwns, RelAppliesTo, RelRelatesTo:
		return true
	}
	return false
}

// Source is a provenance record: where in which document an entity mention
// was found. Location is a character offset rendered as "offset:123" for text
// documents or a JSON path like "$.risks[2].id" for structured ones.
type Source struct {
	DocumentID string `json:"document_id"`
	Location   string `json:"location"`
	Snippet    string `json:"snippet"`
}

// Entity is a typed, normalized mention of a domain object. The ID is
// deterministic from (Type, NormalizedValue) so re-extraction of the same
// logical entity lands on the same node, with Sources unioned.
type Entity struct {
	ID              string     `json:"id"`
	Type            EntityType `json:"type"`
	NormalizedValue string     `json:"normalized_value"`
	RawValue        string     `json:"raw_value"`
	Sources         []Source   `json:"sources"`
	Confidence      float64    `json:"confidence"`
}

// EntityID derives the canonical identifier for an entity of the given type
// and normalized value. Spaces in the value are folded to underscores so the
// ID stays a single token, and the value segment is capped at 50 runes.
func EntityID(entityType EntityType, normalizedValue string) string {
	value := strings.ReplaceAll(normalizedValue, " ", "_")
	if runes := []rune(value); len(runes) > 50 {
		value = string(runes[:50])
	}
	return fmt.Sprintf("%s_%s", entityType, value)
}

// Relationship is a directed, evidenced edge between two entities. Multiple
// relationships may exist between the same ordered pair.
type Relationship struct {
	ID             string       `json:"id"`
	SourceEntityID string       `json:"source_entity_id"`
	TargetEntityID string       `json:"target_entity_id"`
	Type           RelationType `json:"type"`
	EvidenceText   string       `json:"evidence_text"`
	DocumentID     string       `json:"document_id"`
	Confidence     float64      `json:"confidence"`
}

// Document is the plain-text form of an uploaded file, produced by an
// out-of-process extractor. Structured holds the parsed JSON value when the
// document was JSON/JSONL; Text is always present otherwise.
type Document struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Text       string `json:"text"`
	Structured any    `json:"structured,omitempty"`
}

// Intent is the coarse question category detected by the router.
type Intent string

const (
	IntentList         Intent = "list"
	IntentExplain      Intent = "explain"
	IntentRelationship Intent = "relationship"
	IntentCompliance   Intent = "compliance"
	IntentImpact       Intent = "impact"
	IntentOther        Intent = "other"
)

// Query carries a question through routing and retrieval.
type Query struct {
	RawText          string   `json:"raw_text"`
	DetectedIntent   Intent   `json:"detected_intent"`
	MatchedEntityIDs []string `json:"matched_entity_ids"`
	ComplexityScore  int      `json:"complexity_score"`
}

// Statistics summarizes the graph for the stats endpoint and the
// queryStatistics tool.
type Statistics struct {
	EntityCount              int                  `json:"entity_count"`
	RelationshipCount        int                  `json:"relationship_count"`
	EntityCountsByType       map[EntityType]int   `json:"entity_counts_by_type"`
	RelationshipCountsByType map[RelationType]int `json:"relationship_counts_by_type"`
	Density                  float64              `json:"density"`
	ConnectedComponents      int                  `json:"connected_components"`
}
