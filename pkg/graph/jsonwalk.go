package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/trc-ai/riskgraph/pkg/common"
)

// structuredConfidence is assigned to entities taken from structured data.
// A key like "risk_id" is a stronger signal than a free-text pattern hit.
const structuredConfidence = 0.95

// jsonKeyTable maps key-name fragments to entity types. A key matches when
// it contains any of the fragments, checked in entity-type table order.
var jsonKeyTable = []struct {
	entityType common.EntityType
	keywords   []string
}{
	{common.EntityControl, []string{"control", "controls", "control_id", "control_name"}},
	{common.EntityRisk, []string{"risk", "risks", "risk_id", "risk_level", "severity"}},
	{common.EntityAsset, []string{"asset", "assets", "asset_type", "resource"}},
	{common.EntityRequirement, []string{"requirement", "requirements", "req_id"}},
	{common.EntityPolicy, []string{"policy", "policies", "policy_id"}},
	{common.EntityPerson, []string{"owner", "responsible", "assignee", "manager"}},
	{common.EntityStandard, []string{"standard", "framework", "compliance"}},
}

// ExtractJSON walks structured data recursively and emits a candidate for
// every scalar value whose key name indicates an entity type. The JSON path
// of the value is recorded as the source location. Structured candidates
// carry no text position and therefore never participate in proximity-based
// relationship detection.
func (x *Extractor) ExtractJSON(data any, documentID string) []Candidate {
	var candidates []Candidate
	walkJSON(data, "", func(path string, key string, value any) {
		entityType, ok := entityTypeForKey(key)
		if !ok {
			return
		}
		scalar, ok := scalarString(value)
		if !ok {
			return
		}
		normalized := normalizeValue(entityType, scalar)
		if normalized == "" {
			return
		}
		candidates = append(candidates, Candidate{
			Entity: common.Entity{
				ID:              common.EntityID(entityType, normalized),
				Type:            entityType,
				NormalizedValue: normalized,
				RawValue:        scalar,
				Sources: []common.Source{{
					DocumentID: documentID,
					Location:   path,
					Snippet:    fmt.Sprintf("From JSON path: %s", path),
				}},
				Confidence: structuredConfidence,
			},
			Position: -1,
			End:      -1,
		})
	})
	return candidates
}

// walkJSON visits every key/value pair in depth-first order. Map keys are
// visited sorted so extraction is deterministic.
func walkJSON(data any, path string, visit func(path, key string, value any)) {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			current := key
			if path != "" {
				current = path + "." + key
			}
			visit(current, key, v[key])
			walkJSON(v[key], current, visit)
		}
	case []any:
		for i, item := range v {
			walkJSON(item, fmt.Sprintf("%s[%d]", path, i), visit)
		}
	}
}

func entityTypeForKey(key string) (common.EntityType, bool) {
	lower := strings.ToLower(key)
	for _, entry := range jsonKeyTable {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.entityType, true
			}
		}
	}
	return "", false
}

// scalarString renders a JSON scalar as its string form; composite values
// are skipped by the walker.
func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case bool:
		return "", false
	default:
		return "", false
	}
}
