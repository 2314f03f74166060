package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/trc-ai/riskgraph/pkg/common"
	"github.com/trc-ai/riskgraph/pkg/search"
	"github.com/trc-ai/riskgraph/pkg/store/memory"
)

// gapStore holds two risks: R-001 mitigated by AC-2, R-002 uncovered.
func gapStore(t *testing.T) *memory.GraphStore {
	t.Helper()
	s := memory.NewGraphStore()

	entities := []common.Entity{
		{Type: common.EntityControl, NormalizedValue: "AC-2", RawValue: "AC-2",
			Sources: []common.Source{{DocumentID: "doc-1", Location: "pos:0", Snippet: "Control AC-2 mitigates risk R-001."}}},
		{Type: common.EntityRisk, NormalizedValue: "R-001", RawValue: "R-001",
			Sources: []common.Source{{DocumentID: "doc-1", Location: "pos:23", Snippet: "risk R-001"}}},
		{Type: common.EntityRisk, NormalizedValue: "R-002", RawValue: "R-002",
			Sources: []common.Source{{DocumentID: "doc-2", Location: "pos:10", Snippet: "risk R-002 remains open"}}},
		{Type: common.EntityAsset, NormalizedValue: "database servers", RawValue: "database servers",
			Sources: []common.Source{{DocumentID: "doc-1", Location: "pos:44", Snippet: "database servers"}}},
	}
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		e.ID = common.EntityID(e.Type, e.NormalizedValue)
		e.Confidence = 0.9
		id, err := s.UpsertEntity(e)
		if err != nil {
			t.Fatalf("UpsertEntity: %v", err)
		}
		ids = append(ids, id)
	}

	relationships := []common.Relationship{
		{SourceEntityID: ids[0], TargetEntityID: ids[1], Type: common.RelMitigates,
			EvidenceText: "Control AC-2 mitigates risk R-001", DocumentID: "doc-1", Confidence: 0.8},
		{SourceEntityID: ids[1], TargetEntityID: ids[3], Type: common.RelAppliesTo,
			EvidenceText: "risk R-001 affecting database servers", DocumentID: "doc-1", Confidence: 0.7},
	}
	for _, r := range relationships {
		if err := s.AddRelationship(r); err != nil {
			t.Fatalf("AddRelationship: %v", err)
		}
	}
	return s
}

func testToolkit(t *testing.T) (*Toolkit, *State) {
	t.Helper()
	state := NewState()
	docs := []common.Document{
		{ID: "doc-1", Name: "controls.txt", Text: "Control AC-2 mitigates risk R-001 affecting database servers."},
	}
	tk := NewToolkit(gapStore(t), search.NewCorpusSearcher(docs), nil, state)
	return tk, state
}

func invoke(t *testing.T, tk *Toolkit, name, args string) string {
	t.Helper()
	registry, err := NewRegistry(tk.Tools()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	result, err := registry.Invoke(context.Background(), name, args)
	if err != nil {
		t.Fatalf("Invoke(%s): %v", name, err)
	}
	return result
}

func TestToolkit_SearchEntitiesByType(t *testing.T) {
	tk, state := testToolkit(t)

	result := invoke(t, tk, "search_entities", `{"entity_type": "RISK"}`)

	var parsed struct {
		Count    int             `json:"count"`
		Entities []entitySummary `json:"entities"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if parsed.Count != 2 {
		t.Fatalf("count = %d, want 2", parsed.Count)
	}
	for _, e := range parsed.Entities {
		if e.Type != "RISK" {
			t.Fatalf("unexpected type %s", e.Type)
		}
		if !state.Discovered[e.ID] {
			t.Fatalf("entity %s not recorded as discovered", e.ID)
		}
	}
}

func TestToolkit_SearchEntitiesRejectsUnknownType(t *testing.T) {
	tk, _ := testToolkit(t)
	registry, err := NewRegistry(tk.Tools()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := registry.Invoke(context.Background(), "search_entities", `{"entity_type": "WIDGET"}`); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestToolkit_GetEntityDetailsNotFound(t *testing.T) {
	tk, _ := testToolkit(t)
	registry, err := NewRegistry(tk.Tools()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	_, err = registry.Invoke(context.Background(), "get_entity_details", `{"entity_id": "CONTROL_NOPE"}`)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestToolkit_GetEntityRelationships(t *testing.T) {
	tk, _ := testToolkit(t)

	result := invoke(t, tk, "get_entity_relationships",
		`{"entity_id": "`+common.EntityID(common.EntityControl, "AC-2")+`", "max_depth": 2}`)

	var parsed struct {
		TotalRelated  int `json:"total_related"`
		Relationships []struct {
			RelatedID string `json:"related_id"`
			Depth     int    `json:"depth"`
		} `json:"relationships"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	// Depth 2 from AC-2 reaches R-001 and the asset.
	if parsed.TotalRelated != 2 {
		t.Fatalf("total_related = %d, want 2", parsed.TotalRelated)
	}
}

func TestToolkit_FindRelationshipPath(t *testing.T) {
	tk, _ := testToolkit(t)

	result := invoke(t, tk, "find_relationship_path", `{
		"source_entity_id": "`+common.EntityID(common.EntityControl, "AC-2")+`",
		"target_entity_id": "`+common.EntityID(common.EntityAsset, "database servers")+`"
	}`)

	var parsed struct {
		PathFound  bool `json:"path_found"`
		PathLength int  `json:"path_length"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if !parsed.PathFound || parsed.PathLength != 2 {
		t.Fatalf("expected 2-hop path, got %+v", parsed)
	}
}

func TestToolkit_FindRelationshipPathNotFound(t *testing.T) {
	tk, _ := testToolkit(t)

	// R-002 is isolated from AC-2.
	result := invoke(t, tk, "find_relationship_path", `{
		"source_entity_id": "`+common.EntityID(common.EntityControl, "AC-2")+`",
		"target_entity_id": "`+common.EntityID(common.EntityRisk, "R-002")+`"
	}`)

	var parsed struct {
		PathFound bool `json:"path_found"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if parsed.PathFound {
		t.Fatal("expected no path to the isolated risk")
	}
}

func TestToolkit_DetectComplianceGaps(t *testing.T) {
	tk, _ := testToolkit(t)

	result := invoke(t, tk, "detect_compliance_gaps", `{}`)

	var parsed struct {
		TotalChecked int    `json:"total_entities_checked"`
		GapsFound    int    `json:"gaps_found"`
		EntityType   string `json:"entity_type"`
		Gaps         []struct {
			ID                  string `json:"id"`
			MissingRelationship string `json:"missing_relationship"`
		} `json:"gaps"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if parsed.TotalChecked != 2 || parsed.GapsFound != 1 {
		t.Fatalf("expected 1 gap of 2 risks, got %+v", parsed)
	}
	if parsed.Gaps[0].ID != common.EntityID(common.EntityRisk, "R-002") {
		t.Fatalf("expected R-002 as the gap, got %s", parsed.Gaps[0].ID)
	}
	if parsed.Gaps[0].MissingRelationship != string(common.RelMitigates) {
		t.Fatalf("unexpected missing relationship: %s", parsed.Gaps[0].MissingRelationship)
	}
}

func TestToolkit_TraverseGraphWithFilter(t *testing.T) {
	tk, _ := testToolkit(t)

	result := invoke(t, tk, "traverse_graph", `{
		"start_entity_id": "`+common.EntityID(common.EntityControl, "AC-2")+`",
		"max_depth": 2,
		"relationship_filter": "MITIGATES"
	}`)

	var parsed struct {
		Discovered int `json:"entities_discovered"`
		Entities   []struct {
			ID    string `json:"id"`
			Depth int    `json:"depth"`
		} `json:"entities"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	// Start node plus R-001; the APPLIES_TO hop to the asset is filtered out.
	if parsed.Discovered != 2 {
		t.Fatalf("entities_discovered = %d, want 2", parsed.Discovered)
	}
	if parsed.Entities[0].Depth != 0 {
		t.Fatal("expected the start entity at depth 0")
	}
}

func TestToolkit_TraverseGraphFilterRestrictsFollowedEdges(t *testing.T) {
	// R-010 hangs off AC-4 twice: directly through RELATES_TO and through a
	// REQUIRES/MITIGATES chain via AC-5. With the filter set to the chain's
	// types the risk must still be reached, at the chain's depth, while the
	// policy branch behind the lone RELATES_TO edge stays undiscovered even
	// though it leads on to an allowed edge.
	s := memory.NewGraphStore()
	fixtures := []struct {
		entityType common.EntityType
		value      string
	}{
		{common.EntityControl, "AC-4"},
		{common.EntityControl, "AC-5"},
		{common.EntityRisk, "R-010"},
		{common.EntityPolicy, "access policy"},
		{common.EntityStandard, "NIST 800-53"},
	}
	ids := make(map[string]string, len(fixtures))
	for _, f := range fixtures {
		id, err := s.UpsertEntity(common.Entity{
			ID:              common.EntityID(f.entityType, f.value),
			Type:            f.entityType,
			NormalizedValue: f.value,
			RawValue:        f.value,
			Sources:         []common.Source{{DocumentID: "doc-1", Location: "pos:0", Snippet: f.value}},
			Confidence:      0.9,
		})
		if err != nil {
			t.Fatalf("UpsertEntity: %v", err)
		}
		ids[f.value] = id
	}
	relationships := []common.Relationship{
		{SourceEntityID: ids["AC-4"], TargetEntityID: ids["R-010"], Type: common.RelRelatesTo, DocumentID: "doc-1", Confidence: 0.5},
		{SourceEntityID: ids["AC-4"], TargetEntityID: ids["AC-5"], Type: common.RelRequires, DocumentID: "doc-1", Confidence: 0.8},
		{SourceEntityID: ids["AC-5"], TargetEntityID: ids["R-010"], Type: common.RelMitigates, DocumentID: "doc-1", Confidence: 0.8},
		{SourceEntityID: ids["AC-4"], TargetEntityID: ids["access policy"], Type: common.RelRelatesTo, DocumentID: "doc-1", Confidence: 0.5},
		{SourceEntityID: ids["access policy"], TargetEntityID: ids["NIST 800-53"], Type: common.RelRequires, DocumentID: "doc-1", Confidence: 0.8},
	}
	for _, r := range relationships {
		if err := s.AddRelationship(r); err != nil {
			t.Fatalf("AddRelationship: %v", err)
		}
	}
	tk := NewToolkit(s, search.NewCorpusSearcher(nil), nil, NewState())

	result := invoke(t, tk, "traverse_graph", `{
		"start_entity_id": "`+ids["AC-4"]+`",
		"max_depth": 3,
		"relationship_filter": "REQUIRES,MITIGATES"
	}`)

	var parsed struct {
		Discovered int `json:"entities_discovered"`
		Entities   []struct {
			ID    string `json:"id"`
			Depth int    `json:"depth"`
		} `json:"entities"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	depths := make(map[string]int, len(parsed.Entities))
	for _, e := range parsed.Entities {
		depths[e.ID] = e.Depth
	}
	if parsed.Discovered != 3 {
		t.Fatalf("entities_discovered = %d, want 3 (start, AC-5, R-010): %v", parsed.Discovered, depths)
	}
	if depth, ok := depths[ids["R-010"]]; !ok || depth != 2 {
		t.Fatalf("expected R-010 at depth 2 via the allowed chain, got %v", depths)
	}
	if _, ok := depths[ids["access policy"]]; ok {
		t.Fatal("policy reached through a filtered-out edge")
	}
	if _, ok := depths[ids["NIST 800-53"]]; ok {
		t.Fatal("standard reached through a branch behind a filtered-out edge")
	}
}

func TestToolkit_SearchDocuments(t *testing.T) {
	tk, _ := testToolkit(t)

	result := invoke(t, tk, "search_documents", `{"query": "database servers"}`)
	if !strings.Contains(result, "doc-1") {
		t.Fatalf("expected doc-1 in matches:\n%s", result)
	}
}

func TestToolkit_AggregateEntityInfo(t *testing.T) {
	tk, _ := testToolkit(t)

	riskID := common.EntityID(common.EntityRisk, "R-001")
	result := invoke(t, tk, "aggregate_entity_info",
		`{"entity_ids": ["`+riskID+`", "CONTROL_NOPE"]}`)

	var parsed struct {
		Requested int `json:"requested"`
		Found     int `json:"found"`
		Entities  []struct {
			ID               string `json:"id"`
			RelationshipsIn  int    `json:"relationships_in"`
			RelationshipsOut int    `json:"relationships_out"`
		} `json:"entities"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if parsed.Requested != 2 || parsed.Found != 1 {
		t.Fatalf("expected 1 of 2 found, got %+v", parsed)
	}
	if parsed.Entities[0].RelationshipsIn != 1 || parsed.Entities[0].RelationshipsOut != 1 {
		t.Fatalf("unexpected degrees: %+v", parsed.Entities[0])
	}
}

func TestToolkit_QueryStatistics(t *testing.T) {
	tk, _ := testToolkit(t)

	result := invoke(t, tk, "query_statistics", `{}`)
	var stats common.Statistics
	if err := json.Unmarshal([]byte(result), &stats); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if stats.EntityCount != 4 || stats.RelationshipCount != 2 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}

func TestToolkit_ExternalIndexOnlyWhenConfigured(t *testing.T) {
	tk, _ := testToolkit(t)
	for _, tool := range tk.Tools() {
		if tool.Name == "search_external_index" {
			t.Fatal("external index tool offered without an external searcher")
		}
	}

	state := NewState()
	docs := []common.Document{{ID: "doc-1", Name: "a", Text: "text"}}
	withExternal := NewToolkit(gapStore(t), search.NewCorpusSearcher(docs), search.NewCorpusSearcher(docs), state)
	found := false
	for _, tool := range withExternal.Tools() {
		if tool.Name == "search_external_index" {
			found = true
		}
	}
	if !found {
		t.Fatal("external index tool missing despite configured searcher")
	}
}
