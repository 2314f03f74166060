package retrieve

import (
	"fmt"
	"strings"
	"testing"

	"github.com/trc-ai/riskgraph/pkg/common"
	"github.com/trc-ai/riskgraph/pkg/graph"
	"github.com/trc-ai/riskgraph/pkg/store"
	"github.com/trc-ai/riskgraph/pkg/store/memory"
)

// chainStore builds AC-2 -> R-001 -> database servers -> John Smith.
func chainStore(t *testing.T) *memory.GraphStore {
	t.Helper()
	s := memory.NewGraphStore()

	entities := []common.Entity{
		{Type: common.EntityControl, NormalizedValue: "AC-2", RawValue: "AC-2",
			Sources: []common.Source{{DocumentID: "doc-1", Location: "pos:0", Snippet: "Control AC-2 mitigates risk R-001."}}},
		{Type: common.EntityRisk, NormalizedValue: "R-001", RawValue: "R-001",
			Sources: []common.Source{{DocumentID: "doc-1", Location: "pos:23", Snippet: "risk R-001 affecting database servers"}}},
		{Type: common.EntityAsset, NormalizedValue: "database servers", RawValue: "database servers",
			Sources: []common.Source{{DocumentID: "doc-1", Location: "pos:44", Snippet: "database servers owned by John Smith"}}},
		{Type: common.EntityPerson, NormalizedValue: "John Smith", RawValue: "John Smith",
			Sources: []common.Source{{DocumentID: "doc-1", Location: "pos:71", Snippet: "Owned by John Smith"}}},
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
		{SourceEntityID: ids[1], TargetEntityID: ids[2], Type: common.RelAppliesTo,
			EvidenceText: "risk R-001 affecting database servers", DocumentID: "doc-1", Confidence: 0.7},
		{SourceEntityID: ids[3], TargetEntityID: ids[2], Type: common.RelOwns,
			EvidenceText: "database servers owned by John Smith", DocumentID: "doc-1", Confidence: 0.7},
	}
	for _, r := range relationships {
		if err := s.AddRelationship(r); err != nil {
			t.Fatalf("AddRelationship: %v", err)
		}
	}
	return s
}

func newTestRetriever(t *testing.T, s store.GraphStorage) *Retriever {
	t.Helper()
	return NewRetriever(s, graph.NewExtractor())
}

func bundleEntityIDs(b *Bundle) []string {
	ids := make([]string, 0, len(b.Entities))
	for _, be := range b.Entities {
		ids = append(ids, be.Entity.ID)
	}
	return ids
}

func TestRetriever_SeedsFromQueryMention(t *testing.T) {
	s := chainStore(t)
	r := newTestRetriever(t, s)

	bundle := r.Retrieve("What does control AC-2 cover?", common.IntentExplain)
	if bundle.Empty() {
		t.Fatal("expected a non-empty bundle")
	}

	first := bundle.Entities[0]
	if !first.Seed || first.Entity.NormalizedValue != "AC-2" {
		t.Fatalf("expected AC-2 as the leading seed, got %+v", first)
	}

	// Depth-2 expansion from AC-2 reaches the risk and the asset.
	ids := bundleEntityIDs(bundle)
	for _, want := range []string{
		common.EntityID(common.EntityRisk, "R-001"),
		common.EntityID(common.EntityAsset, "database servers"),
	} {
		found := false
		for _, id := range ids {
			if id == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %s in bundle, got %v", want, ids)
		}
	}
}

func TestRetriever_SeedsRankBeforeExpansion(t *testing.T) {
	s := chainStore(t)
	r := newTestRetriever(t, s)

	bundle := r.Retrieve("How does AC-2 relate to risk R-001?", common.IntentRelationship)

	seedsDone := false
	for _, be := range bundle.Entities {
		if !be.Seed {
			seedsDone = true
		} else if seedsDone {
			t.Fatalf("seed %s ranked after an expanded entity", be.Entity.ID)
		}
	}
}

func TestRetriever_TriplesConnectBundleEntities(t *testing.T) {
	s := chainStore(t)
	r := newTestRetriever(t, s)

	bundle := r.Retrieve("What does control AC-2 cover?", common.IntentExplain)
	if len(bundle.Triples) == 0 {
		t.Fatal("expected triples connecting the bundle entities")
	}
	included := make(map[string]bool)
	for _, be := range bundle.Entities {
		included[be.Entity.ID] = true
	}
	for _, triple := range bundle.Triples {
		if !included[triple.Source.ID] || !included[triple.Target.ID] {
			t.Fatalf("triple %s -> %s references an entity outside the bundle",
				triple.Source.ID, triple.Target.ID)
		}
		if triple.Relation.EvidenceText == "" {
			t.Fatal("expected evidence text on every triple")
		}
	}
}

func TestRetriever_KeywordFallback(t *testing.T) {
	s := chainStore(t)
	r := newTestRetriever(t, s)

	// No entity matcher fires and no value is quoted verbatim, but the word
	// "database" overlaps the asset's value.
	bundle := r.Retrieve("who looks after our database estate", common.IntentOther)
	if bundle.Empty() {
		t.Fatal("expected keyword fallback to find the asset")
	}
	assetID := common.EntityID(common.EntityAsset, "database servers")
	found := false
	for _, id := range bundleEntityIDs(bundle) {
		if id == assetID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s via keyword fallback, got %v", assetID, bundleEntityIDs(bundle))
	}
}

func TestRetriever_UnmatchedQueryYieldsEmptyBundle(t *testing.T) {
	s := chainStore(t)
	r := newTestRetriever(t, s)

	bundle := r.Retrieve("zzz qqq xxx", common.IntentOther)
	if !bundle.Empty() {
		t.Fatalf("expected empty bundle, got %d entities", len(bundle.Entities))
	}
	if len(bundle.Triples) != 0 {
		t.Fatal("empty bundle must not carry triples")
	}
}

func TestRetriever_EmptyStoreYieldsEmptyBundle(t *testing.T) {
	r := newTestRetriever(t, memory.NewGraphStore())

	bundle := r.Retrieve("What does control AC-2 cover?", common.IntentExplain)
	if !bundle.Empty() {
		t.Fatal("expected empty bundle on an empty store")
	}
}

func TestRetriever_TopKBound(t *testing.T) {
	s := memory.NewGraphStore()
	hubID, err := s.UpsertEntity(common.Entity{
		ID:              common.EntityID(common.EntityControl, "AC-2"),
		Type:            common.EntityControl,
		NormalizedValue: "AC-2",
		RawValue:        "AC-2",
		Confidence:      0.9,
	})
	if err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}
	for i := 0; i < 40; i++ {
		value := fmt.Sprintf("asset %02d", i)
		id, err := s.UpsertEntity(common.Entity{
			ID:              common.EntityID(common.EntityAsset, value),
			Type:            common.EntityAsset,
			NormalizedValue: value,
			RawValue:        value,
			Confidence:      0.9,
		})
		if err != nil {
			t.Fatalf("UpsertEntity: %v", err)
		}
		if err := s.AddRelationship(common.Relationship{
			SourceEntityID: hubID,
			TargetEntityID: id,
			Type:           common.RelAppliesTo,
			DocumentID:     "doc-1",
			Confidence:     0.5,
		}); err != nil {
			t.Fatalf("AddRelationship: %v", err)
		}
	}

	r := newTestRetriever(t, s)
	bundle := r.Retrieve("What applies to control AC-2?", common.IntentList)
	if len(bundle.Entities) != defaultTopK {
		t.Fatalf("bundle size = %d, want %d", len(bundle.Entities), defaultTopK)
	}
	if first := bundle.Entities[0]; first.Entity.ID != hubID || !first.Seed {
		t.Fatalf("expected the mentioned control first, got %+v", first)
	}
}

func TestBundle_RenderContainsSectionsAndInstructions(t *testing.T) {
	s := chainStore(t)
	r := newTestRetriever(t, s)

	bundle := r.Retrieve("What does control AC-2 cover?", common.IntentImpact)
	rendered := bundle.Render(0)

	for _, want := range []string{
		"KNOWLEDGE GRAPH CONTEXT",
		"RELEVANT ENTITIES",
		"RELATIONSHIPS",
		"SUMMARY",
		"RESPONSE INSTRUCTIONS",
		"AC-2",
	} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("rendered bundle missing %q:\n%s", want, rendered)
		}
	}
	if !strings.Contains(rendered, "mitigat") {
		t.Fatalf("rendered bundle missing relationship evidence:\n%s", rendered)
	}
}

func TestBundle_RenderHonoursTokenBudget(t *testing.T) {
	s := chainStore(t)
	r := newTestRetriever(t, s)

	bundle := r.Retrieve("What does control AC-2 cover?", common.IntentExplain)
	full := bundle.Render(100000)
	tight := bundle.Render(30)
	if len(tight) >= len(full) {
		t.Fatalf("tight budget did not shrink output: %d vs %d", len(tight), len(full))
	}
	// The summary survives any budget.
	if !strings.Contains(tight, "SUMMARY") {
		t.Fatalf("summary missing under tight budget:\n%s", tight)
	}
}
