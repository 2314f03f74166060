package graph

import (
	"encoding/json"
	"testing"

	"github.com/trc-ai/riskgraph/pkg/common"
)

func TestExtractJSON_TypedKeysYieldEntities(t *testing.T) {
	var data any
	if err := json.Unmarshal([]byte(`{
		"risks": [
			{"risk_id": "R-001", "severity": "high", "owner": "John Smith"},
			{"risk_id": "R-002"}
		],
		"control_id": "AC-2",
		"notes": "free text that has no typed key"
	}`), &data); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	candidates := NewExtractor().ExtractJSON(data, "doc-json")

	byID := make(map[string]Candidate)
	for _, c := range candidates {
		byID[c.Entity.ID] = c
	}

	control, ok := byID[common.EntityID(common.EntityControl, "AC-2")]
	if !ok {
		t.Fatalf("missing control candidate, got %v", keysOf(byID))
	}
	if control.Entity.Sources[0].Location != "control_id" {
		t.Fatalf("unexpected location: %s", control.Entity.Sources[0].Location)
	}
	if control.Position != -1 {
		t.Fatal("structured candidates must carry no text position")
	}
	if control.Entity.Confidence != structuredConfidence {
		t.Fatalf("confidence = %f, want %f", control.Entity.Confidence, structuredConfidence)
	}

	risk, ok := byID[common.EntityID(common.EntityRisk, "R-001")]
	if !ok {
		t.Fatalf("missing risk candidate, got %v", keysOf(byID))
	}
	if risk.Entity.Sources[0].Location != "risks[0].risk_id" {
		t.Fatalf("unexpected risk location: %s", risk.Entity.Sources[0].Location)
	}

	if _, ok := byID[common.EntityID(common.EntityPerson, "John Smith")]; !ok {
		t.Fatalf("missing person candidate, got %v", keysOf(byID))
	}

	for id := range byID {
		if id == common.EntityID(common.EntityAsset, "free text that has no typed key") {
			t.Fatal("untyped key must not yield a candidate")
		}
	}
}

func TestExtractJSON_DeterministicOrder(t *testing.T) {
	var data any
	if err := json.Unmarshal([]byte(`{"b_risk": "R-2", "a_risk": "R-1", "c_risk": "R-3"}`), &data); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	x := NewExtractor()
	first := x.ExtractJSON(data, "doc")
	for i := 0; i < 5; i++ {
		again := x.ExtractJSON(data, "doc")
		if len(again) != len(first) {
			t.Fatalf("run %d: length %d != %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].Entity.ID != first[j].Entity.ID {
				t.Fatalf("run %d: order differs at %d", i, j)
			}
		}
	}
	// Sorted key walk: a_risk before b_risk before c_risk.
	if first[0].Entity.RawValue != "R-1" || first[2].Entity.RawValue != "R-3" {
		t.Fatalf("unexpected order: %v", first)
	}
}

func keysOf(m map[string]Candidate) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
