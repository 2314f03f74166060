package graph

import (
	"strings"
	"testing"

	"github.com/trc-ai/riskgraph/pkg/common"
)

func detectScenario(t *testing.T) []common.Relationship {
	t.Helper()
	x := NewExtractor()
	d := NewDetector()
	candidates := x.ExtractText(scenarioText, "doc-1")
	return d.Detect(candidates, scenarioText, "doc-1")
}

func findRelationship(relationships []common.Relationship, relType common.RelationType, sourceID, targetID string) (common.Relationship, bool) {
	for _, r := range relationships {
		if r.Type == relType && r.SourceEntityID == sourceID && r.TargetEntityID == targetID {
			return r, true
		}
	}
	return common.Relationship{}, false
}

func TestDetect_ComplianceScenario(t *testing.T) {
	relationships := detectScenario(t)

	controlID := common.EntityID(common.EntityControl, "AC-2")
	riskID := common.EntityID(common.EntityRisk, "R-001")
	assetID := common.EntityID(common.EntityAsset, "database servers")
	personID := common.EntityID(common.EntityPerson, "John Smith")

	tests := []struct {
		name     string
		relType  common.RelationType
		sourceID string
		targetID string
	}{
		{"control mitigates risk", common.RelMitigates, controlID, riskID},
		{"control applies to asset", common.RelAppliesTo, controlID, assetID},
		{"control owned by person", common.RelOwns, controlID, personID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := findRelationship(relationships, tt.relType, tt.sourceID, tt.targetID)
			if !ok {
				t.Fatalf("missing %s %s -> %s in %v", tt.relType, tt.sourceID, tt.targetID, relationshipSummaries(relationships))
			}
			if r.Confidence <= 0 {
				t.Fatalf("expected positive confidence, got %f", r.Confidence)
			}
			if r.DocumentID != "doc-1" {
				t.Fatalf("expected document id doc-1, got %s", r.DocumentID)
			}
		})
	}
}

func relationshipSummaries(relationships []common.Relationship) []string {
	var out []string
	for _, r := range relationships {
		out = append(out, r.SourceEntityID+" "+string(r.Type)+" "+r.TargetEntityID)
	}
	return out
}

func TestDetect_IndicatorClosestToLaterEntityWins(t *testing.T) {
	// "mitigates" sits between AC-2 and R-001, "affecting" between R-001 and
	// the asset. The pair (AC-2, asset) sees both; the one governing the
	// asset must win.
	relationships := detectScenario(t)

	controlID := common.EntityID(common.EntityControl, "AC-2")
	assetID := common.EntityID(common.EntityAsset, "database servers")
	if _, ok := findRelationship(relationships, common.RelMitigates, controlID, assetID); ok {
		t.Fatal("pair (control, asset) classified by the wrong indicator")
	}
}

func TestDetect_ProximityFallback(t *testing.T) {
	text := "AC-2 and risk R-001 appear in the same sentence with no indicator."
	x := NewExtractor()
	d := NewDetector()
	candidates := x.ExtractText(text, "doc-2")
	relationships := d.Detect(candidates, text, "doc-2")

	controlID := common.EntityID(common.EntityControl, "AC-2")
	riskID := common.EntityID(common.EntityRisk, "R-001")
	r, ok := findRelationship(relationships, common.RelRelatesTo, controlID, riskID)
	if !ok {
		t.Fatalf("expected RELATES_TO fallback, got %v", relationshipSummaries(relationships))
	}
	if r.EvidenceText != "proximity" {
		t.Fatalf("expected proximity evidence, got %q", r.EvidenceText)
	}
	if r.Confidence <= 0 || r.Confidence > fallbackConfidence {
		t.Fatalf("fallback confidence out of range: %f", r.Confidence)
	}
}

func TestDetect_ConfidenceDecaysWithDistance(t *testing.T) {
	near := "AC-2 mitigates risk R-001."
	far := "AC-2 mitigates a class of problems described at some length over many words in this sentence, including risk R-001."

	x := NewExtractor()
	d := NewDetector()

	controlID := common.EntityID(common.EntityControl, "AC-2")
	riskID := common.EntityID(common.EntityRisk, "R-001")

	nearRels := d.Detect(x.ExtractText(near, "doc-1"), near, "doc-1")
	farRels := d.Detect(x.ExtractText(far, "doc-2"), far, "doc-2")

	nearRel, ok := findRelationship(nearRels, common.RelMitigates, controlID, riskID)
	if !ok {
		t.Fatalf("near pair not detected: %v", relationshipSummaries(nearRels))
	}
	farRel, ok := findRelationship(farRels, common.RelMitigates, controlID, riskID)
	if !ok {
		t.Fatalf("far pair not detected: %v", relationshipSummaries(farRels))
	}
	if nearRel.Confidence <= farRel.Confidence {
		t.Fatalf("expected near confidence %f > far confidence %f", nearRel.Confidence, farRel.Confidence)
	}
}

func TestDetect_PairsBeyondWindowIgnored(t *testing.T) {
	text := "AC-2 is described here. " + strings.Repeat("Padding words with nothing of note. ", 10) + "Finally risk R-001 is far away."
	x := NewExtractor()
	d := NewDetector()
	candidates := x.ExtractText(text, "doc-1")
	relationships := d.Detect(candidates, text, "doc-1")

	controlID := common.EntityID(common.EntityControl, "AC-2")
	riskID := common.EntityID(common.EntityRisk, "R-001")
	for _, relType := range common.RelationTypes {
		if _, ok := findRelationship(relationships, relType, controlID, riskID); ok {
			t.Fatalf("pair beyond the proximity window must not relate (%s)", relType)
		}
	}
}

func TestDetect_StructuredCandidatesSkipped(t *testing.T) {
	x := NewExtractor()
	d := NewDetector()
	candidates := x.ExtractJSON(map[string]any{"risk_id": "R-001", "control_id": "AC-2"}, "doc-json")
	if got := d.Detect(candidates, "", "doc-json"); len(got) != 0 {
		t.Fatalf("structured candidates must not produce proximity edges, got %d", len(got))
	}
}
