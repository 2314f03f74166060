package graph

import (
	"errors"
	"testing"

	"github.com/trc-ai/riskgraph/pkg/common"
)

const scenarioText = "Control AC-2 mitigates risk R-001 affecting database servers. Owned by John Smith."

func findCandidate(candidates []Candidate, entityType common.EntityType, value string) (Candidate, bool) {
	for _, c := range candidates {
		if c.Entity.Type == entityType && c.Entity.NormalizedValue == value {
			return c, true
		}
	}
	return Candidate{}, false
}

func TestExtractText_ComplianceScenario(t *testing.T) {
	x := NewExtractor()
	candidates := x.ExtractText(scenarioText, "doc-1")

	want := []struct {
		entityType common.EntityType
		value      string
	}{
		{common.EntityControl, "AC-2"},
		{common.EntityRisk, "R-001"},
		{common.EntityAsset, "database servers"},
		{common.EntityPerson, "John Smith"},
	}
	for _, w := range want {
		if _, ok := findCandidate(candidates, w.entityType, w.value); !ok {
			t.Errorf("missing %s %q in %v", w.entityType, w.value, candidateSummaries(candidates))
		}
	}
}

func candidateSummaries(candidates []Candidate) []string {
	var out []string
	for _, c := range candidates {
		out = append(out, string(c.Entity.Type)+":"+c.Entity.NormalizedValue)
	}
	return out
}

func TestExtractText_EveryCandidateHasValueAndSource(t *testing.T) {
	x := NewExtractor()
	texts := []string{
		scenarioText,
		"Policy POL-7 requires NIST 800-53. Requirement: systems MUST encrypt data at rest always.",
		"The security policy applies to cloud endpoints. Risk level: high. Manager: Alice Brown.",
	}
	for _, text := range texts {
		for _, c := range x.ExtractText(text, "doc-1") {
			if c.Entity.NormalizedValue == "" {
				t.Errorf("candidate with empty normalized value: %+v", c.Entity)
			}
			if len(c.Entity.Sources) == 0 {
				t.Errorf("candidate %s has no sources", c.Entity.ID)
			}
			if c.Entity.Confidence <= 0 {
				t.Errorf("candidate %s has confidence %f", c.Entity.ID, c.Entity.Confidence)
			}
		}
	}
}

func TestExtractText_OverlapPrefersLongestSpan(t *testing.T) {
	// "Control AC-2" matches both the labelled pattern (longer span) and the
	// bare control-ID pattern. Only the longer match may survive, and its
	// value comes from the capture group.
	x := NewExtractor()
	candidates := x.ExtractText("Control AC-2 is active.", "doc-1")

	controls := 0
	for _, c := range candidates {
		if c.Entity.Type == common.EntityControl {
			controls++
			if c.Entity.NormalizedValue != "AC-2" {
				t.Errorf("expected AC-2, got %q", c.Entity.NormalizedValue)
			}
			if c.Position != 0 {
				t.Errorf("expected the labelled span at position 0, got %d", c.Position)
			}
		}
	}
	if controls != 1 {
		t.Fatalf("expected 1 control candidate, got %d", controls)
	}
}

func TestExtractText_RepeatedMentionKeepsFirstPosition(t *testing.T) {
	x := NewExtractor()
	candidates := x.ExtractText("AC-2 appears early. Later AC-2 appears again.", "doc-1")

	c, ok := findCandidate(candidates, common.EntityControl, "AC-2")
	if !ok {
		t.Fatal("AC-2 not extracted")
	}
	if c.Position != 0 {
		t.Fatalf("expected first occurrence position 0, got %d", c.Position)
	}
}

func TestExtractText_NormalizationCaseFolds(t *testing.T) {
	x := NewExtractor()

	candidates := x.ExtractText("control id: ac-17 protects the Database.", "doc-1")
	if _, ok := findCandidate(candidates, common.EntityControl, "AC-17"); !ok {
		t.Errorf("control id not case-folded upward: %v", candidateSummaries(candidates))
	}
	if _, ok := findCandidate(candidates, common.EntityAsset, "database"); !ok {
		t.Errorf("asset not case-folded downward: %v", candidateSummaries(candidates))
	}
}

func TestExtractText_SentenceFinalPunctuationMerges(t *testing.T) {
	// A mention at the end of a sentence must land on the same node as a
	// mid-sentence mention of the same identifier, or documents stop linking.
	x := NewExtractor()

	ending := x.ExtractText("Control AC-2 mitigates risk R-001.", "doc-1")
	middle := x.ExtractText("risk R-001 affecting database servers", "doc-2")

	fromEnding, ok := findCandidate(ending, common.EntityRisk, "R-001")
	if !ok {
		t.Fatalf("sentence-final risk not extracted: %v", candidateSummaries(ending))
	}
	fromMiddle, ok := findCandidate(middle, common.EntityRisk, "R-001")
	if !ok {
		t.Fatalf("mid-sentence risk not extracted: %v", candidateSummaries(middle))
	}
	if fromEnding.Entity.ID != fromMiddle.Entity.ID {
		t.Fatalf("mentions did not merge: %q vs %q", fromEnding.Entity.ID, fromMiddle.Entity.ID)
	}

	tail := x.ExtractText("risk R-7, and control id: AC-9;", "doc-3")
	for _, want := range []struct {
		entityType common.EntityType
		value      string
	}{
		{common.EntityRisk, "R-7"},
		{common.EntityControl, "AC-9"},
	} {
		if _, ok := findCandidate(tail, want.entityType, want.value); !ok {
			t.Errorf("missing %s %q: %v", want.entityType, want.value, candidateSummaries(tail))
		}
	}
}

func TestExtractDocument_NoContent(t *testing.T) {
	x := NewExtractor()
	_, err := x.ExtractDocument(common.Document{ID: "doc-1"})
	if err == nil {
		t.Fatal("expected ExtractionError for empty document")
	}
	var extractionErr *ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Fatalf("expected *ExtractionError, got %T", err)
	}
	if extractionErr.DocumentID != "doc-1" {
		t.Fatalf("expected document id doc-1, got %s", extractionErr.DocumentID)
	}
}

func TestExtractJSON(t *testing.T) {
	x := NewExtractor()
	data := map[string]any{
		"risk_id": "R-002",
		"owner":   "Jane Doe",
		"controls": []any{
			map[string]any{"control_id": "AC-3", "severity": "high"},
		},
		"notes": "free text without entity keys",
	}

	candidates := x.ExtractJSON(data, "doc-json")

	tests := []struct {
		entityType common.EntityType
		value      string
		path       string
	}{
		{common.EntityRisk, "R-002", "risk_id"},
		{common.EntityPerson, "Jane Doe", "owner"},
		{common.EntityControl, "AC-3", "controls[0].control_id"},
		{common.EntityRisk, "HIGH", "controls[0].severity"},
	}
	for _, tt := range tests {
		c, ok := findCandidate(candidates, tt.entityType, tt.value)
		if !ok {
			t.Errorf("missing %s %q: %v", tt.entityType, tt.value, candidateSummaries(candidates))
			continue
		}
		if c.Entity.Sources[0].Location != tt.path {
			t.Errorf("expected path %q for %s, got %q", tt.path, tt.value, c.Entity.Sources[0].Location)
		}
		if c.Position != -1 {
			t.Errorf("structured candidate %s must not carry a text position", c.Entity.ID)
		}
	}

	for _, c := range candidates {
		if c.Entity.NormalizedValue == "notes" || c.Entity.RawValue == "free text without entity keys" {
			t.Errorf("extracted entity from a non-entity key: %+v", c.Entity)
		}
	}
}

func TestExtractJSON_NumericValue(t *testing.T) {
	x := NewExtractor()
	candidates := x.ExtractJSON(map[string]any{"risk_number": float64(7)}, "doc-json")
	if _, ok := findCandidate(candidates, common.EntityRisk, "7"); !ok {
		t.Fatalf("numeric value not extracted: %v", candidateSummaries(candidates))
	}
}
