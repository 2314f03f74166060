package docs

import (
	"testing"

	"github.com/trc-ai/riskgraph/pkg/common"
)

func TestParse_PlainText(t *testing.T) {
	doc, err := Parse("doc-1", "policy.txt", []byte("Control AC-2 mitigates risk R-001."))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Text != "Control AC-2 mitigates risk R-001." {
		t.Fatalf("unexpected text: %q", doc.Text)
	}
	if doc.Structured != nil {
		t.Fatal("plain text must not carry a structured value")
	}
}

func TestParse_JSONCarriesStructuredValue(t *testing.T) {
	doc, err := Parse("doc-2", "risks.json", []byte(`{"risk_id": "R-001"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Structured == nil {
		t.Fatal("expected structured value for JSON document")
	}
	m, ok := doc.Structured.(map[string]any)
	if !ok || m["risk_id"] != "R-001" {
		t.Fatalf("unexpected structured value: %v", doc.Structured)
	}
}

func TestParse_BrokenJSONFallsBackToText(t *testing.T) {
	doc, err := Parse("doc-3", "broken.json", []byte(`{"risk_id": `))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Structured != nil {
		t.Fatal("broken JSON must not carry a structured value")
	}
	if doc.Text == "" {
		t.Fatal("text must survive a JSON parse failure")
	}
}

func TestParse_RejectsBinaryContent(t *testing.T) {
	if _, err := Parse("doc-4", "blob.bin", []byte{0xff, 0xfe, 0x00}); err == nil {
		t.Fatal("expected error for non-UTF-8 content")
	}
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()
	r.Add(common.Document{ID: "b", Name: "b.txt", Text: "b"})
	r.Add(common.Document{ID: "a", Name: "a.txt", Text: "a"})

	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}

	doc, ok := r.Get("a")
	if !ok || doc.Name != "a.txt" {
		t.Fatalf("Get(a) = %+v, %v", doc, ok)
	}

	all := r.All()
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("All() not ordered by ID: %+v", all)
	}

	if !r.Remove("a") {
		t.Fatal("Remove(a) = false, want true")
	}
	if r.Remove("a") {
		t.Fatal("second Remove(a) = true, want false")
	}
	if _, ok := r.Get("a"); ok {
		t.Fatal("removed document still present")
	}
}

func TestRegistry_AddReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Add(common.Document{ID: "a", Name: "old.txt", Text: "old"})
	r.Add(common.Document{ID: "a", Name: "new.txt", Text: "new"})

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	doc, _ := r.Get("a")
	if doc.Name != "new.txt" {
		t.Fatalf("expected replacement, got %+v", doc)
	}
}
