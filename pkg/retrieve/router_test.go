package retrieve

import (
	"testing"

	"github.com/trc-ai/riskgraph/pkg/common"
)

func TestRouter_DetectIntent(t *testing.T) {
	router := NewRouter()

	tests := []struct {
		query string
		want  common.Intent
	}{
		{"List all controls", common.IntentList},
		{"Show me all risks in the system", common.IntentList},
		{"What is AC-2?", common.IntentExplain},
		{"Tell me about the access control policy", common.IntentExplain},
		{"How is AC-2 related to R-001?", common.IntentRelationship},
		{"Which controls connect to the database?", common.IntentRelationship},
		{"Do we comply with ISO 27001?", common.IntentCompliance},
		{"Impact of removing AC-2", common.IntentImpact},
		{"hello there", common.IntentOther},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := router.DetectIntent(tt.query); got != tt.want {
				t.Fatalf("DetectIntent(%q) = %s, want %s", tt.query, got, tt.want)
			}
		})
	}
}

func TestRouter_ImpactQueryRoutesToAgent(t *testing.T) {
	router := NewRouter()

	analysis := router.Route("What would be affected if we remove AC-2?")
	if analysis.Intent != common.IntentImpact {
		t.Fatalf("intent = %s, want %s", analysis.Intent, common.IntentImpact)
	}
	if analysis.ComplexityScore < 60 {
		t.Fatalf("complexity = %d, want >= 60", analysis.ComplexityScore)
	}
	if !analysis.UseAgent {
		t.Fatal("expected agent path")
	}
	if analysis.QueryLength != 8 {
		t.Fatalf("query length = %d, want 8", analysis.QueryLength)
	}
	if analysis.Reason == "" {
		t.Fatal("expected a routing reason")
	}
}

func TestRouter_ComplexityMonotoneInMultiHopPhrases(t *testing.T) {
	router := NewRouter()

	queries := []string{
		"how does AC-2 relate to R-001",
		"how does AC-2 relate to R-001, what is the relationship between them",
		"how does AC-2 relate to R-001, what is the relationship between them, does one link to the other",
	}
	previous := -1
	for _, query := range queries {
		score := router.ComplexityScore(query)
		if score < previous {
			t.Fatalf("score decreased from %d to %d for %q", previous, score, query)
		}
		previous = score
	}
}

func TestRouter_AmbiguousQueryTakesDirectPath(t *testing.T) {
	router := NewRouter()

	analysis := router.Route("something about security maybe")
	if analysis.Intent != common.IntentOther {
		t.Fatalf("intent = %s, want %s", analysis.Intent, common.IntentOther)
	}
	if analysis.UseAgent {
		t.Fatal("ambiguous query must not route to the agent")
	}
}

func TestRouter_SimpleLookupScoresLow(t *testing.T) {
	router := NewRouter()

	analysis := router.Route("What is AC-2?")
	if analysis.UseAgent {
		t.Fatal("single entity lookup must take the direct path")
	}
	if analysis.ComplexityScore >= 40 {
		t.Fatalf("complexity = %d, want < 40", analysis.ComplexityScore)
	}
}

func TestRouter_MultipleEntityRefsRaiseScore(t *testing.T) {
	router := NewRouter()

	one := router.ComplexityScore("summarize AC-2 briefly please now")
	two := router.ComplexityScore("summarize AC-2 against R-001 now")
	if two <= one {
		t.Fatalf("two entity refs scored %d, one ref scored %d", two, one)
	}
}

func TestRouter_ScoreStaysWithinBounds(t *testing.T) {
	router := NewRouter()

	queries := []string{
		"",
		"what is x?",
		"compare the impact of removing AC-2 and AC-3 versus R-001 and R-002, " +
			"analyze every downstream consequence comprehensively, and assess all gaps? also coverage?",
	}
	for _, query := range queries {
		score := router.ComplexityScore(query)
		if score < 0 || score > 100 {
			t.Fatalf("score %d out of [0,100] for %q", score, query)
		}
	}
}
