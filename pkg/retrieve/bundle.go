package retrieve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/common"
	"github.com/trc-ai/riskgraph/pkg/logger"
)

// defaultTokenBudget bounds the rendered bundle so that, together with the
// document excerpt and the question, it fits a small model context.
const defaultTokenBudget = 3000

// BundleEntity is one ranked entity of a context bundle with provenance.
type BundleEntity struct {
	Entity    common.Entity `json:"entity"`
	Seed      bool          `json:"seed"`
	Depth     int           `json:"depth"`
	Relevance float64       `json:"relevance"`
}

// BundleTriple is one edge of the bundle with both endpoints resolved.
type BundleTriple struct {
	Source   common.Entity       `json:"source"`
	Relation common.Relationship `json:"relation"`
	Target   common.Entity       `json:"target"`
}

// Bundle is the context handed to the reasoning model on the direct path:
// ranked entities, the edges connecting them, and intent-specific guidance.
type Bundle struct {
	Intent       common.Intent  `json:"intent"`
	Entities     []BundleEntity `json:"entities"`
	Triples      []BundleTriple `json:"triples"`
	Instructions string         `json:"instructions"`
}

// Empty reports whether the bundle carries no graph context. Callers fall
// back to verbatim document content in that case.
func (b *Bundle) Empty() bool {
	return len(b.Entities) == 0
}

// Render formats the bundle for the reasoning model. Entity and relationship
// blocks are appended until the token budget is spent; the summary is always
// included. A budget of 0 uses RETRIEVE_TOKEN_BUDGET or the default.
func (b *Bundle) Render(tokenBudget int) string {
	if tokenBudget <= 0 {
		tokenBudget = util.GetEnvNumeric[int]("RETRIEVE_TOKEN_BUDGET", defaultTokenBudget)
	}

	var count func(string) int
	encoding, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		logger.Warn("failed to load token encoding, falling back to word count", "error", err)
		count = func(s string) int { return len(strings.Fields(s)) }
	} else {
		count = func(s string) int { return len(encoding.Encode(s, nil, nil)) }
	}

	var sb strings.Builder
	spent := 0
	write := func(block string) bool {
		tokens := count(block)
		if spent+tokens > tokenBudget {
			return false
		}
		sb.WriteString(block)
		spent += tokens
		return true
	}

	write("=== KNOWLEDGE GRAPH CONTEXT ===\n")

	if len(b.Entities) > 0 {
		write("\n## RELEVANT ENTITIES:\n")
		for i, be := range b.Entities {
			if !write(formatEntity(i+1, be)) {
				break
			}
		}
	}

	if len(b.Triples) > 0 {
		write("\n## RELATIONSHIPS:\n")
		for i, triple := range b.Triples {
			if !write(formatTriple(i+1, triple)) {
				break
			}
		}
	}

	sb.WriteString(b.summary())
	if b.Instructions != "" {
		sb.WriteString("\n## RESPONSE INSTRUCTIONS:\n")
		sb.WriteString(b.Instructions)
	}
	return sb.String()
}

func formatEntity(rank int, be BundleEntity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%d. %s: %s", rank, be.Entity.Type, be.Entity.NormalizedValue)
	if be.Seed {
		sb.WriteString(" (mentioned in question)")
	} else {
		fmt.Fprintf(&sb, " (depth %d)", be.Depth)
	}
	sb.WriteString("\n")
	for i, source := range be.Entity.Sources {
		if i >= 2 {
			break
		}
		fmt.Fprintf(&sb, "   Source: %s at %s\n", source.DocumentID, source.Location)
		if source.Snippet != "" {
			fmt.Fprintf(&sb, "   Context: %s\n", util.TruncateText(source.Snippet, 150))
		}
	}
	return sb.String()
}

func formatTriple(rank int, triple BundleTriple) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%d. %s -[%s]-> %s: %s\n",
		rank,
		triple.Source.NormalizedValue,
		triple.Relation.Type,
		triple.Target.Type,
		triple.Target.NormalizedValue,
	)
	if triple.Relation.EvidenceText != "" {
		fmt.Fprintf(&sb, "   Evidence: %s\n", util.TruncateText(triple.Relation.EvidenceText, 100))
	}
	return sb.String()
}

func (b *Bundle) summary() string {
	entityTypes := make(map[common.EntityType]bool)
	for _, be := range b.Entities {
		entityTypes[be.Entity.Type] = true
	}
	relationTypes := make(map[common.RelationType]bool)
	for _, triple := range b.Triples {
		relationTypes[triple.Relation.Type] = true
	}

	var sb strings.Builder
	sb.WriteString("\n## SUMMARY:\n")
	fmt.Fprintf(&sb, "- Entities: %d (%s)\n", len(b.Entities), joinKeys(entityTypes))
	fmt.Fprintf(&sb, "- Relationships: %d (%s)\n", len(b.Triples), joinKeys(relationTypes))
	return sb.String()
}

func joinKeys[K ~string](set map[K]bool) string {
	if len(set) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// IntentInstructions returns response guidance for the detected intent,
// embedded into the rendered bundle.
func IntentInstructions(intent common.Intent) string {
	switch intent {
	case common.IntentList:
		return `List every matching entity with its ID and type.
Group by type or severity where applicable and mention related entities from the relationships section.`
	case common.IntentExplain:
		return `Start with a clear definition of the entity in question.
Include its attributes, its relationships to other entities, and the source documents it appears in.`
	case common.IntentRelationship:
		return `Name the entities involved and the type of their relationship.
Quote the evidence for the relationship and walk through the connection chain if multiple hops are involved.`
	case common.IntentCompliance:
		return `Identify the relevant standards and requirements.
Map controls to the requirements they satisfy and call out requirements without any implementing control.`
	case common.IntentImpact:
		return `Identify the source entity of the impact.
List the affected entities reachable through the graph, explain how the impact propagates, and suggest mitigating controls where present.`
	default:
		return `Answer using the entities and relationships above.
Cite entity IDs and source documents, and state explicitly when the graph lacks the needed information.`
	}
}
