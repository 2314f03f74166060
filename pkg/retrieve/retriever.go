package retrieve

import (
	"regexp"
	"sort"
	"strings"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/common"
	"github.com/trc-ai/riskgraph/pkg/graph"
	"github.com/trc-ai/riskgraph/pkg/store"
)

const (
	defaultTopK     = 15
	defaultMaxDepth = 2
	maxTriples      = 20
)

var keywordRe = regexp.MustCompile(`\b\w{4,}\b`)

// Retriever builds a bounded context bundle for a query: seed entities
// mentioned in the question, their graph neighbourhood, and the edges
// connecting them.
type Retriever struct {
	storage   store.GraphStorage
	extractor *graph.Extractor
	topK      int
	maxDepth  int
}

// NewRetriever wires a retriever to a graph store. The extractor is the same
// one used at build time, so the query text is matched with the exact rules
// that produced the graph. Top-K is tunable via RETRIEVE_TOP_K.
func NewRetriever(storage store.GraphStorage, extractor *graph.Extractor) *Retriever {
	return &Retriever{
		storage:   storage,
		extractor: extractor,
		topK:      util.GetEnvNumeric[int]("RETRIEVE_TOP_K", defaultTopK),
		maxDepth:  defaultMaxDepth,
	}
}

// candidate is a bundle entry before ranking and truncation.
type candidate struct {
	entity    common.Entity
	seed      bool
	depth     int
	relevance float64
}

// Retrieve assembles the context bundle for a query. Seeds are found by
// running the entity matchers over the query text and by scanning for entity
// values quoted verbatim; when neither finds anything, a keyword-overlap
// fallback scores every entity instead. An empty graph or an unmatched query
// yields an empty bundle, not an error.
func (r *Retriever) Retrieve(query string, intent common.Intent) *Bundle {
	seeds := r.findSeeds(query)

	byID := make(map[string]candidate, len(seeds))
	for _, seed := range seeds {
		byID[seed.entity.ID] = seed
	}

	for _, seed := range seeds {
		for _, related := range r.storage.GetRelated(seed.entity.ID, r.maxDepth, store.DirectionBoth, 0) {
			existing, ok := byID[related.Entity.ID]
			if ok && (existing.seed || existing.depth <= related.Depth) {
				continue
			}
			byID[related.Entity.ID] = candidate{
				entity:    related.Entity,
				depth:     related.Depth,
				relevance: related.Confidence,
			}
		}
	}

	ranked := make([]candidate, 0, len(byID))
	for _, c := range byID {
		ranked = append(ranked, c)
	}
	// Seeds first, then nearer entities, then stronger edges. ID breaks ties
	// so the bundle is deterministic.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].seed != ranked[j].seed {
			return ranked[i].seed
		}
		if ranked[i].depth != ranked[j].depth {
			return ranked[i].depth < ranked[j].depth
		}
		if ranked[i].relevance != ranked[j].relevance {
			return ranked[i].relevance > ranked[j].relevance
		}
		return ranked[i].entity.ID < ranked[j].entity.ID
	})
	if len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}

	bundle := &Bundle{
		Intent:       intent,
		Instructions: IntentInstructions(intent),
	}
	included := make(map[string]bool, len(ranked))
	for _, c := range ranked {
		included[c.entity.ID] = true
		bundle.Entities = append(bundle.Entities, BundleEntity{
			Entity:    c.entity,
			Seed:      c.seed,
			Depth:     c.depth,
			Relevance: c.relevance,
		})
	}
	bundle.Triples = r.collectTriples(ranked, included)
	return bundle
}

// findSeeds locates entities the query mentions. Matcher hits and verbatim
// value mentions count as full-relevance seeds; otherwise keyword overlap
// against value and snippet text provides a partial-relevance fallback.
func (r *Retriever) findSeeds(query string) []candidate {
	var seeds []candidate
	seen := make(map[string]bool)

	for _, c := range r.extractor.ExtractText(query, "query") {
		entity, ok := r.storage.GetEntity(c.Entity.ID)
		if !ok || seen[entity.ID] {
			continue
		}
		seen[entity.ID] = true
		seeds = append(seeds, candidate{entity: entity, seed: true, relevance: 1.0})
	}

	lower := strings.ToLower(query)
	for _, entity := range r.storage.Entities() {
		if seen[entity.ID] {
			continue
		}
		value := strings.ToLower(entity.NormalizedValue)
		if value != "" && strings.Contains(lower, value) {
			seen[entity.ID] = true
			seeds = append(seeds, candidate{entity: entity, seed: true, relevance: 1.0})
		}
	}
	if len(seeds) > 0 {
		return seeds
	}

	keywords := keywordRe.FindAllString(lower, -1)
	if len(keywords) == 0 {
		return nil
	}
	for _, entity := range r.storage.Entities() {
		text := strings.ToLower(entity.NormalizedValue)
		for _, source := range entity.Sources {
			text += " " + strings.ToLower(source.Snippet)
		}
		matches := 0
		for _, keyword := range keywords {
			if strings.Contains(text, keyword) {
				matches++
			}
		}
		if matches > 0 {
			seeds = append(seeds, candidate{
				entity:    entity,
				seed:      true,
				relevance: float64(matches) / float64(len(keywords)),
			})
		}
	}
	return seeds
}

// collectTriples gathers the edges whose both endpoints made it into the
// bundle, strongest first, deduplicated by edge id.
func (r *Retriever) collectTriples(ranked []candidate, included map[string]bool) []BundleTriple {
	var triples []BundleTriple
	seen := make(map[string]bool)
	for _, c := range ranked {
		outgoing, _ := r.storage.RelationshipsOf(c.entity.ID)
		for _, rel := range outgoing {
			if seen[rel.ID] || !included[rel.TargetEntityID] {
				continue
			}
			source, okS := r.storage.GetEntity(rel.SourceEntityID)
			target, okT := r.storage.GetEntity(rel.TargetEntityID)
			if !okS || !okT {
				continue
			}
			seen[rel.ID] = true
			triples = append(triples, BundleTriple{Source: source, Relation: rel, Target: target})
		}
	}
	sort.SliceStable(triples, func(i, j int) bool {
		return triples[i].Relation.Confidence > triples[j].Relation.Confidence
	})
	if len(triples) > maxTriples {
		triples = triples[:maxTriples]
	}
	return triples
}
