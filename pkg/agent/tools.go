package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/ai"
	"github.com/trc-ai/riskgraph/pkg/common"
	"github.com/trc-ai/riskgraph/pkg/search"
	"github.com/trc-ai/riskgraph/pkg/store"
)

// Result truncation limits. Tool output feeds straight back into the model
// context, so every list is capped.
const (
	maxEntityResults    = 50
	maxRelationResults  = 30
	maxGapResults       = 20
	maxTraversalResults = 50
	maxDocumentResults  = 10
	maxExternalResults  = 5
)

const (
	contextPreviewLen = 100
	defaultPathDepth  = 4
)

// Toolkit binds the agent tools to a graph store and the search
// collaborators. The external searcher is optional; when nil, the
// search_external_index tool is not offered.
type Toolkit struct {
	storage  store.GraphStorage
	searcher search.DocumentSearcher
	external search.DocumentSearcher
	state    *State
}

// NewToolkit builds a toolkit for one agent run. state receives discovered
// entity ids as tools touch them.
func NewToolkit(
	storage store.GraphStorage,
	searcher search.DocumentSearcher,
	external search.DocumentSearcher,
	state *State,
) *Toolkit {
	return &Toolkit{storage: storage, searcher: searcher, external: external, state: state}
}

// Tools assembles the registry tool set.
func (tk *Toolkit) Tools() []ai.Tool {
	tools := []ai.Tool{
		{
			Name:        "search_entities",
			Description: "Search the knowledge graph for entities by type and/or value pattern. Start here to find entity IDs.",
			Parameters:  mustSchema(searchEntitiesArgs{}),
			Handler:     tk.searchEntities,
		},
		{
			Name:        "get_entity_details",
			Description: "Get full details of one entity by its ID, including every source it appears in.",
			Parameters:  mustSchema(entityIDArgs{}),
			Handler:     tk.getEntityDetails,
		},
		{
			Name:        "get_entity_relationships",
			Description: "List entities related to one entity within a few hops, with relationship types and directions.",
			Parameters:  mustSchema(entityRelationshipsArgs{}),
			Handler:     tk.getEntityRelationships,
		},
		{
			Name:        "find_relationship_path",
			Description: "Find the shortest connection path between two entities, ignoring edge direction.",
			Parameters:  mustSchema(relationshipPathArgs{}),
			Handler:     tk.findRelationshipPath,
		},
		{
			Name:        "search_documents",
			Description: "Search the uploaded document text for keywords and return matching snippets.",
			Parameters:  mustSchema(searchDocumentsArgs{}),
			Handler:     tk.searchDocuments,
		},
		{
			Name:        "aggregate_entity_info",
			Description: "Summarize several entities at once: type, value, degree counts, and a context preview.",
			Parameters:  mustSchema(aggregateArgs{}),
			Handler:     tk.aggregateEntityInfo,
		},
		{
			Name:        "detect_compliance_gaps",
			Description: "Find entities of a type that lack an expected relationship, e.g. risks without a mitigating control.",
			Parameters:  mustSchema(complianceGapsArgs{}),
			Handler:     tk.detectComplianceGaps,
		},
		{
			Name:        "traverse_graph",
			Description: "Walk outgoing edges from a start entity up to a depth, optionally filtered by relationship types.",
			Parameters:  mustSchema(traverseArgs{}),
			Handler:     tk.traverseGraph,
		},
		{
			Name:        "query_statistics",
			Description: "Get knowledge graph statistics: entity and relationship counts per type, density, components.",
			Parameters:  mustSchema(struct{}{}),
			Handler:     tk.queryStatistics,
		},
	}
	if tk.external != nil {
		tools = append(tools, ai.Tool{
			Name:        "search_external_index",
			Description: "Semantic search over the external vector index. Use when graph coverage is insufficient.",
			Parameters:  mustSchema(searchDocumentsArgs{}),
			Handler:     tk.searchExternalIndex,
		})
	}
	return tools
}

func mustSchema(args any) map[string]any {
	schema, err := ai.GenerateSchemaMap(args)
	if err != nil {
		panic(fmt.Sprintf("tool argument schema: %v", err))
	}
	return schema
}

type searchEntitiesArgs struct {
	EntityType   string `json:"entity_type,omitempty" jsonschema_description:"Entity type filter: CONTROL, RISK, ASSET, REQUIREMENT, POLICY, PERSON or STANDARD. Empty for all types."`
	ValuePattern string `json:"value_pattern,omitempty" jsonschema_description:"Regular expression matched against entity values. Empty for all values."`
}

type entityIDArgs struct {
	EntityID string `json:"entity_id" jsonschema_description:"The entity ID, e.g. CONTROL_AC-2."`
}

type entityRelationshipsArgs struct {
	EntityID string `json:"entity_id" jsonschema_description:"The entity ID to expand from."`
	MaxDepth int    `json:"max_depth,omitempty" jsonschema_description:"Relationship hops to follow, 1-3. Defaults to 1."`
}

type relationshipPathArgs struct {
	SourceEntityID string `json:"source_entity_id" jsonschema_description:"Starting entity ID."`
	TargetEntityID string `json:"target_entity_id" jsonschema_description:"Target entity ID."`
	MaxDepth       int    `json:"max_depth,omitempty" jsonschema_description:"Maximum path length in hops. Defaults to 4."`
}

type searchDocumentsArgs struct {
	Query string `json:"query" jsonschema_description:"Keywords or phrase to search for."`
	TopK  int    `json:"top_k,omitempty" jsonschema_description:"Maximum number of matches to return."`
}

type aggregateArgs struct {
	EntityIDs []string `json:"entity_ids" jsonschema_description:"Entity IDs to aggregate."`
}

type complianceGapsArgs struct {
	SubjectType      string `json:"subject_type,omitempty" jsonschema_description:"Entity type to check for coverage. Defaults to RISK."`
	RelationshipType string `json:"relationship_type,omitempty" jsonschema_description:"Expected relationship type. Defaults to MITIGATES."`
	ObjectTypeFilter string `json:"object_type_filter,omitempty" jsonschema_description:"Only count relationships whose other endpoint has this entity type."`
}

type traverseArgs struct {
	StartEntityID      string `json:"start_entity_id" jsonschema_description:"Entity ID to start from."`
	MaxDepth           int    `json:"max_depth,omitempty" jsonschema_description:"Traversal depth, 1-3 recommended. Defaults to 2."`
	RelationshipFilter string `json:"relationship_filter,omitempty" jsonschema_description:"Comma-separated relationship types to follow. Empty follows all."`
}

type entitySummary struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Value          string `json:"value"`
	Source         string `json:"source"`
	ContextPreview string `json:"context_preview,omitempty"`
}

func summarize(e common.Entity) entitySummary {
	s := entitySummary{
		ID:    e.ID,
		Type:  string(e.Type),
		Value: e.NormalizedValue,
	}
	if len(e.Sources) > 0 {
		s.Source = e.Sources[0].DocumentID
		s.ContextPreview = util.TruncateText(e.Sources[0].Snippet, contextPreviewLen)
	}
	return s
}

func toJSON(v any) (string, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(raw), nil
}

func (tk *Toolkit) searchEntities(ctx context.Context, arguments string) (string, error) {
	var args searchEntitiesArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}
	if args.EntityType != "" && !common.EntityType(args.EntityType).Valid() {
		return "", fmt.Errorf("unknown entity type %q", args.EntityType)
	}

	entities, err := tk.storage.QueryEntities(common.EntityType(args.EntityType), args.ValuePattern)
	if err != nil {
		return "", err
	}

	results := make([]entitySummary, 0, min(len(entities), maxEntityResults))
	for _, e := range entities {
		if len(results) >= maxEntityResults {
			break
		}
		tk.state.Discover(e.ID)
		results = append(results, summarize(e))
	}
	return toJSON(map[string]any{
		"count":    len(entities),
		"showing":  len(results),
		"entities": results,
	})
}

func (tk *Toolkit) getEntityDetails(ctx context.Context, arguments string) (string, error) {
	var args entityIDArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}

	entity, ok := tk.storage.GetEntity(args.EntityID)
	if !ok {
		return "", fmt.Errorf("entity %q not found", args.EntityID)
	}
	tk.state.Discover(entity.ID)
	return toJSON(entity)
}

func (tk *Toolkit) getEntityRelationships(ctx context.Context, arguments string) (string, error) {
	var args entityRelationshipsArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}
	if _, ok := tk.storage.GetEntity(args.EntityID); !ok {
		return "", fmt.Errorf("entity %q not found", args.EntityID)
	}
	depth := args.MaxDepth
	if depth <= 0 {
		depth = 1
	}

	related := tk.storage.GetRelated(args.EntityID, depth, store.DirectionBoth, 0)

	type relatedSummary struct {
		RelatedID        string  `json:"related_id"`
		RelatedType      string  `json:"related_type"`
		RelatedValue     string  `json:"related_value"`
		RelationshipType string  `json:"relationship_type"`
		Direction        string  `json:"direction"`
		Depth            int     `json:"depth"`
		Confidence       float64 `json:"confidence"`
	}
	results := make([]relatedSummary, 0, min(len(related), maxRelationResults))
	for _, rel := range related {
		if len(results) >= maxRelationResults {
			break
		}
		tk.state.Discover(rel.Entity.ID)
		results = append(results, relatedSummary{
			RelatedID:        rel.Entity.ID,
			RelatedType:      string(rel.Entity.Type),
			RelatedValue:     rel.Entity.NormalizedValue,
			RelationshipType: string(rel.RelationType),
			Direction:        string(rel.Direction),
			Depth:            rel.Depth,
			Confidence:       rel.Confidence,
		})
	}
	return toJSON(map[string]any{
		"source_entity": args.EntityID,
		"total_related": len(related),
		"showing":       len(results),
		"relationships": results,
	})
}

func (tk *Toolkit) findRelationshipPath(ctx context.Context, arguments string) (string, error) {
	var args relationshipPathArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}
	if _, ok := tk.storage.GetEntity(args.SourceEntityID); !ok {
		return "", fmt.Errorf("source entity %q not found", args.SourceEntityID)
	}
	if _, ok := tk.storage.GetEntity(args.TargetEntityID); !ok {
		return "", fmt.Errorf("target entity %q not found", args.TargetEntityID)
	}
	depth := args.MaxDepth
	if depth <= 0 {
		depth = defaultPathDepth
	}

	steps, found := tk.storage.FindPath(args.SourceEntityID, args.TargetEntityID, depth)
	if !found {
		return toJSON(map[string]any{
			"path_found": false,
			"message":    fmt.Sprintf("no connection within %d hops", depth),
		})
	}

	type pathStep struct {
		Step         int           `json:"step"`
		From         entitySummary `json:"from"`
		Relationship string        `json:"relationship"`
		To           entitySummary `json:"to"`
	}
	path := make([]pathStep, 0, len(steps))
	for i, step := range steps {
		tk.state.Discover(step.From.ID, step.To.ID)
		path = append(path, pathStep{
			Step:         i + 1,
			From:         summarize(step.From),
			Relationship: string(step.Relation.Type),
			To:           summarize(step.To),
		})
	}
	return toJSON(map[string]any{
		"path_found":  true,
		"path_length": len(path),
		"path":        path,
	})
}

func (tk *Toolkit) searchDocuments(ctx context.Context, arguments string) (string, error) {
	var args searchDocumentsArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}
	topK := args.TopK
	if topK <= 0 || topK > maxDocumentResults {
		topK = maxDocumentResults
	}

	matches, err := tk.searcher.Search(ctx, args.Query, topK)
	if err != nil {
		return "", err
	}
	return toJSON(map[string]any{
		"query":         args.Query,
		"matches_found": len(matches),
		"matches":       matches,
	})
}

func (tk *Toolkit) aggregateEntityInfo(ctx context.Context, arguments string) (string, error) {
	var args aggregateArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}

	type aggregated struct {
		entitySummary
		RelationshipsIn  int `json:"relationships_in"`
		RelationshipsOut int `json:"relationships_out"`
	}
	results := make([]aggregated, 0, len(args.EntityIDs))
	for _, id := range args.EntityIDs {
		entity, ok := tk.storage.GetEntity(strings.TrimSpace(id))
		if !ok {
			continue
		}
		outgoing, incoming := tk.storage.RelationshipsOf(entity.ID)
		tk.state.Discover(entity.ID)
		results = append(results, aggregated{
			entitySummary:    summarize(entity),
			RelationshipsIn:  len(incoming),
			RelationshipsOut: len(outgoing),
		})
	}
	return toJSON(map[string]any{
		"requested": len(args.EntityIDs),
		"found":     len(results),
		"entities":  results,
	})
}

// severityRank orders gap records: entities whose value names a severity sort
// before those that do not, highest severity first.
func severityRank(value string) int {
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "critical"):
		return 4
	case strings.Contains(lower, "high"):
		return 3
	case strings.Contains(lower, "medium"):
		return 2
	case strings.Contains(lower, "low"):
		return 1
	}
	return 0
}

func (tk *Toolkit) detectComplianceGaps(ctx context.Context, arguments string) (string, error) {
	var args complianceGapsArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}
	if args.SubjectType == "" {
		args.SubjectType = string(common.EntityRisk)
	}
	if args.RelationshipType == "" {
		args.RelationshipType = string(common.RelMitigates)
	}
	if !common.EntityType(args.SubjectType).Valid() {
		return "", fmt.Errorf("unknown entity type %q", args.SubjectType)
	}
	if !common.RelationType(args.RelationshipType).Valid() {
		return "", fmt.Errorf("unknown relationship type %q", args.RelationshipType)
	}

	subjects, err := tk.storage.QueryEntities(common.EntityType(args.SubjectType), "")
	if err != nil {
		return "", err
	}

	wanted := common.RelationType(args.RelationshipType)
	type gap struct {
		entitySummary
		MissingRelationship string `json:"missing_relationship"`
	}
	var gaps []gap
	for _, subject := range subjects {
		outgoing, incoming := tk.storage.RelationshipsOf(subject.ID)
		covered := false
		for _, rel := range incoming {
			if rel.Type == wanted && tk.counterpartMatches(rel.SourceEntityID, args.ObjectTypeFilter) {
				covered = true
				break
			}
		}
		if !covered {
			for _, rel := range outgoing {
				if rel.Type == wanted && tk.counterpartMatches(rel.TargetEntityID, args.ObjectTypeFilter) {
					covered = true
					break
				}
			}
		}
		if !covered {
			tk.state.Discover(subject.ID)
			gaps = append(gaps, gap{
				entitySummary:       summarize(subject),
				MissingRelationship: args.RelationshipType,
			})
		}
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		ri, rj := severityRank(gaps[i].Value), severityRank(gaps[j].Value)
		if ri != rj {
			return ri > rj
		}
		return gaps[i].Value < gaps[j].Value
	})
	total := len(gaps)
	if len(gaps) > maxGapResults {
		gaps = gaps[:maxGapResults]
	}
	return toJSON(map[string]any{
		"total_entities_checked":    len(subjects),
		"gaps_found":                total,
		"entity_type":               args.SubjectType,
		"missing_relationship_type": args.RelationshipType,
		"gaps":                      gaps,
	})
}

func (tk *Toolkit) counterpartMatches(entityID, typeFilter string) bool {
	if typeFilter == "" {
		return true
	}
	entity, ok := tk.storage.GetEntity(entityID)
	return ok && string(entity.Type) == typeFilter
}

func (tk *Toolkit) traverseGraph(ctx context.Context, arguments string) (string, error) {
	var args traverseArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}
	start, ok := tk.storage.GetEntity(args.StartEntityID)
	if !ok {
		return "", fmt.Errorf("entity %q not found", args.StartEntityID)
	}
	depth := args.MaxDepth
	if depth <= 0 {
		depth = 2
	}

	var filter map[common.RelationType]bool
	if args.RelationshipFilter != "" {
		filter = make(map[common.RelationType]bool)
		for _, name := range strings.Split(args.RelationshipFilter, ",") {
			filter[common.RelationType(strings.TrimSpace(name))] = true
		}
	}

	type discovered struct {
		entitySummary
		Depth int `json:"depth"`
	}
	tk.state.Discover(start.ID)
	results := []discovered{{entitySummary: summarize(start), Depth: 0}}
	total := 1

	// Breadth-first over outgoing edges, following only edges the filter
	// allows. An entity behind a disallowed edge is not reached through it,
	// but still appears when an allowed path leads there.
	type frontier struct {
		id    string
		depth int
	}
	visited := map[string]bool{start.ID: true}
	queue := []frontier{{id: start.ID, depth: 0}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= depth {
			continue
		}
		outgoing, _ := tk.storage.RelationshipsOf(current.id)
		for _, rel := range outgoing {
			if filter != nil && !filter[rel.Type] {
				continue
			}
			if visited[rel.TargetEntityID] {
				continue
			}
			visited[rel.TargetEntityID] = true
			target, ok := tk.storage.GetEntity(rel.TargetEntityID)
			if !ok {
				continue
			}
			total++
			queue = append(queue, frontier{id: target.ID, depth: current.depth + 1})
			if len(results) >= maxTraversalResults {
				continue
			}
			tk.state.Discover(target.ID)
			results = append(results, discovered{entitySummary: summarize(target), Depth: current.depth + 1})
		}
	}
	return toJSON(map[string]any{
		"start_entity":        args.StartEntityID,
		"max_depth":           depth,
		"entities_discovered": total,
		"entities":            results,
	})
}

func (tk *Toolkit) queryStatistics(ctx context.Context, arguments string) (string, error) {
	return toJSON(tk.storage.Statistics())
}

func (tk *Toolkit) searchExternalIndex(ctx context.Context, arguments string) (string, error) {
	var args searchDocumentsArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", err
	}
	topK := args.TopK
	if topK <= 0 || topK > maxExternalResults {
		topK = maxExternalResults
	}

	matches, err := tk.external.Search(ctx, args.Query, topK)
	if err != nil {
		return "", err
	}
	return toJSON(map[string]any{
		"query":         args.Query,
		"matches_found": len(matches),
		"matches":       matches,
	})
}
