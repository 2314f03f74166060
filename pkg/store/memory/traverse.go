package memory

import (
	"github.com/trc-ai/riskgraph/pkg/store"
)

// defaultMaxNodes bounds the number of explored nodes per traversal so dense
// graphs cannot blow up a single query.
const defaultMaxNodes = 500

type neighborStep struct {
	idx       int
	edge      int
	direction store.Direction
}

// GetRelated expands breadth-first from entityID up to maxDepth hops. Each
// entity is reported once, at the depth it was first reached, which keeps the
// result monotonically non-decreasing in maxDepth. maxDepth <= 0 returns an
// empty slice; maxNodes <= 0 applies the default cap.
func (g *GraphStore) GetRelated(entityID string, maxDepth int, direction store.Direction, maxNodes int) []store.Related {
	g.mu.RLock()
	defer g.mu.RUnlock()

	related := []store.Related{}
	if maxDepth <= 0 {
		return related
	}
	start, ok := g.byID[entityID]
	if !ok {
		return related
	}
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}
	if direction == "" {
		direction = store.DirectionBoth
	}

	type queueItem struct {
		idx   int
		depth int
		path  []string
	}
	visited := map[int]bool{start: true}
	queue := []queueItem{{idx: start, depth: 0, path: []string{entityID}}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth == maxDepth {
			continue
		}
		for _, step := range g.neighbors(item.idx, direction) {
			if visited[step.idx] {
				continue
			}
			visited[step.idx] = true

			edge := g.relationships[step.edge]
			entity := g.entities[step.idx]
			related = append(related, store.Related{
				Entity:       entity,
				Depth:        item.depth + 1,
				RelationType: edge.Type,
				Direction:    step.direction,
				Confidence:   edge.Confidence,
				Path:         item.path,
			})
			if len(visited) > maxNodes {
				return related
			}

			path := make([]string, len(item.path), len(item.path)+1)
			copy(path, item.path)
			queue = append(queue, queueItem{idx: step.idx, depth: item.depth + 1, path: append(path, entity.ID)})
		}
	}
	return related
}

// neighbors lists the adjacent nodes of idx together with the edge that
// connects them, honoring the traversal direction. Caller must hold at least
// a read lock.
func (g *GraphStore) neighbors(idx int, direction store.Direction) []neighborStep {
	var steps []neighborStep
	if direction == store.DirectionOut || direction == store.DirectionBoth {
		for _, edgeIdx := range g.outgoing[idx] {
			target := g.byID[g.relationships[edgeIdx].TargetEntityID]
			steps = append(steps, neighborStep{idx: target, edge: edgeIdx, direction: store.DirectionOut})
		}
	}
	if direction == store.DirectionIn || direction == store.DirectionBoth {
		for _, edgeIdx := range g.incoming[idx] {
			source := g.byID[g.relationships[edgeIdx].SourceEntityID]
			steps = append(steps, neighborStep{idx: source, edge: edgeIdx, direction: store.DirectionIn})
		}
	}
	return steps
}

type pathVisit struct {
	prev int
	edge int
}

// FindPath runs a bidirectional breadth-first search between fromID and toID,
// treating every edge as undirected, and returns the first shortest path
// found within maxDepth hops. maxDepth <= 0 defaults to 4.
func (g *GraphStore) FindPath(fromID, toID string, maxDepth int) ([]store.PathStep, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if maxDepth <= 0 {
		maxDepth = 4
	}
	a, okA := g.byID[fromID]
	b, okB := g.byID[toID]
	if !okA || !okB {
		return nil, false
	}
	if a == b {
		return []store.PathStep{}, true
	}

	fromSide := map[int]pathVisit{a: {prev: -1, edge: -1}}
	toSide := map[int]pathVisit{b: {prev: -1, edge: -1}}
	frontierFrom := []int{a}
	frontierTo := []int{b}

	meet := -1
	for total := 0; meet < 0 && total < maxDepth && len(frontierFrom) > 0 && len(frontierTo) > 0; total++ {
		if len(frontierFrom) <= len(frontierTo) {
			frontierFrom, meet = g.expandFrontier(frontierFrom, fromSide, toSide)
		} else {
			frontierTo, meet = g.expandFrontier(frontierTo, toSide, fromSide)
		}
	}
	if meet < 0 {
		return nil, false
	}

	// Walk back from the meeting point on both sides. The from side yields
	// the hops a -> meet in reverse, the to side yields meet -> b in order.
	var steps []store.PathStep
	for idx := meet; fromSide[idx].prev >= 0; idx = fromSide[idx].prev {
		visit := fromSide[idx]
		steps = append([]store.PathStep{{
			From:     g.entities[visit.prev],
			Relation: g.relationships[visit.edge],
			To:       g.entities[idx],
		}}, steps...)
	}
	for idx := meet; toSide[idx].prev >= 0; idx = toSide[idx].prev {
		visit := toSide[idx]
		steps = append(steps, store.PathStep{
			From:     g.entities[idx],
			Relation: g.relationships[visit.edge],
			To:       g.entities[visit.prev],
		})
	}
	return steps, true
}

// expandFrontier advances one BFS level on one side. It returns the next
// frontier and, when a newly visited node is already known to the other
// side, that node's index as the meeting point.
func (g *GraphStore) expandFrontier(frontier []int, side, other map[int]pathVisit) ([]int, int) {
	meet := -1
	var next []int
	for _, idx := range frontier {
		for _, step := range g.neighbors(idx, store.DirectionBoth) {
			if _, seen := side[step.idx]; seen {
				continue
			}
			side[step.idx] = pathVisit{prev: idx, edge: step.edge}
			next = append(next, step.idx)
			if _, hit := other[step.idx]; hit && meet < 0 {
				meet = step.idx
			}
		}
	}
	return next, meet
}
