package graph

import (
	"regexp"
	"sort"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/common"
)

// proximityWindow is the character distance within which two entity mentions
// are considered for a relationship.
const proximityWindow = 200

// evidenceLimit caps the stored evidence text per relationship.
const evidenceLimit = 100

// fallbackConfidence scales the low-confidence RELATES_TO edge emitted for
// proximate pairs without an indicator phrase.
const fallbackConfidence = 0.5

type relationIndicator struct {
	relType  common.RelationType
	re       *regexp.Regexp
	strength float64
	order    int
}

// relationIndicatorTable maps indicator phrases to relationship types. Order
// matters: it breaks ties when two indicators sit equally close to the later
// entity of a pair.
var relationIndicatorTable = []struct {
	relType  common.RelationType
	patterns []string
	strength float64
}{
	{common.RelImplements, []string{`implements?`, `satisfies`, `addresses`, `covers`}, 0.8},
	{common.RelMitigates, []string{`mitigates?`, `reduces`, `controls`, `prevents`}, 0.8},
	{common.RelRequires, []string{`requires?`, `needs`, `depends on`, `mandates`}, 0.8},
	{common.RelOwns, []string{`owned by`, `managed by`, `responsible for`}, 0.8},
	{common.RelAppliesTo, []string{`applies to`, `applicable to`, `affect(?:s|ing)?`}, 0.8},
	{common.RelRelatesTo, []string{`related to`, `associated with`, `linked to`}, 0.7},
}

// Detector finds pairwise relationships between entity candidates that
// co-occur in one document. Safe for concurrent use after construction.
type Detector struct {
	indicators []relationIndicator
	window     int
}

// NewDetector compiles the indicator table with the default proximity window.
func NewDetector() *Detector {
	var indicators []relationIndicator
	for order, group := range relationIndicatorTable {
		for _, expr := range group.patterns {
			indicators = append(indicators, relationIndicator{
				relType:  group.relType,
				re:       regexp.MustCompile(`(?i)` + expr),
				strength: group.strength,
				order:    order,
			})
		}
	}
	return &Detector{indicators: indicators, window: proximityWindow}
}

// Detect scans the document text around every pair of candidates whose
// positions fall within the proximity window. An indicator phrase between
// the pair yields a typed relationship; the indicator closest to the later
// entity wins, since that is the phrase governing it. A proximate pair
// without any indicator still yields a low-confidence RELATES_TO edge, so
// every co-occurrence leaves a trace in the graph.
//
// Candidates are bucketed by text position so only pairs within the window
// are ever compared, keeping the pass near-linear in the candidate count.
func (d *Detector) Detect(candidates []Candidate, text, documentID string) []common.Relationship {
	positioned := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Position >= 0 {
			positioned = append(positioned, c)
		}
	}
	sort.SliceStable(positioned, func(i, j int) bool {
		return positioned[i].Position < positioned[j].Position
	})

	buckets := make(map[int][]int)
	for i, c := range positioned {
		bucket := c.Position / d.window
		buckets[bucket] = append(buckets[bucket], i)
	}

	var relationships []common.Relationship
	for i, earlier := range positioned {
		bucket := earlier.Position / d.window
		for _, j := range append(buckets[bucket], buckets[bucket+1]...) {
			if j <= i {
				continue
			}
			later := positioned[j]
			if later.Entity.ID == earlier.Entity.ID {
				continue
			}
			distance := later.Position - earlier.Position
			if distance >= d.window {
				continue
			}
			relationships = append(relationships, d.relate(earlier, later, distance, text, documentID))
		}
	}
	return relationships
}

// relate classifies the relationship of one proximate pair.
func (d *Detector) relate(earlier, later Candidate, distance int, text, documentID string) common.Relationship {
	segment := text[earlier.Position:later.End]
	offset := later.Position - earlier.Position

	best := -1
	bestDistance := 0
	for idx, indicator := range d.indicators {
		for _, loc := range indicator.re.FindAllStringIndex(segment, -1) {
			indicatorDistance := loc[1] - offset
			if indicatorDistance < 0 {
				indicatorDistance = -indicatorDistance
			}
			if best < 0 || indicatorDistance < bestDistance ||
				(indicatorDistance == bestDistance && d.indicators[best].order > indicator.order) {
				best = idx
				bestDistance = indicatorDistance
			}
		}
	}

	// Confidence decays with pair distance; distance < window keeps the
	// factor above 0.5, so every emitted edge has confidence > 0.
	proximity := 1.0 - float64(distance)/float64(2*d.window)
	relationship := common.Relationship{
		SourceEntityID: earlier.Entity.ID,
		TargetEntityID: later.Entity.ID,
		DocumentID:     documentID,
		EvidenceText:   util.TruncateText(util.NormalizeSpace(segment), evidenceLimit),
	}
	if best >= 0 {
		relationship.Type = d.indicators[best].relType
		relationship.Confidence = d.indicators[best].strength * proximity
	} else {
		relationship.Type = common.RelRelatesTo
		relationship.Confidence = fallbackConfidence * proximity
		relationship.EvidenceText = "proximity"
	}
	return relationship
}
