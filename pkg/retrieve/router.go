// Package retrieve routes questions by complexity and builds bounded context
// bundles from the knowledge graph for the reasoning model.
package retrieve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/common"
)

// defaultComplexityThreshold is the score at or above which a query is routed
// to the agent path.
const defaultComplexityThreshold = 60

// RouteAnalysis explains a routing decision. It is returned alongside the
// decision so API consumers can inspect why a query went to the agent.
type RouteAnalysis struct {
	ComplexityScore int           `json:"complexity_score"`
	Intent          common.Intent `json:"intent"`
	UseAgent        bool          `json:"use_agent"`
	Reason          string        `json:"reason"`
	QueryLength     int           `json:"query_length"`
}

// intentRule maps keyword patterns onto one intent. Rules are checked in
// order and the first match wins; no match falls through to IntentOther.
type intentRule struct {
	intent   common.Intent
	patterns []string
}

var intentRuleTable = []intentRule{
	{common.IntentList, []string{
		`list\s+(?:all\s+)?\w*(?:control|risk|asset|requirement|polic)`,
		`what\s+(?:controls|risks|assets|requirements|policies)`,
		`show\s+(?:me\s+)?all`,
		`get\s+all`,
	}},
	{common.IntentExplain, []string{
		`what\s+is\b`,
		`\bexplain\b`,
		`\bdescribe\b`,
		`tell\s+me\s+about`,
		`\bdefine\b`,
	}},
	{common.IntentRelationship, []string{
		`how.*relate`,
		`\bconnect`,
		`\brelationship`,
		`\blink`,
		`\bassociate`,
	}},
	{common.IntentCompliance, []string{
		`\bcompl(?:y|iance|iant)`,
		`\bstandard`,
		`\brequirement`,
		`\bmandate`,
		`\bgap\b`,
		`\bcoverage\b`,
	}},
	{common.IntentImpact, []string{
		`\bimpact`,
		`\baffect`,
		`\bconsequence`,
		`\bdownstream`,
		`\bdepend`,
		`\bremove\b`,
	}},
}

// complexityCategory is one family of phrasings that raises the complexity
// score. Unlike intent rules, every matching pattern counts, so a query that
// stacks multi-hop phrasings scores higher than one that uses a single one.
type complexityCategory struct {
	name     string
	weight   int
	patterns []string
}

var complexityCategoryTable = []complexityCategory{
	{"multi_hop", 30, []string{
		`how.*relate`,
		`connect.*to`,
		`relationship between`,
		`link.*to`,
		`associate.*with`,
	}},
	{"impact_analysis", 35, []string{
		`what would.*affect`,
		`impact.*of`,
		`if.*remove`,
		`consequence`,
		`downstream`,
		`depend.*on`,
	}},
	{"gap_analysis", 25, []string{
		`what.*missing`,
		`which.*lack`,
		`don't have`,
		`without`,
		`\bgap\b`,
		`coverage`,
	}},
	{"comparative", 30, []string{
		`compare`,
		`difference between`,
		`versus`,
		`\bvs\b`,
		`both.*and`,
		`either.*or`,
	}},
	{"complex_aggregation", 20, []string{
		`all.*that.*and`,
		`comprehensive`,
		`everything.*about`,
		`complete.*analysis`,
	}},
}

// simplePatternTable lowers the score for lookups a single retrieval answers.
// Each category counts at most once.
var simplePatternTable = [][]string{
	{
		`^what is\s+\w+[\-\d]*\s*\?*$`,
		`^define\s+\w+`,
		`^explain\s+\w+[\-\d]*\s*\?*$`,
	},
	{
		`^list all\s+\w+s*\s*\?*$`,
		`^show me all\s+\w+s*\s*\?*$`,
		`^get all\s+\w+s*\s*\?*$`,
	},
}

// entityRefPatterns spot identifier-shaped tokens; several of them in one
// query means the question spans multiple graph nodes.
var entityRefPatterns = []string{
	`\b[A-Z]{2,}-\d+`,
	`\bR-\d+`,
	`\bREQ-\d+`,
	`\bISO\s+\d+`,
	`\bNIST\b`,
}

var analysisWords = []string{
	"analyze", "evaluate", "assess", "determine",
	"comprehensive", "detailed", "thorough",
	"all", "every", "each",
}

var conjunctionRe = regexp.MustCompile(`\b(and|or|but|however|also)\b`)

type compiledCategory struct {
	name     string
	weight   int
	patterns []*regexp.Regexp
}

type compiledIntentRule struct {
	intent   common.Intent
	patterns []*regexp.Regexp
}

// Router classifies query intent and estimates the number of reasoning steps
// a query needs, choosing between direct retrieval and the agent loop.
type Router struct {
	threshold  int
	intents    []compiledIntentRule
	complex    []compiledCategory
	simple     [][]*regexp.Regexp
	entityRefs []*regexp.Regexp
}

// NewRouter compiles the rule tables. The agent threshold can be tuned via
// ROUTER_COMPLEXITY_THRESHOLD.
func NewRouter() *Router {
	r := &Router{
		threshold: util.GetEnvNumeric[int]("ROUTER_COMPLEXITY_THRESHOLD", defaultComplexityThreshold),
	}
	for _, rule := range intentRuleTable {
		r.intents = append(r.intents, compiledIntentRule{rule.intent, compileAll(rule.patterns)})
	}
	for _, category := range complexityCategoryTable {
		r.complex = append(r.complex, compiledCategory{
			name:     category.name,
			weight:   category.weight,
			patterns: compileAll(category.patterns),
		})
	}
	for _, patterns := range simplePatternTable {
		r.simple = append(r.simple, compileAll(patterns))
	}
	r.entityRefs = compileAll(entityRefPatterns)
	return r
}

func compileAll(exprs []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		compiled = append(compiled, regexp.MustCompile(expr))
	}
	return compiled
}

// DetectIntent returns the first intent whose rule matches, or IntentOther.
func (r *Router) DetectIntent(query string) common.Intent {
	lower := strings.ToLower(query)
	for _, rule := range r.intents {
		for _, re := range rule.patterns {
			if re.MatchString(lower) {
				return rule.intent
			}
		}
	}
	return common.IntentOther
}

// ComplexityScore estimates in [0,100] how many reasoning steps a query
// requires. Every matched complexity pattern adds its category weight, so the
// score never decreases when another multi-hop phrasing is added.
func (r *Router) ComplexityScore(query string) int {
	score := 0
	lower := strings.ToLower(query)

	switch wordCount := len(strings.Fields(query)); {
	case wordCount > 15:
		score += 20
	case wordCount > 10:
		score += 10
	case wordCount > 5:
		score += 5
	}

	for _, category := range r.complex {
		for _, re := range category.patterns {
			if re.MatchString(lower) {
				score += category.weight
			}
		}
	}

	for _, patterns := range r.simple {
		for _, re := range patterns {
			if re.MatchString(lower) {
				score -= 20
				break
			}
		}
	}

	entityRefs := 0
	for _, re := range r.entityRefs {
		entityRefs += len(re.FindAllString(query, -1))
	}
	switch {
	case entityRefs > 2:
		score += 25
	case entityRefs == 2:
		score += 15
	}

	for _, word := range analysisWords {
		if strings.Contains(lower, word) {
			score += 5
		}
	}

	if strings.Count(query, "?") > 1 {
		score += 15
	}
	if conjunctionRe.MatchString(lower) {
		score += 10
	}

	return min(100, max(0, score))
}

// Route decides the retrieval path for a query. The complexity threshold is
// the single switch: scores at or above it go to the agent loop, everything
// else takes the direct path. A query matching no rule at all scores low and
// therefore defaults to the cheap path, never to the agent.
func (r *Router) Route(query string) RouteAnalysis {
	score := r.ComplexityScore(query)
	intent := r.DetectIntent(query)

	useAgent := score >= r.threshold

	return RouteAnalysis{
		ComplexityScore: score,
		Intent:          intent,
		UseAgent:        useAgent,
		Reason:          r.routingReason(useAgent, score, intent),
		QueryLength:     len(strings.Fields(query)),
	}
}

func (r *Router) routingReason(useAgent bool, score int, intent common.Intent) string {
	if useAgent {
		if score >= 80 {
			return fmt.Sprintf("very high complexity (score %d) requires multi-step reasoning", score)
		}
		return fmt.Sprintf("complexity score %d reaches threshold %d", score, r.threshold)
	}
	if score < 40 {
		return fmt.Sprintf("low complexity (score %d, intent %s) suits direct retrieval", score, intent)
	}
	return "question can be answered with direct retrieval"
}
