package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/trc-ai/riskgraph/internal/util"
	"github.com/trc-ai/riskgraph/pkg/common"
)

// snippetMargin is the number of characters of surrounding context recorded
// with each text match.
const snippetMargin = 100

// entityConfidence is assigned to pattern-extracted entities. Extraction is
// heuristic, so this stays below 1.
const entityConfidence = 0.9

// ExtractionError marks a document whose content could not be processed. The
// build skips the document and continues with the rest.
type ExtractionError struct {
	DocumentID string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// entityPattern is one compiled matcher of a type's ordered pattern table.
// When the expression has a capture group, the first group is the entity
// value; otherwise the whole match is.
type entityPattern struct {
	re *regexp.Regexp
}

// entityPatternTable holds the ordered pattern lists per entity type,
// mirroring the identifier families of compliance documents: NIST-style
// control IDs, risk IDs and levels, infrastructure nouns, MUST/SHALL
// requirement clauses, named policies, owners, and standards.
var entityPatternTable = map[common.EntityType][]string{
	common.EntityControl: {
		`control[_\s]+(?:id|ID|number|#)?[:\s]*([A-Z0-9\-\.]+)`,
		`(?:control|CONTROL)\s+([A-Z]{2,}[_\-]?\d{3,})`,
		`(?:AC|AU|CM|IA|IR|MA|PE|PS|RA|SA|SC|SI|SR|AT|CA|CP|MP|PL|PM|PT)-\d{1,3}(?:\(\d+\))?`,
	},
	common.EntityRisk: {
		`risk[_\s]+(?:id|ID|number|#)?[:\s]*([A-Z0-9\-\.]+)`,
		`(?:high|medium|low|critical)\s+risk`,
		`risk[_\s]+level[:\s]*(high|medium|low|critical)`,
	},
	common.EntityAsset: {
		`asset[_\s]+(?:type|id|name)?[:\s]*([A-Za-z0-9\-_\s]+)`,
		`(?:server|database|application|network|endpoint|cloud)(?:\s+servers?)?`,
	},
	common.EntityRequirement: {
		`requirement[_\s]+(?:id|ID|number)?[:\s]*([A-Z0-9\-\.]+)`,
		`(?:MUST|SHALL|SHOULD|MAY)\s+([a-z][^.]{10,80})`,
	},
	common.EntityPolicy: {
		`policy[_\s]+(?:id|ID|number|name)?[:\s]*([A-Za-z0-9\-_\s]+)`,
		`(?:security|access|data|privacy|compliance)\s+policy`,
	},
	common.EntityPerson: {
		`(?:responsible|owner|assignee|owned\s+by|managed\s+by)[:\s]+([A-Z][a-z]+\s+[A-Z][a-z]+)`,
		`(?:manager|director|officer|analyst)[:\s]+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`,
	},
	common.EntityStandard: {
		`(?:NIST|ISO|SOC|PCI|HIPAA|GDPR|CIS|COBIT)\s*[:\-]?\s*([A-Z0-9\-\.]+)?`,
		`(?:framework|standard)[:\s]+([A-Z][A-Za-z0-9\-_\s]+)`,
	},
}

// Candidate is an entity occurrence found in one document, with its text
// position so the relationship detector can reason about proximity.
// Position is -1 for entities extracted from structured data.
type Candidate struct {
	Entity   common.Entity
	Position int
	End      int
}

// Extractor finds typed entities in document text and structured data via
// table-driven pattern dispatch. Safe for concurrent use after construction.
type Extractor struct {
	patterns map[common.EntityType][]entityPattern
}

// NewExtractor compiles the pattern tables. Panics on an invalid table entry,
// which is a programming error.
func NewExtractor() *Extractor {
	patterns := make(map[common.EntityType][]entityPattern, len(entityPatternTable))
	for entityType, exprs := range entityPatternTable {
		compiled := make([]entityPattern, 0, len(exprs))
		for _, expr := range exprs {
			compiled = append(compiled, entityPattern{re: regexp.MustCompile(`(?im)` + expr)})
		}
		patterns[entityType] = compiled
	}
	return &Extractor{patterns: patterns}
}

// ExtractDocument extracts entity candidates from a document, using the text
// matchers, the structured walker, or both. A document with neither text nor
// structured content yields an ExtractionError.
func (x *Extractor) ExtractDocument(doc common.Document) ([]Candidate, error) {
	if doc.Text == "" && doc.Structured == nil {
		return nil, &ExtractionError{DocumentID: doc.ID, Err: fmt.Errorf("document has no content")}
	}

	var candidates []Candidate
	if doc.Text != "" {
		candidates = append(candidates, x.ExtractText(doc.Text, doc.ID)...)
	}
	if doc.Structured != nil {
		candidates = append(candidates, x.ExtractJSON(doc.Structured, doc.ID)...)
	}
	return candidates, nil
}

type rawMatch struct {
	start      int
	end        int
	patternIdx int
	value      string
}

// ExtractText runs every type's pattern table over text. Overlapping matches
// within one type are resolved by preferring the longest span, then the
// earlier pattern in the table. Repeated mentions of one entity keep the
// first occurrence as the candidate position.
func (x *Extractor) ExtractText(text, documentID string) []Candidate {
	var candidates []Candidate
	for _, entityType := range common.EntityTypes {
		matches := x.collectMatches(entityType, text)
		matches = resolveOverlaps(matches)

		seen := make(map[string]bool)
		for _, m := range matches {
			value := normalizeValue(entityType, m.value)
			if value == "" {
				continue
			}
			id := common.EntityID(entityType, value)
			if seen[id] {
				continue
			}
			seen[id] = true

			candidates = append(candidates, Candidate{
				Entity: common.Entity{
					ID:              id,
					Type:            entityType,
					NormalizedValue: value,
					RawValue:        strings.TrimSpace(m.value),
					Sources: []common.Source{{
						DocumentID: documentID,
						Location:   fmt.Sprintf("offset:%d", m.start),
						Snippet:    util.Snippet(text, m.start, m.end, snippetMargin),
					}},
					Confidence: entityConfidence,
				},
				Position: m.start,
				End:      m.end,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Position < candidates[j].Position
	})
	return candidates
}

func (x *Extractor) collectMatches(entityType common.EntityType, text string) []rawMatch {
	var matches []rawMatch
	for patternIdx, pattern := range x.patterns[entityType] {
		for _, loc := range pattern.re.FindAllStringSubmatchIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			// Prefer the first capture group when present and non-empty.
			if len(loc) >= 4 && loc[2] >= 0 && loc[2] < loc[3] {
				value = text[loc[2]:loc[3]]
			}
			matches = append(matches, rawMatch{
				start:      loc[0],
				end:        loc[1],
				patternIdx: patternIdx,
				value:      value,
			})
		}
	}
	return matches
}

// resolveOverlaps keeps a non-overlapping subset of matches, preferring the
// longest span and breaking ties by table order.
func resolveOverlaps(matches []rawMatch) []rawMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		li := matches[i].end - matches[i].start
		lj := matches[j].end - matches[j].start
		if li != lj {
			return li > lj
		}
		if matches[i].patternIdx != matches[j].patternIdx {
			return matches[i].patternIdx < matches[j].patternIdx
		}
		return matches[i].start < matches[j].start
	})

	var kept []rawMatch
	for _, m := range matches {
		overlaps := false
		for _, k := range kept {
			if m.start < k.end && k.start < m.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, m)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	return kept
}

// normalizeValue trims and case-folds an extracted value per entity type.
// Identifier-like types fold to upper case, noun-like types to lower case;
// person names and requirement clauses keep their casing. Sentence-final
// punctuation is stripped so a mention at the end of a sentence lands on the
// same node as one mid-sentence.
func normalizeValue(entityType common.EntityType, value string) string {
	value = util.NormalizeSpace(value)
	value = strings.TrimSpace(strings.TrimRight(value, ".,;:"))
	switch entityType {
	case common.EntityControl, common.EntityRisk, common.EntityStandard:
		return strings.ToUpper(value)
	case common.EntityAsset, common.EntityPolicy:
		return strings.ToLower(value)
	default:
		return value
	}
}
