package tuning

import (
	"maps"
	"slices"
)

// ToolMetadata is the retrievable record for one tool: the fields the
// lexical/embedding scorers match questions against.
type ToolMetadata struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Keywords       []string `json:"keywords,omitempty"`
	ExampleQueries []string `json:"example_queries,omitempty"`
}

// RetrievalWeights is the fixed vector of named scoring weights plus the
// rerank candidate count. The weights are coupled; they are only ever
// replaced as a whole.
type RetrievalWeights struct {
	Lexical          float64 `json:"lexical"`
	Semantic         float64 `json:"semantic"`
	KeywordBoost     float64 `json:"keyword_boost"`
	ExampleBoost     float64 `json:"example_boost"`
	DescriptionBoost float64 `json:"description_boost"`
	RerankCandidates int     `json:"rerank_candidates"`
}

// Candidate is a complete configuration under evaluation: per-tool metadata
// overrides, the retrieval weight vector, and keyed prompt-text overrides.
// Candidates are immutable value objects; Apply produces a new one.
type Candidate struct {
	Metadata map[string]ToolMetadata `json:"metadata"` // keyed by tool ID
	Weights  RetrievalWeights        `json:"weights"`
	Prompts  map[string]string       `json:"prompts"`
}

// Clone returns a deep copy so callers can never alias a candidate's maps.
func (c Candidate) Clone() Candidate {
	out := Candidate{Weights: c.Weights}
	if c.Metadata != nil {
		out.Metadata = make(map[string]ToolMetadata, len(c.Metadata))
		for id, m := range c.Metadata {
			m.Keywords = slices.Clone(m.Keywords)
			m.ExampleQueries = slices.Clone(m.ExampleQueries)
			out.Metadata[id] = m
		}
	}
	if c.Prompts != nil {
		out.Prompts = maps.Clone(c.Prompts)
	}
	return out
}

// SuggestionSet is the output of the suggestion generator: proposed metadata
// edits per tool, an optional full weight-vector replacement, and prompt
// edits keyed by prompt identifier. All parts may be empty.
type SuggestionSet struct {
	Metadata map[string]ToolMetadata `json:"metadata,omitempty"`
	Weights  *RetrievalWeights       `json:"weights,omitempty"`
	Prompts  map[string]string       `json:"prompts,omitempty"`
}

// Empty reports whether the set proposes no edits at all.
func (s SuggestionSet) Empty() bool {
	return len(s.Metadata) == 0 && s.Weights == nil && len(s.Prompts) == 0
}

// Apply merges a suggestion set into the candidate and returns the result.
// Metadata suggestions replace the full per-tool record (no field-level
// merge, so a tool record is never left half-edited). A weight suggestion
// replaces the whole vector. Prompt suggestions merge key-by-key; unrelated
// prompts are untouched.
func (c Candidate) Apply(s SuggestionSet) Candidate {
	next := c.Clone()
	if len(s.Metadata) > 0 && next.Metadata == nil {
		next.Metadata = make(map[string]ToolMetadata, len(s.Metadata))
	}
	for id, m := range s.Metadata {
		m.Keywords = slices.Clone(m.Keywords)
		m.ExampleQueries = slices.Clone(m.ExampleQueries)
		next.Metadata[id] = m
	}
	if s.Weights != nil {
		next.Weights = *s.Weights
	}
	if len(s.Prompts) > 0 && next.Prompts == nil {
		next.Prompts = make(map[string]string, len(s.Prompts))
	}
	for key, text := range s.Prompts {
		next.Prompts[key] = text
	}
	return next
}

// Acceptance selects a subset of a suggestion set. It backs the manual
// curation flow where an operator ticks individual suggestions before they
// are merged.
type Acceptance struct {
	Tools   []string `json:"tools,omitempty"`
	Weights bool     `json:"weights"`
	Prompts []string `json:"prompts,omitempty"`
}

// FilterSuggestions returns the subset of s named by the acceptance. It is a
// pure filter applied before Apply; the merge policy itself is unchanged.
func FilterSuggestions(s SuggestionSet, accept Acceptance) SuggestionSet {
	var out SuggestionSet
	for _, id := range accept.Tools {
		m, ok := s.Metadata[id]
		if !ok {
			continue
		}
		if out.Metadata == nil {
			out.Metadata = make(map[string]ToolMetadata)
		}
		out.Metadata[id] = m
	}
	if accept.Weights && s.Weights != nil {
		w := *s.Weights
		out.Weights = &w
	}
	for _, key := range accept.Prompts {
		text, ok := s.Prompts[key]
		if !ok {
			continue
		}
		if out.Prompts == nil {
			out.Prompts = make(map[string]string)
		}
		out.Prompts[key] = text
	}
	return out
}
