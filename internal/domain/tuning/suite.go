// Package tuning defines the domain types for the tool-retrieval auto-tuning
// loop: test suites, configuration candidates, evaluation results, and the
// iteration history a loop run produces.
package tuning

import "fmt"

// Difficulty labels a test question's expected difficulty.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// SuiteKind distinguishes the training suite from the held-out suite.
type SuiteKind string

const (
	SuiteTrain   SuiteKind = "train"
	SuiteHoldout SuiteKind = "holdout"
)

// Expected is the outcome a test case must produce when routed through the
// tool-selection pipeline.
type Expected struct {
	ToolID           string            `json:"tool_id"`
	Category         string            `json:"category,omitempty"`
	AgentID          string            `json:"agent_id,omitempty"`
	Route            string            `json:"route,omitempty"`
	SubRoute         string            `json:"sub_route,omitempty"`
	PlanRequirements []string          `json:"plan_requirements,omitempty"`
	InputFields      []string          `json:"input_fields,omitempty"`
	FieldValues      map[string]string `json:"field_values,omitempty"`
}

// TestCase is a single evaluation question with its expected routing outcome.
// Cases are immutable once generated.
type TestCase struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Expected   Expected   `json:"expected"`
}

// Suite is an ordered, frozen list of test cases. Suites are generated once
// per loop run and reused across all its iterations.
type Suite struct {
	ID    string     `json:"id"`
	Kind  SuiteKind  `json:"kind"`
	Cases []TestCase `json:"cases"`
}

// GenerationParams scope a suite generation request.
type GenerationParams struct {
	Categories    []string           `json:"categories,omitempty"`
	Providers     []string           `json:"providers,omitempty"`
	QuestionCount int                `json:"question_count"`
	Difficulty    map[Difficulty]int `json:"difficulty,omitempty"` // per-label question counts; empty means generator's choice

	// Dataset, when set, names a pinned YAML suite to load instead of
	// generating questions.
	Dataset string `json:"dataset,omitempty"`
}

// Validate checks generation parameters before a run starts.
func (p *GenerationParams) Validate() error {
	if p.Dataset != "" {
		return nil
	}
	if p.QuestionCount < 1 {
		return fmt.Errorf("question_count must be >= 1")
	}
	total := 0
	for d, n := range p.Difficulty {
		switch d {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
		default:
			return fmt.Errorf("unknown difficulty %q", d)
		}
		if n < 0 {
			return fmt.Errorf("difficulty count for %q must be >= 0", d)
		}
		total += n
	}
	if len(p.Difficulty) > 0 && total != p.QuestionCount {
		return fmt.Errorf("difficulty counts sum to %d, want question_count %d", total, p.QuestionCount)
	}
	return nil
}
