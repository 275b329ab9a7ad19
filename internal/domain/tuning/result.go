package tuning

// CaseOutcome is the evaluation verdict for a single test case.
type CaseOutcome struct {
	CaseID  string `json:"case_id"`
	Passed  bool   `json:"passed"`
	Tool    string `json:"tool,omitempty"`    // tool actually selected
	Route   string `json:"route,omitempty"`   // route actually taken
	Failure string `json:"failure,omitempty"` // short reason when Passed is false
}

// EvaluationResult is the outcome of running one suite against one
// candidate. SuccessRate is the sole optimization signal; Metrics carries
// auxiliary per-dimension accuracies (route, agent, tool, plan, schema) that
// the loop treats as opaque.
type EvaluationResult struct {
	SuiteID     string             `json:"suite_id"`
	SuiteKind   SuiteKind          `json:"suite_kind"`
	SuccessRate float64            `json:"success_rate"` // in [0,1]
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Outcomes    []CaseOutcome      `json:"outcomes"`
}

// FailingCases returns the suite's cases that failed in this result, in
// suite order. Outcomes with no matching case are ignored.
func (r *EvaluationResult) FailingCases(suite *Suite) []TestCase {
	failed := make(map[string]bool, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if !o.Passed {
			failed[o.CaseID] = true
		}
	}
	var cases []TestCase
	for _, tc := range suite.Cases {
		if failed[tc.ID] {
			cases = append(cases, tc)
		}
	}
	return cases
}
