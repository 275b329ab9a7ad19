// Package suggester defines the suggestion generation port (interface).
package suggester

import (
	"context"

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/domain/tuning"
)

// Suggester proposes configuration edits given the current candidate and
// the cases it failed. An empty suggestion set is a valid answer meaning
// "nothing left to try"; only a transport or parse failure is an error.
type Suggester interface {
	Suggest(ctx context.Context, candidate tuning.Candidate, failing []tuning.TestCase) (tuning.SuggestionSet, error)
}
