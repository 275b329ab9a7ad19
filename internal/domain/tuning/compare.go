package tuning

import (
	"math"
	"sort"
)

// trendEpsilon is the band within which a success-rate delta counts as
// unchanged rather than a real movement.
const trendEpsilon = 1e-9

// Trend classifies the direction of a success-rate delta.
type Trend string

const (
	TrendImproved  Trend = "improved"
	TrendDegraded  Trend = "degraded"
	TrendUnchanged Trend = "unchanged"
)

// MetricDelta is one auxiliary metric's movement between two results.
type MetricDelta struct {
	Name     string  `json:"name"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	Delta    float64 `json:"delta"`
}

// Comparison is the outcome of comparing two evaluation results.
type Comparison struct {
	SuccessRateDelta float64 `json:"success_rate_delta"`
	Trend            Trend   `json:"trend"`

	// Regressions lists the negative auxiliary-metric deltas sorted ascending
	// by delta, so the worst regression surfaces first.
	Regressions []MetricDelta `json:"regressions,omitempty"`
}

// Compare computes the movement from previous to current. It is a pure
// function of the two results and is used both inside the loop (iteration
// deltas) and outside it (adhoc run versus last persisted run).
func Compare(previous, current *EvaluationResult) Comparison {
	cmp := Comparison{
		SuccessRateDelta: current.SuccessRate - previous.SuccessRate,
	}
	switch {
	case math.Abs(cmp.SuccessRateDelta) <= trendEpsilon:
		cmp.Trend = TrendUnchanged
	case cmp.SuccessRateDelta > 0:
		cmp.Trend = TrendImproved
	default:
		cmp.Trend = TrendDegraded
	}

	for name, prev := range previous.Metrics {
		cur, ok := current.Metrics[name]
		if !ok {
			continue
		}
		delta := cur - prev
		if delta >= -trendEpsilon {
			continue
		}
		cmp.Regressions = append(cmp.Regressions, MetricDelta{
			Name:     name,
			Previous: prev,
			Current:  cur,
			Delta:    delta,
		})
	}
	sort.Slice(cmp.Regressions, func(i, j int) bool {
		if cmp.Regressions[i].Delta != cmp.Regressions[j].Delta {
			return cmp.Regressions[i].Delta < cmp.Regressions[j].Delta
		}
		return cmp.Regressions[i].Name < cmp.Regressions[j].Name
	})
	return cmp
}
