// Package explain ranks per-feature attributions and narrates the result.
package explain

import (
	"fmt"
	"math"
	"sort"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// DefaultTopK bounds each ranked list.
const DefaultTopK = 5

// Attribution is a scorer-supplied signed contribution for one feature.
type Attribution struct {
	Feature      string
	Contribution float64
}

type Engine struct {
	TopK int
}

func NewEngine() *Engine { return &Engine{TopK: DefaultTopK} }

// Explain ranks attributions by absolute contribution (ties broken by name)
// and builds the summary. Zero contributions rank in topFeatures only.
func (e *Engine) Explain(attrs []Attribution, v *features.Vector, label types.DecisionLabel) types.ExplanationReport {
	k := e.TopK
	if k <= 0 {
		k = DefaultTopK
	}

	ranked := make([]types.Contribution, 0, len(attrs))
	for _, a := range attrs {
		if math.IsNaN(a.Contribution) || math.IsInf(a.Contribution, 0) {
			continue
		}
		ranked = append(ranked, types.Contribution{
			Feature:      a.Feature,
			Value:        valueOf(v, a.Feature),
			Contribution: a.Contribution,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		ai, aj := math.Abs(ranked[i].Contribution), math.Abs(ranked[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return ranked[i].Feature < ranked[j].Feature
	})

	report := types.ExplanationReport{
		TopFeatures: take(ranked, k, func(types.Contribution) bool { return true }),
		TopNegative: take(ranked, k, func(c types.Contribution) bool { return c.Contribution < 0 }),
		TopPositive: take(ranked, k, func(c types.Contribution) bool { return c.Contribution > 0 }),
	}
	switch {
	case len(report.TopNegative) > 0:
		h := report.TopNegative[0]
		report.Headline = &h
	case len(report.TopPositive) > 0:
		h := report.TopPositive[0]
		report.Headline = &h
	}
	report.Summary = summarize(label, report.Headline)
	return report
}

func take(ranked []types.Contribution, k int, keep func(types.Contribution) bool) []types.Contribution {
	out := []types.Contribution{}
	for _, c := range ranked {
		if len(out) == k {
			break
		}
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func valueOf(v *features.Vector, name string) any {
	if v == nil {
		return nil
	}
	value, ok := v.Get(name)
	if !ok {
		return nil
	}
	return value.Any()
}

func summarize(label types.DecisionLabel, h *types.Contribution) string {
	if h == nil {
		return fmt.Sprintf("Loan %s based on the overall risk profile of your application.", label)
	}
	value := formatValue(h.Value)
	if label == types.LabelApproved {
		if h.Contribution < 0 {
			return fmt.Sprintf("Loan approved even though %s (%s) lowered your approval score the most (contribution %+.2f).",
				h.Feature, value, h.Contribution)
		}
		return fmt.Sprintf("Loan approved because %s (%s) supported your approval the most (contribution %+.2f).",
			h.Feature, value, h.Contribution)
	}
	if h.Contribution < 0 {
		return fmt.Sprintf("Loan denied because %s (%s) reduced your approval score the most (contribution %+.2f).",
			h.Feature, value, h.Contribution)
	}
	return fmt.Sprintf("Loan denied even though %s (%s) supported your approval (contribution %+.2f); other factors outweighed it.",
		h.Feature, value, h.Contribution)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "withheld"
	case float64:
		return features.Number(t).String()
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
