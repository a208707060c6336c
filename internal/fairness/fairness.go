// Package fairness measures selection rate by group over a reference
// population and raises bias alerts onto the Governance Chain.
package fairness

import (
	"context"
	"fmt"
	"math"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/scorer"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// CandidateAttributes are tried in order when no sensitive attribute is configured.
var CandidateAttributes = []string{"Gender", "Married", "Property_Area"}

// UnknownGroup collects rows with no value for the sensitive attribute.
const UnknownGroup = "unknown"

type Thresholds struct {
	DisparateImpactMin  float64
	ParityDifferenceMax float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{DisparateImpactMin: 0.8, ParityDifferenceMax: 0.2}
}

// Assess scores every record in ds and reports selection rate per value of
// attr. It never fails: a missing dataset, scorer or attribute, or a scoring
// error, yields Available=false with a reason.
func Assess(ctx context.Context, ds *Dataset, s scorer.Scorer, attr string) types.FairnessReport {
	if ds == nil {
		return unavailable("reference dataset not loaded")
	}
	if s == nil {
		return unavailable("scorer not available")
	}
	if len(ds.Records) == 0 {
		return unavailable("reference dataset is empty")
	}
	attr, ok := resolveAttribute(ds, attr)
	if !ok {
		return unavailable("no suitable sensitive attribute found")
	}

	selected := map[string]int{}
	totals := map[string]int{}
	approvals := 0
	for i, rec := range ds.Records {
		if err := ctx.Err(); err != nil {
			return unavailable("assessment cancelled: " + err.Error())
		}
		v, err := ds.Vector(i)
		if err != nil {
			return unavailable(err.Error())
		}
		p, err := s.Predict(ctx, v)
		if err != nil {
			return unavailable(fmt.Sprintf("scoring row %d: %v", i+1, err))
		}
		group := rec[attr]
		if group == "" {
			group = UnknownGroup
		}
		totals[group]++
		if p >= types.ApprovalThreshold {
			selected[group]++
			approvals++
		}
	}

	byGroup := make(map[string]float64, len(totals))
	for g, n := range totals {
		byGroup[g] = float64(selected[g]) / float64(n)
	}
	return types.FairnessReport{
		Available:            true,
		SensitiveAttribute:   attr,
		Population:           len(ds.Records),
		OverallSelectionRate: float64(approvals) / float64(len(ds.Records)),
		SelectionRateByGroup: byGroup,
	}
}

func resolveAttribute(ds *Dataset, attr string) (string, bool) {
	if attr != "" {
		return attr, ds.Has(attr)
	}
	for _, c := range CandidateAttributes {
		if ds.Has(c) {
			return c, true
		}
	}
	return "", false
}

func unavailable(reason string) types.FairnessReport {
	return types.FairnessReport{Available: false, Reason: reason}
}

// CheckThresholds derives disparate impact (min/max rate) and statistical
// parity difference (max-min rate) and flags each threshold independently.
// Nothing is flagged when the report is unavailable or no group was selected.
func CheckThresholds(report types.FairnessReport, th Thresholds) types.BiasAlert {
	alert := types.BiasAlert{Reasons: []types.BiasReason{}}
	if !report.Available || len(report.SelectionRateByGroup) == 0 {
		return alert
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range report.SelectionRateByGroup {
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}
	if hi <= 0 {
		return alert
	}

	di := lo / hi
	spd := hi - lo
	alert.DisparateImpact = &di
	alert.ParityDifference = &spd

	if di < th.DisparateImpactMin {
		alert.BiasDetected = true
		alert.Reasons = append(alert.Reasons, types.BiasReason{
			Metric:    types.MetricDisparateImpact,
			Value:     di,
			Threshold: th.DisparateImpactMin,
			Message:   fmt.Sprintf("disparate impact %.3f is below %.2f", di, th.DisparateImpactMin),
		})
	}
	if spd > th.ParityDifferenceMax {
		alert.BiasDetected = true
		alert.Reasons = append(alert.Reasons, types.BiasReason{
			Metric:    types.MetricParityDifference,
			Value:     spd,
			Threshold: th.ParityDifferenceMax,
			Message:   fmt.Sprintf("statistical parity difference %.3f exceeds %.2f", spd, th.ParityDifferenceMax),
		})
	}
	return alert
}
