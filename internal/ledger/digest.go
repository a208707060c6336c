package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/crypto"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// InputHash digests a raw decision request: its features and, when supplied,
// its explicit consent.
func InputHash(rawFeatures map[string]any, consent map[string]bool) (string, error) {
	view := map[string]any{"features": rawFeatures}
	if consent != nil {
		view["consent"] = consent
	}
	return crypto.DigestValue(view)
}

// DecisionDigest is the output hash of e: every stored field except the hash itself.
func DecisionDigest(e DecisionEntry) (string, error) {
	return crypto.DigestValue(map[string]any{
		"chain":      "decision",
		"seq":        e.Seq,
		"created_at": e.CreatedAt,
		"request_id": e.RequestID,
		"input_hash": e.InputHash,
		"output": map[string]any{
			"decision":       string(e.Decision),
			"probability":    e.Probability,
			"explanation":    explanationView(e.Explanation),
			"remediation":    e.Remediation,
			"consent":        e.Consent,
			"scorer_version": e.ScorerVersion,
		},
		"previous_hash": e.PreviousHash,
	})
}

// GovernanceDigest is the output hash of e.
func GovernanceDigest(e GovernanceEvent) (string, error) {
	return crypto.DigestValue(map[string]any{
		"chain":             "governance",
		"seq":               e.Seq,
		"created_at":        e.CreatedAt,
		"event_type":        string(e.EventType),
		"scorer_version":    e.ScorerVersion,
		"input_snapshot":    e.InputSnapshot,
		"output_snapshot":   e.OutputSnapshot,
		"fairness_snapshot": e.FairnessSnapshot,
		"details":           e.Details,
		"previous_hash":     e.PreviousHash,
	})
}

func explanationView(r types.ExplanationReport) map[string]any {
	view := map[string]any{
		"summary":      r.Summary,
		"top_features": contributionsView(r.TopFeatures),
		"top_negative": contributionsView(r.TopNegative),
		"top_positive": contributionsView(r.TopPositive),
	}
	if r.Headline != nil {
		view["headline"] = contributionView(*r.Headline)
	}
	return view
}

func contributionsView(cs []types.Contribution) []any {
	if cs == nil {
		return nil
	}
	out := make([]any, len(cs))
	for i, c := range cs {
		out[i] = contributionView(c)
	}
	return out
}

func contributionView(c types.Contribution) map[string]any {
	return map[string]any{
		"feature":      c.Feature,
		"value":        c.Value,
		"contribution": c.Contribution,
	}
}

// normalizeSnapshot converts v to the map form a JSON column reads back, so
// hashes computed at append time match hashes computed from storage.
func normalizeSnapshot(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("snapshot must encode to a JSON object: %w", err)
	}
	return out, nil
}
