package decision

import (
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/consent"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// Evaluation is everything computed for one request before it is recorded.
type Evaluation struct {
	RequestID     string
	InputHash     string
	Vector        *features.Vector
	Unknown       []string
	Consent       consent.State
	Access        consent.Result
	Probability   float64
	Label         types.DecisionLabel
	Explanation   types.ExplanationReport
	Remediation   []string
	ScorerVersion string
}

// Label applies the approval threshold. A tie approves.
func Label(probability float64) types.DecisionLabel {
	if probability >= types.ApprovalThreshold {
		return types.LabelApproved
	}
	return types.LabelDenied
}

func ledgerInput(e Evaluation) ledger.DecisionInput {
	return ledger.DecisionInput{
		RequestID:     e.RequestID,
		InputHash:     e.InputHash,
		Decision:      e.Label,
		Probability:   e.Probability,
		Explanation:   e.Explanation,
		Remediation:   e.Remediation,
		Consent:       map[string]bool(e.Consent),
		ScorerVersion: e.ScorerVersion,
	}
}

// BuildResponse assembles the envelope returned to the caller from an
// evaluation and the ledger entry recorded for it.
func BuildResponse(e Evaluation, entry ledger.DecisionEntry) types.DecisionResponse {
	remediation := e.Remediation
	if remediation == nil {
		remediation = []string{}
	}
	return types.DecisionResponse{
		RequestID:       e.RequestID,
		Decision:        e.Label,
		Probability:     e.Probability,
		Explanation:     e.Explanation,
		Remediation:     remediation,
		ConsentApplied:  map[string]bool(e.Consent.Clone()),
		UnknownFeatures: e.Unknown,
		ScorerVersion:   e.ScorerVersion,
		Ledger: &types.LedgerRef{
			Seq:          entry.Seq,
			InputHash:    entry.InputHash,
			OutputHash:   entry.OutputHash,
			PreviousHash: entry.PreviousHash,
		},
	}
}
