package types

type DecisionLabel string

const (
	LabelApproved DecisionLabel = "approved"
	LabelDenied   DecisionLabel = "denied"
)

// ApprovalThreshold is the probability at or above which a request is approved.
const ApprovalThreshold = 0.5

type DecisionRequest struct {
	Features map[string]any  `json:"features"`
	Consent  map[string]bool `json:"consent,omitempty"`
}

type DecisionResponse struct {
	RequestID       string            `json:"request_id"`
	Decision        DecisionLabel     `json:"decision"`
	Probability     float64           `json:"probability"`
	Explanation     ExplanationReport `json:"explanation"`
	Remediation     []string          `json:"remediation"`
	ConsentApplied  map[string]bool   `json:"consent_applied"`
	UnknownFeatures []string          `json:"unknown_features,omitempty"`
	ScorerVersion   string            `json:"scorer_version"`
	Ledger          *LedgerRef        `json:"ledger,omitempty"`
}

// LedgerRef points at the Decision Chain entry written for a response.
type LedgerRef struct {
	Seq          int64   `json:"seq"`
	InputHash    string  `json:"input_hash"`
	OutputHash   string  `json:"output_hash"`
	PreviousHash *string `json:"previous_hash"`
}

type DecisionSummary struct {
	Total     int64 `json:"total"`
	Approvals int64 `json:"approvals"`
	Denials   int64 `json:"denials"`
}
