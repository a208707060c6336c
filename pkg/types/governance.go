package types

type GovernanceEventType string

const (
	EventDecisionReplay GovernanceEventType = "decision-replay"
	EventBiasAlert      GovernanceEventType = "bias-alert"
	EventModelPause     GovernanceEventType = "model-pause"
	EventModelResume    GovernanceEventType = "model-resume"
	EventConsentChange  GovernanceEventType = "consent-change"
)

func (t GovernanceEventType) Valid() bool {
	switch t {
	case EventDecisionReplay, EventBiasAlert, EventModelPause, EventModelResume, EventConsentChange:
		return true
	default:
		return false
	}
}

type FairnessReport struct {
	Available            bool               `json:"available"`
	Reason               string             `json:"reason,omitempty"`
	SensitiveAttribute   string             `json:"sensitive_attribute,omitempty"`
	Population           int                `json:"population"`
	OverallSelectionRate float64            `json:"overall_selection_rate"`
	SelectionRateByGroup map[string]float64 `json:"selection_rate_by_group,omitempty"`
}

type BiasMetric string

const (
	MetricDisparateImpact  BiasMetric = "disparate_impact"
	MetricParityDifference BiasMetric = "statistical_parity_difference"
)

type BiasReason struct {
	Metric    BiasMetric `json:"metric"`
	Value     float64    `json:"value"`
	Threshold float64    `json:"threshold"`
	Message   string     `json:"message"`
}

type BiasAlert struct {
	BiasDetected     bool         `json:"bias_detected"`
	DisparateImpact  *float64     `json:"disparate_impact,omitempty"`
	ParityDifference *float64     `json:"statistical_parity_difference,omitempty"`
	Reasons          []BiasReason `json:"reasons"`
}

type ModelFeature struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Engineered bool   `json:"engineered,omitempty"`
	Extra      bool   `json:"extra,omitempty"`
}

// ModelInfo is the metadata of the loaded scorer model.
type ModelInfo struct {
	Name     string         `json:"name,omitempty"`
	Version  string         `json:"version"`
	Hash     string         `json:"hash,omitempty"`
	Dataset  string         `json:"dataset,omitempty"`
	Features []ModelFeature `json:"features,omitempty"`
}

type ModelStatus struct {
	Version string     `json:"version"`
	Active  bool       `json:"active"`
	Model   *ModelInfo `json:"model,omitempty"`
}

type ChainVerification struct {
	Valid     bool   `json:"valid"`
	Entries   int    `json:"entries"`
	FailedSeq int64  `json:"failed_seq,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type ReplayOutcome struct {
	Decision    DecisionLabel `json:"decision"`
	Probability float64       `json:"probability"`
}

// ReplayResult compares a recorded decision with a fresh evaluation of the
// supplied payload.
type ReplayResult struct {
	Seq            int64         `json:"seq"`
	InputMatches   bool          `json:"input_matches"`
	OutcomeMatches bool          `json:"outcome_matches"`
	Original       ReplayOutcome `json:"original"`
	Replayed       ReplayOutcome `json:"replayed"`
	ScorerVersion  string        `json:"scorer_version"`
	GovernanceSeq  int64         `json:"governance_seq"`
}
