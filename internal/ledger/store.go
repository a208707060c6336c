package ledger

import (
	"context"

	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// Store persists both chains, the access log and the consent document.
// There is no update or delete for chain entries.
type Store interface {
	// WithTx runs fn in one transaction. Chain appends happen inside it.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// ListDecisions returns entries with seq > afterSeq in ascending order.
	ListDecisions(ctx context.Context, afterSeq int64, limit int) ([]DecisionEntry, error)
	// LatestDecisions returns the newest entries first.
	LatestDecisions(ctx context.Context, limit int) ([]DecisionEntry, error)
	GetDecision(ctx context.Context, seq int64) (DecisionEntry, bool, error)
	DecisionSummary(ctx context.Context) (types.DecisionSummary, error)

	ListGovernance(ctx context.Context, afterSeq int64, limit int) ([]GovernanceEvent, error)
	LatestGovernance(ctx context.Context, limit int) ([]GovernanceEvent, error)

	AppendAccessLog(ctx context.Context, entries []types.AccessLogEntry) error
	LatestAccessLog(ctx context.Context, limit int) ([]types.AccessLogEntry, error)

	GetConsentState(ctx context.Context) ([]byte, bool, error)
	PutConsentState(ctx context.Context, stateJSON []byte, updatedAt string) error
}

// Tx is the read-latest-then-insert surface used by chain appends.
type Tx interface {
	LastDecision() (DecisionEntry, bool, error)
	InsertDecision(entry DecisionEntry) error

	LastGovernance() (GovernanceEvent, bool, error)
	InsertGovernance(event GovernanceEvent) error
}

type DecisionEntry struct {
	Seq           int64                   `json:"seq"`
	CreatedAt     string                  `json:"created_at"`
	RequestID     string                  `json:"request_id"`
	InputHash     string                  `json:"input_hash"`
	Decision      types.DecisionLabel     `json:"decision"`
	Probability   float64                 `json:"probability"`
	Explanation   types.ExplanationReport `json:"explanation"`
	Remediation   []string                `json:"remediation"`
	Consent       map[string]bool         `json:"consent"`
	ScorerVersion string                  `json:"scorer_version"`
	PreviousHash  *string                 `json:"previous_hash"`
	OutputHash    string                  `json:"output_hash"`
}

type GovernanceEvent struct {
	Seq              int64                     `json:"seq"`
	CreatedAt        string                    `json:"created_at"`
	EventType        types.GovernanceEventType `json:"event_type"`
	ScorerVersion    string                    `json:"scorer_version"`
	InputSnapshot    map[string]any            `json:"input_snapshot"`
	OutputSnapshot   map[string]any            `json:"output_snapshot"`
	FairnessSnapshot map[string]any            `json:"fairness_snapshot"`
	Details          map[string]any            `json:"details"`
	PreviousHash     *string                   `json:"previous_hash"`
	OutputHash       string                    `json:"output_hash"`
}

// DefaultListLimit bounds latest-first reads when the caller passes no limit.
const DefaultListLimit = 50

// MaxListLimit bounds latest-first reads.
const MaxListLimit = 1000

// ClampLimit applies the list defaults.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
