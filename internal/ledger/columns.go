package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// DecisionColumns holds the JSON-encoded columns of a decision row.
type DecisionColumns struct {
	Explanation string
	Remediation string
	Consent     string
}

func EncodeDecision(e DecisionEntry) (DecisionColumns, error) {
	var cols DecisionColumns
	var err error
	if cols.Explanation, err = encodeColumn(e.Explanation); err != nil {
		return cols, fmt.Errorf("explanation: %w", err)
	}
	if cols.Remediation, err = encodeColumn(e.Remediation); err != nil {
		return cols, fmt.Errorf("remediation: %w", err)
	}
	if cols.Consent, err = encodeColumn(e.Consent); err != nil {
		return cols, fmt.Errorf("consent: %w", err)
	}
	return cols, nil
}

func DecodeDecision(e *DecisionEntry, cols DecisionColumns) error {
	if err := json.Unmarshal([]byte(cols.Explanation), &e.Explanation); err != nil {
		return fmt.Errorf("decode explanation of seq %d: %w", e.Seq, err)
	}
	if err := json.Unmarshal([]byte(cols.Remediation), &e.Remediation); err != nil {
		return fmt.Errorf("decode remediation of seq %d: %w", e.Seq, err)
	}
	if err := json.Unmarshal([]byte(cols.Consent), &e.Consent); err != nil {
		return fmt.Errorf("decode consent of seq %d: %w", e.Seq, err)
	}
	return nil
}

// GovernanceColumns holds the JSON-encoded snapshots of a governance row.
type GovernanceColumns struct {
	Input    string
	Output   string
	Fairness string
	Details  string
}

func EncodeGovernance(e GovernanceEvent) (GovernanceColumns, error) {
	var cols GovernanceColumns
	var err error
	if cols.Input, err = encodeColumn(e.InputSnapshot); err != nil {
		return cols, err
	}
	if cols.Output, err = encodeColumn(e.OutputSnapshot); err != nil {
		return cols, err
	}
	if cols.Fairness, err = encodeColumn(e.FairnessSnapshot); err != nil {
		return cols, err
	}
	if cols.Details, err = encodeColumn(e.Details); err != nil {
		return cols, err
	}
	return cols, nil
}

func DecodeGovernance(e *GovernanceEvent, cols GovernanceColumns) error {
	for _, c := range []struct {
		src string
		dst *map[string]any
	}{
		{cols.Input, &e.InputSnapshot},
		{cols.Output, &e.OutputSnapshot},
		{cols.Fairness, &e.FairnessSnapshot},
		{cols.Details, &e.Details},
	} {
		if err := json.Unmarshal([]byte(c.src), c.dst); err != nil {
			return fmt.Errorf("decode governance snapshot of seq %d: %w", e.Seq, err)
		}
	}
	return nil
}

func encodeColumn(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ConsentRowID is the primary key of the single consent_state row.
const ConsentRowID = "default"

// SummaryFromCounts builds a summary from per-label counts.
func SummaryFromCounts(counts map[string]int64) types.DecisionSummary {
	sum := types.DecisionSummary{
		Approvals: counts[string(types.LabelApproved)],
		Denials:   counts[string(types.LabelDenied)],
	}
	for _, n := range counts {
		sum.Total += n
	}
	return sum
}
