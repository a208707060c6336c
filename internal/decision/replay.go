package decision

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/consent"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

const probabilityTolerance = 1e-9

// Replay re-evaluates the payload of a recorded decision and records the
// comparison as a decision-replay governance event. The Decision Chain is
// not touched. Without explicit consent in req, the recorded consent
// snapshot is used.
func (p *Pipeline) Replay(ctx context.Context, seq int64, req types.DecisionRequest) (types.ReplayResult, error) {
	entry, ok, err := p.ledger.Decision(ctx, seq)
	if err != nil {
		return types.ReplayResult{}, err
	}
	if !ok {
		return types.ReplayResult{}, fmt.Errorf("%w: seq %d", ErrDecisionNotFound, seq)
	}

	var override consent.State
	if req.Consent == nil {
		override = consent.State(entry.Consent)
		if override == nil {
			override = consent.State{}
		}
	}
	eval, err := p.Evaluate(ctx, req, override)
	if err != nil {
		return types.ReplayResult{}, err
	}

	res := types.ReplayResult{
		Seq:            seq,
		InputMatches:   eval.InputHash == entry.InputHash,
		OutcomeMatches: eval.Label == entry.Decision && math.Abs(eval.Probability-entry.Probability) <= probabilityTolerance,
		Original:       types.ReplayOutcome{Decision: entry.Decision, Probability: entry.Probability},
		Replayed:       types.ReplayOutcome{Decision: eval.Label, Probability: eval.Probability},
		ScorerVersion:  eval.ScorerVersion,
	}

	event, err := p.ledger.AppendGovernance(ctx, ledger.GovernanceInput{
		EventType:     types.EventDecisionReplay,
		ScorerVersion: eval.ScorerVersion,
		InputSnapshot: map[string]any{
			"seq":                 seq,
			"recorded_input_hash": entry.InputHash,
			"replayed_input_hash": eval.InputHash,
			"consent":             map[string]bool(eval.Consent),
		},
		OutputSnapshot: res.Replayed,
		Details: map[string]any{
			"input_matches":           res.InputMatches,
			"outcome_matches":         res.OutcomeMatches,
			"original":                res.Original,
			"original_scorer_version": entry.ScorerVersion,
			"replay_request_id":       eval.RequestID,
		},
	})
	if err != nil {
		return types.ReplayResult{}, fmt.Errorf("record replay: %w", err)
	}
	res.GovernanceSeq = event.Seq
	p.logger.Info("decision replayed",
		zap.Int64("seq", seq),
		zap.Bool("input_matches", res.InputMatches),
		zap.Bool("outcome_matches", res.OutcomeMatches))
	return res, nil
}
