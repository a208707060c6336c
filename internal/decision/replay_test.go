package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

func TestReplayMatchesRecordedDecision(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	req := types.DecisionRequest{Features: scenarioFeatures(), Consent: map[string]bool{"Behaviour / Digital Data": false}}
	resp, err := h.pipeline.Decide(ctx, req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}

	res, err := h.pipeline.Replay(ctx, resp.Ledger.Seq, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.InputMatches || !res.OutcomeMatches || res.Replayed.Decision != resp.Decision {
		t.Fatalf("replay should reproduce the decision: %+v", res)
	}
	if res.GovernanceSeq != 1 {
		t.Fatalf("replay should append a governance event, got seq %d", res.GovernanceSeq)
	}

	events, err := h.ledger.LatestGovernance(ctx, 5)
	if err != nil || len(events) != 1 || events[0].EventType != types.EventDecisionReplay {
		t.Fatalf("governance events: %+v err=%v", events, err)
	}
	if events[0].Details["input_matches"] != true {
		t.Fatalf("replay details not recorded: %+v", events[0].Details)
	}
	if sum, _ := h.ledger.Summary(ctx); sum.Total != 1 {
		t.Fatalf("replay must not append to the decision chain")
	}
}

func TestReplayUsesRecordedConsent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	if _, err := h.registry.SaveConsent(ctx, map[string]bool{"Credit History Data": false}); err != nil {
		t.Fatalf("save consent: %v", err)
	}
	resp, err := h.pipeline.Decide(ctx, types.DecisionRequest{Features: scenarioFeatures()})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if _, err := h.registry.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	res, err := h.pipeline.Replay(ctx, resp.Ledger.Seq, types.DecisionRequest{Features: scenarioFeatures()})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.InputMatches || !res.OutcomeMatches {
		t.Fatalf("replay should evaluate under the recorded consent: %+v", res)
	}
}

func TestReplayDetectsDifferentPayload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	resp, err := h.pipeline.Decide(ctx, types.DecisionRequest{Features: scenarioFeatures()})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	altered := scenarioFeatures()
	altered["Credit_History"] = 0.0
	res, err := h.pipeline.Replay(ctx, resp.Ledger.Seq, types.DecisionRequest{Features: altered})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.InputMatches || res.OutcomeMatches {
		t.Fatalf("altered payload should not match: %+v", res)
	}
}

func TestReplayUnknownSeq(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.pipeline.Replay(context.Background(), 42, types.DecisionRequest{Features: scenarioFeatures()}); !errors.Is(err, ErrDecisionNotFound) {
		t.Fatalf("expected ErrDecisionNotFound, got %v", err)
	}
}
