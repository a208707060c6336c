package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := ledger.Migrate(context.Background(), s.DB(), ledger.DBSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func sampleDecision(n int) ledger.DecisionInput {
	headline := types.Contribution{Feature: "Credit_History", Value: 0.0, Contribution: -1.2}
	return ledger.DecisionInput{
		RequestID:   fmt.Sprintf("req-%d", n),
		InputHash:   fmt.Sprintf("sha256:%064d", n),
		Decision:    types.LabelDenied,
		Probability: 0.2689414213699951,
		Explanation: types.ExplanationReport{
			Summary:     "Loan denied mainly because Credit_History (0) reduced your approval chances (contribution -1.20).",
			Headline:    &headline,
			TopFeatures: []types.Contribution{headline, {Feature: "Property_Area", Value: "Urban", Contribution: 0.1}},
			TopNegative: []types.Contribution{headline},
			TopPositive: []types.Contribution{{Feature: "Property_Area", Value: "Urban", Contribution: 0.1}},
		},
		Remediation:   []string{"Build a positive credit history."},
		Consent:       map[string]bool{"Financial Data": true, "Behaviour": false},
		ScorerVersion: "indian_v1",
	}
}

func TestDecisionChainRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	l := ledger.New(s, nil)

	var last ledger.DecisionEntry
	for i := 1; i <= 3; i++ {
		e, err := l.AppendDecision(ctx, sampleDecision(i))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		last = e
	}

	res, err := l.VerifyDecisions(ctx)
	if err != nil || !res.Valid || res.Entries != 3 {
		t.Fatalf("verify: res=%+v err=%v", res, err)
	}

	got, ok, err := s.GetDecision(ctx, 3)
	if err != nil || !ok {
		t.Fatalf("get decision: ok=%v err=%v", ok, err)
	}
	if got.OutputHash != last.OutputHash || got.Explanation.Headline == nil || got.Consent["Behaviour"] {
		t.Fatalf("decision did not round-trip: %+v", got)
	}
	if _, ok, err := s.GetDecision(ctx, 99); ok || err != nil {
		t.Fatalf("expected missing decision, ok=%v err=%v", ok, err)
	}

	latest, err := s.LatestDecisions(ctx, 2)
	if err != nil || len(latest) != 2 || latest[0].Seq != 3 || latest[1].Seq != 2 {
		t.Fatalf("latest decisions: %+v err=%v", latest, err)
	}

	sum, err := s.DecisionSummary(ctx)
	if err != nil || sum != (types.DecisionSummary{Total: 3, Denials: 3}) {
		t.Fatalf("summary: %+v err=%v", sum, err)
	}
}

func TestVerifyDetectsRowEdits(t *testing.T) {
	cases := map[string]string{
		"label":       `UPDATE decision_chain SET decision = 'approved' WHERE seq = 2`,
		"probability": `UPDATE decision_chain SET probability = 0.9 WHERE seq = 1`,
		"consent":     `UPDATE decision_chain SET consent_json = '{"Financial Data":true,"Behaviour":true}' WHERE seq = 3`,
		"delete":      `DELETE FROM decision_chain WHERE seq = 2`,
	}
	for name, stmt := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := openTestStore(t)
			l := ledger.New(s, nil)
			for i := 1; i <= 3; i++ {
				if _, err := l.AppendDecision(ctx, sampleDecision(i)); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
				t.Fatalf("tamper: %v", err)
			}
			res, err := l.VerifyDecisions(ctx)
			if res.Valid || !errors.Is(err, ledger.ErrIntegrity) {
				t.Fatalf("edit not detected: res=%+v err=%v", res, err)
			}
		})
	}
}

func TestDuplicatePreviousHashRejected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	l := ledger.New(s, nil)
	first, err := l.AppendDecision(ctx, sampleDecision(1))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.AppendDecision(ctx, sampleDecision(2)); err != nil {
		t.Fatalf("append: %v", err)
	}

	fork := first
	fork.Seq = 3
	fork.PreviousHash = &first.OutputHash
	fork.OutputHash = "sha256:fork"
	err = s.WithTx(ctx, func(tx ledger.Tx) error { return tx.InsertDecision(fork) })
	if err == nil {
		t.Fatalf("expected unique constraint violation for a forked chain")
	}
}

func TestGovernanceChainRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	l := ledger.New(s, nil)

	if _, err := l.AppendGovernance(ctx, ledger.GovernanceInput{
		EventType:        types.EventBiasAlert,
		ScorerVersion:    "indian_v1",
		FairnessSnapshot: types.FairnessReport{Available: true, SensitiveAttribute: "Gender", Population: 4, SelectionRateByGroup: map[string]float64{"Male": 1, "Female": 0.5}},
		Details:          types.BiasAlert{BiasDetected: true, Reasons: []types.BiasReason{{Metric: types.MetricDisparateImpact, Value: 0.5, Threshold: 0.8}}},
	}); err != nil {
		t.Fatalf("append bias alert: %v", err)
	}
	if _, err := l.AppendGovernance(ctx, ledger.GovernanceInput{EventType: types.EventModelPause, ScorerVersion: "indian_v1"}); err != nil {
		t.Fatalf("append pause: %v", err)
	}

	res, err := l.VerifyGovernance(ctx)
	if err != nil || !res.Valid || res.Entries != 2 {
		t.Fatalf("verify governance: res=%+v err=%v", res, err)
	}

	if _, err := s.DB().ExecContext(ctx, `UPDATE governance_chain SET event_type = 'model-resume' WHERE seq = 2`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	res, err = l.VerifyGovernance(ctx)
	if res.Valid || res.FailedSeq != 2 || !errors.Is(err, ledger.ErrIntegrity) {
		t.Fatalf("edit not detected: res=%+v err=%v", res, err)
	}

	latest, err := s.LatestGovernance(ctx, 10)
	if err != nil || len(latest) != 2 || latest[0].Seq != 2 {
		t.Fatalf("latest governance: %+v err=%v", latest, err)
	}
}

func TestAccessLogAndConsentState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.AppendAccessLog(ctx, nil); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	entries := []types.AccessLogEntry{
		{Timestamp: "2026-01-01T00:00:00Z", RequestID: "r1", Feature: "ApplicantIncome", Group: "Financial Data", Allowed: true, ScorerVersion: "indian_v1"},
		{Timestamp: "2026-01-01T00:00:00Z", RequestID: "r1", Feature: "digital_footprint", Group: "Behaviour", Allowed: false, DeniedBy: "Behaviour", ScorerVersion: "indian_v1"},
	}
	if err := s.AppendAccessLog(ctx, entries); err != nil {
		t.Fatalf("append access log: %v", err)
	}
	got, err := s.LatestAccessLog(ctx, 10)
	if err != nil || len(got) != 2 || got[0] != entries[1] {
		t.Fatalf("latest access log: %+v err=%v", got, err)
	}

	if _, ok, err := s.GetConsentState(ctx); ok || err != nil {
		t.Fatalf("expected no consent state, ok=%v err=%v", ok, err)
	}
	if err := s.PutConsentState(ctx, []byte(`{"Behaviour":false}`), "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("put consent: %v", err)
	}
	if err := s.PutConsentState(ctx, []byte(`{"Behaviour":true}`), "2026-01-02T00:00:00Z"); err != nil {
		t.Fatalf("overwrite consent: %v", err)
	}
	state, ok, err := s.GetConsentState(ctx)
	if err != nil || !ok || string(state) != `{"Behaviour":true}` {
		t.Fatalf("get consent: %s ok=%v err=%v", state, ok, err)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		e := ledger.DecisionEntry{Seq: 1, CreatedAt: "x", InputHash: "h", Decision: types.LabelApproved, OutputHash: "o"}
		if err := tx.InsertDecision(e); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok, err := s.GetDecision(ctx, 1); ok || err != nil {
		t.Fatalf("rolled back insert is visible: ok=%v err=%v", ok, err)
	}
}
