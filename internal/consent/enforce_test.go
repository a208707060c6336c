package consent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []types.AccessLogEntry
	ctxErr  error
	err     error
}

func (s *recordingSink) AppendAccessLog(ctx context.Context, entries []types.AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func scenarioVector(t *testing.T) *features.Vector {
	t.Helper()
	v, _, err := features.Parse(map[string]any{
		"ApplicantIncome":             60000.0,
		"CoapplicantIncome":           10000.0,
		"LoanAmount":                  800000.0,
		"Loan_Amount_Term":            180.0,
		"Credit_History":              1.0,
		"bank_balance":                150000.0,
		"mobile_usage_score":          700.0,
		"transaction_stability_score": 750.0,
		"referral_code":               "abc",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return features.Derive(v)
}

func TestApplyAllowedLogsEveryFeature(t *testing.T) {
	sink := &recordingSink{}
	e := NewEnforcer(nil, sink, nil)
	v := scenarioVector(t)

	res := e.Apply(context.Background(), v, NewRegistry(nil, nil, nil).DefaultConsent(), AccessMeta{RequestID: "r1", ScorerVersion: "v1"})
	if res.Vector.Len() != v.Len() {
		t.Fatalf("nothing should be dropped: got %d want %d", res.Vector.Len(), v.Len())
	}
	if len(res.Entries) != v.Len() || len(sink.entries) != v.Len() {
		t.Fatalf("expected one entry per feature: entries=%d sink=%d features=%d", len(res.Entries), len(sink.entries), v.Len())
	}
	if !res.Log.Recorded {
		t.Fatalf("expected log to be recorded: %v", res.Log.Err)
	}
	for _, entry := range res.Entries {
		if !entry.Allowed {
			t.Fatalf("feature %s should be allowed", entry.Feature)
		}
		if entry.Feature == "referral_code" && entry.Group != "" {
			t.Fatalf("extra feature should be ungoverned, got group %q", entry.Group)
		}
	}
}

func TestApplyDropsDeniedGroupAndDerivedFeatures(t *testing.T) {
	sink := &recordingSink{}
	e := NewEnforcer(nil, sink, nil)
	v := scenarioVector(t)

	res := e.Apply(context.Background(), v, State{"Credit History Data": false}, AccessMeta{})

	for _, name := range []string{features.CreditHistory, features.CibilProxyScore, features.StabilityScore} {
		if res.Vector.Has(name) {
			t.Fatalf("%s should have been dropped", name)
		}
	}
	if !v.Has(features.CreditHistory) {
		t.Fatalf("input vector must not be mutated")
	}
	if !res.Vector.Has(features.ApplicantIncome) {
		t.Fatalf("financial data should remain")
	}

	byFeature := map[string]types.AccessLogEntry{}
	for _, entry := range res.Entries {
		if _, dup := byFeature[entry.Feature]; dup {
			t.Fatalf("duplicate access log entry for %s", entry.Feature)
		}
		byFeature[entry.Feature] = entry
	}
	if len(byFeature) != v.Len() {
		t.Fatalf("expected %d entries, got %d", v.Len(), len(byFeature))
	}
	entry := byFeature[features.CreditHistory]
	if entry.Allowed || entry.DeniedBy != "Credit History Data" {
		t.Fatalf("Credit_History entry: %+v", entry)
	}
	if stab := byFeature[features.StabilityScore]; stab.Allowed || stab.Group != "Behaviour / Digital Data" {
		t.Fatalf("stability_score entry: %+v", stab)
	}
}

func TestApplyNoDeniedGroupInOutput(t *testing.T) {
	c := DefaultCatalog()
	e := NewEnforcer(c, &recordingSink{}, nil)
	for _, group := range c.Names() {
		res := e.Apply(context.Background(), scenarioVector(t), State{group: false}, AccessMeta{})
		for _, name := range res.Vector.Names() {
			if g, ok := c.GroupOf(name); ok && g == group {
				t.Fatalf("feature %s of denied group %s survived", name, group)
			}
		}
	}
}

func TestApplyTreatsMissingGroupsAsAllowed(t *testing.T) {
	e := NewEnforcer(nil, &recordingSink{}, nil)
	v := scenarioVector(t)
	res := e.Apply(context.Background(), v, nil, AccessMeta{})
	if res.Vector.Len() != v.Len() {
		t.Fatalf("nil state should allow everything")
	}
}

func TestApplyLogFailureIsBestEffort(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	e := NewEnforcer(nil, sink, nil)
	v := scenarioVector(t)

	res := e.Apply(context.Background(), v, State{}, AccessMeta{})
	if res.Log.Recorded || res.Log.Err == nil {
		t.Fatalf("expected failed log result, got %+v", res.Log)
	}
	if res.Vector.Len() != v.Len() {
		t.Fatalf("log failure must not affect the vector")
	}
	if stats := e.Stats(); stats.Failures != 1 || stats.Writes != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	res = NewEnforcer(nil, nil, nil).Apply(context.Background(), v, State{}, AccessMeta{})
	if res.Log.Recorded {
		t.Fatalf("nil sink cannot record")
	}
}

func TestApplyLogsEvenWhenCancelled(t *testing.T) {
	sink := &recordingSink{}
	e := NewEnforcer(nil, sink, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Apply(ctx, scenarioVector(t), State{}, AccessMeta{})
	if !res.Log.Recorded {
		t.Fatalf("expected log write despite cancellation: %v", res.Log.Err)
	}
	if sink.ctxErr != nil {
		t.Fatalf("sink saw cancelled context: %v", sink.ctxErr)
	}
}
