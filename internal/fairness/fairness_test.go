package fairness

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/explain"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// historyScorer approves exactly the applicants with a credit history.
type historyScorer struct {
	err error
}

func (historyScorer) Version() string { return "history_v1" }

func (s historyScorer) Predict(_ context.Context, v *features.Vector) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if v.Num(features.CreditHistory) >= 1 {
		return 0.9, nil
	}
	return 0.1, nil
}

func (historyScorer) Explain(context.Context, *features.Vector) ([]explain.Attribution, error) {
	return nil, nil
}

const population = `Loan_ID,Gender,Married,Credit_History,ApplicantIncome,Loan_Status
LP1,Male,Yes,1,50000,Y
LP2,Male,No,1,40000,Y
LP3,Male,Yes,1,30000,N
LP4,Male,No,0,20000,N
LP5,Female,Yes,1,50000,Y
LP6,Female,No,0,40000,N
LP7,,Yes,1,60000,Y
`

func mustDataset(t *testing.T, csv string) *Dataset {
	t.Helper()
	ds, err := ReadCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return ds
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAssessSelectionRateByGroup(t *testing.T) {
	report := Assess(context.Background(), mustDataset(t, population), historyScorer{}, "")
	if !report.Available {
		t.Fatalf("expected available report, got reason %q", report.Reason)
	}
	if report.SensitiveAttribute != "Gender" {
		t.Fatalf("expected Gender to be picked first, got %q", report.SensitiveAttribute)
	}
	if report.Population != 7 || !near(report.OverallSelectionRate, 5.0/7.0) {
		t.Fatalf("unexpected totals: %+v", report)
	}
	want := map[string]float64{"Male": 0.75, "Female": 0.5, UnknownGroup: 1}
	for g, rate := range want {
		if got, ok := report.SelectionRateByGroup[g]; !ok || !near(got, rate) {
			t.Fatalf("group %s: got %v want %v", g, got, rate)
		}
	}
}

func TestAssessExplicitAttribute(t *testing.T) {
	report := Assess(context.Background(), mustDataset(t, population), historyScorer{}, "Married")
	if !report.Available || report.SensitiveAttribute != "Married" {
		t.Fatalf("unexpected report %+v", report)
	}
	if !near(report.SelectionRateByGroup["Yes"], 1) || !near(report.SelectionRateByGroup["No"], 1.0/3.0) {
		t.Fatalf("unexpected rates %+v", report.SelectionRateByGroup)
	}
}

func TestAssessFailsSoft(t *testing.T) {
	ds := mustDataset(t, population)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := map[string]struct {
		ctx    context.Context
		ds     *Dataset
		scorer historyScorer
		attr   string
		nilSc  bool
		reason string
	}{
		"no dataset":   {ctx: context.Background(), reason: "not loaded"},
		"no scorer":    {ctx: context.Background(), ds: ds, nilSc: true, reason: "scorer"},
		"empty":        {ctx: context.Background(), ds: mustDataset(t, "Gender,Credit_History\n"), reason: "empty"},
		"no attribute": {ctx: context.Background(), ds: mustDataset(t, "Credit_History\n1\n"), reason: "sensitive attribute"},
		"missing attr": {ctx: context.Background(), ds: ds, attr: "Religion", reason: "sensitive attribute"},
		"scorer error": {ctx: context.Background(), ds: ds, scorer: historyScorer{err: errors.New("model offline")}, reason: "model offline"},
		"cancelled":    {ctx: cancelled, ds: ds, reason: "cancelled"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var report types.FairnessReport
			if tc.nilSc {
				report = Assess(tc.ctx, tc.ds, nil, tc.attr)
			} else {
				report = Assess(tc.ctx, tc.ds, tc.scorer, tc.attr)
			}
			if report.Available {
				t.Fatalf("expected unavailable report")
			}
			if !strings.Contains(report.Reason, tc.reason) {
				t.Fatalf("reason %q does not mention %q", report.Reason, tc.reason)
			}
		})
	}
}

func TestCheckThresholdsBothFire(t *testing.T) {
	report := types.FairnessReport{Available: true, SelectionRateByGroup: map[string]float64{"A": 0.9, "B": 0.5}}
	alert := CheckThresholds(report, DefaultThresholds())
	if !alert.BiasDetected || len(alert.Reasons) != 2 {
		t.Fatalf("expected both reasons, got %+v", alert)
	}
	if alert.Reasons[0].Metric != types.MetricDisparateImpact || math.Abs(alert.Reasons[0].Value-0.556) > 0.001 {
		t.Fatalf("unexpected disparate impact reason %+v", alert.Reasons[0])
	}
	if alert.Reasons[1].Metric != types.MetricParityDifference || !near(alert.Reasons[1].Value, 0.4) {
		t.Fatalf("unexpected parity reason %+v", alert.Reasons[1])
	}
}

func TestCheckThresholdsIndependent(t *testing.T) {
	// 0.1/0.2 = 0.5 disparate impact, but only 0.1 apart.
	alert := CheckThresholds(types.FairnessReport{Available: true, SelectionRateByGroup: map[string]float64{"A": 0.2, "B": 0.1}}, DefaultThresholds())
	if !alert.BiasDetected || len(alert.Reasons) != 1 || alert.Reasons[0].Metric != types.MetricDisparateImpact {
		t.Fatalf("expected only disparate impact, got %+v", alert)
	}

	alert = CheckThresholds(types.FairnessReport{Available: true, SelectionRateByGroup: map[string]float64{"A": 0.9, "B": 0.85}}, DefaultThresholds())
	if alert.BiasDetected || alert.DisparateImpact == nil || len(alert.Reasons) != 0 {
		t.Fatalf("expected metrics without alert, got %+v", alert)
	}
}

func TestCheckThresholdsNoSignal(t *testing.T) {
	for name, report := range map[string]types.FairnessReport{
		"unavailable": {Available: false, Reason: "x"},
		"no groups":   {Available: true},
		"all zero":    {Available: true, SelectionRateByGroup: map[string]float64{"A": 0, "B": 0}},
	} {
		alert := CheckThresholds(report, DefaultThresholds())
		if alert.BiasDetected || alert.DisparateImpact != nil || alert.Reasons == nil {
			t.Fatalf("%s: unexpected alert %+v", name, alert)
		}
	}
}

func TestMonitorRecordsBiasAlert(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(ledger.NewInMemoryStore(), nil)
	m := NewMonitor(MonitorConfig{Dataset: mustDataset(t, population), Scorer: historyScorer{}, Attribute: "Married", Recorder: l})

	if _, ok := m.Latest(); ok {
		t.Fatalf("no assessment expected before the first run")
	}
	res, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Alert.BiasDetected || res.AlertSeq != 1 {
		t.Fatalf("expected recorded alert, got %+v", res)
	}

	events, err := l.LatestGovernance(ctx, 10)
	if err != nil || len(events) != 1 {
		t.Fatalf("governance events: %+v err=%v", events, err)
	}
	ev := events[0]
	if ev.EventType != types.EventBiasAlert || ev.ScorerVersion != "history_v1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.FairnessSnapshot["sensitive_attribute"] != "Married" || ev.Details["bias_detected"] != true {
		t.Fatalf("event is missing the metric snapshot: %+v", ev)
	}
	if got, ok := m.Latest(); !ok || got.AlertSeq != 1 {
		t.Fatalf("latest assessment not kept: %+v", got)
	}
}

func TestMonitorNoAlertNoEvent(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(ledger.NewInMemoryStore(), nil)
	fair := "Gender,Credit_History\nMale,1\nFemale,1\nMale,0\nFemale,0\n"
	m := NewMonitor(MonitorConfig{Dataset: mustDataset(t, fair), Scorer: historyScorer{}, Recorder: l})
	res, err := m.Run(ctx)
	if err != nil || res.Alert.BiasDetected || res.AlertSeq != 0 {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
	if events, _ := l.LatestGovernance(ctx, 10); len(events) != 0 {
		t.Fatalf("no governance event expected, got %d", len(events))
	}
}

type failingRecorder struct{}

func (failingRecorder) AppendGovernance(context.Context, ledger.GovernanceInput) (ledger.GovernanceEvent, error) {
	return ledger.GovernanceEvent{}, errors.New("disk full")
}

func TestMonitorSurfacesAppendFailure(t *testing.T) {
	m := NewMonitor(MonitorConfig{Dataset: mustDataset(t, population), Scorer: historyScorer{}, Attribute: "Married", Recorder: failingRecorder{}})
	if _, err := m.Run(context.Background()); err == nil {
		t.Fatalf("expected append failure")
	}
}

func TestMonitorLoopStopsWithContext(t *testing.T) {
	l := ledger.New(ledger.NewInMemoryStore(), nil)
	m := NewMonitor(MonitorConfig{Dataset: mustDataset(t, population), Scorer: historyScorer{}, Attribute: "Married", Recorder: l})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Loop(ctx, 5*time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := m.Latest(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("loop never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("loop: %v", err)
	}
	if err := m.Loop(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestLoadReferencePopulation(t *testing.T) {
	ds, err := LoadCSV("../../data/reference_population.csv")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ds.Records) == 0 || !ds.Has("Gender") {
		t.Fatalf("unexpected dataset: %d rows, columns %v", len(ds.Records), ds.Columns)
	}
	sample, err := ds.Sample(10)
	if err != nil || len(sample) != 10 {
		t.Fatalf("sample: %d err=%v", len(sample), err)
	}
	if !sample[0].Has(features.TotalIncome) || sample[0].Has("Loan_Status") {
		t.Fatalf("sample rows should be derived feature vectors without label columns")
	}
	if _, err := LoadCSV("does-not-exist.csv"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestReadCSVRejectsBadNumbers(t *testing.T) {
	ds := mustDataset(t, "Gender,ApplicantIncome\nMale,lots\n")
	if _, err := ds.Vector(0); !errors.Is(err, features.ErrInvalidFeature) {
		t.Fatalf("expected invalid feature, got %v", err)
	}
	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
