package api

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/consent"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/decision"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/fairness"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// DecisionService is the composition root behind the HTTP surface. It owns
// the pipeline, the consent registry, the ledger and the fairness monitor.
type DecisionService struct {
	Pipeline *decision.Pipeline
	Registry *consent.Registry
	Enforcer *consent.Enforcer
	Ledger   *ledger.Ledger
	Fairness *fairness.Monitor
	Logger   *zap.Logger

	modelInfo *types.ModelInfo
}

type NewDecisionServiceInput struct {
	Pipeline *decision.Pipeline
	Registry *consent.Registry
	Enforcer *consent.Enforcer
	Ledger   *ledger.Ledger
	Fairness *fairness.Monitor
	Logger   *zap.Logger
	// ModelInfo is reported by Model and Health when set.
	ModelInfo *types.ModelInfo
}

func NewDecisionService(in NewDecisionServiceInput) (*DecisionService, error) {
	if in.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if in.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if in.Registry == nil {
		return nil, errors.New("consent registry is required")
	}
	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionService{
		Pipeline: in.Pipeline,
		Registry: in.Registry,
		Enforcer: in.Enforcer,
		Ledger:   in.Ledger,
		Fairness: in.Fairness,
		Logger:   logger,

		modelInfo: in.ModelInfo,
	}, nil
}

func (s *DecisionService) Decide(ctx context.Context, req types.DecisionRequest) (types.DecisionResponse, error) {
	return s.Pipeline.Decide(ctx, req)
}

func (s *DecisionService) Replay(ctx context.Context, seq int64, req types.DecisionRequest) (types.ReplayResult, error) {
	return s.Pipeline.Replay(ctx, seq, req)
}

func (s *DecisionService) ConsentState(ctx context.Context) types.ConsentView {
	return s.consentView(s.Registry.LoadConsent(ctx))
}

func (s *DecisionService) consentView(state consent.State) types.ConsentView {
	return types.ConsentView{
		Groups:      s.Registry.Groups(),
		Consent:     map[string]bool(state),
		CatalogHash: s.Registry.Catalog().Hash(),
	}
}

// SetConsent persists state and records a consent-change event with the
// previous and new state. Unknown groups are dropped.
func (s *DecisionService) SetConsent(ctx context.Context, state map[string]bool) (types.ConsentView, error) {
	previous := s.Registry.LoadConsent(ctx)
	saved, err := s.Registry.SaveConsent(ctx, consent.State(state))
	if err != nil {
		return types.ConsentView{}, err
	}
	if err := s.recordConsentChange(ctx, "set", previous, saved); err != nil {
		return types.ConsentView{}, err
	}
	return s.consentView(saved), nil
}

func (s *DecisionService) ResetConsent(ctx context.Context) (types.ConsentView, error) {
	previous := s.Registry.LoadConsent(ctx)
	saved, err := s.Registry.Reset(ctx)
	if err != nil {
		return types.ConsentView{}, err
	}
	if err := s.recordConsentChange(ctx, "reset", previous, saved); err != nil {
		return types.ConsentView{}, err
	}
	return s.consentView(saved), nil
}

func (s *DecisionService) recordConsentChange(ctx context.Context, action string, previous, current consent.State) error {
	_, err := s.Ledger.AppendGovernance(ctx, ledger.GovernanceInput{
		EventType:     types.EventConsentChange,
		ScorerVersion: s.Pipeline.ScorerVersion(),
		InputSnapshot: map[string]any{"consent": map[string]bool(previous)},
		OutputSnapshot: map[string]any{
			"consent": map[string]bool(current),
		},
		Details: map[string]any{
			"action":       action,
			"catalog_hash": s.Registry.Catalog().Hash(),
		},
	})
	if err != nil {
		return fmt.Errorf("record consent change: %w", err)
	}
	return nil
}

func (s *DecisionService) AccessLog(ctx context.Context, limit int) ([]types.AccessLogEntry, error) {
	return s.Ledger.Store().LatestAccessLog(ctx, ledger.ClampLimit(limit))
}

func (s *DecisionService) Model() types.ModelStatus {
	return types.ModelStatus{
		Version: s.Pipeline.ScorerVersion(),
		Active:  s.Pipeline.Availability().Active(),
		Model:   s.modelInfo,
	}
}

// Pause stops new decisions. A model-pause event is recorded only when the
// state actually changes.
func (s *DecisionService) Pause(ctx context.Context, actor string) (types.ModelStatus, error) {
	if s.Pipeline.Availability().Pause() {
		if err := s.recordModelEvent(ctx, types.EventModelPause, actor); err != nil {
			return s.Model(), err
		}
		s.Logger.Info("model paused", zap.String("actor", actor))
	}
	return s.Model(), nil
}

func (s *DecisionService) Resume(ctx context.Context, actor string) (types.ModelStatus, error) {
	if s.Pipeline.Availability().Resume() {
		if err := s.recordModelEvent(ctx, types.EventModelResume, actor); err != nil {
			return s.Model(), err
		}
		s.Logger.Info("model resumed", zap.String("actor", actor))
	}
	return s.Model(), nil
}

func (s *DecisionService) recordModelEvent(ctx context.Context, eventType types.GovernanceEventType, actor string) error {
	_, err := s.Ledger.AppendGovernance(ctx, ledger.GovernanceInput{
		EventType:     eventType,
		ScorerVersion: s.Pipeline.ScorerVersion(),
		OutputSnapshot: map[string]any{
			"model_active": s.Pipeline.Availability().Active(),
		},
		Details: map[string]any{"actor": actor},
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", eventType, err)
	}
	return nil
}

// FairnessReport serves the monitor's latest assessment. The monitor runs
// when no assessment exists yet or when refresh is set. Without a monitor
// the report is unavailable rather than an error.
func (s *DecisionService) FairnessReport(ctx context.Context, refresh bool) (fairness.Assessment, error) {
	if s.Fairness == nil {
		report := types.FairnessReport{Available: false, Reason: "fairness monitor not configured"}
		return fairness.Assessment{Metrics: report, Alert: fairness.CheckThresholds(report, fairness.DefaultThresholds())}, nil
	}
	if !refresh {
		if latest, ok := s.Fairness.Latest(); ok {
			return latest, nil
		}
	}
	return s.Fairness.Run(ctx)
}

func (s *DecisionService) GovernanceEvents(ctx context.Context, limit int) ([]ledger.GovernanceEvent, error) {
	return s.Ledger.LatestGovernance(ctx, limit)
}

func (s *DecisionService) Decisions(ctx context.Context, limit int) ([]ledger.DecisionEntry, error) {
	return s.Ledger.LatestDecisions(ctx, limit)
}

func (s *DecisionService) Summary(ctx context.Context) (types.DecisionSummary, error) {
	return s.Ledger.Summary(ctx)
}

type VerifyReport struct {
	Decision   types.ChainVerification `json:"decision_chain"`
	Governance types.ChainVerification `json:"governance_chain"`
}

// Verify checks both chains. A broken chain is reported in the result;
// only storage failures return an error.
func (s *DecisionService) Verify(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport
	var err error
	report.Decision, err = s.Ledger.VerifyDecisions(ctx)
	if err != nil && !errors.Is(err, ledger.ErrIntegrity) {
		return VerifyReport{}, err
	}
	if err != nil {
		s.Logger.Error("decision chain failed verification", zap.Error(err))
	}
	report.Governance, err = s.Ledger.VerifyGovernance(ctx)
	if err != nil && !errors.Is(err, ledger.ErrIntegrity) {
		return VerifyReport{}, err
	}
	if err != nil {
		s.Logger.Error("governance chain failed verification", zap.Error(err))
	}
	return report, nil
}

type HealthStatus struct {
	Status            string `json:"status"`
	ModelActive       bool   `json:"model_active"`
	ScorerVersion     string `json:"scorer_version"`
	ModelHash         string `json:"model_hash,omitempty"`
	AccessLogFailures int64  `json:"access_log_failures"`
}

func (s *DecisionService) Health() HealthStatus {
	h := HealthStatus{
		Status:        "ok",
		ModelActive:   s.Pipeline.Availability().Active(),
		ScorerVersion: s.Pipeline.ScorerVersion(),
	}
	if s.modelInfo != nil {
		h.ModelHash = s.modelInfo.Hash
	}
	if !h.ModelActive {
		h.Status = "paused"
	}
	if s.Enforcer != nil {
		h.AccessLogFailures = s.Enforcer.Stats().Failures
	}
	return h
}
