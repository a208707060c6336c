// Package decision orchestrates a loan decision: derive features, enforce
// consent, score, explain, advise, then record on the Decision Chain.
package decision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/consent"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/explain"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/remediation"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/scorer"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

const DefaultScorerTimeout = 5 * time.Second

type Config struct {
	Scorer        scorer.Scorer
	Registry      *consent.Registry
	Enforcer      *consent.Enforcer
	Explainer     *explain.Engine
	Advisor       *remediation.Advisor
	Ledger        *ledger.Ledger
	Availability  *Availability
	ScorerTimeout time.Duration
	Logger        *zap.Logger
}

type Pipeline struct {
	scorer        scorer.Scorer
	registry      *consent.Registry
	enforcer      *consent.Enforcer
	explainer     *explain.Engine
	advisor       *remediation.Advisor
	ledger        *ledger.Ledger
	availability  *Availability
	scorerTimeout time.Duration
	logger        *zap.Logger
	newRequestID  func() string
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	p := &Pipeline{
		scorer:        cfg.Scorer,
		registry:      cfg.Registry,
		enforcer:      cfg.Enforcer,
		explainer:     cfg.Explainer,
		advisor:       cfg.Advisor,
		ledger:        cfg.Ledger,
		availability:  cfg.Availability,
		scorerTimeout: cfg.ScorerTimeout,
		logger:        cfg.Logger,
		newRequestID:  uuid.NewString,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.registry == nil {
		p.registry = consent.NewRegistry(nil, nil, p.logger)
	}
	if p.enforcer == nil {
		p.enforcer = consent.NewEnforcer(p.registry.Catalog(), nil, p.logger)
	}
	if p.explainer == nil {
		p.explainer = explain.NewEngine()
	}
	if p.advisor == nil {
		p.advisor = remediation.NewAdvisor()
	}
	if p.availability == nil {
		p.availability = NewAvailability()
	}
	if p.scorerTimeout <= 0 {
		p.scorerTimeout = DefaultScorerTimeout
	}
	return p, nil
}

func (p *Pipeline) Availability() *Availability { return p.availability }

func (p *Pipeline) ScorerVersion() string { return p.scorer.Version() }

// Decide evaluates req and appends one Decision Chain entry. It fails with
// ErrServiceUnavailable while paused. Scorer errors and a cancelled ctx
// return before anything is appended.
func (p *Pipeline) Decide(ctx context.Context, req types.DecisionRequest) (types.DecisionResponse, error) {
	if !p.availability.Active() {
		return types.DecisionResponse{}, ErrServiceUnavailable
	}

	eval, err := p.Evaluate(ctx, req, nil)
	if err != nil {
		return types.DecisionResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.DecisionResponse{}, err
	}

	entry, err := p.ledger.AppendDecision(ctx, ledgerInput(eval))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.DecisionResponse{}, ctxErr
		}
		p.logger.Error("decision append failed", zap.String("request_id", eval.RequestID), zap.Error(err))
		return types.DecisionResponse{}, fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}
	return BuildResponse(eval, entry), nil
}

// Evaluate runs every step except the ledger append. When override is
// non-nil it is used as the consent state instead of the request's or the
// persisted one; it does not affect the input hash.
func (p *Pipeline) Evaluate(ctx context.Context, req types.DecisionRequest, override consent.State) (Evaluation, error) {
	raw := req.Features
	if raw == nil {
		raw = map[string]any{}
	}
	parsed, unknown, err := features.Parse(raw)
	if err != nil {
		return Evaluation{}, err
	}
	inputHash, err := ledger.InputHash(raw, req.Consent)
	if err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", features.ErrInvalidFeature, err)
	}
	vector := features.Derive(parsed)

	var state consent.State
	switch {
	case override != nil:
		state = p.registry.Reconcile(override)
	case req.Consent != nil:
		state = p.registry.Reconcile(consent.State(req.Consent))
	default:
		state = p.registry.LoadConsent(ctx)
	}

	eval := Evaluation{
		RequestID:     p.newRequestID(),
		InputHash:     inputHash,
		Unknown:       unknown,
		Consent:       state,
		ScorerVersion: p.scorer.Version(),
	}
	eval.Access = p.enforcer.Apply(ctx, vector, state, consent.AccessMeta{
		RequestID:     eval.RequestID,
		ScorerVersion: eval.ScorerVersion,
	})
	eval.Vector = eval.Access.Vector

	probability, attrs, err := p.score(ctx, eval.Vector)
	if err != nil {
		return Evaluation{}, err
	}
	eval.Probability = probability
	eval.Label = Label(probability)
	eval.Explanation = p.explainer.Explain(attrs, eval.Vector, eval.Label)
	eval.Remediation = p.advisor.Advise(eval.Vector, eval.Explanation)
	return eval, nil
}

type scoreResult struct {
	probability float64
	attrs       []explain.Attribution
	err         error
}

// score calls the scorer under the configured timeout. The call runs on its
// own goroutine so a scorer that ignores ctx cannot hold the request past
// the deadline.
func (p *Pipeline) score(ctx context.Context, v *features.Vector) (float64, []explain.Attribution, error) {
	sctx, cancel := context.WithTimeout(ctx, p.scorerTimeout)
	defer cancel()

	done := make(chan scoreResult, 1)
	go func() {
		prob, err := p.scorer.Predict(sctx, v)
		if err != nil {
			done <- scoreResult{err: err}
			return
		}
		attrs, err := p.scorer.Explain(sctx, v)
		done <- scoreResult{probability: prob, attrs: attrs, err: err}
	}()

	var res scoreResult
	select {
	case res = <-done:
	case <-sctx.Done():
		res = scoreResult{err: sctx.Err()}
	}

	if res.err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(sctx.Err(), context.DeadlineExceeded) {
			p.logger.Error("scorer timed out", zap.Duration("timeout", p.scorerTimeout))
			return 0, nil, ErrScorerTimeout
		}
		p.logger.Error("scorer failed", zap.Error(res.err))
		return 0, nil, fmt.Errorf("%w: %w", ErrScorerFailure, res.err)
	}
	if math.IsNaN(res.probability) || res.probability < 0 || res.probability > 1 {
		p.logger.Error("scorer returned an invalid probability", zap.Float64("probability", res.probability))
		return 0, nil, fmt.Errorf("%w: probability %v outside [0,1]", ErrScorerFailure, res.probability)
	}
	return res.probability, res.attrs, nil
}
