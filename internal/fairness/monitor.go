package fairness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/scorer"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// GovernanceRecorder appends governance events. *ledger.Ledger satisfies it.
type GovernanceRecorder interface {
	AppendGovernance(ctx context.Context, in ledger.GovernanceInput) (ledger.GovernanceEvent, error)
}

// Assessment is one monitor run. AlertSeq is the governance seq of the
// bias-alert event, when one was recorded.
type Assessment struct {
	Metrics    types.FairnessReport `json:"metrics"`
	Alert      types.BiasAlert      `json:"alert"`
	AlertSeq   int64                `json:"alert_seq,omitempty"`
	AssessedAt string               `json:"assessed_at"`
}

type MonitorConfig struct {
	Dataset    *Dataset
	Scorer     scorer.Scorer
	Attribute  string
	Thresholds Thresholds
	Recorder   GovernanceRecorder
	Logger     *zap.Logger
}

type Monitor struct {
	cfg    MonitorConfig
	logger *zap.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last *Assessment
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Monitor{cfg: cfg, logger: logger, now: time.Now}
}

// Run assesses the reference population and, when a threshold is crossed,
// appends a bias-alert event carrying the full metric snapshot. The only
// error is a failed governance append.
func (m *Monitor) Run(ctx context.Context) (Assessment, error) {
	report := Assess(ctx, m.cfg.Dataset, m.cfg.Scorer, m.cfg.Attribute)
	res := Assessment{
		Metrics:    report,
		Alert:      CheckThresholds(report, m.cfg.Thresholds),
		AssessedAt: m.now().UTC().Format(time.RFC3339Nano),
	}
	if !report.Available {
		m.logger.Info("fairness assessment unavailable", zap.String("reason", report.Reason))
	}

	if res.Alert.BiasDetected && m.cfg.Recorder != nil {
		version := ""
		if m.cfg.Scorer != nil {
			version = m.cfg.Scorer.Version()
		}
		event, err := m.cfg.Recorder.AppendGovernance(ctx, ledger.GovernanceInput{
			EventType:        types.EventBiasAlert,
			ScorerVersion:    version,
			FairnessSnapshot: report,
			Details:          res.Alert,
		})
		if err != nil {
			return res, fmt.Errorf("record bias alert: %w", err)
		}
		res.AlertSeq = event.Seq
		m.logger.Warn("bias alert recorded",
			zap.String("sensitive_attribute", report.SensitiveAttribute),
			zap.Int("reasons", len(res.Alert.Reasons)),
			zap.Int64("seq", event.Seq))
	}

	m.mu.Lock()
	m.last = &res
	m.mu.Unlock()
	return res, nil
}

// Latest returns the most recent assessment, if any run has completed.
func (m *Monitor) Latest() (Assessment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Assessment{}, false
	}
	return *m.last, true
}

// Loop runs the monitor every interval until ctx is done. Run errors are
// logged and the loop keeps going.
func (m *Monitor) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("fairness interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Run(ctx); err != nil {
				m.logger.Error("fairness run failed", zap.Error(err))
			}
		}
	}
}
