package consent

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

var errNoAccessSink = errors.New("no access log sink configured")

// AccessSink receives access log entries.
type AccessSink interface {
	AppendAccessLog(ctx context.Context, entries []types.AccessLogEntry) error
}

// LogResult is the outcome of the best-effort access log write. It is only
// counted; a failed write never fails the decision.
type LogResult struct {
	Recorded bool
	Err      error
}

type Result struct {
	Vector  *features.Vector
	Entries []types.AccessLogEntry
	Denied  []string
	Log     LogResult
}

type AccessMeta struct {
	RequestID     string
	ScorerVersion string
}

type EnforcerStats struct {
	Writes   int64 `json:"writes"`
	Failures int64 `json:"failures"`
}

// Enforcer removes denied features from a vector and logs every feature read.
// Denied features are dropped, not replaced with sentinels. A derived feature
// is also dropped when any of its inputs belongs to a denied group.
type Enforcer struct {
	catalog *Catalog
	sink    AccessSink
	logger  *zap.Logger
	now     func() time.Time

	writes   atomic.Int64
	failures atomic.Int64
}

func NewEnforcer(catalog *Catalog, sink AccessSink, logger *zap.Logger) *Enforcer {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{catalog: catalog, sink: sink, logger: logger, now: time.Now}
}

// Apply never fails. v is left untouched; the redacted copy is returned.
func (e *Enforcer) Apply(ctx context.Context, v *features.Vector, state State, meta AccessMeta) Result {
	redacted := v.Clone()
	ts := e.now().UTC().Format(time.RFC3339Nano)
	names := v.Names()
	entries := make([]types.AccessLogEntry, 0, len(names))
	var denied []string

	for _, name := range names {
		group, _ := e.catalog.GroupOf(name)
		deniedBy := e.deniedBy(v, name, state)
		entry := types.AccessLogEntry{
			Timestamp:     ts,
			RequestID:     meta.RequestID,
			Feature:       name,
			Group:         group,
			Allowed:       deniedBy == "",
			DeniedBy:      deniedBy,
			ScorerVersion: meta.ScorerVersion,
		}
		entries = append(entries, entry)
		if deniedBy != "" {
			redacted.Delete(name)
			denied = append(denied, name)
		}
	}

	return Result{
		Vector:  redacted,
		Entries: entries,
		Denied:  denied,
		Log:     e.record(ctx, entries),
	}
}

func (e *Enforcer) deniedBy(v *features.Vector, name string, state State) string {
	if group, ok := e.catalog.GroupOf(name); ok && !state.Allowed(group) {
		return group
	}
	for _, input := range v.Lineage(name) {
		if group, ok := e.catalog.GroupOf(input); ok && !state.Allowed(group) {
			return group
		}
	}
	return ""
}

func (e *Enforcer) record(ctx context.Context, entries []types.AccessLogEntry) LogResult {
	if e.sink == nil {
		e.failures.Add(1)
		return LogResult{Err: errNoAccessSink}
	}
	// Reads already happened; a cancelled request still leaves its trail.
	if err := e.sink.AppendAccessLog(context.WithoutCancel(ctx), entries); err != nil {
		e.failures.Add(1)
		e.logger.Warn("access log write failed", zap.Int("entries", len(entries)), zap.Error(err))
		return LogResult{Err: err}
	}
	e.writes.Add(1)
	return LogResult{Recorded: true}
}

func (e *Enforcer) Stats() EnforcerStats {
	return EnforcerStats{Writes: e.writes.Load(), Failures: e.failures.Load()}
}
