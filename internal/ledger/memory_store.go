package ledger

import (
	"context"
	"sync"

	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

type InMemoryStore struct {
	mu sync.Mutex

	decisions   []DecisionEntry
	governance  []GovernanceEvent
	accessLog   []types.AccessLogEntry
	consent     []byte
	consentTime string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) WithTx(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.decisions = append(s.decisions, tx.decisions...)
	s.governance = append(s.governance, tx.governance...)
	return nil
}

// memTx buffers inserts so a failed transaction leaves the store untouched.
type memTx struct {
	store      *InMemoryStore
	decisions  []DecisionEntry
	governance []GovernanceEvent
}

func (t *memTx) LastDecision() (DecisionEntry, bool, error) {
	if n := len(t.decisions); n > 0 {
		return t.decisions[n-1], true, nil
	}
	if n := len(t.store.decisions); n > 0 {
		return t.store.decisions[n-1], true, nil
	}
	return DecisionEntry{}, false, nil
}

func (t *memTx) InsertDecision(entry DecisionEntry) error {
	t.decisions = append(t.decisions, entry)
	return nil
}

func (t *memTx) LastGovernance() (GovernanceEvent, bool, error) {
	if n := len(t.governance); n > 0 {
		return t.governance[n-1], true, nil
	}
	if n := len(t.store.governance); n > 0 {
		return t.store.governance[n-1], true, nil
	}
	return GovernanceEvent{}, false, nil
}

func (t *memTx) InsertGovernance(event GovernanceEvent) error {
	t.governance = append(t.governance, event)
	return nil
}

func (s *InMemoryStore) ListDecisions(_ context.Context, afterSeq int64, limit int) ([]DecisionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []DecisionEntry{}
	for _, e := range s.decisions {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) LatestDecisions(_ context.Context, limit int) ([]DecisionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []DecisionEntry{}
	for i := len(s.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.decisions[i])
	}
	return out, nil
}

func (s *InMemoryStore) GetDecision(_ context.Context, seq int64) (DecisionEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.decisions {
		if e.Seq == seq {
			return e, true, nil
		}
	}
	return DecisionEntry{}, false, nil
}

func (s *InMemoryStore) DecisionSummary(context.Context) (types.DecisionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum types.DecisionSummary
	for _, e := range s.decisions {
		sum.Total++
		switch e.Decision {
		case types.LabelApproved:
			sum.Approvals++
		case types.LabelDenied:
			sum.Denials++
		}
	}
	return sum, nil
}

func (s *InMemoryStore) ListGovernance(_ context.Context, afterSeq int64, limit int) ([]GovernanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []GovernanceEvent{}
	for _, e := range s.governance {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) LatestGovernance(_ context.Context, limit int) ([]GovernanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []GovernanceEvent{}
	for i := len(s.governance) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.governance[i])
	}
	return out, nil
}

func (s *InMemoryStore) AppendAccessLog(_ context.Context, entries []types.AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessLog = append(s.accessLog, entries...)
	return nil
}

func (s *InMemoryStore) LatestAccessLog(_ context.Context, limit int) ([]types.AccessLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.AccessLogEntry{}
	for i := len(s.accessLog) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.accessLog[i])
	}
	return out, nil
}

func (s *InMemoryStore) GetConsentState(context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consent == nil {
		return nil, false, nil
	}
	return append([]byte(nil), s.consent...), true, nil
}

func (s *InMemoryStore) PutConsentState(_ context.Context, stateJSON []byte, updatedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consent = append([]byte(nil), stateJSON...)
	s.consentTime = updatedAt
	return nil
}
