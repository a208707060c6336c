package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

// ErrIntegrity marks a chain that failed verification. Only Verify* return it.
var ErrIntegrity = errors.New("ledger integrity")

type IntegrityError struct {
	Chain  string
	Seq    int64
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s chain broken at seq %d: %s", e.Chain, e.Seq, e.Reason)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

const verifyPageSize = 500

// Ledger appends to and verifies the Decision and Governance chains.
//
// Reading the latest hash and inserting the next entry is serialized per
// chain by a mutex, and the store runs both steps in one transaction so a
// second writer on the same database cannot claim the same position.
type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	decisionMu   sync.Mutex
	governanceMu sync.Mutex
}

func New(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

func (l *Ledger) Store() Store { return l.store }

type DecisionInput struct {
	RequestID     string
	InputHash     string
	Decision      types.DecisionLabel
	Probability   float64
	Explanation   types.ExplanationReport
	Remediation   []string
	Consent       map[string]bool
	ScorerVersion string
}

type GovernanceInput struct {
	EventType        types.GovernanceEventType
	ScorerVersion    string
	InputSnapshot    any
	OutputSnapshot   any
	FairnessSnapshot any
	Details          any
}

// AppendDecision links a new entry after the current head. A cancelled ctx
// aborts before anything is written.
func (l *Ledger) AppendDecision(ctx context.Context, in DecisionInput) (DecisionEntry, error) {
	if in.InputHash == "" {
		return DecisionEntry{}, errors.New("input hash is required")
	}
	l.decisionMu.Lock()
	defer l.decisionMu.Unlock()
	if err := ctx.Err(); err != nil {
		return DecisionEntry{}, err
	}

	var entry DecisionEntry
	err := l.store.WithTx(ctx, func(tx Tx) error {
		last, ok, err := tx.LastDecision()
		if err != nil {
			return err
		}
		entry = DecisionEntry{
			Seq:           1,
			CreatedAt:     l.now().UTC().Format(time.RFC3339Nano),
			RequestID:     in.RequestID,
			InputHash:     in.InputHash,
			Decision:      in.Decision,
			Probability:   in.Probability,
			Explanation:   in.Explanation,
			Remediation:   in.Remediation,
			Consent:       in.Consent,
			ScorerVersion: in.ScorerVersion,
		}
		if ok {
			prev := last.OutputHash
			entry.Seq = last.Seq + 1
			entry.PreviousHash = &prev
		}
		entry.OutputHash, err = DecisionDigest(entry)
		if err != nil {
			return fmt.Errorf("digest decision: %w", err)
		}
		return tx.InsertDecision(entry)
	})
	if err != nil {
		return DecisionEntry{}, fmt.Errorf("append decision: %w", err)
	}
	l.logger.Debug("decision appended", zap.Int64("seq", entry.Seq), zap.String("output_hash", entry.OutputHash))
	return entry, nil
}

func (l *Ledger) AppendGovernance(ctx context.Context, in GovernanceInput) (GovernanceEvent, error) {
	if !in.EventType.Valid() {
		return GovernanceEvent{}, fmt.Errorf("unknown governance event type %q", in.EventType)
	}
	event := GovernanceEvent{EventType: in.EventType, ScorerVersion: in.ScorerVersion}
	var err error
	if event.InputSnapshot, err = normalizeSnapshot(in.InputSnapshot); err != nil {
		return GovernanceEvent{}, fmt.Errorf("input snapshot: %w", err)
	}
	if event.OutputSnapshot, err = normalizeSnapshot(in.OutputSnapshot); err != nil {
		return GovernanceEvent{}, fmt.Errorf("output snapshot: %w", err)
	}
	if event.FairnessSnapshot, err = normalizeSnapshot(in.FairnessSnapshot); err != nil {
		return GovernanceEvent{}, fmt.Errorf("fairness snapshot: %w", err)
	}
	if event.Details, err = normalizeSnapshot(in.Details); err != nil {
		return GovernanceEvent{}, fmt.Errorf("details: %w", err)
	}

	l.governanceMu.Lock()
	defer l.governanceMu.Unlock()
	if err := ctx.Err(); err != nil {
		return GovernanceEvent{}, err
	}

	err = l.store.WithTx(ctx, func(tx Tx) error {
		last, ok, err := tx.LastGovernance()
		if err != nil {
			return err
		}
		event.Seq = 1
		event.PreviousHash = nil
		event.CreatedAt = l.now().UTC().Format(time.RFC3339Nano)
		if ok {
			prev := last.OutputHash
			event.Seq = last.Seq + 1
			event.PreviousHash = &prev
		}
		event.OutputHash, err = GovernanceDigest(event)
		if err != nil {
			return fmt.Errorf("digest governance event: %w", err)
		}
		return tx.InsertGovernance(event)
	})
	if err != nil {
		return GovernanceEvent{}, fmt.Errorf("append governance event: %w", err)
	}
	l.logger.Debug("governance event appended",
		zap.Int64("seq", event.Seq), zap.String("event_type", string(event.EventType)))
	return event, nil
}

// VerifyDecisions walks the Decision Chain oldest first. A broken chain is
// reported as Valid=false together with an *IntegrityError; other errors are
// storage failures.
func (l *Ledger) VerifyDecisions(ctx context.Context) (types.ChainVerification, error) {
	var (
		res     types.ChainVerification
		after   int64
		prev    *DecisionEntry
		checked int
	)
	for {
		page, err := l.store.ListDecisions(ctx, after, verifyPageSize)
		if err != nil {
			return types.ChainVerification{}, err
		}
		for i := range page {
			e := page[i]
			if ierr := checkLink("decision", e.Seq, e.PreviousHash, prevLink(prev)); ierr != nil {
				return failed(checked, ierr)
			}
			digest, err := DecisionDigest(e)
			if err != nil {
				return failed(checked, &IntegrityError{Chain: "decision", Seq: e.Seq, Reason: "entry cannot be hashed: " + err.Error()})
			}
			if digest != e.OutputHash {
				return failed(checked, &IntegrityError{Chain: "decision", Seq: e.Seq, Reason: "output hash mismatch"})
			}
			checked++
			prev = &e
			after = e.Seq
		}
		if len(page) < verifyPageSize {
			break
		}
	}
	res.Valid = true
	res.Entries = checked
	return res, nil
}

func (l *Ledger) VerifyGovernance(ctx context.Context) (types.ChainVerification, error) {
	var (
		res     types.ChainVerification
		after   int64
		prev    *GovernanceEvent
		checked int
	)
	for {
		page, err := l.store.ListGovernance(ctx, after, verifyPageSize)
		if err != nil {
			return types.ChainVerification{}, err
		}
		for i := range page {
			e := page[i]
			var link *chainLink
			if prev != nil {
				link = &chainLink{seq: prev.Seq, hash: prev.OutputHash}
			}
			if ierr := checkLink("governance", e.Seq, e.PreviousHash, link); ierr != nil {
				return failed(checked, ierr)
			}
			digest, err := GovernanceDigest(e)
			if err != nil {
				return failed(checked, &IntegrityError{Chain: "governance", Seq: e.Seq, Reason: "entry cannot be hashed: " + err.Error()})
			}
			if digest != e.OutputHash {
				return failed(checked, &IntegrityError{Chain: "governance", Seq: e.Seq, Reason: "output hash mismatch"})
			}
			checked++
			prev = &e
			after = e.Seq
		}
		if len(page) < verifyPageSize {
			break
		}
	}
	res.Valid = true
	res.Entries = checked
	return res, nil
}

type chainLink struct {
	seq  int64
	hash string
}

func prevLink(prev *DecisionEntry) *chainLink {
	if prev == nil {
		return nil
	}
	return &chainLink{seq: prev.Seq, hash: prev.OutputHash}
}

func checkLink(chain string, seq int64, stored *string, prev *chainLink) *IntegrityError {
	if prev == nil {
		if seq != 1 {
			return &IntegrityError{Chain: chain, Seq: seq, Reason: "chain does not start at seq 1"}
		}
		if stored != nil {
			return &IntegrityError{Chain: chain, Seq: seq, Reason: "first entry has a previous hash"}
		}
		return nil
	}
	if seq != prev.seq+1 {
		return &IntegrityError{Chain: chain, Seq: seq, Reason: fmt.Sprintf("sequence gap after seq %d", prev.seq)}
	}
	if stored == nil || *stored != prev.hash {
		return &IntegrityError{Chain: chain, Seq: seq, Reason: "previous hash does not match prior entry"}
	}
	return nil
}

func failed(checked int, ierr *IntegrityError) (types.ChainVerification, error) {
	return types.ChainVerification{
		Valid:     false,
		Entries:   checked,
		FailedSeq: ierr.Seq,
		Reason:    ierr.Reason,
	}, ierr
}

func (l *Ledger) LatestDecisions(ctx context.Context, limit int) ([]DecisionEntry, error) {
	return l.store.LatestDecisions(ctx, ClampLimit(limit))
}

func (l *Ledger) LatestGovernance(ctx context.Context, limit int) ([]GovernanceEvent, error) {
	return l.store.LatestGovernance(ctx, ClampLimit(limit))
}

func (l *Ledger) Decision(ctx context.Context, seq int64) (DecisionEntry, bool, error) {
	return l.store.GetDecision(ctx, seq)
}

func (l *Ledger) Summary(ctx context.Context) (types.DecisionSummary, error) {
	return l.store.DecisionSummary(ctx)
}
