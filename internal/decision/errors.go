package decision

import "errors"

var (
	// ErrServiceUnavailable is returned while the model is paused. Nothing
	// is scored, logged or appended.
	ErrServiceUnavailable = errors.New("service unavailable: model paused")
	ErrScorerTimeout      = errors.New("scorer timed out")
	ErrScorerFailure      = errors.New("scorer failed")
	ErrLedgerWrite        = errors.New("decision could not be recorded")
	ErrDecisionNotFound   = errors.New("decision not found")
)
