// Package sqlstore is the SQLite ledger store.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection keeps pragmas and
	// transactions on the same handle and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	wrapped := &Tx{ctx: ctx, tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

const decisionColumns = `seq, created_at, request_id, input_hash, decision, probability, explanation_json, remediation_json, consent_json, scorer_version, previous_hash, output_hash`

const governanceColumns = `seq, created_at, event_type, scorer_version, input_snapshot_json, output_snapshot_json, fairness_snapshot_json, details_json, previous_hash, output_hash`

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(row scanner) (ledger.DecisionEntry, error) {
	var (
		e    ledger.DecisionEntry
		cols ledger.DecisionColumns
	)
	if err := row.Scan(&e.Seq, &e.CreatedAt, &e.RequestID, &e.InputHash, &e.Decision, &e.Probability,
		&cols.Explanation, &cols.Remediation, &cols.Consent, &e.ScorerVersion, &e.PreviousHash, &e.OutputHash); err != nil {
		return ledger.DecisionEntry{}, err
	}
	if err := ledger.DecodeDecision(&e, cols); err != nil {
		return ledger.DecisionEntry{}, err
	}
	return e, nil
}

func scanGovernance(row scanner) (ledger.GovernanceEvent, error) {
	var (
		e    ledger.GovernanceEvent
		cols ledger.GovernanceColumns
	)
	if err := row.Scan(&e.Seq, &e.CreatedAt, &e.EventType, &e.ScorerVersion,
		&cols.Input, &cols.Output, &cols.Fairness, &cols.Details, &e.PreviousHash, &e.OutputHash); err != nil {
		return ledger.GovernanceEvent{}, err
	}
	if err := ledger.DecodeGovernance(&e, cols); err != nil {
		return ledger.GovernanceEvent{}, err
	}
	return e, nil
}

func (t *Tx) LastDecision() (ledger.DecisionEntry, bool, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+decisionColumns+` FROM decision_chain ORDER BY seq DESC LIMIT 1`)
	e, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.DecisionEntry{}, false, nil
	}
	if err != nil {
		return ledger.DecisionEntry{}, false, err
	}
	return e, true, nil
}

func (t *Tx) InsertDecision(e ledger.DecisionEntry) error {
	cols, err := ledger.EncodeDecision(e)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `INSERT INTO decision_chain(`+decisionColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.CreatedAt, e.RequestID, e.InputHash, string(e.Decision), e.Probability,
		cols.Explanation, cols.Remediation, cols.Consent, e.ScorerVersion, e.PreviousHash, e.OutputHash)
	return err
}

func (t *Tx) LastGovernance() (ledger.GovernanceEvent, bool, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+governanceColumns+` FROM governance_chain ORDER BY seq DESC LIMIT 1`)
	e, err := scanGovernance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.GovernanceEvent{}, false, nil
	}
	if err != nil {
		return ledger.GovernanceEvent{}, false, err
	}
	return e, true, nil
}

func (t *Tx) InsertGovernance(e ledger.GovernanceEvent) error {
	cols, err := ledger.EncodeGovernance(e)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `INSERT INTO governance_chain(`+governanceColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Seq, e.CreatedAt, string(e.EventType), e.ScorerVersion,
		cols.Input, cols.Output, cols.Fairness, cols.Details, e.PreviousHash, e.OutputHash)
	return err
}

func (s *Store) ListDecisions(ctx context.Context, afterSeq int64, limit int) ([]ledger.DecisionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decision_chain WHERE seq > ? ORDER BY seq ASC LIMIT ?`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	return collectDecisions(rows)
}

func (s *Store) LatestDecisions(ctx context.Context, limit int) ([]ledger.DecisionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decision_chain ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectDecisions(rows)
}

func collectDecisions(rows *sql.Rows) ([]ledger.DecisionEntry, error) {
	defer rows.Close()
	out := []ledger.DecisionEntry{}
	for rows.Next() {
		e, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetDecision(ctx context.Context, seq int64) (ledger.DecisionEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decision_chain WHERE seq = ?`, seq)
	e, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.DecisionEntry{}, false, nil
	}
	if err != nil {
		return ledger.DecisionEntry{}, false, err
	}
	return e, true, nil
}

func (s *Store) DecisionSummary(ctx context.Context) (types.DecisionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT decision, COUNT(*) FROM decision_chain GROUP BY decision`)
	if err != nil {
		return types.DecisionSummary{}, err
	}
	defer rows.Close()
	counts := map[string]int64{}
	for rows.Next() {
		var (
			label string
			n     int64
		)
		if err := rows.Scan(&label, &n); err != nil {
			return types.DecisionSummary{}, err
		}
		counts[label] = n
	}
	if err := rows.Err(); err != nil {
		return types.DecisionSummary{}, err
	}
	return ledger.SummaryFromCounts(counts), nil
}

func (s *Store) ListGovernance(ctx context.Context, afterSeq int64, limit int) ([]ledger.GovernanceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+governanceColumns+` FROM governance_chain WHERE seq > ? ORDER BY seq ASC LIMIT ?`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	return collectGovernance(rows)
}

func (s *Store) LatestGovernance(ctx context.Context, limit int) ([]ledger.GovernanceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+governanceColumns+` FROM governance_chain ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectGovernance(rows)
}

func collectGovernance(rows *sql.Rows) ([]ledger.GovernanceEvent, error) {
	defer rows.Close()
	out := []ledger.GovernanceEvent{}
	for rows.Next() {
		e, err := scanGovernance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendAccessLog(ctx context.Context, entries []types.AccessLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO access_log(created_at, request_id, feature, feature_group, allowed, denied_by, scorer_version)
VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Timestamp, e.RequestID, e.Feature, e.Group, e.Allowed, e.DeniedBy, e.ScorerVersion); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) LatestAccessLog(ctx context.Context, limit int) ([]types.AccessLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT created_at, request_id, feature, feature_group, allowed, denied_by, scorer_version
FROM access_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []types.AccessLogEntry{}
	for rows.Next() {
		var e types.AccessLogEntry
		if err := rows.Scan(&e.Timestamp, &e.RequestID, &e.Feature, &e.Group, &e.Allowed, &e.DeniedBy, &e.ScorerVersion); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetConsentState(ctx context.Context) ([]byte, bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state_json FROM consent_state WHERE id = ?`, ledger.ConsentRowID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(state), true, nil
}

func (s *Store) PutConsentState(ctx context.Context, stateJSON []byte, updatedAt string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO consent_state(id, state_json, updated_at) VALUES(?, ?, ?)
ON CONFLICT(id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		ledger.ConsentRowID, string(stateJSON), updatedAt)
	return err
}
