package store

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// DecisionRow is the persisted form of a BrainDecision.
type DecisionRow struct {
	SignalID     string
	PhaseID      string
	Approved     bool
	Requested    decimal.Decimal
	Authorised   decimal.Decimal
	Reason       string
	SnapshotJSON string
}

// UpsertDecision inserts a decision idempotently: if signal_id is already
// present, the insert is a no-op and the existing row is left unchanged
// (decisions.signal_id is unique, re-insertion idempotent per spec §6.4).
func (s *Store) UpsertDecision(d DecisionRow) error {
	_, err := s.db.Exec(`
		INSERT INTO decisions (signal_id, phase_id, ts, approved, requested, authorised, reason, snapshot_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signal_id) DO NOTHING
	`,
		d.SignalID, d.PhaseID, nowRFC3339(), boolToInt(d.Approved),
		d.Requested.String(), d.Authorised.String(), d.Reason, d.SnapshotJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert decision: %w", err)
	}
	return nil
}

// GetDecision returns the persisted decision for signalID, or
// (DecisionRow{}, false, nil) if none exists.
func (s *Store) GetDecision(signalID string) (DecisionRow, bool, error) {
	var d DecisionRow
	var approved int
	var requestedStr, authorisedStr string
	err := s.db.QueryRow(`
		SELECT signal_id, phase_id, approved, requested, authorised, reason, snapshot_json
		  FROM decisions WHERE signal_id = ?
	`, signalID).Scan(&d.SignalID, &d.PhaseID, &approved, &requestedStr, &authorisedStr, &d.Reason, &d.SnapshotJSON)
	if err == sql.ErrNoRows {
		return DecisionRow{}, false, nil
	}
	if err != nil {
		return DecisionRow{}, false, fmt.Errorf("get decision: %w", err)
	}
	d.Approved = approved != 0
	d.Requested, err = decimal.NewFromString(requestedStr)
	if err != nil {
		return DecisionRow{}, false, err
	}
	d.Authorised, err = decimal.NewFromString(authorisedStr)
	if err != nil {
		return DecisionRow{}, false, err
	}
	return d, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordRiskSnapshot appends a row to risk_snapshots.
func (s *Store) RecordRiskSnapshot(leverage, netDelta, correlation, beta, var95 decimal.Decimal) error {
	_, err := s.db.Exec(`
		INSERT INTO risk_snapshots (ts, leverage, net_delta, correlation_score, portfolio_beta, var_95)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nowRFC3339(), leverage.String(), netDelta.String(), correlation.String(), beta.String(), var95.String())
	if err != nil {
		return fmt.Errorf("record risk snapshot: %w", err)
	}
	return nil
}

// SeenNonce records nonce for phaseID if not already present; returns
// false if the nonce was already recorded (a replay).
func (s *Store) SeenNonce(phaseID, nonce string) (fresh bool, err error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO seen_nonces (phase_id, nonce, ts) VALUES (?, ?, ?)`,
		phaseID, nonce, nowRFC3339(),
	)
	if err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PruneNoncesBefore deletes nonce records older than cutoffRFC3339, bounding
// the in-memory-equivalent replay window per spec §6.1.
func (s *Store) PruneNoncesBefore(cutoffRFC3339 string) error {
	_, err := s.db.Exec(`DELETE FROM seen_nonces WHERE ts < ?`, cutoffRFC3339)
	return err
}
