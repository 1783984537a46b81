package store

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RecordAllocation appends a row to allocation_history.
func (s *Store) RecordAllocation(equity, w1, w2, w3 decimal.Decimal, tier string) error {
	_, err := s.db.Exec(
		`INSERT INTO allocation_history (ts, equity, w1, w2, w3, tier) VALUES (?, ?, ?, ?, ?, ?)`,
		nowRFC3339(), equity.String(), w1.String(), w2.String(), w3.String(), tier,
	)
	if err != nil {
		return fmt.Errorf("record allocation: %w", err)
	}
	return nil
}

// RecordPhaseTrade appends a row to phase_trades.
func (s *Store) RecordPhaseTrade(phaseID string, pnl decimal.Decimal) error {
	_, err := s.db.Exec(
		`INSERT INTO phase_trades (phase_id, ts, pnl) VALUES (?, ?, ?)`,
		phaseID, nowRFC3339(), pnl.String(),
	)
	if err != nil {
		return fmt.Errorf("record phase trade: %w", err)
	}
	return nil
}

// PhaseTrade is a single persisted trade row for a phase.
type PhaseTrade struct {
	Timestamp string
	PnL       decimal.Decimal
}

// ListPhaseTrades returns all trades recorded for phaseID, oldest first.
func (s *Store) ListPhaseTrades(phaseID string) ([]PhaseTrade, error) {
	rows, err := s.db.Query(
		`SELECT ts, pnl FROM phase_trades WHERE phase_id = ? ORDER BY ts ASC`, phaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list phase trades: %w", err)
	}
	defer rows.Close()

	var out []PhaseTrade
	for rows.Next() {
		var ts, pnlStr string
		if err := rows.Scan(&ts, &pnlStr); err != nil {
			return nil, err
		}
		pnl, err := decimal.NewFromString(pnlStr)
		if err != nil {
			return nil, err
		}
		out = append(out, PhaseTrade{Timestamp: ts, PnL: pnl})
	}
	return out, rows.Err()
}

// RecordPhasePerformance appends a row to phase_performance.
func (s *Store) RecordPhasePerformance(phaseID string, sharpe, modifier decimal.Decimal) error {
	_, err := s.db.Exec(
		`INSERT INTO phase_performance (phase_id, ts, sharpe, modifier) VALUES (?, ?, ?, ?)`,
		phaseID, nowRFC3339(), sharpe.String(), modifier.String(),
	)
	if err != nil {
		return fmt.Errorf("record phase performance: %w", err)
	}
	return nil
}
