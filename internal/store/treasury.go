package store

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// TreasurySnapshot is the persisted singleton treasury state row.
type TreasurySnapshot struct {
	RiskyBalance  decimal.Decimal
	SafeBalance   decimal.Decimal
	TotalSwept    decimal.Decimal
	HighWatermark decimal.Decimal
	ReserveFloor  decimal.Decimal
}

// LoadTreasury returns the persisted treasury state, or ok=false if the
// singleton row has never been written (first boot).
func (s *Store) LoadTreasury() (snap TreasurySnapshot, ok bool, err error) {
	var risky, safe, swept, hwm, floor string
	row := s.db.QueryRow(`
		SELECT risky_balance, safe_balance, total_swept, high_watermark, reserve_floor
		  FROM treasury_state WHERE id = 1
	`)
	if err := row.Scan(&risky, &safe, &swept, &hwm, &floor); err != nil {
		if err == sql.ErrNoRows {
			return TreasurySnapshot{}, false, nil
		}
		return TreasurySnapshot{}, false, fmt.Errorf("load treasury: %w", err)
	}
	snap.RiskyBalance, err = decimal.NewFromString(risky)
	if err != nil {
		return TreasurySnapshot{}, false, err
	}
	snap.SafeBalance, err = decimal.NewFromString(safe)
	if err != nil {
		return TreasurySnapshot{}, false, err
	}
	snap.TotalSwept, err = decimal.NewFromString(swept)
	if err != nil {
		return TreasurySnapshot{}, false, err
	}
	snap.HighWatermark, err = decimal.NewFromString(hwm)
	if err != nil {
		return TreasurySnapshot{}, false, err
	}
	snap.ReserveFloor, err = decimal.NewFromString(floor)
	if err != nil {
		return TreasurySnapshot{}, false, err
	}
	return snap, true, nil
}

// SaveTreasury upserts the singleton treasury state row.
func (s *Store) SaveTreasury(snap TreasurySnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO treasury_state (id, risky_balance, safe_balance, total_swept, high_watermark, reserve_floor)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			risky_balance = excluded.risky_balance,
			safe_balance = excluded.safe_balance,
			total_swept = excluded.total_swept,
			high_watermark = excluded.high_watermark,
			reserve_floor = excluded.reserve_floor
	`, snap.RiskyBalance.String(), snap.SafeBalance.String(), snap.TotalSwept.String(),
		snap.HighWatermark.String(), snap.ReserveFloor.String())
	if err != nil {
		return fmt.Errorf("save treasury: %w", err)
	}
	return nil
}

// RecordTreasuryOp appends an audit row to treasury_ops. kind is e.g.
// "sweep" or "manual_transfer".
func (s *Store) RecordTreasuryOp(kind string, amount, fromBal, toBal, postHWM decimal.Decimal, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO treasury_ops (ts, kind, amount, from_bal, to_bal, post_hwm, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, nowRFC3339(), kind, amount.String(), fromBal.String(), toBal.String(), postHWM.String(), reason)
	if err != nil {
		return fmt.Errorf("record treasury op: %w", err)
	}
	return nil
}

// TreasuryOpExists reports whether a treasury_ops row with the given
// sweep/transfer reason tag already exists, used to guard idempotent
// execution by sweep_id (the reason column carries the caller-supplied id).
func (s *Store) TreasuryOpExists(reason string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM treasury_ops WHERE reason = ?`, reason).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check treasury op: %w", err)
	}
	return count > 0, nil
}
