package store

import (
	"database/sql"
	"fmt"
)

// BreakerSnapshot is the persisted singleton breaker state row.
type BreakerSnapshot struct {
	Kind   string
	Reason string
	Since  string
	Until  string
}

// LoadBreaker returns the persisted breaker state, or ok=false on first
// boot when no row has ever been written (caller defaults to Normal).
func (s *Store) LoadBreaker() (snap BreakerSnapshot, ok bool, err error) {
	err = s.db.QueryRow(`
		SELECT kind, reason, since, until FROM breaker_state WHERE id = 1
	`).Scan(&snap.Kind, &snap.Reason, &snap.Since, &snap.Until)
	if err == sql.ErrNoRows {
		return BreakerSnapshot{}, false, nil
	}
	if err != nil {
		return BreakerSnapshot{}, false, fmt.Errorf("load breaker: %w", err)
	}
	return snap, true, nil
}

// SaveBreaker upserts the singleton breaker state row.
func (s *Store) SaveBreaker(snap BreakerSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO breaker_state (id, kind, reason, since, until)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			reason = excluded.reason,
			since = excluded.since,
			until = excluded.until
	`, snap.Kind, snap.Reason, snap.Since, snap.Until)
	if err != nil {
		return fmt.Errorf("save breaker: %w", err)
	}
	return nil
}

// RecordBreakerEvent appends an audit row to breaker_events. operatorID is
// empty for system-triggered transitions.
func (s *Store) RecordBreakerEvent(kind, reason, equity, operatorID, contextJSON string) error {
	if contextJSON == "" {
		contextJSON = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO breaker_events (ts, kind, reason, equity, operator_id, context_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nowRFC3339(), kind, reason, equity, nullableString(operatorID), contextJSON)
	if err != nil {
		return fmt.Errorf("record breaker event: %w", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
