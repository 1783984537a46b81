// Package store is the Brain's State Store adapter (component G): durable
// persistence of allocations, trades, decisions, treasury operations,
// breaker events, and risk snapshots, backed by a pure-Go SQLite driver so
// the Brain never needs cgo. Grounded on stadam23-Eve-flipper's
// internal/db package: a schema_version migration table, CREATE TABLE IF
// NOT EXISTS per version, and WAL + busy-timeout pragmas for a single
// writer / many reader workload.
package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection holding the Brain's durable state.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if absent) the SQLite database under dataDir and
// runs migrations.
func Open(logger *zap.Logger, dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "brain.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	logger.Info("state store opened", zap.String("path", path))
	return s, nil
}

// OpenInMemory opens an ephemeral in-memory store, for tests.
func OpenInMemory(logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate in-memory store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS allocation_history (
				id     INTEGER PRIMARY KEY AUTOINCREMENT,
				ts     TEXT NOT NULL,
				equity TEXT NOT NULL,
				w1     TEXT NOT NULL,
				w2     TEXT NOT NULL,
				w3     TEXT NOT NULL,
				tier   TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_allocation_history_ts ON allocation_history(ts);

			CREATE TABLE IF NOT EXISTS phase_trades (
				id       INTEGER PRIMARY KEY AUTOINCREMENT,
				phase_id TEXT NOT NULL,
				ts       TEXT NOT NULL,
				pnl      TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_phase_trades_phase_ts ON phase_trades(phase_id, ts);

			CREATE TABLE IF NOT EXISTS phase_performance (
				id       INTEGER PRIMARY KEY AUTOINCREMENT,
				phase_id TEXT NOT NULL,
				ts       TEXT NOT NULL,
				sharpe   TEXT NOT NULL,
				modifier TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_phase_performance_phase_ts ON phase_performance(phase_id, ts);

			CREATE TABLE IF NOT EXISTS decisions (
				signal_id     TEXT PRIMARY KEY,
				phase_id      TEXT NOT NULL,
				ts            TEXT NOT NULL,
				approved      INTEGER NOT NULL,
				requested     TEXT NOT NULL,
				authorised    TEXT NOT NULL,
				reason        TEXT NOT NULL,
				snapshot_json TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS treasury_ops (
				id       INTEGER PRIMARY KEY AUTOINCREMENT,
				ts       TEXT NOT NULL,
				kind     TEXT NOT NULL,
				amount   TEXT NOT NULL,
				from_bal TEXT NOT NULL,
				to_bal   TEXT NOT NULL,
				post_hwm TEXT NOT NULL,
				reason   TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_treasury_ops_ts ON treasury_ops(ts);

			CREATE TABLE IF NOT EXISTS breaker_events (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				ts           TEXT NOT NULL,
				kind         TEXT NOT NULL,
				reason       TEXT NOT NULL,
				equity       TEXT NOT NULL,
				operator_id  TEXT,
				context_json TEXT NOT NULL DEFAULT '{}'
			);
			CREATE INDEX IF NOT EXISTS idx_breaker_events_ts ON breaker_events(ts);

			CREATE TABLE IF NOT EXISTS risk_snapshots (
				id                INTEGER PRIMARY KEY AUTOINCREMENT,
				ts                TEXT NOT NULL,
				leverage          TEXT NOT NULL,
				net_delta         TEXT NOT NULL,
				correlation_score TEXT NOT NULL,
				portfolio_beta    TEXT NOT NULL,
				var_95            TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_risk_snapshots_ts ON risk_snapshots(ts);

			CREATE TABLE IF NOT EXISTS treasury_state (
				id             INTEGER PRIMARY KEY CHECK (id = 1),
				risky_balance  TEXT NOT NULL,
				safe_balance   TEXT NOT NULL,
				total_swept    TEXT NOT NULL,
				high_watermark TEXT NOT NULL,
				reserve_floor  TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS breaker_state (
				id     INTEGER PRIMARY KEY CHECK (id = 1),
				kind   TEXT NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				since  TEXT NOT NULL,
				until  TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS seen_nonces (
				phase_id TEXT NOT NULL,
				nonce    TEXT NOT NULL,
				ts       TEXT NOT NULL,
				PRIMARY KEY (phase_id, nonce)
			);
			CREATE INDEX IF NOT EXISTS idx_seen_nonces_ts ON seen_nonces(ts);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		s.logger.Info("applied store migration", zap.Int("version", 1))
	}
	return nil
}

// DB returns the underlying *sql.DB for components that need raw access
// (e.g. a read-only reporting handler).
func (s *Store) DB() *sql.DB { return s.db }

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
