// Package positions maintains the Brain's read-synchronised snapshot of
// open positions (§3: "the Brain only ever holds a read-synchronised
// snapshot"). Grounded on the position map and fill-channel shape of
// internal/execution/order_manager.go's OrderManager, trimmed to the
// read-only view the Brain needs rather than full order lifecycle
// ownership (order placement and fills remain the execution engine's).
package positions

import (
	"sync"
	"time"

	"github.com/benedict-anokye-davies/brain/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Fill is a single execution report fed back from the execution engine,
// used to keep the snapshot current between full resyncs.
type Fill struct {
	Symbol   string
	Side     types.Side
	Notional decimal.Decimal
	PnL      decimal.Decimal
	At       time.Time
}

// Store holds the latest known set of open positions.
type Store struct {
	logger *zap.Logger

	mu           sync.RWMutex
	positions    map[string]types.Position
	lastSyncedAt time.Time
}

// NewStore constructs an empty position snapshot store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		logger:    logger.Named("positions"),
		positions: make(map[string]types.Position),
	}
}

// ApplySnapshot replaces the entire position set, as returned by an egress
// query_positions call during startup recovery or periodic resync.
func (s *Store) ApplySnapshot(snapshot []types.Position, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make(map[string]types.Position, len(snapshot))
	for _, p := range snapshot {
		fresh[p.Symbol] = p
	}
	s.positions = fresh
	s.lastSyncedAt = at
}

// ApplyFill updates the snapshot incrementally between full resyncs. A
// fill that nets a position to exactly zero removes it; a fill that
// overshoots flips the position to the opposite side.
func (s *Store) ApplyFill(f Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.positions[f.Symbol]
	if !ok {
		s.positions[f.Symbol] = types.Position{
			Symbol:   f.Symbol,
			Side:     f.Side,
			Notional: f.Notional,
			OpenedAt: f.At,
		}
		s.lastSyncedAt = f.At
		return
	}

	signed := existing.SignedNotional().Add(decimal.NewFromInt(f.Side.Sign()).Mul(f.Notional))
	if signed.IsZero() {
		delete(s.positions, f.Symbol)
		s.lastSyncedAt = f.At
		return
	}

	updated := existing
	if signed.IsNegative() {
		updated.Side = types.SideSell
		updated.Notional = signed.Neg()
	} else {
		updated.Side = types.SideBuy
		updated.Notional = signed
	}
	s.positions[f.Symbol] = updated
	s.lastSyncedAt = f.At
}

// Positions returns a copy of the current open positions.
func (s *Store) Positions() []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}

// Get returns the position for symbol, if any.
func (s *Store) Get(symbol string) (types.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	return p, ok
}

// Count returns the number of currently open positions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// LastSyncedAt returns the time of the last snapshot or fill applied.
func (s *Store) LastSyncedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSyncedAt
}

// IsStale reports whether the snapshot has not been refreshed within maxAge.
func (s *Store) IsStale(now time.Time, maxAge time.Duration) bool {
	last := s.LastSyncedAt()
	if last.IsZero() {
		return true
	}
	return now.Sub(last) > maxAge
}
