package app

import (
	"sync"

	"signalTraderBot/internal/domain"
)

type positionKey struct {
	accountID string
	symbol    string
}

// PositionBook is the in-memory active-position set shared by the execution
// path (inserts) and the reconciler (mutates, removes). One position per
// symbol per account. The book is owned by a single engine instance rather
// than a package-level map so multiple account engines can coexist in one
// process without cross-talk.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[positionKey]*domain.Position
}

func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[positionKey]*domain.Position)}
}

// Insert makes a position visible to the reconciler. Callers must only
// insert fully populated positions (all leg submissions already attempted).
func (b *PositionBook) Insert(pos *domain.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[positionKey{pos.AccountID, pos.Symbol}] = pos
}

// Get returns the active position for an account/symbol, or nil.
func (b *PositionBook) Get(accountID, symbol string) *domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[positionKey{accountID, symbol}]
}

// Has reports whether an active position exists for an account/symbol.
func (b *PositionBook) Has(accountID, symbol string) bool {
	return b.Get(accountID, symbol) != nil
}

// Remove drops a position from the active set.
func (b *PositionBook) Remove(accountID, symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, positionKey{accountID, symbol})
}

// ListByAccount returns the account's active positions as a snapshot slice,
// safe to iterate while the book is mutated.
func (b *PositionBook) ListByAccount(accountID string) []*domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.Position, 0, len(b.positions))
	for key, pos := range b.positions {
		if key.accountID == accountID {
			out = append(out, pos)
		}
	}
	return out
}

// Len returns the number of active positions across all accounts.
func (b *PositionBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}
