package domain

import "time"

// Position tracks one open position together with the protective orders that
// guard it. It is created by the execution engine immediately after the entry
// order is accepted and mutated only by the reconciler afterwards; it leaves
// the active set only when the position is fully closed.
type Position struct {
	Symbol     string
	AccountID  string
	Side       PositionSide
	Quantity   float64
	EntryPrice float64
	Leverage   int
	EntryTime  time.Time

	// TradeID correlates this position with its trade-history record.
	// It is the venue's entry order id.
	TradeID string

	// Protective order ids. A nil pointer means the leg was never placed
	// (submission failed or the leg was not part of the plan).
	StopLossOrderID          *int64
	TakeProfitOrderIDs       []int64
	FilledTakeProfitOrderIDs []int64
	TrailingOrderID          *int64

	// RealizedPnL accumulates the estimated profit of confirmed protective
	// fills so the final trade-history update carries a figure.
	RealizedPnL float64
}

// UnfilledTakeProfitOrderIDs returns the TP order ids not yet marked filled.
func (p *Position) UnfilledTakeProfitOrderIDs() []int64 {
	unfilled := make([]int64, 0, len(p.TakeProfitOrderIDs))
	for _, id := range p.TakeProfitOrderIDs {
		if !p.IsTakeProfitFilled(id) {
			unfilled = append(unfilled, id)
		}
	}
	return unfilled
}

// IsTakeProfitFilled reports whether the given TP order id has been marked filled.
func (p *Position) IsTakeProfitFilled(orderID int64) bool {
	for _, id := range p.FilledTakeProfitOrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}

// MarkTakeProfitFilled records a confirmed TP fill. It is idempotent.
func (p *Position) MarkTakeProfitFilled(orderID int64) {
	if !p.IsTakeProfitFilled(orderID) {
		p.FilledTakeProfitOrderIDs = append(p.FilledTakeProfitOrderIDs, orderID)
	}
}

// LegPnL estimates the realized profit of closing quantity at exitPrice.
func (p *Position) LegPnL(exitPrice, quantity float64) float64 {
	if p.Side == Long {
		return (exitPrice - p.EntryPrice) * quantity
	}
	return (p.EntryPrice - exitPrice) * quantity
}
