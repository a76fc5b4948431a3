package domain

import "time"

// TradeRecord is the persisted trade-history row mirroring a Position. The
// order-id columns let a restarted process rebuild its active set and resume
// reconciliation, which is why they are stored alongside the prices.
type TradeRecord struct {
	TradeID    string // venue entry order id, primary key
	AccountID  string
	Symbol     string
	Side       PositionSide
	EntryPrice float64
	Quantity   float64
	Leverage   int
	Status     TradeStatus
	PnL        float64
	EntryTime  time.Time
	ExitTime   *time.Time

	StopLossPrice    float64
	TakeProfitPrices []float64

	StopLossOrderID          *int64
	TakeProfitOrderIDs       []int64
	FilledTakeProfitOrderIDs []int64
	TrailingOrderID          *int64

	SourceID string // originating signal channel/message, informational
}

// ToPosition rehydrates the in-memory position tracked by the reconciler.
func (t *TradeRecord) ToPosition() *Position {
	return &Position{
		Symbol:                   t.Symbol,
		AccountID:                t.AccountID,
		Side:                     t.Side,
		Quantity:                 t.Quantity,
		EntryPrice:               t.EntryPrice,
		Leverage:                 t.Leverage,
		EntryTime:                t.EntryTime,
		TradeID:                  t.TradeID,
		RealizedPnL:              t.PnL,
		StopLossOrderID:          t.StopLossOrderID,
		TakeProfitOrderIDs:       append([]int64(nil), t.TakeProfitOrderIDs...),
		FilledTakeProfitOrderIDs: append([]int64(nil), t.FilledTakeProfitOrderIDs...),
		TrailingOrderID:          t.TrailingOrderID,
	}
}
