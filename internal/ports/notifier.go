package ports

import (
	"context"
	"time"
)

// Notification event payloads. The notifier renders them for whatever channel
// it fronts (webhook, chat, log); the engine only guarantees the fields.

// TradeExecutedEvent is emitted after a successful entry, with whichever
// protective legs were actually accepted.
type TradeExecutedEvent struct {
	AccountID       string
	Symbol          string
	Side            string
	OrderID         int64
	Quantity        float64
	Price           float64
	Leverage        int
	StopLossOrderID *int64
	TakeProfitIDs   []int64
	TrailingOrderID *int64
	Timestamp       time.Time
}

// TradeFailedEvent is emitted for any user-visible failure: the symbol, the
// attempted action and the venue's error text, already truncated.
type TradeFailedEvent struct {
	AccountID string
	Symbol    string
	Action    string // e.g. "entry order", "stop-loss leg", "take-profit leg 2"
	Reason    string
	Timestamp time.Time
}

// TakeProfitFilledEvent is emitted when one rung of the ladder fills while
// others remain open.
type TakeProfitFilledEvent struct {
	AccountID    string
	Symbol       string
	OrderID      int64
	RemainingTPs int
	Timestamp    time.Time
}

// OrdersAutoCancelledEvent is emitted when the reconciler cancels the
// counterpart legs of a filled order.
type OrdersAutoCancelledEvent struct {
	AccountID    string
	Symbol       string
	CancelledIDs []int64
	Reason       string
	Timestamp    time.Time
}

// PositionClosedEvent is emitted when a position leaves the active set.
type PositionClosedEvent struct {
	AccountID string
	Symbol    string
	Reason    string
	PnL       float64
	Timestamp time.Time
}

// Notifier delivers engine events to the user-facing notification layer.
// Implementations must be non-blocking from the engine's point of view:
// delivery failures are returned for logging but never stop trading.
type Notifier interface {
	TradeExecuted(ctx context.Context, ev TradeExecutedEvent) error
	TradeFailed(ctx context.Context, ev TradeFailedEvent) error
	TakeProfitFilled(ctx context.Context, ev TakeProfitFilledEvent) error
	OrdersAutoCancelled(ctx context.Context, ev OrdersAutoCancelledEvent) error
	PositionClosed(ctx context.Context, ev PositionClosedEvent) error
}

// maxReasonLen bounds venue error text carried inside notification events.
const maxReasonLen = 200

// TruncateReason bounds an error message for inclusion in a notification.
func TruncateReason(msg string) string {
	if len(msg) <= maxReasonLen {
		return msg
	}
	return msg[:maxReasonLen] + "..."
}
