package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide represents the direction of a leveraged position.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// EntrySide returns the order side used to open a position in this direction.
func (s PositionSide) EntrySide() OrderSide {
	if s == Long {
		return Buy
	}
	return Sell
}

// ExitSide returns the order side used to reduce or close a position in this direction.
func (s PositionSide) ExitSide() OrderSide {
	if s == Long {
		return Sell
	}
	return Buy
}

// TradeStatus represents the lifecycle status of a trade-history record.
// Transitions are monotonic: OPEN -> PARTIAL -> CLOSED (PARTIAL may be skipped).
type TradeStatus string

const (
	TradeStatusOpen    TradeStatus = "OPEN"
	TradeStatusPartial TradeStatus = "PARTIAL"
	TradeStatusClosed  TradeStatus = "CLOSED"
)

// CloseReason indicates why a position left the active set.
type CloseReason string

const (
	CloseReasonStopLoss       CloseReason = "STOP_LOSS"
	CloseReasonAllTakeProfits CloseReason = "ALL_TAKE_PROFITS"
	CloseReasonManual         CloseReason = "MANUAL_CLOSE"
)
