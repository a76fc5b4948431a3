package ports

import (
	"context"
	"time"

	"signalTraderBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing,
// querying, or cancelling an order.
type OrderResponse struct {
	OrderID       int64
	Symbol        string
	ClientOrderID string
	Price         float64 // requested price (0 for market orders)
	AvgPrice      float64 // average filled price
	StopPrice     float64 // trigger price for conditional orders
	OrigQuantity  float64
	ExecutedQty   float64
	Status        string // venue status (NEW, FILLED, CANCELED, EXPIRED, ...)
	Type          string
	Side          string
	Timestamp     time.Time
}

// Filled reports whether the venue considers this order executed. The
// reconciler must call this on a freshly fetched order, never infer a fill
// from mere absence in the open-orders list.
func (o *OrderResponse) Filled() bool {
	return o.Status == "FILLED" || o.ExecutedQty > 0
}

// ExchangeClient defines the interface for interacting with the derivatives
// venue. The abstraction decouples the engine from the concrete exchange SDK.
type ExchangeClient interface {
	// GetTickerPrice retrieves the last traded price for a symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// GetAvailableBalance retrieves the available balance for an asset (e.g. "USDT").
	GetAvailableBalance(ctx context.Context, asset string) (float64, error)

	// SetLeverage sets the leverage for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// GetSymbolRule fetches the venue trading rule for a symbol.
	// Returns ErrSymbolNotFound when the venue does not list the symbol.
	GetSymbolRule(ctx context.Context, symbol string) (*domain.TradingRule, error)

	// PlaceMarketOrder places a market order. clientOrderID correlates the
	// order with the trade record; pass "" to let the venue assign one.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, clientOrderID string) (*OrderResponse, error)

	// PlaceStopMarketOrder places a stop-market order triggered at stopPrice.
	PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice string) (*OrderResponse, error)

	// PlaceTakeProfitMarketOrder places a take-profit-market order triggered at stopPrice.
	PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice string) (*OrderResponse, error)

	// PlaceTrailingStopOrder places a trailing-stop-market order that arms at
	// activationPrice and trails by callbackRate percent.
	PlaceTrailingStopOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, activationPrice, callbackRate string) (*OrderResponse, error)

	// CancelOrder cancels an open order by id.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// GetOrder fetches the current state of an order regardless of whether it
	// is still open. Returns ErrOrderNotFound when the venue no longer knows it.
	GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// GetOpenOrders lists the currently open orders for a symbol.
	GetOpenOrders(ctx context.Context, symbol string) ([]*OrderResponse, error)

	// GetPositionAmount returns the venue's open contract amount for a symbol
	// (positive for long, negative for short, 0 when flat).
	GetPositionAmount(ctx context.Context, symbol string) (float64, error)
}
