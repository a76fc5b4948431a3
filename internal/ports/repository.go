package ports

import (
	"context"
	"time"

	"signalTraderBot/internal/domain"
)

// TradeRepository defines the interface for persisting and querying the
// trade-history records that mirror engine positions.
type TradeRepository interface {
	// SaveTrade inserts (or replaces) a trade record.
	SaveTrade(ctx context.Context, trade *domain.TradeRecord) error

	// UpdateTradeStatus updates status, realized pnl and exit time of an
	// existing trade. A nil pnl/exitTime leaves the stored value untouched.
	UpdateTradeStatus(ctx context.Context, tradeID string, status domain.TradeStatus, pnl *float64, exitTime *time.Time) error

	// UpdateTradeFills records a partial take-profit fill: the trade moves
	// to PARTIAL with its filled order-id list and running pnl, so a
	// restarted process resumes mid-ladder instead of from scratch.
	UpdateTradeFills(ctx context.Context, tradeID string, filledTakeProfitOrderIDs []int64, realizedPnL float64) error

	// FindActiveByAccount retrieves trades still OPEN or PARTIAL for an
	// account, most recent first.
	FindActiveByAccount(ctx context.Context, accountID string) ([]*domain.TradeRecord, error)

	// FindByAccount retrieves the most recent trades for an account, up to limit.
	FindByAccount(ctx context.Context, accountID string, limit int) ([]*domain.TradeRecord, error)

	// LastEntryTime returns the entry time of the most recent trade on a
	// symbol for an account. Returns the zero time when no trade exists.
	LastEntryTime(ctx context.Context, accountID, symbol string) (time.Time, error)
}
