package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalTraderBot/internal/domain"
	"signalTraderBot/internal/ports"
)

// DefaultReconcileInterval is the polling cadence of the OCO state machine.
const DefaultReconcileInterval = 5 * time.Second

// Reconciler drives the client-side OCO simulation for one account: every
// cycle it polls venue order and position state for each active position and
// applies the OPEN -> PARTIAL -> CLOSED transitions, cancelling counterpart
// legs when one side fills.
type Reconciler struct {
	logger    ports.Logger
	exchange  ports.ExchangeClient
	tradeRepo ports.TradeRepository
	notifier  ports.Notifier
	book      *PositionBook
	accountID string
	interval  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(
	logger ports.Logger,
	exchange ports.ExchangeClient,
	tradeRepo ports.TradeRepository,
	notifier ports.Notifier,
	book *PositionBook,
	accountID string,
	interval time.Duration,
) (*Reconciler, error) {
	if logger == nil || exchange == nil || tradeRepo == nil || notifier == nil || book == nil {
		return nil, fmt.Errorf("missing required dependencies for Reconciler: %w", ports.ErrConfigurationError)
	}
	if accountID == "" {
		return nil, fmt.Errorf("reconciler requires an account id: %w", ports.ErrConfigurationError)
	}
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		logger:    logger,
		exchange:  exchange,
		tradeRepo: tradeRepo,
		notifier:  notifier,
		book:      book,
		accountID: accountID,
		interval:  interval,
	}, nil
}

// Start launches the reconciliation loop. It returns immediately; the loop
// runs until Stop is called or the parent context is cancelled. In-flight
// venue calls are not aborted mid-cycle, only not rescheduled.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.logger.Info(ctx, "reconciler started", map[string]interface{}{
			"accountID": r.accountID, "interval": r.interval.String(),
		})
		for {
			select {
			case <-ctx.Done():
				r.logger.Info(ctx, "reconciler stopped", map[string]interface{}{"accountID": r.accountID})
				return
			case <-ticker.C:
				r.RunCycle(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current cycle to finish.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// RunCycle performs one reconciliation pass over the account's active
// positions. Each symbol is checked in isolation: a failure on one never
// aborts the pass for the others, and since failed checks mutate nothing the
// next cycle retries naturally.
func (r *Reconciler) RunCycle(ctx context.Context) {
	op := "RunCycle"

	for _, pos := range r.book.ListByAccount(r.accountID) {
		if err := r.checkPosition(ctx, pos); err != nil {
			r.logger.Error(ctx, err, "position check failed, will retry next cycle", map[string]interface{}{
				"op": op, "symbol": pos.Symbol, "tradeID": pos.TradeID, "transient": IsTransient(err),
			})
		}
	}
}

func (r *Reconciler) checkPosition(ctx context.Context, pos *domain.Position) error {
	op := "checkPosition"

	// Zero open contracts means the position was closed out of band (manual
	// intervention or a trailing fill); record it before touching any legs.
	amount, err := r.exchange.GetPositionAmount(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("%s: fetch position amount for %s: %w", op, pos.Symbol, err)
	}
	if amount == 0 {
		return r.closeOutOfBand(ctx, pos)
	}

	if pos.StopLossOrderID != nil {
		filled, order, err := r.orderFilled(ctx, pos.Symbol, *pos.StopLossOrderID)
		if err != nil {
			return fmt.Errorf("%s: fetch stop-loss order %d: %w", op, *pos.StopLossOrderID, err)
		}
		if filled {
			return r.closeOnStopLoss(ctx, pos, order)
		}
	}

	for _, tpID := range pos.UnfilledTakeProfitOrderIDs() {
		filled, order, err := r.orderFilled(ctx, pos.Symbol, tpID)
		if err != nil {
			r.logger.Warn(ctx, "take-profit status fetch failed, rechecking next cycle", map[string]interface{}{
				"op": op, "symbol": pos.Symbol, "orderID": tpID, "error": err.Error(),
			})
			continue
		}
		if !filled {
			continue
		}

		pos.MarkTakeProfitFilled(tpID)
		exitPrice := order.AvgPrice
		if exitPrice <= 0 {
			exitPrice = order.StopPrice
		}
		pos.RealizedPnL += pos.LegPnL(exitPrice, order.ExecutedQty)

		remaining := len(pos.UnfilledTakeProfitOrderIDs())
		r.logger.Info(ctx, "take-profit leg filled", map[string]interface{}{
			"op": op, "symbol": pos.Symbol, "orderID": tpID, "remainingTPs": remaining, "realizedPnl": pos.RealizedPnL,
		})

		if remaining == 0 {
			return r.closeOnAllTakeProfits(ctx, pos)
		}

		// persist the filled set and running pnl so a restart does not
		// re-confirm these legs or re-count their pnl
		if err := r.tradeRepo.UpdateTradeFills(ctx, pos.TradeID, pos.FilledTakeProfitOrderIDs, pos.RealizedPnL); err != nil {
			r.logger.Error(ctx, err, "failed to mark trade partial", map[string]interface{}{
				"op": op, "tradeID": pos.TradeID,
			})
		}
		r.notify(ctx, func() error {
			return r.notifier.TakeProfitFilled(ctx, ports.TakeProfitFilledEvent{
				AccountID:    pos.AccountID,
				Symbol:       pos.Symbol,
				OrderID:      tpID,
				RemainingTPs: remaining,
				Timestamp:    time.Now().UTC(),
			})
		})
	}
	return nil
}

// orderFilled fetches the current order state and reports a confirmed fill.
// Absence from the open-orders list is never treated as a fill: a canceled
// or expired order also disappears from that list.
func (r *Reconciler) orderFilled(ctx context.Context, symbol string, orderID int64) (bool, *ports.OrderResponse, error) {
	order, err := r.exchange.GetOrder(ctx, symbol, orderID)
	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return order.Filled(), order, nil
}

func (r *Reconciler) closeOutOfBand(ctx context.Context, pos *domain.Position) error {
	op := "closeOutOfBand"

	r.logger.Warn(ctx, "venue reports no open contracts, closing position", map[string]interface{}{
		"op": op, "symbol": pos.Symbol, "tradeID": pos.TradeID,
	})
	r.closeTrade(ctx, pos, pos.RealizedPnL, domain.CloseReasonManual)
	return nil
}

func (r *Reconciler) closeOnStopLoss(ctx context.Context, pos *domain.Position, order *ports.OrderResponse) error {
	op := "closeOnStopLoss"

	exitPrice := order.AvgPrice
	if exitPrice <= 0 {
		exitPrice = order.StopPrice
	}
	pnl := pos.RealizedPnL + pos.LegPnL(exitPrice, order.ExecutedQty)

	cancelled := r.cancelOrders(ctx, pos.Symbol, append(pos.UnfilledTakeProfitOrderIDs(), trailingID(pos)...))
	r.notifyCancelled(ctx, pos, cancelled, "stop-loss filled")

	r.logger.Info(ctx, "stop-loss filled, position closed", map[string]interface{}{
		"op": op, "symbol": pos.Symbol, "tradeID": pos.TradeID, "exitPrice": exitPrice, "pnl": pnl,
	})
	r.closeTrade(ctx, pos, pnl, domain.CloseReasonStopLoss)
	return nil
}

func (r *Reconciler) closeOnAllTakeProfits(ctx context.Context, pos *domain.Position) error {
	op := "closeOnAllTakeProfits"

	var ids []int64
	if pos.StopLossOrderID != nil {
		ids = append(ids, *pos.StopLossOrderID)
	}
	ids = append(ids, trailingID(pos)...)
	cancelled := r.cancelOrders(ctx, pos.Symbol, ids)
	r.notifyCancelled(ctx, pos, cancelled, "all take-profits filled")

	r.logger.Info(ctx, "all take-profit legs filled, position closed", map[string]interface{}{
		"op": op, "symbol": pos.Symbol, "tradeID": pos.TradeID, "pnl": pos.RealizedPnL,
	})
	r.closeTrade(ctx, pos, pos.RealizedPnL, domain.CloseReasonAllTakeProfits)
	return nil
}

// cancelOrders cancels each id independently: one failure never blocks the
// rest. Already-gone orders count as cancelled.
func (r *Reconciler) cancelOrders(ctx context.Context, symbol string, ids []int64) []int64 {
	op := "cancelOrders"

	cancelled := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, err := r.exchange.CancelOrder(ctx, symbol, id); err != nil {
			if errors.Is(err, ports.ErrOrderNotFound) {
				cancelled = append(cancelled, id)
				continue
			}
			r.logger.Error(ctx, err, "failed to cancel order", map[string]interface{}{
				"op": op, "symbol": symbol, "orderID": id,
			})
			continue
		}
		cancelled = append(cancelled, id)
	}
	return cancelled
}

func (r *Reconciler) closeTrade(ctx context.Context, pos *domain.Position, pnl float64, reason domain.CloseReason) {
	op := "closeTrade"

	now := time.Now().UTC()
	if err := r.tradeRepo.UpdateTradeStatus(ctx, pos.TradeID, domain.TradeStatusClosed, &pnl, &now); err != nil {
		r.logger.Error(ctx, err, "failed to mark trade closed", map[string]interface{}{
			"op": op, "tradeID": pos.TradeID,
		})
	}
	r.book.Remove(pos.AccountID, pos.Symbol)
	r.notify(ctx, func() error {
		return r.notifier.PositionClosed(ctx, ports.PositionClosedEvent{
			AccountID: pos.AccountID,
			Symbol:    pos.Symbol,
			Reason:    string(reason),
			PnL:       pnl,
			Timestamp: now,
		})
	})
}

func (r *Reconciler) notifyCancelled(ctx context.Context, pos *domain.Position, ids []int64, reason string) {
	if len(ids) == 0 {
		return
	}
	r.notify(ctx, func() error {
		return r.notifier.OrdersAutoCancelled(ctx, ports.OrdersAutoCancelledEvent{
			AccountID:    pos.AccountID,
			Symbol:       pos.Symbol,
			CancelledIDs: ids,
			Reason:       reason,
			Timestamp:    time.Now().UTC(),
		})
	})
}

func (r *Reconciler) notify(ctx context.Context, send func() error) {
	if err := send(); err != nil {
		r.logger.Warn(ctx, "notification delivery failed", map[string]interface{}{"error": err.Error()})
	}
}

func trailingID(pos *domain.Position) []int64 {
	if pos.TrailingOrderID == nil {
		return nil
	}
	return []int64{*pos.TrailingOrderID}
}
