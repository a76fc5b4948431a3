// Package app orchestrates the trading engine: instruction execution and the
// recurring reconciliation of open positions against venue state.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"signalTraderBot/internal/domain"
	"signalTraderBot/internal/planner"
	"signalTraderBot/internal/ports"
	"signalTraderBot/internal/precision"
	"signalTraderBot/internal/risk"
)

// TradingService executes trade instructions for one account: it gates on
// the cooldown, builds the order plan, submits the entry and protective legs,
// and registers the resulting position for reconciliation.
type TradingService struct {
	logger     ports.Logger
	exchange   ports.ExchangeClient
	tradeRepo  ports.TradeRepository
	notifier   ports.Notifier
	resolver   *precision.Resolver
	builder    *planner.Builder
	guard      *risk.CooldownGuard
	book       *PositionBook
	quoteAsset string
}

// NewTradingService creates the application service instance.
func NewTradingService(
	logger ports.Logger,
	exchange ports.ExchangeClient,
	tradeRepo ports.TradeRepository,
	notifier ports.Notifier,
	resolver *precision.Resolver,
	builder *planner.Builder,
	guard *risk.CooldownGuard,
	book *PositionBook,
	quoteAsset string,
) (*TradingService, error) {
	if logger == nil || exchange == nil || tradeRepo == nil || notifier == nil ||
		resolver == nil || builder == nil || guard == nil || book == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService: %w", ports.ErrConfigurationError)
	}
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &TradingService{
		logger:     logger,
		exchange:   exchange,
		tradeRepo:  tradeRepo,
		notifier:   notifier,
		resolver:   resolver,
		builder:    builder,
		guard:      guard,
		book:       book,
		quoteAsset: quoteAsset,
	}, nil
}

// Book exposes the active-position set (the reconciler and startup
// rehydration share it).
func (s *TradingService) Book() *PositionBook {
	return s.book
}

// Execute carries out one trade instruction end to end and returns the
// resulting position.
//
// The cooldown gate runs before any venue call. Entry-order failure is fatal
// to the attempt and never retried; protective-leg failures are logged and
// notified but leave the already-open position tracked with whatever
// protection was accepted.
func (s *TradingService) Execute(ctx context.Context, instr *domain.TradeInstruction, account *domain.AccountConfig) (*domain.Position, error) {
	op := "Execute"

	if existing := s.book.Get(account.AccountID, instr.Symbol); existing != nil {
		s.logger.Warn(ctx, "position already open for symbol", map[string]interface{}{
			"op": op, "accountID": account.AccountID, "symbol": instr.Symbol, "tradeID": existing.TradeID,
		})
		return nil, fmt.Errorf("%s failed: position already open on %s: %w", op, instr.Symbol, ports.ErrInvalidRequest)
	}

	ok, err := s.guard.CanTrade(ctx, account.AccountID, instr.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s failed: cooldown check: %w", op, err)
	}
	if !ok {
		s.notifyFailure(ctx, account.AccountID, instr.Symbol, "cooldown check",
			fmt.Sprintf("symbol traded within the last %s", s.guard.Window()))
		return nil, fmt.Errorf("%s failed: %s in cooldown: %w", op, instr.Symbol, ports.ErrCooldownActive)
	}

	rule, err := s.resolver.Resolve(ctx, instr.Symbol)
	if err != nil {
		s.notifyFailure(ctx, account.AccountID, instr.Symbol, "symbol lookup", err.Error())
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	balance, err := s.exchange.GetAvailableBalance(ctx, s.quoteAsset)
	if err != nil {
		s.notifyFailure(ctx, account.AccountID, instr.Symbol, "balance check", err.Error())
		return nil, fmt.Errorf("%s failed: fetch balance: %w", op, err)
	}

	marketPrice, err := s.exchange.GetTickerPrice(ctx, instr.Symbol)
	if err != nil {
		s.notifyFailure(ctx, account.AccountID, instr.Symbol, "price check", err.Error())
		return nil, fmt.Errorf("%s failed: fetch ticker: %w", op, err)
	}

	plan, err := s.builder.Build(ctx, instr, account, marketPrice, balance, rule)
	if err != nil {
		s.notifyFailure(ctx, account.AccountID, instr.Symbol, "order planning", err.Error())
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	// Leverage mismatch is advisory: the venue keeps its previous setting
	// and the trade proceeds at that level.
	if err := s.exchange.SetLeverage(ctx, plan.Symbol, plan.Leverage); err != nil {
		s.logger.Warn(ctx, "failed to set leverage, continuing with venue setting", map[string]interface{}{
			"op": op, "symbol": plan.Symbol, "leverage": plan.Leverage, "error": err.Error(),
		})
	}

	quantityStr := precision.QuantityString(plan.EntryQuantity, rule)
	clientOrderID := "stb-" + uuid.NewString()

	entry, err := s.exchange.PlaceMarketOrder(ctx, plan.Symbol, plan.Side.EntrySide(), quantityStr, clientOrderID)
	if err != nil {
		s.logger.Error(ctx, err, "entry order rejected", map[string]interface{}{
			"op": op, "symbol": plan.Symbol, "quantity": quantityStr,
		})
		s.notifyFailure(ctx, account.AccountID, instr.Symbol, "entry order", err.Error())
		return nil, fmt.Errorf("%s failed: entry order: %w", op, err)
	}

	entryPrice := entry.AvgPrice
	if entryPrice <= 0 {
		entryPrice = plan.EntryPrice
	}

	pos := &domain.Position{
		Symbol:     plan.Symbol,
		AccountID:  account.AccountID,
		Side:       plan.Side,
		Quantity:   plan.EntryQuantity,
		EntryPrice: entryPrice,
		Leverage:   plan.Leverage,
		EntryTime:  time.Now().UTC(),
		TradeID:    strconv.FormatInt(entry.OrderID, 10),
	}

	s.logger.Info(ctx, "entry order filled", map[string]interface{}{
		"op":       op,
		"symbol":   plan.Symbol,
		"side":     string(plan.Side),
		"orderID":  entry.OrderID,
		"quantity": quantityStr,
		"price":    entryPrice,
		"leverage": plan.Leverage,
	})

	s.placeProtectiveLegs(ctx, account.AccountID, plan, rule, pos)

	// The reconciler must never see a half-populated position, so insertion
	// happens strictly after every leg submission has been attempted.
	s.book.Insert(pos)

	if err := s.saveTradeRecord(ctx, pos, plan, instr.SourceID); err != nil {
		s.logger.Error(ctx, err, "failed to persist trade record", map[string]interface{}{
			"op": op, "tradeID": pos.TradeID,
		})
	}

	if err := s.notifier.TradeExecuted(ctx, ports.TradeExecutedEvent{
		AccountID:       account.AccountID,
		Symbol:          pos.Symbol,
		Side:            string(pos.Side),
		OrderID:         entry.OrderID,
		Quantity:        pos.Quantity,
		Price:           pos.EntryPrice,
		Leverage:        pos.Leverage,
		StopLossOrderID: pos.StopLossOrderID,
		TakeProfitIDs:   append([]int64(nil), pos.TakeProfitOrderIDs...),
		TrailingOrderID: pos.TrailingOrderID,
		Timestamp:       time.Now().UTC(),
	}); err != nil {
		s.logger.Warn(ctx, "trade-executed notification failed", map[string]interface{}{"op": op, "error": err.Error()})
	}

	return pos, nil
}

// placeProtectiveLegs submits the stop-loss, the TP ladder and the trailing
// stop. Each submission is independent: one failure is logged and notified,
// never aborts the others. A partially protected live position beats an
// unprotected one, but every gap must be visible.
func (s *TradingService) placeProtectiveLegs(ctx context.Context, accountID string, plan *domain.OrderPlan, rule *domain.TradingRule, pos *domain.Position) {
	op := "placeProtectiveLegs"
	exitSide := plan.Side.ExitSide()
	fullQuantity := precision.QuantityString(plan.EntryQuantity, rule)

	if plan.StopLossPrice > 0 {
		stopPrice := precision.PriceString(plan.StopLossPrice, rule)
		resp, err := s.exchange.PlaceStopMarketOrder(ctx, plan.Symbol, exitSide, fullQuantity, stopPrice)
		if err != nil {
			s.logger.Error(ctx, err, "stop-loss leg rejected", map[string]interface{}{
				"op": op, "symbol": plan.Symbol, "stopPrice": stopPrice,
			})
			s.notifyFailure(ctx, accountID, plan.Symbol, "stop-loss leg", err.Error())
		} else {
			id := resp.OrderID
			pos.StopLossOrderID = &id
			s.logger.Info(ctx, "stop-loss leg placed", map[string]interface{}{
				"op": op, "symbol": plan.Symbol, "orderID": id, "stopPrice": stopPrice,
			})
		}
	}

	for i, leg := range plan.TakeProfitLegs {
		legQuantity := precision.QuantityString(leg.Quantity, rule)
		legPrice := precision.PriceString(leg.Price, rule)
		resp, err := s.exchange.PlaceTakeProfitMarketOrder(ctx, plan.Symbol, exitSide, legQuantity, legPrice)
		if err != nil {
			s.logger.Error(ctx, err, "take-profit leg rejected", map[string]interface{}{
				"op": op, "symbol": plan.Symbol, "level": i + 1, "price": legPrice, "quantity": legQuantity,
			})
			s.notifyFailure(ctx, accountID, plan.Symbol, fmt.Sprintf("take-profit leg %d", i+1), err.Error())
			continue
		}
		pos.TakeProfitOrderIDs = append(pos.TakeProfitOrderIDs, resp.OrderID)
		s.logger.Info(ctx, "take-profit leg placed", map[string]interface{}{
			"op": op, "symbol": plan.Symbol, "level": i + 1, "orderID": resp.OrderID, "price": legPrice, "quantity": legQuantity,
		})
	}

	if plan.Trailing != nil {
		activation := precision.PriceString(plan.Trailing.ActivationPrice, rule)
		callback := strconv.FormatFloat(plan.Trailing.CallbackRate, 'f', 1, 64)
		resp, err := s.exchange.PlaceTrailingStopOrder(ctx, plan.Symbol, exitSide, fullQuantity, activation, callback)
		if err != nil {
			s.logger.Error(ctx, err, "trailing-stop leg rejected", map[string]interface{}{
				"op": op, "symbol": plan.Symbol, "activation": activation, "callback": callback,
			})
			s.notifyFailure(ctx, accountID, plan.Symbol, "trailing-stop leg", err.Error())
		} else {
			id := resp.OrderID
			pos.TrailingOrderID = &id
			s.logger.Info(ctx, "trailing-stop leg placed", map[string]interface{}{
				"op": op, "symbol": plan.Symbol, "orderID": id, "activation": activation, "callback": callback,
			})
		}
	}
}

func (s *TradingService) saveTradeRecord(ctx context.Context, pos *domain.Position, plan *domain.OrderPlan, sourceID string) error {
	tpPrices := make([]float64, 0, len(plan.TakeProfitLegs))
	for _, leg := range plan.TakeProfitLegs {
		tpPrices = append(tpPrices, leg.Price)
	}
	return s.tradeRepo.SaveTrade(ctx, &domain.TradeRecord{
		TradeID:            pos.TradeID,
		AccountID:          pos.AccountID,
		Symbol:             pos.Symbol,
		Side:               pos.Side,
		EntryPrice:         pos.EntryPrice,
		Quantity:           pos.Quantity,
		Leverage:           pos.Leverage,
		Status:             domain.TradeStatusOpen,
		EntryTime:          pos.EntryTime,
		StopLossPrice:      plan.StopLossPrice,
		TakeProfitPrices:   tpPrices,
		StopLossOrderID:    pos.StopLossOrderID,
		TakeProfitOrderIDs: append([]int64(nil), pos.TakeProfitOrderIDs...),
		TrailingOrderID:    pos.TrailingOrderID,
		SourceID:           sourceID,
	})
}

func (s *TradingService) notifyFailure(ctx context.Context, accountID, symbol, action, reason string) {
	if err := s.notifier.TradeFailed(ctx, ports.TradeFailedEvent{
		AccountID: accountID,
		Symbol:    symbol,
		Action:    action,
		Reason:    ports.TruncateReason(reason),
		Timestamp: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn(ctx, "trade-failed notification failed", map[string]interface{}{
			"symbol": symbol, "action": action, "error": err.Error(),
		})
	}
}

// RehydratePositions rebuilds the active-position set from trade history
// after a restart so reconciliation resumes where it stopped.
func (s *TradingService) RehydratePositions(ctx context.Context, accountID string) (int, error) {
	op := "RehydratePositions"

	records, err := s.tradeRepo.FindActiveByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w: %w", op, ports.ErrQueryFailed, err)
	}
	for _, rec := range records {
		s.book.Insert(rec.ToPosition())
	}
	if len(records) > 0 {
		s.logger.Info(ctx, "rehydrated active positions", map[string]interface{}{
			"op": op, "accountID": accountID, "count": len(records),
		})
	}
	return len(records), nil
}

// IsTransient reports whether a venue error is worth retrying on the next
// reconciliation cycle rather than acting on.
func IsTransient(err error) bool {
	return errors.Is(err, ports.ErrTimeout) ||
		errors.Is(err, ports.ErrConnectionFailed) ||
		errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrExchangeUnavailable)
}
