// Package planner turns a parsed trade instruction and the account's risk
// configuration into a concrete, venue-compliant order plan: entry size,
// stop-loss, take-profit ladder, and an optional trailing stop.
package planner

import (
	"context"
	"fmt"

	"signalTraderBot/internal/domain"
	"signalTraderBot/internal/ports"
	"signalTraderBot/internal/precision"
)

// wrongSideStopOffset is the fixed fractional offset applied when a requested
// stop-loss sits on the wrong side of the live market and would trigger
// immediately.
const wrongSideStopOffset = 0.05

// fallbackTakeProfitPercents replaces a take-profit ladder whose targets are
// unusable (e.g. absolute prices on the losing side of the entry).
var fallbackTakeProfitPercents = []float64{2.5, 5.0, 7.5}

// Builder derives order plans. It is stateless apart from its logger; the
// trading rule is supplied per call so callers decide the caching policy.
type Builder struct {
	logger ports.Logger
}

func NewBuilder(logger ports.Logger) (*Builder, error) {
	if logger == nil {
		return nil, fmt.Errorf("planner: logger is required: %w", ports.ErrConfigurationError)
	}
	return &Builder{logger: logger}, nil
}

// Build produces the order plan for one instruction.
//
// Sizing fails with ErrInsufficientBalance when the account cannot fund the
// configured margin, and with ErrInsufficientSize when the funded quantity
// rounds below the venue minimum. Protective legs are planned only when the
// account enables them.
func (b *Builder) Build(ctx context.Context, instr *domain.TradeInstruction, account *domain.AccountConfig, marketPrice, availableBalance float64, rule *domain.TradingRule) (*domain.OrderPlan, error) {
	op := "Build"

	if marketPrice <= 0 {
		return nil, fmt.Errorf("%s failed: market price %v is not positive: %w", op, marketPrice, ports.ErrInvalidRequest)
	}

	leverage := account.Leverage
	if account.UseSignalSettings && instr.Leverage > 0 {
		leverage = instr.Leverage
	}
	if leverage < 1 {
		leverage = 1
	}

	entryPrice := marketPrice
	if instr.EntryPrice > 0 {
		entryPrice = instr.EntryPrice
	}

	quantity, err := b.entryQuantity(ctx, account, entryPrice, availableBalance, leverage, rule)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	plan := &domain.OrderPlan{
		Symbol:        instr.Symbol,
		Side:          instr.Side,
		EntryQuantity: quantity,
		EntryPrice:    entryPrice,
		Leverage:      leverage,
	}

	if !account.PlaceProtectiveOrders {
		return plan, nil
	}

	plan.StopLossPrice = b.stopLossPrice(ctx, instr, account, entryPrice, marketPrice, rule)
	plan.TakeProfitLegs = b.takeProfitLegs(ctx, instr, account, marketPrice, quantity, rule)

	if account.TrailingEnabled && account.TrailingActivationPercent > 0 && account.TrailingCallbackPercent > 0 {
		activation := marketPrice * (1 + account.TrailingActivationPercent/100)
		if instr.Side == domain.Short {
			activation = marketPrice * (1 - account.TrailingActivationPercent/100)
		}
		rounded, clamped := precision.RoundPrice(activation, rule)
		if clamped {
			b.logger.Warn(ctx, "trailing activation price clamped to one tick", map[string]interface{}{
				"op": op, "symbol": instr.Symbol, "activation": activation,
			})
		}
		plan.Trailing = &domain.TrailingSpec{
			ActivationPrice: rounded,
			CallbackRate:    account.TrailingCallbackPercent,
		}
	}

	return plan, nil
}

func (b *Builder) entryQuantity(ctx context.Context, account *domain.AccountConfig, entryPrice, availableBalance float64, leverage int, rule *domain.TradingRule) (float64, error) {
	margin := account.FixedAmount
	if account.UsePercentBalance {
		margin = availableBalance * account.BalancePercent / 100
	}
	if margin <= 0 {
		return 0, fmt.Errorf("computed margin %v is not positive: %w", margin, ports.ErrInsufficientBalance)
	}
	if margin > availableBalance {
		return 0, fmt.Errorf("margin %v exceeds available balance %v: %w", margin, availableBalance, ports.ErrInsufficientBalance)
	}

	raw := margin * float64(leverage) / entryPrice
	quantity, err := precision.RoundQuantity(raw, rule)
	if err != nil {
		return 0, fmt.Errorf("entry quantity %v below venue minimum %v: %w", raw, rule.MinQuantity, ports.ErrInsufficientSize)
	}
	return quantity, nil
}

// stopLossPrice resolves the stop target, pushing it to a fixed offset on the
// safe side when the requested level would trigger immediately. Percent stops
// are measured from the entry price; the wrong-side check is always against
// the live market. Returns 0 when the account has no stop configured.
func (b *Builder) stopLossPrice(ctx context.Context, instr *domain.TradeInstruction, account *domain.AccountConfig, entryPrice, marketPrice float64, rule *domain.TradingRule) float64 {
	op := "stopLossPrice"

	var target float64
	switch {
	case account.UseSignalSettings && instr.StopLoss > 0:
		target = instr.StopLoss
	case account.StopLossPercent > 0:
		if instr.Side == domain.Long {
			target = entryPrice * (1 - account.StopLossPercent/100)
		} else {
			target = entryPrice * (1 + account.StopLossPercent/100)
		}
	default:
		return 0
	}

	wrongSide := (instr.Side == domain.Long && target >= marketPrice) ||
		(instr.Side == domain.Short && target <= marketPrice)
	if wrongSide {
		pushed := marketPrice * (1 - wrongSideStopOffset)
		if instr.Side == domain.Short {
			pushed = marketPrice * (1 + wrongSideStopOffset)
		}
		b.logger.Warn(ctx, "stop-loss on wrong side of market, pushed to fixed offset", map[string]interface{}{
			"op": op, "symbol": instr.Symbol, "requested": target, "pushed": pushed, "marketPrice": marketPrice,
		})
		target = pushed
	}

	rounded, clamped := precision.RoundPrice(target, rule)
	if clamped {
		b.logger.Warn(ctx, "stop-loss price clamped to one tick", map[string]interface{}{
			"op": op, "symbol": instr.Symbol, "target": target,
		})
	}
	return rounded
}

// takeProfitLegs resolves targets and allocates quantity greedily down the
// ladder. Each level closes its share of the then-remaining quantity; the
// final level always takes the full remainder so the position is coverable.
func (b *Builder) takeProfitLegs(ctx context.Context, instr *domain.TradeInstruction, account *domain.AccountConfig, marketPrice, entryQuantity float64, rule *domain.TradingRule) []domain.TakeProfitLeg {
	op := "takeProfitLegs"

	targets, closes := b.resolveTargets(ctx, instr, account, marketPrice)
	if len(targets) == 0 {
		return nil
	}

	inc := rule.PriceIncrement
	if inc <= 0 {
		inc = domain.DefaultPriceIncrement
	}
	prev, _ := precision.RoundPrice(marketPrice, rule)

	legs := make([]domain.TakeProfitLeg, 0, len(targets))
	remaining := entryQuantity
	for i, target := range targets {
		final := i == len(targets)-1

		// keep successive targets on distinct grid points, always at least
		// one tick beyond the previous level and the mark price
		var price float64
		if instr.Side == domain.Long {
			steps := precision.CeilSteps(prev, target, inc)
			if steps < 1 {
				steps = 1
			}
			price = precision.AddSteps(prev, steps, inc)
		} else {
			steps := precision.CeilSteps(target, prev, inc)
			if steps < 1 {
				steps = 1
			}
			price = precision.AddSteps(prev, -steps, inc)
		}
		prev = price

		var quantity float64
		if final {
			quantity = precision.FloorToStep(remaining, rule)
		} else {
			quantity = precision.FloorToStep(remaining*closes[i]/100, rule)
			// leave one step behind for every later level so an early
			// level cannot starve the rest of the ladder
			step := rule.QuantityIncrement
			if step <= 0 {
				step = domain.DefaultQuantityIncrement
			}
			reserved := float64(len(targets)-1-i) * step
			if limit := remaining - reserved; quantity > limit {
				quantity = precision.FloorToStep(limit, rule)
			}
		}
		if quantity <= 0 || (!final && quantity < rule.MinQuantity) {
			b.logger.Debug(ctx, "take-profit level skipped, allocation below grid", map[string]interface{}{
				"op": op, "symbol": instr.Symbol, "level": i + 1, "remaining": remaining,
			})
			continue
		}

		legs = append(legs, domain.TakeProfitLeg{
			Price:         price,
			Quantity:      quantity,
			CloseFraction: closes[i],
		})
		remaining -= quantity
		if remaining <= 0 {
			break
		}
	}
	return legs
}

// resolveTargets returns the ordered absolute price targets and their close
// percentages. Instruction values at or below 100 are percent offsets from
// the mark; larger values are absolute prices. Only a ladder whose EVERY
// target is at least 2x or at most 0.5x of the mark is replaced wholesale by
// the fallback percent ladder; a single stale target is repaired by the grid
// nudge in takeProfitLegs instead.
func (b *Builder) resolveTargets(ctx context.Context, instr *domain.TradeInstruction, account *domain.AccountConfig, marketPrice float64) ([]float64, []float64) {
	op := "resolveTargets"

	levels := account.TakeProfitLevels
	if len(levels) == 0 {
		levels = domain.DefaultTakeProfitLevels()
	}

	if account.UseSignalSettings && len(instr.TakeProfits) > 0 {
		targets := make([]float64, 0, len(instr.TakeProfits))
		for _, tp := range instr.TakeProfits {
			if tp <= 0 {
				continue
			}
			if tp <= 100 {
				if instr.Side == domain.Long {
					targets = append(targets, marketPrice*(1+tp/100))
				} else {
					targets = append(targets, marketPrice*(1-tp/100))
				}
				continue
			}
			targets = append(targets, tp)
		}
		if len(targets) > 0 && !targetsUnreasonable(targets, marketPrice) {
			return targets, closePercents(len(targets), levels)
		}
		b.logger.Warn(ctx, "signal take-profit targets unusable, using fallback ladder", map[string]interface{}{
			"op": op, "symbol": instr.Symbol, "takeProfits": instr.TakeProfits, "marketPrice": marketPrice,
		})
		targets = targets[:0]
		for _, pct := range fallbackTakeProfitPercents {
			if instr.Side == domain.Long {
				targets = append(targets, marketPrice*(1+pct/100))
			} else {
				targets = append(targets, marketPrice*(1-pct/100))
			}
		}
		return targets, closePercents(len(targets), levels)
	}

	targets := make([]float64, 0, len(levels))
	closes := make([]float64, 0, len(levels))
	for _, lvl := range levels {
		if instr.Side == domain.Long {
			targets = append(targets, marketPrice*(1+lvl.Percentage/100))
		} else {
			targets = append(targets, marketPrice*(1-lvl.Percentage/100))
		}
		closes = append(closes, lvl.ClosePercentage)
	}
	if len(closes) > 0 {
		closes[len(closes)-1] = 100
	}
	return targets, closes
}

// targetsUnreasonable reports a ladder whose every target sits at 2x the
// mark or beyond, or at half the mark or below. That pattern indicates stale
// or mis-parsed signal prices rather than an aggressive ladder.
func targetsUnreasonable(targets []float64, marketPrice float64) bool {
	allHigh, allLow := true, true
	for _, t := range targets {
		if t < marketPrice*2.0 {
			allHigh = false
		}
		if t > marketPrice*0.5 {
			allLow = false
		}
	}
	return allHigh || allLow
}

// closePercents maps the account ladder's close shares onto n targets.
// Targets beyond the configured ladder split evenly; the last always closes
// everything that remains.
func closePercents(n int, levels []domain.TakeProfitLevel) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		if i < len(levels) {
			closes[i] = levels[i].ClosePercentage
		} else {
			closes[i] = 50
		}
	}
	closes[n-1] = 100
	return closes
}
