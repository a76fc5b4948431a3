// Package risk enforces pre-trade gates that sit between instruction intake
// and order placement.
package risk

import (
	"context"
	"fmt"
	"time"

	"signalTraderBot/internal/ports"
)

// DefaultCooldownWindow is the minimum gap between entries on the same
// symbol for the same account when the account does not configure one.
const DefaultCooldownWindow = 24 * time.Hour

// CooldownGuard refuses re-entry into a symbol within the cooldown window.
// Trade history is the source of truth, so the guard survives restarts.
type CooldownGuard struct {
	repo   ports.TradeRepository
	logger ports.Logger
	window time.Duration
	now    func() time.Time
}

func NewCooldownGuard(repo ports.TradeRepository, logger ports.Logger, window time.Duration) (*CooldownGuard, error) {
	if repo == nil {
		return nil, fmt.Errorf("risk: trade repository is required: %w", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("risk: logger is required: %w", ports.ErrConfigurationError)
	}
	if window <= 0 {
		window = DefaultCooldownWindow
	}
	return &CooldownGuard{repo: repo, logger: logger, window: window, now: time.Now}, nil
}

// CanTrade reports whether accountID may enter symbol now. A history lookup
// failure allows the trade: the guard is a throttle, not a safety invariant,
// and blocking all trading on a store hiccup is the worse failure mode.
func (g *CooldownGuard) CanTrade(ctx context.Context, accountID, symbol string) (bool, error) {
	op := "CanTrade"

	last, err := g.repo.LastEntryTime(ctx, accountID, symbol)
	if err != nil {
		g.logger.Warn(ctx, "cooldown lookup failed, allowing trade", map[string]interface{}{
			"op": op, "accountID": accountID, "symbol": symbol, "error": err.Error(),
		})
		return true, nil
	}
	if last.IsZero() {
		return true, nil
	}

	elapsed := g.now().Sub(last)
	if elapsed < g.window {
		g.logger.Info(ctx, "symbol in cooldown", map[string]interface{}{
			"op":        op,
			"accountID": accountID,
			"symbol":    symbol,
			"elapsed":   elapsed.String(),
			"remaining": (g.window - elapsed).String(),
		})
		return false, nil
	}
	return true, nil
}

// Window returns the configured cooldown duration.
func (g *CooldownGuard) Window() time.Duration {
	return g.window
}
