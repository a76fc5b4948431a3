package precision

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"signalTraderBot/internal/domain"
	"signalTraderBot/internal/ports"
)

// RuleSource fetches venue trading rules for a symbol.
type RuleSource interface {
	GetSymbolRule(ctx context.Context, symbol string) (*domain.TradingRule, error)
}

// Resolver caches venue trading rules per symbol for the lifetime of the
// process. Trading rules change rarely enough that a restart is an acceptable
// refresh; every order path goes through the resolver, so the cache also
// keeps rounding off the exchange REST quota.
type Resolver struct {
	source RuleSource
	logger ports.Logger

	mu    sync.RWMutex
	cache map[string]*domain.TradingRule
}

func NewResolver(source RuleSource, logger ports.Logger) *Resolver {
	return &Resolver{
		source: source,
		logger: logger,
		cache:  make(map[string]*domain.TradingRule),
	}
}

// Resolve returns the trading rule for symbol, fetching and caching it on
// first use. An unknown symbol propagates ErrSymbolNotFound. Any other fetch
// failure substitutes conservative defaults without caching them, so the next
// call retries the venue; a trade is never blocked by a metadata hiccup.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (*domain.TradingRule, error) {
	op := "Resolve"

	r.mu.RLock()
	cached, ok := r.cache[symbol]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rule, err := r.source.GetSymbolRule(ctx, symbol)
	if err != nil {
		if errors.Is(err, ports.ErrSymbolNotFound) {
			return nil, err
		}
		r.logger.Warn(ctx, "failed to fetch trading rules, using defaults", map[string]interface{}{
			"op":     op,
			"symbol": symbol,
			"error":  err.Error(),
		})
		return domain.DefaultTradingRule(symbol), nil
	}

	normalized := normalizeRule(rule)
	r.mu.Lock()
	r.cache[symbol] = normalized
	r.mu.Unlock()

	r.logger.Debug(ctx, "cached trading rules", map[string]interface{}{
		"op":                op,
		"symbol":            symbol,
		"priceIncrement":    normalized.PriceIncrement,
		"quantityIncrement": normalized.QuantityIncrement,
		"minQuantity":       normalized.MinQuantity,
		"pricePrecision":    normalized.PricePrecision,
		"quantityPrecision": normalized.QuantityPrecision,
	})
	return normalized, nil
}

// normalizeRule fills any fields the venue left unset with defaults and
// derives the display precision from each increment.
func normalizeRule(rule *domain.TradingRule) *domain.TradingRule {
	out := *rule
	if out.PriceIncrement <= 0 {
		out.PriceIncrement = domain.DefaultPriceIncrement
	}
	if out.QuantityIncrement <= 0 {
		out.QuantityIncrement = domain.DefaultQuantityIncrement
	}
	if out.MinQuantity <= 0 {
		out.MinQuantity = domain.DefaultMinQuantity
	}
	if out.MinPrice <= 0 {
		out.MinPrice = domain.DefaultMinPrice
	}
	if out.MaxPrice <= 0 {
		out.MaxPrice = domain.DefaultMaxPrice
	}
	out.PricePrecision = decimalsOf(out.PriceIncrement)
	if out.PricePrecision < 1 {
		out.PricePrecision = 1
	}
	out.QuantityPrecision = decimalsOf(out.QuantityIncrement)
	return &out
}

func decimalsOf(increment float64) int {
	exp := decimal.NewFromFloat(increment).Exponent()
	if exp >= 0 {
		return 0
	}
	return int(-exp)
}
