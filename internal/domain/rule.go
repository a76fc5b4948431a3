package domain

// TradingRule holds the per-symbol trading constraints published by the venue.
// It is fetched once per symbol, cached for the process lifetime, and treated
// as authoritative for all price/quantity rounding.
type TradingRule struct {
	Symbol            string
	PriceIncrement    float64 // minimum legal price step (tick size)
	QuantityIncrement float64 // minimum legal quantity step (lot step size)
	MinQuantity       float64 // smallest order quantity the venue accepts
	MinPrice          float64
	MaxPrice          float64
	PricePrecision    int // decimal digits implied by PriceIncrement, never below 1
	QuantityPrecision int // decimal digits implied by QuantityIncrement, never below 0
}

// Default rule values substituted when venue metadata is missing or a fetch
// fails. Downstream rounding must always have a non-zero grid to divide by.
const (
	DefaultPriceIncrement    = 0.00001
	DefaultQuantityIncrement = 1.0
	DefaultMinQuantity       = 1.0
	DefaultMinPrice          = 0.00001
	DefaultMaxPrice          = 1000000.0
	DefaultPricePrecision    = 5
	DefaultQuantityPrecision = 0
)

// DefaultTradingRule returns the safe fallback rule for a symbol whose
// metadata could not be fetched.
func DefaultTradingRule(symbol string) *TradingRule {
	return &TradingRule{
		Symbol:            symbol,
		PriceIncrement:    DefaultPriceIncrement,
		QuantityIncrement: DefaultQuantityIncrement,
		MinQuantity:       DefaultMinQuantity,
		MinPrice:          DefaultMinPrice,
		MaxPrice:          DefaultMaxPrice,
		PricePrecision:    DefaultPricePrecision,
		QuantityPrecision: DefaultQuantityPrecision,
	}
}
