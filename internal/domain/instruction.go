package domain

import "time"

// TradeInstruction is a structured trade request delivered by the external
// signal parser. Only Symbol and Side are mandatory; everything else is
// optional and falls back to the account configuration.
type TradeInstruction struct {
	Symbol      string
	Side        PositionSide
	EntryPrice  float64   // 0 means "enter at current market price"
	StopLoss    float64   // 0 means "derive from account stop-loss percent"
	TakeProfits []float64 // values <= 100 are percent offsets, larger values absolute prices
	Leverage    int       // 0 means "use account leverage"
	SourceID    string    // opaque identifier of the originating channel/message
	ReceivedAt  time.Time
}

// TakeProfitLevel configures one rung of the account's take-profit ladder.
type TakeProfitLevel struct {
	Percentage      float64 // price offset from entry, in percent
	ClosePercentage float64 // share of the remaining quantity to close at this level
}

// AccountConfig holds the per-account risk configuration read from the
// persistent store.
type AccountConfig struct {
	AccountID string
	Leverage  int

	// Sizing: either a slice of the available balance or a fixed quote amount.
	UsePercentBalance bool
	BalancePercent    float64 // percent of available balance per trade
	FixedAmount       float64 // fixed quote-currency notional per trade

	StopLossPercent  float64
	TakeProfitLevels []TakeProfitLevel

	// UseSignalSettings prefers the instruction's own SL/TP/leverage values
	// over the account defaults when the instruction carries them.
	UseSignalSettings bool

	// PlaceProtectiveOrders disables the SL/TP/trailing legs entirely when
	// false (entry only).
	PlaceProtectiveOrders bool

	TrailingEnabled           bool
	TrailingActivationPercent float64
	TrailingCallbackPercent   float64

	// CooldownWindow is the minimum time between entries on the same symbol.
	CooldownWindow time.Duration
}

// DefaultTakeProfitLevels is the ladder applied when an account has none
// configured: close half at +1%, half of the remainder at +2.5%, and
// everything left at +5%.
func DefaultTakeProfitLevels() []TakeProfitLevel {
	return []TakeProfitLevel{
		{Percentage: 1.0, ClosePercentage: 50.0},
		{Percentage: 2.5, ClosePercentage: 50.0},
		{Percentage: 5.0, ClosePercentage: 100.0},
	}
}
