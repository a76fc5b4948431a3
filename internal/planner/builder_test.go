package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTraderBot/internal/domain"
	"signalTraderBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func testRule() *domain.TradingRule {
	return &domain.TradingRule{
		Symbol:            "XYZUSDT",
		PriceIncrement:    0.01,
		QuantityIncrement: 1.0,
		MinQuantity:       1.0,
		MinPrice:          0.01,
		MaxPrice:          1000000.0,
		PricePrecision:    2,
		QuantityPrecision: 0,
	}
}

func testAccount() *domain.AccountConfig {
	return &domain.AccountConfig{
		AccountID:             "acct-1",
		Leverage:              10,
		UsePercentBalance:     false,
		FixedAmount:           100,
		StopLossPercent:       2,
		TakeProfitLevels:      domain.DefaultTakeProfitLevels(),
		PlaceProtectiveOrders: true,
	}
}

func longInstruction() *domain.TradeInstruction {
	return &domain.TradeInstruction{Symbol: "XYZUSDT", Side: domain.Long}
}

func TestBuildSizing(t *testing.T) {
	b, err := NewBuilder(&mockLogger{})
	require.NoError(t, err)

	// 100 USDT margin at 10x on a 10.00 market is 100 contracts
	plan, err := b.Build(context.Background(), longInstruction(), testAccount(), 10.0, 1000.0, testRule())
	require.NoError(t, err)
	assert.Equal(t, 100.0, plan.EntryQuantity)
	assert.Equal(t, 10, plan.Leverage)
	assert.Equal(t, domain.Long, plan.Side)
}

func TestBuildPercentBalanceSizing(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.UsePercentBalance = true
	account.BalancePercent = 10

	plan, err := b.Build(context.Background(), longInstruction(), account, 10.0, 500.0, testRule())
	require.NoError(t, err)
	// 10% of 500 at 10x is 500 notional, 50 contracts at 10.00
	assert.Equal(t, 50.0, plan.EntryQuantity)
}

func TestBuildInsufficientSize(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.FixedAmount = 0.5
	account.Leverage = 1

	_, err := b.Build(context.Background(), longInstruction(), account, 10.0, 1000.0, testRule())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInsufficientSize)
}

func TestBuildInsufficientBalance(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.FixedAmount = 2000

	_, err := b.Build(context.Background(), longInstruction(), account, 10.0, 1000.0, testRule())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInsufficientBalance)
}

func TestBuildLadderAllocation(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})

	plan, err := b.Build(context.Background(), longInstruction(), testAccount(), 10.0, 1000.0, testRule())
	require.NoError(t, err)

	// levels (1%,50) (2.5%,50) (5%,100) on 100 contracts: 50, 25, 25
	require.Len(t, plan.TakeProfitLegs, 3)
	assert.Equal(t, 50.0, plan.TakeProfitLegs[0].Quantity)
	assert.Equal(t, 25.0, plan.TakeProfitLegs[1].Quantity)
	assert.Equal(t, 25.0, plan.TakeProfitLegs[2].Quantity)
	assert.Equal(t, plan.EntryQuantity, plan.TotalTakeProfitQuantity())

	assert.InDelta(t, 10.10, plan.TakeProfitLegs[0].Price, 1e-9)
	assert.InDelta(t, 10.25, plan.TakeProfitLegs[1].Price, 1e-9)
	assert.InDelta(t, 10.50, plan.TakeProfitLegs[2].Price, 1e-9)
}

func TestBuildLadderNeverExceedsEntry(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.FixedAmount = 1 // 10 notional at 10x on 3.00 market
	rule := testRule()

	plan, err := b.Build(context.Background(), longInstruction(), account, 3.0, 1000.0, rule)
	require.NoError(t, err)
	assert.LessOrEqual(t, plan.TotalTakeProfitQuantity(), plan.EntryQuantity)
	for i, leg := range plan.TakeProfitLegs {
		if i < len(plan.TakeProfitLegs)-1 {
			assert.GreaterOrEqual(t, leg.Quantity, rule.MinQuantity)
		}
	}
}

func TestBuildSmallPositionSkipsEarlyLevels(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.Leverage = 1
	account.FixedAmount = 10 // exactly 1 contract at 10.00

	plan, err := b.Build(context.Background(), longInstruction(), account, 10.0, 1000.0, testRule())
	require.NoError(t, err)
	// 50% of 1 floors to 0 on a unit grid, so only the final level survives
	require.Len(t, plan.TakeProfitLegs, 1)
	assert.Equal(t, 1.0, plan.TakeProfitLegs[0].Quantity)
}

func TestBuildLadderReservesStepsForLaterLevels(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.Leverage = 1
	account.FixedAmount = 30 // 3 contracts at 10.00
	account.TakeProfitLevels = []domain.TakeProfitLevel{
		{Percentage: 1, ClosePercentage: 100},
		{Percentage: 2, ClosePercentage: 100},
		{Percentage: 3, ClosePercentage: 100},
	}

	plan, err := b.Build(context.Background(), longInstruction(), account, 10.0, 1000.0, testRule())
	require.NoError(t, err)

	// a greedy first level would swallow all 3 contracts; one step stays
	// reserved for each later level
	require.Len(t, plan.TakeProfitLegs, 3)
	assert.Equal(t, 1.0, plan.TakeProfitLegs[0].Quantity)
	assert.Equal(t, 1.0, plan.TakeProfitLegs[1].Quantity)
	assert.Equal(t, 1.0, plan.TakeProfitLegs[2].Quantity)
}

func TestBuildTickCollisionAvoidance(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	// three targets that all round onto the mark's own tick
	account.TakeProfitLevels = []domain.TakeProfitLevel{
		{Percentage: 0.01, ClosePercentage: 50},
		{Percentage: 0.02, ClosePercentage: 50},
		{Percentage: 0.03, ClosePercentage: 100},
	}

	plan, err := b.Build(context.Background(), longInstruction(), account, 10.0, 1000.0, testRule())
	require.NoError(t, err)
	require.Len(t, plan.TakeProfitLegs, 3)
	prev := 10.0
	for _, leg := range plan.TakeProfitLegs {
		assert.Greater(t, leg.Price, prev, "targets must be strictly increasing past the mark")
		prev = leg.Price
	}
}

func TestBuildShortLadderDescends(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	instr := &domain.TradeInstruction{Symbol: "XYZUSDT", Side: domain.Short}

	plan, err := b.Build(context.Background(), instr, testAccount(), 10.0, 1000.0, testRule())
	require.NoError(t, err)
	require.Len(t, plan.TakeProfitLegs, 3)
	prev := 10.0
	for _, leg := range plan.TakeProfitLegs {
		assert.Less(t, leg.Price, prev)
		prev = leg.Price
	}
	// stop sits above the market for a short
	assert.Greater(t, plan.StopLossPrice, 10.0)
}

func TestBuildStopLossFromPercent(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})

	plan, err := b.Build(context.Background(), longInstruction(), testAccount(), 10.0, 1000.0, testRule())
	require.NoError(t, err)
	assert.InDelta(t, 9.80, plan.StopLossPrice, 1e-9)
}

func TestBuildSignalStopLossWrongSidePushed(t *testing.T) {
	logger := &mockLogger{}
	b, _ := NewBuilder(logger)
	account := testAccount()
	account.UseSignalSettings = true
	instr := longInstruction()
	instr.StopLoss = 10.50 // above market on a long: would trigger instantly

	plan, err := b.Build(context.Background(), instr, account, 10.0, 1000.0, testRule())
	require.NoError(t, err)
	assert.InDelta(t, 9.50, plan.StopLossPrice, 1e-9)
	assert.NotEmpty(t, logger.warnMsgs)
}

func TestBuildSignalTakeProfitPercentsAndAbsolutes(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.UseSignalSettings = true
	instr := longInstruction()
	instr.TakeProfits = []float64{2, 110.0} // 2% offset, then absolute 110.00

	plan, err := b.Build(context.Background(), instr, account, 100.0, 10000.0, testRule())
	require.NoError(t, err)
	require.Len(t, plan.TakeProfitLegs, 2)
	assert.InDelta(t, 102.0, plan.TakeProfitLegs[0].Price, 1e-9)
	assert.InDelta(t, 110.0, plan.TakeProfitLegs[1].Price, 1e-9)
	assert.Equal(t, 100.0, plan.TakeProfitLegs[1].CloseFraction)
}

func TestBuildUnusableSignalTargetsFallBack(t *testing.T) {
	logger := &mockLogger{}
	b, _ := NewBuilder(logger)
	account := testAccount()
	account.UseSignalSettings = true
	instr := longInstruction()
	instr.TakeProfits = []float64{450.0, 520.0} // every target at 2x the market or beyond

	plan, err := b.Build(context.Background(), instr, account, 200.0, 10000.0, testRule())
	require.NoError(t, err)
	require.Len(t, plan.TakeProfitLegs, 3)
	assert.InDelta(t, 205.0, plan.TakeProfitLegs[0].Price, 1e-9)
	assert.InDelta(t, 210.0, plan.TakeProfitLegs[1].Price, 1e-9)
	assert.InDelta(t, 215.0, plan.TakeProfitLegs[2].Price, 1e-9)
	assert.NotEmpty(t, logger.warnMsgs)
}

func TestBuildStaleSignalTargetKeepsLadder(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.UseSignalSettings = true
	instr := longInstruction()
	instr.TakeProfits = []float64{195.0, 210.0} // first sits below a 200.00 market

	plan, err := b.Build(context.Background(), instr, account, 200.0, 10000.0, testRule())
	require.NoError(t, err)

	// one stale target does not discard the ladder: it is nudged one tick
	// past the mark and the healthy target survives untouched
	require.Len(t, plan.TakeProfitLegs, 2)
	assert.InDelta(t, 200.01, plan.TakeProfitLegs[0].Price, 1e-9)
	assert.InDelta(t, 210.0, plan.TakeProfitLegs[1].Price, 1e-9)
}

func TestBuildSignalEntryPriceSizing(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	instr := longInstruction()
	instr.EntryPrice = 10.20

	// 100 USDT margin at 10x sized against the signal's 10.20 entry rather
	// than the 10.00 market: floor(1000 / 10.20) = 98 contracts
	plan, err := b.Build(context.Background(), instr, testAccount(), 10.0, 1000.0, testRule())
	require.NoError(t, err)
	assert.Equal(t, 98.0, plan.EntryQuantity)
	assert.Equal(t, 10.20, plan.EntryPrice)
	// the percent stop is measured from the entry price too
	assert.InDelta(t, 9.99, plan.StopLossPrice, 1e-9)
}

func TestBuildProtectiveOrdersDisabled(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.PlaceProtectiveOrders = false
	account.TrailingEnabled = true
	account.TrailingActivationPercent = 1
	account.TrailingCallbackPercent = 0.5

	plan, err := b.Build(context.Background(), longInstruction(), account, 10.0, 1000.0, testRule())
	require.NoError(t, err)
	assert.Zero(t, plan.StopLossPrice)
	assert.Empty(t, plan.TakeProfitLegs)
	assert.Nil(t, plan.Trailing)
}

func TestBuildTrailingSpec(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.TrailingEnabled = true
	account.TrailingActivationPercent = 2
	account.TrailingCallbackPercent = 0.5

	plan, err := b.Build(context.Background(), longInstruction(), account, 10.0, 1000.0, testRule())
	require.NoError(t, err)
	require.NotNil(t, plan.Trailing)
	assert.InDelta(t, 10.20, plan.Trailing.ActivationPrice, 1e-9)
	assert.Equal(t, 0.5, plan.Trailing.CallbackRate)
}

func TestBuildSignalLeverageOverride(t *testing.T) {
	b, _ := NewBuilder(&mockLogger{})
	account := testAccount()
	account.UseSignalSettings = true
	instr := longInstruction()
	instr.Leverage = 20

	plan, err := b.Build(context.Background(), instr, account, 10.0, 1000.0, testRule())
	require.NoError(t, err)
	assert.Equal(t, 20, plan.Leverage)
	assert.Equal(t, 200.0, plan.EntryQuantity)
}
