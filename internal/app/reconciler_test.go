package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTraderBot/internal/domain"
	"signalTraderBot/internal/ports"
)

type reconcilerFixture struct {
	rec      *Reconciler
	exchange *mockExchange
	repo     *mockTradeRepo
	notifier *mockNotifier
	book     *PositionBook
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	exchange := newMockExchange()
	repo := &mockTradeRepo{}
	notifier := &mockNotifier{}
	book := NewPositionBook()

	rec, err := NewReconciler(&mockLogger{}, exchange, repo, notifier, book, "acct-1", time.Second)
	require.NoError(t, err)
	return &reconcilerFixture{rec: rec, exchange: exchange, repo: repo, notifier: notifier, book: book}
}

// guardedPosition is a long 100 @ 10.00 with SL order 1, TP orders 2/3/4 and
// trailing order 5.
func guardedPosition() *domain.Position {
	slID, trailID := int64(1), int64(5)
	return &domain.Position{
		Symbol:             "XYZUSDT",
		AccountID:          "acct-1",
		Side:               domain.Long,
		Quantity:           100,
		EntryPrice:         10.0,
		Leverage:           10,
		EntryTime:          time.Now().Add(-time.Minute),
		TradeID:            "100",
		StopLossOrderID:    &slID,
		TakeProfitOrderIDs: []int64{2, 3, 4},
		TrailingOrderID:    &trailID,
	}
}

func filledOrder(id int64, price, qty float64) *ports.OrderResponse {
	return &ports.OrderResponse{OrderID: id, Symbol: "XYZUSDT", Status: "FILLED", AvgPrice: price, ExecutedQty: qty}
}

func TestReconcilerPartialThenFullTakeProfit(t *testing.T) {
	f := newReconcilerFixture(t)
	pos := guardedPosition()
	f.book.Insert(pos)

	// first cycle: TP 2 fills, the rest stay open
	f.exchange.orders[2] = filledOrder(2, 10.10, 50)
	f.rec.RunCycle(context.Background())

	assert.Equal(t, []int64{2}, pos.FilledTakeProfitOrderIDs)
	assert.Empty(t, f.exchange.cancelled, "stop-loss stays live while TPs remain")
	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, domain.TradeStatusPartial, f.repo.updates[0].status)
	assert.Equal(t, []int64{2}, f.repo.updates[0].filledTPs, "filled leg persists with the partial transition")
	require.NotNil(t, f.repo.updates[0].pnl)
	assert.InDelta(t, 50*0.10, *f.repo.updates[0].pnl, 1e-9)
	require.Len(t, f.notifier.tpFilled, 1)
	assert.Equal(t, 2, f.notifier.tpFilled[0].RemainingTPs)
	assert.NotNil(t, f.book.Get("acct-1", "XYZUSDT"))

	// remaining legs fill
	f.exchange.orders[3] = filledOrder(3, 10.25, 25)
	f.exchange.orders[4] = filledOrder(4, 10.50, 25)
	f.rec.RunCycle(context.Background())

	// SL and trailing cancelled, trade closed, position dropped
	assert.ElementsMatch(t, []int64{1, 5}, f.exchange.cancelled)
	require.Len(t, f.repo.updates, 2)
	final := f.repo.updates[1]
	assert.Equal(t, domain.TradeStatusClosed, final.status)
	require.NotNil(t, final.pnl)
	assert.InDelta(t, 50*0.10+25*0.25+25*0.50, *final.pnl, 1e-9)
	require.NotNil(t, final.exitTime)
	assert.Nil(t, f.book.Get("acct-1", "XYZUSDT"))
	require.Len(t, f.notifier.closed, 1)
	assert.Equal(t, string(domain.CloseReasonAllTakeProfits), f.notifier.closed[0].Reason)
}

func TestReconcilerStopLossCancelsRemainingLegs(t *testing.T) {
	f := newReconcilerFixture(t)
	pos := guardedPosition()
	pos.MarkTakeProfitFilled(2)
	pos.RealizedPnL = 5.0
	f.book.Insert(pos)

	f.exchange.orders[1] = filledOrder(1, 9.80, 50)
	f.rec.RunCycle(context.Background())

	// the two open TPs and the trailing leg are cancelled
	assert.ElementsMatch(t, []int64{3, 4, 5}, f.exchange.cancelled)
	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, domain.TradeStatusClosed, f.repo.updates[0].status)
	require.NotNil(t, f.repo.updates[0].pnl)
	assert.InDelta(t, 5.0+50*(9.80-10.0), *f.repo.updates[0].pnl, 1e-9)
	assert.Nil(t, f.book.Get("acct-1", "XYZUSDT"))

	require.Len(t, f.notifier.cancelled, 1)
	assert.Equal(t, "stop-loss filled", f.notifier.cancelled[0].Reason)
	require.Len(t, f.notifier.closed, 1)
	assert.Equal(t, string(domain.CloseReasonStopLoss), f.notifier.closed[0].Reason)
}

func TestReconcilerManualCloseSkipsCancellations(t *testing.T) {
	f := newReconcilerFixture(t)
	f.book.Insert(guardedPosition())
	f.exchange.positionAmount = 0

	f.rec.RunCycle(context.Background())

	assert.Empty(t, f.exchange.cancelled)
	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, domain.TradeStatusClosed, f.repo.updates[0].status)
	assert.Nil(t, f.book.Get("acct-1", "XYZUSDT"))
	require.Len(t, f.notifier.closed, 1)
	assert.Equal(t, string(domain.CloseReasonManual), f.notifier.closed[0].Reason)
}

func TestReconcilerIdempotentWithoutVenueChange(t *testing.T) {
	f := newReconcilerFixture(t)
	pos := guardedPosition()
	f.book.Insert(pos)
	f.exchange.orders[2] = filledOrder(2, 10.10, 50)

	f.rec.RunCycle(context.Background())
	updatesAfterFirst := f.repo.updateCount()
	notificationsAfterFirst := len(f.notifier.tpFilled)
	pnlAfterFirst := pos.RealizedPnL

	// same venue snapshot again: no new transitions, cancels or pnl
	f.rec.RunCycle(context.Background())

	assert.Equal(t, updatesAfterFirst, f.repo.updateCount())
	assert.Equal(t, notificationsAfterFirst, len(f.notifier.tpFilled))
	assert.Equal(t, pnlAfterFirst, pos.RealizedPnL)
	assert.Empty(t, f.exchange.cancelled)
}

func TestReconcilerCancelledOrderIsNotAFill(t *testing.T) {
	f := newReconcilerFixture(t)
	pos := guardedPosition()
	f.book.Insert(pos)

	// the SL vanished from open orders but was canceled, not filled
	f.exchange.orders[1] = &ports.OrderResponse{OrderID: 1, Symbol: "XYZUSDT", Status: "CANCELED"}
	f.rec.RunCycle(context.Background())

	assert.Empty(t, f.exchange.cancelled)
	assert.Empty(t, f.repo.updates)
	assert.NotNil(t, f.book.Get("acct-1", "XYZUSDT"))
}

func TestReconcilerResumesRehydratedPartialPosition(t *testing.T) {
	f := newReconcilerFixture(t)

	// trade restored from storage after a restart mid-ladder: TP 2 already
	// filled with 5.0 pnl banked before the process went down
	slID, trailID := int64(1), int64(5)
	record := &domain.TradeRecord{
		TradeID:                  "100",
		AccountID:                "acct-1",
		Symbol:                   "XYZUSDT",
		Side:                     domain.Long,
		EntryPrice:               10.0,
		Quantity:                 100,
		Leverage:                 10,
		Status:                   domain.TradeStatusPartial,
		PnL:                      5.0,
		EntryTime:                time.Now().Add(-time.Hour),
		StopLossOrderID:          &slID,
		TakeProfitOrderIDs:       []int64{2, 3, 4},
		FilledTakeProfitOrderIDs: []int64{2},
		TrailingOrderID:          &trailID,
	}
	pos := record.ToPosition()
	f.book.Insert(pos)

	// order 2 still reads FILLED at the venue; a re-confirmation would
	// double-count its pnl in the final figure below
	f.exchange.orders[2] = filledOrder(2, 10.10, 50)
	f.exchange.orders[3] = filledOrder(3, 10.25, 25)
	f.exchange.orders[4] = filledOrder(4, 10.50, 25)
	f.rec.RunCycle(context.Background())

	assert.ElementsMatch(t, []int64{1, 5}, f.exchange.cancelled)
	require.Len(t, f.repo.updates, 2)

	partial := f.repo.updates[0]
	assert.Equal(t, domain.TradeStatusPartial, partial.status)
	assert.Equal(t, []int64{2, 3}, partial.filledTPs)
	require.NotNil(t, partial.pnl)
	assert.InDelta(t, 5.0+25*0.25, *partial.pnl, 1e-9)

	final := f.repo.updates[1]
	assert.Equal(t, domain.TradeStatusClosed, final.status)
	require.NotNil(t, final.pnl)
	assert.InDelta(t, 5.0+25*0.25+25*0.50, *final.pnl, 1e-9)
	assert.Nil(t, f.book.Get("acct-1", "XYZUSDT"))
}

func TestReconcilerOrderFetchFailureRetriesNextCycle(t *testing.T) {
	f := newReconcilerFixture(t)
	pos := guardedPosition()
	f.book.Insert(pos)

	f.exchange.getOrderErr[2] = ports.ErrConnectionFailed
	f.exchange.orders[3] = filledOrder(3, 10.25, 25)
	f.rec.RunCycle(context.Background())

	// the unreachable TP is skipped, the reachable one still transitions
	assert.Equal(t, []int64{3}, pos.FilledTakeProfitOrderIDs)
	require.Len(t, f.repo.updates, 1)
	assert.Equal(t, domain.TradeStatusPartial, f.repo.updates[0].status)

	// next cycle the venue recovers and the missed fill lands
	delete(f.exchange.getOrderErr, 2)
	f.exchange.orders[2] = filledOrder(2, 10.10, 50)
	f.rec.RunCycle(context.Background())
	assert.ElementsMatch(t, []int64{2, 3}, pos.FilledTakeProfitOrderIDs)
}

func TestReconcilerCancelFailureDoesNotBlockOthers(t *testing.T) {
	f := newReconcilerFixture(t)
	pos := guardedPosition()
	f.book.Insert(pos)

	f.exchange.orders[1] = filledOrder(1, 9.80, 100)
	f.exchange.cancelErr[3] = ports.ErrConnectionFailed
	f.rec.RunCycle(context.Background())

	// TP 4 and the trailing leg still cancelled despite TP 3 failing
	assert.ElementsMatch(t, []int64{4, 5}, f.exchange.cancelled)
	assert.Nil(t, f.book.Get("acct-1", "XYZUSDT"), "position closes regardless")
	require.Len(t, f.notifier.cancelled, 1)
	assert.ElementsMatch(t, []int64{4, 5}, f.notifier.cancelled[0].CancelledIDs)
}

func TestReconcilerPerSymbolIsolation(t *testing.T) {
	f := newReconcilerFixture(t)
	broken := guardedPosition()
	f.book.Insert(broken)

	healthySL := int64(11)
	healthy := &domain.Position{
		Symbol:             "ABCUSDT",
		AccountID:          "acct-1",
		Side:               domain.Long,
		Quantity:           10,
		EntryPrice:         5.0,
		TradeID:            "200",
		StopLossOrderID:    &healthySL,
		TakeProfitOrderIDs: []int64{12},
	}
	f.book.Insert(healthy)

	// position-amount fetch fails for one symbol only
	f.exchange.positionErr = nil
	f.exchange.getOrderErr[1] = ports.ErrConnectionFailed
	f.exchange.orders[12] = filledOrder(12, 5.50, 10)

	f.rec.RunCycle(context.Background())

	// the healthy symbol still progressed to CLOSED
	assert.Nil(t, f.book.Get("acct-1", "ABCUSDT"))
	assert.NotNil(t, f.book.Get("acct-1", "XYZUSDT"))
}

func TestReconcilerStartStop(t *testing.T) {
	f := newReconcilerFixture(t)
	rec, err := NewReconciler(&mockLogger{}, f.exchange, f.repo, f.notifier, f.book, "acct-1", 10*time.Millisecond)
	require.NoError(t, err)

	rec.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	rec.Stop()

	// with an empty book the loop only ticks; it must still exit cleanly
	assert.Zero(t, f.book.Len())
}
