package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"backtester/services/executor"
	"backtester/services/strategy"
)

func newTestLedger(unwind strategy.UnwindMode, maxLots int) *Ledger {
	return New(Config{Unwind: unwind, MaxLots: maxLots}, executor.NewSimulator(), zap.NewNop())
}

func entry(dir strategy.Direction, px float64, ts int64) strategy.Signal {
	return strategy.Signal{
		Kind:      strategy.KindEntry,
		Direction: dir,
		Price:     decimal.NewFromFloat(px),
		Quantity:  decimal.NewFromInt(1),
		Timestamp: ts,
		Reason:    "test_entry",
	}
}

func pyramid(dir strategy.Direction, px float64, ts int64) strategy.Signal {
	s := entry(dir, px, ts)
	s.Kind = strategy.KindPyramid
	return s
}

func exitSig(dir strategy.Direction, px float64, ts int64) strategy.Signal {
	s := entry(dir, px, ts)
	s.Kind = strategy.KindExit
	s.Reason = "test_exit"
	return s
}

func TestFIFOUnwindOrder(t *testing.T) {
	l := newTestLedger(strategy.UnwindFIFO, 3)

	_, err := l.Apply(entry(strategy.Long, 100, 1))
	require.NoError(t, err)
	_, err = l.Apply(pyramid(strategy.Long, 110, 2))
	require.NoError(t, err)
	_, err = l.Apply(pyramid(strategy.Long, 120, 3))
	require.NoError(t, err)

	t1, err := l.Apply(exitSig(strategy.Long, 130, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(1), t1.EntryTimestamp)

	t2, err := l.Apply(exitSig(strategy.Long, 130, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(2), t2.EntryTimestamp)

	assert.Equal(t, 1, l.LotCount())
}

func TestLIFOUnwindOrder(t *testing.T) {
	l := newTestLedger(strategy.UnwindLIFO, 3)

	_, err := l.Apply(entry(strategy.Long, 100, 1))
	require.NoError(t, err)
	_, err = l.Apply(pyramid(strategy.Long, 110, 2))
	require.NoError(t, err)
	_, err = l.Apply(pyramid(strategy.Long, 120, 3))
	require.NoError(t, err)

	t1, err := l.Apply(exitSig(strategy.Long, 130, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(3), t1.EntryTimestamp)

	t2, err := l.Apply(exitSig(strategy.Long, 130, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(2), t2.EntryTimestamp)
}

func TestDirectionConflictRejected(t *testing.T) {
	l := newTestLedger(strategy.UnwindFIFO, 3)

	_, err := l.Apply(entry(strategy.Long, 100, 1))
	require.NoError(t, err)

	_, err = l.Apply(entry(strategy.Short, 100, 2))
	assert.ErrorIs(t, err, ErrDirectionConflict)
	assert.Equal(t, 1, l.LotCount())
	assert.Equal(t, strategy.Long, l.Direction())
}

func TestCapacityRejected(t *testing.T) {
	l := newTestLedger(strategy.UnwindFIFO, 2)

	_, err := l.Apply(entry(strategy.Long, 100, 1))
	require.NoError(t, err)
	_, err = l.Apply(pyramid(strategy.Long, 101, 2))
	require.NoError(t, err)

	_, err = l.Apply(pyramid(strategy.Long, 102, 3))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, l.LotCount())
}

func TestPyramidWhileFlatRejected(t *testing.T) {
	l := newTestLedger(strategy.UnwindFIFO, 2)
	_, err := l.Apply(pyramid(strategy.Long, 100, 1))
	assert.ErrorIs(t, err, ErrNoOpenLots)
}

func TestExitWhileFlatRejected(t *testing.T) {
	l := newTestLedger(strategy.UnwindFIFO, 2)
	_, err := l.Apply(exitSig(strategy.Long, 100, 1))
	assert.ErrorIs(t, err, ErrNoOpenLots)
}

func TestPnLLongAndShort(t *testing.T) {
	l := newTestLedger(strategy.UnwindFIFO, 1)

	_, err := l.Apply(entry(strategy.Long, 100, 1))
	require.NoError(t, err)
	tr, err := l.Apply(exitSig(strategy.Long, 110, 2))
	require.NoError(t, err)
	assert.True(t, tr.PnL.Equal(decimal.NewFromInt(10)), "got %s", tr.PnL)
	assert.True(t, tr.PnLPercentage.Equal(decimal.NewFromFloat(0.1)), "got %s", tr.PnLPercentage)

	_, err = l.Apply(entry(strategy.Short, 100, 3))
	require.NoError(t, err)
	tr, err = l.Apply(exitSig(strategy.Short, 90, 4))
	require.NoError(t, err)
	assert.True(t, tr.PnL.Equal(decimal.NewFromInt(10)), "short profits on decline, got %s", tr.PnL)

	_, err = l.Apply(entry(strategy.Short, 100, 5))
	require.NoError(t, err)
	tr, err = l.Apply(exitSig(strategy.Short, 105, 6))
	require.NoError(t, err)
	assert.True(t, tr.PnL.Equal(decimal.NewFromInt(-5)), "got %s", tr.PnL)
}

func TestTradeLedgerInsertionOrder(t *testing.T) {
	l := newTestLedger(strategy.UnwindLIFO, 3)

	_, err := l.Apply(entry(strategy.Long, 100, 1))
	require.NoError(t, err)
	_, err = l.Apply(pyramid(strategy.Long, 110, 2))
	require.NoError(t, err)
	_, err = l.Apply(exitSig(strategy.Long, 120, 3))
	require.NoError(t, err)
	_, err = l.Apply(exitSig(strategy.Long, 125, 4))
	require.NoError(t, err)

	trades := l.Trades()
	require.Len(t, trades, 2)
	// LIFO closed the ts=2 lot first; the ledger preserves close order.
	assert.Equal(t, int64(2), trades[0].EntryTimestamp)
	assert.Equal(t, int64(1), trades[1].EntryTimestamp)
}

func TestUnrealizedPnL(t *testing.T) {
	l := newTestLedger(strategy.UnwindFIFO, 2)
	_, err := l.Apply(entry(strategy.Long, 100, 1))
	require.NoError(t, err)
	_, err = l.Apply(pyramid(strategy.Long, 110, 2))
	require.NoError(t, err)

	mtm := l.UnrealizedPnL(decimal.NewFromInt(120))
	assert.True(t, mtm.Equal(decimal.NewFromInt(30)), "got %s", mtm)
}

func TestCommissionAccumulates(t *testing.T) {
	exec := &executor.Simulator{
		SlippageBps:    decimal.Zero,
		CommissionRate: decimal.NewFromFloat(0.001),
	}
	l := New(Config{Unwind: strategy.UnwindFIFO, MaxLots: 1}, exec, zap.NewNop())

	_, err := l.Apply(entry(strategy.Long, 1000, 1))
	require.NoError(t, err)
	trade, err := l.Apply(exitSig(strategy.Long, 1000, 2))
	require.NoError(t, err)

	// 0.1% of 1000 on each leg, both attributed to the trade.
	assert.True(t, l.Commissions().Equal(decimal.NewFromInt(2)), "got %s", l.Commissions())
	assert.True(t, trade.Commission.Equal(decimal.NewFromInt(2)), "got %s", trade.Commission)
}

// Per-trade commissions must partition the ledger total: every entry
// leg belongs to exactly one closed trade, whichever lot the unwind
// order pairs it with.
func TestCommissionsPartitionAcrossLots(t *testing.T) {
	exec := &executor.Simulator{
		SlippageBps:    decimal.Zero,
		CommissionRate: decimal.NewFromFloat(0.001),
	}
	l := New(Config{Unwind: strategy.UnwindLIFO, MaxLots: 3}, exec, zap.NewNop())

	_, err := l.Apply(entry(strategy.Long, 1000, 1))
	require.NoError(t, err)
	_, err = l.Apply(pyramid(strategy.Long, 2000, 2))
	require.NoError(t, err)

	trades, err := l.FlattenAll(decimal.NewFromInt(1500), 3, ReasonEndOfData)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	sum := decimal.Zero
	for _, tr := range trades {
		sum = sum.Add(tr.Commission)
	}
	assert.True(t, sum.Equal(l.Commissions()), "sum %s total %s", sum, l.Commissions())

	// LIFO closes the 2000 entry first: 2 in, 1.5 out.
	assert.True(t, trades[0].Commission.Equal(decimal.NewFromFloat(3.5)), "got %s", trades[0].Commission)
	assert.True(t, trades[1].Commission.Equal(decimal.NewFromFloat(2.5)), "got %s", trades[1].Commission)
}

func TestFlattenAll(t *testing.T) {
	l := newTestLedger(strategy.UnwindFIFO, 3)
	_, err := l.Apply(entry(strategy.Long, 100, 1))
	require.NoError(t, err)
	_, err = l.Apply(pyramid(strategy.Long, 101, 2))
	require.NoError(t, err)

	trades, err := l.FlattenAll(decimal.NewFromInt(105), 9, ReasonEndOfData)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
	assert.Equal(t, 0, l.LotCount())
	assert.Equal(t, ReasonEndOfData, trades[0].ExitReason)
}
