package metrics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/services/ledger"
)

func tradeWithPnL(pnl float64) ledger.Trade {
	return ledger.Trade{PnL: decimal.NewFromFloat(pnl), Quantity: decimal.NewFromInt(1)}
}

func curveOf(values ...float64) []EquityPoint {
	out := make([]EquityPoint, 0, len(values))
	ts := int64(1700000000000)
	for _, v := range values {
		out = append(out, EquityPoint{Timestamp: ts, Equity: decimal.NewFromFloat(v)})
		ts += 60_000
	}
	return out
}

func TestDrawdownBoundary(t *testing.T) {
	dd := MaxDrawdown(curveOf(100, 120, 80, 130))
	assert.InDelta(t, (120.0-80.0)/120.0, dd, 1e-9)
}

func TestDrawdownMonotonicCurveIsZero(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(curveOf(100, 110, 120)))
	assert.Equal(t, 0.0, MaxDrawdown(nil))
}

func TestProfitFactorNoLossesSentinel(t *testing.T) {
	trades := []ledger.Trade{tradeWithPnL(10), tradeWithPnL(20), tradeWithPnL(30)}
	s, err := Calculate(trades, curveOf(100, 160), decimal.NewFromInt(100), "1h")
	require.NoError(t, err)
	assert.Equal(t, ProfitFactorNoLosses, s.ProfitFactor)
	assert.False(t, isNaNOrInf(s.ProfitFactor))
}

func TestProfitFactorNoTradesIsZero(t *testing.T) {
	s, err := Calculate(nil, curveOf(100, 100), decimal.NewFromInt(100), "1h")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.ProfitFactor)
	assert.Equal(t, 0.0, s.WinRate)
	assert.True(t, s.AverageWin.IsZero())
	assert.True(t, s.AverageLoss.IsZero())
}

func TestProfitFactorRatio(t *testing.T) {
	trades := []ledger.Trade{tradeWithPnL(30), tradeWithPnL(-10)}
	s, err := Calculate(trades, curveOf(100, 120), decimal.NewFromInt(100), "1h")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.True(t, s.AverageWin.Equal(decimal.NewFromInt(30)))
	assert.True(t, s.AverageLoss.Equal(decimal.NewFromInt(-10)))
}

func TestTotalReturn(t *testing.T) {
	s, err := Calculate(nil, curveOf(1000, 1100), decimal.NewFromInt(1000), "1d")
	require.NoError(t, err)
	assert.True(t, s.TotalReturn.Equal(decimal.NewFromInt(100)), "got %s", s.TotalReturn)
	assert.InDelta(t, 0.1, s.TotalReturnPercentage, 1e-9)
}

func TestSharpeZeroVariance(t *testing.T) {
	s, err := Calculate(nil, curveOf(100, 100, 100, 100), decimal.NewFromInt(100), "1h")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.SharpeRatio)
}

func TestSharpePositiveDrift(t *testing.T) {
	s, err := Calculate(nil, curveOf(100, 101, 101.5, 103, 103.2, 105), decimal.NewFromInt(100), "1d")
	require.NoError(t, err)
	assert.Greater(t, s.SharpeRatio, 0.0)
	assert.False(t, isNaNOrInf(s.SharpeRatio))
}

func TestCalculateIsIdempotent(t *testing.T) {
	trades := []ledger.Trade{tradeWithPnL(10), tradeWithPnL(-4), tradeWithPnL(7)}
	curve := curveOf(100, 110, 106, 113)
	initial := decimal.NewFromInt(100)

	a, err := Calculate(trades, curve, initial, "4h")
	require.NoError(t, err)
	b, err := Calculate(trades, curve, initial, "4h")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCalculateUnknownTimeframe(t *testing.T) {
	_, err := Calculate(nil, curveOf(100, 101, 102), decimal.NewFromInt(100), "13m")
	assert.Error(t, err)
}

func isNaNOrInf(v float64) bool {
	return v != v || v > 1e300 || v < -1e300
}
