package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/services/candles"
	"backtester/services/executor"
	"backtester/services/ledger"
	"backtester/services/strategy"
)

type memSource struct {
	cs  []candles.Candle
	err error
}

func (m memSource) Fetch(_ context.Context, _, _ string, _, _ int64) ([]candles.Candle, error) {
	return m.cs, m.err
}

// alternate appends n closes stepping first/second in turn, producing a
// sawtooth with drift. The oscillation keeps the RSI in mid-range while
// the drift moves the EMAs, so crossovers fire without tripping the
// oscillator filter.
func alternate(from float64, n int, first, second float64) []float64 {
	out := make([]float64, 0, n)
	p := from
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			p += first
		} else {
			p += second
		}
		out = append(out, p)
	}
	return out
}

func makeCandles(closes []float64, t0, cadence int64) []candles.Candle {
	cs := make([]candles.Candle, len(closes))
	prev := closes[0]
	for i, cl := range closes {
		open := prev
		cs[i] = candles.Candle{
			Timestamp: t0 + int64(i)*cadence,
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(math.Max(open, cl) + 0.2),
			Low:       decimal.NewFromFloat(math.Min(open, cl) - 0.2),
			Close:     decimal.NewFromFloat(cl),
			Volume:    decimal.NewFromInt(1),
		}
		prev = cl
	}
	return cs
}

// downUpDown builds 180 one-minute candles: a falling leg, a rising leg
// that forces a bullish EMA crossover, then a falling leg that forces
// the bearish one.
func downUpDown() []candles.Candle {
	closes := alternate(100, 60, -0.6, 0.4)
	closes = append(closes, alternate(closes[len(closes)-1], 60, 0.6, -0.4)...)
	closes = append(closes, alternate(closes[len(closes)-1], 60, -0.6, 0.4)...)
	return makeCandles(closes, 1_700_000_000_000, 60_000)
}

func baseRequest(params strategy.Params) Request {
	return Request{
		Symbol:         "BTCUSDT",
		Timeframe:      "1m",
		StartMs:        1_700_000_000_000,
		EndMs:          1_700_000_000_000 + 180*60_000,
		InitialBalance: decimal.NewFromInt(10_000),
		Params:         params,
	}
}

func TestRunSingleLongTrade(t *testing.T) {
	params := strategy.DefaultParams()
	params.AllowShort = false

	o := New(memSource{cs: downUpDown()}, executor.NewSimulator(), nil)
	req := baseRequest(params)
	req.KeepEvents = true

	res, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, strategy.Long, trade.Direction)
	assert.Equal(t, strategy.ReasonCrossoverEntry, trade.EntryReason)
	assert.Equal(t, strategy.ReasonCrossoverExit, trade.ExitReason)
	assert.Greater(t, trade.ExitTimestamp, trade.EntryTimestamp)

	wantPnL := trade.ExitPrice.Sub(trade.EntryPrice).Mul(trade.Quantity)
	assert.True(t, trade.PnL.Equal(wantPnL), "pnl %s want %s", trade.PnL, wantPnL)

	// Frictionless fills: final equity differs from initial by exactly
	// the trade PnL.
	assert.True(t, res.Commissions.IsZero())
	assert.True(t, res.FinalEquity.Equal(req.InitialBalance.Add(trade.PnL)))

	require.Len(t, res.EquityCurve, 180)
	assert.True(t, res.EquityCurve[0].Equity.Equal(req.InitialBalance),
		"equity must stay at the initial balance before the first fill")

	var haveEntry, haveExit bool
	for _, ev := range res.Events {
		switch ev.Type {
		case EventEntryFill:
			haveEntry = true
		case EventExitFill:
			haveExit = true
		}
	}
	assert.True(t, haveEntry)
	assert.True(t, haveExit)
}

// With shorts enabled the bearish crossover both exits the long and
// opens a short on the same candle; the short is flattened at the last
// close. The accounting identity must hold with slippage and
// commissions turned on.
func TestRunConservation(t *testing.T) {
	params := strategy.DefaultParams()
	sim := &executor.Simulator{
		SlippageBps:    decimal.NewFromInt(5),
		CommissionRate: decimal.NewFromFloat(0.001),
	}
	o := New(memSource{cs: downUpDown()}, sim, nil)

	res, err := o.Run(context.Background(), baseRequest(params))
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	assert.Equal(t, strategy.Long, res.Trades[0].Direction)
	assert.Equal(t, strategy.Short, res.Trades[1].Direction)
	assert.Equal(t, ledger.ReasonEndOfData, res.Trades[1].ExitReason)
	assert.Equal(t, res.Trades[0].ExitTimestamp, res.Trades[1].EntryTimestamp,
		"the flip exit and the short entry share one candle")

	sumPnL, sumComm := decimal.Zero, decimal.Zero
	for _, tr := range res.Trades {
		sumPnL = sumPnL.Add(tr.PnL)
		sumComm = sumComm.Add(tr.Commission)
	}
	assert.True(t, res.Commissions.Equal(sumComm))
	want := res.InitialBalance.Add(sumPnL).Sub(sumComm)
	assert.True(t, res.FinalEquity.Equal(want),
		"final %s want %s", res.FinalEquity, want)
}

func TestRunInsufficientData(t *testing.T) {
	cs := makeCandles(alternate(100, 10, 0.5, -0.3), 1_700_000_000_000, 60_000)
	o := New(memSource{cs: cs}, executor.NewSimulator(), nil)

	res, err := o.Run(context.Background(), baseRequest(strategy.DefaultParams()))
	require.ErrorIs(t, err, ErrInsufficientData)
	require.NotNil(t, res)
	assert.Equal(t, StatusInsufficientData, res.Status)
	assert.Zero(t, res.TotalTrades)
	assert.Empty(t, res.Trades)
	assert.True(t, res.FinalEquity.Equal(res.InitialBalance))
}

func TestRunRejectsBadRequests(t *testing.T) {
	o := New(memSource{cs: downUpDown()}, executor.NewSimulator(), nil)

	t.Run("unknown strategy", func(t *testing.T) {
		params := strategy.DefaultParams()
		params.Strategy = "nope"
		_, err := o.Run(context.Background(), baseRequest(params))
		require.ErrorIs(t, err, strategy.ErrInvalidConfig)
	})

	t.Run("unknown timeframe", func(t *testing.T) {
		req := baseRequest(strategy.DefaultParams())
		req.Timeframe = "7m"
		_, err := o.Run(context.Background(), req)
		require.ErrorIs(t, err, strategy.ErrInvalidConfig)
	})

	t.Run("non-positive balance", func(t *testing.T) {
		req := baseRequest(strategy.DefaultParams())
		req.InitialBalance = decimal.Zero
		_, err := o.Run(context.Background(), req)
		require.ErrorIs(t, err, strategy.ErrInvalidConfig)
	})

	t.Run("fetch failure", func(t *testing.T) {
		bad := New(memSource{err: errors.New("boom")}, executor.NewSimulator(), nil)
		_, err := bad.Run(context.Background(), baseRequest(strategy.DefaultParams()))
		require.Error(t, err)
	})
}

func TestRunContextCancelled(t *testing.T) {
	o := New(memSource{cs: downUpDown()}, executor.NewSimulator(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Run(ctx, baseRequest(strategy.DefaultParams()))
	require.ErrorIs(t, err, context.Canceled)
}

func TestManifestReproducibility(t *testing.T) {
	o := New(memSource{cs: downUpDown()}, executor.NewSimulator(), nil)
	req := baseRequest(strategy.DefaultParams())

	a, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	b, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a.Manifest.ConfigHash, b.Manifest.ConfigHash)
	assert.NotEqual(t, a.Manifest.JobID, b.Manifest.JobID)
	assert.Equal(t, 21, a.Manifest.WarmupBars)

	// Deterministic replay: identical inputs, identical outcomes.
	require.Equal(t, len(a.Trades), len(b.Trades))
	for i := range a.Trades {
		assert.True(t, a.Trades[i].PnL.Equal(b.Trades[i].PnL))
	}
	assert.True(t, a.FinalEquity.Equal(b.FinalEquity))
}

func TestRunBatch(t *testing.T) {
	o := New(memSource{cs: downUpDown()}, executor.NewSimulator(), nil)

	good := baseRequest(strategy.DefaultParams())
	bad := baseRequest(strategy.DefaultParams())
	bad.Symbol = ""

	out := o.RunBatch(context.Background(), []Request{good, bad, good}, 2)
	require.Len(t, out, 3)

	require.NoError(t, out[0].Err)
	assert.Equal(t, StatusCompleted, out[0].Result.Status)
	require.ErrorIs(t, out[1].Err, strategy.ErrInvalidConfig)
	require.NoError(t, out[2].Err)

	// Independent runs over identical input agree.
	assert.True(t, out[0].Result.FinalEquity.Equal(out[2].Result.FinalEquity))
}

// A cancelled batch must report a definite outcome for every slot,
// including requests that were never handed to a worker.
func TestRunBatchCancelled(t *testing.T) {
	o := New(memSource{cs: downUpDown()}, executor.NewSimulator(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reqs := []Request{
		baseRequest(strategy.DefaultParams()),
		baseRequest(strategy.DefaultParams()),
		baseRequest(strategy.DefaultParams()),
		baseRequest(strategy.DefaultParams()),
	}
	out := o.RunBatch(ctx, reqs, 2)
	require.Len(t, out, len(reqs))
	for i, r := range out {
		assert.Error(t, r.Err, "slot %d", i)
		assert.Equal(t, reqs[i].Symbol, r.Request.Symbol, "slot %d", i)
	}
}
