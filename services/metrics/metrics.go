// Package metrics derives summary statistics from a trade ledger and an
// equity curve. Every calculation is a pure function of its inputs;
// nothing is ever recomputed from raw candles, so the reported return
// always equals the sum of trade PnL minus fees.
package metrics

import (
	"math"

	"github.com/shopspring/decimal"

	"backtester/services/candles"
	"backtester/services/ledger"
)

// ProfitFactorNoLosses is the sentinel reported when there are winning
// trades but no losing trades. Kept large but finite so the result
// serializes cleanly; NaN and Inf never reach consumers.
const ProfitFactorNoLosses = 1e9

// EquityPoint is one mark-to-market sample, taken once per candle at
// that candle's close.
type EquityPoint struct {
	Timestamp int64           `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
}

// Summary holds the derived performance statistics. Ratio fields are
// fractions (0.0833 = 8.33%), money fields are in account currency.
type Summary struct {
	TotalTrades           int             `json:"totalTrades"`
	WinningTrades         int             `json:"winningTrades"`
	LosingTrades          int             `json:"losingTrades"`
	TotalReturn           decimal.Decimal `json:"totalReturn"`
	TotalReturnPercentage float64         `json:"totalReturnPercentage"`
	WinRate               float64         `json:"winRate"`
	AverageWin            decimal.Decimal `json:"averageWin"`
	AverageLoss           decimal.Decimal `json:"averageLoss"`
	ProfitFactor          float64         `json:"profitFactor"`
	MaxDrawdown           float64         `json:"maxDrawdown"`
	SharpeRatio           float64         `json:"sharpeRatio"`
}

// Calculate derives the summary from the closed-trade ledger and equity
// curve. timeframe sets the annualization factor for the Sharpe ratio.
// Calling it twice on the same inputs yields identical output.
func Calculate(trades []ledger.Trade, curve []EquityPoint, initialBalance decimal.Decimal, timeframe string) (Summary, error) {
	s := Summary{
		TotalTrades: len(trades),
		TotalReturn: decimal.Zero,
		AverageWin:  decimal.Zero,
		AverageLoss: decimal.Zero,
	}

	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	for _, t := range trades {
		switch {
		case t.PnL.IsPositive():
			s.WinningTrades++
			grossWin = grossWin.Add(t.PnL)
		case t.PnL.IsNegative():
			s.LosingTrades++
			grossLoss = grossLoss.Add(t.PnL)
		}
	}

	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	}
	if s.WinningTrades > 0 {
		s.AverageWin = grossWin.Div(decimal.NewFromInt(int64(s.WinningTrades)))
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = grossLoss.Div(decimal.NewFromInt(int64(s.LosingTrades)))
	}
	s.ProfitFactor = profitFactor(grossWin, grossLoss)

	if len(curve) > 0 {
		final := curve[len(curve)-1].Equity
		s.TotalReturn = final.Sub(initialBalance)
		if initialBalance.IsPositive() {
			s.TotalReturnPercentage = s.TotalReturn.Div(initialBalance).InexactFloat64()
		}
	}

	s.MaxDrawdown = MaxDrawdown(curve)

	sharpe, err := sharpeRatio(curve, timeframe)
	if err != nil {
		return Summary{}, err
	}
	s.SharpeRatio = sharpe
	return s, nil
}

// profitFactor is gross wins over absolute gross losses. Zero trades
// either way yields 0; wins without losses yields the named sentinel.
// Division by zero never escapes as Inf or NaN.
func profitFactor(grossWin, grossLoss decimal.Decimal) float64 {
	if grossLoss.IsZero() {
		if grossWin.IsZero() {
			return 0
		}
		return ProfitFactorNoLosses
	}
	return grossWin.Div(grossLoss.Abs()).InexactFloat64()
}

// MaxDrawdown is the maximum peak-to-trough decline as a fraction of
// the running peak, found in a single forward scan.
func MaxDrawdown(curve []EquityPoint) float64 {
	var maxDD float64
	peak := math.Inf(-1)
	for _, p := range curve {
		eq := p.Equity.InexactFloat64()
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			if dd := (peak - eq) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio is the mean per-period equity return over its standard
// deviation, annualized by sqrt(periods per year). Zero variance or a
// curve too short to have returns reports 0.
func sharpeRatio(curve []EquityPoint, timeframe string) (float64, error) {
	if len(curve) < 2 {
		return 0, nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity.InexactFloat64()
		cur := curve[i].Equity.InexactFloat64()
		if prev == 0 {
			continue
		}
		returns = append(returns, cur/prev-1)
	}
	if len(returns) < 2 {
		return 0, nil
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0, nil
	}

	ppy, err := candles.PeriodsPerYear(timeframe)
	if err != nil {
		return 0, err
	}
	return mean / std * math.Sqrt(ppy), nil
}
