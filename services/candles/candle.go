// Package candles defines the OHLCV candle type and the sources that
// supply ordered candle streams to the backtest engine.
package candles

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Timestamp is the bar open time in unix
// milliseconds (UTC). Candles are immutable once produced.
type Candle struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Source supplies an ordered, deduplicated candle sequence for one
// symbol/timeframe over [startMs, endMs).
type Source interface {
	Fetch(ctx context.Context, symbol, timeframe string, startMs, endMs int64) ([]Candle, error)
}

// Slice serves an already-loaded candle series as a Source. Symbol and
// timeframe are ignored; a zero range returns everything.
type Slice []Candle

// Fetch implements Source.
func (s Slice) Fetch(_ context.Context, _, _ string, startMs, endMs int64) ([]Candle, error) {
	if startMs == 0 && endMs == 0 {
		return s, nil
	}
	out := make([]Candle, 0, len(s))
	for _, c := range s {
		if c.Timestamp >= startMs && c.Timestamp < endMs {
			out = append(out, c)
		}
	}
	return out, nil
}

// ErrUnknownTimeframe is returned for timeframe strings the engine does
// not recognize.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

var timeframeMs = map[string]int64{
	"1m":  60_000,
	"5m":  300_000,
	"15m": 900_000,
	"30m": 1_800_000,
	"1h":  3_600_000,
	"4h":  14_400_000,
	"1d":  86_400_000,
}

// TimeframeMs returns the bar duration in milliseconds for a timeframe
// label ("1m", "5m", "15m", "30m", "1h", "4h", "1d").
func TimeframeMs(tf string) (int64, error) {
	ms, ok := timeframeMs[tf]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, tf)
	}
	return ms, nil
}

// PeriodsPerYear returns how many bars of the given timeframe fit in a
// 365-day year. Used to annualize per-bar return statistics.
func PeriodsPerYear(tf string) (float64, error) {
	ms, err := TimeframeMs(tf)
	if err != nil {
		return 0, err
	}
	const yearMs = 365.0 * 24 * 60 * 60 * 1000
	return yearMs / float64(ms), nil
}
