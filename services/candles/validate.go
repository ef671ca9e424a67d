package candles

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// ErrBadData marks candle streams that fail hard quality guards.
var ErrBadData = errors.New("candle data rejected")

// DetectCadence returns the most common delta between consecutive
// timestamps, sampling at most the first 2000 candles. Falls back to
// fallbackMs when no usable delta is found.
func DetectCadence(cs []Candle, fallbackMs int64) int64 {
	if len(cs) < 2 {
		return fallbackMs
	}
	deltaCount := make(map[int64]int)
	limit := len(cs)
	if limit > 2000 {
		limit = 2000
	}
	for i := 1; i < limit; i++ {
		d := cs[i].Timestamp - cs[i-1].Timestamp
		if d > 0 && d < int64(24*60*60*1000) {
			deltaCount[d]++
		}
	}
	best := fallbackMs
	bestCount := -1
	for d, c := range deltaCount {
		if c > bestCount {
			bestCount = c
			best = d
		}
	}
	return best
}

// Validate runs data quality guards over a candle stream: monotonic
// timestamps are mandatory; gaps and wild price jumps are logged but
// tolerated up to a 5% ratio. cadenceMs is the expected bar duration.
func Validate(cs []Candle, cadenceMs int64, logger *zap.Logger) error {
	if len(cs) == 0 {
		return fmt.Errorf("%w: empty stream", ErrBadData)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var badOrder, badCadence, gaps, misaligned int
	for i := 0; i < len(cs); i++ {
		if cadenceMs > 0 && cs[i].Timestamp%cadenceMs != 0 {
			misaligned++
		}
		if i == 0 {
			continue
		}
		if cs[i].Timestamp <= cs[i-1].Timestamp {
			badOrder++
		}
		delta := cs[i].Timestamp - cs[i-1].Timestamp
		if cadenceMs > 0 && delta != cadenceMs {
			if delta > cadenceMs {
				gaps++
			} else {
				badCadence++
			}
		}
	}

	jumps := 0
	for i := 1; i < len(cs); i++ {
		c := cs[i].Close.InexactFloat64()
		p := cs[i-1].Close.InexactFloat64()
		if p > 0 && math.Abs(c/p-1) > 0.2 {
			jumps++
		}
	}

	logger.Info("candle stream validated",
		zap.Int("candles", len(cs)),
		zap.Int64("cadence_ms", cadenceMs),
		zap.Int("bad_order", badOrder),
		zap.Int("bad_cadence", badCadence),
		zap.Int("gaps", gaps),
		zap.Int("misaligned", misaligned),
		zap.Int("jumps_over_20pct", jumps),
	)

	if badOrder > 0 {
		return fmt.Errorf("%w: %d candles out of order", ErrBadData, badOrder)
	}
	if ratio := float64(badCadence) / float64(len(cs)); ratio > 0.05 {
		return fmt.Errorf("%w: %.1f%% of candles off cadence", ErrBadData, ratio*100)
	}
	if ratio := float64(jumps) / float64(len(cs)); ratio > 0.05 {
		return fmt.Errorf("%w: %.1f%% of candles jump more than 20%%", ErrBadData, ratio*100)
	}
	if gaps > 0 {
		logger.Warn("gaps detected in candle stream", zap.Int("gaps", gaps))
	}
	return nil
}
